// SPDX-License-Identifier: MIT

// Package audibility implements the deck snapshot accumulator and
// audibility selector: it consumes decoded StateMap records and decides
// which deck, if any, is the currently-audible playing track.
package audibility

import (
	"strconv"
	"sync"
	"time"

	"github.com/sl-cache/stagelinq-cache/internal/stagelinq/statemap"
	"github.com/sl-cache/stagelinq-cache/internal/stagelinq/statepath"
)

// Mixmode selects which audible deck wins among several candidates.
type Mixmode int

const (
	// Newest picks the deck that became audible+playing most recently.
	Newest Mixmode = iota
	// Oldest picks the deck that has been audible+playing the longest.
	Oldest
)

// AudibleThresholdDefault is the default minimum effective volume for a
// deck to count as audible.
const AudibleThresholdDefault = 0.1

// LoudestWindowFraction is the fraction of the max effective volume that
// still counts as "among the loudest" decks.
const LoudestWindowFraction = 0.8

// Track is the externally-visible "now playing" result.
type Track struct {
	Artist string
	Title  string
	Album  string
	BPM    string
	Genre  string
}

type deckState struct {
	artist         string
	hasArtist      bool
	title          string
	hasTitle       bool
	album          string
	bpm            string
	genre          string
	play           bool
	faderPosition  float64
	firstPlayedAt  time.Time
	audiblePlaying bool
}

// Selector accumulates per-deck state and selects the audible track.
type Selector struct {
	mu               sync.Mutex
	decks            map[int]*deckState
	crossfaderPos    float64
	mixmode          Mixmode
	deckSkip         map[int]bool
	audibleThreshold float64
}

// NewSelector builds a Selector with the defaults from the configuration
// surface: mixmode newest, no skipped decks, threshold 0.1.
func NewSelector() *Selector {
	return &Selector{
		decks:            make(map[int]*deckState),
		crossfaderPos:    0.5,
		mixmode:          Newest,
		deckSkip:         make(map[int]bool),
		audibleThreshold: AudibleThresholdDefault,
	}
}

// SetMixmode changes the selection policy.
func (s *Selector) SetMixmode(m Mixmode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mixmode = m
}

// SetDeckSkip replaces the set of decks excluded from selection.
func (s *Selector) SetDeckSkip(decks []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deckSkip = make(map[int]bool, len(decks))
	for _, d := range decks {
		s.deckSkip[d] = true
	}
}

// SetAudibleThreshold overrides the default 0.1 threshold.
func (s *Selector) SetAudibleThreshold(threshold float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audibleThreshold = threshold
}

func (s *Selector) deck(d int) *deckState {
	ds, ok := s.decks[d]
	if !ok {
		ds = &deckState{faderPosition: 1.0}
		s.decks[d] = ds
	}
	return ds
}

// crossfaderFactor implements the piecewise-linear table.
func crossfaderFactor(deck int, x float64) float64 {
	left := deck == 1 || deck == 3
	if left {
		switch {
		case x > 0.8:
			return 0.0
		case x <= 0.5:
			return 1.0
		default:
			return 1.0 - (x-0.5)/0.3
		}
	}
	switch {
	case x < 0.2:
		return 0.0
	case x >= 0.5:
		return 1.0
	default:
		return (x - 0.2) / 0.3
	}
}

func effectiveVolume(deck int, faderPos, crossfaderPos float64) float64 {
	if faderPos <= 0.0 {
		return 0.0
	}
	return faderPos * crossfaderFactor(deck, crossfaderPos)
}

// UpdateState folds one decoded State record into the snapshot table,
// updating first_played_at on the audible+playing edge and clearing it
// when either condition drops.
func (s *Selector) UpdateState(st statemap.State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st.Name == statepath.Crossfader {
		s.crossfaderPos = st.Float
		s.recomputeAllEdges()
		return
	}

	deckNum, field, ok := parseDeckPath(st.Name)
	if !ok {
		return
	}
	ds := s.deck(deckNum)
	switch field {
	case fieldFader:
		ds.faderPosition = st.Float
	case fieldPlay:
		ds.play = st.Bool
	case fieldArtist:
		ds.artist = st.Text
		ds.hasArtist = true
	case fieldTitle:
		ds.title = st.Text
		ds.hasTitle = true
	case fieldAlbum:
		ds.album = st.Text
	case fieldBPM:
		ds.bpm = strconv.FormatFloat(st.Float, 'f', -1, 64)
	case fieldGenre:
		ds.genre = st.Text
	}
	s.recomputeEdge(deckNum, ds)
}

func (s *Selector) recomputeAllEdges() {
	for d, ds := range s.decks {
		s.recomputeEdge(d, ds)
	}
}

func (s *Selector) recomputeEdge(deckNum int, ds *deckState) {
	vol := effectiveVolume(deckNum, ds.faderPosition, s.crossfaderPos)
	audible := vol > s.audibleThreshold
	nowAudiblePlaying := audible && ds.play
	if nowAudiblePlaying && !ds.audiblePlaying {
		ds.firstPlayedAt = time.Now()
	} else if !nowAudiblePlaying && ds.audiblePlaying {
		ds.firstPlayedAt = time.Time{}
	}
	ds.audiblePlaying = nowAudiblePlaying
}

// GetPlayingTrack returns the currently-selected track, or nil if no
// deck qualifies.
func (s *Selector) GetPlayingTrack() *Track {
	s.mu.Lock()
	defer s.mu.Unlock()

	type candidate struct {
		deck   int
		ds     *deckState
		volume float64
	}
	var candidates []candidate
	maxVolume := 0.0

	deckNums := make([]int, 0, len(s.decks))
	for d := range s.decks {
		deckNums = append(deckNums, d)
	}
	sortInts(deckNums)

	for _, d := range deckNums {
		if s.deckSkip[d] {
			continue
		}
		ds := s.decks[d]
		if !ds.play || !ds.hasArtist || !ds.hasTitle {
			continue
		}
		vol := effectiveVolume(d, ds.faderPosition, s.crossfaderPos)
		if vol <= s.audibleThreshold {
			continue
		}
		candidates = append(candidates, candidate{deck: d, ds: ds, volume: vol})
		if vol > maxVolume {
			maxVolume = vol
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	var loudest []candidate
	for _, c := range candidates {
		if c.volume >= maxVolume*LoudestWindowFraction {
			loudest = append(loudest, c)
		}
	}

	best := loudest[0]
	for _, c := range loudest[1:] {
		switch s.mixmode {
		case Oldest:
			if c.ds.firstPlayedAt.Before(best.ds.firstPlayedAt) ||
				(c.ds.firstPlayedAt.Equal(best.ds.firstPlayedAt) && c.deck < best.deck) {
				best = c
			}
		default: // Newest
			if c.ds.firstPlayedAt.After(best.ds.firstPlayedAt) ||
				(c.ds.firstPlayedAt.Equal(best.ds.firstPlayedAt) && c.deck < best.deck) {
				best = c
			}
		}
	}

	return &Track{
		Artist: best.ds.artist,
		Title:  best.ds.title,
		Album:  best.ds.album,
		BPM:    best.ds.bpm,
		Genre:  best.ds.genre,
	}
}

func sortInts(xs []int) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] > xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
}
