// SPDX-License-Identifier: MIT

package audibility

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sl-cache/stagelinq-cache/internal/stagelinq/statemap"
	"github.com/sl-cache/stagelinq-cache/internal/stagelinq/statepath"
)

func feed(s *Selector, name, json string) {
	s.UpdateState(statemap.DecodeState(name, json))
}

// TestAudibilitySingleDeckThreshold covers the case where deck 2 playing
// at full fader with centered crossfader is selected; moving the
// crossfader to 0.1 makes it inaudible and nothing is selected.
func TestAudibilitySingleDeckThreshold(t *testing.T) {
	s := NewSelector()
	feed(s, statepath.Crossfader, `{"type":0,"value":0.5}`)
	feed(s, statepath.Fader(2), `{"type":0,"value":1.0}`)
	feed(s, statepath.Play(2), `{"type":1,"state":true}`)
	feed(s, statepath.Artist(2), `{"type":4,"string":"B"}`)
	feed(s, statepath.Title(2), `{"type":4,"string":"Y"}`)

	track := s.GetPlayingTrack()
	require.NotNil(t, track)
	require.Equal(t, "B", track.Artist)
	require.Equal(t, "Y", track.Title)

	feed(s, statepath.Crossfader, `{"type":0,"value":0.1}`)
	require.Nil(t, s.GetPlayingTrack())
}

// TestAudibilityNewestMode covers the scenario where deck 1 starts first,
// deck 2 becomes audible+playing slightly later; newest mode selects deck 2.
func TestAudibilityNewestMode(t *testing.T) {
	s := NewSelector()
	s.SetMixmode(Newest)
	feed(s, statepath.Crossfader, `{"type":0,"value":0.5}`)

	feed(s, statepath.Fader(1), `{"type":0,"value":1.0}`)
	feed(s, statepath.Play(1), `{"type":1,"state":true}`)
	feed(s, statepath.Artist(1), `{"type":4,"string":"A"}`)
	feed(s, statepath.Title(1), `{"type":4,"string":"X"}`)

	feed(s, statepath.Fader(2), `{"type":0,"value":1.0}`)
	feed(s, statepath.Play(2), `{"type":1,"state":true}`)
	feed(s, statepath.Artist(2), `{"type":4,"string":"B"}`)
	feed(s, statepath.Title(2), `{"type":4,"string":"Y"}`)

	track := s.GetPlayingTrack()
	require.NotNil(t, track)
	require.Equal(t, "B", track.Artist)
	require.Equal(t, "Y", track.Title)
}

// TestAudibilityCrossfaderCut covers crossfader extremes cutting off one deck entirely.
func TestAudibilityCrossfaderCut(t *testing.T) {
	s := NewSelector()
	feed(s, statepath.Fader(1), `{"type":0,"value":1.0}`)
	feed(s, statepath.Play(1), `{"type":1,"state":true}`)
	feed(s, statepath.Artist(1), `{"type":4,"string":"A"}`)
	feed(s, statepath.Title(1), `{"type":4,"string":"X"}`)

	feed(s, statepath.Fader(2), `{"type":0,"value":1.0}`)
	feed(s, statepath.Play(2), `{"type":1,"state":true}`)
	feed(s, statepath.Artist(2), `{"type":4,"string":"B"}`)
	feed(s, statepath.Title(2), `{"type":4,"string":"Y"}`)

	feed(s, statepath.Crossfader, `{"type":0,"value":0.0}`)
	track := s.GetPlayingTrack()
	require.NotNil(t, track)
	require.Equal(t, "A", track.Artist)

	feed(s, statepath.Crossfader, `{"type":0,"value":1.0}`)
	track = s.GetPlayingTrack()
	require.NotNil(t, track)
	require.Equal(t, "B", track.Artist)
}

func TestAudibilityRequiresArtistAndTitle(t *testing.T) {
	s := NewSelector()
	feed(s, statepath.Crossfader, `{"type":0,"value":0.5}`)
	feed(s, statepath.Fader(1), `{"type":0,"value":1.0}`)
	feed(s, statepath.Play(1), `{"type":1,"state":true}`)
	require.Nil(t, s.GetPlayingTrack())
}

func TestAudibilityDeckSkip(t *testing.T) {
	s := NewSelector()
	s.SetDeckSkip([]int{1})
	feed(s, statepath.Crossfader, `{"type":0,"value":0.5}`)
	feed(s, statepath.Fader(1), `{"type":0,"value":1.0}`)
	feed(s, statepath.Play(1), `{"type":1,"state":true}`)
	feed(s, statepath.Artist(1), `{"type":4,"string":"A"}`)
	feed(s, statepath.Title(1), `{"type":4,"string":"X"}`)
	require.Nil(t, s.GetPlayingTrack())
}

func TestCrossfaderFactorTable(t *testing.T) {
	cases := []struct {
		deck int
		x    float64
		want float64
	}{
		{1, 0.9, 0.0},
		{1, 0.5, 1.0},
		{1, 0.65, 1.0 - (0.65-0.5)/0.3},
		{2, 0.1, 0.0},
		{2, 0.6, 1.0},
		{2, 0.35, (0.35 - 0.2) / 0.3},
	}
	for _, c := range cases {
		got := crossfaderFactor(c.deck, c.x)
		require.InDelta(t, c.want, got, 1e-9)
	}
}
