// SPDX-License-Identifier: MIT

// Package statepath names the canonical StateMap subscription paths used
// by the audibility selector, grounded in the vendored client's
// value-name catalog rather than scattering string literals through
// callers.
package statepath

import "fmt"

// Global, deck-independent state paths.
const (
	Crossfader = "/Mixer/CrossfaderPosition"
)

// Per-deck path templates; the functions below fill in the deck number.
const (
	faderTemplate     = "/Mixer/CH%dfaderPosition"
	playTemplate      = "/Engine/Deck%d/Play"
	playStateTemplate = "/Engine/Deck%d/PlayState"
	artistTemplate    = "/Engine/Deck%d/Track/ArtistName"
	titleTemplate     = "/Engine/Deck%d/Track/SongName"
	albumTemplate     = "/Engine/Deck%d/Track/AlbumName"
	bpmTemplate       = "/Engine/Deck%d/Track/BPM"
	genreTemplate     = "/Engine/Deck%d/Track/Genre"
	loadedTemplate    = "/Engine/Deck%d/Track/SongLoaded"
)

// Fader returns the channel fader position path for deck d.
func Fader(d int) string { return fmt.Sprintf(faderTemplate, d) }

// Play returns the play-flag path for deck d.
func Play(d int) string { return fmt.Sprintf(playTemplate, d) }

// PlayState returns the play-state path for deck d.
func PlayState(d int) string { return fmt.Sprintf(playStateTemplate, d) }

// Artist returns the artist-name path for deck d.
func Artist(d int) string { return fmt.Sprintf(artistTemplate, d) }

// Title returns the song-title path for deck d.
func Title(d int) string { return fmt.Sprintf(titleTemplate, d) }

// Album returns the album-name path for deck d.
func Album(d int) string { return fmt.Sprintf(albumTemplate, d) }

// BPM returns the BPM path for deck d.
func BPM(d int) string { return fmt.Sprintf(bpmTemplate, d) }

// Genre returns the genre path for deck d.
func Genre(d int) string { return fmt.Sprintf(genreTemplate, d) }

// SongLoaded returns the track-loaded path for deck d.
func SongLoaded(d int) string { return fmt.Sprintf(loadedTemplate, d) }

// Decks is the full set of deck indices a four-channel mixer exposes.
var Decks = [4]int{1, 2, 3, 4}

// SubscriptionSet returns every canonical state path of interest: the
// global crossfader plus all per-deck paths for every deck in Decks.
func SubscriptionSet() []string {
	paths := make([]string, 0, 1+len(Decks)*9)
	paths = append(paths, Crossfader)
	for _, d := range Decks {
		paths = append(paths,
			Play(d), PlayState(d), Artist(d), Title(d), Album(d),
			BPM(d), Genre(d), SongLoaded(d), Fader(d),
		)
	}
	return paths
}
