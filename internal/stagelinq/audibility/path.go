// SPDX-License-Identifier: MIT

package audibility

import (
	"github.com/sl-cache/stagelinq-cache/internal/stagelinq/statepath"
)

type field int

const (
	fieldFader field = iota
	fieldPlay
	fieldArtist
	fieldTitle
	fieldAlbum
	fieldBPM
	fieldGenre
)

// parseDeckPath maps a state path back to a (deck, field) pair by
// matching it against the statepath templates for each of the four decks.
// Paths with no deck match (PlayState, SongLoaded, unknown names) produce
// ok=false here; UpdateState keeps no record of them.
func parseDeckPath(name string) (deck int, f field, ok bool) {
	for _, d := range statepath.Decks {
		switch name {
		case statepath.Fader(d):
			return d, fieldFader, true
		case statepath.Play(d):
			return d, fieldPlay, true
		case statepath.Artist(d):
			return d, fieldArtist, true
		case statepath.Title(d):
			return d, fieldTitle, true
		case statepath.Album(d):
			return d, fieldAlbum, true
		case statepath.BPM(d):
			return d, fieldBPM, true
		case statepath.Genre(d):
			return d, fieldGenre, true
		}
	}
	return 0, 0, false
}
