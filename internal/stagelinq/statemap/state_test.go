// SPDX-License-Identifier: MIT

package statemap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeStateFloat(t *testing.T) {
	s := DecodeState("/Mixer/CH1faderPosition", `{"type":0,"value":1.0}`)
	require.Equal(t, KindFloat, s.Kind)
	require.Equal(t, 1.0, s.Float)
}

func TestDecodeStateBool(t *testing.T) {
	s := DecodeState("/Engine/Deck1/Play", `{"type":1,"state":true}`)
	require.Equal(t, KindBool, s.Kind)
	require.True(t, s.Bool)
}

func TestDecodeStateString(t *testing.T) {
	s := DecodeState("/Engine/Deck1/Track/ArtistName", `{"type":4,"string":"A"}`)
	require.Equal(t, KindString, s.Kind)
	require.Equal(t, "A", s.Text)
}

func TestDecodeStateColor(t *testing.T) {
	s := DecodeState("/Engine/Deck1/Color", `{"type":16,"color":"#ff000000"}`)
	require.Equal(t, KindColor, s.Kind)
	require.Equal(t, "#ff000000", s.Text)
}

func TestDecodeStateMalformedJSONFallsBackToRawString(t *testing.T) {
	s := DecodeState("/Engine/Deck1/Play", `not json at all`)
	require.Equal(t, uint32(0), s.TypeHint)
	require.Equal(t, KindFloat, s.Kind)
	require.Equal(t, "not json at all", s.Text)
}

func TestBPMString(t *testing.T) {
	s := DecodeState("/Engine/Deck1/Track/BPM", `{"type":0,"value":128.5}`)
	require.Equal(t, "128.5", s.BPMString())
}
