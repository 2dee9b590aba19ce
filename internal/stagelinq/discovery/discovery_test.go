// SPDX-License-Identifier: MIT

package discovery

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sl-cache/stagelinq-cache/internal/stagelinq/token"
	"github.com/sl-cache/stagelinq-cache/internal/stagelinq/wire"
)

func testToken(seed byte) token.Token {
	var t token.Token
	for i := range t {
		t[i] = seed
	}
	t[0] &^= 0x80
	return t
}

// TestRegistryHowdyThenExit mirrors scenario S1.
func TestRegistryHowdyThenExit(t *testing.T) {
	r := NewRegistry()
	tok := testToken(0x01)

	howdy := Device{
		IP: "127.0.0.1", Port: 51338, Name: "Test",
		SoftwareName: "tsw", SoftwareVersion: "1.0",
		Token: tok, State: Present,
	}
	updated, changed := r.Apply(howdy)
	require.True(t, changed)
	require.Equal(t, howdy, updated)

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, howdy, snap[0])

	exit := howdy
	exit.State = Leaving
	_, changed = r.Apply(exit)
	require.True(t, changed)
	require.Empty(t, r.Snapshot())
}

func TestRegistryDeduplicatesIdenticalAnnouncement(t *testing.T) {
	r := NewRegistry()
	tok := testToken(0x02)
	d := Device{IP: "10.0.0.5", Port: 1, Name: "X", Token: tok, State: Present}

	_, changed := r.Apply(d)
	require.True(t, changed)
	_, changed = r.Apply(d)
	require.False(t, changed)
}

func TestRegistryIgnoresExitForUnknownToken(t *testing.T) {
	r := NewRegistry()
	tok := testToken(0x03)
	exit := Device{Token: tok, State: Leaving}
	_, changed := r.Apply(exit)
	require.False(t, changed)
}

func TestActionConstantsMatchWire(t *testing.T) {
	require.Equal(t, wire.ActionHowdy, "DISCOVERER_HOWDY_")
	require.Equal(t, wire.ActionExit, "DISCOVERER_EXIT_")
}
