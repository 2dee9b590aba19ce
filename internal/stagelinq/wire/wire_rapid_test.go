// SPDX-License-Identifier: MIT

package wire

import (
	"bytes"
	"testing"

	"pgregory.net/rapid"
)

// TestStringRoundTripProperty checks that every string whose
// UTF-16 byte length fits within the default cap round-trips exactly.
func TestStringRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := rapid.StringN(0, 512, -1).Draw(rt, "s")

		w := NewWriter()
		if err := w.String(s); err != nil {
			rt.Fatalf("encode: %v", err)
		}
		r := NewReader(bytes.NewReader(w.Bytes()))
		got, err := r.String()
		if err != nil {
			rt.Fatalf("decode: %v", err)
		}
		if got != s {
			rt.Fatalf("round trip mismatch: want %q, got %q", s, got)
		}
	})
}

// TestDiscoveryMessageRoundTripProperty checks the round trip for the
// discovery datagram shape across arbitrary field values.
func TestDiscoveryMessageRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		var tok [16]byte
		for i := range tok {
			tok[i] = byte(rapid.IntRange(0, 255).Draw(rt, "tokbyte"))
		}
		tok[0] &^= 0x80

		msg := DiscoveryMessage{
			Token:           tok,
			Source:          rapid.StringN(0, 64, -1).Draw(rt, "source"),
			Action:          rapid.SampledFrom([]string{ActionHowdy, ActionExit}).Draw(rt, "action"),
			SoftwareName:    rapid.StringN(0, 64, -1).Draw(rt, "swname"),
			SoftwareVersion: rapid.StringN(0, 32, -1).Draw(rt, "swversion"),
			Port:            uint16(rapid.IntRange(0, 65535).Draw(rt, "port")),
		}

		encoded, err := msg.Encode()
		if err != nil {
			rt.Fatalf("encode: %v", err)
		}
		decoded, err := DecodeDiscoveryMessage(encoded)
		if err != nil {
			rt.Fatalf("decode: %v", err)
		}
		if decoded == nil || *decoded != msg {
			rt.Fatalf("round trip mismatch: want %+v, got %+v", msg, decoded)
		}
	})
}
