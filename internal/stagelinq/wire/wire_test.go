// SPDX-License-Identifier: MIT

package wire

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/sl-cache/stagelinq-cache/internal/stagelinq/token"
	"github.com/sl-cache/stagelinq-cache/internal/xerrors"
)

func mustToken(t *testing.T, seed byte) token.Token {
	t.Helper()
	var tok token.Token
	for i := range tok {
		tok[i] = seed
	}
	tok[0] &^= 0x80
	return tok
}

func TestDiscoveryMessageRoundTrip(t *testing.T) {
	msg := DiscoveryMessage{
		Token:           mustToken(t, 0x01),
		Source:          "Test",
		Action:          ActionHowdy,
		SoftwareName:    "tsw",
		SoftwareVersion: "1.0",
		Port:            51338,
	}
	encoded, err := msg.Encode()
	require.NoError(t, err)

	decoded, err := DecodeDiscoveryMessage(encoded)
	require.NoError(t, err)
	require.NotNil(t, decoded)
	if diff := cmp.Diff(msg, *decoded); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeDiscoveryMessageIgnoresForeignPayload(t *testing.T) {
	msg, err := DecodeDiscoveryMessage([]byte("not-a-stagelinq-datagram"))
	require.NoError(t, err)
	require.Nil(t, msg)
}

func TestDirectoryMessageRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		enc  interface{ Encode() ([]byte, error) }
	}{
		{"service-announce", ServiceAnnounceMessage{Token: mustToken(t, 0x02), Service: "StateMap", Port: 12345}},
		{"reference", ReferenceMessage{Self: mustToken(t, 0x03), Peer: mustToken(t, 0x04), Reference: 0}},
		{"services-request", ServicesRequestMessage{Token: mustToken(t, 0x05)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload, err := tc.enc.Encode()
			require.NoError(t, err)
			decoded, err := DecodeDirectoryMessage(payload)
			require.NoError(t, err)
			require.NotNil(t, decoded)

			var got interface{ Encode() ([]byte, error) }
			switch {
			case decoded.ServiceAnnounce != nil:
				got = *decoded.ServiceAnnounce
			case decoded.Reference != nil:
				got = *decoded.Reference
			case decoded.ServicesRequest != nil:
				got = *decoded.ServicesRequest
			}
			require.Equal(t, tc.enc, got)
		})
	}
}

func TestStateMapMessageRoundTrip(t *testing.T) {
	sub := StateSubscribeMessage{Name: "/Engine/Deck1/Play", Interval: 0}
	payload, err := sub.Encode()
	require.NoError(t, err)
	decoded, err := DecodeStateMapMessage(payload)
	require.NoError(t, err)
	require.NotNil(t, decoded.Subscribe)
	require.Equal(t, sub, *decoded.Subscribe)

	emit := StateEmitMessage{Name: "/Engine/Deck1/Play", JSONData: `{"state":true}`}
	payload, err = emit.Encode()
	require.NoError(t, err)
	decoded, err = DecodeStateMapMessage(payload)
	require.NoError(t, err)
	require.NotNil(t, decoded.Emit)
	require.Equal(t, emit, *decoded.Emit)
}

func TestBeatEmitRoundTrip(t *testing.T) {
	msg := BeatEmitMessage{
		Clock: 42,
		Players: []PlayerInfo{
			{Beat: 1.0, TotalBeats: 4.0, BPM: 120.0},
			{Beat: 2.0, TotalBeats: 8.0, BPM: 128.0},
		},
		Timelines: []float64{0.5, 1.5},
	}
	encoded, err := msg.Encode()
	require.NoError(t, err)

	decoded, err := DecodeBeatInfoMessage(encoded)
	require.NoError(t, err)
	require.NotNil(t, decoded.Emit)
	if diff := cmp.Diff(msg, *decoded.Emit); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestBeatEmitTruncatedTimelineRejected(t *testing.T) {
	msg := BeatEmitMessage{
		Clock:     42,
		Players:   []PlayerInfo{{Beat: 1.0, TotalBeats: 4.0, BPM: 120.0}, {Beat: 2.0, TotalBeats: 8.0, BPM: 128.0}},
		Timelines: []float64{0.5, 1.5},
	}
	encoded, err := msg.Encode()
	require.NoError(t, err)

	truncated := encoded[:len(encoded)-4]
	_, err = DecodeBeatInfoMessage(truncated)
	require.Error(t, err)
	require.True(t, xerrors.Is(err, xerrors.KindProtocol) || xerrors.Is(err, xerrors.KindTruncated))
}

func TestBeatInfoStartStopStream(t *testing.T) {
	start, err := DecodeBeatInfoMessage(BeatStartStreamMagic)
	require.NoError(t, err)
	require.True(t, start.StartStream)

	stop, err := DecodeBeatInfoMessage(BeatStopStreamMagic)
	require.NoError(t, err)
	require.True(t, stop.StopStream)
}

func TestStringRoundTripUnicode(t *testing.T) {
	samples := []string{"", "hello", "déjà vu", "日本語", "😀"}
	for _, s := range samples {
		w := NewWriter()
		require.NoError(t, w.String(s))
		r := NewReader(bytes.NewReader(w.Bytes()))
		got, err := r.String()
		require.NoError(t, err)
		require.Equal(t, s, got)
	}
}

func TestStringRejectsOversizedLength(t *testing.T) {
	w := NewWriter()
	w.U32(HardStringCap + 1)
	r := NewReaderWithCap(bytes.NewReader(w.Bytes()), DefaultStringCap)
	_, err := r.String()
	require.Error(t, err)
	require.True(t, xerrors.Is(err, xerrors.KindProtocol))
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello frame")
	require.NoError(t, WriteFrame(&buf, payload))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestFrameTruncatedPayloadSurfaces(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("hello frame")))
	full := buf.Bytes()
	truncated := full[:len(full)-4]

	_, err := ReadFrame(bytes.NewReader(truncated))
	require.Error(t, err)
	require.True(t, xerrors.Is(err, xerrors.KindTruncated))
}

func TestFrameRejectsOversize(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, make([]byte, 16)))
	// Overwrite the length prefix to exceed MaxFrameSize.
	tampered := buf.Bytes()
	tampered[0] = 0xFF
	tampered[1] = 0xFF
	tampered[2] = 0xFF
	tampered[3] = 0xFF

	_, err := ReadFrame(bytes.NewReader(tampered))
	require.Error(t, err)
	require.True(t, xerrors.Is(err, xerrors.KindProtocol))
}
