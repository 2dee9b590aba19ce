// SPDX-License-Identifier: MIT

package wire

import (
	"bytes"
	"fmt"

	"github.com/sl-cache/stagelinq-cache/internal/stagelinq/token"
	"github.com/sl-cache/stagelinq-cache/internal/xerrors"
)

// DiscoveryMagic is the 4-byte magic prefix of every UDP discovery datagram.
var DiscoveryMagic = []byte("airD")

// Discovery actions.
const (
	ActionHowdy = "DISCOVERER_HOWDY_"
	ActionExit  = "DISCOVERER_EXIT_"
)

// Directory message type tags.
const (
	MsgServiceAnnounce  uint32 = 0x00000000
	MsgReference        uint32 = 0x00000001
	MsgServicesRequest  uint32 = 0x00000002
)

// SmaaMagic is the StateMap channel payload magic.
var SmaaMagic = []byte("smaa")

// StateMap message type tags, carried after SmaaMagic.
const (
	MsgStateSubscribe uint32 = 0x000007D2
	MsgStateEmit      uint32 = 0x00000000
)

// NoUpdatesInterval means "change-driven only, no periodic emission".
const NoUpdatesInterval uint32 = 0xFFFFFFFF

// BeatInfo stream magics (4 raw bytes, no "smaa" prefix).
var (
	BeatStartStreamMagic = []byte{0x00, 0x00, 0x00, 0x00}
	BeatStopStreamMagic  = []byte{0x00, 0x00, 0x00, 0x01}
	BeatEmitMagic        = []byte{0x00, 0x00, 0x00, 0x02}
)

// DiscoveryMessage is a single UDP presence/departure datagram.
type DiscoveryMessage struct {
	Token           token.Token
	Source          string
	Action          string
	SoftwareName    string
	SoftwareVersion string
	Port            uint16
}

// Encode renders m as a raw UDP payload (no outer length prefix).
func (m DiscoveryMessage) Encode() ([]byte, error) {
	w := NewWriter()
	w.RawBytes(DiscoveryMagic)
	w.Token(m.Token)
	if err := w.String(m.Source); err != nil {
		return nil, err
	}
	if err := w.String(m.Action); err != nil {
		return nil, err
	}
	if err := w.String(m.SoftwareName); err != nil {
		return nil, err
	}
	if err := w.String(m.SoftwareVersion); err != nil {
		return nil, err
	}
	w.U16(m.Port)
	return w.Bytes(), nil
}

// DecodeDiscoveryMessage parses a UDP payload. A payload not beginning with
// DiscoveryMagic is not an error — callers should treat (nil, nil) as
// "not a StagelinQ datagram, ignore".
func DecodeDiscoveryMessage(payload []byte) (*DiscoveryMessage, error) {
	if len(payload) < len(DiscoveryMagic) || string(payload[:len(DiscoveryMagic)]) != string(DiscoveryMagic) {
		return nil, nil
	}
	r := NewReader(bytes.NewReader(payload))
	if err := r.Magic(DiscoveryMagic); err != nil {
		return nil, err
	}
	tok, err := r.Token()
	if err != nil {
		return nil, err
	}
	source, err := r.String()
	if err != nil {
		return nil, err
	}
	action, err := r.String()
	if err != nil {
		return nil, err
	}
	swName, err := r.String()
	if err != nil {
		return nil, err
	}
	swVersion, err := r.String()
	if err != nil {
		return nil, err
	}
	port, err := r.U16()
	if err != nil {
		return nil, err
	}
	return &DiscoveryMessage{
		Token:           tok,
		Source:          source,
		Action:          action,
		SoftwareName:    swName,
		SoftwareVersion: swVersion,
		Port:            port,
	}, nil
}

// ServiceAnnounceMessage advertises one named service and its TCP port.
type ServiceAnnounceMessage struct {
	Token   token.Token
	Service string
	Port    uint16
}

func (m ServiceAnnounceMessage) Encode() ([]byte, error) {
	w := NewWriter()
	w.U32(MsgServiceAnnounce)
	w.Token(m.Token)
	if err := w.String(m.Service); err != nil {
		return nil, err
	}
	w.U16(m.Port)
	return w.Bytes(), nil
}

// ReferenceMessage is the directory-channel keep-alive / reference ping.
type ReferenceMessage struct {
	Self      token.Token
	Peer      token.Token
	Reference int64
}

func (m ReferenceMessage) Encode() ([]byte, error) {
	w := NewWriter()
	w.U32(MsgReference)
	w.Token(m.Self)
	w.Token(m.Peer)
	w.I64(m.Reference)
	return w.Bytes(), nil
}

// ServicesRequestMessage asks the peer to enumerate its services.
type ServicesRequestMessage struct {
	Token token.Token
}

func (m ServicesRequestMessage) Encode() ([]byte, error) {
	w := NewWriter()
	w.U32(MsgServicesRequest)
	w.Token(m.Token)
	return w.Bytes(), nil
}

// DirectoryMessage is the decoded union of the three directory message
// shapes; exactly one of ServiceAnnounce, Reference, ServicesRequest is set.
type DirectoryMessage struct {
	ServiceAnnounce *ServiceAnnounceMessage
	Reference       *ReferenceMessage
	ServicesRequest *ServicesRequestMessage
}

// DecodeDirectoryMessage decodes one directory-channel message (no outer
// length prefix; the leading u32 dispatches the shape).
func DecodeDirectoryMessage(payload []byte) (*DirectoryMessage, error) {
	r := NewReader(bytes.NewReader(payload))
	kind, err := r.U32()
	if err != nil {
		return nil, err
	}
	switch kind {
	case MsgServiceAnnounce:
		tok, err := r.Token()
		if err != nil {
			return nil, err
		}
		svc, err := r.String()
		if err != nil {
			return nil, err
		}
		port, err := r.U16()
		if err != nil {
			return nil, err
		}
		return &DirectoryMessage{ServiceAnnounce: &ServiceAnnounceMessage{Token: tok, Service: svc, Port: port}}, nil
	case MsgReference:
		self, err := r.Token()
		if err != nil {
			return nil, err
		}
		peer, err := r.Token()
		if err != nil {
			return nil, err
		}
		ref, err := r.I64()
		if err != nil {
			return nil, err
		}
		return &DirectoryMessage{Reference: &ReferenceMessage{Self: self, Peer: peer, Reference: ref}}, nil
	case MsgServicesRequest:
		tok, err := r.Token()
		if err != nil {
			return nil, err
		}
		return &DirectoryMessage{ServicesRequest: &ServicesRequestMessage{Token: tok}}, nil
	default:
		return nil, xerrors.New(xerrors.KindProtocol, "wire.directory",
			fmt.Errorf("unknown directory message type 0x%08x", kind))
	}
}

// StateSubscribeMessage requests periodic or change-driven emission of one state path.
type StateSubscribeMessage struct {
	Name     string
	Interval uint32
}

func (m StateSubscribeMessage) Encode() ([]byte, error) {
	w := NewWriter()
	w.RawBytes(SmaaMagic)
	w.U32(MsgStateSubscribe)
	if err := w.String(m.Name); err != nil {
		return nil, err
	}
	w.U32(m.Interval)
	return w.Bytes(), nil
}

// StateEmitMessage carries one JSON-encoded state update.
type StateEmitMessage struct {
	Name     string
	JSONData string
}

func (m StateEmitMessage) Encode() ([]byte, error) {
	w := NewWriter()
	w.RawBytes(SmaaMagic)
	w.U32(MsgStateEmit)
	if err := w.String(m.Name); err != nil {
		return nil, err
	}
	if err := w.String(m.JSONData); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// StateMapMessage is the decoded union of subscribe/emit shapes.
type StateMapMessage struct {
	Subscribe *StateSubscribeMessage
	Emit      *StateEmitMessage
}

// DecodeStateMapMessage decodes one "smaa"-prefixed StateMap payload.
func DecodeStateMapMessage(payload []byte) (*StateMapMessage, error) {
	r := NewReader(bytes.NewReader(payload))
	if err := r.Magic(SmaaMagic); err != nil {
		return nil, err
	}
	kind, err := r.U32()
	if err != nil {
		return nil, err
	}
	switch kind {
	case MsgStateSubscribe:
		name, err := r.String()
		if err != nil {
			return nil, err
		}
		interval, err := r.U32()
		if err != nil {
			return nil, err
		}
		return &StateMapMessage{Subscribe: &StateSubscribeMessage{Name: name, Interval: interval}}, nil
	case MsgStateEmit:
		name, err := r.String()
		if err != nil {
			return nil, err
		}
		jsonData, err := r.String()
		if err != nil {
			return nil, err
		}
		return &StateMapMessage{Emit: &StateEmitMessage{Name: name, JSONData: jsonData}}, nil
	default:
		return nil, xerrors.New(xerrors.KindProtocol, "wire.statemap",
			fmt.Errorf("unknown statemap message type 0x%08x", kind))
	}
}

// PlayerInfo is one deck's beat-stream record.
type PlayerInfo struct {
	Beat       float64
	TotalBeats float64
	BPM        float64
}

// BeatEmitMessage carries the current beat clock for all active decks.
type BeatEmitMessage struct {
	Clock     uint64
	Players   []PlayerInfo
	Timelines []float64
}

func (m BeatEmitMessage) Encode() ([]byte, error) {
	w := NewWriter()
	w.RawBytes(BeatEmitMagic)
	w.U64(m.Clock)
	w.U32(uint32(len(m.Players)))
	for _, p := range m.Players {
		w.F64(p.Beat)
		w.F64(p.TotalBeats)
		w.F64(p.BPM)
	}
	for _, t := range m.Timelines {
		w.F64(t)
	}
	return w.Bytes(), nil
}

// BeatInfoMessage is the decoded union of start/stop/emit beat-stream shapes.
type BeatInfoMessage struct {
	StartStream bool
	StopStream  bool
	Emit        *BeatEmitMessage
}

// DecodeBeatInfoMessage decodes one beat-info payload.
func DecodeBeatInfoMessage(payload []byte) (*BeatInfoMessage, error) {
	if len(payload) < 4 {
		return nil, xerrors.New(xerrors.KindTruncated, "wire.beatinfo",
			fmt.Errorf("payload too short: %d bytes", len(payload)))
	}
	magic := payload[:4]
	switch {
	case equalBytes(magic, BeatStartStreamMagic):
		return &BeatInfoMessage{StartStream: true}, nil
	case equalBytes(magic, BeatStopStreamMagic):
		return &BeatInfoMessage{StopStream: true}, nil
	case equalBytes(magic, BeatEmitMagic):
		r := NewReader(bytes.NewReader(payload[4:]))
		clock, err := r.U64()
		if err != nil {
			return nil, err
		}
		n, err := r.U32()
		if err != nil {
			return nil, err
		}
		playersBytes := int(n) * 24
		consumed := 4 + 8 + 4 + playersBytes
		if consumed > len(payload) {
			return nil, xerrors.New(xerrors.KindTruncated, "wire.beatinfo.players",
				fmt.Errorf("declared %d players need %d bytes, have %d", n, playersBytes, len(payload)-12))
		}
		players := make([]PlayerInfo, n)
		for i := range players {
			beat, err := r.F64()
			if err != nil {
				return nil, err
			}
			total, err := r.F64()
			if err != nil {
				return nil, err
			}
			bpm, err := r.F64()
			if err != nil {
				return nil, err
			}
			players[i] = PlayerInfo{Beat: beat, TotalBeats: total, BPM: bpm}
		}
		remaining := len(payload) - consumed
		if remaining != len(players)*8 {
			return nil, xerrors.New(xerrors.KindProtocol, "wire.beatinfo.timelines",
				fmt.Errorf("remaining %d bytes does not equal %d players * 8", remaining, len(players)))
		}
		timelines := make([]float64, remaining/8)
		for i := range timelines {
			v, err := r.F64()
			if err != nil {
				return nil, err
			}
			timelines[i] = v
		}
		return &BeatInfoMessage{Emit: &BeatEmitMessage{Clock: clock, Players: players, Timelines: timelines}}, nil
	default:
		return nil, xerrors.New(xerrors.KindProtocol, "wire.beatinfo",
			fmt.Errorf("unknown beatinfo magic %x", magic))
	}
}

func equalBytes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
