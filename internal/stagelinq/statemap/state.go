// SPDX-License-Identifier: MIT

// Package statemap decodes StateMap emit payloads into typed State
// records and subscribes to a set of state paths over a connection's
// StateMap channel.
package statemap

import (
	"encoding/json"
	"strconv"
)

// ValueKind tags which field of the JSON envelope held the authoritative
// payload.
type ValueKind int

const (
	// KindFloat covers type_hint ∈ {0,10,14}.
	KindFloat ValueKind = iota
	// KindBool covers type_hint ∈ {1,2,3}.
	KindBool
	// KindString covers type_hint ∈ {4,8}.
	KindString
	// KindColor covers type_hint = 16.
	KindColor
)

// State is one decoded StateMap record.
type State struct {
	Name     string
	TypeHint uint32
	Kind     ValueKind
	Float    float64
	Bool     bool
	Text     string
}

// envelope mirrors the JSON shape carried inside a StateEmitMessage.
type envelope struct {
	Type   uint32           `json:"type"`
	Value  *json.RawMessage `json:"value"`
	State  *json.RawMessage `json:"state"`
	String *json.RawMessage `json:"string"`
	Color  *json.RawMessage `json:"color"`
}

// kindForTypeHint maps a type_hint to its ValueKind invariant.
func kindForTypeHint(hint uint32) ValueKind {
	switch hint {
	case 1, 2, 3:
		return KindBool
	case 4, 8:
		return KindString
	case 16:
		return KindColor
	default:
		return KindFloat
	}
}

// DecodeState parses one emit payload's JSON body into a State. Malformed
// JSON degrades to type_hint=0 with the raw string carried as text:
// the record is still delivered, never dropped.
func DecodeState(name string, jsonData string) State {
	var env envelope
	if err := json.Unmarshal([]byte(jsonData), &env); err != nil {
		return State{Name: name, TypeHint: 0, Kind: KindFloat, Text: jsonData}
	}

	kind := kindForTypeHint(env.Type)
	s := State{Name: name, TypeHint: env.Type, Kind: kind}

	var raw *json.RawMessage
	switch kind {
	case KindBool:
		raw = env.State
	case KindString:
		raw = env.String
	case KindColor:
		raw = env.Color
	default:
		raw = env.Value
	}
	if raw == nil {
		return s
	}

	switch kind {
	case KindBool:
		var b bool
		if err := json.Unmarshal(*raw, &b); err == nil {
			s.Bool = b
		}
	case KindString, KindColor:
		var str string
		if err := json.Unmarshal(*raw, &str); err == nil {
			s.Text = str
		}
	default:
		var f float64
		if err := json.Unmarshal(*raw, &f); err == nil {
			s.Float = f
		}
	}
	return s
}

// BPMString renders a float-kind State's value the way the selector
// surfaces BPM externally: as a string.
func (s State) BPMString() string {
	return strconv.FormatFloat(s.Float, 'f', -1, 64)
}
