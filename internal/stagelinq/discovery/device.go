// SPDX-License-Identifier: MIT

// Package discovery implements the UDP broadcast announcer/listener and
// the device registry that tracks discovered StagelinQ endpoints.
package discovery

import (
	"fmt"

	"github.com/sl-cache/stagelinq-cache/internal/stagelinq/token"
)

// State is a device's presence lifecycle state.
type State int

const (
	// Present means the device has announced itself and not yet left.
	Present State = iota
	// Leaving means an EXIT datagram was received for this token.
	Leaving
)

func (s State) String() string {
	if s == Leaving {
		return "leaving"
	}
	return "present"
}

// Device is a discovered StagelinQ endpoint. Two devices are equal
// iff their tokens match; the registry deduplicates by token.
type Device struct {
	IP              string
	Port            uint16
	Name            string
	SoftwareName    string
	SoftwareVersion string
	Token           token.Token
	State           State
}

// Endpoint returns the (host, port) pair used to dial this device.
func (d Device) Endpoint() string {
	return fmt.Sprintf("%s:%d", d.IP, d.Port)
}

func (d Device) String() string {
	return fmt.Sprintf("%s (%s %s) at %s:%d", d.Name, d.SoftwareName, d.SoftwareVersion, d.IP, d.Port)
}
