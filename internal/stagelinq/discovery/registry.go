// SPDX-License-Identifier: MIT

package discovery

import (
	"sync"

	"github.com/sl-cache/stagelinq-cache/internal/stagelinq/token"
)

// Registry tracks discovered devices keyed by token, deduplicating
// Present announcements and removing devices on Leaving.
type Registry struct {
	mu      sync.RWMutex
	devices map[token.Token]Device
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{devices: make(map[token.Token]Device)}
}

// Apply folds one discovery event into the registry, returning the
// resulting device and whether the registry changed. A Leaving event
// removes the entry entirely rather than keeping a tombstone.
func (r *Registry) Apply(d Device) (Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d.State == Leaving {
		if _, ok := r.devices[d.Token]; !ok {
			return d, false
		}
		delete(r.devices, d.Token)
		return d, true
	}

	existing, ok := r.devices[d.Token]
	if ok && existing == d {
		return d, false
	}
	r.devices[d.Token] = d
	return d, true
}

// Snapshot returns every device currently Present.
func (r *Registry) Snapshot() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	return out
}

// Get looks up a device by token.
func (r *Registry) Get(t token.Token) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[t]
	return d, ok
}
