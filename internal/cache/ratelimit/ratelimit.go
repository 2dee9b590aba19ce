// SPDX-License-Identifier: MIT

// Package ratelimit implements the per-provider token-bucket rate
// limiter manager for the data cache, adapted from the engine's
// HTTP rate limiter idiom (per-key map of golang.org/x/time/rate
// limiters guarded by a mutex, with a promauto counter for rejections).
package ratelimit

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/sl-cache/stagelinq-cache/internal/xerrors"
)

// DefaultRate is used for any provider not named in DefaultRates.
const DefaultRate = 1.0

// DefaultRates are the recognized per-provider defaults.
var DefaultRates = map[string]float64{
	"musicbrainz": 1.0,
	"discogs":     2.0,
	"fanarttv":    2.0,
	"theaudiodb":  1.0,
	"wikimedia":   10.0,
	"images":      5.0,
}

var rateLimitRejected = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "stagelinq_cache",
		Name:      "ratelimit_rejected_total",
		Help:      "Total acquire calls that timed out waiting for a token",
	},
	[]string{"provider"},
)

// Manager holds one token-bucket limiter per provider, creating it on
// first use from DefaultRates or an explicit override.
type Manager struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rates    map[string]float64
}

// NewManager builds a Manager. overrides replaces entries in DefaultRates.
func NewManager(overrides map[string]float64) *Manager {
	rates := make(map[string]float64, len(DefaultRates)+len(overrides))
	for k, v := range DefaultRates {
		rates[k] = v
	}
	for k, v := range overrides {
		rates[k] = v
	}
	return &Manager{
		limiters: make(map[string]*rate.Limiter),
		rates:    rates,
	}
}

func capacityFor(requestsPerSecond float64) int {
	c := int(requestsPerSecond * 2)
	if c < 1 {
		return 1
	}
	return c
}

func (m *Manager) limiterFor(provider string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.limiters[provider]; ok {
		return l
	}
	r, ok := m.rates[provider]
	if !ok {
		r = DefaultRate
	}
	l := rate.NewLimiter(rate.Limit(r), capacityFor(r))
	m.limiters[provider] = l
	return l
}

// Acquire blocks until a token is available for provider, returning a
// RateLimited error if ctx ends first or its deadline would pass before a
// token frees up.
func (m *Manager) Acquire(ctx context.Context, provider string) error {
	l := m.limiterFor(provider)
	if err := l.WaitN(ctx, 1); err != nil {
		rateLimitRejected.WithLabelValues(provider).Inc()
		return xerrors.New(xerrors.KindRateLimited, "ratelimit.acquire", err)
	}
	return nil
}

// SetRate overrides the configured rate for provider, recreating its
// limiter with fresh capacity on next use.
func (m *Manager) SetRate(provider string, requestsPerSecond float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rates[provider] = requestsPerSecond
	delete(m.limiters, provider)
}
