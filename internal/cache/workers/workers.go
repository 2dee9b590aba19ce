// SPDX-License-Identifier: MIT

// Package workers implements the background pending_requests drain
// pool: N workers claiming work by (priority ASC, created_at
// ASC), bounded per-worker concurrency, exponential backoff when the
// queue is empty, and cancellation-safe shutdown.
package workers

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sl-cache/stagelinq-cache/internal/cache/fetcher"
	"github.com/sl-cache/stagelinq-cache/internal/cache/storage"
	"github.com/sl-cache/stagelinq-cache/internal/log"
)

// Config configures the worker manager.
type Config struct {
	NumWorkers             int
	MaxConcurrentPerWorker int
	BatchSize              int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{NumWorkers: 2, MaxConcurrentPerWorker: 3, BatchSize: 10}
}

const (
	emptyBackoffBase = time.Second
	emptyBackoffCap  = 30 * time.Second
)

var requestsProcessed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "stagelinq_cache",
		Name:      "worker_requests_processed_total",
		Help:      "Total pending requests processed by terminal status",
	},
	[]string{"status"},
)

// Manager drains the pending_requests queue with Config.NumWorkers
// concurrent workers.
type Manager struct {
	store   *storage.Store
	fetcher *fetcher.Fetcher
	cfg     Config
	log     zerolog.Logger
}

// NewManager builds a worker Manager over an already-open Store and Fetcher.
func NewManager(store *storage.Store, f *fetcher.Fetcher, cfg Config) *Manager {
	return &Manager{store: store, fetcher: f, cfg: cfg, log: log.WithComponent("cache.workers")}
}

// Run starts Config.NumWorkers workers and blocks until ctx is cancelled.
// In-flight claims whose work is interrupted by cancellation are marked
// failed so a later run retries them.
func (m *Manager) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < m.cfg.NumWorkers; i++ {
		workerID := i
		g.Go(func() error {
			return m.runWorker(ctx, workerID)
		})
	}
	return g.Wait()
}

func (m *Manager) runWorker(ctx context.Context, id int) error {
	sem := make(chan struct{}, m.cfg.MaxConcurrentPerWorker)
	var wg sync.WaitGroup
	consecutiveEmpty := 0

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		default:
		}

		processedAny := false
		for i := 0; i < m.cfg.BatchSize; i++ {
			req, err := m.store.GetNextRequest()
			if err != nil {
				m.log.Error().Err(err).Int("worker", id).Msg("claim pending request")
				break
			}
			if req == nil {
				break
			}
			processedAny = true

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				_ = m.store.CompleteRequest(req.RequestID, false)
				requestsProcessed.WithLabelValues("failed").Inc()
				wg.Wait()
				return nil
			}
			wg.Add(1)
			go func(r storage.PendingRequest) {
				defer wg.Done()
				defer func() { <-sem }()
				m.process(ctx, r)
			}(*req)
		}

		// Drain the batch's in-flight work before deciding whether this
		// worker went idle, so completion counts and backoff reflect the
		// batch's actual outcome rather than dispatch order.
		wg.Wait()

		if !processedAny {
			consecutiveEmpty++
			delay := backoffFor(consecutiveEmpty)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		consecutiveEmpty = 0
	}
}

func backoffFor(consecutiveEmpty int) time.Duration {
	shift := consecutiveEmpty - 1
	if shift > 5 {
		shift = 5
	}
	if shift < 0 {
		shift = 0
	}
	d := emptyBackoffBase * (1 << uint(shift))
	if d > emptyBackoffCap {
		return emptyBackoffCap
	}
	return d
}

func (m *Manager) process(ctx context.Context, req storage.PendingRequest) {
	ctx = log.ContextWithJobID(ctx, req.RequestID)
	jobLog := log.WithContext(ctx, m.log)

	if req.RequestKey != "fetch_url" {
		_ = m.store.CompleteRequest(req.RequestID, false)
		requestsProcessed.WithLabelValues("failed").Inc()
		jobLog.Warn().Str("request_key", req.RequestKey).Msg("unsupported request key")
		return
	}

	var p fetcher.Params
	if err := json.Unmarshal(req.Params, &p); err != nil {
		_ = m.store.CompleteRequest(req.RequestID, false)
		requestsProcessed.WithLabelValues("failed").Inc()
		jobLog.Error().Err(err).Msg("decode queued request params")
		return
	}

	if existing, err := m.store.RetrieveByURL(p.URL); err == nil && existing != nil {
		_ = m.store.CompleteRequest(req.RequestID, true)
		requestsProcessed.WithLabelValues("completed").Inc()
		return
	}

	p.Immediate = true
	_, err := m.fetcher.GetOrFetch(ctx, p)
	_ = m.store.CompleteRequest(req.RequestID, err == nil)
	if err != nil {
		requestsProcessed.WithLabelValues("failed").Inc()
		jobLog.Warn().Err(err).Str("provider", p.Provider).Msg("fetch failed")
	} else {
		requestsProcessed.WithLabelValues("completed").Inc()
	}
}
