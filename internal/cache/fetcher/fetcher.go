// SPDX-License-Identifier: MIT

// Package fetcher implements the HTTP GET path of the data cache: cache
// lookup, rate-limited fetch, content-type dispatch, retry with
// exponential backoff, and 429 handling.
package fetcher

import (
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sl-cache/stagelinq-cache/internal/cache/ratelimit"
	"github.com/sl-cache/stagelinq-cache/internal/cache/storage"
	"github.com/sl-cache/stagelinq-cache/internal/log"
	"github.com/sl-cache/stagelinq-cache/internal/xerrors"
)

// defaultTTLs are the provider-derived baseline TTLs.
var defaultTTLs = map[string]time.Duration{
	"musicbrainz": 30 * 24 * time.Hour,
	"theaudiodb":  7 * 24 * time.Hour,
	"discogs":     7 * 24 * time.Hour,
	"wikimedia":   7 * 24 * time.Hour,
	"fanarttv":    30 * 24 * time.Hour,
}

const genericAPIDefaultTTL = 7 * 24 * time.Hour

var imageDataTypes = map[string]bool{
	"image": true, "logo": true, "banner": true, "fanart": true, "thumbnail": true,
}

// DefaultTTL returns the provider/data-type-derived default TTL: the
// provider's baseline, doubled when the data type is an image, falling
// back to the generic API baseline for unlisted providers.
func DefaultTTL(provider, dataType string) time.Duration {
	ttl, ok := defaultTTLs[provider]
	if !ok {
		ttl = genericAPIDefaultTTL
	}
	if imageDataTypes[dataType] {
		return ttl * 2
	}
	return ttl
}

// Result is the outcome of a get-or-fetch call.
type Result struct {
	Queued bool
	Entry  *storage.Entry
}

// Params bundles get-or-fetch's arguments.
type Params struct {
	URL        string
	Identifier string
	DataType   string
	Provider   string
	Timeout    time.Duration
	Retries    int
	TTL        time.Duration // zero means "use DefaultTTL"
	Immediate  bool
	Metadata   map[string]any
}

// Fetcher performs rate-limited, retried HTTP GETs on behalf of the
// provider facade, storing successful responses via the cache.
type Fetcher struct {
	store   *storage.Store
	limiter *ratelimit.Manager
	client  *http.Client
	log     zerolog.Logger
}

// New builds a Fetcher over an already-open Store and rate-limiter Manager.
func New(store *storage.Store, limiter *ratelimit.Manager) *Fetcher {
	return &Fetcher{
		store:   store,
		limiter: limiter,
		client:  &http.Client{},
		log:     log.WithComponent("cache.fetcher"),
	}
}

// GetOrFetch implements get-or-fetch: a cache hit short-circuits,
// immediate=false enqueues a fetch_url request, otherwise a rate-limited
// fetch-and-store proceeds inline.
func (f *Fetcher) GetOrFetch(ctx context.Context, p Params) (Result, error) {
	if entry, err := f.store.RetrieveByURL(p.URL); err != nil {
		return Result{}, err
	} else if entry != nil {
		return Result{Entry: entry}, nil
	}

	if !p.Immediate {
		_, err := f.store.QueueRequest(p.Provider, "fetch_url", p, 2)
		if err != nil {
			return Result{}, err
		}
		return Result{Queued: true}, nil
	}

	return f.fetchAndStore(ctx, p)
}

func (f *Fetcher) fetchAndStore(ctx context.Context, p Params) (Result, error) {
	if err := f.limiter.Acquire(ctx, p.Provider); err != nil {
		return Result{}, err
	}

	attempt := 0
	for {
		resp, err := f.doGet(ctx, p.URL)
		if err != nil {
			if attempt >= p.Retries {
				return Result{}, xerrors.New(xerrors.KindTimeout, "fetcher.get_or_fetch", err)
			}
			if !f.backoff(ctx, attempt) {
				return Result{}, xerrors.New(xerrors.KindTimeout, "fetcher.get_or_fetch", ctx.Err())
			}
			attempt++
			continue
		}

		switch {
		case resp.statusCode == http.StatusTooManyRequests:
			retryAfter := resp.retryAfter
			if attempt >= p.Retries {
				return Result{}, xerrors.New(xerrors.KindRateLimited, "fetcher.get_or_fetch", nil)
			}
			select {
			case <-time.After(retryAfter):
			case <-ctx.Done():
				return Result{}, xerrors.New(xerrors.KindTimeout, "fetcher.get_or_fetch", ctx.Err())
			}
			attempt++
			continue
		case resp.statusCode == http.StatusOK:
			value, err := decodeByContentType(resp.contentType, resp.body)
			if err != nil {
				return Result{}, xerrors.New(xerrors.KindProtocol, "fetcher.decode", err)
			}
			ttl := p.TTL
			if ttl == 0 {
				ttl = DefaultTTL(p.Provider, p.DataType)
			}
			if err := f.store.Store(storage.StoreParams{
				URL: p.URL, Identifier: p.Identifier, DataType: p.DataType,
				Provider: p.Provider, Value: value, TTL: ttl, Metadata: p.Metadata,
			}); err != nil {
				return Result{}, err
			}
			entry, err := f.store.RetrieveByURL(p.URL)
			if err != nil {
				return Result{}, err
			}
			return Result{Entry: entry}, nil
		default:
			if attempt >= p.Retries {
				return Result{}, xerrors.New(xerrors.KindNotFound, "fetcher.get_or_fetch", nil)
			}
			if !f.backoff(ctx, attempt) {
				return Result{}, xerrors.New(xerrors.KindTimeout, "fetcher.get_or_fetch", ctx.Err())
			}
			attempt++
		}
	}
}

// backoff sleeps 2^attempt + jitter∈[0,1) seconds, returning
// false if ctx was cancelled first.
func (f *Fetcher) backoff(ctx context.Context, attempt int) bool {
	delay := time.Duration(float64(time.Second) * (float64(int(1)<<uint(attempt)) + rand.Float64()))
	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}

type rawResponse struct {
	statusCode  int
	contentType string
	retryAfter  time.Duration
	body        []byte
}

func (f *Fetcher) doGet(ctx context.Context, url string) (*rawResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	retryAfter := time.Second
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil {
			retryAfter = time.Duration(secs) * time.Second
		}
	}

	return &rawResponse{
		statusCode:  resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		retryAfter:  retryAfter,
		body:        body,
	}, nil
}

// decodeByContentType branches on the response Content-Type header.
func decodeByContentType(contentType string, body []byte) (any, error) {
	switch {
	case strings.HasPrefix(contentType, "application/json"):
		var v any
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, err
		}
		return v, nil
	case strings.HasPrefix(contentType, "image/"), strings.HasPrefix(contentType, "audio/"), strings.HasPrefix(contentType, "video/"):
		return body, nil
	default:
		return string(body), nil
	}
}
