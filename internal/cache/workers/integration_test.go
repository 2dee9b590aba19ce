// SPDX-License-Identifier: MIT

package workers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sl-cache/stagelinq-cache/internal/cache/fetcher"
	"github.com/sl-cache/stagelinq-cache/internal/cache/ratelimit"
	"github.com/sl-cache/stagelinq-cache/internal/cache/storage"
)

// TestQueueAndDrainScenario mirrors scenario S4: two queued fetches, the
// lower-priority-number one (u2, priority 1) drained before u1 (priority 2).
func TestQueueAndDrainScenario(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("payload for " + r.URL.Path))
	}))
	defer srv.Close()

	dir := t.TempDir()
	db, err := storage.Open(filepath.Join(dir, "datacache.sqlite"), storage.DefaultConfig())
	require.NoError(t, err)
	defer db.Close()
	store := storage.New(db)

	limiter := ratelimit.NewManager(map[string]float64{"test": 100})
	f := fetcher.New(store, limiter)

	_, err = store.QueueRequest("test", "fetch_url", fetcher.Params{
		URL: srv.URL + "/u1", Identifier: "i", DataType: "d", Provider: "test", Retries: 1,
	}, 2)
	require.NoError(t, err)
	_, err = store.QueueRequest("test", "fetch_url", fetcher.Params{
		URL: srv.URL + "/u2", Identifier: "i", DataType: "d", Provider: "test", Retries: 1,
	}, 1)
	require.NoError(t, err)

	mgr := NewManager(store, f, Config{NumWorkers: 1, MaxConcurrentPerWorker: 1, BatchSize: 10})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go mgr.Run(ctx)

	require.Eventually(t, func() bool {
		e1, _ := store.RetrieveByURL(srv.URL + "/u1")
		e2, _ := store.RetrieveByURL(srv.URL + "/u2")
		return e1 != nil && e2 != nil
	}, 2*time.Second, 20*time.Millisecond)
}
