// SPDX-License-Identifier: MIT

package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(filepath.Join(dir, "datacache.sqlite"), DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db)
}

// TestStoreTTLExpiry mirrors scenario S3.
func TestStoreTTLExpiry(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Store(StoreParams{
		URL: "u", Identifier: "artist", DataType: "bio", Provider: "musicbrainz",
		Value: "hello", TTL: 1 * time.Second,
	}))

	entry, err := s.RetrieveByURL("u")
	require.NoError(t, err)
	require.NotNil(t, entry)

	require.NoError(t, s.Store(StoreParams{
		URL: "u2", Identifier: "artist", DataType: "bio", Provider: "musicbrainz",
		Value: "hello", TTL: -1 * time.Second,
	}))
	entry, err = s.RetrieveByURL("u2")
	require.NoError(t, err)
	require.Nil(t, entry)
}

func TestStoreThenStoreReplaces(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Store(StoreParams{
		URL: "u", Identifier: "artist", DataType: "bio", Provider: "musicbrainz",
		Value: "first", TTL: time.Hour,
	}))
	require.NoError(t, s.Store(StoreParams{
		URL: "u", Identifier: "artist", DataType: "bio", Provider: "musicbrainz",
		Value: "second", TTL: time.Hour,
	}))

	entry, err := s.RetrieveByURL("u")
	require.NoError(t, err)
	require.Equal(t, "second", string(entry.Data))
}

func TestRetrieveByIdentifierCount(t *testing.T) {
	s := newTestStore(t)
	const n = 5
	for i := 0; i < n; i++ {
		require.NoError(t, s.Store(StoreParams{
			URL: "u" + string(rune('a'+i)), Identifier: "artist", DataType: "image",
			Provider: "fanarttv", Value: []byte{byte(i)}, TTL: time.Hour,
		}))
	}
	all, err := s.RetrieveByIdentifier("artist", "image", "", false)
	require.NoError(t, err)
	require.Len(t, all, n)

	one, err := s.RetrieveByIdentifier("artist", "image", "", true)
	require.NoError(t, err)
	require.Len(t, one, 1)
}

func TestCacheKeyDerivation(t *testing.T) {
	k1 := CacheKey("artist", "bio", "musicbrainz", "https://example.com/a")
	k2 := CacheKey("artist", "bio", "musicbrainz", "https://example.com/b")
	require.NotEqual(t, k1, k2)
	require.Contains(t, k1, "artist_bio_musicbrainz_")
}

// TestQueueAndDrainPriorityOrder mirrors scenario S4's ordering guarantee.
func TestQueueAndDrainPriorityOrder(t *testing.T) {
	s := newTestStore(t)
	_, err := s.QueueRequest("musicbrainz", "fetch_url", map[string]string{"url": "u1"}, 2)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = s.QueueRequest("musicbrainz", "fetch_url", map[string]string{"url": "u2"}, 1)
	require.NoError(t, err)

	next, err := s.GetNextRequest()
	require.NoError(t, err)
	require.NotNil(t, next)

	var params map[string]string
	require.NoError(t, json.Unmarshal(next.Params, &params))
	require.Equal(t, "u2", params["url"])
	require.Equal(t, "processing", next.Status)
}

func TestGetNextRequestEmptyQueue(t *testing.T) {
	s := newTestStore(t)
	next, err := s.GetNextRequest()
	require.NoError(t, err)
	require.Nil(t, next)
}

func TestCleanupExpired(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Store(StoreParams{
		URL: "u", Identifier: "i", DataType: "d", Provider: "p", Value: "x", TTL: -time.Second,
	}))
	n, err := s.CleanupExpired()
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestOpenCreatesFileAndSchema(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "datacache.sqlite")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	db, err := Open(path, DefaultConfig())
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(path)
	require.NoError(t, err)
}
