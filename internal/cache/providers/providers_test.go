// SPDX-License-Identifier: MIT

package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sl-cache/stagelinq-cache/internal/cache/fetcher"
	"github.com/sl-cache/stagelinq-cache/internal/cache/ratelimit"
	"github.com/sl-cache/stagelinq-cache/internal/cache/storage"
)

func newTestFetcher(t *testing.T) *fetcher.Fetcher {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "datacache.sqlite"), storage.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := storage.New(db)
	limiter := ratelimit.NewManager(map[string]float64{"musicbrainz": 100})
	return fetcher.New(store, limiter)
}

func TestMusicBrainzSearchArtistsBuildsQueryURL(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("query")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"artists":[]}`))
	}))
	defer srv.Close()

	mb := NewMusicBrainz(newTestFetcher(t))
	mb.BaseURL = srv.URL

	res, err := mb.SearchArtists(context.Background(), "Daft Punk", true)
	require.NoError(t, err)
	require.NotNil(t, res.Entry)
	require.Equal(t, "/artist/", gotPath)
	require.Equal(t, "Daft Punk", gotQuery)
}

func TestImagesFetchTagsDataType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("fake-png-bytes"))
	}))
	defer srv.Close()

	im := NewImages(newTestFetcher(t))
	res, err := im.Fetch(context.Background(), srv.URL+"/fanart.png", "artist-1", "fanarttv", "fanart", true)
	require.NoError(t, err)
	require.NotNil(t, res.Entry)
}

func TestBioFetchUsesLanguageTaggedDataType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"extract":"bio text"}`))
	}))
	defer srv.Close()

	b := NewBio(newTestFetcher(t))
	res, err := b.Fetch(context.Background(), srv.URL+"/wiki", "artist-1", "wikimedia", "en", true)
	require.NoError(t, err)
	require.NotNil(t, res.Entry)
}
