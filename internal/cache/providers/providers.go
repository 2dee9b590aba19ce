// SPDX-License-Identifier: MIT

// Package providers is the thin URL-building facade over the fetcher:
// it composes well-known provider endpoints and identifiers,
// containing no caching logic of its own. Grounded in
// datacache/providers.py's MusicBrainz/TheAudioDB/Discogs/FanartTV/
// Wikimedia URL shapes.
package providers

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/sl-cache/stagelinq-cache/internal/cache/fetcher"
)

const (
	defaultTimeout = 10 * time.Second
	defaultRetries = 3
)

// MusicBrainz builds MusicBrainz artist/recording lookup URLs.
type MusicBrainz struct {
	Fetcher *fetcher.Fetcher
	BaseURL string
}

// NewMusicBrainz returns a facade pointed at the public MusicBrainz API.
func NewMusicBrainz(f *fetcher.Fetcher) *MusicBrainz {
	return &MusicBrainz{Fetcher: f, BaseURL: "https://musicbrainz.org/ws/2"}
}

// SearchArtists queues/fetches an artist search by name.
func (m *MusicBrainz) SearchArtists(ctx context.Context, name string, immediate bool) (fetcher.Result, error) {
	u := fmt.Sprintf("%s/artist/?query=%s&fmt=json", m.BaseURL, url.QueryEscape(name))
	return m.Fetcher.GetOrFetch(ctx, fetcher.Params{
		URL: u, Identifier: name, DataType: "artist_search", Provider: "musicbrainz",
		Timeout: defaultTimeout, Retries: defaultRetries, Immediate: immediate,
	})
}

// GetArtist fetches one artist's full record by MBID.
func (m *MusicBrainz) GetArtist(ctx context.Context, mbid string, immediate bool) (fetcher.Result, error) {
	u := fmt.Sprintf("%s/artist/%s?fmt=json", m.BaseURL, url.PathEscape(mbid))
	return m.Fetcher.GetOrFetch(ctx, fetcher.Params{
		URL: u, Identifier: mbid, DataType: "artist_details", Provider: "musicbrainz",
		Timeout: defaultTimeout, Retries: defaultRetries, Immediate: immediate,
	})
}

// SearchRecordings looks up recordings by title and artist.
func (m *MusicBrainz) SearchRecordings(ctx context.Context, title, artist string, immediate bool) (fetcher.Result, error) {
	q := fmt.Sprintf(`recording:"%s" AND artist:"%s"`, title, artist)
	u := fmt.Sprintf("%s/recording/?query=%s&fmt=json", m.BaseURL, url.QueryEscape(q))
	return m.Fetcher.GetOrFetch(ctx, fetcher.Params{
		URL: u, Identifier: artist + "/" + title, DataType: "recording_search", Provider: "musicbrainz",
		Timeout: defaultTimeout, Retries: defaultRetries, Immediate: immediate,
	})
}

// Images builds generic image-provider URLs (FanartTV, TheAudioDB,
// Discogs cover art), tagged with the caller-declared data_type.
type Images struct {
	Fetcher *fetcher.Fetcher
}

// NewImages returns an image-provider facade.
func NewImages(f *fetcher.Fetcher) *Images {
	return &Images{Fetcher: f}
}

// Fetch queues/fetches one image URL under the given identifier/provider/data_type.
func (im *Images) Fetch(ctx context.Context, imageURL, identifier, provider, dataType string, immediate bool) (fetcher.Result, error) {
	return im.Fetcher.GetOrFetch(ctx, fetcher.Params{
		URL: imageURL, Identifier: identifier, DataType: dataType, Provider: provider,
		Timeout: defaultTimeout, Retries: defaultRetries, Immediate: immediate,
	})
}

// Bio builds a bio_<lang>-tagged API response request (Wikimedia, etc).
type Bio struct {
	Fetcher *fetcher.Fetcher
}

// NewBio returns a bio-provider facade.
func NewBio(f *fetcher.Fetcher) *Bio {
	return &Bio{Fetcher: f}
}

// Fetch queues/fetches a biography in the given language for identifier.
func (b *Bio) Fetch(ctx context.Context, bioURL, identifier, provider, lang string, immediate bool) (fetcher.Result, error) {
	return b.Fetcher.GetOrFetch(ctx, fetcher.Params{
		URL: bioURL, Identifier: identifier, DataType: "bio_" + lang, Provider: provider,
		Timeout: defaultTimeout, Retries: defaultRetries, Immediate: immediate,
	})
}
