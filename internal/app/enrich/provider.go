// Package enrich fills in track metadata that the uploaded file does not carry.
package enrich

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/lanplay/internal/infra/lastfm"
	"github.com/osa030/lanplay/internal/infra/spotify"
)

// ErrNotFound is returned when no provider knows the track.
var ErrNotFound = errors.New("no metadata found")

// Query identifies the track to look up. Artist may be empty.
type Query struct {
	Title  string
	Artist string
}

// Info is the metadata returned by a provider. Zero fields are unknown.
type Info struct {
	Title    string
	Artist   string
	Duration time.Duration
	Source   string
}

// Complete reports whether both artist and duration are known.
func (i Info) Complete() bool {
	return i.Artist != "" && i.Duration > 0
}

// Provider defines the interface for metadata lookups.
type Provider interface {
	// Lookup returns the metadata known for q, or an error marked ErrNotFound.
	Lookup(ctx context.Context, q Query) (Info, error)

	// Name returns the provider name.
	Name() string
}

// SpotifyClient defines the Spotify operations used by SpotifyProvider.
type SpotifyClient interface {
	SearchTrack(ctx context.Context, title, artist string) (*spotify.TrackInfo, error)
}

// LastFmClient defines the Last.fm operations used by LastFmProvider.
type LastFmClient interface {
	GetTrackInfo(ctx context.Context, trackName, artistName string) (lastfm.TrackInfo, error)
}
