package enrich

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/osa030/lanplay/internal/domain/track"
	"github.com/osa030/lanplay/internal/infra/spotify"
)

// SpotifyProviderConfig represents spotify provider settings.
type SpotifyProviderConfig struct {
	// Reject results whose artist does not contain the queried artist.
	RequireArtistMatch bool `mapstructure:"require_artist_match"`
}

// SpotifyProvider looks tracks up in the Spotify catalog.
type SpotifyProvider struct {
	client SpotifyClient
	config SpotifyProviderConfig
}

// NewSpotifyProvider creates a new SpotifyProvider.
func NewSpotifyProvider(client SpotifyClient, settings map[string]any) (*SpotifyProvider, error) {
	var cfg SpotifyProviderConfig
	if err := decodeSettings(settings, &cfg); err != nil {
		return nil, errors.Wrap(err, "invalid spotify provider settings")
	}
	return &SpotifyProvider{client: client, config: cfg}, nil
}

// Name returns the provider name.
func (p *SpotifyProvider) Name() string {
	return "spotify"
}

// Lookup implements Provider.
func (p *SpotifyProvider) Lookup(ctx context.Context, q Query) (Info, error) {
	artist := knownArtist(q.Artist)

	t, err := p.client.SearchTrack(ctx, q.Title, artist)
	if err != nil {
		if errors.Is(err, spotify.ErrNotFound) {
			return Info{}, errors.Mark(err, ErrNotFound)
		}
		return Info{}, errors.Wrap(err, "spotify search failed")
	}

	if p.config.RequireArtistMatch && artist != "" &&
		!strings.Contains(strings.ToLower(t.Artist()), strings.ToLower(artist)) {
		return Info{}, errors.Wrapf(ErrNotFound, "spotify artist %q does not match %q", t.Artist(), artist)
	}

	return Info{
		Title:    t.Name,
		Artist:   t.Artist(),
		Duration: t.Duration,
		Source:   p.Name(),
	}, nil
}

// knownArtist maps the placeholder artist to empty.
func knownArtist(artist string) string {
	artist = strings.TrimSpace(artist)
	if strings.EqualFold(artist, track.DefaultArtist) {
		return ""
	}
	return artist
}
