package enrich

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/lanplay/internal/infra/lastfm"
)

// LastFmProviderConfig represents lastfm provider settings.
type LastFmProviderConfig struct {
	APIKey string `yaml:"api_key" mapstructure:"api_key" validate:"required"`
}

// LastFmProvider looks up track durations on Last.fm.
// Last.fm needs the artist, so queries without one are skipped.
type LastFmProvider struct {
	lastfm LastFmClient
}

// NewLastFmProvider creates a new LastFmProvider.
func NewLastFmProvider(settings map[string]any) (*LastFmProvider, error) {
	var cfg LastFmProviderConfig
	if err := decodeSettings(settings, &cfg); err != nil {
		return nil, errors.Wrap(err, "invalid lastfm provider settings")
	}

	client, err := lastfm.New(lastfm.Config{APIKey: cfg.APIKey})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create last.fm client")
	}
	return newLastFmProvider(client), nil
}

func newLastFmProvider(client LastFmClient) *LastFmProvider {
	return &LastFmProvider{lastfm: client}
}

// Name returns the provider name.
func (p *LastFmProvider) Name() string {
	return "lastfm"
}

// Lookup implements Provider.
func (p *LastFmProvider) Lookup(ctx context.Context, q Query) (Info, error) {
	artist := knownArtist(q.Artist)
	if artist == "" || q.Title == "" {
		return Info{}, errors.Wrap(ErrNotFound, "last.fm lookup needs title and artist")
	}

	info, err := p.lastfm.GetTrackInfo(ctx, q.Title, artist)
	if err != nil {
		if errors.Is(err, lastfm.ErrTrackNotFound) {
			return Info{}, errors.Mark(err, ErrNotFound)
		}
		return Info{}, errors.Wrap(err, "last.fm lookup failed")
	}

	return Info{
		Title:    info.Name,
		Artist:   info.Artist,
		Duration: info.Duration,
		Source:   p.Name(),
	}, nil
}
