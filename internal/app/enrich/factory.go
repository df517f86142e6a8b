package enrich

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lanplay/internal/infra/config"
)

// NewProviderChainFromConfig creates a provider chain from configuration.
// An empty provider list yields a chain that never finds anything.
func NewProviderChainFromConfig(cfg *config.Config, spotify SpotifyClient) (*ProviderChain, error) {
	var providers []Provider

	for i, pcfg := range cfg.Enrich.Providers {
		var provider Provider
		var err error
		zlog.Debug().Msgf("creating enrich provider: index=%d type=%s", i+1, pcfg.Type)
		switch pcfg.Type {
		case "spotify":
			if spotify == nil {
				return nil, errors.Newf("spotify provider requires a spotify client (provider index %d)", i)
			}
			provider, err = NewSpotifyProvider(spotify, pcfg.Settings)

		case "lastfm":
			provider, err = NewLastFmProvider(pcfg.Settings)

		default:
			return nil, errors.Newf("unsupported provider type: %s (provider index %d)", pcfg.Type, i)
		}

		if err != nil {
			return nil, errors.Wrapf(err, "failed to create provider (index %d, type %s)", i, pcfg.Type)
		}

		providers = append(providers, provider)
		zlog.Info().Msgf("registered enrich provider: index=%d type=%s", i+1, pcfg.Type)
	}

	return NewProviderChain(providers...), nil
}
