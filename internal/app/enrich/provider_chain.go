package enrich

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// ProviderChain asks providers in order and merges their answers.
// Earlier providers win; later ones only fill fields still missing.
type ProviderChain struct {
	providers []Provider
}

// NewProviderChain creates a new provider chain.
func NewProviderChain(providers ...Provider) *ProviderChain {
	return &ProviderChain{
		providers: providers,
	}
}

// Len returns the number of providers in the chain.
func (c *ProviderChain) Len() int {
	return len(c.providers)
}

// Lookup queries providers until artist and duration are both known.
func (c *ProviderChain) Lookup(ctx context.Context, q Query) (Info, error) {
	var merged Info
	found := false

	for i, p := range c.providers {
		if err := ctx.Err(); err != nil {
			return merged, errors.Wrap(err, "lookup cancelled")
		}

		zlog.Debug().Msgf("trying provider: index=%d total=%d provider=%s title=%q",
			i+1, len(c.providers), p.Name(), q.Title)

		info, err := p.Lookup(ctx, q)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				zlog.Debug().Msgf("provider has no match: provider=%s", p.Name())
			} else {
				zlog.Warn().Msgf("provider failed, trying next: provider=%s error=%v", p.Name(), err)
			}
			continue
		}

		found = true
		merged = merge(merged, info)
		if merged.Complete() {
			break
		}
	}

	if !found {
		return Info{}, errors.Wrapf(ErrNotFound, "title %q", q.Title)
	}

	zlog.Info().Msgf("enriched track: title=%q artist=%q duration=%s source=%s",
		q.Title, merged.Artist, merged.Duration, merged.Source)
	return merged, nil
}

// Name returns the chain name.
func (c *ProviderChain) Name() string {
	return "provider_chain"
}

func merge(dst, src Info) Info {
	if dst.Title == "" {
		dst.Title = src.Title
	}
	if dst.Artist == "" {
		dst.Artist = src.Artist
	}
	if dst.Duration <= 0 {
		dst.Duration = src.Duration
	}
	if dst.Source == "" {
		dst.Source = src.Source
	}
	return dst
}
