package filter

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lanplay/internal/infra/config"
)

// Chain executes filters in sequence.
type Chain struct {
	filters []Filter
}

// NewChain creates a new filter chain.
func NewChain() *Chain {
	return &Chain{
		filters: make([]Filter, 0),
	}
}

// NewChainFromConfig builds a chain from the enabled filters in cfg.
// Registered filters are added in name order. The duplicate filter needs the
// library and is added last when enabled.
func NewChainFromConfig(cfg *config.Config, lib Library) (*Chain, error) {
	chain := NewChain()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !cfg.IsFilterEnabled(name) {
			continue
		}
		f := registry[name]()
		if err := f.ValidateConfig(cfg.GetFilterSettings(name)); err != nil {
			return nil, errors.Wrapf(err, "invalid settings for %s", name)
		}
		zlog.Info().Msgf("filter enabled: %s (%s)", f.Name(), f.Description())
		chain.Add(f)
	}

	if cfg.IsFilterEnabled(config.DuplicateFilter) {
		f := NewDuplicateTrackFilter(lib)
		zlog.Info().Msgf("filter enabled: %s (%s)", f.Name(), f.Description())
		chain.Add(f)
	}

	return chain, nil
}

// Add adds a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Execute runs all filters for the given stage in sequence.
// Returns immediately if any filter rejects the upload.
func (c *Chain) Execute(ctx context.Context, u Upload, stage Stage) Result {
	for _, f := range c.filters {
		if !f.AppliesTo(stage) {
			continue
		}

		result := f.Check(ctx, u)
		if !result.Accepted {
			zlog.Debug().Msgf("filter %s rejected %s at %s: %s", f.Name(), u.Filename, stage, result.Code)
			return result
		}
	}
	return Accept()
}

// MaxFileBytes returns the smallest per-file size limit among the filters,
// or zero when no filter limits the size.
func (c *Chain) MaxFileBytes() int64 {
	var limit int64
	for _, f := range c.filters {
		sl, ok := f.(interface{ MaxBytes() int64 })
		if !ok {
			continue
		}
		if n := sl.MaxBytes(); n > 0 && (limit == 0 || n < limit) {
			limit = n
		}
	}
	return limit
}

// Filters returns all filters in the chain.
func (c *Chain) Filters() []Filter {
	return c.filters
}
