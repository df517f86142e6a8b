package filter

import (
	"context"

	zlog "github.com/rs/zerolog/log"
)

// SizeLimitConfig represents the configuration for SizeLimitFilter.
type SizeLimitConfig struct {
	MaxMB int64 `mapstructure:"max_mb" default:"50" validate:"gte=1,lte=2048"`
}

// SizeLimitFilter rejects files larger than the configured size.
type SizeLimitFilter struct {
	config *SizeLimitConfig
}

// NewSizeLimitFilter creates a size limit filter.
func NewSizeLimitFilter(maxMB int64) *SizeLimitFilter {
	return &SizeLimitFilter{config: &SizeLimitConfig{MaxMB: maxMB}}
}

func (f *SizeLimitFilter) Name() string {
	return "size_limit_filter"
}

func (f *SizeLimitFilter) Description() string {
	return "Rejects files larger than the configured size"
}

func (f *SizeLimitFilter) ReturnCodes() []string {
	return []string{"file_too_large"}
}

func (f *SizeLimitFilter) ValidateConfig(settings map[string]any) error {
	var config SizeLimitConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	f.config = &config
	zlog.Info().Msgf("size limit filter config: %+v", config)
	return nil
}

func (f *SizeLimitFilter) AppliesTo(stage Stage) bool {
	return stage == StageReceived
}

// MaxBytes returns the configured limit in bytes, or zero when unset.
func (f *SizeLimitFilter) MaxBytes() int64 {
	if f.config == nil {
		return 0
	}
	return f.config.MaxMB << 20
}

func (f *SizeLimitFilter) Check(ctx context.Context, u Upload) Result {
	// If config is not set, accept all files
	if f.config == nil {
		return Accept()
	}
	if u.Size > f.MaxBytes() {
		return Reject("file_too_large")
	}
	return Accept()
}

func init() {
	Register("size_limit_filter", func() Filter {
		return &SizeLimitFilter{}
	})
}
