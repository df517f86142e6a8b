// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Filter names understood by the upload filter chain.
const (
	FormatFilter        = "format_filter"
	SizeLimitFilter     = "size_limit_filter"
	DurationLimitFilter = "duration_limit_filter"
	DuplicateFilter     = "duplicate_track_filter"
)

// Config represents the server configuration.
type Config struct {
	Server   ServerConfig            `yaml:"server"`
	Storage  StorageConfig           `yaml:"storage"`
	Upload   UploadConfig            `yaml:"upload"`
	Filters  map[string]FilterConfig `yaml:"filters"`
	Enrich   EnrichConfig            `yaml:"enrich"`
	Spotify  SpotifyConfig           `yaml:"spotify"`
	Database DatabaseConfig          `yaml:"database"`
	Messages MessagesConfig          `yaml:"messages"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr  string      `yaml:"addr" default:":8080"`
	Hooks HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// StorageConfig represents where audio files and the metadata sidecar live.
type StorageConfig struct {
	Dir     string `yaml:"dir" default:"./uploads" validate:"required"`
	Sidecar string `yaml:"sidecar" default:"metadata.json" validate:"required"`
	NoWatch bool   `yaml:"no_watch"` // disable pruning on file removal
}

// UploadConfig represents multipart upload limits.
type UploadConfig struct {
	MaxFiles    int `yaml:"max_files" default:"10" validate:"gte=1,lte=100"`
	MaxMemoryMB int `yaml:"max_memory_mb" default:"32" validate:"gte=1"`
}

// EnrichConfig represents the metadata enrichment providers, tried in order.
type EnrichConfig struct {
	Providers []ProviderConfig `yaml:"providers" validate:"dive"`
}

// ProviderConfig represents a single enrichment provider configuration.
type ProviderConfig struct {
	Type     string         `yaml:"type" validate:"required,oneof=spotify lastfm"`
	Settings map[string]any `yaml:"settings"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// MessagesConfig represents user-facing messages.
type MessagesConfig struct {
	DefaultError          string `yaml:"default_error" default:"request failed"`
	NoFiles               string `yaml:"no_files" default:"no files uploaded"`
	TooManyFiles          string `yaml:"too_many_files" default:"too many files in one upload"`
	UnsupportedFormat     string `yaml:"unsupported_format" default:"unsupported audio format"`
	FileTooLarge          string `yaml:"file_too_large" default:"file exceeds the upload size limit"`
	DurationLimitExceeded string `yaml:"duration_limit_exceeded" default:"track duration is outside the allowed range"`
	DuplicateTrack        string `yaml:"duplicate_track" default:"track is already in the library"`
	TrackNotFound         string `yaml:"track_not_found" default:"song not found"`
	InvalidTrack          string `yaml:"invalid_track" default:"title must not be empty"`
}

// SpotifyConfig represents Spotify API configuration.
// Credentials are required only when the spotify enrichment provider is configured.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"JP"`
}

// DatabaseConfig represents the optional play history database.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// Load loads configuration from a YAML file.
// An empty path yields a configuration built from defaults and the environment.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read config file")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	cfg.setDefaultFilters()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("LASTFM_API_KEY"); v != "" {
		for i := range c.Enrich.Providers {
			if c.Enrich.Providers[i].Type == "lastfm" {
				if c.Enrich.Providers[i].Settings == nil {
					c.Enrich.Providers[i].Settings = make(map[string]any)
				}
				c.Enrich.Providers[i].Settings["api_key"] = v
				break
			}
		}
	}
	if v := os.Getenv("LANPLAY_STORAGE_DIR"); v != "" {
		c.Storage.Dir = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
}

// setDefaultFilters enables the format and size filters when no filters are configured.
func (c *Config) setDefaultFilters() {
	if c.Filters != nil {
		return
	}
	c.Filters = map[string]FilterConfig{
		FormatFilter:    {Enabled: true},
		SizeLimitFilter: {Enabled: true},
	}
}

// GetMessage returns the message for the given code.
func (c *Config) GetMessage(code string) string {
	switch code {
	case "no_files":
		return c.Messages.NoFiles
	case "too_many_files":
		return c.Messages.TooManyFiles
	case "unsupported_format":
		return c.Messages.UnsupportedFormat
	case "file_too_large":
		return c.Messages.FileTooLarge
	case "duration_limit_exceeded":
		return c.Messages.DurationLimitExceeded
	case "duplicate_track":
		return c.Messages.DuplicateTrack
	case "track_not_found":
		return c.Messages.TrackNotFound
	case "invalid_track":
		return c.Messages.InvalidTrack
	default:
		return c.Messages.DefaultError
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.HasProvider("spotify") {
		if c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "" {
			return errors.New("spotify provider requires spotify.client_id and spotify.client_secret")
		}
	}

	return nil
}

// HasProvider reports whether an enrichment provider of the given type is configured.
func (c *Config) HasProvider(providerType string) bool {
	return slices.ContainsFunc(c.Enrich.Providers, func(p ProviderConfig) bool {
		return p.Type == providerType
	})
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// GetFilterSettings returns the settings for a filter.
func (c *Config) GetFilterSettings(filterName string) map[string]any {
	if f, ok := c.Filters[filterName]; ok && f.Settings != nil {
		return f.Settings
	}
	return map[string]any{}
}
