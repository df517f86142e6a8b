package filter

import (
	"context"
	"mime"
	"strings"

	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/lanplay/internal/domain/track"
)

// FormatConfig represents the configuration for FormatFilter.
type FormatConfig struct {
	Formats []string `mapstructure:"formats" default:"[\"mp3\",\"m4a\",\"wav\",\"flac\"]" validate:"min=1,dive,oneof=mp3 m4a wav flac"`
}

// FormatFilter accepts only supported audio formats, checked by extension and MIME type.
type FormatFilter struct {
	allowed []track.Format
}

// NewFormatFilter creates a format filter that allows the given formats.
func NewFormatFilter(formats ...track.Format) *FormatFilter {
	return &FormatFilter{allowed: formats}
}

func (f *FormatFilter) Name() string {
	return "format_filter"
}

func (f *FormatFilter) Description() string {
	return "Accepts only mp3, m4a, wav and flac uploads"
}

func (f *FormatFilter) ReturnCodes() []string {
	return []string{"unsupported_format"}
}

func (f *FormatFilter) ValidateConfig(settings map[string]any) error {
	var config FormatConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	f.allowed = lo.Map(config.Formats, func(s string, _ int) track.Format {
		return track.Format(s)
	})
	zlog.Info().Msgf("format filter config: %+v", config)
	return nil
}

func (f *FormatFilter) AppliesTo(stage Stage) bool {
	return stage == StageReceived
}

func (f *FormatFilter) Check(ctx context.Context, u Upload) Result {
	allowed := f.allowed
	if len(allowed) == 0 {
		allowed = track.Formats()
	}

	format, ok := track.FormatOf(u.Filename)
	if !ok || !lo.Contains(allowed, format) {
		return Reject("unsupported_format")
	}
	if !audioMIME(u.ContentType) {
		return Reject("unsupported_format")
	}
	return Accept()
}

// audioMIME reports whether a client-declared content type is acceptable for audio.
// Missing or generic types are accepted and the extension decides.
func audioMIME(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	switch {
	case mediaType == "application/octet-stream":
		return true
	case strings.HasPrefix(mediaType, "audio/"):
		return true
	case mediaType == "video/mp4":
		return true
	default:
		return false
	}
}

func init() {
	Register("format_filter", func() Filter {
		return &FormatFilter{}
	})
}
