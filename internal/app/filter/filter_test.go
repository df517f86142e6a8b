package filter

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/lanplay/internal/domain/track"
	"github.com/osa030/lanplay/internal/infra/config"
)

func TestFormatFilter_Check(t *testing.T) {
	tests := []struct {
		name         string
		allowed      []track.Format
		filename     string
		contentType  string
		wantAccepted bool
	}{
		{name: "mp3", filename: "song.mp3", contentType: "audio/mpeg", wantAccepted: true},
		{name: "m4a as video/mp4", filename: "song.m4a", contentType: "video/mp4", wantAccepted: true},
		{name: "mp4 extension", filename: "song.MP4", contentType: "audio/mp4", wantAccepted: true},
		{name: "flac without type", filename: "song.flac", wantAccepted: true},
		{name: "wav octet stream", filename: "song.wav", contentType: "application/octet-stream", wantAccepted: true},
		{name: "ogg", filename: "song.ogg", contentType: "audio/ogg", wantAccepted: false},
		{name: "no extension", filename: "song", contentType: "audio/mpeg", wantAccepted: false},
		{name: "image disguised as mp3", filename: "cover.mp3", contentType: "image/png", wantAccepted: false},
		{name: "malformed type", filename: "song.mp3", contentType: "audio/", wantAccepted: false},
		{name: "restricted to mp3", allowed: []track.Format{track.FormatMP3}, filename: "song.flac", wantAccepted: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFormatFilter(tt.allowed...)

			result := f.Check(context.Background(), Upload{Filename: tt.filename, ContentType: tt.contentType})

			assert.Equal(t, tt.wantAccepted, result.Accepted)
			if !tt.wantAccepted {
				assert.Equal(t, "unsupported_format", result.Code)
			}
		})
	}
}

func TestFormatFilter_ValidateConfig(t *testing.T) {
	f := &FormatFilter{}
	require.NoError(t, f.ValidateConfig(map[string]any{}))
	assert.ElementsMatch(t, track.Formats(), f.allowed)

	require.NoError(t, f.ValidateConfig(map[string]any{"formats": []any{"mp3", "flac"}}))
	assert.Equal(t, []track.Format{track.FormatMP3, track.FormatFLAC}, f.allowed)

	assert.Error(t, f.ValidateConfig(map[string]any{"formats": []any{"ogg"}}))
}

func TestSizeLimitFilter_Check(t *testing.T) {
	f := NewSizeLimitFilter(50)

	assert.True(t, f.Check(context.Background(), Upload{Size: 50 << 20}).Accepted)

	result := f.Check(context.Background(), Upload{Size: 50<<20 + 1})
	assert.False(t, result.Accepted)
	assert.Equal(t, "file_too_large", result.Code)

	assert.True(t, (&SizeLimitFilter{}).Check(context.Background(), Upload{Size: 1 << 40}).Accepted)
}

func TestSizeLimitFilter_ValidateConfig(t *testing.T) {
	f := &SizeLimitFilter{}
	require.NoError(t, f.ValidateConfig(map[string]any{}))
	assert.Equal(t, int64(50<<20), f.MaxBytes())

	require.NoError(t, f.ValidateConfig(map[string]any{"max_mb": 5}))
	assert.Equal(t, int64(5<<20), f.MaxBytes())

	assert.Error(t, f.ValidateConfig(map[string]any{"max_mb": -3}))
}

func TestFilters_AppliesTo(t *testing.T) {
	tests := []struct {
		filter   Filter
		received bool
		parsed   bool
	}{
		{&FormatFilter{}, true, false},
		{&SizeLimitFilter{}, true, false},
		{&DurationLimitFilter{}, false, true},
		{&DuplicateTrackFilter{}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.filter.Name(), func(t *testing.T) {
			assert.Equal(t, tt.received, tt.filter.AppliesTo(StageReceived))
			assert.Equal(t, tt.parsed, tt.filter.AppliesTo(StageParsed))
			assert.NotEmpty(t, tt.filter.Description())
			assert.NotEmpty(t, tt.filter.ReturnCodes())
		})
	}
}

type stubFilter struct {
	name   string
	stage  Stage
	result Result
	calls  int
}

func (s *stubFilter) Name() string                       { return s.name }
func (s *stubFilter) Description() string                { return "stub" }
func (s *stubFilter) ReturnCodes() []string              { return []string{s.result.Code} }
func (s *stubFilter) ValidateConfig(map[string]any) error { return nil }
func (s *stubFilter) AppliesTo(stage Stage) bool         { return stage == s.stage }
func (s *stubFilter) Check(context.Context, Upload) Result {
	s.calls++
	return s.result
}

func TestChain_Execute(t *testing.T) {
	first := &stubFilter{name: "first", stage: StageReceived, result: Reject("first_code")}
	second := &stubFilter{name: "second", stage: StageReceived, result: Accept()}
	parsed := &stubFilter{name: "parsed", stage: StageParsed, result: Accept()}

	chain := NewChain()
	chain.Add(parsed)
	chain.Add(first)
	chain.Add(second)

	result := chain.Execute(context.Background(), Upload{Filename: "a.mp3"}, StageReceived)

	assert.False(t, result.Accepted)
	assert.Equal(t, "first_code", result.Code)
	assert.Equal(t, 0, parsed.calls)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 0, second.calls, "chain stops at the first rejection")

	assert.True(t, chain.Execute(context.Background(), Upload{}, StageParsed).Accepted)
	assert.Equal(t, 1, parsed.calls)
}

func TestChain_MaxFileBytes(t *testing.T) {
	chain := NewChain()
	assert.Zero(t, chain.MaxFileBytes())

	chain.Add(NewFormatFilter())
	chain.Add(NewSizeLimitFilter(5))
	chain.Add(&SizeLimitFilter{})
	chain.Add(NewSizeLimitFilter(2))
	assert.Equal(t, int64(2<<20), chain.MaxFileBytes())
}

func TestResult_Err(t *testing.T) {
	assert.NoError(t, Accept().Err("a.mp3"))

	err := Reject("file_too_large").Err("a.mp3")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRejected))
	assert.Equal(t, "file_too_large", Code(err))
	assert.Equal(t, "file_too_large", Code(errors.Wrap(err, "upload failed")))
	assert.Contains(t, err.Error(), "a.mp3")
	assert.Empty(t, Code(errors.New("other")))
}

func TestNewChainFromConfig(t *testing.T) {
	cfg := &config.Config{Filters: map[string]config.FilterConfig{
		config.FormatFilter:        {Enabled: true},
		config.SizeLimitFilter:     {Enabled: true, Settings: map[string]any{"max_mb": 1}},
		config.DurationLimitFilter: {Enabled: false},
		config.DuplicateFilter:     {Enabled: true},
	}}

	chain, err := NewChainFromConfig(cfg, &mockLibrary{})
	require.NoError(t, err)

	names := make([]string, 0)
	for _, f := range chain.Filters() {
		names = append(names, f.Name())
	}
	assert.Equal(t, []string{"format_filter", "size_limit_filter", "duplicate_track_filter"}, names)

	result := chain.Execute(context.Background(), Upload{Filename: "a.mp3", Size: 2 << 20}, StageReceived)
	assert.Equal(t, "file_too_large", result.Code)
}

func TestNewChainFromConfig_InvalidSettings(t *testing.T) {
	cfg := &config.Config{Filters: map[string]config.FilterConfig{
		config.DurationLimitFilter: {Enabled: true, Settings: map[string]any{"min_minutes": 9, "max_minutes": 2}},
	}}

	_, err := NewChainFromConfig(cfg, nil)
	assert.Error(t, err)
}
