package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"

	"github.com/osa030/lanplay/internal/domain/track"
	"github.com/osa030/lanplay/internal/infra/apiclient"
)

func TestFormatLength(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "-"},
		{5 * time.Second, "0:05"},
		{3*time.Minute + 7*time.Second, "3:07"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatLength(tt.in), tt.in.String())
	}
}

func TestRenderSongs(t *testing.T) {
	var buf bytes.Buffer
	renderSongs(&buf, []track.Track{
		{ID: 1, Title: "Believe", Artist: "Cher", Duration: 240, Format: track.FormatMP3, Filename: "believe.mp3"},
		{ID: 12, Title: "Demo", Artist: "Unknown", Format: track.FormatWAV, Filename: "demo.wav"},
	})

	out := buf.String()
	for _, want := range []string{"ID", "TITLE", "Believe", "Cher", "4:00", "believe.mp3", "12", "Demo", "2 SONGS"} {
		assert.Contains(t, out, want)
	}
}

func TestDescribeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "api error with code",
			err:  errors.Wrap(&apiclient.APIError{Status: 400, Code: "file_too_large", Message: "too big"}, "upload failed"),
			want: "too big [file_too_large]",
		},
		{
			name: "api error without code",
			err:  &apiclient.APIError{Status: 500, Message: "boom"},
			want: "boom",
		},
		{
			name: "transport error",
			err:  errors.New("connection refused"),
			want: "connection refused",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, describeError(tt.err))
		})
	}
}
