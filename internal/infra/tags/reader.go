// Package tags reads display metadata and duration from audio files.
package tags

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dhowden/tag"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lanplay/internal/domain/track"
)

// ErrUnsupportedFormat is returned when no decoder exists for a format.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Metadata is what could be read from an audio file. Empty fields are unknown.
type Metadata struct {
	Title    string
	Artist   string
	Album    string
	Duration time.Duration
}

// Reader reads tags and duration from audio files.
type Reader struct{}

// NewReader creates a new Reader.
func NewReader() *Reader {
	return &Reader{}
}

// Read returns the metadata of the file at path.
// Missing tags or an undecodable stream are not errors; the fields stay empty.
func (r *Reader) Read(path string, format track.Format) (Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return Metadata{}, errors.Wrap(err, "failed to open audio file")
	}
	defer f.Close()

	var md Metadata
	m, err := tag.ReadFrom(f)
	switch {
	case err == nil:
		md.Title = strings.TrimSpace(m.Title())
		md.Artist = strings.TrimSpace(m.Artist())
		md.Album = strings.TrimSpace(m.Album())
	case errors.Is(err, tag.ErrNoTagsFound):
		zlog.Debug().Msgf("tags: no tags in %s", path)
	default:
		zlog.Debug().Msgf("tags: failed to read tags from %s: %v", path, err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return md, errors.Wrap(err, "failed to rewind audio file")
	}

	d, err := Duration(f, format)
	if err != nil {
		zlog.Debug().Msgf("tags: no duration for %s: %v", path, err)
		return md, nil
	}
	md.Duration = d
	return md, nil
}

// Duration decodes r far enough to report its length.
func Duration(r io.ReadSeeker, format track.Format) (time.Duration, error) {
	streamer, f, err := Decode(NopCloser(r), format)
	if err != nil {
		return 0, err
	}
	defer streamer.Close()
	if streamer.Len() <= 0 {
		return 0, errors.New("stream length unknown")
	}
	return f.SampleRate.D(streamer.Len()), nil
}

type nopCloser struct {
	io.ReadSeeker
}

func (nopCloser) Close() error { return nil }

// NopCloser wraps rs so decoders can still seek it while Close does nothing.
func NopCloser(rs io.ReadSeeker) io.ReadSeekCloser {
	return nopCloser{rs}
}

// Decode returns a seekable PCM stream for rc. Closing the stream closes rc.
func Decode(rc io.ReadCloser, format track.Format) (beep.StreamSeekCloser, beep.Format, error) {
	var (
		streamer beep.StreamSeekCloser
		f        beep.Format
		err      error
	)
	switch format {
	case track.FormatMP3:
		streamer, f, err = mp3.Decode(rc)
	case track.FormatWAV:
		streamer, f, err = wav.Decode(rc)
	case track.FormatFLAC:
		streamer, f, err = flac.Decode(rc)
	default:
		return nil, beep.Format{}, errors.Mark(errors.Newf("no decoder for %q", format), ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, beep.Format{}, errors.Wrapf(err, "failed to decode %s", format)
	}
	return streamer, f, nil
}
