// Package track provides the Track domain entity.
package track

import (
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// DefaultArtist is stored when an upload carries no artist information.
const DefaultArtist = "Unknown"

// Format is the lowercase file-extension tag of a stored track.
type Format string

const (
	FormatMP3  Format = "mp3"
	FormatM4A  Format = "m4a"
	FormatWAV  Format = "wav"
	FormatFLAC Format = "flac"
)

// Formats returns every supported format.
func Formats() []Format {
	return []Format{FormatMP3, FormatM4A, FormatWAV, FormatFLAC}
}

// ParseFormat maps a file extension (with or without the dot, any case) to a Format.
// "mp4" is accepted as an alias of m4a.
func ParseFormat(ext string) (Format, bool) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	switch ext {
	case "mp3":
		return FormatMP3, true
	case "m4a", "mp4":
		return FormatM4A, true
	case "wav":
		return FormatWAV, true
	case "flac":
		return FormatFLAC, true
	default:
		return "", false
	}
}

// FormatOf returns the Format of a file name or URL path.
func FormatOf(name string) (Format, bool) {
	return ParseFormat(filepath.Ext(name))
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatMP3:
		return "audio/mpeg"
	case FormatM4A:
		return "audio/mp4"
	case FormatWAV:
		return "audio/wav"
	case FormatFLAC:
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}

// Track represents a stored audio file and its display metadata.
type Track struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Duration int    `json:"duration"` // whole seconds, 0 if unknown
	Format   Format `json:"format"`
	Path     string `json:"path"`     // absolute location of the backing file
	Filename string `json:"filename"` // original upload name
}

// Draft is the input for creating a Track. The store assigns the ID.
type Draft struct {
	Title    string `validate:"required"`
	Artist   string
	Duration int    `validate:"gte=0"`
	Format   Format `validate:"required,oneof=mp3 m4a wav flac"`
	Path     string `validate:"required"`
	Filename string
}

// Length returns the track duration as a time.Duration.
func (t Track) Length() time.Duration {
	return time.Duration(t.Duration) * time.Second
}

// StoredName returns the base name of the backing file.
func (t Track) StoredName() string {
	return filepath.Base(t.Path)
}

// AudioURL builds the source reference the player loads for t.
func AudioURL(baseURL string, t Track) string {
	return strings.TrimRight(baseURL, "/") + "/api/audio/" + url.PathEscape(t.StoredName())
}

// TitleFromFilename strips directory and extension from an upload name.
func TitleFromFilename(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
