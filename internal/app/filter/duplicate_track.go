package filter

import (
	"context"
	"regexp"
	"strings"

	"github.com/osa030/lanplay/internal/domain/track"
)

// Library gives filters read access to the stored tracks.
type Library interface {
	ListAll() []track.Track
}

// DuplicateTrackFilter rejects uploads that are already in the library.
// Detects:
// - Same normalized title and same artist (remasters, radio edits)
// Excludes:
// - Cover songs (same title but different artist)
// - Uploads whose artist is unknown
type DuplicateTrackFilter struct {
	library Library
}

// NewDuplicateTrackFilter creates a new duplicate track filter.
func NewDuplicateTrackFilter(library Library) *DuplicateTrackFilter {
	return &DuplicateTrackFilter{
		library: library,
	}
}

// Name returns the filter name.
func (f *DuplicateTrackFilter) Name() string {
	return "duplicate_track_filter"
}

// Description returns the filter description.
func (f *DuplicateTrackFilter) Description() string {
	return "Rejects songs already in the library, including remasters; covers are allowed"
}

// ReturnCodes returns possible return codes.
func (f *DuplicateTrackFilter) ReturnCodes() []string {
	return []string{"duplicate_track"}
}

// AppliesTo returns true once tags have been parsed.
func (f *DuplicateTrackFilter) AppliesTo(stage Stage) bool {
	return stage == StageParsed
}

// ValidateConfig validates the filter configuration.
func (f *DuplicateTrackFilter) ValidateConfig(config map[string]any) error {
	// No configuration needed
	return nil
}

// Check checks if the upload duplicates a stored track.
func (f *DuplicateTrackFilter) Check(ctx context.Context, u Upload) Result {
	if f.library == nil || u.Artist == "" || strings.EqualFold(u.Artist, track.DefaultArtist) {
		return Accept()
	}

	title := normalizeTrackName(u.Title)
	for _, stored := range f.library.ListAll() {
		if !strings.EqualFold(stored.Artist, u.Artist) {
			continue
		}
		if normalizeTrackName(stored.Title) == title {
			return Reject("duplicate_track")
		}
	}

	return Accept()
}

var (
	remasterPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*-?\s*\d{4}\s+remaster(ed)?`),      // "- 2011 Remaster"
		regexp.MustCompile(`\s*\(remaster(ed)?\s*\d{0,4}\)`),     // "(Remastered 2023)"
		regexp.MustCompile(`\s*\[remaster(ed)?\s*\d{0,4}\]`),     // "[Remastered]"
		regexp.MustCompile(`\s*-?\s*remaster(ed)?(\s+version)?`), // "- Remastered"
		regexp.MustCompile(`\s*\(.*?remaster.*?\)`),              // "(Any Remaster text)"
		regexp.MustCompile(`\s*\[.*?remaster.*?\]`),              // "[Any Remaster text]"
	}
	versionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*\(.*?version\)`),        // "(Single Version)"
		regexp.MustCompile(`\s*\(.*?edit\)`),           // "(Radio Edit)"
		regexp.MustCompile(`\s*\(live\)`),              // "(Live)"
		regexp.MustCompile(`\s*-\s*live$`),             // "- Live"
		regexp.MustCompile(`\s*-?\s*radio\s+edit`),     // "- Radio Edit"
		regexp.MustCompile(`\s*-?\s*single\s+version`), // "- Single Version"
	}
	whitespace = regexp.MustCompile(`\s+`)
)

// normalizeTrackName lowercases a title and strips remaster and version suffixes.
func normalizeTrackName(name string) string {
	normalized := strings.ToLower(name)

	for _, pattern := range remasterPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}
	for _, pattern := range versionPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}

	normalized = whitespace.ReplaceAllString(strings.TrimSpace(normalized), " ")
	return strings.TrimRight(normalized, " -")
}
