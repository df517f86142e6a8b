package playlist

// RepeatMode controls what happens at the end of a track.
type RepeatMode int

const (
	RepeatNone RepeatMode = iota // Advance to the next track
	RepeatAll                    // Advance to the next track, wrapping at the end
	RepeatOne                    // Restart the current track
)

// String returns the string representation of the repeat mode.
func (m RepeatMode) String() string {
	switch m {
	case RepeatNone:
		return "none"
	case RepeatAll:
		return "all"
	case RepeatOne:
		return "one"
	default:
		return "unknown"
	}
}

// Next returns the mode that follows m in the none -> all -> one cycle.
func (m RepeatMode) Next() RepeatMode {
	switch m {
	case RepeatNone:
		return RepeatAll
	case RepeatAll:
		return RepeatOne
	default:
		return RepeatNone
	}
}

// ParseRepeatMode parses the string form of a repeat mode.
func ParseRepeatMode(s string) (RepeatMode, bool) {
	switch s {
	case "none":
		return RepeatNone, true
	case "all":
		return RepeatAll, true
	case "one":
		return RepeatOne, true
	default:
		return RepeatNone, false
	}
}
