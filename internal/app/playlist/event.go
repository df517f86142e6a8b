package playlist

import "github.com/osa030/lanplay/internal/domain/track"

// EventType represents a controller event type.
type EventType int

const (
	EventTrackChanged   EventType = iota // Current track changed
	EventStateChanged                    // Playing flag changed
	EventModeChanged                     // Shuffle or repeat mode changed
	EventPlaybackFailed                  // Load or play failed
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackChanged:
		return "track_changed"
	case EventStateChanged:
		return "state_changed"
	case EventModeChanged:
		return "mode_changed"
	case EventPlaybackFailed:
		return "playback_failed"
	default:
		return "unknown"
	}
}

// Event represents a controller event.
type Event struct {
	Type    EventType
	Track   *track.Track // Current track (nil when the list is empty)
	Playing bool
	Shuffle bool
	Repeat  RepeatMode
	Err     error // Set for EventPlaybackFailed
}
