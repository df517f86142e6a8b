// Package playback provides the playback engine that drives a single audio output.
package playback

// State represents the engine state.
type State int

const (
	StateIdle    State = iota // No source loaded
	StateStopped              // Source loaded, position at the start or ended
	StatePlaying              // Output is playing
	StatePaused               // Output is paused
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}
