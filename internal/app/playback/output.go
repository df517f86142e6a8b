package playback

import (
	"context"
	"time"
)

// Output is a single audio output primitive.
//
// onEnded passed to Load is invoked when the loaded source plays to its natural end.
// It may be called from any goroutine but must not be called while the output holds
// its own locks.
type Output interface {
	Load(ctx context.Context, source string, onEnded func()) error
	Play(ctx context.Context) error
	Pause()
	Seek(pos time.Duration) error
	Position() time.Duration
	Duration() time.Duration
	Close() error
}
