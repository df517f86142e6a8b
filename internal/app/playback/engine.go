package playback

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lanplay/internal/app/notification"
)

// Errors
var (
	ErrPlayback       = errors.New("playback failed")
	ErrSeekOutOfRange = errors.New("seek position out of range")
)

const (
	DefaultTickInterval = 250 * time.Millisecond
	DefaultEndEpsilon   = 300 * time.Millisecond

	minEndEpsilon = 100 * time.Millisecond
	maxEndEpsilon = 500 * time.Millisecond
)

// Config holds engine configuration.
type Config struct {
	TickInterval time.Duration // Interval between output polls in Run
	EndEpsilon   time.Duration // Remaining time at which the end is synthesized
}

// Engine wraps one Output and turns its state into notifications.
// Listeners are invoked outside the engine lock, so they may call back into the engine.
type Engine struct {
	mu     sync.Mutex
	loadMu sync.Mutex // Serializes Load

	out    Output
	config Config

	source     string
	state      State
	generation uint64 // Incremented on every load; stale end callbacks are ignored

	durationAnnounced bool
	endFired          bool

	timeListeners     *notification.Registry[func(time.Duration)]
	durationListeners *notification.Registry[func(time.Duration)]
	endedListeners    *notification.Registry[func()]
}

// NewEngine creates an engine around out.
func NewEngine(out Output, config Config) *Engine {
	if config.TickInterval <= 0 {
		config.TickInterval = DefaultTickInterval
	}
	if config.EndEpsilon == 0 {
		config.EndEpsilon = DefaultEndEpsilon
	}
	if config.EndEpsilon < minEndEpsilon || config.EndEpsilon > maxEndEpsilon {
		zlog.Warn().Msgf("playback: end epsilon %v outside [%v, %v], using %v",
			config.EndEpsilon, minEndEpsilon, maxEndEpsilon, DefaultEndEpsilon)
		config.EndEpsilon = DefaultEndEpsilon
	}
	return &Engine{
		out:               out,
		config:            config,
		state:             StateIdle,
		timeListeners:     notification.NewRegistry[func(time.Duration)](),
		durationListeners: notification.NewRegistry[func(time.Duration)](),
		endedListeners:    notification.NewRegistry[func()](),
	}
}

// OnTimeUpdate subscribes to position updates.
func (e *Engine) OnTimeUpdate(fn func(time.Duration)) string {
	return e.timeListeners.Subscribe(fn)
}

// OnDurationKnown subscribes to the duration becoming known for the loaded source.
func (e *Engine) OnDurationKnown(fn func(time.Duration)) string {
	return e.durationListeners.Subscribe(fn)
}

// OnEnded subscribes to end-of-source signals. Duplicates are possible.
func (e *Engine) OnEnded(fn func()) string {
	return e.endedListeners.Subscribe(fn)
}

// Unsubscribe removes a listener registered with any On* method.
func (e *Engine) Unsubscribe(subscriptionID string) {
	if e.timeListeners.Unsubscribe(subscriptionID) {
		return
	}
	if e.durationListeners.Unsubscribe(subscriptionID) {
		return
	}
	e.endedListeners.Unsubscribe(subscriptionID)
}

// Load replaces the current source. Position resets to zero and playback does not start.
// The output fetches the source without the engine lock held, so readers are not blocked
// by a slow download. Loads run one at a time.
func (e *Engine) Load(ctx context.Context, source string) error {
	e.loadMu.Lock()
	defer e.loadMu.Unlock()

	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.durationAnnounced = false
	e.endFired = false
	e.out.Pause()
	e.source = ""
	e.state = StateIdle
	e.mu.Unlock()

	err := e.out.Load(ctx, source, func() { e.onNativeEnd(gen) })

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.generation {
		return errors.Mark(errors.Newf("load of %s superseded", source), ErrPlayback)
	}
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "failed to load %s", source), ErrPlayback)
	}

	e.source = source
	e.state = StateStopped
	zlog.Debug().Msgf("playback: loaded source=%s generation=%d", source, gen)
	return nil
}

// Play starts or resumes playback and returns once the output is playing.
func (e *Engine) Play(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.source == "" {
		return errors.Mark(errors.New("no source loaded"), ErrPlayback)
	}
	if e.state == StatePlaying {
		return nil
	}
	if err := e.out.Play(ctx); err != nil {
		e.state = StatePaused
		return errors.Mark(errors.Wrapf(err, "failed to play %s", e.source), ErrPlayback)
	}
	e.state = StatePlaying
	return nil
}

// Pause pauses playback.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.source == "" {
		return
	}
	e.out.Pause()
	if e.state == StatePlaying {
		e.state = StatePaused
	}
}

// Stop pauses playback and rewinds to the start.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.out.Pause()
	if e.source == "" {
		e.mu.Unlock()
		return
	}
	if err := e.out.Seek(0); err != nil {
		zlog.Warn().Msgf("playback: failed to rewind on stop: %v", err)
	}
	e.state = StateStopped
	e.endFired = false
	e.mu.Unlock()

	e.emitTime(0)
}

// Seek moves the playback position. pos must be within [0, Duration()].
func (e *Engine) Seek(pos time.Duration) error {
	e.mu.Lock()
	if e.source == "" {
		e.mu.Unlock()
		return errors.Mark(errors.New("no source loaded"), ErrPlayback)
	}
	dur := e.out.Duration()
	if pos < 0 || pos > dur {
		e.mu.Unlock()
		return errors.Mark(errors.Newf("seek to %v outside [0, %v]", pos, dur), ErrSeekOutOfRange)
	}
	if err := e.out.Seek(pos); err != nil {
		e.mu.Unlock()
		return errors.Mark(errors.Wrap(err, "failed to seek"), ErrPlayback)
	}
	e.endFired = false
	e.mu.Unlock()

	e.emitTime(pos)
	return nil
}

// CurrentTime returns the playback position.
func (e *Engine) CurrentTime() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.source == "" {
		return 0
	}
	return e.out.Position()
}

// Duration returns the duration of the loaded source, or zero when unknown.
func (e *Engine) Duration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.source == "" {
		return 0
	}
	return e.out.Duration()
}

// State returns the engine state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Source returns the loaded source, or an empty string.
func (e *Engine) Source() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.source
}

// Tick polls the output once and emits notifications.
func (e *Engine) Tick() {
	e.mu.Lock()
	if e.source == "" {
		e.mu.Unlock()
		return
	}
	pos := e.out.Position()
	dur := e.out.Duration()
	playing := e.state == StatePlaying

	announce := false
	if !e.durationAnnounced && dur > 0 {
		e.durationAnnounced = true
		announce = true
	}
	ended := false
	if playing && dur > 0 && !e.endFired && dur-pos <= e.config.EndEpsilon {
		e.endFired = true
		ended = true
	}
	e.mu.Unlock()

	if announce {
		e.durationListeners.Each(func(fn func(time.Duration)) { fn(dur) })
	}
	if playing {
		e.emitTime(pos)
	}
	if ended {
		zlog.Debug().Msgf("playback: synthesized end: position=%v duration=%v", pos, dur)
		e.emitEnded()
	}
}

// Run calls Tick every TickInterval until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick()
		}
	}
}

// Close releases the output and drops all listeners.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.generation++
	e.source = ""
	e.state = StateIdle
	e.timeListeners.Close()
	e.durationListeners.Close()
	e.endedListeners.Close()
	return e.out.Close()
}

func (e *Engine) onNativeEnd(gen uint64) {
	e.mu.Lock()
	if gen != e.generation {
		e.mu.Unlock()
		zlog.Debug().Msgf("playback: ignoring stale end: generation=%d", gen)
		return
	}
	e.state = StateStopped
	e.endFired = true
	e.mu.Unlock()

	e.emitEnded()
}

func (e *Engine) emitTime(pos time.Duration) {
	e.timeListeners.Each(func(fn func(time.Duration)) { fn(pos) })
}

func (e *Engine) emitEnded() {
	e.endedListeners.Each(func(fn func()) { fn() })
}
