//go:build (linux && cgo) || windows || darwin

package speaker

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lanplay/internal/infra/tags"
)

// Available indicates whether audio playback is supported in this build.
const Available = true

// session is one loaded source.
type session struct {
	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	finished atomic.Bool
	onEnded  func()
}

// Output plays audio through the system speaker using beep.
type Output struct {
	mu sync.Mutex

	client      *http.Client
	sampleRate  beep.SampleRate
	initialized bool
	current     *session
}

// New creates a speaker output. The speaker is initialized on first load.
func New(client *http.Client) *Output {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Output{
		client:     client,
		sampleRate: beep.SampleRate(44100),
	}
}

// Load fetches and decodes source. Playback starts paused.
func (o *Output) Load(ctx context.Context, source string, onEnded func()) error {
	data, format, err := fetch(ctx, o.client, source)
	if err != nil {
		return err
	}
	streamer, f, err := tags.Decode(tags.NopCloser(data), format)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.stopLocked()

	if !o.initialized {
		if err := speaker.Init(o.sampleRate, o.sampleRate.N(time.Second/10)); err != nil {
			streamer.Close()
			return errors.Wrap(err, "failed to initialize speaker")
		}
		o.initialized = true
	}

	o.current = &session{streamer: streamer, format: f, onEnded: onEnded}
	o.queueLocked(o.current, true)
	zlog.Debug().Msgf("speaker: loaded %s (%v, %d Hz)", source, f.SampleRate.D(streamer.Len()), f.SampleRate)
	return nil
}

// queueLocked hands s to the speaker mixer.
// Must be called with lock held.
func (o *Output) queueLocked(s *session, paused bool) {
	s.finished.Store(false)
	resampled := beep.Resample(4, s.format.SampleRate, o.sampleRate, s.streamer)
	s.ctrl = &beep.Ctrl{Streamer: resampled, Paused: paused}
	speaker.Play(beep.Seq(s.ctrl, beep.Callback(func() {
		s.finished.Store(true)
		if s.onEnded != nil {
			// Run callback in separate goroutine; it may call back into the output
			go s.onEnded()
		}
	})))
}

// Play resumes playback. A source that already finished is queued again.
func (o *Output) Play(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := o.current
	if s == nil {
		return errors.New("no source loaded")
	}
	if s.finished.Load() {
		speaker.Lock()
		err := s.streamer.Seek(0)
		speaker.Unlock()
		if err != nil {
			return errors.Wrap(err, "failed to rewind")
		}
		o.queueLocked(s, false)
		return nil
	}

	speaker.Lock()
	s.ctrl.Paused = false
	speaker.Unlock()
	return nil
}

// Pause pauses playback.
func (o *Output) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current != nil && o.current.ctrl != nil {
		speaker.Lock()
		o.current.ctrl.Paused = true
		speaker.Unlock()
	}
}

// Seek sets the playback position.
func (o *Output) Seek(pos time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := o.current
	if s == nil {
		return nil
	}

	speaker.Lock()
	defer speaker.Unlock()

	n := s.format.SampleRate.N(pos)
	if last := s.streamer.Len() - 1; n > last {
		n = max(last, 0)
	}
	return s.streamer.Seek(n)
}

// Position returns the current playback position.
func (o *Output) Position() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := o.current
	if s == nil {
		return 0
	}
	if s.finished.Load() {
		return s.format.SampleRate.D(s.streamer.Len())
	}

	speaker.Lock()
	pos := s.streamer.Position()
	speaker.Unlock()
	return s.format.SampleRate.D(pos)
}

// Duration returns the total duration of the loaded source.
func (o *Output) Duration() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current == nil {
		return 0
	}
	return o.current.format.SampleRate.D(o.current.streamer.Len())
}

// Close stops playback and releases the speaker.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.stopLocked()
	if o.initialized {
		speaker.Close()
		o.initialized = false
	}
	return nil
}

// stopLocked removes the current source from the mixer.
// Must be called with lock held.
func (o *Output) stopLocked() {
	if o.initialized {
		speaker.Clear()
	}
	if o.current != nil {
		o.current.streamer.Close()
		o.current = nil
	}
}
