package library

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lanplay/internal/domain/track"
)

// DefaultPruneDelay coalesces bursts of removals into one prune.
const DefaultPruneDelay = 200 * time.Millisecond

// Watcher prunes the store when backing files disappear from its directory.
type Watcher struct {
	store   *Store
	watcher *fsnotify.Watcher
	delay   time.Duration

	onPrune func([]track.Track) // Optional, called after records were dropped

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher starts watching the store directory. Call Run to process events.
func NewWatcher(store *Store, onPrune func([]track.Track)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create watcher")
	}
	if err := w.Add(store.Dir()); err != nil {
		_ = w.Close()
		return nil, errors.Wrapf(err, "failed to watch %s", store.Dir())
	}
	return &Watcher{
		store:   store,
		watcher: w,
		delay:   DefaultPruneDelay,
		onPrune: onPrune,
	}, nil
}

// Run processes filesystem events until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	zlog.Info().Msgf("library: watching %s", w.store.Dir())
	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				w.stopTimer()
				return
			}
			if w.relevant(event) {
				zlog.Debug().Msgf("library: %s %s", event.Op, event.Name)
				w.schedulePrune()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				w.stopTimer()
				return
			}
			zlog.Warn().Msgf("library: watcher error: %v", err)
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.stopTimer()
	return w.watcher.Close()
}

// relevant reports whether event may have removed a backing file.
// Sidecar rewrites and temp files are ignored.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Base(event.Name)
	if event.Name == w.store.SidecarPath() || strings.HasPrefix(name, ".") {
		return false
	}
	return true
}

func (w *Watcher) schedulePrune() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.delay, w.prune)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *Watcher) prune() {
	dropped := w.store.Prune()
	if len(dropped) > 0 && w.onPrune != nil {
		w.onPrune(dropped)
	}
}
