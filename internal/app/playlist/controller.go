// Package playlist provides the playlist controller that decides what plays next.
package playlist

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	plist "github.com/osa030/lanplay/internal/domain/playlist"
	"github.com/osa030/lanplay/internal/domain/track"
)

// Errors
var (
	ErrTrackNotInPlaylist = errors.New("track is not in the playlist")
)

const (
	DefaultEndDebounce      = time.Second
	DefaultRestartThreshold = 3 * time.Second
)

// Player is the playback surface the controller drives.
type Player interface {
	Load(ctx context.Context, source string) error
	Play(ctx context.Context) error
	Pause()
	Stop()
	Seek(pos time.Duration) error
	CurrentTime() time.Duration
	Duration() time.Duration
	OnTimeUpdate(fn func(time.Duration)) string
	OnEnded(fn func()) string
	Unsubscribe(subscriptionID string)
}

// Config holds controller configuration.
type Config struct {
	BaseURL          string           // Server base URL used to build audio sources
	EndDebounce      time.Duration    // End signals within this window of the last handled end are ignored
	RestartThreshold time.Duration    // Previous restarts the track when elapsed time exceeds this
	Now              func() time.Time // Clock used for end debouncing
	Rand             *rand.Rand       // Source for shuffle permutations
}

// Snapshot is a point-in-time view of the controller state.
type Snapshot struct {
	Index    int
	Track    *track.Track
	Playing  bool
	Shuffle  bool
	Repeat   RepeatMode
	Position time.Duration
	Duration time.Duration
	Tracks   []track.Track // Active sequence
	Total    time.Duration // Sum of the known track durations
}

// Controller owns the working set and transport state.
// Lock order is loadMu, then mu, then the player. Sources are fetched with only loadMu
// held, so state reads are not blocked by a slow download.
type Controller struct {
	mu     sync.Mutex
	loadMu sync.Mutex // Serializes source loads; taken before mu, never while holding it

	player Player
	config Config

	base     *plist.Playlist
	shuffled *plist.Playlist

	index   int
	current *track.Track
	playing bool
	loaded  bool
	loadGen uint64 // Incremented on every selection; superseded loads are dropped
	shuffle bool
	repeat  RepeatMode

	position atomic.Int64 // Mirrors the player position
	lastEnd  time.Time

	subscriptions []string

	eventCh chan Event
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewController creates a controller driving player.
func NewController(player Player, config Config) *Controller {
	if config.EndDebounce <= 0 {
		config.EndDebounce = DefaultEndDebounce
	}
	if config.RestartThreshold <= 0 {
		config.RestartThreshold = DefaultRestartThreshold
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Rand == nil {
		config.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		player:   player,
		config:   config,
		base:     plist.New(nil),
		shuffled: plist.New(nil),
		index:    -1,
		repeat:   RepeatNone,
		eventCh:  make(chan Event, 32),
		ctx:      ctx,
		cancel:   cancel,
	}

	c.subscriptions = append(c.subscriptions,
		player.OnTimeUpdate(func(pos time.Duration) {
			c.position.Store(int64(pos))
		}),
		player.OnEnded(c.onEnded),
	)
	return c
}

// Events returns the event channel.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// pendingLoad is a selection whose source still has to be loaded.
type pendingLoad struct {
	gen   uint64
	track track.Track
}

// SetTracks replaces the base list. An unchanged list keeps the shuffle order and
// only refreshes the track records.
func (c *Controller) SetTracks(ctx context.Context, tracks []track.Track) {
	c.mu.Lock()
	p := c.setTracksLocked(tracks)
	c.mu.Unlock()

	// A load failure here is already published as an event.
	_ = c.load(ctx, p)
}

func (c *Controller) setTracksLocked(tracks []track.Track) *pendingLoad {
	base := plist.New(tracks)
	if base.SameOrder(c.base) {
		c.shuffled = c.shuffled.Refreshed(base)
	} else {
		c.shuffled = base.Shuffled(c.config.Rand)
	}
	c.base = base
	active := c.activeLocked()

	if c.current == nil {
		c.index = -1
		return nil
	}

	if idx := active.IndexOf(c.current.ID); idx >= 0 {
		t, _ := active.At(idx)
		c.index = idx
		c.current = &t
		return nil
	}

	zlog.Info().Msgf("playlist: current track %d removed from library", c.current.ID)
	wasPlaying := c.playing
	c.playing = false
	c.player.Stop()
	c.position.Store(0)

	var p *pendingLoad
	if first, ok := c.base.At(0); ok {
		p = c.selectLocked(active.IndexOf(first.ID))
	} else {
		c.index = -1
		c.current = nil
		c.loaded = false
		c.loadGen++
		c.sendEventLocked(EventTrackChanged)
	}
	if wasPlaying {
		c.sendEventLocked(EventStateChanged)
	}
	return p
}

// Play starts playing t from the active sequence.
func (c *Controller) Play(ctx context.Context, t track.Track) error {
	c.mu.Lock()
	idx := c.activeLocked().IndexOf(t.ID)
	if idx < 0 {
		c.mu.Unlock()
		return errors.Wrapf(ErrTrackNotInPlaylist, "track %d", t.ID)
	}
	c.playing = true
	p := c.selectLocked(idx)
	c.mu.Unlock()

	return c.load(ctx, p)
}

// TogglePlay pauses or resumes playback. With no current track it starts the first one.
func (c *Controller) TogglePlay(ctx context.Context) error {
	c.mu.Lock()
	p, err := c.togglePlayLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.load(ctx, p)
}

func (c *Controller) togglePlayLocked(ctx context.Context) (*pendingLoad, error) {
	if c.current == nil {
		if c.activeLocked().Len() == 0 {
			return nil, nil
		}
		c.playing = true
		return c.selectLocked(0), nil
	}

	if c.playing {
		c.playing = false
		c.player.Pause()
		c.sendEventLocked(EventStateChanged)
		return nil, nil
	}

	c.playing = true
	if !c.loaded {
		return c.selectLocked(c.index), nil
	}
	if err := c.player.Play(ctx); err != nil {
		return nil, c.failLocked(err)
	}
	c.sendEventLocked(EventStateChanged)
	return nil, nil
}

// Next advances to the next track of the active sequence, wrapping at the end.
func (c *Controller) Next(ctx context.Context) error {
	c.mu.Lock()
	p := c.nextLocked()
	c.mu.Unlock()

	return c.load(ctx, p)
}

// Previous restarts the current track when past the restart threshold,
// otherwise moves to the previous track, wrapping to the last.
func (c *Controller) Previous(ctx context.Context) error {
	c.mu.Lock()
	p, err := c.previousLocked()
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.load(ctx, p)
}

func (c *Controller) previousLocked() (*pendingLoad, error) {
	n := c.activeLocked().Len()
	if n == 0 {
		return nil, nil
	}

	if c.current != nil && c.player.CurrentTime() > c.config.RestartThreshold {
		return nil, c.seekLocked(0)
	}

	idx := max(c.index, 0)
	return c.selectLocked((idx - 1 + n) % n), nil
}

// Seek moves the playback position of the current track.
func (c *Controller) Seek(pos time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seekLocked(pos)
}

// ToggleShuffle flips shuffle mode, keeping the current track.
func (c *Controller) ToggleShuffle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setShuffleLocked(!c.shuffle)
	c.sendEventLocked(EventModeChanged)
}

// ToggleRepeat cycles the repeat mode none -> all -> one -> none.
func (c *Controller) ToggleRepeat() RepeatMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.repeat = c.repeat.Next()
	c.sendEventLocked(EventModeChanged)
	return c.repeat
}

// SetModes restores shuffle and repeat modes.
func (c *Controller) SetModes(shuffle bool, repeat RepeatMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if shuffle != c.shuffle {
		c.setShuffleLocked(shuffle)
	}
	c.repeat = repeat
	c.sendEventLocked(EventModeChanged)
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Index:    c.index,
		Playing:  c.playing,
		Shuffle:  c.shuffle,
		Repeat:   c.repeat,
		Position: time.Duration(c.position.Load()),
		Tracks:   plist.New(c.activeLocked().Tracks).Tracks,
		Total:    time.Duration(c.activeLocked().TotalDuration()) * time.Second,
	}
	if c.current != nil {
		t := *c.current
		s.Track = &t
		s.Duration = c.player.Duration()
	}
	return s
}

// Close unsubscribes from the player and closes the event channel.
func (c *Controller) Close() {
	c.cancel()
	for _, id := range c.subscriptions {
		c.player.Unsubscribe(id)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.eventCh)
}

// onEnded handles end signals from the player.
func (c *Controller) onEnded() {
	c.mu.Lock()
	p, err := c.endedLocked()
	c.mu.Unlock()

	if err == nil {
		err = c.load(c.ctx, p)
	}
	if err != nil {
		zlog.Warn().Msgf("playlist: end-of-track transition failed: %v", err)
	}
}

func (c *Controller) endedLocked() (*pendingLoad, error) {
	if c.closed || c.current == nil {
		return nil, nil
	}

	now := c.config.Now()
	if !c.lastEnd.IsZero() && now.Sub(c.lastEnd) < c.config.EndDebounce {
		zlog.Debug().Msgf("playlist: ignoring duplicate end for track %d", c.current.ID)
		return nil, nil
	}
	c.lastEnd = now

	if c.repeat != RepeatOne {
		return c.nextLocked(), nil
	}

	zlog.Debug().Msgf("playlist: repeating track %d", c.current.ID)
	c.playing = true
	if err := c.seekLocked(0); err != nil {
		return nil, err
	}
	if err := c.player.Play(c.ctx); err != nil {
		return nil, c.failLocked(err)
	}
	return nil, nil
}

func (c *Controller) activeLocked() *plist.Playlist {
	if c.shuffle {
		return c.shuffled
	}
	return c.base
}

func (c *Controller) nextLocked() *pendingLoad {
	n := c.activeLocked().Len()
	if n == 0 {
		return nil
	}
	return c.selectLocked((c.index + 1) % n)
}

func (c *Controller) setShuffleLocked(on bool) {
	c.shuffle = on
	if on {
		c.shuffled = c.base.Shuffled(c.config.Rand)
	}
	if c.current != nil {
		c.index = c.activeLocked().IndexOf(c.current.ID)
	}
}

func (c *Controller) seekLocked(pos time.Duration) error {
	if c.current == nil {
		return nil
	}
	if err := c.player.Seek(pos); err != nil {
		return err
	}
	c.position.Store(int64(pos))
	return nil
}

// selectLocked makes the track at idx current. The returned load must be passed to load
// after the lock is released. Must be called with lock held.
func (c *Controller) selectLocked(idx int) *pendingLoad {
	t, ok := c.activeLocked().At(idx)
	if !ok {
		return nil
	}
	c.index = idx
	c.current = &t
	c.loaded = false
	c.loadGen++
	c.position.Store(0)
	c.sendEventLocked(EventTrackChanged)
	return &pendingLoad{gen: c.loadGen, track: t}
}

// load fetches the source of a selection without holding the controller lock and plays
// it when playing. A load superseded by a newer selection is dropped; the newer one
// follows it because loads run one at a time.
func (c *Controller) load(ctx context.Context, p *pendingLoad) error {
	if p == nil {
		return nil
	}
	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	if !c.isLatestLoad(p) {
		return nil
	}
	err := c.player.Load(ctx, track.AudioURL(c.config.BaseURL, p.track))

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || p.gen != c.loadGen {
		zlog.Debug().Msgf("playlist: dropping superseded load of track %d", p.track.ID)
		return nil
	}
	if err != nil {
		return c.failLocked(err)
	}
	c.loaded = true

	if !c.playing {
		return nil
	}
	if err := c.player.Play(ctx); err != nil {
		return c.failLocked(err)
	}
	zlog.Info().Msgf("playlist: playing %q by %s", p.track.Title, p.track.Artist)
	return nil
}

func (c *Controller) isLatestLoad(p *pendingLoad) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && p.gen == c.loadGen
}

// failLocked records a playback failure and forces the playing flag off.
// Must be called with lock held.
func (c *Controller) failLocked(err error) error {
	zlog.Warn().Msgf("playlist: playback failed: %v", err)
	c.playing = false
	e := c.eventLocked(EventPlaybackFailed)
	e.Err = err
	c.publishLocked(e)
	return err
}

func (c *Controller) eventLocked(typ EventType) Event {
	e := Event{
		Type:    typ,
		Playing: c.playing,
		Shuffle: c.shuffle,
		Repeat:  c.repeat,
	}
	if c.current != nil {
		t := *c.current
		e.Track = &t
	}
	return e
}

// sendEventLocked sends an event without blocking.
// Must be called with lock held.
func (c *Controller) sendEventLocked(typ EventType) {
	c.publishLocked(c.eventLocked(typ))
}

func (c *Controller) publishLocked(e Event) {
	if c.closed {
		return
	}
	select {
	case c.eventCh <- e:
	case <-c.ctx.Done():
	default:
		// Channel full, drop event
	}
}
