// Package library provides the metadata store for uploaded tracks.
package library

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/lanplay/internal/domain/track"
)

// Errors
var (
	ErrNotFound   = errors.New("song not found")
	ErrValidation = errors.New("invalid song metadata")
	ErrStartup    = errors.New("storage unavailable")
)

// DefaultSidecar is the metadata file name used when none is configured.
const DefaultSidecar = "metadata.json"

// sidecar is the persisted form of the store.
type sidecar struct {
	Songs  []track.Track `json:"songs"`
	NextID int64         `json:"nextId"`
}

// Store owns the track records and their sidecar file.
type Store struct {
	mu sync.RWMutex

	dir         string
	sidecarPath string

	tracks []track.Track // Insertion order
	nextID int64

	validate *validator.Validate
}

// Open creates dir if needed and loads the sidecar from it.
// A missing or unreadable sidecar yields an empty store.
func Open(dir, sidecarName string) (*Store, error) {
	if sidecarName == "" {
		sidecarName = DefaultSidecar
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "failed to resolve storage dir %s", dir), ErrStartup)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "failed to create storage dir %s", abs), ErrStartup)
	}

	s := &Store{
		dir:         abs,
		sidecarPath: filepath.Join(abs, sidecarName),
		tracks:      make([]track.Track, 0),
		nextID:      1,
		validate:    validator.New(),
	}
	s.load()
	return s, nil
}

// Dir returns the absolute storage directory.
func (s *Store) Dir() string {
	return s.dir
}

// SidecarPath returns the absolute path of the sidecar file.
func (s *Store) SidecarPath() string {
	return s.sidecarPath
}

// ListAll returns all tracks in insertion order.
func (s *Store) ListAll() []track.Track {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]track.Track, len(s.tracks))
	copy(result, s.tracks)
	return result
}

// Len returns the number of stored tracks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tracks)
}

// Get returns the track with the given ID.
func (s *Store) Get(id int64) (track.Track, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return track.Track{}, errors.Wrapf(ErrNotFound, "song %d", id)
	}
	return s.tracks[idx], nil
}

// FindByStoredName returns the track whose backing file has the given base name.
func (s *Store) FindByStoredName(name string) (track.Track, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return lo.Find(s.tracks, func(t track.Track) bool {
		return t.StoredName() == name
	})
}

// Create stores a new track and assigns it the next ID.
func (s *Store) Create(d track.Draft) (track.Track, error) {
	d.Title = strings.TrimSpace(d.Title)
	d.Artist = strings.TrimSpace(d.Artist)
	if d.Artist == "" {
		d.Artist = track.DefaultArtist
	}
	if err := s.validate.Struct(d); err != nil {
		return track.Track{}, errors.Mark(errors.Wrap(err, "invalid draft"), ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := track.Track{
		ID:       s.nextID,
		Title:    d.Title,
		Artist:   d.Artist,
		Duration: d.Duration,
		Format:   d.Format,
		Path:     d.Path,
		Filename: d.Filename,
	}
	s.nextID++
	s.tracks = append(s.tracks, t)
	s.persistLocked()

	zlog.Info().Msgf("library: created song %d %q", t.ID, t.Title)
	return t, nil
}

// Rename updates the title and, when artist is non-nil, the artist of a track.
// An empty artist resets it to DefaultArtist.
func (s *Store) Rename(id int64, title string, artist *string) (track.Track, error) {
	title = strings.TrimSpace(title)

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return track.Track{}, errors.Wrapf(ErrNotFound, "song %d", id)
	}
	if title == "" {
		return track.Track{}, errors.Mark(errors.New("title must not be empty"), ErrValidation)
	}

	t := &s.tracks[idx]
	t.Title = title
	if artist != nil {
		t.Artist = strings.TrimSpace(*artist)
		if t.Artist == "" {
			t.Artist = track.DefaultArtist
		}
	}
	s.persistLocked()

	zlog.Info().Msgf("library: renamed song %d to %q by %s", t.ID, t.Title, t.Artist)
	return *t, nil
}

// Delete removes a track and its backing file.
// A backing file that is already gone is not an error. When the file cannot
// be removed the record is kept so the file stays reachable.
func (s *Store) Delete(id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return false, errors.Wrapf(ErrNotFound, "song %d", id)
	}

	t := s.tracks[idx]
	if err := os.Remove(t.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, errors.Wrapf(err, "failed to remove file of song %d", id)
	}

	s.tracks = append(s.tracks[:idx], s.tracks[idx+1:]...)
	s.persistLocked()

	zlog.Info().Msgf("library: deleted song %d %q", t.ID, t.Title)
	return true, nil
}

// Prune drops tracks whose backing file no longer exists and returns them.
func (s *Store) Prune() []track.Track {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept, dropped := partitionExisting(s.tracks)
	if len(dropped) == 0 {
		return nil
	}
	s.tracks = kept
	s.persistLocked()

	for _, t := range dropped {
		zlog.Info().Msgf("library: pruned song %d, file %s is gone", t.ID, t.Path)
	}
	return dropped
}

func (s *Store) indexLocked(id int64) int {
	_, idx, ok := lo.FindIndexOf(s.tracks, func(t track.Track) bool {
		return t.ID == id
	})
	if !ok {
		return -1
	}
	return idx
}

// load reads the sidecar. Any failure leaves the store empty with counter 1.
func (s *Store) load() {
	data, err := os.ReadFile(s.sidecarPath)
	if errors.Is(err, os.ErrNotExist) {
		zlog.Info().Msgf("library: no sidecar at %s, starting empty", s.sidecarPath)
		return
	}
	if err != nil {
		zlog.Warn().Msgf("library: failed to read sidecar %s, starting empty: %v", s.sidecarPath, err)
		return
	}

	var sc sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		zlog.Warn().Msgf("library: failed to parse sidecar %s, starting empty: %v", s.sidecarPath, err)
		return
	}

	kept, dropped := partitionExisting(sc.Songs)
	s.tracks = kept

	// Never hand out an ID that is already in use.
	s.nextID = max(sc.NextID, 1)
	if len(sc.Songs) > 0 {
		top := lo.MaxBy(sc.Songs, func(a, b track.Track) bool { return a.ID > b.ID })
		s.nextID = max(s.nextID, top.ID+1)
	}

	zlog.Info().Msgf("library: loaded %d songs (dropped %d missing), next id %d", len(kept), len(dropped), s.nextID)
	if len(dropped) > 0 {
		s.persistLocked()
	}
}

// persistLocked rewrites the sidecar. Failures are logged and the in-memory state stays authoritative.
// Must be called with lock held.
func (s *Store) persistLocked() {
	data, err := json.MarshalIndent(sidecar{Songs: s.tracks, NextID: s.nextID}, "", "  ")
	if err != nil {
		zlog.Warn().Msgf("library: failed to encode sidecar: %v", err)
		return
	}
	if err := writeFileAtomic(s.sidecarPath, data); err != nil {
		zlog.Warn().Msgf("library: failed to write sidecar %s: %v", s.sidecarPath, err)
	}
}

func partitionExisting(tracks []track.Track) (kept, dropped []track.Track) {
	kept = make([]track.Track, 0, len(tracks))
	for _, t := range tracks {
		if _, err := os.Stat(t.Path); err != nil {
			dropped = append(dropped, t)
			continue
		}
		kept = append(kept, t)
	}
	return kept, dropped
}

// writeFileAtomic writes data to a temporary file in the target directory and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op once the rename succeeded.
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "failed to write temp file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "failed to sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close temp file")
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return errors.Wrap(err, "failed to chmod temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrap(err, "failed to replace sidecar")
	}
	return nil
}
