package library

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/lanplay/internal/domain/track"
)

// writeAudio creates a placeholder backing file in dir.
func writeAudio(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0o644))
	return path
}

func draft(t *testing.T, dir, name, title string) track.Draft {
	t.Helper()
	return track.Draft{
		Title:    title,
		Format:   track.FormatMP3,
		Path:     writeAudio(t, dir, name),
		Filename: name,
	}
}

func readSidecar(t *testing.T, s *Store) sidecar {
	t.Helper()
	data, err := os.ReadFile(s.SidecarPath())
	require.NoError(t, err)
	var sc sidecar
	require.NoError(t, json.Unmarshal(data, &sc))
	return sc
}

func TestOpenCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "uploads")

	s, err := Open(dir, "")
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, filepath.Join(s.Dir(), DefaultSidecar), s.SidecarPath())
}

func TestOpenFailsWhenDirIsFile(t *testing.T) {
	file := writeAudio(t, t.TempDir(), "blocker")

	_, err := Open(filepath.Join(file, "sub"), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStartup))
}

func TestCreateAssignsIncreasingIDs(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "")
	require.NoError(t, err)

	a, err := s.Create(draft(t, dir, "a.mp3", "A"))
	require.NoError(t, err)
	b, err := s.Create(draft(t, dir, "b.mp3", "B"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), a.ID)
	assert.Equal(t, int64(2), b.ID)
	assert.Equal(t, track.DefaultArtist, a.Artist)
	assert.Equal(t, 0, a.Duration)

	sc := readSidecar(t, s)
	assert.Len(t, sc.Songs, 2)
	assert.Equal(t, int64(3), sc.NextID)
}

func TestCreateRejectsInvalidDraft(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "")
	require.NoError(t, err)

	tests := []struct {
		name  string
		draft track.Draft
	}{
		{name: "empty title", draft: track.Draft{Title: "  ", Format: track.FormatMP3, Path: "/x.mp3"}},
		{name: "bad format", draft: track.Draft{Title: "t", Format: "ogg", Path: "/x.ogg"}},
		{name: "negative duration", draft: track.Draft{Title: "t", Format: track.FormatWAV, Path: "/x.wav", Duration: -1}},
		{name: "no path", draft: track.Draft{Title: "t", Format: track.FormatFLAC}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Create(tt.draft)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))
			assert.Equal(t, 0, s.Len())
		})
	}
}

func TestIDsNeverReused(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "")
	require.NoError(t, err)

	a, err := s.Create(draft(t, dir, "a.mp3", "A"))
	require.NoError(t, err)
	b, err := s.Create(draft(t, dir, "b.mp3", "B"))
	require.NoError(t, err)

	_, err = s.Delete(b.ID)
	require.NoError(t, err)

	c, err := s.Create(draft(t, dir, "c.mp3", "C"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), c.ID)

	// Survives a reload as well
	reopened, err := Open(dir, "")
	require.NoError(t, err)
	d, err := reopened.Create(draft(t, dir, "d.mp3", "D"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), d.ID)

	ids := make(map[int64]bool)
	for _, tr := range reopened.ListAll() {
		assert.False(t, ids[tr.ID], "duplicate id %d", tr.ID)
		ids[tr.ID] = true
	}
	assert.Equal(t, map[int64]bool{a.ID: true, c.ID: true, d.ID: true}, ids)
}

func TestReloadIsEquivalent(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "")
	require.NoError(t, err)

	_, err = s.Create(draft(t, dir, "a.mp3", "A"))
	require.NoError(t, err)
	gone, err := s.Create(draft(t, dir, "b.mp3", "B"))
	require.NoError(t, err)
	_, err = s.Create(draft(t, dir, "c.mp3", "C"))
	require.NoError(t, err)

	require.NoError(t, os.Remove(gone.Path))

	reopened, err := Open(dir, "")
	require.NoError(t, err)

	want := make([]track.Track, 0)
	for _, tr := range s.ListAll() {
		if tr.ID != gone.ID {
			want = append(want, tr)
		}
	}
	assert.Equal(t, want, reopened.ListAll())

	// The vanished record is also gone from the rewritten sidecar
	assert.Len(t, readSidecar(t, reopened).Songs, 2)
}

func TestGet(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "")
	require.NoError(t, err)

	a, err := s.Create(draft(t, dir, "a.mp3", "A"))
	require.NoError(t, err)

	got, err := s.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, got)

	_, err = s.Get(99)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFindByStoredName(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "")
	require.NoError(t, err)

	a, err := s.Create(draft(t, dir, "0b1c.mp3", "A"))
	require.NoError(t, err)

	got, ok := s.FindByStoredName("0b1c.mp3")
	assert.True(t, ok)
	assert.Equal(t, a.ID, got.ID)

	_, ok = s.FindByStoredName("metadata.json")
	assert.False(t, ok)
}

func TestRename(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "")
	require.NoError(t, err)

	a, err := s.Create(track.Draft{
		Title: "Old", Artist: "Someone", Format: track.FormatMP3,
		Path: writeAudio(t, dir, "a.mp3"),
	})
	require.NoError(t, err)

	t.Run("title only keeps artist", func(t *testing.T) {
		got, err := s.Rename(a.ID, "  New  ", nil)
		require.NoError(t, err)
		assert.Equal(t, "New", got.Title)
		assert.Equal(t, "Someone", got.Artist)
	})

	t.Run("artist updated", func(t *testing.T) {
		artist := "Other"
		got, err := s.Rename(a.ID, "New", &artist)
		require.NoError(t, err)
		assert.Equal(t, "Other", got.Artist)
		assert.Equal(t, "Other", readSidecar(t, s).Songs[0].Artist)
	})

	t.Run("empty artist resets to default", func(t *testing.T) {
		artist := ""
		got, err := s.Rename(a.ID, "New", &artist)
		require.NoError(t, err)
		assert.Equal(t, track.DefaultArtist, got.Artist)
	})

	t.Run("empty title rejected and store unchanged", func(t *testing.T) {
		before := s.ListAll()
		beforeFile, err := os.ReadFile(s.SidecarPath())
		require.NoError(t, err)

		_, err = s.Rename(a.ID, "   ", nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrValidation))

		assert.Equal(t, before, s.ListAll())
		afterFile, err := os.ReadFile(s.SidecarPath())
		require.NoError(t, err)
		assert.Equal(t, beforeFile, afterFile)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := s.Rename(99, "x", nil)
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}

func TestDeleteTwice(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "")
	require.NoError(t, err)

	a, err := s.Create(draft(t, dir, "a.mp3", "A"))
	require.NoError(t, err)
	b, err := s.Create(draft(t, dir, "b.mp3", "B"))
	require.NoError(t, err)

	ok, err := s.Delete(a.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = os.Stat(a.Path)
	assert.True(t, os.IsNotExist(err))

	ok, err = s.Delete(a.ID)
	assert.False(t, ok)
	assert.True(t, errors.Is(err, ErrNotFound))

	// The other record and its file are untouched
	assert.Equal(t, []track.Track{b}, s.ListAll())
	_, err = os.Stat(b.Path)
	assert.NoError(t, err)
}

func TestDeleteMissingFile(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "")
	require.NoError(t, err)

	a, err := s.Create(draft(t, dir, "a.mp3", "A"))
	require.NoError(t, err)
	require.NoError(t, os.Remove(a.Path))

	ok, err := s.Delete(a.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestDeleteKeepsRecordWhenFileCannotBeRemoved(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "")
	require.NoError(t, err)

	a, err := s.Create(draft(t, dir, "a.mp3", "A"))
	require.NoError(t, err)

	// A non-empty directory at the backing path cannot be removed.
	require.NoError(t, os.Remove(a.Path))
	require.NoError(t, os.Mkdir(a.Path, 0o755))
	writeAudio(t, a.Path, "inner.mp3")

	ok, err := s.Delete(a.ID)
	require.Error(t, err)
	assert.False(t, ok)
	assert.False(t, errors.Is(err, ErrNotFound))

	assert.Equal(t, []track.Track{a}, s.ListAll())
	assert.Len(t, readSidecar(t, s).Songs, 1)
}

func TestCorruptSidecarResets(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultSidecar), []byte("{not json"), 0o644))

	s, err := Open(dir, "")
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())

	a, err := s.Create(draft(t, dir, "a.mp3", "A"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.ID)
}

func TestNextIDGuard(t *testing.T) {
	dir := t.TempDir()
	path := writeAudio(t, dir, "a.mp3")
	sc := sidecar{
		Songs:  []track.Track{{ID: 7, Title: "A", Artist: "X", Format: track.FormatMP3, Path: path}},
		NextID: 3,
	}
	data, err := json.Marshal(sc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultSidecar), data, 0o644))

	s, err := Open(dir, "")
	require.NoError(t, err)

	b, err := s.Create(draft(t, dir, "b.mp3", "B"))
	require.NoError(t, err)
	assert.Equal(t, int64(8), b.ID)
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "")
	require.NoError(t, err)

	for i, name := range []string{"a.mp3", "b.mp3", "c.mp3"} {
		tr, err := s.Create(draft(t, dir, name, name))
		require.NoError(t, err)
		if i == 1 {
			_, err = s.Rename(tr.ID, "renamed", nil)
			require.NoError(t, err)
		}
	}

	matches, err := filepath.Glob(filepath.Join(dir, ".*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)

	info, err := os.Stat(s.SidecarPath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestPrune(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "")
	require.NoError(t, err)

	a, err := s.Create(draft(t, dir, "a.mp3", "A"))
	require.NoError(t, err)
	b, err := s.Create(draft(t, dir, "b.mp3", "B"))
	require.NoError(t, err)

	assert.Empty(t, s.Prune())

	require.NoError(t, os.Remove(a.Path))
	dropped := s.Prune()
	assert.Equal(t, []track.Track{a}, dropped)
	assert.Equal(t, []track.Track{b}, s.ListAll())
	assert.Len(t, readSidecar(t, s).Songs, 1)
}
