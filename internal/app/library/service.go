package library

import (
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lanplay/internal/app/enrich"
	"github.com/osa030/lanplay/internal/app/filter"
	"github.com/osa030/lanplay/internal/domain/track"
	"github.com/osa030/lanplay/internal/infra/tags"
)

// DefaultMaxFiles is the per-request upload limit used when none is configured.
const DefaultMaxFiles = 10

// partOverhead allows for multipart headers and boundaries around each file.
const partOverhead = 64 << 10

// MetadataReader reads tags and duration from a stored audio file.
type MetadataReader interface {
	Read(path string, format track.Format) (tags.Metadata, error)
}

// Enricher looks up metadata the file itself does not carry.
type Enricher interface {
	Lookup(ctx context.Context, q enrich.Query) (enrich.Info, error)
}

// File is one uploaded file.
type File struct {
	Filename    string
	ContentType string
	Size        int64 // As announced by the client, 0 if unknown
	Reader      io.Reader
}

// ServiceConfig represents upload service settings.
type ServiceConfig struct {
	MaxFiles int
}

// Service turns uploaded files into stored tracks.
type Service struct {
	store    *Store
	chain    *filter.Chain
	reader   MetadataReader
	enricher Enricher // Optional
	maxFiles int
	maxBytes int64 // Per file, 0 for unlimited
}

// NewService creates a new upload service. enricher may be nil.
func NewService(store *Store, chain *filter.Chain, reader MetadataReader, enricher Enricher, cfg ServiceConfig) *Service {
	if chain == nil {
		chain = filter.NewChain()
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = DefaultMaxFiles
	}
	return &Service{
		store:    store,
		chain:    chain,
		reader:   reader,
		enricher: enricher,
		maxFiles: cfg.MaxFiles,
		maxBytes: chain.MaxFileBytes(),
	}
}

// MaxRequestBytes returns the largest upload request body worth reading,
// or zero when file sizes are not limited.
func (s *Service) MaxRequestBytes() int64 {
	if s.maxBytes <= 0 {
		return 0
	}
	return int64(s.maxFiles) * (s.maxBytes + partOverhead)
}

// Upload stores all files or none of them.
// Rejections are marked filter.ErrRejected and carry a code for filter.Code.
func (s *Service) Upload(ctx context.Context, files []File) ([]track.Track, error) {
	switch {
	case len(files) == 0:
		return nil, filter.Reject("no_files").Err("")
	case len(files) > s.maxFiles:
		return nil, filter.Reject("too_many_files").Err("")
	}

	var pending []track.Draft // Written to disk, not yet recorded
	cleanup := func() {
		for _, p := range pending {
			if err := os.Remove(p.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
				zlog.Warn().Msgf("upload: failed to remove staged file %s: %v", p.Path, err)
			}
		}
	}

	for _, f := range files {
		p, err := s.stage(ctx, f)
		if err != nil {
			cleanup()
			return nil, err
		}
		pending = append(pending, p)
	}

	created := make([]track.Track, 0, len(pending))
	for i, p := range pending {
		t, err := s.store.Create(p)
		if err != nil {
			// Roll back records already created, then the remaining files.
			for _, c := range created {
				if _, derr := s.store.Delete(c.ID); derr != nil {
					zlog.Warn().Msgf("upload: rollback of song %d failed: %v", c.ID, derr)
				}
			}
			pending = pending[i:]
			cleanup()
			return nil, errors.Wrapf(err, "failed to store %s", p.Filename)
		}
		created = append(created, t)
	}

	zlog.Info().Msgf("upload: stored %d songs", len(created))
	return created, nil
}

// stage writes one file into the storage dir and builds its draft.
func (s *Service) stage(ctx context.Context, f File) (track.Draft, error) {
	u := filter.Upload{
		Filename:    filepath.Base(f.Filename),
		ContentType: f.ContentType,
		Size:        f.Size,
	}

	format, ok := track.FormatOf(u.Filename)
	if !ok {
		return track.Draft{}, filter.Reject("unsupported_format").Err(u.Filename)
	}
	u.Format = format

	// Reject on the announced size before touching the disk.
	if u.Size > 0 {
		if err := s.chain.Execute(ctx, u, filter.StageReceived).Err(u.Filename); err != nil {
			return track.Draft{}, err
		}
	}

	path := filepath.Join(s.store.Dir(), uuid.NewString()+"."+string(format))
	n, err := writeUpload(path, f.Reader, s.maxBytes)
	if err != nil {
		return track.Draft{}, errors.Wrapf(err, "failed to save %s", u.Filename)
	}

	p := track.Draft{
		Format:   format,
		Path:     path,
		Filename: u.Filename,
	}
	discard := func(err error) (track.Draft, error) {
		_ = os.Remove(path)
		return track.Draft{}, err
	}

	if u.Size != n {
		u.Size = n
		if err := s.chain.Execute(ctx, u, filter.StageReceived).Err(u.Filename); err != nil {
			return discard(err)
		}
	}

	md, err := s.reader.Read(path, format)
	if err != nil {
		zlog.Warn().Msgf("upload: failed to read metadata from %s: %v", u.Filename, err)
	}

	u.Title = md.Title
	if u.Title == "" {
		u.Title = track.TitleFromFilename(u.Filename)
	}
	u.Artist = md.Artist
	u.Duration = md.Duration

	if s.enricher != nil && (u.Artist == "" || u.Duration <= 0) {
		u = s.enrichUpload(ctx, u)
	}

	if err := s.chain.Execute(ctx, u, filter.StageParsed).Err(u.Filename); err != nil {
		return discard(err)
	}

	p.Title = u.Title
	p.Artist = u.Artist
	p.Duration = wholeSeconds(u.Duration)
	return p, nil
}

func (s *Service) enrichUpload(ctx context.Context, u filter.Upload) filter.Upload {
	info, err := s.enricher.Lookup(ctx, enrich.Query{Title: u.Title, Artist: u.Artist})
	if err != nil {
		if !errors.Is(err, enrich.ErrNotFound) {
			zlog.Warn().Msgf("upload: enrichment failed for %s: %v", u.Filename, err)
		}
		return u
	}
	if u.Artist == "" {
		u.Artist = info.Artist
	}
	if u.Duration <= 0 {
		u.Duration = info.Duration
	}
	return u
}

// writeUpload copies r to a new file at path. With a positive limit it stops
// one byte past it, leaving the size filter to reject the file.
func writeUpload(path string, r io.Reader, limit int64) (int64, error) {
	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, errors.Wrap(err, "failed to create file")
	}
	n, err := io.Copy(out, r)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, errors.Wrap(err, "failed to write file")
	}
	return n, nil
}

func wholeSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds()))
}
