// Package rest provides the HTTP API of the library server.
package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lanplay/internal/app/library"
	"github.com/osa030/lanplay/internal/domain/track"
)

// DefaultMaxMemory is the multipart memory budget before parts spill to disk.
const DefaultMaxMemory = 32 << 20

// DefaultMaxUploadBytes caps an upload request body when no limit is configured.
const DefaultMaxUploadBytes = 1 << 30

// Library is the metadata store used by the handlers.
type Library interface {
	ListAll() []track.Track
	Len() int
	Get(id int64) (track.Track, error)
	FindByStoredName(name string) (track.Track, bool)
	Rename(id int64, title string, artist *string) (track.Track, error)
	Delete(id int64) (bool, error)
}

// Uploader stores uploaded files.
type Uploader interface {
	Upload(ctx context.Context, files []library.File) ([]track.Track, error)
}

// History records plays. Implementations may be no-ops.
type History interface {
	RecordPlay(ctx context.Context, songID int64, title string) error
	PlayCount(ctx context.Context, songID int64) (int64, error)
	Forget(ctx context.Context, songID int64) error
}

type noHistory struct{}

func (noHistory) RecordPlay(context.Context, int64, string) error { return nil }
func (noHistory) PlayCount(context.Context, int64) (int64, error) { return 0, nil }
func (noHistory) Forget(context.Context, int64) error { return nil }

// Messages maps error codes to user-facing messages.
type Messages interface {
	GetMessage(code string) string
}

// Config holds the handler dependencies.
type Config struct {
	Library   Library
	Uploader  Uploader
	History   History
	Messages  Messages
	MaxMemory int64
	MaxUpload int64           // Upload request body limit in bytes
	Logger    *zerolog.Logger // Access log target, global logger when nil
}

// Handler serves the song API.
type Handler struct {
	library   Library
	uploader  Uploader
	history   History
	messages  Messages
	maxMemory int64
	maxUpload int64
	logger    zerolog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(cfg Config) *Handler {
	if cfg.MaxMemory <= 0 {
		cfg.MaxMemory = DefaultMaxMemory
	}
	if cfg.MaxUpload <= 0 {
		cfg.MaxUpload = DefaultMaxUploadBytes
	}
	if cfg.History == nil {
		cfg.History = noHistory{}
	}
	logger := zlog.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Handler{
		library:   cfg.Library,
		uploader:  cfg.Uploader,
		history:   cfg.History,
		messages:  cfg.Messages,
		maxMemory: cfg.MaxMemory,
		maxUpload: cfg.MaxUpload,
		logger:    logger,
	}
}

// Routes returns the API routes wrapped in access logging.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", h.health)
	mux.HandleFunc("GET /api/songs", h.listSongs)
	mux.HandleFunc("POST /api/songs/upload", h.uploadSongs)
	mux.HandleFunc("PATCH /api/songs/{id}", h.renameSong)
	mux.HandleFunc("DELETE /api/songs/{id}", h.deleteSong)
	mux.HandleFunc("POST /api/songs/{id}/plays", h.recordPlay)
	mux.HandleFunc("GET /api/songs/{id}/plays", h.playCount)
	mux.HandleFunc("GET /api/audio/{filename}", h.serveAudio)

	var handler http.Handler = mux
	handler = hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	})(handler)
	handler = hlog.RemoteAddrHandler("ip")(handler)
	handler = hlog.RequestIDHandler("req_id", "X-Request-Id")(handler)
	handler = hlog.NewHandler(h.logger)(handler)
	return handler
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"songs":  h.library.Len(),
	})
}
