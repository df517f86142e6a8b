package rest

import (
	"encoding/json"
	"mime/multipart"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/hlog"

	"github.com/osa030/lanplay/internal/app/library"
)

// uploadField is the multipart field carrying the audio files.
const uploadField = "songs"

// RenameRequest is the body of PATCH /api/songs/{id}.
type RenameRequest struct {
	Title  string  `json:"title"`
	Artist *string `json:"artist,omitempty"`
}

// PlayCountResponse is the body of GET /api/songs/{id}/plays.
type PlayCountResponse struct {
	ID    int64 `json:"id"`
	Count int64 `json:"count"`
}

func (h *Handler) listSongs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.library.ListAll())
}

func (h *Handler) uploadSongs(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			hlog.FromRequest(r).Info().Msgf("upload rejected: body exceeds %d bytes", tooLarge.Limit)
			h.writeError(w, http.StatusBadRequest, "file_too_large")
			return
		}
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			h.writeError(w, http.StatusBadRequest, "no_files")
			return
		}
		hlog.FromRequest(r).Warn().Msgf("failed to parse upload: %v", err)
		h.writeError(w, http.StatusBadRequest, codeInvalidBody)
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	headers := r.MultipartForm.File[uploadField]
	files := make([]library.File, 0, len(headers))
	var opened []multipart.File
	defer func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}()

	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			h.writeErr(w, r, errors.Wrapf(err, "failed to open part %s", fh.Filename))
			return
		}
		opened = append(opened, f)
		files = append(files, library.File{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Reader:      f,
		})
	}

	created, err := h.uploader.Upload(r.Context(), files)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) renameSong(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, codeInvalidID)
		return
	}

	var req RenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, codeInvalidBody)
		return
	}

	t, err := h.library.Rename(id, req.Title, req.Artist)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) deleteSong(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, codeInvalidID)
		return
	}

	if _, err := h.library.Delete(id); err != nil {
		h.writeErr(w, r, err)
		return
	}
	if err := h.history.Forget(r.Context(), id); err != nil {
		hlog.FromRequest(r).Warn().Msgf("failed to forget play history of song %d: %v", id, err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) recordPlay(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, codeInvalidID)
		return
	}

	t, err := h.library.Get(id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if err := h.history.RecordPlay(r.Context(), t.ID, t.Title); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) playCount(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, codeInvalidID)
		return
	}

	if _, err := h.library.Get(id); err != nil {
		h.writeErr(w, r, err)
		return
	}
	count, err := h.history.PlayCount(r.Context(), id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PlayCountResponse{ID: id, Count: count})
}
