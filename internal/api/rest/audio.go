package rest

import (
	"net/http"
	"os"

	"github.com/rs/zerolog/hlog"
)

// serveAudio streams a stored file with range support.
// Only files known to the library are served.
func (h *Handler) serveAudio(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")
	t, ok := h.library.FindByStoredName(name)
	if !ok {
		h.writeError(w, http.StatusNotFound, codeNotFound)
		return
	}

	f, err := os.Open(t.Path)
	if err != nil {
		hlog.FromRequest(r).Warn().Msgf("audio file for song %d unavailable: %v", t.ID, err)
		h.writeError(w, http.StatusNotFound, codeNotFound)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	w.Header().Set("Content-Type", t.Format.ContentType())
	w.Header().Set("Accept-Ranges", "bytes")
	http.ServeContent(w, r, t.StoredName(), info.ModTime(), f)
}
