package rest

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/hlog"

	"github.com/osa030/lanplay/internal/app/filter"
	"github.com/osa030/lanplay/internal/app/library"
)

// Error codes not produced by filters.
const (
	codeDefault      = "default_error"
	codeNotFound     = "track_not_found"
	codeInvalidTrack = "invalid_track"
	codeInvalidID    = "invalid_id"
	codeInvalidBody  = "invalid_request"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: h.messages.GetMessage(code),
		Code:  code,
	})
}

// writeErr maps a domain error to its status and code.
func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, library.ErrNotFound):
		h.writeError(w, http.StatusNotFound, codeNotFound)
	case errors.Is(err, filter.ErrRejected):
		hlog.FromRequest(r).Info().Msgf("upload rejected: %v", err)
		h.writeError(w, http.StatusBadRequest, filter.Code(err))
	case errors.Is(err, library.ErrValidation):
		h.writeError(w, http.StatusBadRequest, codeInvalidTrack)
	default:
		hlog.FromRequest(r).Error().Msgf("request failed: %+v", err)
		h.writeError(w, http.StatusInternalServerError, codeDefault)
	}
}

func parseID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
