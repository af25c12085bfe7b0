package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kozaktomas/selfie-finder/internal/constants"
	"github.com/kozaktomas/selfie-finder/internal/database"
	"github.com/kozaktomas/selfie-finder/internal/engine"
	"github.com/kozaktomas/selfie-finder/internal/faceerr"
	"github.com/kozaktomas/selfie-finder/internal/photostore"
	"github.com/kozaktomas/selfie-finder/internal/pipeline"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondEngineError maps engine and storage errors to HTTP statuses.
// Unknown errors become 500 with a generic message.
func respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrPhotoNotFound):
		respondError(w, http.StatusNotFound, "photo not found")
	case errors.Is(err, database.ErrAlreadyIndexed):
		respondError(w, http.StatusConflict, "photo already has face encodings")
	case errors.Is(err, database.ErrReadOnly):
		respondError(w, http.StatusForbidden, "photos are managed by the host application")
	case errors.Is(err, engine.ErrNoPhotoStore):
		respondError(w, http.StatusNotImplemented, "photo storage is not configured")
	case errors.Is(err, pipeline.ErrQueueFull), errors.Is(err, pipeline.ErrClosed):
		respondBusy(w)
	case errors.Is(err, photostore.ErrNotFound):
		respondError(w, http.StatusNotFound, "photo bytes not found")
	case faceerr.IsKind(err, faceerr.KindEngineDisabled):
		respondError(w, http.StatusServiceUnavailable, engine.MessageEngineDisabled)
	case faceerr.IsKind(err, faceerr.KindImageDecode):
		respondError(w, http.StatusBadRequest, engine.MessageInvalidImage)
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// respondRejected answers a request whose pool task never completed: either
// the pool refused it or the client left while it waited.
func respondRejected(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	if r.Context().Err() != nil {
		log.Warn("client went away before the task finished", "path", sanitizeForLog(r.URL.Path))
		return
	}
	respondEngineError(w, err)
}

// respondBusy tells the client to retry once the pipeline queue drains.
func respondBusy(w http.ResponseWriter) {
	w.Header().Set("Retry-After", constants.RetryAfterSeconds)
	respondError(w, http.StatusServiceUnavailable, "server is busy, try again later")
}
