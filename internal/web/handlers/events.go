package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/selfie-finder/internal/engine"
)

// EventsHandler handles event level operations.
type EventsHandler struct {
	engine *engine.Engine
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(e *engine.Engine) *EventsHandler {
	return &EventsHandler{engine: e}
}

// Delete removes every photo of an event.
func (h *EventsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	ids, err := h.engine.DeleteEvent(r.Context(), eventID)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"event_id": eventID,
		"deleted":  len(ids),
		"photos":   ids,
	})
}
