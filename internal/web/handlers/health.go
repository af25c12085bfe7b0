package handlers

import (
	"net/http"

	"github.com/kozaktomas/selfie-finder/internal/engine"
	"github.com/kozaktomas/selfie-finder/internal/pipeline"
)

// HealthHandler reports process and engine state.
type HealthHandler struct {
	engine *engine.Engine
	pool   *pipeline.Pool
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(e *engine.Engine, pool *pipeline.Pool) *HealthHandler {
	return &HealthHandler{engine: e, pool: pool}
}

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status      string  `json:"status"`
	Engine      string  `json:"engine"`
	EngineError string  `json:"engine_error,omitempty"`
	Dimension   int     `json:"dimension"`
	Threshold   float64 `json:"threshold"`
	QueueDepth  int     `json:"queue_depth"`
	QueueSize   int     `json:"queue_size"`
}

// Check handles the health check endpoint. The process is healthy even when
// the engine is disabled.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	st := h.engine.Status()
	resp := HealthResponse{
		Status:      "ok",
		Engine:      st.State,
		EngineError: st.Error,
		Dimension:   st.Dimension,
		Threshold:   st.Threshold,
	}
	if h.pool != nil {
		resp.QueueDepth = h.pool.QueueDepth()
		resp.QueueSize = h.pool.Capacity()
	}
	respondJSON(w, http.StatusOK, resp)
}
