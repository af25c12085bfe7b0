package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kozaktomas/selfie-finder/internal/engine"
	"github.com/kozaktomas/selfie-finder/internal/logging"
	"github.com/kozaktomas/selfie-finder/internal/pipeline"
)

// ReindexHandler runs event reindexing as background jobs.
type ReindexHandler struct {
	engine     *engine.Engine
	pool       *pipeline.Pool
	jobManager *JobManager
	log        *slog.Logger
}

// NewReindexHandler creates a new reindex handler.
func NewReindexHandler(e *engine.Engine, pool *pipeline.Pool, jm *JobManager, log *slog.Logger) *ReindexHandler {
	return &ReindexHandler{engine: e, pool: pool, jobManager: jm, log: logging.OrNoop(log)}
}

// Start queues a reindex job for an event.
func (h *ReindexHandler) Start(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	if eventID == "" {
		respondError(w, http.StatusBadRequest, "missing event ID")
		return
	}
	if !h.engine.Ready() {
		respondError(w, http.StatusServiceUnavailable, engine.MessageEngineDisabled)
		return
	}

	jobID := uuid.New().String()
	job := h.jobManager.CreateJob(jobID, eventID)

	if err := h.pool.TrySubmit(func(ctx context.Context) { h.runReindexJob(ctx, job) }); err != nil {
		h.jobManager.DeleteJob(jobID)
		respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id":   jobID,
		"event_id": eventID,
		"status":   string(JobStatusPending),
	})
}

// Status returns the status of a job.
func (h *ReindexHandler) Status(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		respondError(w, http.StatusBadRequest, "missing job ID")
		return
	}

	job := h.jobManager.GetJob(jobID)
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}

	respondJSON(w, http.StatusOK, job.View())
}

// Events streams job events via SSE.
func (h *ReindexHandler) Events(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r,
		func(id string) SSEJob {
			job := h.jobManager.GetJob(id)
			if job == nil {
				return nil
			}
			return job
		},
		func(job SSEJob) any {
			return job.(*ReindexJob).View()
		},
	)
}

// Cancel cancels a job.
func (h *ReindexHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	job := h.jobManager.GetJob(jobID)
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}

	job.Cancel()
	respondJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

// runReindexJob runs inside a pool worker. The job stops when cancelled or
// when the pool shuts down, but only between photos: a photo whose
// extraction has started is indexed to completion before the job ends.
func (h *ReindexHandler) runReindexJob(poolCtx context.Context, job *ReindexJob) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := context.AfterFunc(poolCtx, cancel)
	defer stop()
	job.setCancel(cancel)

	job.mu.Lock()
	if job.Status == JobStatusCancelled {
		job.mu.Unlock()
		return
	}
	job.Status = JobStatusRunning
	job.mu.Unlock()
	job.SendEvent(JobEvent{Type: "started", Message: "Reindex started"})

	result, err := h.engine.Reindex(ctx, job.EventID, func(p engine.ReindexProgress) {
		job.mu.Lock()
		job.Current = p.Current
		job.Total = p.Total
		job.Progress = p.Current * 100 / p.Total
		job.mu.Unlock()
		job.SendEvent(JobEvent{Type: "progress", Data: p})
	})

	if err != nil {
		if ctx.Err() != nil {
			job.finish(JobStatusCancelled, result, "")
			job.SendEvent(JobEvent{Type: "cancelled", Message: "Job was cancelled"})
			return
		}
		h.log.Error("reindex failed", "event_id", sanitizeForLog(job.EventID), "error", err)
		job.finish(JobStatusFailed, result, err.Error())
		job.SendEvent(JobEvent{Type: "job_error", Message: err.Error()})
		return
	}

	job.finish(JobStatusCompleted, result, "")
	job.SendEvent(JobEvent{Type: "completed", Data: result})
}
