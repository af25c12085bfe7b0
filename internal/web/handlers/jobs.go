package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/kozaktomas/selfie-finder/internal/constants"
	"github.com/kozaktomas/selfie-finder/internal/engine"
)

// JobStatus represents the status of an async job.
type JobStatus string

// JobStatus constants define the lifecycle states of an async job.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// ReindexJob represents an async reindex of one event.
type ReindexJob struct {
	EventBroadcaster

	ID          string
	EventID     string
	Status      JobStatus
	Progress    int
	Total       int
	Current     int
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
	Result      *engine.ReindexResult
}

// GetStatus returns the current job status (implements SSEJob).
func (j *ReindexJob) GetStatus() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// JobView is the encodable state of a job.
type JobView struct {
	ID          string                `json:"id"`
	EventID     string                `json:"event_id"`
	Status      JobStatus             `json:"status"`
	Progress    int                   `json:"progress"`
	Total       int                   `json:"total"`
	Current     int                   `json:"current"`
	Error       string                `json:"error,omitempty"`
	StartedAt   time.Time             `json:"started_at"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
	Result      *engine.ReindexResult `json:"result,omitempty"`
}

// View returns a copy of the job's state.
func (j *ReindexJob) View() JobView {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return JobView{
		ID:          j.ID,
		EventID:     j.EventID,
		Status:      j.Status,
		Progress:    j.Progress,
		Total:       j.Total,
		Current:     j.Current,
		Error:       j.Error,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		Result:      j.Result,
	}
}

// Cancel cancels the reindex job.
func (j *ReindexJob) Cancel() {
	j.EventBroadcaster.Cancel()
	j.mu.Lock()
	if !isJobTerminal(j.Status) {
		j.Status = JobStatusCancelled
	}
	j.mu.Unlock()
}

// finish moves the job to a terminal state.
func (j *ReindexJob) finish(status JobStatus, result *engine.ReindexResult, message string) {
	now := time.Now()
	j.mu.Lock()
	j.Status = status
	j.CompletedAt = &now
	j.Error = message
	if result != nil {
		j.Result = result
	}
	if status == JobStatusCompleted {
		j.Progress = 100
	}
	j.mu.Unlock()
}

// JobEvent represents an event from a job.
type JobEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// EventBroadcaster provides listener management and event broadcasting for async jobs.
// Embed this in job structs to get AddListener, RemoveListener, and SendEvent methods.
type EventBroadcaster struct {
	cancel    context.CancelFunc
	listeners []chan JobEvent
	mu        sync.RWMutex
}

// AddListener adds an event listener.
func (b *EventBroadcaster) AddListener() chan JobEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan JobEvent, constants.EventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener.
func (b *EventBroadcaster) RemoveListener(ch chan JobEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent sends an event to all listeners.
func (b *EventBroadcaster) SendEvent(event JobEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

func (b *EventBroadcaster) setCancel(cancel context.CancelFunc) {
	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()
}

// Cancel cancels the job via context and sends a cancelled event.
func (b *EventBroadcaster) Cancel() {
	b.mu.RLock()
	cancel := b.cancel
	b.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	b.SendEvent(JobEvent{Type: "cancelled", Message: "Job cancelled by user"})
}

// SSEJob is the interface required by streamSSEEvents to stream job events via SSE.
type SSEJob interface {
	AddListener() chan JobEvent
	RemoveListener(ch chan JobEvent)
	GetStatus() JobStatus
}

// JobManager manages async jobs.
type JobManager struct {
	jobs map[string]*ReindexJob
	mu   sync.RWMutex
	now  func() time.Time
}

// NewJobManager creates a new job manager.
func NewJobManager() *JobManager {
	return &JobManager{
		jobs: make(map[string]*ReindexJob),
		now:  time.Now,
	}
}

// CreateJob creates a new reindex job and forgets finished jobs past retention.
func (m *JobManager) CreateJob(id, eventID string) *ReindexJob {
	job := &ReindexJob{
		ID:        id,
		EventID:   eventID,
		Status:    JobStatusPending,
		StartedAt: m.now(),
	}

	m.mu.Lock()
	m.pruneLocked()
	m.jobs[id] = job
	m.mu.Unlock()

	return job
}

func (m *JobManager) pruneLocked() {
	cutoff := m.now().Add(-constants.JobRetention * time.Minute)
	for id, job := range m.jobs {
		job.mu.RLock()
		done := job.CompletedAt != nil && job.CompletedAt.Before(cutoff)
		job.mu.RUnlock()
		if done {
			delete(m.jobs, id)
		}
	}
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) *ReindexJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// DeleteJob removes a job.
func (m *JobManager) DeleteJob(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
}

// ListJobs returns all jobs.
func (m *JobManager) ListJobs() []*ReindexJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	jobs := make([]*ReindexJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}
