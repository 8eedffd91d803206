package server

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/molforge/RELAX/internal/optimize"
)

// JobStatus is the lifecycle state of an optimization job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// Job tracks one optimization session submitted over HTTP. Completed means
// the session reached a terminal state, including non-convergent ones; the
// session outcome lives in the Result property bag.
type Job struct {
	ID        string               `json:"id"`
	Status    JobStatus            `json:"status"`
	Target    string               `json:"target"`
	Backend   string               `json:"backend"`
	Submitted time.Time            `json:"submitted"`
	Finished  *time.Time           `json:"finished,omitempty"`
	Result    optimize.PropertyBag `json:"result,omitempty"`
	Error     string               `json:"error,omitempty"`

	cancel context.CancelFunc
}

// jobRegistry is the thread-safe store of jobs for one server.
type jobRegistry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func newJobRegistry() *jobRegistry {
	return &jobRegistry{jobs: make(map[string]*Job)}
}

func (r *jobRegistry) create(target, backend string, cancel context.CancelFunc) *Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	job := &Job{
		ID:        uuid.New().String(),
		Status:    StatusPending,
		Target:    target,
		Backend:   backend,
		Submitted: time.Now(),
		cancel:    cancel,
	}
	r.jobs[job.ID] = job
	return job
}

// snapshot returns a copy of the job safe to serialize while the run mutates
// the original.
func (r *jobRegistry) snapshot(id string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

func (r *jobRegistry) setRunning(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[id]; ok && job.Status == StatusPending {
		job.Status = StatusRunning
	}
}

func (r *jobRegistry) finish(id string, status JobStatus, result optimize.PropertyBag, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.Status == StatusCancelled {
		return
	}
	now := time.Now()
	job.Status = status
	job.Result = result
	job.Error = errMsg
	job.Finished = &now
}

// cancelJob cancels a pending or running job. It reports whether the job
// existed and whether it was cancellable.
func (r *jobRegistry) cancelJob(id string) (found, cancelled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return false, false
	}
	switch job.Status {
	case StatusPending, StatusRunning:
		job.Status = StatusCancelled
		now := time.Now()
		job.Finished = &now
		if job.cancel != nil {
			job.cancel()
		}
		return true, true
	default:
		return true, false
	}
}
