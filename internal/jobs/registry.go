// Package jobs tracks long-running analysis jobs and orchestrates their
// stages. The registry is deliberately in-memory: job state is ephemeral and
// does not survive a restart, unlike the retrieval index underneath it.
package jobs

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/kalambet/contrarian/internal/analysis"
)

// ErrNotFound is returned for an unknown job id.
var ErrNotFound = errors.New("job not found")

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is a point-in-time snapshot of one analysis job. Result is only set
// once the job has completed and is never mutated afterwards.
type Job struct {
	JobID       string                   `json:"job_id"`
	Status      Status                   `json:"status"`
	Progress    int                      `json:"progress"`
	CurrentStep string                   `json:"current_step"`
	Error       string                   `json:"error,omitempty"`
	Result      *analysis.AnalysisResult `json:"result,omitempty"`
}

// Registry holds all known jobs. Reads return copies so pollers never
// observe a job mid-mutation.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job)}
}

// Create registers a new queued job and returns its id.
func (r *Registry) Create() string {
	id := uuid.NewString()
	r.mu.Lock()
	r.jobs[id] = &Job{
		JobID:       id,
		Status:      StatusQueued,
		Progress:    0,
		CurrentStep: "queued",
	}
	r.mu.Unlock()
	return id
}

// Get returns a snapshot of the job, or ErrNotFound.
func (r *Registry) Get(id string) (Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return *job, nil
}

func (r *Registry) update(id string, fn func(*Job)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[id]; ok {
		fn(job)
	}
}

// SetRunning transitions the job to running at the baseline progress.
func (r *Registry) SetRunning(id string) {
	r.update(id, func(j *Job) {
		j.Status = StatusRunning
		j.Progress = 10
	})
}

// SetStep records the stage the job is currently in.
func (r *Registry) SetStep(id, step string) {
	r.update(id, func(j *Job) {
		j.CurrentStep = step
	})
}

// SetProgress advances the progress checkpoint.
func (r *Registry) SetProgress(id string, progress int) {
	r.update(id, func(j *Job) {
		j.Progress = progress
	})
}

// Complete attaches the final result and closes out the job.
func (r *Registry) Complete(id string, result *analysis.AnalysisResult) {
	r.update(id, func(j *Job) {
		j.Status = StatusCompleted
		j.Progress = 100
		j.CurrentStep = "done"
		j.Result = result
	})
}

// Fail marks the job failed. Any partial stage results stay discarded: a
// failed job never carries a Result.
func (r *Registry) Fail(id string, err error) {
	r.update(id, func(j *Job) {
		j.Status = StatusFailed
		j.Error = err.Error()
		j.Result = nil
	})
}
