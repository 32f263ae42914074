// Package worker implements the single-worker FIFO background indexer
// queue: submit/status/list/shutdown over jobs with classified retry.
package worker

import (
	"time"

	"github.com/rifflux/rifflux/internal/errs"
)

// Status is a job's position in its lifecycle.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusRetryWait Status = "retry_wait"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is one submitted unit of work and its observable state.
type Job struct {
	ID string
	// PathKey identifies the normalized set of source paths this job was
	// submitted for, if any. Jobs submitted via Submit (rather than
	// SubmitWithKey) leave this empty and never match one another.
	PathKey   string
	Status    Status
	Retries   int
	LastErr   errs.Kind
	Result    any
	Err       error
	CreatedAt time.Time
	UpdatedAt time.Time
}

// snapshot returns a value copy safe to hand to callers without holding
// the queue's lock.
func (j *Job) snapshot() Job {
	return *j
}
