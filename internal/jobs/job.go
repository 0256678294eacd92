// Package jobs runs book translations as tracked jobs. A job moves through
// pending, running and one of succeeded or failed; a failed job may be run
// again, reusing the documents it already finished.
package jobs

import (
	"errors"
	"fmt"
	"sync"

	"github.com/valpere/epubtran/internal"
)

var (
	// ErrJobNotFound is returned for unknown job ids.
	ErrJobNotFound = errors.New("job not found")
	// ErrInvalidTransition is returned when a status change is not allowed.
	ErrInvalidTransition = errors.New("invalid job transition")
)

// Job is the live, concurrency-safe view of one job.
type Job struct {
	mu  sync.RWMutex
	rec internal.JobRecord
}

// NewJob wraps rec. An empty status is taken as pending.
func NewJob(rec internal.JobRecord) *Job {
	if rec.Status == "" {
		rec.Status = internal.JobPending
	}
	return &Job{rec: rec}
}

func (j *Job) ID() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.rec.ID
}

// Snapshot returns a copy of the current record.
func (j *Job) Snapshot() internal.JobRecord {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.rec
}

// Transition validates and applies a status change. Re-entering the current
// status is a no-op.
func (j *Job) Transition(to internal.JobStatus) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	from := j.rec.Status
	if from == to {
		return nil
	}
	if !isValidTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	j.rec.Status = to
	if to == internal.JobRunning {
		j.rec.Error = ""
	}
	return nil
}

// SetProgress records a completed fraction. Progress never goes backwards.
func (j *Job) SetProgress(fraction float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if fraction > j.rec.Progress {
		j.rec.Progress = min(fraction, 1)
	}
}

func (j *Job) update(fn func(rec *internal.JobRecord)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	fn(&j.rec)
}

// isValidTransition enforces the allowed job state machine edges.
func isValidTransition(from, to internal.JobStatus) bool {
	switch from {
	case internal.JobPending:
		return to == internal.JobRunning || to == internal.JobFailed
	case internal.JobRunning:
		return to == internal.JobSucceeded || to == internal.JobFailed
	case internal.JobFailed:
		return to == internal.JobRunning
	default:
		return false
	}
}
