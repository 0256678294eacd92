package internal

import "time"

// JobStatus is the lifecycle state of a translation job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether the job has finished, successfully or not.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// JobRecord is the persisted view of a translation job. OutputName, when
// set, names the output file instead of the book title and target.
type JobRecord struct {
	ID         string    `json:"id"`
	InputName  string    `json:"input_name"`
	InputPath  string    `json:"-"`
	TargetLang string    `json:"target_lang"`
	Provider   string    `json:"provider"`
	Status     JobStatus `json:"status"`
	Progress   float64   `json:"progress"`
	OutputPath string    `json:"-"`
	OutputName string    `json:"-"`
	Error      string    `json:"error,omitempty"`
	Report     string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
