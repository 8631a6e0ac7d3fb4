package entity

import (
	"time"
)

type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusDone       JobStatus = "done"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

func (s JobStatus) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusDone, StatusFailed:
		return true
	default:
		return false
	}
}

// CanTransition enforces queued -> processing -> {done|failed}.
// A queued job may fail directly (e.g. the pool shuts down before it starts).
// Progress updates keep the status and are not transitions.
func (s JobStatus) CanTransition(to JobStatus) bool {
	switch s {
	case StatusQueued:
		return to == StatusProcessing || to == StatusFailed
	case StatusProcessing:
		return to == StatusDone || to == StatusFailed
	default:
		return false
	}
}

type Job struct {
	ID          string    `json:"id"`
	Status      JobStatus `json:"status"`
	Progress    int       `json:"progress"`
	Preset      Preset    `json:"preset"`
	Filename    string    `json:"filename"`
	InputPath   string    `json:"-"`
	OutputPath  string    `json:"-"`
	Error       string    `json:"error,omitempty"`
	InputBytes  int64     `json:"input_bytes"`
	OutputBytes int64     `json:"output_bytes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
}

// CompletionRecord is appended to the metadata store once per finished job.
type CompletionRecord struct {
	JobID       string
	Filename    string
	Preset      Preset
	InputBytes  int64
	OutputBytes int64
	Duration    time.Duration
	CompletedAt time.Time
}
