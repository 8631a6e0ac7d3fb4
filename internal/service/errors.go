package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrTooLarge     = errors.New("upload too large")
	ErrNotFound     = errors.New("job not found")
	ErrNotReady     = errors.New("job not finished")
	ErrJobFailed    = errors.New("job failed")
	ErrStorage      = errors.New("storage error")
	ErrUnavailable  = errors.New("service unavailable")
)

// JobFailedError carries the diagnostic recorded on a failed job.
type JobFailedError struct {
	JobID   string
	Message string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Message)
}

func (e *JobFailedError) Is(target error) bool {
	return target == ErrJobFailed
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
