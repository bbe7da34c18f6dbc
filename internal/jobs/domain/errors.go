package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotClaimed is returned when ExecuteJob receives a job that is not
	// in running status. A job must be claimed before it is executed.
	ErrJobNotClaimed = errors.New("job is not in running status")

	// ErrUnknownJobType is returned when no handler is registered for a job's type
	ErrUnknownJobType = errors.New("unknown job type")

	// ErrInvalidPayload is returned when a job payload is missing a required field
	ErrInvalidPayload = errors.New("invalid job payload")

	// ErrInvalidPriority is returned when a priority is outside [1,10]
	ErrInvalidPriority = errors.New("invalid priority")

	// ErrLibraryPathNotFound is returned when a referenced library path does not exist
	ErrLibraryPathNotFound = errors.New("library path not found")
)

// ExecutionError wraps a handler failure after the job row has already been
// moved to its retry or failed state. The runner logs it; the row is settled
// either way.
type ExecutionError struct {
	JobID   string
	JobType string
	Err     error
}

func (e *ExecutionError) Error() string {
	return "job execution failed: " + e.Err.Error()
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// NewExecutionError creates a new ExecutionError for the given job.
func NewExecutionError(jobID, jobType string, err error) error {
	return &ExecutionError{JobID: jobID, JobType: jobType, Err: err}
}
