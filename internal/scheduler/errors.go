package scheduler

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by status queries for unknown job ids.
	ErrNotFound = errors.New("job not found")

	// ErrStopped rejects submissions after Shutdown has been called.
	ErrStopped = errors.New("scheduler stopped")

	// ErrProbeUnsupported is returned by ProbeMedia when the pool's executor
	// cannot inspect media inputs.
	ErrProbeUnsupported = errors.New("executor does not support probing")
)

// ValidationError rejects a bad submission synchronously; no job is created.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid submission: %s", e.Reason)
}

// IsValidation reports whether err is a submission validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
