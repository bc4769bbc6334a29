package runtime

import (
	"errors"
	"fmt"
	"time"
)

// ErrTimeout marks an execution that exceeded its wall-clock budget.
// The child process has already been killed when this is returned.
var ErrTimeout = errors.New("execution timed out")

// ConfigError indicates a runtime binary is missing or unusable.
// It is fatal at construction time; a pool is never built on a broken runtime.
type ConfigError struct {
	Binary string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("runtime binary %q unusable: %v", e.Binary, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsConfigError reports whether err is a runtime configuration failure.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// ExecError indicates the probe (or another structured invocation) exited
// non-zero or produced unusable output.
type ExecError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExecError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("execution failed (exit %d): %v", e.ExitCode, e.Err)
	}
	return fmt.Sprintf("execution failed (exit %d): %s", e.ExitCode, e.Stderr)
}

func (e *ExecError) Unwrap() error { return e.Err }

// TimeoutError carries the budget that was exceeded. errors.Is(err, ErrTimeout)
// holds for every TimeoutError.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("process killed after exceeding %s budget", e.Timeout)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }
