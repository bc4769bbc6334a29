package scheduler

import (
	"time"

	"transcode-scheduler/pkg/models"
)

// Status represents the lifecycle state of a job.
type Status int

const (
	StatusPending   Status = iota // waiting in the queue
	StatusRunning                 // claimed by a worker and executing
	StatusCompleted               // finished with exit code 0
	StatusFailed                  // non-zero exit, timeout, or worker error
	StatusCancelled               // cancelled before a worker claimed it
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are permitted from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Job is one unit of work: an external command invocation tracked through a
// status lifecycle. The pool's job table owns every Job; all mutable fields
// are guarded by the pool lock, and a terminal job is never written again.
type Job struct {
	ID       string
	Kind     string
	Args     []string
	Priority int // lower value = higher priority

	// seq is assigned atomically at submission and breaks priority ties,
	// making equal-priority dispatch strictly FIFO.
	seq uint64

	Status      Status
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Err         string

	// Retry bookkeeping. Tracked for callers that resubmit failed work;
	// the pool itself never retries.
	RetryCount int
	MaxRetries int

	Timeout  time.Duration
	Metadata map[string]string
}

// snapshot copies the job into a caller-owned view.
// Must be called with the pool lock held.
func (j *Job) snapshot() models.JobSnapshot {
	s := models.JobSnapshot{
		ID:         j.ID,
		Kind:       j.Kind,
		Args:       append([]string(nil), j.Args...),
		Priority:   j.Priority,
		Status:     j.Status.String(),
		CreatedAt:  j.CreatedAt,
		Error:      j.Err,
		RetryCount: j.RetryCount,
		MaxRetries: j.MaxRetries,
		Timeout:    j.Timeout,
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		s.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		s.CompletedAt = &t
	}
	if len(j.Metadata) > 0 {
		s.Metadata = make(map[string]string, len(j.Metadata))
		for k, v := range j.Metadata {
			s.Metadata[k] = v
		}
	}
	return s
}
