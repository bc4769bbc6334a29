package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"transcode-scheduler/internal/runtime"
	"transcode-scheduler/pkg/models"
)

// Executor runs one external command under a wall-clock budget.
// *runtime.Runtime is the production implementation; tests inject fakes.
type Executor interface {
	Execute(ctx context.Context, args []string, timeout time.Duration) (runtime.Result, error)
}

// Prober is implemented by executors that can also inspect media inputs.
// *runtime.Runtime satisfies it through its probe binary.
type Prober interface {
	Probe(ctx context.Context, path string) (models.MediaInfo, error)
}

// workerHandle is the pool's accounting record for one worker goroutine.
// All fields except id and stop are guarded by the pool lock.
type workerHandle struct {
	id   int
	stop chan struct{} // closed to cancel this worker individually

	// draining means a scale-down decision has been taken for this worker.
	// The goroutine finishes its current job (if any) and exits; it stays in
	// the accounting set until it actually returns, so metrics never
	// undercount a live worker.
	draining bool

	current *Job // job being executed, nil when idle
}

// runWorker is the worker loop. It repeatedly claims the highest-priority
// pending job and executes it. The loop exits when this worker is cancelled
// by a scale-down, or when the global stop signal is set and the queue has
// drained; queued jobs are never discarded at shutdown.
func (p *Pool) runWorker(w *workerHandle) {
	defer p.wg.Done()
	defer p.retireWorker(w)

	log := p.log.With().Int("worker", w.id).Logger()
	log.Debug().Msg("worker started")

	for {
		// A scale-down cancellation wins over queued work.
		select {
		case <-w.stop:
			log.Debug().Msg("worker removed by scale-down")
			return
		default:
		}

		j := p.claim(w)
		if j == nil {
			select {
			case <-w.stop:
				log.Debug().Msg("worker removed by scale-down")
				return
			case <-p.quit:
				// Re-check the queue: jobs submitted just before shutdown
				// still get processed.
				if p.claimable() {
					continue
				}
				log.Debug().Msg("worker stopped, queue drained")
				return
			case <-time.After(p.cfg.PollInterval):
			}
			continue
		}

		p.executeJob(w, j, log)
	}
}

// executeJob runs one claimed job to a terminal state. Any error or panic
// escaping execution is recorded on the job; nothing here can kill the loop.
func (p *Pool) executeJob(w *workerHandle, j *Job, log zerolog.Logger) {
	log.Info().
		Str("job", j.ID).
		Str("kind", j.Kind).
		Int("priority", j.Priority).
		Msg("job started")

	var res runtime.Result
	var err error
	func() {
		// One bad job must never terminate a worker.
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("unexpected worker error: %v", r)
				log.Error().
					Str("job", j.ID).
					Any("panic", r).
					Str("stack", string(debug.Stack())).
					Msg("job panicked")
			}
		}()
		res, err = p.exec.Execute(context.Background(), j.Args, j.Timeout)
	}()

	now := time.Now()

	p.mu.Lock()
	w.current = nil
	j.CompletedAt = &now
	switch {
	case err != nil:
		j.Status = StatusFailed
		j.Err = err.Error()
	case res.ExitCode != 0:
		j.Status = StatusFailed
		j.Err = fmt.Sprintf("exit code %d: %s", res.ExitCode, truncate(res.Stderr, 512))
	default:
		j.Status = StatusCompleted
	}
	status := j.Status
	errMsg := j.Err
	dur := now.Sub(*j.StartedAt)
	p.mu.Unlock()

	if status == StatusFailed {
		log.Warn().
			Str("job", j.ID).
			Dur("took", dur).
			Str("error", errMsg).
			Msg("job failed")
		return
	}
	log.Info().
		Str("job", j.ID).
		Dur("took", dur).
		Msg("job completed")
}

// truncate caps captured stderr so a chatty encoder can't bloat the job table.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
