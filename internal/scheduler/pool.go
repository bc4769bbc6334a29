package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"transcode-scheduler/pkg/models"
)

// Config holds the pool's tunable parameters.
type Config struct {
	MinWorkers int
	MaxWorkers int

	// Queue-depth thresholds driving the autoscaler. Correct operation
	// requires ScaleDownThreshold < ScaleUpThreshold; that is the caller's
	// responsibility, not enforced here.
	ScaleUpThreshold   int
	ScaleDownThreshold int

	// ScaleStep is how many workers one scale-up action may add.
	ScaleStep int

	// ScaleInterval is the autoscaler's tick period.
	ScaleInterval time.Duration

	// PollInterval bounds how long an idle worker sleeps between queue checks.
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.MinWorkers <= 0 {
		c.MinWorkers = 1
	}
	if c.MaxWorkers < c.MinWorkers {
		c.MaxWorkers = c.MinWorkers
	}
	if c.ScaleStep <= 0 {
		c.ScaleStep = 1
	}
	if c.ScaleInterval <= 0 {
		c.ScaleInterval = 2 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 50 * time.Millisecond
	}
	return c
}

// Pool accepts job submissions, owns the job table and priority queue, and
// runs a bounded, autoscaled set of workers that execute jobs through an
// Executor. The single mutex guards the queue, the job table, and every
// worker accounting record.
type Pool struct {
	cfg  Config
	exec Executor
	log  zerolog.Logger

	mu      sync.Mutex
	queue   jobHeap
	jobs    map[string]*Job
	workers map[int]*workerHandle
	nextWID int
	stopped bool // set under mu before quit closes; gates Submit

	seq atomic.Uint64

	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds a pool on top of an already-validated executor and starts
// MinWorkers workers plus the autoscaling loop. Construction of the
// production executor (internal/runtime) is where broken binary paths fail;
// by the time a pool exists the runtime is known-good.
func New(cfg Config, exec Executor, log zerolog.Logger) *Pool {
	cfg = cfg.withDefaults()
	p := &Pool{
		cfg:     cfg,
		exec:    exec,
		log:     log,
		jobs:    make(map[string]*Job),
		workers: make(map[int]*workerHandle),
		quit:    make(chan struct{}),
	}

	p.mu.Lock()
	for i := 0; i < cfg.MinWorkers; i++ {
		p.spawnWorkerLocked()
	}
	p.mu.Unlock()

	p.wg.Add(1)
	go p.autoscale()

	log.Info().
		Int("min_workers", cfg.MinWorkers).
		Int("max_workers", cfg.MaxWorkers).
		Dur("scale_interval", cfg.ScaleInterval).
		Msg("worker pool started")

	return p
}

// Submit validates and enqueues a new job, returning its id. It is always
// synchronous and non-blocking: the job is Pending when Submit returns.
func (p *Pool) Submit(kind string, args []string, priority int, timeout time.Duration, metadata map[string]string) (string, error) {
	if len(args) == 0 {
		return "", &ValidationError{Reason: "args must not be empty"}
	}
	if timeout <= 0 {
		return "", &ValidationError{Reason: "timeout must be positive"}
	}

	j := &Job{
		ID:        xid.New().String(),
		Kind:      kind,
		Args:      append([]string(nil), args...),
		Priority:  priority,
		seq:       p.seq.Add(1),
		Status:    StatusPending,
		CreatedAt: time.Now(),
		Timeout:   timeout,
	}
	if len(metadata) > 0 {
		j.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			j.Metadata[k] = v
		}
	}

	// The stop check and the register+push must be one atomic step: a job
	// accepted here is in the queue before workers can observe the stop
	// signal with an empty queue, so a draining shutdown always picks it up.
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return "", ErrStopped
	}
	p.jobs[j.ID] = j
	heap.Push(&p.queue, j)
	depth := p.queue.Len()
	p.mu.Unlock()

	p.log.Debug().
		Str("job", j.ID).
		Str("kind", kind).
		Int("priority", priority).
		Int("queue_depth", depth).
		Msg("job submitted")

	return j.ID, nil
}

// ProbeMedia inspects a media input through the executor's probe binary so
// callers can validate an input before submitting work against it. Returns
// ErrProbeUnsupported when the pool runs on an executor without probing.
func (p *Pool) ProbeMedia(ctx context.Context, path string) (models.MediaInfo, error) {
	pr, ok := p.exec.(Prober)
	if !ok {
		return models.MediaInfo{}, ErrProbeUnsupported
	}
	return pr.Probe(ctx, path)
}

// JobStatus returns a snapshot of the job, or ErrNotFound.
func (p *Pool) JobStatus(id string) (models.JobSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	j, ok := p.jobs[id]
	if !ok {
		return models.JobSnapshot{}, ErrNotFound
	}
	return j.snapshot(), nil
}

// Cancel marks a Pending job Cancelled and reports true. Running, terminal,
// and unknown jobs are left untouched and report false; cancellation never
// interrupts in-flight execution.
func (p *Pool) Cancel(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	j, ok := p.jobs[id]
	if !ok || j.Status != StatusPending {
		return false
	}
	now := time.Now()
	j.Status = StatusCancelled
	j.CompletedAt = &now
	// The entry stays in the heap; claim() skips non-pending jobs.
	p.log.Debug().Str("job", id).Msg("job cancelled")
	return true
}

// Metrics computes a fresh aggregate from the current worker and job-table
// state. Job records are copied out under the lock; the aggregation itself
// runs without holding it.
func (p *Pool) Metrics() models.MetricsSnapshot {
	type jobStat struct {
		status  Status
		retries int
		dur     time.Duration
	}

	p.mu.Lock()
	m := models.MetricsSnapshot{}
	for _, w := range p.workers {
		if w.current != nil {
			m.ActiveWorkers++
		} else {
			m.IdleWorkers++
		}
	}
	stats := make([]jobStat, 0, len(p.jobs))
	for _, j := range p.jobs {
		s := jobStat{status: j.Status, retries: j.RetryCount}
		if j.Status == StatusPending {
			m.QueueDepth++
		}
		if j.Status == StatusCompleted && j.StartedAt != nil && j.CompletedAt != nil {
			s.dur = j.CompletedAt.Sub(*j.StartedAt)
		}
		stats = append(stats, s)
	}
	p.mu.Unlock()

	var total time.Duration
	for _, s := range stats {
		switch s.status {
		case StatusCompleted:
			m.Processed++
			total += s.dur
		case StatusFailed:
			m.Failed++
		case StatusCancelled:
			m.Cancelled++
		}
		m.Retried += s.retries
	}
	if m.Processed > 0 {
		m.AvgJobDuration = total / time.Duration(m.Processed)
	}
	return m
}

// Shutdown sets the global stop signal for the autoscaler and all workers.
// With wait=true it blocks until the queue has drained and every worker
// goroutine has exited; with wait=false it returns immediately and in-flight
// and queued jobs finish asynchronously. Safe to call more than once; every
// waiting call returns only once all workers have exited.
func (p *Pool) Shutdown(wait bool) {
	p.stopOnce.Do(func() {
		p.log.Info().Bool("wait", wait).Msg("worker pool shutting down")
		// Flip the submission gate under the lock before releasing the quit
		// signal: anything Submit accepted is already queued, anything later
		// gets ErrStopped, so no job can slip in behind draining workers.
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
		close(p.quit)
	})
	if wait {
		p.wg.Wait()
	}
}

// claim pops the highest-priority pending job and marks it Running for w,
// all under the lock so a concurrent Cancel can never race the transition.
// Returns nil when no pending job is queued.
func (p *Pool) claim(w *workerHandle) *Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.queue.Len() > 0 {
		j := heap.Pop(&p.queue).(*Job)
		if j.Status != StatusPending {
			// Cancelled while queued; skip the stale heap entry.
			continue
		}
		now := time.Now()
		j.Status = StatusRunning
		j.StartedAt = &now
		w.current = j
		return j
	}
	return nil
}

// claimable reports whether any pending job is queued.
func (p *Pool) claimable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, j := range p.queue {
		if j.Status == StatusPending {
			return true
		}
	}
	return false
}

// spawnWorkerLocked registers and starts one worker. Caller holds p.mu.
func (p *Pool) spawnWorkerLocked() {
	p.nextWID++
	w := &workerHandle{
		id:   p.nextWID,
		stop: make(chan struct{}),
	}
	p.workers[w.id] = w
	p.wg.Add(1)
	go p.runWorker(w)
}

// retireWorker drops a worker from the accounting set once its goroutine has
// actually exited, so a draining worker is never undercounted while alive.
func (p *Pool) retireWorker(w *workerHandle) {
	p.mu.Lock()
	delete(p.workers, w.id)
	p.mu.Unlock()
}
