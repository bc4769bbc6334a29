package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"transcode-scheduler/internal/runtime"
	"transcode-scheduler/pkg/models"
)

// fakeExec simulates the execution runtime. Each call sleeps delay, records
// the first arg, and returns the configured outcome.
type fakeExec struct {
	mu       sync.Mutex
	calls    []string
	delay    time.Duration
	exitCode int
	stderr   string
	err      error

	// gate, when set, blocks every execution until the channel is closed.
	gate chan struct{}

	// panicOnce makes the first execution panic.
	panicOnce bool
}

func (f *fakeExec) Execute(_ context.Context, args []string, _ time.Duration) (runtime.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, args[0])
	doPanic := f.panicOnce
	f.panicOnce = false
	f.mu.Unlock()

	if doPanic {
		panic("encoder blew up")
	}
	if f.gate != nil {
		<-f.gate
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return runtime.Result{ExitCode: f.exitCode, Stderr: f.stderr}, f.err
}

func (f *fakeExec) callOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newTestPool(t *testing.T, cfg Config, exec Executor) *Pool {
	t.Helper()
	p := New(cfg, exec, zerolog.Nop())
	t.Cleanup(func() { p.Shutdown(true) })
	return p
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s: %s", d, msg)
}

func TestSubmit_Validation(t *testing.T) {
	p := newTestPool(t, Config{MinWorkers: 1}, &fakeExec{})

	if _, err := p.Submit("transcode", nil, 1, time.Second, nil); !IsValidation(err) {
		t.Errorf("empty args: expected validation error, got %v", err)
	}
	if _, err := p.Submit("transcode", []string{"-i", "a.mkv"}, 1, 0, nil); !IsValidation(err) {
		t.Errorf("zero timeout: expected validation error, got %v", err)
	}
	if _, err := p.Submit("transcode", []string{"-i", "a.mkv"}, 1, -time.Second, nil); !IsValidation(err) {
		t.Errorf("negative timeout: expected validation error, got %v", err)
	}

	// Nothing was registered for the rejected submissions.
	if m := p.Metrics(); m.QueueDepth != 0 {
		t.Errorf("expected empty queue, got depth %d", m.QueueDepth)
	}
}

func TestSubmit_ImmediateStatusIsPending(t *testing.T) {
	// A huge poll interval keeps the idle worker asleep, so the job stays
	// queued long enough to observe it.
	p := newTestPool(t, Config{MinWorkers: 1, PollInterval: time.Hour}, &fakeExec{})

	id, err := p.Submit("transcode", []string{"-i", "a.mkv"}, 1, time.Second, nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	s, err := p.JobStatus(id)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if s.Status != "pending" {
		t.Errorf("expected pending, got %s", s.Status)
	}
}

func TestJobStatus_Unknown(t *testing.T) {
	p := newTestPool(t, Config{MinWorkers: 1}, &fakeExec{})

	if _, err := p.JobStatus("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDispatch_PriorityThenFIFO(t *testing.T) {
	gate := make(chan struct{})
	exec := &fakeExec{gate: gate}
	p := newTestPool(t, Config{MinWorkers: 1, MaxWorkers: 1, PollInterval: 5 * time.Millisecond}, exec)

	// Occupy the single worker so subsequent submissions queue up.
	if _, err := p.Submit("transcode", []string{"blocker"}, 0, time.Minute, nil); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return len(exec.callOrder()) == 1 }, "blocker started")

	// Lower priority first, then equal-priority pair, then a late high-priority job.
	p.Submit("transcode", []string{"low-1"}, 5, time.Minute, nil)
	p.Submit("transcode", []string{"low-2"}, 5, time.Minute, nil)
	p.Submit("transcode", []string{"high"}, 1, time.Minute, nil)

	close(gate)

	waitFor(t, 5*time.Second, func() bool { return len(exec.callOrder()) == 4 }, "all jobs executed")

	got := exec.callOrder()
	want := []string{"blocker", "high", "low-1", "low-2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("dispatch order = %v, want %v", got, want)
		}
	}
}

func TestCancel_PendingOnly(t *testing.T) {
	gate := make(chan struct{})
	exec := &fakeExec{gate: gate}
	p := newTestPool(t, Config{MinWorkers: 1, MaxWorkers: 1, PollInterval: 5 * time.Millisecond}, exec)

	runningID, _ := p.Submit("transcode", []string{"running"}, 0, time.Minute, nil)
	waitFor(t, 2*time.Second, func() bool {
		s, _ := p.JobStatus(runningID)
		return s.Status == "running"
	}, "first job running")

	pendingID, _ := p.Submit("transcode", []string{"queued"}, 1, time.Minute, nil)

	if !p.Cancel(pendingID) {
		t.Error("cancel of a pending job should return true")
	}
	if s, _ := p.JobStatus(pendingID); s.Status != "cancelled" {
		t.Errorf("expected cancelled, got %s", s.Status)
	}

	// A second cancel of the same job is a no-op.
	if p.Cancel(pendingID) {
		t.Error("cancel of an already-cancelled job should return false")
	}
	if p.Cancel(runningID) {
		t.Error("cancel of a running job should return false")
	}
	if p.Cancel("unknown-id") {
		t.Error("cancel of an unknown job should return false")
	}

	close(gate)

	// The running job was never interrupted.
	waitFor(t, 2*time.Second, func() bool {
		s, _ := p.JobStatus(runningID)
		return s.Status == "completed"
	}, "running job completed")

	// The cancelled job must never execute.
	if order := exec.callOrder(); len(order) != 1 {
		t.Errorf("expected 1 execution, got %v", order)
	}
}

func TestWorker_FailureOutcomes(t *testing.T) {
	t.Run("non-zero exit", func(t *testing.T) {
		exec := &fakeExec{exitCode: 1, stderr: "no such file: in.mkv"}
		p := newTestPool(t, Config{MinWorkers: 1, PollInterval: 5 * time.Millisecond}, exec)

		id, _ := p.Submit("transcode", []string{"bad"}, 0, time.Second, nil)
		waitFor(t, 2*time.Second, func() bool {
			s, _ := p.JobStatus(id)
			return s.Status == "failed"
		}, "job failed")

		s, _ := p.JobStatus(id)
		if s.Error == "" || s.CompletedAt == nil {
			t.Errorf("expected captured error and completion time, got %+v", s)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		exec := &fakeExec{err: &runtime.TimeoutError{Timeout: 100 * time.Millisecond}}
		p := newTestPool(t, Config{MinWorkers: 1, PollInterval: 5 * time.Millisecond}, exec)

		id, _ := p.Submit("transcode", []string{"slow"}, 0, 100*time.Millisecond, nil)
		waitFor(t, 2*time.Second, func() bool {
			s, _ := p.JobStatus(id)
			return s.Status == "failed"
		}, "job failed on timeout")

		s, _ := p.JobStatus(id)
		if s.Error != (&runtime.TimeoutError{Timeout: 100 * time.Millisecond}).Error() {
			t.Errorf("expected timeout-flavored error, got %q", s.Error)
		}
	})

	t.Run("panic is contained", func(t *testing.T) {
		exec := &fakeExec{panicOnce: true}
		p := newTestPool(t, Config{MinWorkers: 1, PollInterval: 5 * time.Millisecond}, exec)

		first, _ := p.Submit("transcode", []string{"boom"}, 0, time.Second, nil)
		waitFor(t, 2*time.Second, func() bool {
			s, _ := p.JobStatus(first)
			return s.Status == "failed"
		}, "panicking job failed")

		// The same worker must survive and process the next job.
		second, _ := p.Submit("transcode", []string{"fine"}, 0, time.Second, nil)
		waitFor(t, 2*time.Second, func() bool {
			s, _ := p.JobStatus(second)
			return s.Status == "completed"
		}, "worker survived the panic")
	})
}

func TestMetrics_ProcessedTotals(t *testing.T) {
	exec := &fakeExec{}
	p := newTestPool(t, Config{MinWorkers: 2, MaxWorkers: 2, PollInterval: 5 * time.Millisecond}, exec)

	for i := 0; i < 10; i++ {
		if _, err := p.Submit("transcode", []string{"job"}, 1, time.Second, nil); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	waitFor(t, 5*time.Second, func() bool {
		m := p.Metrics()
		return m.Processed == 10 && m.Failed == 0
	}, "10 jobs processed with 0 failures")

	m := p.Metrics()
	if m.QueueDepth != 0 {
		t.Errorf("expected drained queue, got depth %d", m.QueueDepth)
	}
	if m.ActiveWorkers+m.IdleWorkers != 2 {
		t.Errorf("expected 2 workers, got %d active + %d idle", m.ActiveWorkers, m.IdleWorkers)
	}
}

// probingExec is a fakeExec that also answers media probes.
type probingExec struct {
	fakeExec
	probed []string
}

func (f *probingExec) Probe(_ context.Context, path string) (models.MediaInfo, error) {
	f.mu.Lock()
	f.probed = append(f.probed, path)
	f.mu.Unlock()
	return models.MediaInfo{
		Format: models.MediaFormat{Filename: path, Duration: "42.0"},
	}, nil
}

func TestProbeMedia_DelegatesToExecutor(t *testing.T) {
	exec := &probingExec{}
	p := newTestPool(t, Config{MinWorkers: 1}, exec)

	info, err := p.ProbeMedia(context.Background(), "in.mkv")
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if info.Format.Filename != "in.mkv" || info.Format.Duration != "42.0" {
		t.Errorf("unexpected media info: %+v", info.Format)
	}
	if len(exec.probed) != 1 || exec.probed[0] != "in.mkv" {
		t.Errorf("probe calls = %v", exec.probed)
	}
}

func TestProbeMedia_UnsupportedExecutor(t *testing.T) {
	p := newTestPool(t, Config{MinWorkers: 1}, &fakeExec{})

	if _, err := p.ProbeMedia(context.Background(), "in.mkv"); !errors.Is(err, ErrProbeUnsupported) {
		t.Errorf("expected ErrProbeUnsupported, got %v", err)
	}
}

func TestSubmit_RacingShutdownNeverStrandsAJob(t *testing.T) {
	exec := &fakeExec{}
	p := New(Config{MinWorkers: 2, MaxWorkers: 2, PollInterval: 5 * time.Millisecond}, exec, zerolog.Nop())

	var mu sync.Mutex
	var accepted []string

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				id, err := p.Submit("transcode", []string{"job"}, 1, time.Second, nil)
				if err != nil {
					if !errors.Is(err, ErrStopped) {
						t.Errorf("unexpected submit error: %v", err)
					}
					return
				}
				mu.Lock()
				accepted = append(accepted, id)
				mu.Unlock()
			}
		}()
	}

	time.Sleep(10 * time.Millisecond) // let submissions overlap the stop
	p.Shutdown(true)
	wg.Wait()

	// Every submission the pool accepted must have been executed by the
	// drain; a job acknowledged before shutdown can never be left Pending.
	mu.Lock()
	defer mu.Unlock()
	for _, id := range accepted {
		s, err := p.JobStatus(id)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if s.Status != "completed" {
			t.Errorf("job %s stranded in state %s after drained shutdown", id, s.Status)
		}
	}
}

func TestShutdown_DrainsQueueAndIsIdempotent(t *testing.T) {
	exec := &fakeExec{delay: 20 * time.Millisecond}
	p := New(Config{MinWorkers: 2, MaxWorkers: 2, PollInterval: 5 * time.Millisecond}, exec, zerolog.Nop())

	var ids []string
	for i := 0; i < 6; i++ {
		id, err := p.Submit("transcode", []string{"job"}, 1, time.Second, nil)
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		ids = append(ids, id)
	}

	done := make(chan struct{}, 2)
	go func() { p.Shutdown(true); done <- struct{}{} }()
	go func() { p.Shutdown(true); done <- struct{}{} }()

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Fatal("shutdown did not return")
		}
	}

	// No job was discarded: every submission reached a terminal state.
	for _, id := range ids {
		s, err := p.JobStatus(id)
		if err != nil {
			t.Fatalf("status after shutdown: %v", err)
		}
		if s.Status != "completed" {
			t.Errorf("job %s: expected completed, got %s", id, s.Status)
		}
	}

	if _, err := p.Submit("transcode", []string{"late"}, 1, time.Second, nil); !errors.Is(err, ErrStopped) {
		t.Errorf("submit after shutdown: expected ErrStopped, got %v", err)
	}
}
