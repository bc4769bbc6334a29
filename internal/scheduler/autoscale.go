package scheduler

import "time"

// autoscale is the periodic controller. Each tick reads queue depth and the
// worker count and takes at most one scaling action, never crossing the
// configured [MinWorkers, MaxWorkers] bounds. It runs for the pool's
// lifetime and terminates only on the global stop signal.
func (p *Pool) autoscale() {
	defer p.wg.Done()

	t := time.NewTicker(p.cfg.ScaleInterval)
	defer t.Stop()

	for {
		select {
		case <-p.quit:
			return
		case <-t.C:
			p.scaleTick()
		}
	}
}

func (p *Pool) scaleTick() {
	p.mu.Lock()

	depth := 0
	for _, j := range p.queue {
		if j.Status == StatusPending {
			depth++
		}
	}
	// Draining workers are on their way out; scaling decisions only count
	// the ones that will still be here next tick.
	count := 0
	for _, w := range p.workers {
		if !w.draining {
			count++
		}
	}

	switch {
	case depth > p.cfg.ScaleUpThreshold && count < p.cfg.MaxWorkers:
		add := p.cfg.ScaleStep
		if count+add > p.cfg.MaxWorkers {
			add = p.cfg.MaxWorkers - count
		}
		for i := 0; i < add; i++ {
			p.spawnWorkerLocked()
		}
		p.mu.Unlock()
		p.log.Info().
			Int("queue_depth", depth).
			Int("from", count).
			Int("to", count+add).
			Msg("scaled up")

	case depth < p.cfg.ScaleDownThreshold && count > p.cfg.MinWorkers:
		w := p.pickVictimLocked()
		if w == nil {
			p.mu.Unlock()
			return
		}
		w.draining = true
		close(w.stop)
		p.mu.Unlock()
		p.log.Info().
			Int("queue_depth", depth).
			Int("worker", w.id).
			Int("from", count).
			Int("to", count-1).
			Msg("scaled down")

	default:
		p.mu.Unlock()
	}
}

// pickVictimLocked chooses the worker to cancel on scale-down: the newest
// idle worker if one exists, otherwise the newest busy one (it finishes its
// current job before exiting). Caller holds p.mu.
func (p *Pool) pickVictimLocked() *workerHandle {
	var idle, busy *workerHandle
	for _, w := range p.workers {
		if w.draining {
			continue
		}
		if w.current == nil {
			if idle == nil || w.id > idle.id {
				idle = w
			}
		} else {
			if busy == nil || w.id > busy.id {
				busy = w
			}
		}
	}
	if idle != nil {
		return idle
	}
	return busy
}
