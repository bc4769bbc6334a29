package scheduler

// jobHeap implements heap.Interface for Jobs, ordered by (priority, seq).
// Lower Priority value = higher scheduling priority (popped first); the
// submission sequence number breaks ties so equal-priority jobs come out in
// strict FIFO order regardless of heap internals.
//
// The heap is not self-locking: the pool mutex guards every access.
type jobHeap []*Job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].Priority == h[j].Priority {
		return h[i].seq < h[j].seq
	}
	return h[i].Priority < h[j].Priority
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

// Push adds a job to the queue. Called by heap.Push; do not call directly.
func (h *jobHeap) Push(x any) {
	*h = append(*h, x.(*Job))
}

// Pop removes and returns the highest-priority job. Called by heap.Pop; do not call directly.
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = nil // avoid memory leak
	*h = old[:n-1]
	return j
}
