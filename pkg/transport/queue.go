package transport

import (
	"sync"
	"time"
)

// job is one delivery run by Process.
type job func(cb Callbacks)

// jobQueue is an unbounded FIFO. Producers never block, so a stack can
// queue deliveries for its peers while holding its own locks.
type jobQueue struct {
	mu     sync.Mutex
	jobs   []job
	ready  chan struct{}
	closed bool
}

func newJobQueue() *jobQueue {
	return &jobQueue{ready: make(chan struct{}, 1)}
}

func (q *jobQueue) push(j job) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.jobs = append(q.jobs, j)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// take waits up to timeout for jobs and returns all of them. It reports
// false once the queue is closed and drained.
func (q *jobQueue) take(timeout time.Duration) ([]job, bool) {
	if jobs, open := q.drain(); len(jobs) > 0 || !open {
		return jobs, open
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-q.ready:
	case <-timer.C:
	}
	return q.drain()
}

func (q *jobQueue) drain() ([]job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	jobs := q.jobs
	q.jobs = nil
	return jobs, !q.closed || len(jobs) > 0
}

func (q *jobQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.jobs = nil
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}
