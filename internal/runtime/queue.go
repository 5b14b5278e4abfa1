package runtime

import (
	"context"
	"errors"
	"sync"
)

var errQueueClosed = errors.New("job queue closed")

// job is one serialized render or persist operation.
type job struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	done chan error // buffered, size 1
}

// jobQueue runs jobs one at a time in submission order.
//
// The queue is unbounded so that watch flushes never block the timer that
// scheduled them. A failing job reports to its own submitter only; the
// jobs behind it still run.
type jobQueue struct {
	mu     sync.Mutex
	jobs   []*job
	closed bool
	signal chan struct{} // buffered, size 1
	exited chan struct{}
}

// newJobQueue creates a queue and starts its worker.
func newJobQueue() *jobQueue {
	q := &jobQueue{
		jobs:   make([]*job, 0, 8),
		signal: make(chan struct{}, 1),
		exited: make(chan struct{}),
	}
	go q.work()
	return q
}

// enqueue adds a job to the back of the queue.
// Returns false if the queue is closed.
func (q *jobQueue) enqueue(j *job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.jobs = append(q.jobs, j)
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// tryDequeue removes the front job without blocking.
func (q *jobQueue) tryDequeue() (*job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return nil, false
	}
	j := q.jobs[0]
	q.jobs[0] = nil
	if len(q.jobs) == 1 {
		q.jobs = q.jobs[:0]
	} else {
		q.jobs = q.jobs[1:]
	}
	return j, true
}

func (q *jobQueue) work() {
	defer close(q.exited)
	for {
		if j, ok := q.tryDequeue(); ok {
			j.done <- q.run(j)
			continue
		}
		q.mu.Lock()
		if q.closed && len(q.jobs) == 0 {
			q.mu.Unlock()
			return
		}
		q.mu.Unlock()
		<-q.signal
	}
}

func (q *jobQueue) run(j *job) error {
	if err := j.ctx.Err(); err != nil {
		return err
	}
	return j.fn(j.ctx)
}

// do submits fn and waits for its result. It returns errQueueClosed
// without running fn if the queue is closed.
func (q *jobQueue) do(ctx context.Context, fn func(ctx context.Context) error) error {
	j := &job{ctx: ctx, fn: fn, done: make(chan error, 1)}
	if !q.enqueue(j) {
		return errQueueClosed
	}
	return <-j.done
}

// len returns the number of waiting jobs.
func (q *jobQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// close stops accepting jobs and waits until the queued ones have run.
func (q *jobQueue) close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.signal)
	}
	q.mu.Unlock()
	<-q.exited
}
