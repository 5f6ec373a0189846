package dlqueue

import (
	"container/heap"
	"sync"
	"time"
)

const initialQueueCap = 64

// PriorityQueue holds pending jobs. Pop returns the highest priority job;
// jobs of the same priority come out in the order they were pushed.
//
// The queue is unbounded. Admission control belongs to the caller
// (see Options.MaxBacklog).
type PriorityQueue struct {
	mu   sync.Mutex
	h    jobHeap
	seq  uint64
	wake chan struct{} // one-slot, signalled whenever the heap is non-empty
}

// NewPriorityQueue creates an empty queue.
func NewPriorityQueue() *PriorityQueue {
	q := &PriorityQueue{
		h:    make(jobHeap, 0, initialQueueCap),
		wake: make(chan struct{}, 1),
	}
	heap.Init(&q.h)
	return q
}

// Push enqueues job at its current priority. A job that comes back for a
// retry gets a fresh sequence number and waits behind its new peers.
func (q *PriorityQueue) Push(job *Job) bool {
	q.mu.Lock()
	q.seq++
	heap.Push(&q.h, &queued{job: job, prio: job.priority, seq: q.seq})
	q.mu.Unlock()
	q.signal()
	return true
}

// Pop removes the next job, waiting up to timeout for one to arrive.
// On timeout it returns nil, false.
func (q *PriorityQueue) Pop(timeout time.Duration) (*Job, bool) {
	if job, ok := q.tryPop(); ok {
		return job, true
	}
	if timeout <= 0 {
		return nil, false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-q.wake:
			if job, ok := q.tryPop(); ok {
				return job, true
			}
		case <-timer.C:
			return q.tryPop()
		}
	}
}

func (q *PriorityQueue) tryPop() (*Job, bool) {
	q.mu.Lock()
	if q.h.Len() == 0 {
		q.mu.Unlock()
		return nil, false
	}
	it := heap.Pop(&q.h).(*queued)
	more := q.h.Len() > 0
	q.mu.Unlock()

	// pass the wake-up on so another waiter picks up the rest
	if more {
		q.signal()
	}
	return it.job, true
}

func (q *PriorityQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of pending jobs.
func (q *PriorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.h.Len()
}
