package dispatch

import (
	"errors"

	"github.com/eapache/queue"
)

// DefaultQueueCapacity bounds the job queue when PoolConfig leaves the
// capacity unset.
const DefaultQueueCapacity = 100

// ErrQueueFull is returned by Enqueue when the queue is at capacity.
var ErrQueueFull = errors.New("dispatch: job queue full")

// Queue is a bounded FIFO of pending jobs.
//
// It does no locking of its own: the owning Pool serializes every access
// under its mutex, so this is a plain sequential container. Storage is a
// growable ring buffer; the fixed capacity is enforced here.
type Queue struct {
	items    *queue.Queue
	capacity int
}

// NewQueue returns an empty queue holding at most capacity jobs.
// Capacities below 1 fall back to DefaultQueueCapacity.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{items: queue.New(), capacity: capacity}
}

// Enqueue appends a job at the tail. A full queue rejects the job and is
// left untouched.
func (q *Queue) Enqueue(j Job) error {
	if q.Full() {
		return ErrQueueFull
	}
	q.items.Add(j)
	return nil
}

// Dequeue removes and returns the head job. ok is false when the queue
// is empty.
func (q *Queue) Dequeue() (j Job, ok bool) {
	if q.items.Length() == 0 {
		return Job{}, false
	}
	return q.items.Remove().(Job), true
}

// Len reports the number of queued jobs.
func (q *Queue) Len() int { return q.items.Length() }

// Empty reports whether no jobs are queued.
func (q *Queue) Empty() bool { return q.items.Length() == 0 }

// Full reports whether the queue is at capacity.
func (q *Queue) Full() bool { return q.items.Length() >= q.capacity }

// Cap returns the fixed capacity.
func (q *Queue) Cap() int { return q.capacity }
