// Package dispatch runs opaque jobs on a fixed set of worker goroutines
// fed from a bounded FIFO queue. Jobs execute in submission order but
// complete in whatever order the workers finish them; there is no
// work stealing, resizing or per-job priority.
package dispatch

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

var (
	// ErrPoolStopped is returned by Submit once Shutdown has been
	// requested. The check happens under the same mutex that guards the
	// state transition, so a submission racing Shutdown is either queued
	// and will run, or rejected; never lost.
	ErrPoolStopped = errors.New("dispatch: pool is stopping")

	// ErrNilJob is returned by Submit for a job with no function.
	ErrNilJob = errors.New("dispatch: job function is nil")
)

// poolState is the one-way lifecycle of a Pool.
type poolState uint8

const (
	stateRunning poolState = iota
	stateStopping
)

// PoolConfig configures NewPool.
type PoolConfig struct {
	// Workers is the number of worker goroutines. Must be at least 1.
	Workers int

	// QueueCapacity bounds the pending-job queue. Values below 1 fall
	// back to DefaultQueueCapacity.
	QueueCapacity int

	// Logger receives pool lifecycle events.
	Logger zerolog.Logger
}

// Pool owns the job queue and the workers draining it. The mutex guards
// the queue and the lifecycle state together; workers park on the
// condition variable while the pool is running and the queue is empty.
// Job bodies run outside the lock, so a slow job never stalls
// submissions or the other workers.
type Pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   *Queue
	state   poolState
	wg      sync.WaitGroup
	workers int
	log     zerolog.Logger
}

// NewPool starts cfg.Workers workers and returns the running pool.
// A worker count below 1 is an error.
func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("dispatch: worker count must be at least 1, got %d", cfg.Workers)
	}

	p := &Pool{
		queue:   NewQueue(cfg.QueueCapacity),
		workers: cfg.Workers,
		log:     cfg.Logger,
	}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.log.Debug().
		Int("workers", cfg.Workers).
		Int("queue_capacity", p.queue.Cap()).
		Msg("worker pool started")
	return p, nil
}

// Submit queues a job and wakes one idle worker. It rejects the job once
// Shutdown has been requested and when the queue is full; a rejected job
// leaves pool and queue untouched. Submit never blocks on job execution.
func (p *Pool) Submit(job Job) error {
	if job.Fn == nil {
		return ErrNilJob
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != stateRunning {
		return ErrPoolStopped
	}
	if err := p.queue.Enqueue(job); err != nil {
		return err
	}
	p.cond.Signal()
	return nil
}

// Shutdown moves the pool to its terminal state, wakes every worker and
// blocks until all of them have returned. Jobs already queued are
// executed before the workers exit, and a job in flight finishes
// normally. Safe to call more than once; later calls wait for the same
// completion.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.state != stateStopping {
		p.state = stateStopping
		p.cond.Broadcast()
		p.log.Info().
			Int("queued", p.queue.Len()).
			Msg("worker pool shutting down")
	}
	p.mu.Unlock()

	p.wg.Wait()
}

// QueueLen reports how many jobs are waiting for a worker.
func (p *Pool) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Len()
}

// Running reports whether the pool still accepts submissions.
func (p *Pool) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == stateRunning
}

// Workers returns the fixed worker count.
func (p *Pool) Workers() int { return p.workers }

// worker is the per-goroutine loop. It parks while the pool is running
// and the queue is empty, drains the remaining queue after a stop
// request, and exits only once the pool is stopping and the queue is
// empty.
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for p.state == stateRunning && p.queue.Empty() {
			p.cond.Wait()
		}
		if p.state == stateStopping && p.queue.Empty() {
			p.mu.Unlock()
			p.log.Debug().Int("worker_id", id).Msg("worker exiting")
			return
		}
		job, _ := p.queue.Dequeue()
		p.mu.Unlock()

		job.Fn(job.Arg)
	}
}
