//go:build unix

// Copyright 2025 Switchyard Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package poller implements a poll(2) driven readiness loop. Callers
// register descriptors with an interest mask and a callback; one
// goroutine drives ProcessEvents (or Run) and dispatches the callbacks
// of whatever became ready. Callbacks never run concurrently with each
// other, so multiplexer users get single-threaded dispatch without
// locking of their own.
package poller

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// DefaultCapacity bounds the descriptor table when New is given a
// capacity below 1.
const DefaultCapacity = 64

var (
	// ErrInvalidFD is returned by Add for negative descriptors.
	ErrInvalidFD = errors.New("poller: invalid file descriptor")

	// ErrAlreadyWatched is returned by Add when the descriptor is
	// registered; the existing registration is left untouched.
	ErrAlreadyWatched = errors.New("poller: descriptor already registered")

	// ErrNotWatched is returned by Modify and Remove for unknown
	// descriptors.
	ErrNotWatched = errors.New("poller: descriptor not registered")

	// ErrPollerFull is returned by Add once the table is at capacity.
	ErrPollerFull = errors.New("poller: descriptor table full")
)

// Callback handles one readiness notification. It runs on the goroutine
// driving ProcessEvents and may call Add, Modify and Remove freely. It
// must not block for long: every other descriptor waits until it
// returns.
type Callback func(fd int, events Events, data any)

// watch is one registered descriptor.
type watch struct {
	fd     int
	events Events
	cb     Callback
	data   any
}

// Poller multiplexes readiness for a bounded set of descriptors.
//
// The table is guarded by a mutex so that worker goroutines can re-arm
// or drop descriptors while another goroutine blocks in ProcessEvents.
// The blocking wait operates on a snapshot taken under the lock: a
// descriptor added during the wait is not polled until the next
// iteration, and one removed during the wait may still get a final
// callback from the snapshot it was part of.
type Poller struct {
	mu       sync.Mutex
	watches  map[int]watch
	capacity int
	running  atomic.Bool
	stop     atomic.Bool
	log      zerolog.Logger
}

// New returns an empty poller holding at most capacity descriptors.
// Capacities below 1 fall back to DefaultCapacity.
func New(capacity int, logger zerolog.Logger) *Poller {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Poller{
		watches:  make(map[int]watch, capacity),
		capacity: capacity,
		log:      logger,
	}
}

// Add registers fd with the given interest mask. Error, Hangup and
// Invalid conditions are reported whether requested or not. The callback
// receives data verbatim on every notification. The poller never closes
// registered descriptors; their owners keep that duty.
func (p *Poller) Add(fd int, events Events, cb Callback, data any) error {
	if fd < 0 {
		return ErrInvalidFD
	}
	if cb == nil {
		return fmt.Errorf("poller: nil callback for fd %d", fd)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.watches[fd]; ok {
		return ErrAlreadyWatched
	}
	if len(p.watches) >= p.capacity {
		return ErrPollerFull
	}
	p.watches[fd] = watch{fd: fd, events: events, cb: cb, data: data}
	p.log.Debug().
		Int("fd", fd).
		Str("events", events.String()).
		Msg("descriptor registered")
	return nil
}

// Modify replaces the interest mask of a registered descriptor.
func (p *Poller) Modify(fd int, events Events) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.watches[fd]
	if !ok {
		return ErrNotWatched
	}
	w.events = events
	p.watches[fd] = w
	return nil
}

// Remove drops a registered descriptor.
func (p *Poller) Remove(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.watches[fd]; !ok {
		return ErrNotWatched
	}
	delete(p.watches, fd)
	p.log.Debug().Int("fd", fd).Msg("descriptor removed")
	return nil
}

// Size reports the number of registered descriptors.
func (p *Poller) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.watches)
}

// ProcessEvents performs one blocking readiness wait and dispatches the
// callback of every descriptor with a pending condition, returning the
// number of callbacks dispatched. The wait lasts at most timeout; a
// negative timeout blocks until something is ready. With an empty table
// the wait degenerates to a plain sleep.
//
// A wait interrupted by signal delivery counts as zero events, not an
// error. Any other wait failure is returned as-is; the poller never
// retries internally.
func (p *Poller) ProcessEvents(timeout time.Duration) (int, error) {
	p.mu.Lock()
	fds := make([]unix.PollFd, 0, len(p.watches))
	snapshot := make([]watch, 0, len(p.watches))
	for _, w := range p.watches {
		fds = append(fds, unix.PollFd{Fd: int32(w.fd), Events: int16(w.events)})
		snapshot = append(snapshot, w)
	}
	p.mu.Unlock()

	ms := -1
	if timeout >= 0 {
		ms = int(timeout.Milliseconds())
	}

	n, err := unix.Poll(fds, ms)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, fmt.Errorf("poller: wait failed: %w", err)
	}
	if n == 0 {
		return 0, nil
	}

	dispatched := 0
	for i := range fds {
		revents := Events(fds[i].Revents)
		if revents == 0 {
			continue
		}
		w := snapshot[i]
		w.cb(w.fd, revents, w.data)
		dispatched++
	}
	return dispatched, nil
}

// Run drives ProcessEvents in a loop until Stop is called, using the
// same timeout for every wait. The stop flag is checked between
// iterations, so a request takes effect once the in-flight wait returns.
// A second Run while the loop is already active is a no-op success. The
// first wait failure ends the loop and is returned.
func (p *Poller) Run(timeout time.Duration) error {
	if !p.running.CompareAndSwap(false, true) {
		return nil
	}
	defer p.running.Store(false)
	defer p.stop.Store(false)

	p.log.Info().Msg("event loop started")
	for !p.stop.Load() {
		if _, err := p.ProcessEvents(timeout); err != nil {
			p.log.Error().Err(err).Msg("event loop stopped on wait failure")
			return err
		}
	}
	p.log.Info().Msg("event loop stopped")
	return nil
}

// Stop requests Run to exit. Cooperative: the in-flight wait finishes
// first. The request latches, so a Stop issued before Run starts makes
// that Run return immediately instead of being lost; Run consumes the
// latch on exit.
func (p *Poller) Stop() {
	p.stop.Store(true)
}

// Running reports whether a Run loop is active.
func (p *Poller) Running() bool {
	return p.running.Load()
}

// Close stops the loop and empties the descriptor table. Registered
// descriptors are not closed. The poller accepts registrations again
// afterwards; Close exists for teardown paths that want the table gone
// in one call.
func (p *Poller) Close() {
	p.Stop()

	p.mu.Lock()
	n := len(p.watches)
	p.watches = make(map[int]watch)
	p.mu.Unlock()

	if n > 0 {
		p.log.Debug().Int("descriptors", n).Msg("descriptor table cleared")
	}
}
