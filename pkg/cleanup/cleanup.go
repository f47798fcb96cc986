// Copyright 2025 Switchyard Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package cleanup orders process teardown. Subsystems register a named
// action with a priority at their own initialization time; at shutdown
// the registry runs every action once, highest priority first, and keeps
// going past failures so that teardown stays best-effort.
package cleanup

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

// DefaultCapacity bounds the entry table when NewRegistry is given a
// capacity below 1.
const DefaultCapacity = 32

var (
	// ErrRegistryFull is returned by Register once the entry table is at
	// capacity.
	ErrRegistryFull = errors.New("cleanup: registry full")

	// ErrExecuted is returned by Register once Execute has begun;
	// entries registered that late would never run.
	ErrExecuted = errors.New("cleanup: execution already started")

	// errCheckFailed normalizes a Check action reporting false.
	errCheckFailed = errors.New("reported failure")
)

// actionKind discriminates the callable shapes an Action may hold.
type actionKind uint8

const (
	kindNone actionKind = iota
	kindProc
	kindCheck
	kindOp
)

// Action is one teardown callable. Build it with Proc, Check or Op; the
// zero Action is invalid and rejected by Register.
type Action struct {
	kind  actionKind
	proc  func()
	check func() bool
	op    func() error
}

// Proc wraps a teardown step that cannot fail.
func Proc(fn func()) Action {
	if fn == nil {
		return Action{}
	}
	return Action{kind: kindProc, proc: fn}
}

// Check wraps a teardown step that reports success as a boolean.
func Check(fn func() bool) Action {
	if fn == nil {
		return Action{}
	}
	return Action{kind: kindCheck, check: fn}
}

// Op wraps a teardown step that returns an error.
func Op(fn func() error) Action {
	if fn == nil {
		return Action{}
	}
	return Action{kind: kindOp, op: fn}
}

func (a Action) valid() bool { return a.kind != kindNone }

// run invokes the wrapped callable and normalizes its outcome.
func (a Action) run() error {
	switch a.kind {
	case kindProc:
		a.proc()
		return nil
	case kindCheck:
		if !a.check() {
			return errCheckFailed
		}
		return nil
	case kindOp:
		return a.op()
	}
	return errors.New("no callable")
}

// entry is a registered action plus its execution priority.
type entry struct {
	name     string
	priority int
	action   Action
}

// Registry collects teardown entries and runs them exactly once.
//
// Registration is append-only and guarded by a mutex so subsystems may
// register from any goroutine. Execute consumes the entries: it is meant
// to run once, at process shutdown, after registration has ended.
type Registry struct {
	mu       sync.Mutex
	entries  []entry
	capacity int
	executed bool
	log      zerolog.Logger
}

// NewRegistry returns an empty registry holding at most capacity
// entries. Capacities below 1 fall back to DefaultCapacity.
func NewRegistry(capacity int, logger zerolog.Logger) *Registry {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Registry{
		entries:  make([]entry, 0, capacity),
		capacity: capacity,
		log:      logger,
	}
}

// Register appends a named action to run at the given priority. Higher
// priorities run earlier; entries sharing a priority run in registration
// order. Entries cannot be removed. Registration is rejected once the
// table is full and once Execute has begun.
func (r *Registry) Register(name string, priority int, action Action) error {
	if !action.valid() {
		return fmt.Errorf("cleanup: entry %q has no callable", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.executed {
		return ErrExecuted
	}
	if len(r.entries) >= r.capacity {
		return ErrRegistryFull
	}
	r.entries = append(r.entries, entry{name: name, priority: priority, action: action})
	return nil
}

// Len reports the number of registered entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Execute runs every entry in descending priority order, ties in
// registration order. A failing entry is logged and does not stop the
// rest; every failure is folded into the returned error. The entries are
// consumed: a second call finds none left and returns nil.
func (r *Registry) Execute() error {
	r.mu.Lock()
	if r.executed {
		r.mu.Unlock()
		return nil
	}
	r.executed = true
	entries := r.entries
	r.entries = nil
	r.mu.Unlock()

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].priority > entries[j].priority
	})

	var errs error
	for _, e := range entries {
		r.log.Debug().
			Str("entry", e.name).
			Int("priority", e.priority).
			Msg("running cleanup entry")
		if err := e.action.run(); err != nil {
			r.log.Error().
				Err(err).
				Str("entry", e.name).
				Int("priority", e.priority).
				Msg("cleanup entry failed")
			errs = multierr.Append(errs, fmt.Errorf("cleanup: %s: %w", e.name, err))
		}
	}
	return errs
}
