// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package step

import (
	"sync"
)

// State tracks the done and started flags of one owner's steps, plus a skip
// mask of disabled steps.
//
// Thread Safety: All methods are safe for concurrent use. The OnInvalidate
// hook runs after the lock is released.
type State[S ~int] struct {
	table *Table[S]

	mu       sync.RWMutex
	done     []bool
	started  []bool
	disabled []bool

	onInvalidate func(cleared []S)
}

// NewState creates a State with every step undone and enabled.
func NewState[S ~int](table *Table[S]) *State[S] {
	n := table.Len()
	return &State[S]{
		table:    table,
		done:     make([]bool, n),
		started:  make([]bool, n),
		disabled: make([]bool, n),
	}
}

// Table returns the table the state tracks.
func (st *State[S]) Table() *Table[S] {
	return st.table
}

// OnInvalidate installs a hook called with the steps an invalidation
// actually cleared. The owner uses it to cascade into other levels.
func (st *State[S]) OnInvalidate(fn func(cleared []S)) {
	st.mu.Lock()
	st.onInvalidate = fn
	st.mu.Unlock()
}

// IsDone reports whether s completed and has not been invalidated since.
func (st *State[S]) IsDone(s S) bool {
	i := st.table.position(s)
	if i < 0 {
		return false
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.done[i]
}

// IsStarted reports whether s is running.
func (st *State[S]) IsStarted(s S) bool {
	i := st.table.position(s)
	if i < 0 {
		return false
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.started[i]
}

// SetStarted marks s as running.
func (st *State[S]) SetStarted(s S) {
	st.set(s, func(i int) { st.started[i] = true })
}

// SetDone marks s as done and no longer running.
func (st *State[S]) SetDone(s S) {
	st.set(s, func(i int) {
		st.started[i] = false
		st.done[i] = true
	})
}

// Abort clears the running flag of s without marking it done.
func (st *State[S]) Abort(s S) {
	st.set(s, func(i int) { st.started[i] = false })
}

func (st *State[S]) set(s S, fn func(i int)) {
	i := st.table.position(s)
	if i < 0 {
		return
	}
	st.mu.Lock()
	fn(i)
	st.mu.Unlock()
}

// Invalidate clears s and every step that transitively depends on it.
//
// Description:
//
//	Steps s depends on are never touched. The return value reports whether
//	any done or started flag was actually cleared, so invalidating an
//	already undone chain is a no-op that returns false.
//
// Outputs:
//   - bool: True if anything was cleared.
func (st *State[S]) Invalidate(s S) bool {
	if !st.table.Has(s) {
		return false
	}
	return st.InvalidateMany(append([]S{s}, st.table.dependents[s]...)...)
}

// InvalidateMany invalidates each step in ss.
func (st *State[S]) InvalidateMany(ss ...S) bool {
	marked := make([]bool, st.table.Len())
	for _, s := range ss {
		i := st.table.position(s)
		if i < 0 {
			continue
		}
		marked[i] = true
		for _, d := range st.table.dependents[s] {
			marked[st.table.position(d)] = true
		}
	}

	st.mu.Lock()
	var cleared []S
	for i, m := range marked {
		if !m || (!st.done[i] && !st.started[i]) {
			continue
		}
		st.done[i] = false
		st.started[i] = false
		cleared = append(cleared, st.table.defs[i].Step)
	}
	hook := st.onInvalidate
	st.mu.Unlock()

	if len(cleared) == 0 {
		return false
	}
	for _, s := range cleared {
		invalidationsTotal.WithLabelValues(st.table.name, st.table.StepName(s)).Inc()
	}
	if hook != nil {
		hook(cleared)
	}
	return true
}

// InvalidateAll clears every step.
func (st *State[S]) InvalidateAll() bool {
	return st.InvalidateMany(st.table.Steps()...)
}

// Enable sets whether s takes part in processing. A disabled step is
// skipped by the runner and counts as satisfied for its dependents.
// Changing the setting invalidates s.
func (st *State[S]) Enable(s S, on bool) {
	i := st.table.position(s)
	if i < 0 {
		return
	}
	st.mu.Lock()
	changed := st.disabled[i] == on
	st.disabled[i] = !on
	st.mu.Unlock()
	if changed {
		st.Invalidate(s)
	}
}

// Enabled reports whether s takes part in processing.
func (st *State[S]) Enabled(s S) bool {
	i := st.table.position(s)
	if i < 0 {
		return false
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	return !st.disabled[i]
}

// Outstanding lists the undone steps in declared order.
func (st *State[S]) Outstanding() []S {
	st.mu.RLock()
	defer st.mu.RUnlock()
	var out []S
	for i, d := range st.table.defs {
		if !st.done[i] {
			out = append(out, d.Step)
		}
	}
	return out
}

// AllDone reports whether every step is done.
func (st *State[S]) AllDone() bool {
	return len(st.Outstanding()) == 0
}
