// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cancel provides cooperative cancellation for the slicing pipeline.
//
// A Controller wraps a context.Context for one processing round. Long
// running steps call Check at bounded intervals; Apply calls Cancel to stop
// the round before it mutates shared state. A cancellation is never an
// ordinary failure: Check returns a *CanceledError that IsCanceled
// recognizes, and callers pass it through unchanged.
package cancel

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Controller is the cancellation token of one processing round.
//
// Thread Safety: All methods are safe for concurrent use. A nil *Controller
// is valid and never cancels.
type Controller struct {
	ctx    context.Context
	cancel context.CancelCauseFunc

	state        atomic.Int32
	lastProgress atomic.Int64

	reason   *CancelReason
	reasonMu sync.RWMutex

	stop     StopCondition
	onCancel func(CancelReason)
	status   StatusFunc
}

// Option configures a Controller.
type Option func(*Controller)

// WithStopCondition installs a predicate polled by Check.
func WithStopCondition(fn StopCondition) Option {
	return func(c *Controller) { c.stop = fn }
}

// WithCancelCallback installs a hard-cancel callback run once, synchronously,
// by the first Cancel call.
func WithCancelCallback(fn func(CancelReason)) Option {
	return func(c *Controller) { c.onCancel = fn }
}

// WithStatus installs the progress callback.
func WithStatus(fn StatusFunc) Option {
	return func(c *Controller) { c.status = fn }
}

// NewController creates a running Controller derived from parent.
//
// Description:
//
//	The controller's context is canceled when parent is canceled or when
//	Cancel is called, whichever happens first.
//
// Inputs:
//   - parent: Parent context. nil is treated as context.Background().
//   - opts: Optional stop predicate, cancel callback and status callback.
//
// Outputs:
//   - *Controller: The running controller.
func NewController(parent context.Context, opts ...Option) *Controller {
	if parent == nil {
		parent = context.Background()
	}
	c := &Controller{}
	c.ctx, c.cancel = context.WithCancelCause(parent)
	for _, opt := range opts {
		opt(c)
	}
	c.lastProgress.Store(time.Now().UnixNano())
	return c
}

// Context returns the round context.
func (c *Controller) Context() context.Context {
	if c == nil {
		return context.Background()
	}
	return c.ctx
}

// Done returns a channel closed on cancellation.
func (c *Controller) Done() <-chan struct{} {
	if c == nil {
		return nil
	}
	return c.ctx.Done()
}

// State returns the current state.
func (c *Controller) State() State {
	if c == nil {
		return StateRunning
	}
	return State(c.state.Load())
}

// Cancel signals cancellation with the given reason.
//
// Description:
//
//	Only the first call has an effect: it records the reason, cancels the
//	round context and runs the hard-cancel callback. Later calls are no-ops.
func (c *Controller) Cancel(reason CancelReason) {
	if c == nil {
		return
	}
	if !c.state.CompareAndSwap(int32(StateRunning), int32(StateCanceled)) {
		return
	}

	c.reasonMu.Lock()
	if reason.Timestamp.IsZero() {
		reason.Timestamp = time.Now()
	}
	c.reason = &reason
	c.reasonMu.Unlock()

	cancellationsTotal.WithLabelValues(reason.Type.String()).Inc()
	c.cancel(&CanceledError{Reason: reason})

	if c.onCancel != nil {
		c.onCancel(reason)
	}
}

// Release frees the round context after the round has ended. The state and
// reason are left untouched and no metric is recorded, so releasing a
// finished round does not count as a cancellation.
func (c *Controller) Release() {
	if c == nil {
		return
	}
	c.cancel(context.Canceled)
}

// Reason returns the recorded cancellation reason, if any.
func (c *Controller) Reason() (CancelReason, bool) {
	if c == nil {
		return CancelReason{}, false
	}
	c.reasonMu.RLock()
	defer c.reasonMu.RUnlock()
	if c.reason == nil {
		return CancelReason{}, false
	}
	return *c.reason, true
}

// Canceled reports whether the round should stop, without side effects
// beyond latching a parent or stop-condition cancellation.
func (c *Controller) Canceled() bool {
	return c.Check() != nil
}

// Check returns nil while the round may continue.
//
// Description:
//
//	Check observes an explicit Cancel, the parent context and the stop
//	predicate. The first two observations latch into the controller's state
//	so every later Check reports the same reason.
//
// Outputs:
//   - error: nil, or a *CanceledError wrapping ErrCanceled.
//
// Thread Safety: Safe for concurrent use.
func (c *Controller) Check() error {
	if c == nil {
		return nil
	}
	c.lastProgress.Store(time.Now().UnixNano())

	if c.State() == StateRunning {
		switch {
		case c.ctx.Err() != nil:
			c.Cancel(CancelReason{Type: CancelParent, Message: c.ctx.Err().Error()})
		case c.stop != nil && c.stop():
			c.Cancel(CancelReason{Type: CancelStopCondition})
		}
	}
	if c.State() == StateRunning {
		return nil
	}
	reason, _ := c.Reason()
	return &CanceledError{Reason: reason}
}

// LastProgress returns the time of the most recent Check.
func (c *Controller) LastProgress() time.Time {
	if c == nil {
		return time.Time{}
	}
	return time.Unix(0, c.lastProgress.Load())
}

// Status forwards a progress report to the status callback.
func (c *Controller) Status(percent int, message string) {
	if c == nil || c.status == nil {
		return
	}
	c.status(Status{Percent: percent, Message: message})
}
