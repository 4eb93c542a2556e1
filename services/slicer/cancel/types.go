// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cancel

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrCanceled is the sentinel every cancellation error unwraps to.
	ErrCanceled = errors.New("processing canceled")
)

// CanceledError reports why a pipeline round stopped early.
type CanceledError struct {
	// Reason describes the cancellation.
	Reason CancelReason
}

// Error implements error.
func (e *CanceledError) Error() string {
	if e.Reason.Message == "" {
		return fmt.Sprintf("%v (%s)", ErrCanceled, e.Reason.Type)
	}
	return fmt.Sprintf("%v (%s): %s", ErrCanceled, e.Reason.Type, e.Reason.Message)
}

// Unwrap returns ErrCanceled.
func (e *CanceledError) Unwrap() error {
	return ErrCanceled
}

// IsCanceled reports whether err stems from cancellation, either through a
// Controller or a canceled context.Context.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled)
}

// -----------------------------------------------------------------------------
// Enums
// -----------------------------------------------------------------------------

// CancelType indicates why cancellation occurred.
type CancelType int

const (
	// CancelUser indicates the user asked to stop processing.
	CancelUser CancelType = iota

	// CancelSuperseded indicates a newer model snapshot replaced the one
	// being processed.
	CancelSuperseded

	// CancelStopCondition indicates the stop predicate reported true.
	CancelStopCondition

	// CancelParent indicates the parent context was canceled.
	CancelParent

	// CancelShutdown indicates the background processor is shutting down.
	CancelShutdown
)

// String returns the string representation of the cancel type.
func (t CancelType) String() string {
	switch t {
	case CancelUser:
		return "user"
	case CancelSuperseded:
		return "superseded"
	case CancelStopCondition:
		return "stop_condition"
	case CancelParent:
		return "parent"
	case CancelShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// State represents the lifecycle of a Controller.
type State int

const (
	// StateRunning indicates processing may continue.
	StateRunning State = iota

	// StateCanceled indicates cancellation was signaled.
	StateCanceled
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// CancelReason describes a cancellation.
type CancelReason struct {
	// Type is the cancellation category.
	Type CancelType

	// Message is a human-readable detail.
	Message string

	// Timestamp is when cancellation was requested. Zero is filled in by
	// Controller.Cancel.
	Timestamp time.Time
}

// Status is a progress report emitted by pipeline steps.
type Status struct {
	// Percent is the overall completion, 0 to 100.
	Percent int

	// Message describes the current activity.
	Message string
}

// StopCondition is polled by Check. Returning true cancels the round.
type StopCondition func() bool

// StatusFunc receives progress reports. It may be called from any goroutine.
type StatusFunc func(Status)

// FromContext returns the cancellation error of a done context, or nil.
//
// Description:
//
//	A context canceled through a Controller carries the *CanceledError as
//	its cause and that error is returned as is. Any other done context is
//	reported as a parent cancellation.
func FromContext(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	var ce *CanceledError
	if errors.As(context.Cause(ctx), &ce) {
		return ce
	}
	return &CanceledError{Reason: CancelReason{Type: CancelParent, Message: ctx.Err().Error()}}
}
