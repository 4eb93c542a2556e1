// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package background runs the SLA pipeline on its own goroutine.
//
// The edit side hands over snapshots from any goroutine; the processor
// keeps only the latest pending one, cancels the running round and
// reprocesses. Progress reaches the caller as throttled events.
package background

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianSlice/services/slicer/cancel"
	"github.com/AleutianAI/AleutianSlice/services/slicer/config"
	"github.com/AleutianAI/AleutianSlice/services/slicer/model"
	"github.com/AleutianAI/AleutianSlice/services/slicer/sla"
)

var tracer = otel.Tracer("aleutian.slicer.background")

var (
	// ErrRunning indicates Start on a processor that is already running.
	ErrRunning = errors.New("processor is already running")

	// ErrNotRunning indicates Apply on a processor that is not running.
	ErrNotRunning = errors.New("processor is not running")
)

// EventKind classifies processor events.
type EventKind int

const (
	// EventStatus is a throttled progress report from a running round.
	EventStatus EventKind = iota

	// EventApplied reports the outcome of applying a snapshot.
	EventApplied

	// EventFinished reports a round that completed every step.
	EventFinished

	// EventCanceled reports a round stopped by a newer snapshot or Stop.
	EventCanceled

	// EventFailed reports a rejected snapshot or a failed step.
	EventFailed
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventStatus:
		return "status"
	case EventApplied:
		return "applied"
	case EventFinished:
		return "finished"
	case EventCanceled:
		return "canceled"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is one notification from the processor.
type Event struct {
	// Round identifies the apply and process round.
	Round string

	Kind    EventKind
	Percent int
	Message string

	// Apply is set on EventApplied.
	Apply sla.ApplyStatus

	// Err is set on EventFailed and EventCanceled.
	Err error

	Time time.Time
}

// Config tunes a Processor.
type Config struct {
	// StatusInterval is the minimum spacing of status events. Zero means
	// DefaultConfig's value.
	StatusInterval time.Duration

	// StatusBurst is how many status events may pass back to back.
	StatusBurst int
}

// DefaultConfig returns ten status events per second with a burst of one.
func DefaultConfig() Config {
	return Config{StatusInterval: 100 * time.Millisecond, StatusBurst: 1}
}

type snapshot struct {
	model  *model.Model
	bundle config.Bundle
}

// Processor owns the pipeline goroutine.
//
// Description:
//
//	Apply clones the model on the caller's goroutine, cancels the running
//	round and replaces any pending snapshot. The loop applies the pending
//	snapshot to the print and processes it when anything is outstanding.
//	Events are delivered to the handler on the processor goroutine, or on
//	a step goroutine for status events, so the handler must not block and
//	must be safe for concurrent use.
//
// Thread Safety:
//
//	All methods are safe for concurrent use.
type Processor struct {
	print   *sla.Print
	logger  *slog.Logger
	limiter *rate.Limiter
	handler func(Event)

	round atomic.Pointer[string]

	mu      sync.Mutex
	pending *snapshot
	running bool
	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithEventHandler receives every event.
func WithEventHandler(fn func(Event)) Option {
	return func(p *Processor) { p.handler = fn }
}

// New creates a stopped processor around a fresh print.
//
// Inputs:
//   - cfg: Status throttling. Zero fields take DefaultConfig's values.
//   - printOpts: Passed to sla.New. A status option is added.
//   - opts: Processor options.
//
// Outputs:
//   - *Processor: Ready to Start.
func New(cfg Config, printOpts []sla.Option, opts ...Option) *Processor {
	def := DefaultConfig()
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = def.StatusInterval
	}
	if cfg.StatusBurst <= 0 {
		cfg.StatusBurst = def.StatusBurst
	}

	p := &Processor{
		logger:  slog.Default(),
		limiter: rate.NewLimiter(rate.Every(cfg.StatusInterval), cfg.StatusBurst),
		wake:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	all := append([]sla.Option{sla.WithLogger(p.logger)}, printOpts...)
	p.print = sla.New(append(all, sla.WithStatus(p.status))...)
	return p
}

// Print returns the print for read-only queries.
func (p *Processor) Print() *sla.Print {
	return p.print
}

// Running reports whether the loop is active.
func (p *Processor) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Start launches the loop. It stops when ctx is canceled or Stop is
// called.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return ErrRunning
	}
	p.running = true
	p.done = make(chan struct{})
	p.stopped = make(chan struct{})

	go p.loop(ctx, p.done, p.stopped)
	p.logger.Info("background processor started")
	return nil
}

// Stop cancels the running round and waits for the loop to exit. Stopping
// a stopped processor is a no-op.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.done)
	stopped := p.stopped
	p.mu.Unlock()

	p.print.Cancel(cancel.CancelReason{Type: cancel.CancelShutdown, Message: "processor stopped"})
	<-stopped
	p.logger.Info("background processor stopped")
}

// Apply hands a snapshot to the loop.
//
// Description:
//
//	The model is cloned with identity on the caller's goroutine, so the
//	caller may keep editing m as soon as Apply returns. A snapshot still
//	pending is replaced.
//
// Outputs:
//   - error: ErrNotRunning when the loop is stopped.
func (p *Processor) Apply(m *model.Model, bundle config.Bundle) error {
	if m == nil {
		return sla.ErrNilModel
	}
	snap := &snapshot{model: m.CloneWithIdentity(), bundle: bundle.Clone()}

	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return ErrNotRunning
	}
	if p.pending != nil {
		snapshotsReplacedTotal.Inc()
	}
	p.pending = snap
	p.mu.Unlock()

	p.print.Cancel(cancel.CancelReason{Type: cancel.CancelSuperseded, Message: "new snapshot"})
	select {
	case p.wake <- struct{}{}:
	default:
	}
	return nil
}

func (p *Processor) take() *snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.pending
	p.pending = nil
	return s
}

func (p *Processor) loop(ctx context.Context, done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	for {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.running = false
			p.mu.Unlock()
			return
		case <-done:
			return
		case <-p.wake:
		}

		for snap := p.take(); snap != nil; snap = p.take() {
			if closed(done) {
				return
			}
			p.runRound(ctx, done, snap)
		}
	}
}

// runRound applies one snapshot and processes it.
func (p *Processor) runRound(ctx context.Context, done <-chan struct{}, snap *snapshot) {
	id := uuid.NewString()
	p.round.Store(&id)
	logger := p.logger.With(slog.String("round", id))

	ctx, span := tracer.Start(ctx, "background.round",
		trace.WithAttributes(attribute.String("slicer.round", id)),
	)
	defer span.End()
	start := time.Now()

	st, err := p.print.Apply(snap.model, snap.bundle)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		roundsTotal.WithLabelValues("rejected").Inc()
		logger.Warn("snapshot rejected", slog.String("error", err.Error()))
		p.emit(Event{Round: id, Kind: EventFailed, Message: "snapshot rejected", Err: err})
		return
	}
	p.emit(Event{Round: id, Kind: EventApplied, Apply: st, Message: st.String()})

	err = p.processUntilSettled(ctx, done)
	switch {
	case err == nil:
		roundsTotal.WithLabelValues("finished").Inc()
		span.SetStatus(codes.Ok, "")
		logger.Info("round finished",
			slog.Int("layers", len(p.print.PrinterInput())),
			slog.Duration("duration", time.Since(start)),
		)
		p.emit(Event{Round: id, Kind: EventFinished, Percent: 100, Message: "finished"})
	case cancel.IsCanceled(err):
		roundsTotal.WithLabelValues("canceled").Inc()
		span.SetStatus(codes.Error, "canceled")
		logger.Debug("round canceled", slog.String("reason", err.Error()))
		p.emit(Event{Round: id, Kind: EventCanceled, Message: "canceled", Err: err})
	default:
		roundsTotal.WithLabelValues("failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("round failed", slog.String("error", err.Error()))
		p.emit(Event{Round: id, Kind: EventFailed, Message: fmt.Sprintf("processing failed: %v", err), Err: err})
	}
}

// processUntilSettled processes until the print is up to date. A round
// canceled while no newer snapshot is pending, and the processor is not
// stopping, was canceled on behalf of a snapshot this loop already applied,
// so it resumes.
func (p *Processor) processUntilSettled(ctx context.Context, done <-chan struct{}) error {
	for !p.print.UpToDate() {
		err := p.print.Process(ctx)
		if err == nil {
			return nil
		}
		if !cancel.IsCanceled(err) || p.hasPending() || ctx.Err() != nil || closed(done) {
			return err
		}
	}
	return nil
}

func (p *Processor) hasPending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending != nil
}

func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// status throttles step progress into status events. Completion reports
// always pass.
func (p *Processor) status(s cancel.Status) {
	if s.Percent < 100 && !p.limiter.Allow() {
		statusDroppedTotal.Inc()
		return
	}
	id := ""
	if r := p.round.Load(); r != nil {
		id = *r
	}
	p.emit(Event{Round: id, Kind: EventStatus, Percent: s.Percent, Message: s.Message})
}

func (p *Processor) emit(e Event) {
	if p.handler == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	p.handler(e)
}
