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
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianSlice/services/slicer/cancel"
)

var (
	tracer = otel.Tracer("aleutian.slicer.step")
	meter  = otel.Meter("aleutian.slicer.step")
)

// Engine computes the steps of one owner.
type Engine[S ~int] interface {
	// Compute runs step s. It returns a cancellation error unchanged when
	// the round is canceled.
	Compute(ctx context.Context, s S) error

	// Applicable reports whether s has work to do under the current
	// configuration. Non-applicable steps are skipped.
	Applicable(s S) bool
}

// instruments holds the OTel meter instruments shared by every Runner.
type instruments struct {
	once        sync.Once
	active      metric.Int64UpDownCounter
	completions metric.Int64Counter
}

var otelMetrics instruments

// initMetrics lazily initializes the OTel instruments.
// Logs errors if creation fails but continues (graceful degradation).
func initMetrics(logger *slog.Logger) {
	otelMetrics.once.Do(func() {
		var initErrors []string
		var err error

		otelMetrics.active, err = meter.Int64UpDownCounter("slicer_active_steps",
			metric.WithDescription("Number of currently executing pipeline steps"),
		)
		if err != nil {
			initErrors = append(initErrors, "active_steps: "+err.Error())
		}

		otelMetrics.completions, err = meter.Int64Counter("slicer_step_completions_total",
			metric.WithDescription("Number of pipeline steps completed"),
		)
		if err != nil {
			initErrors = append(initErrors, "step_completions: "+err.Error())
		}

		if len(initErrors) > 0 {
			logger.Error("failed to initialize some step metrics (observability degraded)",
				slog.Int("failed_count", len(initErrors)),
				slog.Any("errors", initErrors),
			)
		}
	})
}

// Runner walks the outstanding steps of a State.
//
// Description:
//
//	Steps run strictly sequentially in declared order. A disabled or
//	non-applicable step is marked done without computing, so its dependents
//	see it satisfied. A step is marked done only after Compute returns nil.
//
// Thread Safety: A Runner is stateless and safe for concurrent use. Two
// concurrent Run calls must not share a State.
type Runner[S ~int] struct {
	logger *slog.Logger
}

// NewRunner creates a Runner. A nil logger uses slog.Default().
func NewRunner[S ~int](logger *slog.Logger) *Runner[S] {
	if logger == nil {
		logger = slog.Default()
	}
	initMetrics(logger)
	return &Runner[S]{logger: logger}
}

// Run computes every outstanding step of state.
//
// Inputs:
//   - ctx: Round context. Checked before each step.
//   - owner: Identifies the state in logs, spans and errors.
//   - state: The step flags to advance.
//   - engine: Computes individual steps.
//
// Outputs:
//   - error: nil when every step is done; a cancellation error, unchanged,
//     when the round was canceled; otherwise a *StepError.
func (r *Runner[S]) Run(ctx context.Context, owner string, state *State[S], engine Engine[S]) error {
	table := state.Table()
	for _, s := range state.Outstanding() {
		if err := cancel.FromContext(ctx); err != nil {
			return err
		}

		name := table.StepName(s)
		if !state.Enabled(s) || !engine.Applicable(s) {
			state.SetDone(s)
			stepRunsTotal.WithLabelValues(table.Name(), name, "skipped").Inc()
			r.logger.Debug("step skipped",
				slog.String("table", table.Name()),
				slog.String("step", name),
				slog.String("owner", owner),
			)
			continue
		}

		for _, dep := range table.DependsOn(s) {
			if !state.IsDone(dep) {
				return &StepError{Table: table.Name(), Owner: owner, Step: name, Err: ErrDependencyNotDone}
			}
		}

		if err := r.runStep(ctx, owner, table, state, engine, s); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner[S]) runStep(ctx context.Context, owner string, table *Table[S], state *State[S], engine Engine[S], s S) error {
	name := table.StepName(s)
	ctx, span := tracer.Start(ctx, table.Name()+"."+name,
		trace.WithAttributes(
			attribute.String("slicer.table", table.Name()),
			attribute.String("slicer.step", name),
			attribute.String("slicer.owner", owner),
		),
	)
	defer span.End()

	attrs := metric.WithAttributes(attribute.String("table", table.Name()), attribute.String("step", name))
	if otelMetrics.active != nil {
		otelMetrics.active.Add(ctx, 1, attrs)
		defer otelMetrics.active.Add(ctx, -1, attrs)
	}

	r.logger.Debug("step starting",
		slog.String("table", table.Name()),
		slog.String("step", name),
		slog.String("owner", owner),
	)

	state.SetStarted(s)
	start := time.Now()
	err := engine.Compute(ctx, s)
	duration := time.Since(start)
	stepDuration.WithLabelValues(table.Name(), name).Observe(duration.Seconds())

	if err != nil {
		state.Abort(s)
		span.RecordError(err)
		if cancel.IsCanceled(err) {
			span.SetStatus(codes.Error, "canceled")
			stepRunsTotal.WithLabelValues(table.Name(), name, "canceled").Inc()
			r.logger.Debug("step canceled",
				slog.String("step", name),
				slog.String("owner", owner),
				slog.Duration("duration", duration),
			)
			return err
		}
		span.SetStatus(codes.Error, err.Error())
		stepRunsTotal.WithLabelValues(table.Name(), name, "failed").Inc()
		r.logger.Error("step failed",
			slog.String("table", table.Name()),
			slog.String("step", name),
			slog.String("owner", owner),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()),
		)
		return &StepError{Table: table.Name(), Owner: owner, Step: name, Err: err}
	}

	state.SetDone(s)
	span.SetStatus(codes.Ok, "")
	stepRunsTotal.WithLabelValues(table.Name(), name, "done").Inc()
	if otelMetrics.completions != nil {
		otelMetrics.completions.Add(ctx, 1, attrs)
	}
	r.logger.Debug("step completed",
		slog.String("table", table.Name()),
		slog.String("step", name),
		slog.String("owner", owner),
		slog.Duration("duration", duration),
	)
	return nil
}
