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
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSlice/services/slicer/cancel"
)

type chainStep int

const (
	stepA chainStep = iota
	stepB
	stepC
	stepD
)

func chainTable(t *testing.T) *Table[chainStep] {
	t.Helper()
	tbl, err := NewTable("chain", []Def[chainStep]{
		{Step: stepA, Name: "a"},
		{Step: stepB, Name: "b", DependsOn: []chainStep{stepA}},
		{Step: stepC, Name: "c", DependsOn: []chainStep{stepB}},
		{Step: stepD, Name: "d", DependsOn: []chainStep{stepA}},
	})
	require.NoError(t, err)
	return tbl
}

// fakeEngine records computed steps and injects per-step errors.
type fakeEngine struct {
	computed  []chainStep
	errs      map[chainStep]error
	skip      map[chainStep]bool
	onCompute func(chainStep)
}

func (e *fakeEngine) Compute(_ context.Context, s chainStep) error {
	if e.onCompute != nil {
		e.onCompute(s)
	}
	if err := e.errs[s]; err != nil {
		return err
	}
	e.computed = append(e.computed, s)
	return nil
}

func (e *fakeEngine) Applicable(s chainStep) bool {
	return !e.skip[s]
}

func TestNewTable_Validation(t *testing.T) {
	tests := []struct {
		name string
		defs []Def[chainStep]
		want error
	}{
		{"empty", nil, ErrEmptyTable},
		{"duplicate", []Def[chainStep]{{Step: stepA}, {Step: stepA}}, ErrDuplicateStep},
		{"unknown", []Def[chainStep]{{Step: stepA, DependsOn: []chainStep{stepC}}}, ErrUnknownStep},
		{"self cycle", []Def[chainStep]{{Step: stepA, DependsOn: []chainStep{stepA}}}, ErrCycleDetected},
		{"two cycle", []Def[chainStep]{
			{Step: stepA, DependsOn: []chainStep{stepB}},
			{Step: stepB, DependsOn: []chainStep{stepA}},
		}, ErrCycleDetected},
		{"declared after", []Def[chainStep]{
			{Step: stepA, DependsOn: []chainStep{stepB}},
			{Step: stepB},
		}, ErrDeclarationOrder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable("t", tt.defs)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestNewTable_CyclePath(t *testing.T) {
	_, err := NewTable("t", []Def[chainStep]{
		{Step: stepA, Name: "a", DependsOn: []chainStep{stepB}},
		{Step: stepB, Name: "b", DependsOn: []chainStep{stepA}},
	})
	var ce *CycleError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, []string{"a", "b", "a"}, ce.Path)
}

func TestTable_Dependents(t *testing.T) {
	tbl := chainTable(t)
	assert.Equal(t, []chainStep{stepB, stepC, stepD}, tbl.Dependents(stepA))
	assert.Equal(t, []chainStep{stepC}, tbl.Dependents(stepB))
	assert.Empty(t, tbl.Dependents(stepC))
	assert.Equal(t, "b", tbl.StepName(stepB))
	assert.Equal(t, []chainStep{stepA}, tbl.DependsOn(stepB))
}

func TestState_InvalidateChain(t *testing.T) {
	tbl := chainTable(t)
	st := NewState(tbl)
	for _, s := range tbl.Steps() {
		st.SetDone(s)
	}

	var hooked []chainStep
	st.OnInvalidate(func(cleared []chainStep) { hooked = append(hooked, cleared...) })

	assert.True(t, st.Invalidate(stepB))
	assert.True(t, st.IsDone(stepA))
	assert.False(t, st.IsDone(stepB))
	assert.False(t, st.IsDone(stepC))
	assert.True(t, st.IsDone(stepD))
	assert.Equal(t, []chainStep{stepB, stepC}, hooked)

	// Nothing left to clear downstream of B.
	assert.False(t, st.Invalidate(stepC))
	assert.Equal(t, []chainStep{stepB, stepC}, st.Outstanding())
}

func TestState_InvalidationMetric(t *testing.T) {
	tbl, err := NewTable("metric_chain", []Def[chainStep]{
		{Step: stepA, Name: "a"},
		{Step: stepB, Name: "b", DependsOn: []chainStep{stepA}},
	})
	require.NoError(t, err)
	st := NewState(tbl)
	st.SetDone(stepA)
	st.SetDone(stepB)

	st.InvalidateAll()
	assert.Equal(t, 1.0, testutil.ToFloat64(invalidationsTotal.WithLabelValues("metric_chain", "a")))
	assert.Equal(t, 1.0, testutil.ToFloat64(invalidationsTotal.WithLabelValues("metric_chain", "b")))

	// Already undone: no second count.
	assert.False(t, st.InvalidateAll())
	assert.Equal(t, 1.0, testutil.ToFloat64(invalidationsTotal.WithLabelValues("metric_chain", "a")))
}

func TestRunner_Chain(t *testing.T) {
	tbl := chainTable(t)
	st := NewState(tbl)
	eng := &fakeEngine{}

	require.NoError(t, NewRunner[chainStep](nil).Run(context.Background(), "obj", st, eng))
	assert.Equal(t, []chainStep{stepA, stepB, stepC, stepD}, eng.computed)
	assert.True(t, st.AllDone())

	// Invalidate the middle and rerun: only B and C recompute.
	st.Invalidate(stepB)
	eng.computed = nil
	require.NoError(t, NewRunner[chainStep](nil).Run(context.Background(), "obj", st, eng))
	assert.Equal(t, []chainStep{stepB, stepC}, eng.computed)
}

func TestRunner_SkippedSatisfiesDependents(t *testing.T) {
	tbl := chainTable(t)
	st := NewState(tbl)
	st.Enable(stepB, false)
	eng := &fakeEngine{skip: map[chainStep]bool{stepD: true}}

	require.NoError(t, NewRunner[chainStep](nil).Run(context.Background(), "obj", st, eng))
	assert.Equal(t, []chainStep{stepA, stepC}, eng.computed)
	assert.True(t, st.IsDone(stepB))

	// Re-enabling B forces it and C to run.
	st.Enable(stepB, true)
	assert.False(t, st.IsDone(stepB))
	assert.False(t, st.IsDone(stepC))
	assert.True(t, st.IsDone(stepA))
}

func TestRunner_Failure(t *testing.T) {
	tbl := chainTable(t)
	st := NewState(tbl)
	boom := errors.New("boom")
	eng := &fakeEngine{errs: map[chainStep]error{stepB: boom}}

	err := NewRunner[chainStep](nil).Run(context.Background(), "obj", st, eng)
	var se *StepError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "b", se.Step)
	assert.Equal(t, "obj", se.Owner)
	assert.ErrorIs(t, err, boom)
	assert.True(t, st.IsDone(stepA))
	assert.False(t, st.IsDone(stepB))
	assert.False(t, st.IsStarted(stepB))
}

func TestRunner_CancelLeavesStepUndone(t *testing.T) {
	tbl := chainTable(t)
	st := NewState(tbl)
	ctl := cancel.NewController(context.Background())

	eng := &fakeEngine{errs: map[chainStep]error{}}
	eng.onCompute = func(s chainStep) {
		if s == stepB {
			ctl.Cancel(cancel.CancelReason{Type: cancel.CancelSuperseded})
			eng.errs[stepB] = ctl.Check()
		}
	}

	err := NewRunner[chainStep](nil).Run(ctl.Context(), "obj", st, eng)
	require.Error(t, err)
	assert.True(t, cancel.IsCanceled(err))
	var se *StepError
	assert.False(t, errors.As(err, &se), "cancellation must not be wrapped")

	assert.True(t, st.IsDone(stepA))
	assert.False(t, st.IsDone(stepB))
	assert.False(t, st.IsStarted(stepB))
	assert.Equal(t, []chainStep{stepA}, eng.computed)
}

func TestRunner_CanceledContextStopsBeforeStep(t *testing.T) {
	tbl := chainTable(t)
	st := NewState(tbl)
	ctx, cancelFn := context.WithCancel(context.Background())
	cancelFn()

	eng := &fakeEngine{}
	err := NewRunner[chainStep](nil).Run(ctx, "obj", st, eng)
	assert.True(t, cancel.IsCanceled(err))
	assert.Empty(t, eng.computed)
}

func TestRunner_StepRunsMetric(t *testing.T) {
	tbl, err := NewTable("runs_metric", []Def[chainStep]{{Step: stepA, Name: "only"}})
	require.NoError(t, err)
	st := NewState(tbl)

	require.NoError(t, NewRunner[chainStep](nil).Run(context.Background(), "", st, &fakeEngine{}))
	assert.Equal(t, 1.0, testutil.ToFloat64(stepRunsTotal.WithLabelValues("runs_metric", "only", "done")))
}
