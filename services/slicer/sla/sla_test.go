// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sla

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"cogentcore.org/core/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSlice/services/slicer/cancel"
	"github.com/AleutianAI/AleutianSlice/services/slicer/config"
	"github.com/AleutianAI/AleutianSlice/services/slicer/geometry"
	"github.com/AleutianAI/AleutianSlice/services/slicer/layers"
	"github.com/AleutianAI/AleutianSlice/services/slicer/model"
)

// plainBundle slices without supports or pad on a 1 mm grid.
func plainBundle(over config.Bundle) config.Bundle {
	b := config.Bundle{
		"supports_enable":      false,
		"pad_enable":           false,
		"layer_height":         1.0,
		"initial_layer_height": 1.0,
	}
	for k, v := range over {
		b[k] = v
	}
	return b
}

// cubes returns a model of n 10 mm cubes side by side on the bed.
func cubes(t *testing.T, n int) *model.Model {
	t.Helper()
	m := model.New()
	for i := range n {
		o := m.AddObjectFromMesh(fmt.Sprintf("cube%d", i), "", geometry.MakeCube(10, 10, 10))
		o.AddInstance()
		require.NoError(t, o.SetInstanceOffset(0, math32.Vec3(float32(5+20*i), 10, 0)))
	}
	return m
}

func processed(t *testing.T, m *model.Model, b config.Bundle, opts ...Option) *Print {
	t.Helper()
	p := New(opts...)
	st, err := p.Apply(m, b)
	require.NoError(t, err)
	assert.Equal(t, ApplyChanged, st)
	require.NoError(t, p.Process(context.Background()))
	require.True(t, p.Finished())
	require.True(t, p.UpToDate())
	return p
}

func TestSteps(t *testing.T) {
	assert.Equal(t, "object_slice", ObjectSlice.String())
	assert.Equal(t, "rasterize", Rasterize.String())
	assert.Len(t, ObjectSteps(), 7)
	assert.Equal(t, []PrintStep{Validate, Rasterize}, PrintSteps())
	assert.Equal(t, []ObjectStep{SupportIslands, SupportPoints, SupportTree, BasePool, SliceSupports, IndexSlices},
		objectSteps.Dependents(ObjectSlice))
	assert.Equal(t, []ObjectStep{SliceSupports, IndexSlices}, objectSteps.Dependents(BasePool))
}

func TestProcess_PlainCube(t *testing.T) {
	p := processed(t, cubes(t, 1), plainBundle(nil))

	input := p.PrinterInput()
	require.Len(t, input, 10)
	for i, l := range input {
		assert.Equal(t, layers.Level(float64(i+1)), l.Level)
		require.Len(t, l.Refs, 1)
		assert.InDelta(t, 100, l.Area(), 1e-6)
		assert.Empty(t, l.Refs[0].SupportSlices)
	}

	po := p.Objects()[0]
	assert.Equal(t, 0.0, po.Elevation())
	assert.True(t, po.SupportMesh().Empty())
	assert.True(t, po.PadMesh().Empty())
	assert.Len(t, po.SliceIndex(), 10)
	require.Len(t, po.Instances(), 1)
	assert.Equal(t, layers.Pt(5, 10), po.Instances()[0].Shift)
	assert.Empty(t, p.Warnings())
}

func TestApply_Idempotent(t *testing.T) {
	m := cubes(t, 2)
	b := plainBundle(nil)
	p := processed(t, m, b)

	st, err := p.Apply(m, b)
	require.NoError(t, err)
	assert.Equal(t, ApplyUnchanged, st)
	assert.True(t, p.UpToDate())

	st, err = p.Apply(m.CloneWithIdentity(), b.Clone())
	require.NoError(t, err)
	assert.Equal(t, ApplyUnchanged, st)
	assert.True(t, p.UpToDate())
}

func TestApply_SnapshotIsolated(t *testing.T) {
	m := cubes(t, 1)
	p := New()
	_, err := p.Apply(m, plainBundle(nil))
	require.NoError(t, err)

	m.ClearObjects()
	assert.Equal(t, 1, p.Model().ObjectsCount())
	assert.Len(t, p.Objects(), 1)
}

func TestApply_Errors(t *testing.T) {
	p := New()
	_, err := p.Apply(nil, nil)
	assert.ErrorIs(t, err, ErrNilModel)

	m := cubes(t, 1)
	b := plainBundle(nil)
	p = processed(t, m, b)

	_, err = p.Apply(m, plainBundle(config.Bundle{"exposure_time": -1.0}))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "print", verr.Scope)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	o, _ := m.Object(0)
	o.Config = config.Bundle{"layer_height": 0.0}
	_, err = p.Apply(m, b)
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Scope, "cube0")

	assert.True(t, p.UpToDate(), "a rejected snapshot must not invalidate anything")
}

func TestApply_PrintOptionRules(t *testing.T) {
	tests := []struct {
		key       string
		value     any
		status    ApplyStatus
		validate  bool
		rasterize bool
		sliceDone bool
		indexDone bool
	}{
		{"exposure_time", 12.0, ApplyInvalidated, true, false, true, true},
		{"display_pixels_x", 1440, ApplyInvalidated, true, false, true, true},
		{"bed_size_x", 200.0, ApplyInvalidated, false, false, true, true},
		{"max_print_height", 100.0, ApplyInvalidated, false, false, true, true},
		{"initial_layer_height", 0.5, ApplyInvalidated, true, false, false, false},
		{"max_extruders", 2, ApplyChanged, true, true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			m := cubes(t, 1)
			p := processed(t, m, plainBundle(nil))

			st, err := p.Apply(m, plainBundle(config.Bundle{tt.key: tt.value}))
			require.NoError(t, err)
			assert.Equal(t, tt.status, st)
			assert.Equal(t, tt.validate, p.IsPrintStepDone(Validate), "validate")
			assert.Equal(t, tt.rasterize, p.IsPrintStepDone(Rasterize), "rasterize")
			assert.Equal(t, tt.sliceDone, p.IsStepDone(ObjectSlice), "object slice")
			assert.Equal(t, tt.indexDone, p.IsStepDone(IndexSlices), "index")

			require.NoError(t, p.Process(context.Background()))
			assert.True(t, p.UpToDate())
		})
	}
}

func TestApply_ObjectOptionRules(t *testing.T) {
	tests := []struct {
		key         string
		value       any
		firstUndone ObjectStep
	}{
		{"layer_height", 0.5, ObjectSlice},
		{"supports_enable", true, ObjectSlice},
		{"support_points_minimal_distance", 2.0, SupportPoints},
		{"support_critical_angle", 30.0, SupportPoints},
		{"support_head_front_diameter", 0.6, SupportTree},
		{"support_pillar_widening_factor", 0.2, SupportTree},
		{"support_max_bridge_length", 5.0, SupportTree},
		{"pad_edge_radius", 0.5, BasePool},
		{"custom_key", "x", ObjectSlice},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			m := cubes(t, 1)
			p := processed(t, m, plainBundle(nil))

			st, err := p.Apply(m, plainBundle(config.Bundle{tt.key: tt.value}))
			require.NoError(t, err)
			assert.Equal(t, ApplyInvalidated, st)

			po := p.Objects()[0]
			for _, s := range ObjectSteps() {
				undone := s == tt.firstUndone || objectStepsContain(objectSteps.Dependents(tt.firstUndone), s)
				assert.Equal(t, !undone, po.IsStepDone(s), s.String())
			}
			assert.False(t, p.IsPrintStepDone(Rasterize), "object invalidation cascades to rasterize")
			assert.True(t, p.IsPrintStepDone(Validate))
		})
	}
}

func objectStepsContain(ss []ObjectStep, s ObjectStep) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

func TestApply_PlacementOnlyInvalidatesRasterize(t *testing.T) {
	m := cubes(t, 1)
	b := plainBundle(nil)
	p := processed(t, m, b)

	o, _ := m.Object(0)
	require.NoError(t, o.SetInstanceOffset(0, math32.Vec3(40, 20, 0)))
	st, err := p.Apply(m, b)
	require.NoError(t, err)
	assert.Equal(t, ApplyInvalidated, st)
	assert.True(t, p.Finished())
	assert.True(t, p.IsPrintStepDone(Validate))
	assert.False(t, p.IsPrintStepDone(Rasterize))

	require.NoError(t, p.Process(context.Background()))
	copies := p.PrinterInput()[0].Refs[0].Copies
	require.Len(t, copies, 1)
	assert.Equal(t, layers.Pt(40, 20), copies[0].Shift)
}

func TestApply_TrafoInvalidatesEverything(t *testing.T) {
	m := cubes(t, 1)
	b := plainBundle(nil)
	p := processed(t, m, b)

	o, _ := m.Object(0)
	require.NoError(t, o.UpdateInstanceTransformation(0, func(tr *geometry.Transformation) {
		tr.SetScalingFactor(math32.Vec3(1, 1, 2))
	}))
	st, err := p.Apply(m, b)
	require.NoError(t, err)
	assert.Equal(t, ApplyInvalidated, st)
	assert.False(t, p.IsStepDone(ObjectSlice))

	require.NoError(t, p.Process(context.Background()))
	assert.Len(t, p.PrinterInput(), 20)
}

func TestApply_SuffixExtension(t *testing.T) {
	m := cubes(t, 3)
	b := plainBundle(nil)
	p := processed(t, m, b)

	o := m.AddObjectFromMesh("cube3", "", geometry.MakeCube(10, 10, 10))
	o.AddInstance()
	require.NoError(t, o.SetInstanceOffset(0, math32.Vec3(65, 40, 0)))

	st, err := p.Apply(m, b)
	require.NoError(t, err)
	assert.Equal(t, ApplyInvalidated, st)

	objs := p.Objects()
	require.Len(t, objs, 4)
	for _, po := range objs[:3] {
		assert.True(t, po.IsStepDone(IndexSlices), "existing objects keep their work")
	}
	assert.False(t, objs[3].IsStepDone(ObjectSlice))
	assert.False(t, p.IsPrintStepDone(Validate))

	require.NoError(t, p.Process(context.Background()))
	assert.True(t, p.Finished())
	assert.Len(t, p.PrinterInput()[0].Refs, 4)
}

func TestApply_RemoveMiddleObject(t *testing.T) {
	m := cubes(t, 3)
	b := plainBundle(nil)
	p := processed(t, m, b)
	first, _ := m.Object(0)
	third, _ := m.Object(2)

	require.NoError(t, m.DeleteObject(1))
	st, err := p.Apply(m, b)
	require.NoError(t, err)
	assert.Equal(t, ApplyInvalidated, st)

	objs := p.Objects()
	require.Len(t, objs, 2)
	assert.Equal(t, first.ID(), objs[0].ID())
	assert.Equal(t, third.ID(), objs[1].ID())
	for _, po := range objs {
		assert.True(t, po.IsStepDone(IndexSlices))
	}
	assert.False(t, p.IsPrintStepDone(Validate))

	require.NoError(t, p.Process(context.Background()))
	refs := p.PrinterInput()[0].Refs
	require.Len(t, refs, 2)
	assert.Equal(t, third.ID(), refs[1].ObjectID)
}

func TestPrinterInput_MixedLayerHeights(t *testing.T) {
	m := cubes(t, 2)
	o, _ := m.Object(1)
	o.Config = config.Bundle{"layer_height": 2.0}
	p := processed(t, m, plainBundle(nil))

	byLevel := make(map[layers.LevelID]PrinterLayer)
	for _, l := range p.PrinterInput() {
		byLevel[l.Level] = l
	}
	assert.Len(t, byLevel[layers.Level(1)].Refs, 2)
	assert.Len(t, byLevel[layers.Level(2)].Refs, 1)
	assert.Len(t, byLevel[layers.Level(3)].Refs, 2)
	assert.Equal(t, o.ID(), byLevel[layers.Level(3)].Refs[1].ObjectID)
}

func TestProcess_SupportsAndPad(t *testing.T) {
	m := cubes(t, 1)
	o, _ := m.Object(0)
	o.SupportPoints = []math32.Vector3{{X: 3, Y: 3, Z: 0}, {X: 7, Y: 7, Z: 0}}
	b := plainBundle(config.Bundle{"supports_enable": true, "pad_enable": true})
	p := processed(t, m, b)

	po := p.Objects()[0]
	assert.Equal(t, 12.0, po.Elevation())
	assert.False(t, po.SupportMesh().Empty())
	assert.False(t, po.PadMesh().Empty())
	require.Len(t, po.SupportPoints(), 2)
	assert.InDelta(t, 12, po.SupportPoints()[0].Z, 1e-4)

	input := p.PrinterInput()
	require.Len(t, input, 22)
	bottom := input[0]
	require.Len(t, bottom.Refs, 1)
	assert.Empty(t, bottom.Refs[0].ModelSlices)
	assert.NotEmpty(t, bottom.Refs[0].SupportSlices)
	assert.InDelta(t, 100, input[len(input)-1].Refs[0].ModelSlices.AreaMM(), 1e-6)

	// Moving a user point reruns from SupportPoints only.
	o.SupportPoints = []math32.Vector3{{X: 3, Y: 7, Z: 0}, {X: 7, Y: 3, Z: 0}}
	st, err := p.Apply(m, b)
	require.NoError(t, err)
	assert.Equal(t, ApplyInvalidated, st)
	po = p.Objects()[0]
	assert.True(t, po.IsStepDone(SupportIslands))
	assert.False(t, po.IsStepDone(SupportPoints))
	assert.False(t, po.IsStepDone(SupportTree))

	require.NoError(t, p.Process(context.Background()))
	assert.True(t, p.Finished())
	assert.InDelta(t, 3, po.SupportPoints()[0].X, 1e-4)
	assert.InDelta(t, 7, po.SupportPoints()[0].Y, 1e-4)

	// Turning supports off drops the tree but keeps the pad.
	st, err = p.Apply(m, plainBundle(config.Bundle{"pad_enable": true}))
	require.NoError(t, err)
	assert.Equal(t, ApplyInvalidated, st)
	require.NoError(t, p.Process(context.Background()))
	po = p.Objects()[0]
	assert.Equal(t, 2.0, po.Elevation())
	assert.True(t, po.SupportMesh().Empty())
	assert.False(t, po.PadMesh().Empty())
	assert.Empty(t, po.SupportPoints())
}

func TestProcess_BasePoolKeepsCommittedTree(t *testing.T) {
	m := cubes(t, 1)
	o, _ := m.Object(0)
	o.SupportPoints = []math32.Vector3{{X: 3, Y: 3, Z: 0}, {X: 7, Y: 7, Z: 0}}
	b := plainBundle(config.Bundle{"supports_enable": true, "pad_enable": true})
	p := processed(t, m, b)

	po := p.Objects()[0]
	first := po.SupportTree()
	require.NotNil(t, first)
	require.True(t, first.HasPad())
	firstPad := first.Pad()

	b["pad_edge_radius"] = 0.5
	st, err := p.Apply(m, b)
	require.NoError(t, err)
	assert.Equal(t, ApplyInvalidated, st)
	assert.True(t, po.IsStepDone(SupportTree))
	assert.False(t, po.IsStepDone(BasePool))
	require.NoError(t, p.Process(context.Background()))

	second := po.SupportTree()
	require.NotNil(t, second)
	assert.NotSame(t, first, second)
	assert.True(t, second.HasPad())
	assert.Same(t, firstPad, first.Pad(), "a tree handed out earlier keeps its pad")
	assert.NotSame(t, firstPad, second.Pad())
	assert.Same(t, first.Mesh(), second.Mesh())
}

func TestProcess_AutoSupportPoints(t *testing.T) {
	m := cubes(t, 1)
	b := plainBundle(config.Bundle{
		"supports_enable":                 true,
		"support_points_minimal_distance": 4.0,
	})
	p := processed(t, m, b)

	po := p.Objects()[0]
	assert.NotEmpty(t, po.Islands())
	pts := po.SupportPoints()
	require.NotEmpty(t, pts)
	for _, pt := range pts {
		assert.InDelta(t, 10, pt.Z, 1e-4, "points sit on the elevated bottom face")
	}
	assert.False(t, po.SupportMesh().Empty())
	assert.True(t, po.PadMesh().Empty())
}

func TestProcess_Rasterizer(t *testing.T) {
	var got []PrinterLayer
	var cfg config.PrintConfig
	r := RasterizerFunc(func(_ context.Context, c config.PrintConfig, ls []PrinterLayer) error {
		cfg, got = c, ls
		return nil
	})
	processed(t, cubes(t, 1), plainBundle(config.Bundle{"exposure_time": 7.0}), WithRasterizer(r))
	assert.Len(t, got, 10)
	assert.Equal(t, 7.0, cfg.ExposureTime)
}

func TestProcess_RasterizerFailure(t *testing.T) {
	boom := errors.New("boom")
	p := New(WithRasterizer(RasterizerFunc(func(context.Context, config.PrintConfig, []PrinterLayer) error {
		return boom
	})))
	_, err := p.Apply(cubes(t, 1), plainBundle(nil))
	require.NoError(t, err)

	err = p.Process(context.Background())
	require.ErrorIs(t, err, boom)
	assert.False(t, cancel.IsCanceled(err))
	assert.True(t, p.Finished())
	assert.True(t, p.IsPrintStepDone(Validate))
	assert.False(t, p.IsPrintStepDone(Rasterize))
}

func TestProcess_Validate(t *testing.T) {
	m := cubes(t, 2)
	o, _ := m.Object(1)
	require.NoError(t, o.SetInstanceOffset(0, math32.Vec3(500, 500, 0)))
	p := processed(t, m, plainBundle(nil))

	w := p.Warnings()
	require.Len(t, w, 1)
	assert.Equal(t, o.ID(), w[0].ObjectID)
	assert.Contains(t, w[0].Message, "fully_outside")
}

func TestProcess_ValidateElevatedHeight(t *testing.T) {
	m := cubes(t, 1)
	o, _ := m.Object(0)
	o.SupportPoints = []math32.Vector3{{X: 3, Y: 3, Z: 0}, {X: 7, Y: 7, Z: 0}}
	b := plainBundle(config.Bundle{
		"supports_enable":  true,
		"pad_enable":       true,
		"max_print_height": 15.0,
	})
	p := processed(t, m, b)

	// The cube fits on its own; the 12 mm elevation pushes its top to 22.
	po := p.Objects()[0]
	require.Equal(t, 12.0, po.Elevation())
	tops := po.ModelSlices().Tops
	require.NotEmpty(t, tops)
	assert.Greater(t, tops[len(tops)-1], 15.0)

	w := p.Warnings()
	require.Len(t, w, 1)
	assert.Equal(t, po.ID(), w[0].ObjectID)
	assert.Contains(t, w[0].Message, "taller than the maximum print height")

	// Raising the limit clears the warning without reslicing.
	st, err := p.Apply(m, plainBundle(config.Bundle{
		"supports_enable":  true,
		"pad_enable":       true,
		"max_print_height": 150.0,
	}))
	require.NoError(t, err)
	assert.Equal(t, ApplyInvalidated, st)
	assert.True(t, po.IsStepDone(IndexSlices))
	require.NoError(t, p.Process(context.Background()))
	assert.Empty(t, p.Warnings())
}

func TestProcess_Canceled(t *testing.T) {
	p := New()
	_, err := p.Apply(cubes(t, 1), plainBundle(nil))
	require.NoError(t, err)

	ctx, cancelFn := context.WithCancel(context.Background())
	cancelFn()
	err = p.Process(ctx)
	require.Error(t, err)
	assert.True(t, cancel.IsCanceled(err))
	assert.False(t, p.IsStepDone(ObjectSlice))

	require.NoError(t, p.Process(context.Background()))
	assert.True(t, p.Finished())
}

func TestProcess_CanceledMidRound(t *testing.T) {
	var p *Print
	var fired atomic.Bool
	p = New(WithStatus(func(s cancel.Status) {
		if strings.Contains(s.Message, IndexSlices.String()) && fired.CompareAndSwap(false, true) {
			p.Cancel(cancel.CancelReason{Type: cancel.CancelUser})
		}
	}))
	_, err := p.Apply(cubes(t, 1), plainBundle(nil))
	require.NoError(t, err)

	err = p.Process(context.Background())
	require.Error(t, err)
	var cerr *cancel.CanceledError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, cancel.CancelUser, cerr.Reason.Type)

	po := p.Objects()[0]
	assert.True(t, po.IsStepDone(ObjectSlice), "completed steps stay done")
	assert.False(t, po.IsStepDone(IndexSlices))

	require.NoError(t, p.Process(context.Background()))
	assert.True(t, p.Finished())
}

func TestApply_CancelsRoundStartedWhileWaiting(t *testing.T) {
	m := cubes(t, 1)
	p := New()
	_, err := p.Apply(m, plainBundle(nil))
	require.NoError(t, err)

	// Hold the round lock so the Apply below has nothing to cancel yet and
	// must wait, then start a round the way Process does.
	p.procMu.Lock()
	applied := make(chan error, 1)
	go func() {
		_, err := p.Apply(m, plainBundle(config.Bundle{"layer_height": 0.5}))
		applied <- err
	}()
	require.Eventually(t, func() bool {
		p.ctlMu.Lock()
		defer p.ctlMu.Unlock()
		return p.pendingApplies == 1
	}, 5*time.Second, time.Millisecond)

	ctl := p.beginRound(context.Background())
	assert.True(t, cancel.IsCanceled(ctl.Check()))
	reason, ok := ctl.Reason()
	require.True(t, ok)
	assert.Equal(t, cancel.CancelSuperseded, reason.Type)
	p.endRound(ctl)
	p.procMu.Unlock()

	select {
	case err := <-applied:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Apply did not return")
	}

	p.ctlMu.Lock()
	assert.Zero(t, p.pendingApplies)
	p.ctlMu.Unlock()

	// With no Apply waiting, rounds run to completion again.
	require.NoError(t, p.Process(context.Background()))
	assert.True(t, p.Finished())
	assert.Greater(t, len(p.PrinterInput()), 10)
}

func TestPrint_Empty(t *testing.T) {
	p := New()
	assert.True(t, p.Empty())
	assert.False(t, p.IsStepDone(ObjectSlice))
	assert.False(t, p.Finished())

	_, err := p.Object(42)
	assert.ErrorIs(t, err, ErrObjectNotFound)

	require.NoError(t, p.Process(context.Background()))
	assert.True(t, p.UpToDate())
	assert.Empty(t, p.PrinterInput())
}
