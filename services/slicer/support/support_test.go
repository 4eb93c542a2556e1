// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package support

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"cogentcore.org/core/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSlice/services/slicer/cancel"
	"github.com/AleutianAI/AleutianSlice/services/slicer/config"
	"github.com/AleutianAI/AleutianSlice/services/slicer/geometry"
	"github.com/AleutianAI/AleutianSlice/services/slicer/layers"
)

func cubeMesh() IndexedMesh {
	return NewIndexedMesh(geometry.MakeCube(10, 10, 10), 5)
}

func bottomPoints() []math32.Vector3 {
	return []math32.Vector3{
		math32.Vec3(2, 2, 0),
		math32.Vec3(4, 2, 0),
		math32.Vec3(8, 8, 0),
	}
}

func TestGenerate_EmptyPointSet(t *testing.T) {
	im := cubeMesh()
	tree, err := Generate(context.Background(), nil, im, DefaultConfig(), nil)
	require.NoError(t, err)
	require.NotNil(t, tree)
	assert.Equal(t, 0, tree.Mesh().FacetsCount())
	assert.Empty(t, tree.Heads())

	zmin, zmax := tree.Extent()
	assert.InDelta(t, -5, zmin, 1e-6)
	assert.InDelta(t, 10, zmax, 1e-6)

	stack, err := tree.Slice(1, 0)
	require.NoError(t, err)
	assert.Equal(t, 15, stack.Len())
	assert.True(t, stack.Empty())
}

func TestGenerate_PointOffSurface(t *testing.T) {
	points := append(bottomPoints(), math32.Vec3(5, 5, -3))
	tree, err := Generate(context.Background(), points, cubeMesh(), DefaultConfig(), nil)
	assert.Nil(t, tree)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPointOffSurface))
	assert.True(t, errors.Is(err, ErrInvalidInput))

	var pe *PointError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 3, pe.Index)
	assert.InDelta(t, 3, pe.Distance, 1e-4)
}

func TestGenerate_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PillarWideningFactor = 2
	_, err := Generate(context.Background(), bottomPoints(), cubeMesh(), cfg, nil)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestGenerate_ClustersAndBases(t *testing.T) {
	tree, err := Generate(context.Background(), bottomPoints(), cubeMesh(), DefaultConfig(), nil)
	require.NoError(t, err)

	heads := tree.Heads()
	require.Len(t, heads, 3)
	for _, h := range heads {
		assert.InDelta(t, -1.7, h.Junction.Z, 1e-5)
		assert.InDelta(t, -1, h.Dir.Z, 1e-6)
		assert.Greater(t, h.Tip.Z, float32(0))
	}

	pillars := tree.Pillars()
	require.Len(t, pillars, 2)
	assert.Equal(t, []int{0, 1}, pillars[0].HeadIDs)
	assert.InDelta(t, 0.625, pillars[0].Radius, 1e-9)
	assert.Equal(t, []int{2}, pillars[1].HeadIDs)
	assert.InDelta(t, 0.5, pillars[1].Radius, 1e-9)
	for _, p := range pillars {
		assert.True(t, p.HasBase)
		assert.False(t, p.OnModel)
		assert.InDelta(t, -5, p.Bottom.Z, 1e-6)
	}
	assert.Equal(t, 0, heads[1].PillarID)

	bridges := tree.Bridges()
	require.Len(t, bridges, 1)
	assert.False(t, bridges[0].Cross)
	assert.InDelta(t, -3.7, bridges[0].To.Z, 1e-4)
	assert.InDelta(t, 2, bridges[0].To.X, 1e-5)

	assert.Greater(t, tree.Mesh().FacetsCount(), 0)

	stack, err := tree.Slice(0.5, 0)
	require.NoError(t, err)
	require.NotEmpty(t, stack.Slices[0])
	assert.True(t, stack.Slices[0].Contains(layers.Pt(8, 8)))
	assert.True(t, stack.Slices[0].Contains(layers.Pt(2, 2)))
}

func TestGenerate_PillarOnModel(t *testing.T) {
	lower := geometry.MakeCube(10, 10, 2)
	upper := geometry.MakeCube(10, 10, 2)
	upper.Translate(math32.Vec3(0, 0, 8))
	im := NewIndexedMesh(geometry.MergeMeshes(lower, upper), 5)

	tree, err := Generate(context.Background(), []math32.Vector3{math32.Vec3(5, 4, 8)}, im, DefaultConfig(), nil)
	require.NoError(t, err)
	pillars := tree.Pillars()
	require.Len(t, pillars, 1)
	assert.True(t, pillars[0].OnModel)
	assert.False(t, pillars[0].HasBase)
	assert.InDelta(t, 2, pillars[0].Bottom.Z, 1e-4)
}

func TestGenerate_Canceled(t *testing.T) {
	ctl := cancel.NewController(context.Background())
	ctl.Cancel(cancel.CancelReason{Type: cancel.CancelUser})

	tree, err := Generate(context.Background(), bottomPoints(), cubeMesh(), DefaultConfig(), ctl)
	assert.Nil(t, tree)
	assert.True(t, cancel.IsCanceled(err))
}

func TestGenerate_CanceledBetweenPhases(t *testing.T) {
	var polls atomic.Int32
	ctl := cancel.NewController(context.Background(), cancel.WithStopCondition(func() bool {
		return polls.Add(1) > 2
	}))

	tree, err := Generate(context.Background(), bottomPoints(), cubeMesh(), DefaultConfig(), ctl)
	assert.Nil(t, tree)
	require.Error(t, err)
	assert.True(t, cancel.IsCanceled(err))
	reason, ok := ctl.Reason()
	require.True(t, ok)
	assert.Equal(t, cancel.CancelStopCondition, reason.Type)
}

func TestHeadDirection_Clamped(t *testing.T) {
	d := headDirection(math32.Vec3(1, 0, 0), math.Pi/4)
	assert.InDelta(t, math.Sqrt2/2, d.X, 1e-6)
	assert.InDelta(t, -math.Sqrt2/2, d.Z, 1e-6)

	d = headDirection(math32.Vec3(0, 0, -1), math.Pi/4)
	assert.InDelta(t, -1, d.Z, 1e-6)
}

func TestAddPad(t *testing.T) {
	tree, err := Generate(context.Background(), bottomPoints(), cubeMesh(), DefaultConfig(), nil)
	require.NoError(t, err)
	assert.False(t, tree.HasPad())
	assert.Equal(t, 0, tree.Pad().FacetsCount())

	baseplate := []layers.ExPolygon{{Contour: layers.Polygon{
		layers.Pt(0, 0), layers.Pt(10, 0), layers.Pt(10, 10), layers.Pt(0, 10),
	}}}
	require.NoError(t, tree.AddPad(baseplate, DefaultPadConfig()))
	require.True(t, tree.HasPad())

	bb := tree.Pad().BoundingBox()
	assert.InDelta(t, -7, bb.Min.Z, 1e-5)
	assert.InDelta(t, -5, bb.Max.Z, 1e-5)
	assert.InDelta(t, -2, bb.Min.X, 1e-3)
	assert.Greater(t, tree.Pad().Volume(), 100.0*2)

	zmin, _ := tree.Extent()
	assert.InDelta(t, -7, zmin, 1e-6)
	assert.Equal(t, tree.Mesh().FacetsCount()+tree.Pad().FacetsCount(), tree.MeshWithPad().FacetsCount())

	pad, err := tree.SlicePad(1, 0)
	require.NoError(t, err)
	sup, err := tree.Slice(1, 0)
	require.NoError(t, err)
	assert.Equal(t, sup.Levels(), pad.Levels())
	require.NotEmpty(t, pad.Slices[0])
	assert.Greater(t, pad.Slices[0].Area()*layers.ScalingFactor*layers.ScalingFactor, 190.0)
	assert.Empty(t, pad.Slices[len(pad.Slices)-1])

	assert.True(t, errors.Is(tree.AddPad(baseplate, PadConfig{}), ErrInvalidConfig))
}

func TestWithPad_LeavesReceiverUnchanged(t *testing.T) {
	tree, err := Generate(context.Background(), bottomPoints(), cubeMesh(), DefaultConfig(), nil)
	require.NoError(t, err)
	zmin, zmax := tree.Extent()

	baseplate := []layers.ExPolygon{{Contour: layers.Polygon{
		layers.Pt(0, 0), layers.Pt(10, 0), layers.Pt(10, 10), layers.Pt(0, 10),
	}}}
	padded, err := tree.WithPad(baseplate, DefaultPadConfig())
	require.NoError(t, err)
	require.NotSame(t, tree, padded)

	assert.True(t, padded.HasPad())
	assert.False(t, tree.HasPad())
	gotMin, gotMax := tree.Extent()
	assert.Equal(t, zmin, gotMin)
	assert.Equal(t, zmax, gotMax)
	assert.Same(t, tree.Mesh(), padded.Mesh())
	assert.Equal(t, tree.Heads(), padded.Heads())

	_, err = tree.WithPad(baseplate, PadConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.False(t, tree.HasPad())
}

func TestConfigFromObject(t *testing.T) {
	oc, err := config.ResolveObject(nil)
	require.NoError(t, err)

	c := ConfigFromObject(oc)
	assert.InDelta(t, 0.2, c.HeadFrontRadius, 1e-12)
	assert.InDelta(t, 0.5, c.HeadBackRadius, 1e-12)
	assert.InDelta(t, 2.0, c.BaseRadius, 1e-12)
	assert.InDelta(t, math.Pi/4, c.Tilt, 1e-12)
	assert.NoError(t, c.Validate())

	p := PadConfigFromObject(oc)
	assert.Equal(t, DefaultPadConfig(), p)
}

func TestSamplePoints(t *testing.T) {
	cube := geometry.MakeCube(10, 10, 10)
	stack, err := layers.SliceStack(cube, 0, 10, 1, 1, nil)
	require.NoError(t, err)

	pcfg := PointConfig{MinimalDistance: 2, DensityRelative: 100, CriticalAngle: math.Pi / 4, SkipBelow: math.Inf(-1)}
	islands := layers.FindIslands(stack.Slices)
	planes := layers.SlicePlanes(0, stack.Tops)
	pts, err := SamplePoints(context.Background(), cube, islands, planes, pcfg, nil)
	require.NoError(t, err)
	require.Greater(t, len(pts), 1)

	assert.InDelta(t, 5, pts[0].X, 1e-4)
	assert.InDelta(t, 5, pts[0].Y, 1e-4)
	for i, p := range pts {
		assert.InDelta(t, 0, p.Z, 1e-4)
		for _, q := range pts[i+1:] {
			assert.GreaterOrEqual(t, float64(p.Sub(q).Length()), 2-1e-4)
		}
	}

	pcfg.SkipBelow = 0.001
	pts, err = SamplePoints(context.Background(), cube, islands, planes, pcfg, nil)
	require.NoError(t, err)
	assert.Empty(t, pts)
}
