// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package geometry

import (
	"math"
	"testing"

	"cogentcore.org/core/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func centeredCube(size float32) *TriangleMesh {
	m := MakeCube(size, size, size)
	m.Translate(math32.Vec3(-size/2, -size/2, -size/2))
	return m
}

func TestMakeCube_VolumeAndBox(t *testing.T) {
	m := MakeCube(2, 3, 4)
	assert.InDelta(t, 24.0, m.Volume(), 1e-4)
	box := m.BoundingBox()
	assert.Equal(t, math32.Vec3(0, 0, 0), box.Min)
	assert.Equal(t, math32.Vec3(2, 3, 4), box.Max)
	assert.Equal(t, 12, m.FacetsCount())
}

func TestTransformation_Matrix(t *testing.T) {
	tr := NewTransformation()
	tr.SetOffset(math32.Vec3(1, 2, 3))
	tr.SetRotationAxis(AxisZ, math.Pi/2)
	tr.SetScalingFactor(math32.Vec3(2, 2, 2))

	m := tr.FullMatrix()
	got := TransformPoint(&m, math32.Vec3(1, 0, 0))
	// scale to (2,0,0), rotate to (0,2,0), translate.
	assert.InDelta(t, 1.0, got.X, 1e-5)
	assert.InDelta(t, 4.0, got.Y, 1e-5)
	assert.InDelta(t, 3.0, got.Z, 1e-5)

	noT := tr.Matrix(true, false, false, false)
	got = TransformPoint(&noT, math32.Vec3(1, 0, 0))
	assert.InDelta(t, 0.0, got.X, 1e-5)
	assert.InDelta(t, 2.0, got.Y, 1e-5)
}

func TestTransformation_SettersNormalise(t *testing.T) {
	tr := NewTransformation()
	tr.SetRotation(math32.Vec3(-math.Pi/2, 5*math.Pi/2, 0))
	assert.InDelta(t, 3*math.Pi/2, tr.Rotation().X, 1e-5)
	assert.InDelta(t, math.Pi/2, tr.Rotation().Y, 1e-5)

	tr.SetScalingFactor(math32.Vec3(-2, 1, 0.5))
	assert.Equal(t, math32.Vec3(2, 1, 0.5), tr.ScalingFactor())

	tr.SetMirror(math32.Vec3(-3, 0, 1))
	assert.Equal(t, math32.Vec3(-1, 1, 1), tr.Mirror())
	assert.True(t, tr.IsLeftHanded())
}

func TestTransformationFromMatrix_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		offset math32.Vector3
		rot    math32.Vector3
		scale  math32.Vector3
		mirror math32.Vector3
	}{
		{"identity", math32.Vector3{}, math32.Vector3{}, math32.Vec3(1, 1, 1), math32.Vec3(1, 1, 1)},
		{"translate", math32.Vec3(5, -2, 1), math32.Vector3{}, math32.Vec3(1, 1, 1), math32.Vec3(1, 1, 1)},
		{"rotate", math32.Vector3{}, math32.Vec3(0.3, 0.2, 1.1), math32.Vec3(1, 1, 1), math32.Vec3(1, 1, 1)},
		{"scale", math32.Vector3{}, math32.Vec3(0, 0, 0.7), math32.Vec3(2, 0.5, 3), math32.Vec3(1, 1, 1)},
		{"mirror", math32.Vec3(1, 1, 1), math32.Vec3(0, 0, 0.4), math32.Vec3(1, 2, 1), math32.Vec3(-1, 1, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTransformation()
			tr.SetOffset(tt.offset)
			tr.SetRotation(tt.rot)
			tr.SetScalingFactor(tt.scale)
			tr.SetMirror(tt.mirror)

			m := tr.FullMatrix()
			back := TransformationFromMatrix(m)
			assert.True(t, MatrixNear(m, back.FullMatrix()), "matrix mismatch: %v vs %v", tr, back)
		})
	}
}

func TestMulMatrix_Composes(t *testing.T) {
	a := TranslationMatrix(math32.Vec3(1, 0, 0))
	tr := NewTransformation()
	tr.SetRotationAxis(AxisZ, math.Pi/2)
	b := tr.FullMatrix()

	ab := MulMatrix(a, b)
	got := TransformPoint(&ab, math32.Vec3(1, 0, 0))
	assert.InDelta(t, 1.0, got.X, 1e-5)
	assert.InDelta(t, 1.0, got.Y, 1e-5)
}

func TestTransform_MirrorKeepsVolumePositive(t *testing.T) {
	m := MakeCube(1, 1, 1)
	tr := NewTransformation()
	tr.SetMirrorAxis(AxisX, -1)
	m.Transform(tr.FullMatrix())
	assert.InDelta(t, 1.0, m.Volume(), 1e-5)
}

func TestRepair_WeldsAndDropsDegenerate(t *testing.T) {
	m := &TriangleMesh{
		Vertices: []math32.Vector3{
			math32.Vec3(0, 0, 0), math32.Vec3(1, 0, 0), math32.Vec3(0, 1, 0),
			math32.Vec3(1, 0, 0), // duplicate of 1
			math32.Vec3(2, 0, 0), // collinear with 0 and 1
			math32.Vec3(9, 9, 9), // unused
		},
		Faces: []Face{{0, 1, 2}, {0, 3, 4}, {1, 3, 2}},
	}
	stats := m.Repair()
	assert.Equal(t, 1, stats.MergedVertices)
	assert.Equal(t, 2, stats.RemovedFaces)
	assert.True(t, stats.Changed())
	require.Len(t, m.Faces, 1)
	assert.Len(t, m.Vertices, 3)
}

func TestSplit_TwoShells(t *testing.T) {
	a := MakeCube(1, 1, 1)
	b := MakeCube(1, 1, 1)
	b.Translate(math32.Vec3(5, 0, 0))
	m := MergeMeshes(a, b)
	m.Repair()

	shells := m.Split()
	require.Len(t, shells, 2)
	for _, s := range shells {
		assert.Equal(t, 12, s.FacetsCount())
		assert.InDelta(t, 1.0, s.Volume(), 1e-5)
	}
	assert.Less(t, shells[0].BoundingBox().Max.X, shells[1].BoundingBox().Min.X)
}

func TestSectionLoops_Cube(t *testing.T) {
	m := centeredCube(2)
	m.Repair()
	loops := m.SectionLoops(0)
	require.Len(t, loops, 1)
	assert.InDelta(t, 4.0, LoopArea(loops[0]), 1e-5)
}

func TestCut_CubeHalves(t *testing.T) {
	const h = 10
	m := centeredCube(h)
	upper, lower := m.Cut(0)

	require.False(t, upper.Empty())
	require.False(t, lower.Empty())
	assert.Greater(t, upper.Volume(), 0.0)
	assert.Greater(t, lower.Volume(), 0.0)
	assert.InDelta(t, h*h*h, upper.Volume()+lower.Volume(), 1e-2)
	assert.InDelta(t, h*h*h/2, upper.Volume(), 1e-2)

	assert.InDelta(t, 0.0, upper.BoundingBox().Min.Z, 1e-6)
	assert.InDelta(t, 0.0, lower.BoundingBox().Max.Z, 1e-6)
}

func TestCut_AtVertexPlane(t *testing.T) {
	m := MakeCube(1, 1, 1)
	upper, lower := m.Cut(0)
	assert.InDelta(t, 1.0, upper.Volume(), 1e-5)
	assert.True(t, lower.Empty())
}

func TestCut_CylinderKeepsVolume(t *testing.T) {
	m := MakeCylinder(3, 6, 24)
	whole := m.Volume()
	upper, lower := m.Cut(2)
	assert.InDelta(t, whole, upper.Volume()+lower.Volume(), whole*1e-4)
	assert.InDelta(t, whole/3, lower.Volume(), whole*1e-3)
}

func TestTriangulateLoops_WithHole(t *testing.T) {
	outer := []math32.Vector3{
		math32.Vec3(0, 0, 0), math32.Vec3(10, 0, 0), math32.Vec3(10, 10, 0), math32.Vec3(0, 10, 0),
	}
	hole := []math32.Vector3{
		math32.Vec3(3, 3, 0), math32.Vec3(3, 7, 0), math32.Vec3(7, 7, 0), math32.Vec3(7, 3, 0),
	}
	tris := TriangulateLoops([][]math32.Vector3{outer, hole})
	var area float64
	for _, tri := range tris {
		area += LoopArea(tri[:])
	}
	assert.InDelta(t, 100.0-16.0, area, 1e-4)
}

func TestConvexHull(t *testing.T) {
	cube := MakeCube(2, 2, 2)
	// An interior point must not appear on the hull.
	cube.Vertices = append(cube.Vertices, math32.Vec3(1, 1, 1))
	cube.Faces = append(cube.Faces, Face{0, 1, 8})

	hull := cube.ConvexHull()
	assert.InDelta(t, 8.0, hull.Volume(), 1e-4)
	assert.Len(t, hull.Vertices, 8)

	sphere := MakeSphere(math32.Vec3(0, 0, 0), 1, 16)
	sh := sphere.ConvexHull()
	assert.InDelta(t, sphere.Volume(), sh.Volume(), 1e-3)
}

func TestConvexHull_Flat(t *testing.T) {
	flat := &TriangleMesh{
		Vertices: []math32.Vector3{math32.Vec3(0, 0, 0), math32.Vec3(1, 0, 0), math32.Vec3(0, 1, 0)},
		Faces:    []Face{{0, 1, 2}},
	}
	hull := flat.ConvexHull()
	assert.Equal(t, 1, hull.FacetsCount())
}

func TestClosestPointAndRaycast(t *testing.T) {
	m := MakeCube(2, 2, 2)

	hit, ok := m.ClosestPoint(math32.Vec3(1, 1, -3))
	require.True(t, ok)
	assert.InDelta(t, 3.0, hit.Distance, 1e-5)
	assert.InDelta(t, 0.0, hit.Point.Z, 1e-6)
	assert.InDelta(t, -1.0, m.FaceNormal(hit.Face).Z, 1e-6)

	rh, ok := m.Raycast(math32.Vec3(1, 1, 5), math32.Vec3(0, 0, -1), 0)
	require.True(t, ok)
	assert.InDelta(t, 3.0, rh.Distance, 1e-5)
	assert.InDelta(t, 2.0, rh.Point.Z, 1e-5)

	_, ok = m.Raycast(math32.Vec3(5, 5, 5), math32.Vec3(0, 0, -1), 0)
	assert.False(t, ok)
}

func TestPrimitives_Closed(t *testing.T) {
	tests := []struct {
		name string
		mesh *TriangleMesh
		want float64
		tol  float64
	}{
		{"cylinder", MakeCylinder(1, 2, 64), 2 * math.Pi, 0.02},
		{"cone", MakeFrustum(math32.Vec3(0, 0, 0), math32.Vec3(0, 0, 3), 1, 0, 64), math.Pi, 0.01},
		{"sphere", MakeSphere(math32.Vec3(0, 0, 0), 1, 48), 4 * math.Pi / 3, 0.03},
		{"tilted", MakeFrustum(math32.Vec3(0, 0, 0), math32.Vec3(1, 1, 1), 0.5, 0.5, 48), math.Pi * 0.25 * math.Sqrt(3), 0.01},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := tt.mesh.Volume()
			assert.Greater(t, v, 0.0)
			assert.InDelta(t, tt.want, v, tt.want*tt.tol)
		})
	}
}
