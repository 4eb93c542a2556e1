// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package geometry holds indexed triangle meshes and the affine transforms
// applied to them.
//
// Meshes use float32 vertices (cogentcore math32) with int32 face indices.
// Everything here is a plain value type; none of it is safe for concurrent
// mutation.
package geometry

import (
	"cogentcore.org/core/math32"
)

// Face is a triangle given by three vertex indices, counter-clockwise when
// seen from outside.
type Face [3]int32

// TriangleMesh is an indexed triangle mesh.
type TriangleMesh struct {
	Vertices []math32.Vector3
	Faces    []Face
}

// NewTriangleMesh wraps vertices and faces without copying.
func NewTriangleMesh(vertices []math32.Vector3, faces []Face) *TriangleMesh {
	return &TriangleMesh{Vertices: vertices, Faces: faces}
}

// Clone returns a deep copy. A nil mesh clones to an empty mesh.
func (m *TriangleMesh) Clone() *TriangleMesh {
	if m == nil {
		return &TriangleMesh{}
	}
	out := &TriangleMesh{
		Vertices: make([]math32.Vector3, len(m.Vertices)),
		Faces:    make([]Face, len(m.Faces)),
	}
	copy(out.Vertices, m.Vertices)
	copy(out.Faces, m.Faces)
	return out
}

// Empty reports whether the mesh has no faces.
func (m *TriangleMesh) Empty() bool {
	return m == nil || len(m.Faces) == 0
}

// FacetsCount returns the number of triangles.
func (m *TriangleMesh) FacetsCount() int {
	if m == nil {
		return 0
	}
	return len(m.Faces)
}

// Triangle returns the corner positions of face i.
func (m *TriangleMesh) Triangle(i int) (a, b, c math32.Vector3) {
	f := m.Faces[i]
	return m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]
}

// BoundingBox returns the axis-aligned box of the referenced vertices.
// An empty mesh yields an empty box.
func (m *TriangleMesh) BoundingBox() math32.Box3 {
	box := math32.B3Empty()
	if m == nil {
		return box
	}
	for _, f := range m.Faces {
		for _, vi := range f {
			box.ExpandByPoint(m.Vertices[vi])
		}
	}
	return box
}

// TransformedBoundingBox returns the snug box of the vertices under t.
func (m *TriangleMesh) TransformedBoundingBox(t *math32.Matrix4) math32.Box3 {
	box := math32.B3Empty()
	if m == nil {
		return box
	}
	for _, f := range m.Faces {
		for _, vi := range f {
			box.ExpandByPoint(TransformPoint(t, m.Vertices[vi]))
		}
	}
	return box
}

// Transform applies t in place. Orientation-reversing matrices flip the
// face winding so normals keep pointing outwards.
func (m *TriangleMesh) Transform(t math32.Matrix4) {
	for i, v := range m.Vertices {
		m.Vertices[i] = TransformPoint(&t, v)
	}
	if Determinant(t) < 0 {
		m.FlipFaces()
	}
}

// FlipFaces reverses the winding of every face.
func (m *TriangleMesh) FlipFaces() {
	for i, f := range m.Faces {
		m.Faces[i] = Face{f[0], f[2], f[1]}
	}
}

// Translate moves every vertex by d.
func (m *TriangleMesh) Translate(d math32.Vector3) {
	for i := range m.Vertices {
		m.Vertices[i] = m.Vertices[i].Add(d)
	}
}

// Scale scales every vertex about the origin.
func (m *TriangleMesh) Scale(s math32.Vector3) {
	t := affine([3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
		[3]float64{float64(s.X), float64(s.Y), float64(s.Z)}, math32.Vector3{})
	m.Transform(t)
}

// Merge appends other's geometry.
func (m *TriangleMesh) Merge(other *TriangleMesh) {
	if other == nil {
		return
	}
	base := int32(len(m.Vertices))
	m.Vertices = append(m.Vertices, other.Vertices...)
	for _, f := range other.Faces {
		m.Faces = append(m.Faces, Face{f[0] + base, f[1] + base, f[2] + base})
	}
}

// Volume returns the signed enclosed volume. Closed outward-facing meshes
// give a positive value.
func (m *TriangleMesh) Volume() float64 {
	if m == nil {
		return 0
	}
	var sum float64
	for i := range m.Faces {
		a, b, c := m.Triangle(i)
		ax, ay, az := float64(a.X), float64(a.Y), float64(a.Z)
		bx, by, bz := float64(b.X), float64(b.Y), float64(b.Z)
		cx, cy, cz := float64(c.X), float64(c.Y), float64(c.Z)
		sum += ax*(by*cz-bz*cy) - ay*(bx*cz-bz*cx) + az*(bx*cy-by*cx)
	}
	return sum / 6
}

// Area returns the total surface area.
func (m *TriangleMesh) Area() float64 {
	var sum float64
	for i := range m.Faces {
		a, b, c := m.Triangle(i)
		sum += float64(b.Sub(a).Cross(c.Sub(a)).Length()) / 2
	}
	return sum
}

// FaceNormal returns the unit normal of face i, or zero for a degenerate
// face.
func (m *TriangleMesh) FaceNormal(i int) math32.Vector3 {
	a, b, c := m.Triangle(i)
	n := b.Sub(a).Cross(c.Sub(a))
	l := n.Length()
	if l == 0 {
		return math32.Vector3{}
	}
	return n.DivScalar(l)
}

// MergeMeshes concatenates meshes into a new one.
func MergeMeshes(meshes ...*TriangleMesh) *TriangleMesh {
	out := &TriangleMesh{}
	for _, m := range meshes {
		out.Merge(m)
	}
	return out
}
