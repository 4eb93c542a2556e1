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

	"cogentcore.org/core/math32"
)

// MakeCube returns a closed box spanning [0,x]×[0,y]×[0,z].
func MakeCube(x, y, z float32) *TriangleMesh {
	v := []math32.Vector3{
		math32.Vec3(0, 0, 0), math32.Vec3(x, 0, 0), math32.Vec3(x, y, 0), math32.Vec3(0, y, 0),
		math32.Vec3(0, 0, z), math32.Vec3(x, 0, z), math32.Vec3(x, y, z), math32.Vec3(0, y, z),
	}
	f := []Face{
		{0, 2, 1}, {0, 3, 2}, // bottom
		{4, 5, 6}, {4, 6, 7}, // top
		{0, 1, 5}, {0, 5, 4}, // front
		{3, 7, 6}, {3, 6, 2}, // back
		{0, 4, 7}, {0, 7, 3}, // left
		{1, 2, 6}, {1, 6, 5}, // right
	}
	return NewTriangleMesh(v, f)
}

// MakeCylinder returns a closed cylinder of radius r standing on Z = 0.
func MakeCylinder(r, h float32, segments int) *TriangleMesh {
	return MakeFrustum(math32.Vec3(0, 0, 0), math32.Vec3(0, 0, h), r, r, segments)
}

// MakeFrustum returns a capped truncated cone from a (radius ra) to b
// (radius rb). A zero radius collapses that end to a point.
func MakeFrustum(a, b math32.Vector3, ra, rb float32, segments int) *TriangleMesh {
	if segments < 3 {
		segments = 3
	}
	w := b.Sub(a)
	if w.Length() == 0 {
		return &TriangleMesh{}
	}
	w = w.Normal()
	u, v := orthoBasis(w)

	mesh := &TriangleMesh{}
	ring := func(c math32.Vector3, r float32) int32 {
		base := int32(len(mesh.Vertices))
		for i := 0; i < segments; i++ {
			s, co := math.Sincos(2 * math.Pi * float64(i) / float64(segments))
			off := u.MulScalar(r * float32(co)).Add(v.MulScalar(r * float32(s)))
			mesh.Vertices = append(mesh.Vertices, c.Add(off))
		}
		return base
	}
	n := int32(segments)
	bottom := ring(a, ra)
	top := ring(b, rb)
	cb := int32(len(mesh.Vertices))
	mesh.Vertices = append(mesh.Vertices, a, b)
	ct := cb + 1

	for i := int32(0); i < n; i++ {
		j := (i + 1) % n
		mesh.Faces = append(mesh.Faces,
			Face{bottom + i, bottom + j, top + j},
			Face{bottom + i, top + j, top + i},
			Face{cb, bottom + j, bottom + i},
			Face{ct, top + i, top + j},
		)
	}
	mesh.Repair()
	return mesh
}

// MakeSphere returns a UV sphere.
func MakeSphere(center math32.Vector3, r float32, segments int) *TriangleMesh {
	if segments < 4 {
		segments = 4
	}
	stacks := segments / 2
	mesh := &TriangleMesh{}
	mesh.Vertices = append(mesh.Vertices, center.Add(math32.Vec3(0, 0, r)))
	for k := 1; k < stacks; k++ {
		sp, cp := math.Sincos(math.Pi * float64(k) / float64(stacks))
		for i := 0; i < segments; i++ {
			st, ct := math.Sincos(2 * math.Pi * float64(i) / float64(segments))
			mesh.Vertices = append(mesh.Vertices, center.Add(math32.Vec3(
				r*float32(sp*ct), r*float32(sp*st), r*float32(cp))))
		}
	}
	south := int32(len(mesh.Vertices))
	mesh.Vertices = append(mesh.Vertices, center.Add(math32.Vec3(0, 0, -r)))

	n := int32(segments)
	ringAt := func(k int) int32 { return 1 + int32(k-1)*n }
	for i := int32(0); i < n; i++ {
		j := (i + 1) % n
		mesh.Faces = append(mesh.Faces, Face{0, ringAt(1) + i, ringAt(1) + j})
	}
	for k := 1; k < stacks-1; k++ {
		up, lo := ringAt(k), ringAt(k+1)
		for i := int32(0); i < n; i++ {
			j := (i + 1) % n
			mesh.Faces = append(mesh.Faces,
				Face{up + i, lo + i, lo + j},
				Face{up + i, lo + j, up + j},
			)
		}
	}
	last := ringAt(stacks - 1)
	for i := int32(0); i < n; i++ {
		j := (i + 1) % n
		mesh.Faces = append(mesh.Faces, Face{south, last + j, last + i})
	}
	return mesh
}

// orthoBasis returns unit vectors u, v with u × v = w.
func orthoBasis(w math32.Vector3) (math32.Vector3, math32.Vector3) {
	helper := math32.Vec3(1, 0, 0)
	if math32.Abs(w.X) > 0.9 {
		helper = math32.Vec3(0, 1, 0)
	}
	u := helper.Cross(w).Normal()
	v := w.Cross(u)
	return u, v
}
