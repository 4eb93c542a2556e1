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

type vec3d struct{ x, y, z float64 }

func toVec3d(v math32.Vector3) vec3d {
	return vec3d{float64(v.X), float64(v.Y), float64(v.Z)}
}

func (a vec3d) sub(b vec3d) vec3d { return vec3d{a.x - b.x, a.y - b.y, a.z - b.z} }
func (a vec3d) dot(b vec3d) float64 {
	return a.x*b.x + a.y*b.y + a.z*b.z
}
func (a vec3d) cross(b vec3d) vec3d {
	return vec3d{a.y*b.z - a.z*b.y, a.z*b.x - a.x*b.z, a.x*b.y - a.y*b.x}
}
func (a vec3d) norm() float64 { return math.Sqrt(a.dot(a)) }

type hullFace struct {
	v      [3]int
	n      vec3d
	offset float64
}

func newHullFace(pts []vec3d, a, b, c int) hullFace {
	n := pts[b].sub(pts[a]).cross(pts[c].sub(pts[a]))
	if l := n.norm(); l > 0 {
		n = vec3d{n.x / l, n.y / l, n.z / l}
	}
	return hullFace{v: [3]int{a, b, c}, n: n, offset: n.dot(pts[a])}
}

func (f hullFace) distance(p vec3d) float64 {
	return f.n.dot(p) - f.offset
}

// ConvexHull returns the convex hull of the mesh vertices as a closed mesh.
//
// Description:
//
//	Incremental construction: an initial tetrahedron from extreme points,
//	then every remaining point replaces the faces it can see with a fan
//	over the horizon. Flat or degenerate input (all points coplanar) returns
//	a copy of the input, which still has the same bounding box under any
//	affine map.
func (m *TriangleMesh) ConvexHull() *TriangleMesh {
	if m.Empty() {
		return &TriangleMesh{}
	}
	pts := make([]vec3d, len(m.Vertices))
	for i, v := range m.Vertices {
		pts[i] = toVec3d(v)
	}

	box := m.BoundingBox()
	eps := 1e-6 * math.Max(1, float64(box.Size().Length()))

	i0 := 0
	for i := range pts {
		if pts[i].x < pts[i0].x {
			i0 = i
		}
	}
	i1 := farthestFrom(pts, func(p vec3d) float64 { return p.sub(pts[i0]).norm() })
	dir := pts[i1].sub(pts[i0])
	i2 := farthestFrom(pts, func(p vec3d) float64 { return p.sub(pts[i0]).cross(dir).norm() / math.Max(dir.norm(), eps) })
	plane := newHullFace(pts, i0, i1, i2)
	i3 := farthestFrom(pts, func(p vec3d) float64 { return math.Abs(plane.distance(p)) })

	if dir.norm() <= eps || pts[i2].sub(pts[i0]).cross(dir).norm() <= eps*dir.norm() || math.Abs(plane.distance(pts[i3])) <= eps {
		out := m.Clone()
		out.Repair()
		return out
	}

	var faces []hullFace
	if plane.distance(pts[i3]) > 0 {
		faces = []hullFace{
			newHullFace(pts, i0, i2, i1),
			newHullFace(pts, i0, i1, i3),
			newHullFace(pts, i1, i2, i3),
			newHullFace(pts, i2, i0, i3),
		}
	} else {
		faces = []hullFace{
			newHullFace(pts, i0, i1, i2),
			newHullFace(pts, i0, i3, i1),
			newHullFace(pts, i1, i3, i2),
			newHullFace(pts, i2, i3, i0),
		}
	}

	// A point skipped because it lay on a face plane can end up outside
	// once that face is replaced, so sweep until nothing changes.
	for changed := true; changed; {
		changed = false
		for pi, p := range pts {
			if pi == i0 || pi == i1 || pi == i2 || pi == i3 {
				continue
			}
			if addHullPoint(pts, &faces, pi, p, eps) {
				changed = true
			}
		}
	}

	out := &TriangleMesh{Vertices: append([]math32.Vector3(nil), m.Vertices...)}
	for _, f := range faces {
		out.Faces = append(out.Faces, Face{int32(f.v[0]), int32(f.v[1]), int32(f.v[2])})
	}
	out.Repair()
	return out
}

// addHullPoint replaces every face p can see by a fan from p over the
// horizon. It reports whether p was outside.
func addHullPoint(pts []vec3d, faces *[]hullFace, pi int, p vec3d, eps float64) bool {
	visible := make(map[int]bool)
	for fi, f := range *faces {
		if f.distance(p) > eps {
			visible[fi] = true
		}
	}
	if len(visible) == 0 {
		return false
	}

	edges := make(map[[2]int]bool)
	for fi := range visible {
		v := (*faces)[fi].v
		for k := 0; k < 3; k++ {
			edges[[2]int{v[k], v[(k+1)%3]}] = true
		}
	}
	kept := make([]hullFace, 0, len(*faces)+len(edges))
	for fi, f := range *faces {
		if !visible[fi] {
			kept = append(kept, f)
		}
	}
	for e := range edges {
		if edges[[2]int{e[1], e[0]}] {
			continue
		}
		kept = append(kept, newHullFace(pts, e[0], e[1], pi))
	}
	*faces = kept
	return true
}

func farthestFrom(pts []vec3d, dist func(vec3d) float64) int {
	best, bestD := 0, -1.0
	for i, p := range pts {
		if d := dist(p); d > bestD {
			best, bestD = i, d
		}
	}
	return best
}
