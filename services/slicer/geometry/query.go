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

// SurfaceHit is the result of a surface query.
type SurfaceHit struct {
	Point    math32.Vector3
	Face     int
	Distance float32
}

// ClosestPoint returns the surface point nearest to p. ok is false for an
// empty mesh.
func (m *TriangleMesh) ClosestPoint(p math32.Vector3) (hit SurfaceHit, ok bool) {
	best := math.Inf(1)
	q := toVec3d(p)
	for i := range m.Faces {
		a, b, c := m.Triangle(i)
		cp := closestOnTriangle(q, toVec3d(a), toVec3d(b), toVec3d(c))
		d := cp.sub(q)
		if dd := d.dot(d); dd < best {
			best = dd
			hit = SurfaceHit{
				Point:    math32.Vec3(float32(cp.x), float32(cp.y), float32(cp.z)),
				Face:     i,
				Distance: float32(math.Sqrt(dd)),
			}
			ok = true
		}
	}
	return hit, ok
}

// closestOnTriangle is the Voronoi-region walk from Ericson, Real-Time
// Collision Detection, 5.1.5.
func closestOnTriangle(p, a, b, c vec3d) vec3d {
	ab, ac, ap := b.sub(a), c.sub(a), p.sub(a)
	d1, d2 := ab.dot(ap), ac.dot(ap)
	if d1 <= 0 && d2 <= 0 {
		return a
	}
	bp := p.sub(b)
	d3, d4 := ab.dot(bp), ac.dot(bp)
	if d3 >= 0 && d4 <= d3 {
		return b
	}
	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		v := d1 / (d1 - d3)
		return vec3d{a.x + ab.x*v, a.y + ab.y*v, a.z + ab.z*v}
	}
	cp := p.sub(c)
	d5, d6 := ab.dot(cp), ac.dot(cp)
	if d6 >= 0 && d5 <= d6 {
		return c
	}
	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		w := d2 / (d2 - d6)
		return vec3d{a.x + ac.x*w, a.y + ac.y*w, a.z + ac.z*w}
	}
	va := d3*d6 - d5*d4
	if va <= 0 && d4-d3 >= 0 && d5-d6 >= 0 {
		w := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		bc := c.sub(b)
		return vec3d{b.x + bc.x*w, b.y + bc.y*w, b.z + bc.z*w}
	}
	denom := 1 / (va + vb + vc)
	v, w := vb*denom, vc*denom
	return vec3d{
		a.x + ab.x*v + ac.x*w,
		a.y + ab.y*v + ac.y*w,
		a.z + ab.z*v + ac.z*w,
	}
}

// Raycast returns the nearest intersection of the ray origin + t*dir with
// t > minT. dir need not be normalised; Distance is reported in units of t.
func (m *TriangleMesh) Raycast(origin, dir math32.Vector3, minT float32) (hit SurfaceHit, ok bool) {
	o, d := toVec3d(origin), toVec3d(dir)
	best := math.Inf(1)
	for i := range m.Faces {
		a, b, c := m.Triangle(i)
		t, found := rayTriangle(o, d, toVec3d(a), toVec3d(b), toVec3d(c))
		if !found || t <= float64(minT) || t >= best {
			continue
		}
		best = t
		hit = SurfaceHit{
			Point:    math32.Vec3(float32(o.x+d.x*t), float32(o.y+d.y*t), float32(o.z+d.z*t)),
			Face:     i,
			Distance: float32(t),
		}
		ok = true
	}
	return hit, ok
}

// rayTriangle is the Möller-Trumbore test, two-sided.
func rayTriangle(o, d, a, b, c vec3d) (float64, bool) {
	const eps = 1e-12
	e1, e2 := b.sub(a), c.sub(a)
	p := d.cross(e2)
	det := e1.dot(p)
	if math.Abs(det) < eps {
		return 0, false
	}
	inv := 1 / det
	s := o.sub(a)
	u := s.dot(p) * inv
	if u < 0 || u > 1 {
		return 0, false
	}
	q := s.cross(e1)
	v := d.dot(q) * inv
	if v < 0 || u+v > 1 {
		return 0, false
	}
	return e2.dot(q) * inv, true
}
