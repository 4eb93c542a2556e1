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
	"sort"

	"cogentcore.org/core/math32"
)

type ringPt struct {
	x, y float64
	p    math32.Vector3
}

type loopGroup struct {
	outer []ringPt
	area  float64
	holes [][]ringPt
}

// TriangulateLoops triangulates planar loops in the XY plane. Positive
// (counter-clockwise) loops are outer boundaries; negative loops are holes
// and belong to the smallest outer loop containing them. The returned
// triangles are counter-clockwise and reuse the input points exactly.
func TriangulateLoops(loops [][]math32.Vector3) [][3]math32.Vector3 {
	var groups []*loopGroup
	var holes [][]ringPt
	for _, l := range loops {
		a := LoopArea(l)
		ring := toRing(l)
		switch {
		case a > 0:
			groups = append(groups, &loopGroup{outer: ring, area: a})
		case a < 0:
			holes = append(holes, ring)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].area < groups[j].area })
	for _, h := range holes {
		for _, g := range groups {
			if ringContains(g.outer, h[0].x, h[0].y) {
				g.holes = append(g.holes, h)
				break
			}
		}
	}

	var out [][3]math32.Vector3
	for _, g := range groups {
		out = append(out, earClip(bridgeHoles(g.outer, g.holes))...)
	}
	return out
}

func toRing(l []math32.Vector3) []ringPt {
	r := make([]ringPt, len(l))
	for i, p := range l {
		r[i] = ringPt{x: float64(p.X), y: float64(p.Y), p: p}
	}
	return r
}

func ringContains(r []ringPt, x, y float64) bool {
	inside := false
	n := len(r)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := r[i], r[j]
		if (a.y > y) != (b.y > y) && x < (b.x-a.x)*(y-a.y)/(b.y-a.y)+a.x {
			inside = !inside
		}
	}
	return inside
}

func orient(a, b, c ringPt) float64 {
	return (b.x-a.x)*(c.y-a.y) - (b.y-a.y)*(c.x-a.x)
}

func samePos(a, b ringPt) bool {
	return a.x == b.x && a.y == b.y
}

func inTriangle(p, a, b, c ringPt) bool {
	return orient(a, b, p) >= 0 && orient(b, c, p) >= 0 && orient(c, a, p) >= 0
}

// bridgeHoles merges clockwise holes into the counter-clockwise outer ring
// with zero-width bridges, rightmost hole first.
func bridgeHoles(outer []ringPt, holes [][]ringPt) []ringPt {
	type holeRef struct {
		ring []ringPt
		mi   int
	}
	refs := make([]holeRef, 0, len(holes))
	for _, h := range holes {
		mi := 0
		for i := range h {
			if h[i].x > h[mi].x {
				mi = i
			}
		}
		refs = append(refs, holeRef{h, mi})
	}
	sort.Slice(refs, func(i, j int) bool {
		return refs[i].ring[refs[i].mi].x > refs[j].ring[refs[j].mi].x
	})

	for _, h := range refs {
		m := h.ring[h.mi]
		pi := visibleVertex(outer, m)
		if pi < 0 {
			continue
		}
		merged := make([]ringPt, 0, len(outer)+len(h.ring)+2)
		merged = append(merged, outer[:pi+1]...)
		for k := 0; k <= len(h.ring); k++ {
			merged = append(merged, h.ring[(h.mi+k)%len(h.ring)])
		}
		merged = append(merged, outer[pi])
		merged = append(merged, outer[pi+1:]...)
		outer = merged
	}
	return outer
}

// visibleVertex finds an outer vertex that can see m along a segment that
// crosses no edge.
func visibleVertex(outer []ringPt, m ringPt) int {
	n := len(outer)
	best := math.Inf(1)
	edge := -1
	for i := 0; i < n; i++ {
		a, b := outer[i], outer[(i+1)%n]
		if a.y == b.y {
			continue
		}
		if math.Min(a.y, b.y) > m.y || math.Max(a.y, b.y) < m.y {
			continue
		}
		x := a.x + (m.y-a.y)*(b.x-a.x)/(b.y-a.y)
		if x >= m.x && x < best {
			best = x
			edge = i
		}
	}
	if edge < 0 {
		return -1
	}

	a, b := edge, (edge+1)%n
	hit := ringPt{x: best, y: m.y}
	if samePos(outer[a], hit) {
		return a
	}
	if samePos(outer[b], hit) {
		return b
	}
	pi := a
	if outer[b].x > outer[a].x {
		pi = b
	}

	// A reflex vertex inside (m, hit, p) would block the bridge; take the one
	// closest in angle to the ray instead.
	p := outer[pi]
	tri := [3]ringPt{m, hit, p}
	if orient(tri[0], tri[1], tri[2]) < 0 {
		tri[1], tri[2] = tri[2], tri[1]
	}
	bestAngle := math.Atan2(math.Abs(p.y-m.y), p.x-m.x)
	bestDist := (p.x-m.x)*(p.x-m.x) + (p.y-m.y)*(p.y-m.y)
	for j := 0; j < n; j++ {
		if j == pi {
			continue
		}
		v := outer[j]
		prev, next := outer[(j+n-1)%n], outer[(j+1)%n]
		if orient(prev, v, next) >= 0 {
			continue
		}
		if !inTriangle(v, tri[0], tri[1], tri[2]) {
			continue
		}
		ang := math.Atan2(math.Abs(v.y-m.y), v.x-m.x)
		dist := (v.x-m.x)*(v.x-m.x) + (v.y-m.y)*(v.y-m.y)
		if ang < bestAngle || (ang == bestAngle && dist < bestDist) {
			bestAngle, bestDist, pi = ang, dist, j
		}
	}
	return pi
}

// earClip triangulates a counter-clockwise ring that may contain bridge
// duplicates.
func earClip(ring []ringPt) [][3]math32.Vector3 {
	idx := make([]int, len(ring))
	for i := range idx {
		idx[i] = i
	}

	var out [][3]math32.Vector3
	for len(idx) > 3 {
		n := len(idx)
		ear := -1
		for k := 0; k < n && ear < 0; k++ {
			a, b, c := ring[idx[(k+n-1)%n]], ring[idx[k]], ring[idx[(k+1)%n]]
			if orient(a, b, c) <= 0 {
				continue
			}
			blocked := false
			for _, j := range idx {
				p := ring[j]
				if samePos(p, a) || samePos(p, b) || samePos(p, c) {
					continue
				}
				if inTriangle(p, a, b, c) {
					blocked = true
					break
				}
			}
			if !blocked {
				ear = k
			}
		}

		if ear < 0 {
			// Only degenerate corners left; drop the flattest without output.
			flat, flatVal := 0, math.Inf(1)
			for k := 0; k < n; k++ {
				v := math.Abs(orient(ring[idx[(k+n-1)%n]], ring[idx[k]], ring[idx[(k+1)%n]]))
				if v < flatVal {
					flat, flatVal = k, v
				}
			}
			idx = append(idx[:flat], idx[flat+1:]...)
			continue
		}

		a, b, c := ring[idx[(ear+n-1)%n]], ring[idx[ear]], ring[idx[(ear+1)%n]]
		out = append(out, [3]math32.Vector3{a.p, b.p, c.p})
		idx = append(idx[:ear], idx[ear+1:]...)
	}
	if len(idx) == 3 {
		a, b, c := ring[idx[0]], ring[idx[1]], ring[idx[2]]
		if orient(a, b, c) > 0 {
			out = append(out, [3]math32.Vector3{a.p, b.p, c.p})
		}
	}
	return out
}
