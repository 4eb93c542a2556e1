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
	"cogentcore.org/core/math32"
)

// edgeKey names an undirected edge by its sorted vertex indices.
type edgeKey struct{ lo, hi int32 }

func keyOf(a, b int32) edgeKey {
	if a > b {
		a, b = b, a
	}
	return edgeKey{a, b}
}

// edgePoint intersects edge (a, b) with the plane Z = z. The computation is
// independent of the edge direction, so both faces sharing the edge produce
// bit-identical points.
func (m *TriangleMesh) edgePoint(a, b int32, z float32) math32.Vector3 {
	if a > b {
		a, b = b, a
	}
	pa, pb := m.Vertices[a], m.Vertices[b]
	if pa.Z == z {
		return pa
	}
	if pb.Z == z {
		return pb
	}
	t := (z - pa.Z) / (pb.Z - pa.Z)
	return math32.Vec3(pa.X+(pb.X-pa.X)*t, pa.Y+(pb.Y-pa.Y)*t, z)
}

// aboveFlags classifies the corners of face f. Points on the plane count as
// above, consistently for every caller.
func (m *TriangleMesh) aboveFlags(f Face, z float32) [3]bool {
	return [3]bool{
		m.Vertices[f[0]].Z >= z,
		m.Vertices[f[1]].Z >= z,
		m.Vertices[f[2]].Z >= z,
	}
}

type sectionSegment struct {
	from, to edgeKey
	start    math32.Vector3
}

// SectionLoops intersects a welded mesh with the plane Z = z and returns the
// closed cross-section loops. Outer boundaries come out counter-clockwise
// seen from +Z, holes clockwise. Open chains from non-manifold input are
// dropped.
func (m *TriangleMesh) SectionLoops(z float32) [][]math32.Vector3 {
	var segs []sectionSegment
	byStart := make(map[edgeKey]int)

	for _, f := range m.Faces {
		above := m.aboveFlags(f, z)
		if above[0] == above[1] && above[1] == above[2] {
			continue
		}
		var seg sectionSegment
		for k := 0; k < 3; k++ {
			i, j := f[k], f[(k+1)%3]
			switch {
			case above[k] && !above[(k+1)%3]:
				seg.from = keyOf(i, j)
				seg.start = m.edgePoint(i, j, z)
			case !above[k] && above[(k+1)%3]:
				seg.to = keyOf(i, j)
			}
		}
		byStart[seg.from] = len(segs)
		segs = append(segs, seg)
	}

	used := make([]bool, len(segs))
	var loops [][]math32.Vector3
	for i := range segs {
		if used[i] {
			continue
		}
		var loop []math32.Vector3
		cur := i
		closed := false
		for {
			used[cur] = true
			loop = append(loop, segs[cur].start)
			next, ok := byStart[segs[cur].to]
			if !ok {
				break
			}
			if next == i {
				closed = true
				break
			}
			if used[next] {
				break
			}
			cur = next
		}
		if !closed {
			continue
		}
		loop = dedupeLoop(loop)
		if len(loop) >= 3 {
			loops = append(loops, loop)
		}
	}
	return loops
}

func dedupeLoop(loop []math32.Vector3) []math32.Vector3 {
	out := loop[:0]
	for _, p := range loop {
		if len(out) > 0 && out[len(out)-1] == p {
			continue
		}
		out = append(out, p)
	}
	for len(out) > 1 && out[0] == out[len(out)-1] {
		out = out[:len(out)-1]
	}
	return out
}

// LoopArea returns the signed XY area of a loop, positive when
// counter-clockwise.
func LoopArea(loop []math32.Vector3) float64 {
	var a float64
	n := len(loop)
	for i := 0; i < n; i++ {
		p, q := loop[i], loop[(i+1)%n]
		a += float64(p.X)*float64(q.Y) - float64(q.X)*float64(p.Y)
	}
	return a / 2
}

// Cut splits the mesh at Z = z into an upper and a lower part. Both parts
// are closed with caps triangulated from the cross-section and repaired.
// Either part may come back empty.
func (m *TriangleMesh) Cut(z float32) (upper, lower *TriangleMesh) {
	src := m.Clone()
	src.Repair()

	ub, lb := newMeshBuilder(), newMeshBuilder()
	for _, f := range src.Faces {
		above := src.aboveFlags(f, z)
		p := [3]math32.Vector3{src.Vertices[f[0]], src.Vertices[f[1]], src.Vertices[f[2]]}
		switch {
		case above[0] && above[1] && above[2]:
			ub.triangle(p[0], p[1], p[2])
		case !above[0] && !above[1] && !above[2]:
			lb.triangle(p[0], p[1], p[2])
		default:
			var up, lo []math32.Vector3
			for k := 0; k < 3; k++ {
				if above[k] {
					up = append(up, p[k])
				} else {
					lo = append(lo, p[k])
				}
				if above[k] != above[(k+1)%3] {
					q := src.edgePoint(f[k], f[(k+1)%3], z)
					up = append(up, q)
					lo = append(lo, q)
				}
			}
			ub.polygon(up)
			lb.polygon(lo)
		}
	}

	for _, tri := range TriangulateLoops(src.SectionLoops(z)) {
		lb.triangle(tri[0], tri[1], tri[2])
		ub.triangle(tri[0], tri[2], tri[1])
	}

	upper, lower = ub.result(), lb.result()
	upper.Repair()
	lower.Repair()
	return upper, lower
}
