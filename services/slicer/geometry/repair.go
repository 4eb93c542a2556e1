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

// degenerateArea is the doubled-area threshold under which a face is dropped.
const degenerateArea = 1e-12

// RepairStats reports what Repair changed.
type RepairStats struct {
	MergedVertices int
	RemovedFaces   int
	RemovedUnused  int
}

// Changed reports whether the repair modified the mesh.
func (s RepairStats) Changed() bool {
	return s.MergedVertices > 0 || s.RemovedFaces > 0 || s.RemovedUnused > 0
}

// Repair welds bit-identical vertices, drops faces that collapse to a line
// or a point, and removes vertices no face references.
func (m *TriangleMesh) Repair() RepairStats {
	var stats RepairStats

	// weld
	remap := make([]int32, len(m.Vertices))
	index := make(map[math32.Vector3]int32, len(m.Vertices))
	welded := make([]math32.Vector3, 0, len(m.Vertices))
	for i, v := range m.Vertices {
		if j, ok := index[v]; ok {
			remap[i] = j
			stats.MergedVertices++
			continue
		}
		j := int32(len(welded))
		index[v] = j
		welded = append(welded, v)
		remap[i] = j
	}

	faces := m.Faces[:0]
	for _, f := range m.Faces {
		g := Face{remap[f[0]], remap[f[1]], remap[f[2]]}
		if g[0] == g[1] || g[1] == g[2] || g[0] == g[2] {
			stats.RemovedFaces++
			continue
		}
		a, b, c := welded[g[0]], welded[g[1]], welded[g[2]]
		if b.Sub(a).Cross(c.Sub(a)).LengthSquared() <= degenerateArea {
			stats.RemovedFaces++
			continue
		}
		faces = append(faces, g)
	}

	m.Vertices = welded
	m.Faces = faces
	stats.RemovedUnused = m.compact()
	return stats
}

// compact drops unreferenced vertices and returns how many were removed.
func (m *TriangleMesh) compact() int {
	used := make([]int32, len(m.Vertices))
	for i := range used {
		used[i] = -1
	}
	out := make([]math32.Vector3, 0, len(m.Vertices))
	for fi, f := range m.Faces {
		for k, vi := range f {
			if used[vi] < 0 {
				used[vi] = int32(len(out))
				out = append(out, m.Vertices[vi])
			}
			m.Faces[fi][k] = used[vi]
		}
	}
	removed := len(m.Vertices) - len(out)
	m.Vertices = out
	return removed
}

// Split partitions the mesh into connected shells. Faces are connected when
// they share a vertex index, so call Repair first to weld coincident
// vertices. Shells are returned in order of their first face.
func (m *TriangleMesh) Split() []*TriangleMesh {
	if m.Empty() {
		return nil
	}

	parent := make([]int32, len(m.Vertices))
	for i := range parent {
		parent[i] = int32(i)
	}
	var find func(int32) int32
	find = func(x int32) int32 {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b int32) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[rb] = ra
		}
	}
	for _, f := range m.Faces {
		union(f[0], f[1])
		union(f[1], f[2])
	}

	shellOf := make(map[int32]int)
	var shells []*TriangleMesh
	for _, f := range m.Faces {
		root := find(f[0])
		idx, ok := shellOf[root]
		if !ok {
			idx = len(shells)
			shellOf[root] = idx
			shells = append(shells, &TriangleMesh{Vertices: m.Vertices})
		}
		shells[idx].Faces = append(shells[idx].Faces, f)
	}

	for _, s := range shells {
		s.compact()
	}
	return shells
}

// meshBuilder accumulates triangles by position and welds identical points.
type meshBuilder struct {
	mesh  TriangleMesh
	index map[math32.Vector3]int32
}

func newMeshBuilder() *meshBuilder {
	return &meshBuilder{index: make(map[math32.Vector3]int32)}
}

func (b *meshBuilder) vertex(v math32.Vector3) int32 {
	if i, ok := b.index[v]; ok {
		return i
	}
	i := int32(len(b.mesh.Vertices))
	b.mesh.Vertices = append(b.mesh.Vertices, v)
	b.index[v] = i
	return i
}

func (b *meshBuilder) triangle(p0, p1, p2 math32.Vector3) {
	b.mesh.Faces = append(b.mesh.Faces, Face{b.vertex(p0), b.vertex(p1), b.vertex(p2)})
}

// polygon fans a convex polygon.
func (b *meshBuilder) polygon(pts []math32.Vector3) {
	for i := 1; i+1 < len(pts); i++ {
		b.triangle(pts[0], pts[i], pts[i+1])
	}
}

func (b *meshBuilder) result() *TriangleMesh {
	out := b.mesh
	return &out
}
