// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package support generates the support tree that holds a model above the
// build platform: heads touching the model, pillars down to the ground or
// back onto the model, bridges between them, flared bases and an optional
// pad.
//
// Generation is a pure function of the point set, the mesh and the
// configuration. It polls a cancel.Controller at bounded intervals and
// never exposes a partial tree.
package support

import (
	"slices"

	"cogentcore.org/core/math32"

	"github.com/AleutianAI/AleutianSlice/services/slicer/geometry"
)

// IndexedMesh is the model surface supports attach to.
type IndexedMesh struct {
	// Mesh is the model in the support frame.
	Mesh *geometry.TriangleMesh

	// GroundLevel is the Z of the build platform in the same frame.
	GroundLevel float64
}

// NewIndexedMesh places the ground elevation below the mesh bottom.
func NewIndexedMesh(mesh *geometry.TriangleMesh, elevation float64) IndexedMesh {
	ground := -elevation
	if mesh != nil && !mesh.Empty() {
		ground = float64(mesh.BoundingBox().Min.Z) - elevation
	}
	return IndexedMesh{Mesh: mesh, GroundLevel: ground}
}

// Head is the tapered tip joining one support point to a pillar.
type Head struct {
	// ID is the head's index in Tree.Heads.
	ID int

	// Tip is the front sphere center, inside the model by the penetration.
	Tip math32.Vector3

	// Junction is the back sphere center where the pillar or bridge starts.
	Junction math32.Vector3

	// Dir points from the tip to the junction.
	Dir math32.Vector3

	// FrontRadius and BackRadius size the two spheres.
	FrontRadius, BackRadius float64

	// PillarID is the pillar carrying the head, or -1.
	PillarID int
}

// Pillar is a vertical column.
type Pillar struct {
	// ID is the pillar's index in Tree.Pillars.
	ID int

	// Top and Bottom are the column's end centers.
	Top, Bottom math32.Vector3

	// Radius is the column radius.
	Radius float64

	// HeadIDs lists the heads the pillar carries; the first is the anchor.
	HeadIDs []int

	// OnModel reports a pillar ending on the model instead of the ground.
	OnModel bool

	// HasBase reports a flared base at the ground.
	HasBase bool
}

// Bridge is a tilted strut.
type Bridge struct {
	From, To math32.Vector3
	Radius   float64

	// Cross reports a strut between two pillars rather than from a head.
	Cross bool
}

// Tree is a generated support structure.
//
// Thread Safety: Read-only methods are safe for concurrent use. AddPad must
// not race with readers; WithPad builds the pad on a copy instead.
type Tree struct {
	cfg Config

	heads   []Head
	pillars []Pillar
	bridges []Bridge

	ground  float64
	top     float64
	mesh    *geometry.TriangleMesh
	pad     *geometry.TriangleMesh
	padBase float64
}

// Heads returns the heads.
func (t *Tree) Heads() []Head {
	return slices.Clone(t.heads)
}

// Pillars returns the pillars.
func (t *Tree) Pillars() []Pillar {
	return slices.Clone(t.pillars)
}

// Bridges returns the bridges, cross bridges included.
func (t *Tree) Bridges() []Bridge {
	return slices.Clone(t.bridges)
}

// GroundLevel returns the Z of the build platform.
func (t *Tree) GroundLevel() float64 {
	return t.ground
}

// Extent returns the vertical range the tree's slices cover: from the pad
// bottom (or the ground) to the model top.
func (t *Tree) Extent() (zmin, zmax float64) {
	zmin = t.ground
	if t.pad != nil {
		zmin = t.padBase
	}
	return zmin, t.top
}

// Mesh returns the merged support mesh without the pad. The mesh is shared;
// callers must not modify it.
func (t *Tree) Mesh() *geometry.TriangleMesh {
	return t.mesh
}

// Pad returns the pad mesh, or an empty mesh without a pad.
func (t *Tree) Pad() *geometry.TriangleMesh {
	if t.pad == nil {
		return &geometry.TriangleMesh{}
	}
	return t.pad
}

// HasPad reports whether AddPad produced a pad.
func (t *Tree) HasPad() bool {
	return t.pad != nil
}

// MeshWithPad returns a new mesh of the supports and the pad.
func (t *Tree) MeshWithPad() *geometry.TriangleMesh {
	return geometry.MergeMeshes(t.mesh, t.Pad())
}

// buildMesh merges the primitives of every element. check is polled every
// few elements.
func (t *Tree) buildMesh(check func(i int) error) error {
	segs := t.cfg.Segments
	var parts []*geometry.TriangleMesh
	n := 0
	add := func(m *geometry.TriangleMesh) error {
		parts = append(parts, m)
		n++
		return check(n)
	}

	for _, h := range t.heads {
		r0, r1 := float32(h.FrontRadius), float32(h.BackRadius)
		if err := add(geometry.MakeSphere(h.Tip, r0, segs)); err != nil {
			return err
		}
		if err := add(geometry.MakeFrustum(h.Tip, h.Junction, r0, r1, segs)); err != nil {
			return err
		}
		if err := add(geometry.MakeSphere(h.Junction, r1, segs)); err != nil {
			return err
		}
	}
	for _, p := range t.pillars {
		r := float32(p.Radius)
		if p.Top.Z > p.Bottom.Z {
			if err := add(geometry.MakeFrustum(p.Bottom, p.Top, r, r, segs)); err != nil {
				return err
			}
		}
		if p.OnModel {
			if err := add(geometry.MakeSphere(p.Bottom, r, segs)); err != nil {
				return err
			}
		}
		if p.HasBase && t.cfg.BaseHeight > 0 {
			baseTop := p.Bottom.Add(math32.Vec3(0, 0, float32(t.cfg.BaseHeight)))
			base := geometry.MakeFrustum(p.Bottom, baseTop, float32(t.cfg.BaseRadius), r, segs)
			if err := add(base); err != nil {
				return err
			}
		}
	}
	for _, b := range t.bridges {
		r := float32(b.Radius)
		if err := add(geometry.MakeFrustum(b.From, b.To, r, r, segs)); err != nil {
			return err
		}
	}
	t.mesh = geometry.MergeMeshes(parts...)
	return nil
}
