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
	"math"

	"cogentcore.org/core/math32"

	"github.com/AleutianAI/AleutianSlice/services/slicer/geometry"
	"github.com/AleutianAI/AleutianSlice/services/slicer/layers"
)

// padRingSegments is the number of support directions sampled per pad ring.
const padRingSegments = 64

// AddPad builds the base pad under the tree.
//
// Description:
//
//	The pad outline is the convex hull of the baseplate and every pillar
//	base footprint, grown by WallThickness. The pad spans WallThickness
//	below the ground level up to the ground, with its top edge chamfered by
//	EdgeRadius. With no baseplate and no bases there is nothing to pad and
//	the tree is left without one.
//
// Inputs:
//   - baseplate: Footprint of the model bottom, in scaled coordinates.
//   - pcfg: Pad sizing. Validated before use.
//
// Outputs:
//   - error: ErrInvalidConfig for bad sizing.
func (t *Tree) AddPad(baseplate []layers.ExPolygon, pcfg PadConfig) error {
	if err := pcfg.Validate(); err != nil {
		return err
	}

	var pts []layers.Point
	for _, e := range baseplate {
		pts = append(pts, e.Contour...)
	}
	for _, p := range t.pillars {
		if !p.HasBase {
			continue
		}
		foot := layers.Polygon{layers.Pt(float64(p.Bottom.X), float64(p.Bottom.Y))}
		pts = append(pts, layers.OffsetConvex(foot, layers.Scale(t.cfg.BaseRadius), t.cfg.Segments)...)
	}
	hull := layers.ConvexHull(pts)
	if len(hull) == 0 {
		t.pad = nil
		return nil
	}

	thick := pcfg.WallThickness
	edge := math.Min(pcfg.EdgeRadius, thick/2)
	top := t.ground
	bottom := t.ground - thick

	rings := []padRing{
		{z: top, pts: supportRing(hull, thick-edge)},
		{z: top - edge, pts: supportRing(hull, thick)},
		{z: bottom, pts: supportRing(hull, thick)},
	}
	t.pad = extrudeRings(rings, hull.Centroid())
	t.padBase = bottom
	return nil
}

// WithPad returns a copy of the tree carrying the pad AddPad would build.
// The receiver is left untouched, so a tree already handed to readers
// stays immutable.
func (t *Tree) WithPad(baseplate []layers.ExPolygon, pcfg PadConfig) (*Tree, error) {
	cp := *t
	if err := cp.AddPad(baseplate, pcfg); err != nil {
		return nil, err
	}
	return &cp, nil
}

type padRing struct {
	z   float64
	pts []layers.Point
}

// supportRing samples the outline of hull grown by delta in a fixed set of
// directions, so rings at different deltas have matching vertex counts.
func supportRing(hull layers.Polygon, delta float64) []layers.Point {
	out := make([]layers.Point, padRingSegments)
	for k := range out {
		s, c := math.Sincos(2 * math.Pi * float64(k) / padRingSegments)
		best, bestDot := hull[0], math.Inf(-1)
		for _, p := range hull {
			if d := c*float64(p.X) + s*float64(p.Y); d > bestDot {
				best, bestDot = p, d
			}
		}
		out[k] = layers.Point{
			X: best.X + layers.Scale(delta*c),
			Y: best.Y + layers.Scale(delta*s),
		}
	}
	return out
}

// extrudeRings closes a stack of counter-clockwise rings, top first, into a
// solid with flat caps.
func extrudeRings(rings []padRing, center layers.Point) *geometry.TriangleMesh {
	to3 := func(p layers.Point, z float64) math32.Vector3 {
		return vec(layers.Unscale(p.X), layers.Unscale(p.Y), z)
	}
	n := int32(padRingSegments)
	mesh := &geometry.TriangleMesh{}
	base := make([]int32, len(rings))
	for r, ring := range rings {
		base[r] = int32(len(mesh.Vertices))
		for _, p := range ring.pts {
			mesh.Vertices = append(mesh.Vertices, to3(p, ring.z))
		}
	}
	topC := int32(len(mesh.Vertices))
	mesh.Vertices = append(mesh.Vertices, to3(center, rings[0].z))
	botC := topC + 1
	mesh.Vertices = append(mesh.Vertices, to3(center, rings[len(rings)-1].z))

	for k := int32(0); k < n; k++ {
		j := (k + 1) % n
		mesh.Faces = append(mesh.Faces, geometry.Face{topC, base[0] + k, base[0] + j})
		last := base[len(rings)-1]
		mesh.Faces = append(mesh.Faces, geometry.Face{botC, last + j, last + k})
		for r := 0; r+1 < len(rings); r++ {
			u, l := base[r], base[r+1]
			mesh.Faces = append(mesh.Faces,
				geometry.Face{l + k, l + j, u + j},
				geometry.Face{l + k, u + j, u + k},
			)
		}
	}
	mesh.Repair()
	return mesh
}
