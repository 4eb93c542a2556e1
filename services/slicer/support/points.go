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
	"context"
	"fmt"
	"math"

	"cogentcore.org/core/math32"

	"github.com/AleutianAI/AleutianSlice/services/slicer/cancel"
	"github.com/AleutianAI/AleutianSlice/services/slicer/geometry"
	"github.com/AleutianAI/AleutianSlice/services/slicer/layers"
)

// PointConfig drives automatic support point placement.
type PointConfig struct {
	// MinimalDistance is the smallest spacing between two points.
	MinimalDistance float64 `validate:"gt=0"`

	// DensityRelative scales the overhang sampling density, in percent.
	DensityRelative int `validate:"gte=0"`

	// CriticalAngle is the largest overhang angle from straight down that
	// still needs support, in radians.
	CriticalAngle float64 `validate:"gte=0,lte=1.5707963267948966"`

	// SkipBelow drops points at or below this height, such as the bottom
	// of an object resting on the pad.
	SkipBelow float64
}

// SamplePoints places support points for a model without user points.
//
// Description:
//
//	Island centroids come first: each is projected straight down onto the
//	island's lower surface. Overhanging faces are then sampled at
//	MinimalDistance scaled by the density. A candidate closer than
//	MinimalDistance to an accepted point is dropped, and every point is
//	snapped to the surface.
//
// Inputs:
//   - ctx: Second cancellation source.
//   - mesh: Model in the support frame.
//   - islands: Unsupported regions, as found by layers.FindIslands.
//   - planes: Cut height of every layer the islands index into.
//   - pcfg: Placement options.
//   - ctl: Polled every 64 candidates. May be nil.
//
// Outputs:
//   - []math32.Vector3: Points in the mesh frame.
//   - error: A cancellation error or ErrInvalidConfig.
func SamplePoints(ctx context.Context, mesh *geometry.TriangleMesh, islands []layers.Island, planes []float64, pcfg PointConfig, ctl *cancel.Controller) ([]math32.Vector3, error) {
	if err := validatorInstance().Struct(pcfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if mesh == nil || mesh.Empty() {
		return nil, nil
	}

	n := 0
	check := func() error {
		n++
		if n%checkInterval != 0 {
			return nil
		}
		if err := ctl.Check(); err != nil {
			return err
		}
		return cancel.FromContext(ctx)
	}

	acc := newPointSet(pcfg.MinimalDistance)
	accept := func(p math32.Vector3) {
		hit, ok := mesh.ClosestPoint(p)
		if !ok || float64(hit.Point.Z) <= pcfg.SkipBelow {
			return
		}
		acc.add(hit.Point)
	}

	for _, isl := range islands {
		if err := check(); err != nil {
			return nil, err
		}
		if isl.Layer < 0 || isl.Layer >= len(planes) || len(isl.Shape.Contour) == 0 {
			continue
		}
		c := isl.Shape.Contour.Centroid()
		if !isl.Shape.Contains(c) {
			c = isl.Shape.Contour[0]
		}
		origin := vec(layers.Unscale(c.X), layers.Unscale(c.Y), planes[isl.Layer])
		if hit, ok := mesh.Raycast(origin, down, 0); ok {
			accept(hit.Point)
		} else {
			accept(origin)
		}
	}

	spacing := pcfg.MinimalDistance
	if pcfg.DensityRelative > 0 {
		spacing *= 100 / float64(pcfg.DensityRelative)
	}
	limit := -math.Cos(pcfg.CriticalAngle)
	for i := range mesh.Faces {
		if err := check(); err != nil {
			return nil, err
		}
		if pcfg.DensityRelative == 0 || float64(mesh.FaceNormal(i).Z) > limit {
			continue
		}
		a, b, c := mesh.Triangle(i)
		for _, p := range subdivide(a, b, c, spacing) {
			accept(p)
		}
	}
	return acc.points, nil
}

// subdivide returns sample points covering a triangle so that no sample is
// further than about spacing from its neighbours.
func subdivide(a, b, c math32.Vector3, spacing float64) []math32.Vector3 {
	longest := math.Max(float64(b.Sub(a).Length()), math.Max(float64(c.Sub(b).Length()), float64(a.Sub(c).Length())))
	steps := max(1, int(math.Ceil(longest/spacing)))
	var out []math32.Vector3
	for i := 0; i < steps; i++ {
		for j := 0; j < steps-i; j++ {
			u := (float32(i) + 1.0/3) / float32(steps)
			v := (float32(j) + 1.0/3) / float32(steps)
			w := 1 - u - v
			out = append(out, a.MulScalar(w).Add(b.MulScalar(u)).Add(c.MulScalar(v)))
		}
	}
	return out
}

// pointSet keeps points at least dist apart using a uniform grid.
type pointSet struct {
	dist   float64
	cells  map[[3]int][]int
	points []math32.Vector3
}

func newPointSet(dist float64) *pointSet {
	return &pointSet{dist: dist, cells: make(map[[3]int][]int)}
}

func (s *pointSet) cell(p math32.Vector3) [3]int {
	return [3]int{
		int(math.Floor(float64(p.X) / s.dist)),
		int(math.Floor(float64(p.Y) / s.dist)),
		int(math.Floor(float64(p.Z) / s.dist)),
	}
}

func (s *pointSet) add(p math32.Vector3) bool {
	c := s.cell(p)
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			for dz := -1; dz <= 1; dz++ {
				for _, idx := range s.cells[[3]int{c[0] + dx, c[1] + dy, c[2] + dz}] {
					if float64(s.points[idx].Sub(p).Length()) < s.dist {
						return false
					}
				}
			}
		}
	}
	s.cells[c] = append(s.cells[c], len(s.points))
	s.points = append(s.points, p)
	return true
}
