// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package layers

import (
	"cmp"
	"math"
	"slices"
)

// ConvexHull returns the counter-clockwise hull of pts (monotone chain).
// Fewer than three distinct points yield what is there.
func ConvexHull(pts []Point) Polygon {
	ps := slices.Clone(pts)
	slices.SortFunc(ps, func(a, b Point) int {
		if a.X != b.X {
			return cmp.Compare(a.X, b.X)
		}
		return cmp.Compare(a.Y, b.Y)
	})
	ps = slices.Compact(ps)
	if len(ps) < 3 {
		return Polygon(ps)
	}

	hull := make(Polygon, 0, 2*len(ps))
	for _, p := range ps {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(ps) - 2; i >= 0; i-- {
		p := ps[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// OffsetConvex grows a convex ring outward by delta, rounding corners with
// the given number of segments per full turn.
func OffsetConvex(p Polygon, delta Coord, segments int) Polygon {
	if delta <= 0 || len(p) == 0 {
		return slices.Clone(p)
	}
	segments = max(segments, 8)
	pts := make([]Point, 0, len(p)*segments)
	for _, v := range p {
		for k := 0; k < segments; k++ {
			a := 2 * math.Pi * float64(k) / float64(segments)
			pts = append(pts, Point{
				X: v.X + Coord(math.Round(float64(delta)*math.Cos(a))),
				Y: v.Y + Coord(math.Round(float64(delta)*math.Sin(a))),
			})
		}
	}
	return ConvexHull(pts)
}
