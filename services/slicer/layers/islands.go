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

// Island is a region of a layer with nothing beneath it in the previous
// layer.
type Island struct {
	// Layer is the index into the slice list.
	Layer int

	// Shape is the unsupported region.
	Shape ExPolygon
}

// FindIslands returns the regions not supported by the previous layer.
//
// Description:
//
//	A shape is supported when it overlaps any shape of the layer below:
//	either one contains a vertex of the other or their contours cross.
//	Every shape of the first non-empty layer is an island.
func FindIslands(slices []ExPolygons) []Island {
	var out []Island
	var below ExPolygons
	for i, layer := range slices {
		for _, shape := range layer {
			if !supported(shape, below) {
				out = append(out, Island{Layer: i, Shape: shape})
			}
		}
		below = layer
	}
	return out
}

func supported(shape ExPolygon, below ExPolygons) bool {
	bb := shape.BoundingBox()
	for _, b := range below {
		if !bb.Overlaps(b.BoundingBox()) {
			continue
		}
		if overlaps(shape, b) {
			return true
		}
	}
	return false
}

func overlaps(a, b ExPolygon) bool {
	for _, p := range a.Contour {
		if b.Contains(p) {
			return true
		}
	}
	for _, p := range b.Contour {
		if a.Contains(p) {
			return true
		}
	}
	return ringsCross(a.Contour, b.Contour)
}

func ringsCross(a, b Polygon) bool {
	for i := range a {
		p1, p2 := a[i], a[(i+1)%len(a)]
		for j := range b {
			if segmentsCross(p1, p2, b[j], b[(j+1)%len(b)]) {
				return true
			}
		}
	}
	return false
}

func cross(o, a, b Point) float64 {
	return float64(a.X-o.X)*float64(b.Y-o.Y) - float64(a.Y-o.Y)*float64(b.X-o.X)
}

func segmentsCross(p1, p2, q1, q2 Point) bool {
	d1 := cross(q1, q2, p1)
	d2 := cross(q1, q2, p2)
	d3 := cross(p1, p2, q1)
	d4 := cross(p1, p2, q2)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}
