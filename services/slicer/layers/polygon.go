// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package layers holds the 2D side of slicing: scaled integer polygons,
// layer height grids, mesh cross sections and the per-height slice index.
package layers

import (
	"math"
	"slices"

	"cogentcore.org/core/math32"
)

// ScalingFactor is the length of one Coord unit in millimetres.
const ScalingFactor = 1e-6

// Coord is a scaled integer length.
type Coord int64

// Scale converts millimetres to Coord, rounding to the nearest unit.
func Scale(v float64) Coord {
	return Coord(math.Round(v / ScalingFactor))
}

// Unscale converts Coord to millimetres.
func Unscale(c Coord) float64 {
	return float64(c) * ScalingFactor
}

// Point is a scaled 2D point.
type Point struct {
	X, Y Coord
}

// Pt builds a Point from millimetre coordinates.
func Pt(x, y float64) Point {
	return Point{X: Scale(x), Y: Scale(y)}
}

// Rotate turns p about the origin by angle radians.
func (p Point) Rotate(angle float64) Point {
	s, c := math.Sincos(angle)
	x, y := float64(p.X), float64(p.Y)
	return Point{X: Coord(math.Round(c*x - s*y)), Y: Coord(math.Round(s*x + c*y))}
}

// Polygon is a closed ring of points. Contours run counter-clockwise, holes
// clockwise.
type Polygon []Point

// FromLoop converts a 3D section loop to a polygon, dropping Z.
func FromLoop(loop []math32.Vector3) Polygon {
	out := make(Polygon, 0, len(loop))
	for _, v := range loop {
		p := Pt(float64(v.X), float64(v.Y))
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

// SignedArea returns the area in scaled units squared, positive when the
// ring runs counter-clockwise.
func (p Polygon) SignedArea() float64 {
	var a float64
	n := len(p)
	for i := 0; i < n; i++ {
		q, r := p[i], p[(i+1)%n]
		a += float64(q.X)*float64(r.Y) - float64(r.X)*float64(q.Y)
	}
	return a / 2
}

// Area returns the unsigned area in scaled units squared.
func (p Polygon) Area() float64 {
	return math.Abs(p.SignedArea())
}

// IsCounterClockwise reports the ring orientation.
func (p Polygon) IsCounterClockwise() bool {
	return p.SignedArea() > 0
}

// Reversed returns the ring with opposite orientation.
func (p Polygon) Reversed() Polygon {
	out := slices.Clone(p)
	slices.Reverse(out)
	return out
}

// Contains reports whether pt lies inside the ring (even-odd rule). Points
// on the boundary may go either way.
func (p Polygon) Contains(pt Point) bool {
	inside := false
	n := len(p)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := p[i], p[j]
		if (a.Y > pt.Y) == (b.Y > pt.Y) {
			continue
		}
		x := float64(a.X) + float64(pt.Y-a.Y)*float64(b.X-a.X)/float64(b.Y-a.Y)
		if float64(pt.X) < x {
			inside = !inside
		}
	}
	return inside
}

// BoundingBox returns the ring's extent.
func (p Polygon) BoundingBox() BBox {
	var bb BBox
	for _, pt := range p {
		bb.Merge(pt)
	}
	return bb
}

// Translate returns a copy shifted by (dx, dy).
func (p Polygon) Translate(dx, dy Coord) Polygon {
	out := make(Polygon, len(p))
	for i, pt := range p {
		out[i] = Point{X: pt.X + dx, Y: pt.Y + dy}
	}
	return out
}

// Rotate returns a copy turned about the origin.
func (p Polygon) Rotate(angle float64) Polygon {
	out := make(Polygon, len(p))
	for i, pt := range p {
		out[i] = pt.Rotate(angle)
	}
	return out
}

// Centroid returns the area centroid, or the vertex mean for degenerate
// rings.
func (p Polygon) Centroid() Point {
	a := p.SignedArea()
	n := len(p)
	if n == 0 {
		return Point{}
	}
	if a == 0 {
		var sx, sy float64
		for _, pt := range p {
			sx += float64(pt.X)
			sy += float64(pt.Y)
		}
		return Point{X: Coord(sx / float64(n)), Y: Coord(sy / float64(n))}
	}
	var cx, cy float64
	for i := 0; i < n; i++ {
		q, r := p[i], p[(i+1)%n]
		cross := float64(q.X)*float64(r.Y) - float64(r.X)*float64(q.Y)
		cx += (float64(q.X) + float64(r.X)) * cross
		cy += (float64(q.Y) + float64(r.Y)) * cross
	}
	return Point{X: Coord(math.Round(cx / (6 * a))), Y: Coord(math.Round(cy / (6 * a)))}
}

// ExPolygon is a contour with holes.
type ExPolygon struct {
	Contour Polygon
	Holes   []Polygon
}

// Area returns the contour area minus the hole areas.
func (e ExPolygon) Area() float64 {
	a := e.Contour.Area()
	for _, h := range e.Holes {
		a -= h.Area()
	}
	return a
}

// Contains reports whether pt lies in the contour and outside every hole.
func (e ExPolygon) Contains(pt Point) bool {
	if !e.Contour.Contains(pt) {
		return false
	}
	for _, h := range e.Holes {
		if h.Contains(pt) {
			return false
		}
	}
	return true
}

// BoundingBox returns the contour's extent.
func (e ExPolygon) BoundingBox() BBox {
	return e.Contour.BoundingBox()
}

// Translate returns a shifted copy.
func (e ExPolygon) Translate(dx, dy Coord) ExPolygon {
	out := ExPolygon{Contour: e.Contour.Translate(dx, dy)}
	for _, h := range e.Holes {
		out.Holes = append(out.Holes, h.Translate(dx, dy))
	}
	return out
}

// Rotate returns a copy turned about the origin.
func (e ExPolygon) Rotate(angle float64) ExPolygon {
	out := ExPolygon{Contour: e.Contour.Rotate(angle)}
	for _, h := range e.Holes {
		out.Holes = append(out.Holes, h.Rotate(angle))
	}
	return out
}

// ExPolygons is the cross section of one layer.
type ExPolygons []ExPolygon

// Area sums the member areas.
func (es ExPolygons) Area() float64 {
	var a float64
	for _, e := range es {
		a += e.Area()
	}
	return a
}

// AreaMM returns Area in mm².
func (es ExPolygons) AreaMM() float64 {
	return es.Area() * ScalingFactor * ScalingFactor
}

// Contains reports whether any member contains pt.
func (es ExPolygons) Contains(pt Point) bool {
	for _, e := range es {
		if e.Contains(pt) {
			return true
		}
	}
	return false
}

// BoundingBox returns the union extent.
func (es ExPolygons) BoundingBox() BBox {
	var bb BBox
	for _, e := range es {
		bb.MergeBox(e.BoundingBox())
	}
	return bb
}

// Translate returns a shifted copy.
func (es ExPolygons) Translate(dx, dy Coord) ExPolygons {
	out := make(ExPolygons, len(es))
	for i, e := range es {
		out[i] = e.Translate(dx, dy)
	}
	return out
}

// Rotate returns a copy turned about the origin.
func (es ExPolygons) Rotate(angle float64) ExPolygons {
	out := make(ExPolygons, len(es))
	for i, e := range es {
		out[i] = e.Rotate(angle)
	}
	return out
}

// BBox is an axis-aligned 2D box. The zero value is empty.
type BBox struct {
	Min, Max Point
	Defined  bool
}

// Merge grows the box to include p.
func (b *BBox) Merge(p Point) {
	if !b.Defined {
		b.Min, b.Max, b.Defined = p, p, true
		return
	}
	b.Min.X = min(b.Min.X, p.X)
	b.Min.Y = min(b.Min.Y, p.Y)
	b.Max.X = max(b.Max.X, p.X)
	b.Max.Y = max(b.Max.Y, p.Y)
}

// MergeBox grows the box to include o.
func (b *BBox) MergeBox(o BBox) {
	if !o.Defined {
		return
	}
	b.Merge(o.Min)
	b.Merge(o.Max)
}

// Overlaps reports whether the boxes share any point.
func (b BBox) Overlaps(o BBox) bool {
	return b.Defined && o.Defined &&
		b.Min.X <= o.Max.X && o.Min.X <= b.Max.X &&
		b.Min.Y <= o.Max.Y && o.Min.Y <= b.Max.Y
}

// Size returns the extent along each axis.
func (b BBox) Size() Point {
	if !b.Defined {
		return Point{}
	}
	return Point{X: b.Max.X - b.Min.X, Y: b.Max.Y - b.Min.Y}
}

// Center returns the box midpoint.
func (b BBox) Center() Point {
	return Point{X: (b.Min.X + b.Max.X) / 2, Y: (b.Min.Y + b.Max.Y) / 2}
}
