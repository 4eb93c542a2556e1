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
	"slices"
	"sort"

	"cogentcore.org/core/math32"

	"github.com/AleutianAI/AleutianSlice/services/slicer/geometry"
)

// SliceMesh cuts a mesh into per-layer cross sections.
//
// Description:
//
//	Layer i spans (tops[i-1], tops[i]], with bottom below the first layer,
//	and is cut at its middle. Section loops are chained through shared
//	edges, so the mesh is welded first. Each clockwise loop becomes a hole
//	of the smallest counter-clockwise contour containing it.
//
// Inputs:
//   - mesh: The mesh, in the frame the heights refer to. nil slices empty.
//   - bottom: Bottom of the first layer.
//   - tops: Layer tops in ascending order, as produced by Grid.
//
// Outputs:
//   - []ExPolygons: One cross section per layer. Layers outside the mesh
//     are empty.
func SliceMesh(mesh *geometry.TriangleMesh, bottom float64, tops []float64) []ExPolygons {
	out := make([]ExPolygons, len(tops))
	if mesh == nil || mesh.Empty() {
		return out
	}
	welded := mesh.Clone()
	welded.Repair()
	bb := welded.BoundingBox()

	for i, z := range SlicePlanes(bottom, tops) {
		if z < float64(bb.Min.Z) || z > float64(bb.Max.Z) {
			continue
		}
		out[i] = assembleLoops(welded.SectionLoops(float32(z)))
	}
	return out
}

// SliceAt cuts a mesh at a single height.
func SliceAt(mesh *geometry.TriangleMesh, z float64) ExPolygons {
	if mesh == nil || mesh.Empty() {
		return nil
	}
	welded := mesh.Clone()
	welded.Repair()
	return assembleLoops(welded.SectionLoops(float32(z)))
}

func assembleLoops(loops [][]math32.Vector3) ExPolygons {
	var contours []ExPolygon
	var holes []Polygon
	for _, l := range loops {
		p := FromLoop(l)
		if len(p) < 3 || p.SignedArea() == 0 {
			continue
		}
		if p.IsCounterClockwise() {
			contours = append(contours, ExPolygon{Contour: p})
		} else {
			holes = append(holes, p)
		}
	}

	// Smallest contours first so each hole lands in the innermost one.
	sort.Slice(contours, func(i, j int) bool {
		return contours[i].Contour.Area() < contours[j].Contour.Area()
	})
	for _, h := range holes {
		ha := h.Area()
		for i := range contours {
			c := &contours[i]
			if c.Contour.Area() > ha && c.Contour.Contains(h[0]) {
				c.Holes = append(c.Holes, h)
				break
			}
		}
	}

	// Largest first.
	slices.Reverse(contours)
	return ExPolygons(contours)
}

// Stack is a sliced solid: layer tops and the cross section of each layer.
type Stack struct {
	Tops   []float64
	Slices []ExPolygons
}

// SliceStack grids [bottom, top] and slices mesh on that grid.
func SliceStack(mesh *geometry.TriangleMesh, bottom, top, firstLayerHeight, layerHeight float64, profile []ProfilePoint) (Stack, error) {
	tops, err := Grid(bottom, top, firstLayerHeight, layerHeight, profile)
	if err != nil {
		return Stack{}, err
	}
	return Stack{Tops: tops, Slices: SliceMesh(mesh, bottom, tops)}, nil
}

// Len returns the number of layers.
func (s Stack) Len() int {
	return len(s.Tops)
}

// Levels returns the quantized layer tops.
func (s Stack) Levels() []LevelID {
	return Levels(s.Tops)
}

// Empty reports whether no layer has any area.
func (s Stack) Empty() bool {
	for _, l := range s.Slices {
		if len(l) > 0 {
			return false
		}
	}
	return true
}
