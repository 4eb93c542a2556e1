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
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidLayerHeight indicates a non-positive layer height.
var ErrInvalidLayerHeight = errors.New("layer height must be positive")

// LevelID is the quantized height used as a slice key. Two heights belong
// to the same layer exactly when their LevelIDs are equal.
type LevelID int64

// Level quantizes a height in millimetres.
func Level(z float64) LevelID {
	return LevelID(Scale(z))
}

// Height returns the level in millimetres.
func (l LevelID) Height() float64 {
	return Unscale(Coord(l))
}

// ProfilePoint sets the layer height from Z upward, until the next point.
type ProfilePoint struct {
	Z      float64
	Height float64
}

// Grid generates layer top heights covering [zmin, zmax].
//
// Description:
//
//	The first layer is first thick (layer when first <= 0). Subsequent
//	layers use layer, or the height of the last profile point at or below
//	the current layer bottom when a profile is given. Heights are stepped
//	in scaled integers so long grids do not drift. The last top may
//	overshoot zmax by less than one layer.
//
// Inputs:
//   - zmin, zmax: Vertical extent. zmax <= zmin yields no layers.
//   - first: First layer height.
//   - layer: Default layer height. Must be positive.
//   - profile: Optional adaptive profile, in any order.
//
// Outputs:
//   - []float64: Layer tops in ascending order.
//   - error: ErrInvalidLayerHeight for a non-positive height.
func Grid(zmin, zmax, first, layer float64, profile []ProfilePoint) ([]float64, error) {
	if layer <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLayerHeight, layer)
	}
	if first <= 0 {
		first = layer
	}
	if zmax <= zmin {
		return nil, nil
	}

	prof := append([]ProfilePoint(nil), profile...)
	sort.Slice(prof, func(i, j int) bool { return prof[i].Z < prof[j].Z })
	for _, p := range prof {
		if p.Height <= 0 {
			return nil, fmt.Errorf("%w: profile height %v at z %v", ErrInvalidLayerHeight, p.Height, p.Z)
		}
	}

	heightAt := func(z Coord) Coord {
		h := Scale(layer)
		for _, p := range prof {
			if Scale(p.Z) > z {
				break
			}
			h = Scale(p.Height)
		}
		return h
	}

	top := Scale(zmin) + Scale(first)
	end := Scale(zmax)
	tops := []float64{Unscale(top)}
	for top < end {
		top += heightAt(top)
		tops = append(tops, Unscale(top))
	}
	return tops, nil
}

// Levels quantizes a list of heights.
func Levels(zs []float64) []LevelID {
	out := make([]LevelID, len(zs))
	for i, z := range zs {
		out[i] = Level(z)
	}
	return out
}

// SlicePlanes returns the mid-layer cutting heights for layer tops above
// bottom.
func SlicePlanes(bottom float64, tops []float64) []float64 {
	out := make([]float64, len(tops))
	prev := bottom
	for i, t := range tops {
		out[i] = (prev + t) / 2
		prev = t
	}
	return out
}
