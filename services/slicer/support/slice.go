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
	"github.com/AleutianAI/AleutianSlice/services/slicer/layers"
)

// Slice cuts the support mesh on the tree's layer grid.
//
// Description:
//
//	The grid spans Extent, which is recorded from the input mesh, so an
//	empty tree still yields one empty layer per grid height. A
//	firstLayerHeight <= 0 means the same as layerHeight.
func (t *Tree) Slice(layerHeight, firstLayerHeight float64) (layers.Stack, error) {
	zmin, zmax := t.Extent()
	return layers.SliceStack(t.mesh, zmin, zmax, firstLayerHeight, layerHeight, nil)
}

// SlicePad cuts the pad on the same grid as Slice.
func (t *Tree) SlicePad(layerHeight, firstLayerHeight float64) (layers.Stack, error) {
	zmin, zmax := t.Extent()
	return layers.SliceStack(t.Pad(), zmin, zmax, firstLayerHeight, layerHeight, nil)
}
