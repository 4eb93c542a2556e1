// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sla

import (
	"context"

	"github.com/AleutianAI/AleutianSlice/services/slicer/config"
	"github.com/AleutianAI/AleutianSlice/services/slicer/identity"
	"github.com/AleutianAI/AleutianSlice/services/slicer/layers"
)

// Placement is one printed copy of an object on the bed: the object's
// slices are rotated about the Z axis and then shifted.
type Placement struct {
	// InstanceID names the model instance this copy comes from.
	InstanceID identity.ID

	// Shift is the XY offset in scaled units.
	Shift layers.Point

	// Rotation is the rotation about Z in radians.
	Rotation float64
}

// Apply returns the slices placed as this copy.
func (pl Placement) Apply(slices layers.ExPolygons) layers.ExPolygons {
	return slices.Rotate(pl.Rotation).Translate(pl.Shift.X, pl.Shift.Y)
}

// LayerRef is the contribution of one object to one printer layer.
type LayerRef struct {
	// ObjectID is the model object the slices belong to.
	ObjectID identity.ID

	// ModelSlices is the object cross-section, empty when the object has
	// no model layer at this level.
	ModelSlices layers.ExPolygons

	// SupportSlices is the support and pad cross-section.
	SupportSlices layers.ExPolygons

	// Copies lists where the slices are printed.
	Copies []Placement
}

// PrinterLayer is everything exposed at one height.
type PrinterLayer struct {
	// Level is the quantized top of the layer.
	Level layers.LevelID

	// Height is Level in millimetres.
	Height float64

	// Refs holds one entry per object present at this level, in print
	// object order.
	Refs []LayerRef
}

// Area returns the exposed area of the layer over every copy, in mm².
func (l PrinterLayer) Area() float64 {
	total := 0.0
	for _, r := range l.Refs {
		per := r.ModelSlices.AreaMM() + r.SupportSlices.AreaMM()
		total += per * float64(len(r.Copies))
	}
	return total
}

// Rasterizer turns the assembled layers into printer output. It is the
// exporter's side of the Rasterize step; the print only assembles.
type Rasterizer interface {
	Rasterize(ctx context.Context, cfg config.PrintConfig, layers []PrinterLayer) error
}

// RasterizerFunc adapts a function to Rasterizer.
type RasterizerFunc func(ctx context.Context, cfg config.PrintConfig, layers []PrinterLayer) error

// Rasterize calls f.
func (f RasterizerFunc) Rasterize(ctx context.Context, cfg config.PrintConfig, layers []PrinterLayer) error {
	return f(ctx, cfg, layers)
}
