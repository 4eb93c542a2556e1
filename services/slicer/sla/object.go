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
	"slices"
	"sync"

	"cogentcore.org/core/math32"

	"github.com/AleutianAI/AleutianSlice/services/slicer/config"
	"github.com/AleutianAI/AleutianSlice/services/slicer/geometry"
	"github.com/AleutianAI/AleutianSlice/services/slicer/identity"
	"github.com/AleutianAI/AleutianSlice/services/slicer/layers"
	"github.com/AleutianAI/AleutianSlice/services/slicer/model"
	"github.com/AleutianAI/AleutianSlice/services/slicer/step"
	"github.com/AleutianAI/AleutianSlice/services/slicer/support"
)

// PrintObject is the pipeline state of one model object.
//
// Description:
//
//	The inputs (snapshot object, resolved options, trafo, placements) are
//	written by Apply only, while no Process round runs. The outputs are
//	written by the step computations under mu and read by the accessors
//	under its read lock. Accessors never compute: a step that is not done
//	reads as empty.
//
// Thread Safety:
//
//	Accessors are safe for concurrent use with a running Process.
type PrintObject struct {
	object     *model.Object
	bundle     config.Bundle
	cfg        config.ObjectConfig
	trafo      math32.Matrix4
	placements []Placement
	state      *step.State[ObjectStep]

	mu           sync.RWMutex
	mesh         *geometry.TriangleMesh
	zShift       float64
	modelStack   layers.Stack
	islands      []layers.Island
	points       []math32.Vector3
	tree         *support.Tree
	supportStack layers.Stack
	index        layers.SliceIndex
}

func newPrintObject(o *model.Object, bundle config.Bundle, cfg config.ObjectConfig) *PrintObject {
	po := &PrintObject{
		object:     o,
		bundle:     bundle,
		cfg:        cfg,
		trafo:      objectTrafo(o),
		placements: objectPlacements(o),
		state:      step.NewState(objectSteps),
	}
	return po
}

// ID returns the model object ID this state belongs to.
func (po *PrintObject) ID() identity.ID {
	return po.object.ID()
}

// Name returns the model object's name.
func (po *PrintObject) Name() string {
	return po.object.Name
}

// Object returns the snapshot object. Callers must not modify it.
func (po *PrintObject) Object() *model.Object {
	return po.object
}

// Config returns the resolved object options.
func (po *PrintObject) Config() config.ObjectConfig {
	return po.cfg
}

// IsStepDone reports whether s is done for this object.
func (po *PrintObject) IsStepDone(s ObjectStep) bool {
	return po.state.IsDone(s)
}

// Trafo is the first instance transform without translation and without
// rotation about Z. The slices are taken in this frame.
func (po *PrintObject) Trafo() math32.Matrix4 {
	return po.trafo
}

// Instances returns one placement per model instance.
func (po *PrintObject) Instances() []Placement {
	return slices.Clone(po.placements)
}

// Elevation is the height of the object bottom above the plate: the support
// elevation when supports are on plus the pad thickness when the pad is on.
func (po *PrintObject) Elevation() float64 {
	return elevation(po.cfg)
}

// Mesh returns the model in the support frame, or nil before ObjectSlice.
func (po *PrintObject) Mesh() *geometry.TriangleMesh {
	po.mu.RLock()
	defer po.mu.RUnlock()
	return po.mesh
}

// SupportPoints returns the points the tree was grown from, in the support
// frame.
func (po *PrintObject) SupportPoints() []math32.Vector3 {
	po.mu.RLock()
	defer po.mu.RUnlock()
	return slices.Clone(po.points)
}

// Islands returns the unsupported regions found by SupportIslands.
func (po *PrintObject) Islands() []layers.Island {
	po.mu.RLock()
	defer po.mu.RUnlock()
	return slices.Clone(po.islands)
}

// SupportTree returns the generated tree, or nil. A committed tree is
// never modified; BasePool commits a padded copy.
func (po *PrintObject) SupportTree() *support.Tree {
	po.mu.RLock()
	defer po.mu.RUnlock()
	return po.tree
}

// SupportMesh returns the support structure without the pad. Empty when no
// tree was generated.
func (po *PrintObject) SupportMesh() *geometry.TriangleMesh {
	po.mu.RLock()
	defer po.mu.RUnlock()
	if po.tree == nil {
		return &geometry.TriangleMesh{}
	}
	return po.tree.Mesh()
}

// PadMesh returns the pad, empty when there is none.
func (po *PrintObject) PadMesh() *geometry.TriangleMesh {
	po.mu.RLock()
	defer po.mu.RUnlock()
	if po.tree == nil {
		return &geometry.TriangleMesh{}
	}
	return po.tree.Pad()
}

// ModelSlices returns the model layers, bottom to top.
func (po *PrintObject) ModelSlices() layers.Stack {
	po.mu.RLock()
	defer po.mu.RUnlock()
	return po.modelStack
}

// SupportSlices returns the support and pad layers, bottom to top.
func (po *PrintObject) SupportSlices() layers.Stack {
	po.mu.RLock()
	defer po.mu.RUnlock()
	return po.supportStack
}

// SliceIndex returns the level index over ModelSlices and SupportSlices.
func (po *PrintObject) SliceIndex() layers.SliceIndex {
	po.mu.RLock()
	defer po.mu.RUnlock()
	return slices.Clone(po.index)
}

// -----------------------------------------------------------------------------
// Input extraction
// -----------------------------------------------------------------------------

func elevation(c config.ObjectConfig) float64 {
	e := 0.0
	if c.SupportsEnable {
		e += c.SupportObjectElevation
	}
	if c.PadEnable {
		e += c.PadWallThickness
	}
	return e
}

func objectTrafo(o *model.Object) math32.Matrix4 {
	insts := o.Instances()
	if len(insts) == 0 {
		return geometry.Identity()
	}
	t := insts[0].Transformation()
	t.SetOffset(math32.Vector3{})
	t.SetRotationAxis(geometry.AxisZ, 0)
	return t.FullMatrix()
}

func objectPlacements(o *model.Object) []Placement {
	insts := o.Instances()
	out := make([]Placement, 0, len(insts))
	for _, inst := range insts {
		off := inst.Offset()
		out = append(out, Placement{
			InstanceID: inst.ID(),
			Shift:      layers.Pt(float64(off.X), float64(off.Y)),
			Rotation:   float64(inst.Rotation().Z),
		})
	}
	return out
}

func modelPartsChanged(prev, next *model.Object) bool {
	return model.VolumeListChanged(prev, next, model.ModelPart)
}

func supportVolumesChanged(prev, next *model.Object) bool {
	return model.VolumeListChanged(prev, next, model.SupportEnforcer, model.SupportBlocker)
}
