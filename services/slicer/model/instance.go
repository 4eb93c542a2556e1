// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import (
	"fmt"

	"cogentcore.org/core/math32"

	"github.com/AleutianAI/AleutianSlice/services/slicer/geometry"
	"github.com/AleutianAI/AleutianSlice/services/slicer/identity"
)

// PrintVolumeState classifies an instance against the printable volume.
type PrintVolumeState int

const (
	PrintVolumeUnknown PrintVolumeState = iota
	PrintVolumeInside
	PrintVolumePartlyOutside
	PrintVolumeFullyOutside
)

// String returns a short label.
func (s PrintVolumeState) String() string {
	switch s {
	case PrintVolumeUnknown:
		return "unknown"
	case PrintVolumeInside:
		return "inside"
	case PrintVolumePartlyOutside:
		return "partly_outside"
	case PrintVolumeFullyOutside:
		return "fully_outside"
	default:
		return fmt.Sprintf("PrintVolumeState(%d)", int(s))
	}
}

// Instance places its object on the bed. All instances of an object share
// the object's volumes.
//
// Transform changes go through the owning Object so its bounding box cache
// is invalidated.
type Instance struct {
	identity.Base

	objectID         identity.ID
	trafo            geometry.Transformation
	printVolumeState PrintVolumeState
}

func newInstance(objectID identity.ID, trafo geometry.Transformation) *Instance {
	i := &Instance{objectID: objectID, trafo: trafo}
	i.Init()
	return i
}

// ObjectID returns the ID of the owning object.
func (i *Instance) ObjectID() identity.ID { return i.objectID }

// Transformation returns the placement.
func (i *Instance) Transformation() geometry.Transformation { return i.trafo }

// Offset returns the placement translation.
func (i *Instance) Offset() math32.Vector3 { return i.trafo.Offset() }

// Rotation returns the placement Euler angles.
func (i *Instance) Rotation() math32.Vector3 { return i.trafo.Rotation() }

// ScalingFactor returns the placement scale.
func (i *Instance) ScalingFactor() math32.Vector3 { return i.trafo.ScalingFactor() }

// Mirror returns the placement mirror signs.
func (i *Instance) Mirror() math32.Vector3 { return i.trafo.Mirror() }

// Matrix composes the placement, optionally dropping parts of it.
func (i *Instance) Matrix(dontTranslate, dontRotate, dontScale, dontMirror bool) math32.Matrix4 {
	return i.trafo.Matrix(dontTranslate, dontRotate, dontScale, dontMirror)
}

// FullMatrix is the complete placement matrix.
func (i *Instance) FullMatrix() math32.Matrix4 { return i.trafo.FullMatrix() }

// PrintVolumeState returns the last classification.
func (i *Instance) PrintVolumeState() PrintVolumeState { return i.printVolumeState }

// IsPrintable reports whether any part of the instance lies in the
// printable volume.
func (i *Instance) IsPrintable() bool {
	return i.printVolumeState != PrintVolumeFullyOutside
}

// TransformVector applies the placement to a direction or point.
func (i *Instance) TransformVector(v math32.Vector3, dontTranslate bool) math32.Vector3 {
	m := i.trafo.Matrix(dontTranslate, false, false, false)
	return geometry.TransformPoint(&m, v)
}

// TransformMeshBoundingBox returns the snug box of mesh under the placement.
func (i *Instance) TransformMeshBoundingBox(mesh *geometry.TriangleMesh, dontTranslate bool) math32.Box3 {
	m := i.trafo.Matrix(dontTranslate, false, false, false)
	return mesh.TransformedBoundingBox(&m)
}

// TransformBoundingBox maps box through the placement and returns the box
// of its corners.
func (i *Instance) TransformBoundingBox(box math32.Box3, dontTranslate bool) math32.Box3 {
	if box.IsEmpty() {
		return box
	}
	m := i.trafo.Matrix(dontTranslate, false, false, false)
	return box.MulMatrix4(&m)
}

func (i *Instance) clone(objectID identity.ID, keepID bool) *Instance {
	out := &Instance{objectID: objectID, trafo: i.trafo, printVolumeState: i.printVolumeState}
	if keepID {
		out.CopyID(&i.Base)
	} else {
		out.Init()
	}
	return out
}
