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

	"github.com/AleutianAI/AleutianSlice/services/slicer/config"
	"github.com/AleutianAI/AleutianSlice/services/slicer/geometry"
	"github.com/AleutianAI/AleutianSlice/services/slicer/identity"
)

// VolumeType tags what a volume contributes to its object.
type VolumeType int

const (
	// ModelPart is printable geometry.
	ModelPart VolumeType = iota

	// ParameterModifier overrides options inside its shape.
	ParameterModifier

	// SupportEnforcer forces supports inside its shape.
	SupportEnforcer

	// SupportBlocker suppresses supports inside its shape.
	SupportBlocker
)

// String returns the persisted name of the type.
func (t VolumeType) String() string {
	switch t {
	case ModelPart:
		return "ModelPart"
	case ParameterModifier:
		return "ParameterModifier"
	case SupportEnforcer:
		return "SupportEnforcer"
	case SupportBlocker:
		return "SupportBlocker"
	default:
		return fmt.Sprintf("VolumeType(%d)", int(t))
	}
}

// VolumeTypeFromString parses a type name. The legacy values "0" and "1"
// map to ModelPart and ParameterModifier.
func VolumeTypeFromString(s string) (VolumeType, error) {
	switch s {
	case "ModelPart", "0":
		return ModelPart, nil
	case "ParameterModifier", "1":
		return ParameterModifier, nil
	case "SupportEnforcer":
		return SupportEnforcer, nil
	case "SupportBlocker":
		return SupportBlocker, nil
	default:
		return ModelPart, fmt.Errorf("%w: unknown volume type %q", ErrInvalidOperation, s)
	}
}

// Volume is one mesh of an object with its own local transform.
//
// Description:
//
//	Geometry and transform changes go through the owning Object
//	(SetVolumeMesh, SetVolumeTransformation, ...) so the object's bounding
//	box cache is invalidated. The convex hull is derived data and is only
//	refreshed by CalculateConvexHull.
//
// Thread Safety:
//
//	Not safe for concurrent mutation.
type Volume struct {
	identity.Base

	objectID   identity.ID
	name       string
	mesh       *geometry.TriangleMesh
	convexHull *geometry.TriangleMesh
	typ        VolumeType
	trafo      geometry.Transformation
	config     config.Bundle
	materialID string
}

func newVolume(objectID identity.ID, mesh *geometry.TriangleMesh, typ VolumeType) *Volume {
	if mesh == nil {
		mesh = &geometry.TriangleMesh{}
	}
	v := &Volume{
		objectID: objectID,
		mesh:     mesh,
		typ:      typ,
		trafo:    geometry.NewTransformation(),
		config:   config.Bundle{},
	}
	v.Init()
	v.CalculateConvexHull()
	return v
}

// ObjectID returns the ID of the owning object.
func (v *Volume) ObjectID() identity.ID { return v.objectID }

// Name returns the display name.
func (v *Volume) Name() string { return v.name }

// SetName replaces the display name.
func (v *Volume) SetName(name string) { v.name = name }

// Mesh returns the untransformed mesh. Callers must not modify it.
func (v *Volume) Mesh() *geometry.TriangleMesh { return v.mesh }

// ConvexHull returns the hull computed by the last CalculateConvexHull.
func (v *Volume) ConvexHull() *geometry.TriangleMesh { return v.convexHull }

// CalculateConvexHull recomputes the hull from the current mesh.
func (v *Volume) CalculateConvexHull() {
	v.convexHull = v.mesh.ConvexHull()
}

// Type returns the volume type.
func (v *Volume) Type() VolumeType { return v.typ }

// IsModelPart reports whether the volume is printable geometry.
func (v *Volume) IsModelPart() bool { return v.typ == ModelPart }

// Transformation returns the local transform.
func (v *Volume) Transformation() geometry.Transformation { return v.trafo }

// Offset returns the local translation.
func (v *Volume) Offset() math32.Vector3 { return v.trafo.Offset() }

// Matrix returns the local transform matrix.
func (v *Volume) Matrix() math32.Matrix4 { return v.trafo.FullMatrix() }

// Config returns the option overlay. The map is shared; use SetConfig to
// replace it.
func (v *Volume) Config() config.Bundle { return v.config }

// SetConfig replaces the option overlay.
func (v *Volume) SetConfig(b config.Bundle) {
	v.config = b.Clone()
	if v.config == nil {
		v.config = config.Bundle{}
	}
}

// MaterialID returns the key of the assigned material, or "".
func (v *Volume) MaterialID() string { return v.materialID }

// SetMaterialID assigns a material by key.
func (v *Volume) SetMaterialID(id string) { v.materialID = id }

// centerGeometry moves the mesh so its bounding box is centred on the local
// origin and shifts the offset by the same amount, rotated into the parent
// frame, so the volume keeps its place.
func (v *Volume) centerGeometry() {
	box := v.mesh.BoundingBox()
	if box.IsEmpty() {
		return
	}
	shift := box.Center()
	if shift.LengthSquared() == 0 {
		return
	}
	v.mesh.Translate(shift.MulScalar(-1))
	v.convexHull.Translate(shift.MulScalar(-1))
	lin := v.trafo.Matrix(true, false, false, false)
	v.trafo.SetOffset(v.trafo.Offset().Add(geometry.TransformVector(&lin, shift)))
}

// derive returns a new volume of the same kind holding mesh, with a fresh
// ID and the attributes of v.
func (v *Volume) derive(objectID identity.ID, mesh *geometry.TriangleMesh) *Volume {
	out := newVolume(objectID, mesh, v.typ)
	out.name = v.name
	out.trafo = v.trafo
	out.SetConfig(v.config)
	out.materialID = v.materialID
	return out
}

// clone copies the volume into another object. The copy gets a fresh ID
// unless keepID is set.
func (v *Volume) clone(objectID identity.ID, keepID bool) *Volume {
	out := &Volume{
		objectID:   objectID,
		name:       v.name,
		mesh:       v.mesh.Clone(),
		convexHull: v.convexHull.Clone(),
		typ:        v.typ,
		trafo:      v.trafo,
		config:     v.config.Clone(),
		materialID: v.materialID,
	}
	if out.config == nil {
		out.config = config.Bundle{}
	}
	if keepID {
		out.CopyID(&v.Base)
	} else {
		out.Init()
	}
	return out
}
