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
	"math"
	"slices"

	"cogentcore.org/core/math32"

	"github.com/AleutianAI/AleutianSlice/services/slicer/geometry"
	"github.com/AleutianAI/AleutianSlice/services/slicer/identity"
)

// Cut splits the object by a horizontal plane at world height z, measured
// in the frame of instance instanceIdx.
//
// Description:
//
//	The instance's rotation about X and Y, its scale and its mirror are
//	baked into every model-part mesh together with the volume transform.
//	Translation and rotation about Z are placement, not shape, and stay on
//	the new instances. Each baked mesh is cut into capped upper and lower
//	halves, empty halves are dropped. Modifier, enforcer and blocker
//	volumes are not cut: they take the baked transform and go to both
//	sides. z is clamped to the instance's height range.
//
//	Upper instances are shifted by half the lower part's XY size so the two
//	parts do not overlap on the bed. With rotateLower the lower part is
//	flipped over so its cut face rests on the bed. Both results are
//	re-centred around their origin.
//
// Inputs:
//
//	instanceIdx - Instance whose frame defines the plane.
//	z - Cut height in bed coordinates.
//	keepUpper, keepLower - Which halves to return.
//	rotateLower - Flip the lower half by 180 degrees about X.
//
// Outputs:
//
//	[]*Object - Zero, one or two detached objects with fresh IDs. Upper comes
//	first. The receiver is not modified.
//	error - Wraps ErrIndexOutOfRange for a bad instance index.
func (o *Object) Cut(instanceIdx int, z float32, keepUpper, keepLower, rotateLower bool) ([]*Object, error) {
	if err := checkIndex("instance", instanceIdx, len(o.instances)); err != nil {
		return nil, err
	}
	if !keepUpper && !keepLower {
		return nil, nil
	}

	inst := o.instances[instanceIdx]
	world := o.instanceBox(instanceIdx, false)
	if world.IsEmpty() {
		return nil, nil
	}
	z = math32.Clamp(z, world.Min.Z, world.Max.Z)
	localZ := z - inst.Offset().Z

	bakeTr := inst.Transformation()
	bakeTr.SetOffset(math32.Vector3{})
	bakeTr.SetRotationAxis(geometry.AxisZ, 0)
	bake := bakeTr.FullMatrix()

	upper := o.cutResultShell()
	lower := o.cutResultShell()

	for _, v := range o.volumes {
		m := geometry.MulMatrix(bake, v.Matrix())
		if !v.IsModelPart() {
			tr := geometry.TransformationFromMatrix(m)
			if keepUpper {
				nv := v.clone(upper.ID(), false)
				nv.trafo = tr
				upper.volumes = append(upper.volumes, nv)
			}
			if keepLower {
				nv := v.clone(lower.ID(), false)
				nv.trafo = tr
				lower.volumes = append(lower.volumes, nv)
			}
			continue
		}
		if v.mesh.Empty() {
			continue
		}

		baked := v.mesh.Clone()
		baked.Transform(m)
		up, low := baked.Cut(localZ)
		if keepUpper && !up.Empty() {
			nv := v.derive(upper.ID(), up)
			nv.trafo = geometry.NewTransformation()
			upper.volumes = append(upper.volumes, nv)
		}
		if keepLower && !low.Empty() {
			nv := v.derive(lower.ID(), low)
			nv.trafo = geometry.NewTransformation()
			lower.volumes = append(lower.volumes, nv)
		}
	}

	var displace math32.Vector3
	if keepLower && lower.hasModelPart() {
		size := lower.rawMeshBoundingBox(true).Size()
		displace = math32.Vec3(-0.5*size.X, -0.5*size.Y, 0)
	}

	var out []*Object
	if keepUpper && upper.hasModelPart() {
		upper.placeCutInstances(o.instances, false)
		upper.CenterAroundOrigin()
		for _, ni := range upper.instances {
			rz := ni.Matrix(true, false, true, true)
			ni.trafo.SetOffset(ni.Offset().Add(geometry.TransformVector(&rz, displace)))
		}
		upper.InvalidateBoundingBox()
		out = append(out, upper)
	}
	if keepLower && lower.hasModelPart() {
		lower.placeCutInstances(o.instances, rotateLower)
		lower.CenterAroundOrigin()
		out = append(out, lower)
	}
	return out, nil
}

// cutResultShell starts a cut result: same name and options, but no source
// file, no support points and no layer profile, since none of them describe
// the new geometry.
func (o *Object) cutResultShell() *Object {
	out := o.cloneShell(identity.None, false)
	out.InputFile = ""
	out.SupportPoints = nil
	out.LayerHeightProfile = nil
	out.OriginTranslation = math32.Vector3{}
	return out
}

// placeCutInstances gives the object one instance per source instance,
// keeping only offset and rotation about Z.
func (o *Object) placeCutInstances(src []*Instance, flip bool) {
	o.instances = make([]*Instance, 0, len(src))
	for _, si := range src {
		tr := geometry.NewTransformation()
		tr.SetOffset(si.Offset())
		tr.SetRotationAxis(geometry.AxisZ, si.Rotation().Z)
		if flip {
			tr.SetRotationAxis(geometry.AxisX, math.Pi)
		}
		o.instances = append(o.instances, newInstance(o.ID(), tr))
	}
	o.InvalidateBoundingBox()
}

func (o *Object) hasModelPart() bool {
	for _, v := range o.volumes {
		if v.IsModelPart() {
			return true
		}
	}
	return false
}

// Split breaks a single-volume object into one object per connected shell.
//
// Description:
//
//	Every shell is repaired and becomes a detached object with the name,
//	options and instances of the receiver. Its volume is re-centred and the
//	volume offset, rotated by each instance, is moved into the instance
//	offsets, so every shell stays where it was on the bed.
//
// Outputs:
//
//	[]*Object - One object per non-empty shell, fresh IDs.
//	error - Wraps ErrInvalidOperation when the object does not have exactly
//	one volume.
func (o *Object) Split() ([]*Object, error) {
	if len(o.volumes) != 1 {
		return nil, fmt.Errorf("%w: split needs exactly one volume, object %s has %d",
			ErrInvalidOperation, o.ID(), len(o.volumes))
	}
	src := o.volumes[0]

	var out []*Object
	for _, shell := range src.mesh.Split() {
		shell.Repair()
		if shell.Empty() {
			continue
		}
		no := o.cloneShell(identity.None, false)
		no.SupportPoints = nil
		for _, inst := range o.instances {
			no.instances = append(no.instances, inst.clone(no.ID(), false))
		}
		nv := src.derive(no.ID(), shell)
		nv.centerGeometry()
		no.volumes = []*Volume{nv}
		no.foldVolumeOffset(nv)
		out = append(out, no)
	}
	return out, nil
}

// SplitVolume breaks the volume at idx into one volume per connected shell,
// inserted in its place.
//
// Description:
//
//	Shells are named "<name>_1", "<name>_2", ... and each gets an "extruder"
//	option from counter, so parts print in different materials. A volume
//	with a single shell is left untouched.
//
// Outputs:
//
//	int - Number of volumes the original became (1 when nothing changed).
//	error - Wraps ErrIndexOutOfRange for a bad index.
func (o *Object) SplitVolume(idx int, counter *ExtruderCounter) (int, error) {
	if err := checkIndex("volume", idx, len(o.volumes)); err != nil {
		return 0, err
	}
	v := o.volumes[idx]

	var parts []*geometry.TriangleMesh
	for _, shell := range v.mesh.Split() {
		shell.Repair()
		if !shell.Empty() {
			parts = append(parts, shell)
		}
	}
	if len(parts) <= 1 {
		return 1, nil
	}

	offset := v.Offset()
	created := make([]*Volume, 0, len(parts))
	for i, part := range parts {
		nv := v.derive(o.ID(), part)
		nv.trafo.SetOffset(math32.Vector3{})
		nv.centerGeometry()
		nv.trafo.SetOffset(nv.Offset().Add(offset))
		nv.name = fmt.Sprintf("%s_%d", v.name, i+1)
		if counter != nil {
			nv.config.Set("extruder", counter.Next())
		}
		created = append(created, nv)
	}
	o.volumes = slices.Replace(o.volumes, idx, idx+1, created...)
	o.InvalidateBoundingBox()
	return len(created), nil
}
