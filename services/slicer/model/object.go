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
	"slices"

	"cogentcore.org/core/math32"

	"github.com/AleutianAI/AleutianSlice/services/slicer/config"
	"github.com/AleutianAI/AleutianSlice/services/slicer/geometry"
	"github.com/AleutianAI/AleutianSlice/services/slicer/identity"
)

// Object is a printable part: volumes sharing one local frame, placed on
// the bed by one or more instances.
//
// Description:
//
//	The object owns its volumes and instances. Their back-references are
//	IDs, never pointers. The world bounding box is cached behind a valid
//	flag: every method that changes volume geometry, a volume transform or
//	an instance transform clears the flag, and the next BoundingBox call
//	recomputes it.
//
// Thread Safety:
//
//	Not safe for concurrent use. The pipeline works on a clone.
type Object struct {
	identity.Base

	modelID identity.ID

	// Name is the display name.
	Name string

	// InputFile is the source path the mesh was loaded from.
	InputFile string

	// Config is the per-object option overlay.
	Config config.Bundle

	// OriginTranslation accumulates the shifts applied by
	// CenterAroundOrigin, so the original placement can be restored.
	OriginTranslation math32.Vector3

	// SupportPoints are user-placed support anchors in the object frame.
	// Empty means "generate automatically".
	SupportPoints []math32.Vector3

	// LayerHeightProfile holds (z, layer height) pairs for adaptive
	// slicing. Empty means uniform layers.
	LayerHeightProfile []float64

	volumes   []*Volume
	instances []*Instance

	bbox      math32.Box3
	bboxValid bool
}

// NewObject returns an object that belongs to no model. Model.AttachObject
// adopts it.
func NewObject(name string) *Object {
	o := newObject(identity.None)
	o.Name = name
	return o
}

func newObject(modelID identity.ID) *Object {
	o := &Object{modelID: modelID, Config: config.Bundle{}}
	o.Init()
	return o
}

// ModelID returns the ID of the owning model, or identity.None.
func (o *Object) ModelID() identity.ID { return o.modelID }

// Volumes returns the volumes in order. The slice is a copy.
func (o *Object) Volumes() []*Volume { return slices.Clone(o.volumes) }

// VolumesCount returns the number of volumes.
func (o *Object) VolumesCount() int { return len(o.volumes) }

// Volume returns the volume at idx.
func (o *Object) Volume(idx int) (*Volume, error) {
	if err := checkIndex("volume", idx, len(o.volumes)); err != nil {
		return nil, err
	}
	return o.volumes[idx], nil
}

// Instances returns the instances in order. The slice is a copy.
func (o *Object) Instances() []*Instance { return slices.Clone(o.instances) }

// InstancesCount returns the number of instances.
func (o *Object) InstancesCount() int { return len(o.instances) }

// Instance returns the instance at idx.
func (o *Object) Instance(idx int) (*Instance, error) {
	if err := checkIndex("instance", idx, len(o.instances)); err != nil {
		return nil, err
	}
	return o.instances[idx], nil
}

// InvalidateBoundingBox marks the cached bounding box stale.
func (o *Object) InvalidateBoundingBox() {
	o.bboxValid = false
}

// -----------------------------------------------------------------------------
// Volumes
// -----------------------------------------------------------------------------

// AddVolume appends a model-part volume holding mesh. The mesh is owned by
// the volume afterwards.
func (o *Object) AddVolume(mesh *geometry.TriangleMesh) *Volume {
	return o.AddVolumeOfType(mesh, ModelPart)
}

// AddVolumeOfType appends a volume of the given type.
func (o *Object) AddVolumeOfType(mesh *geometry.TriangleMesh, typ VolumeType) *Volume {
	v := newVolume(o.ID(), mesh, typ)
	o.volumes = append(o.volumes, v)
	o.InvalidateBoundingBox()
	return v
}

// AddVolumeCopy appends a copy of src with a fresh ID.
func (o *Object) AddVolumeCopy(src *Volume) *Volume {
	v := src.clone(o.ID(), false)
	o.volumes = append(o.volumes, v)
	o.InvalidateBoundingBox()
	return v
}

// DeleteVolume removes the volume at idx.
//
// Description:
//
//	When exactly one volume remains, its geometry is re-centred on the
//	local origin and its offset is folded into every instance offset, so
//	the remaining part keeps its place on the bed while its local frame is
//	reset to a zero offset. The remaining volume then gets a new ID, since
//	its local geometry changed.
func (o *Object) DeleteVolume(idx int) error {
	if err := checkIndex("volume", idx, len(o.volumes)); err != nil {
		return err
	}
	o.volumes = slices.Delete(o.volumes, idx, idx+1)

	if len(o.volumes) == 1 {
		v := o.volumes[0]
		v.centerGeometry()
		o.foldVolumeOffset(v)
		v.SetNewUniqueID()
	}
	o.InvalidateBoundingBox()
	return nil
}

// foldVolumeOffset moves v's offset into every instance and zeroes it.
func (o *Object) foldVolumeOffset(v *Volume) {
	off := v.Offset()
	for _, inst := range o.instances {
		inst.trafo.SetOffset(inst.Offset().Add(inst.TransformVector(off, true)))
	}
	v.trafo.SetOffset(math32.Vector3{})
}

// ClearVolumes removes every volume.
func (o *Object) ClearVolumes() {
	o.volumes = nil
	o.InvalidateBoundingBox()
}

// SetVolumeMesh replaces the mesh of the volume at idx. The convex hull is
// left as is until CalculateConvexHull is called on the volume.
func (o *Object) SetVolumeMesh(idx int, mesh *geometry.TriangleMesh) error {
	if err := checkIndex("volume", idx, len(o.volumes)); err != nil {
		return err
	}
	if mesh == nil {
		mesh = &geometry.TriangleMesh{}
	}
	o.volumes[idx].mesh = mesh
	o.InvalidateBoundingBox()
	return nil
}

// SetVolumeType retags the volume at idx.
func (o *Object) SetVolumeType(idx int, typ VolumeType) error {
	if err := checkIndex("volume", idx, len(o.volumes)); err != nil {
		return err
	}
	o.volumes[idx].typ = typ
	o.InvalidateBoundingBox()
	return nil
}

// SetVolumeTransformation replaces the local transform of the volume at idx.
func (o *Object) SetVolumeTransformation(idx int, t geometry.Transformation) error {
	return o.UpdateVolumeTransformation(idx, func(tr *geometry.Transformation) { *tr = t })
}

// SetVolumeOffset replaces the local translation of the volume at idx.
func (o *Object) SetVolumeOffset(idx int, off math32.Vector3) error {
	return o.UpdateVolumeTransformation(idx, func(tr *geometry.Transformation) { tr.SetOffset(off) })
}

// UpdateVolumeTransformation edits the local transform of the volume at idx
// in place.
func (o *Object) UpdateVolumeTransformation(idx int, fn func(*geometry.Transformation)) error {
	if err := checkIndex("volume", idx, len(o.volumes)); err != nil {
		return err
	}
	fn(&o.volumes[idx].trafo)
	o.InvalidateBoundingBox()
	return nil
}

// -----------------------------------------------------------------------------
// Instances
// -----------------------------------------------------------------------------

// AddInstance appends an instance with the identity placement.
func (o *Object) AddInstance() *Instance {
	return o.AddInstanceWithTransformation(geometry.NewTransformation())
}

// AddInstanceWithTransformation appends an instance with the given placement.
func (o *Object) AddInstanceWithTransformation(t geometry.Transformation) *Instance {
	inst := newInstance(o.ID(), t)
	o.instances = append(o.instances, inst)
	o.InvalidateBoundingBox()
	return inst
}

// AddInstanceCopy appends a copy of src with a fresh ID.
func (o *Object) AddInstanceCopy(src *Instance) *Instance {
	inst := src.clone(o.ID(), false)
	o.instances = append(o.instances, inst)
	o.InvalidateBoundingBox()
	return inst
}

// DeleteInstance removes the instance at idx.
func (o *Object) DeleteInstance(idx int) error {
	if err := checkIndex("instance", idx, len(o.instances)); err != nil {
		return err
	}
	o.instances = slices.Delete(o.instances, idx, idx+1)
	o.InvalidateBoundingBox()
	return nil
}

// ClearInstances removes every instance.
func (o *Object) ClearInstances() {
	o.instances = nil
	o.InvalidateBoundingBox()
}

// SetInstanceTransformation replaces the placement of the instance at idx.
func (o *Object) SetInstanceTransformation(idx int, t geometry.Transformation) error {
	return o.UpdateInstanceTransformation(idx, func(tr *geometry.Transformation) { *tr = t })
}

// SetInstanceOffset replaces the translation of the instance at idx.
func (o *Object) SetInstanceOffset(idx int, off math32.Vector3) error {
	return o.UpdateInstanceTransformation(idx, func(tr *geometry.Transformation) { tr.SetOffset(off) })
}

// UpdateInstanceTransformation edits the placement of the instance at idx in
// place.
func (o *Object) UpdateInstanceTransformation(idx int, fn func(*geometry.Transformation)) error {
	if err := checkIndex("instance", idx, len(o.instances)); err != nil {
		return err
	}
	fn(&o.instances[idx].trafo)
	o.InvalidateBoundingBox()
	return nil
}

// -----------------------------------------------------------------------------
// Transforms
// -----------------------------------------------------------------------------

// Translate moves every volume by d in the object frame.
func (o *Object) Translate(d math32.Vector3) {
	for _, v := range o.volumes {
		v.trafo.SetOffset(v.Offset().Add(d))
	}
	o.InvalidateBoundingBox()
}

// TranslateInstances moves every instance by d on the bed.
func (o *Object) TranslateInstances(d math32.Vector3) {
	for _, inst := range o.instances {
		inst.trafo.SetOffset(inst.Offset().Add(d))
	}
	o.InvalidateBoundingBox()
}

// TranslateInstance moves the instance at idx by d.
func (o *Object) TranslateInstance(idx int, d math32.Vector3) error {
	return o.UpdateInstanceTransformation(idx, func(tr *geometry.Transformation) {
		tr.SetOffset(tr.Offset().Add(d))
	})
}

// Scale multiplies every instance scale by s component-wise.
func (o *Object) Scale(s math32.Vector3) {
	for _, inst := range o.instances {
		cur := inst.ScalingFactor()
		inst.trafo.SetScalingFactor(math32.Vec3(cur.X*s.X, cur.Y*s.Y, cur.Z*s.Z))
	}
	o.InvalidateBoundingBox()
}

// Rotate rotates every volume by angle radians about axis, then re-centres
// the object.
func (o *Object) Rotate(angle float32, axis geometry.Axis) {
	turn := geometry.AxisRotation(axis, float64(angle))
	for _, v := range o.volumes {
		r := geometry.MulRotation(turn, geometry.RotationMatrix(v.trafo.Rotation()))
		v.trafo.SetRotation(geometry.EulerFromRotation(r))
	}
	o.CenterAroundOrigin()
}

// Mirror flips every volume about axis in its local frame.
func (o *Object) Mirror(axis geometry.Axis) {
	for _, v := range o.volumes {
		v.trafo.SetMirrorAxis(axis, -geometry.Dim(v.trafo.Mirror(), axis))
	}
	o.InvalidateBoundingBox()
}

// CenterAroundOrigin shifts the volumes so the model-part box is centred on
// the object origin. Instance offsets absorb the shift, so nothing moves on
// the bed. The shift is accumulated in OriginTranslation.
func (o *Object) CenterAroundOrigin() {
	box := o.rawMeshBoundingBox(false)
	if box.IsEmpty() {
		o.InvalidateBoundingBox()
		return
	}
	shift := box.Center().MulScalar(-1)
	for _, v := range o.volumes {
		v.trafo.SetOffset(v.Offset().Add(shift))
	}
	o.OriginTranslation = o.OriginTranslation.Add(shift)
	for _, inst := range o.instances {
		inst.trafo.SetOffset(inst.Offset().Sub(inst.TransformVector(shift, true)))
	}
	o.InvalidateBoundingBox()
}

// EnsureOnBed drops or lifts every instance so its lowest point sits at
// z = 0.
func (o *Object) EnsureOnBed() {
	for i, inst := range o.instances {
		minZ, err := o.InstanceMinZ(i)
		if err != nil || math32.IsInf(minZ, 0) {
			continue
		}
		off := inst.Offset()
		off.Z -= minZ
		inst.trafo.SetOffset(off)
	}
	o.InvalidateBoundingBox()
}

// -----------------------------------------------------------------------------
// Derived geometry
// -----------------------------------------------------------------------------

// BoundingBox returns the world box of every instance.
//
// Description:
//
//	The box is the union over instances of the instance transform applied
//	to the raw box, where the raw box is the union of the model-part mesh
//	boxes under their volume transforms. It is computed on first use and
//	cached until the next geometry or transform change.
//
// Outputs:
//
//	math32.Box3 - Empty when the object has no instances or no model parts.
func (o *Object) BoundingBox() math32.Box3 {
	if !o.bboxValid {
		o.bbox = o.computeBoundingBox()
		o.bboxValid = true
	}
	return o.bbox
}

func (o *Object) computeBoundingBox() math32.Box3 {
	raw := math32.B3Empty()
	for _, v := range o.volumes {
		if !v.IsModelPart() || v.mesh.Empty() {
			continue
		}
		vm := v.Matrix()
		raw.ExpandByBox(v.mesh.BoundingBox().MulMatrix4(&vm))
	}
	out := math32.B3Empty()
	if raw.IsEmpty() {
		return out
	}
	for _, inst := range o.instances {
		out.ExpandByBox(inst.TransformBoundingBox(raw, false))
	}
	return out
}

// RawMeshBoundingBox returns the snug box of the model-part meshes under
// their volume transforms, ignoring instances.
func (o *Object) RawMeshBoundingBox() math32.Box3 {
	return o.rawMeshBoundingBox(false)
}

func (o *Object) rawMeshBoundingBox(includeModifiers bool) math32.Box3 {
	box := math32.B3Empty()
	for _, v := range o.volumes {
		if !includeModifiers && !v.IsModelPart() {
			continue
		}
		vm := v.Matrix()
		box.ExpandByBox(v.mesh.TransformedBoundingBox(&vm))
	}
	return box
}

// RawBoundingBox returns the snug box of the model parts under the first
// instance's placement without its translation.
//
// Outputs:
//
//	error - Wraps ErrInvalidOperation when the object has no instances.
func (o *Object) RawBoundingBox() (math32.Box3, error) {
	if len(o.instances) == 0 {
		return math32.B3Empty(), ErrNoInstances
	}
	return o.instanceBox(0, true), nil
}

// InstanceBoundingBox returns the snug box of the model parts under the
// placement of instance idx.
func (o *Object) InstanceBoundingBox(idx int, dontTranslate bool) (math32.Box3, error) {
	if err := checkIndex("instance", idx, len(o.instances)); err != nil {
		return math32.B3Empty(), err
	}
	return o.instanceBox(idx, dontTranslate), nil
}

func (o *Object) instanceBox(idx int, dontTranslate bool) math32.Box3 {
	im := o.instances[idx].Matrix(dontTranslate, false, false, false)
	box := math32.B3Empty()
	for _, v := range o.volumes {
		if !v.IsModelPart() {
			continue
		}
		m := geometry.MulMatrix(im, v.Matrix())
		box.ExpandByBox(v.mesh.TransformedBoundingBox(&m))
	}
	return box
}

// MinZ returns the lowest world Z over all instances.
func (o *Object) MinZ() float32 {
	return o.BoundingBox().Min.Z
}

// InstanceMinZ returns the lowest world Z of instance idx.
func (o *Object) InstanceMinZ(idx int) (float32, error) {
	box, err := o.InstanceBoundingBox(idx, false)
	if err != nil {
		return 0, err
	}
	return box.Min.Z, nil
}

// RawMesh merges the model-part meshes under their volume transforms.
func (o *Object) RawMesh() *geometry.TriangleMesh {
	out := &geometry.TriangleMesh{}
	for _, v := range o.volumes {
		if !v.IsModelPart() {
			continue
		}
		m := v.mesh.Clone()
		m.Transform(v.Matrix())
		out.Merge(m)
	}
	return out
}

// Mesh merges the raw mesh placed by every instance.
func (o *Object) Mesh() *geometry.TriangleMesh {
	raw := o.RawMesh()
	out := &geometry.TriangleMesh{}
	for _, inst := range o.instances {
		m := raw.Clone()
		m.Transform(inst.FullMatrix())
		out.Merge(m)
	}
	return out
}

// FacetsCount returns the number of model-part triangles.
func (o *Object) FacetsCount() int {
	n := 0
	for _, v := range o.volumes {
		if v.IsModelPart() {
			n += v.mesh.FacetsCount()
		}
	}
	return n
}

// MaterialsCount returns the number of distinct materials used by model
// parts.
func (o *Object) MaterialsCount() int {
	seen := make(map[string]struct{})
	for _, v := range o.volumes {
		if v.IsModelPart() {
			seen[v.materialID] = struct{}{}
		}
	}
	return len(seen)
}

// CheckInstancesPrintVolumeState classifies every instance against the
// printable volume and returns how many are fully inside.
//
// Description:
//
//	Each model-part volume's convex hull (its mesh when the hull is empty)
//	is boxed under instance and volume transform. An instance whose boxes
//	all fit is Inside; one with a box crossing the boundary, or with boxes
//	both in and out, is PartlyOutside; otherwise it is FullyOutside.
func (o *Object) CheckInstancesPrintVolumeState(printVolume math32.Box3) int {
	const (
		inside  = 1
		outside = 2
	)
	printable := 0
	for _, inst := range o.instances {
		im := inst.FullMatrix()
		flags := 0
		for _, v := range o.volumes {
			if !v.IsModelPart() {
				continue
			}
			src := v.convexHull
			if src.Empty() {
				src = v.mesh
			}
			m := geometry.MulMatrix(im, v.Matrix())
			bb := src.TransformedBoundingBox(&m)
			switch {
			case boxContains(printVolume, bb):
				flags |= inside
			case printVolume.IntersectsBox(bb):
				flags |= inside | outside
			default:
				flags |= outside
			}
		}
		switch flags {
		case inside:
			inst.printVolumeState = PrintVolumeInside
			printable++
		case inside | outside:
			inst.printVolumeState = PrintVolumePartlyOutside
		default:
			inst.printVolumeState = PrintVolumeFullyOutside
		}
	}
	return printable
}

func boxContains(outer, inner math32.Box3) bool {
	return !inner.IsEmpty() && outer.ContainsPoint(inner.Min) && outer.ContainsPoint(inner.Max)
}

// -----------------------------------------------------------------------------
// Copies
// -----------------------------------------------------------------------------

// Clone returns a detached deep copy with fresh IDs throughout.
func (o *Object) Clone() *Object {
	return o.clone(identity.None, false)
}

// CloneWithIdentity returns a detached deep copy carrying the same IDs.
// It is meant for snapshots handed to another goroutine, never for objects
// that live next to the original in one model.
func (o *Object) CloneWithIdentity() *Object {
	return o.clone(o.modelID, true)
}

func (o *Object) clone(modelID identity.ID, keepID bool) *Object {
	out := o.cloneShell(modelID, keepID)
	out.volumes = make([]*Volume, len(o.volumes))
	for i, v := range o.volumes {
		out.volumes[i] = v.clone(out.ID(), keepID)
	}
	out.instances = make([]*Instance, len(o.instances))
	for i, inst := range o.instances {
		out.instances[i] = inst.clone(out.ID(), keepID)
	}
	out.bbox, out.bboxValid = o.bbox, o.bboxValid
	return out
}

// cloneShell copies the scalar fields and no children.
func (o *Object) cloneShell(modelID identity.ID, keepID bool) *Object {
	out := &Object{
		modelID:            modelID,
		Name:               o.Name,
		InputFile:          o.InputFile,
		Config:             o.Config.Clone(),
		OriginTranslation:  o.OriginTranslation,
		SupportPoints:      slices.Clone(o.SupportPoints),
		LayerHeightProfile: slices.Clone(o.LayerHeightProfile),
	}
	if out.Config == nil {
		out.Config = config.Bundle{}
	}
	if keepID {
		out.CopyID(&o.Base)
	} else {
		out.Init()
	}
	return out
}
