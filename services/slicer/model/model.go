// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package model is the geometry ownership tree of the slicer: a Model owns
// Objects, an Object owns Volumes (meshes in the object frame) and
// Instances (placements on the bed), and the Model keeps a keyed set of
// Materials.
//
// Ownership only runs top-down. Children refer to their parent by ID and
// are looked up through the owning container, so a whole tree can be
// dropped or cloned without cycles. Every mutating call on an Object marks
// its cached bounding box stale; the next read recomputes it.
//
// Nothing in this package is safe for concurrent mutation. The processing
// pipeline works on a CloneWithIdentity snapshot, so the editing goroutine
// and the pipeline never share entities.
package model

import (
	"fmt"
	"maps"
	"math"
	"slices"

	"cogentcore.org/core/math32"

	"github.com/AleutianAI/AleutianSlice/services/slicer/config"
	"github.com/AleutianAI/AleutianSlice/services/slicer/geometry"
	"github.com/AleutianAI/AleutianSlice/services/slicer/identity"
)

// Model is the root of the tree.
type Model struct {
	identity.Base

	objects   []*Object
	materials map[string]*Material
}

// New returns an empty model.
func New() *Model {
	m := &Model{materials: make(map[string]*Material)}
	m.Init()
	return m
}

// Objects returns the objects in order. The slice is a copy.
func (m *Model) Objects() []*Object { return slices.Clone(m.objects) }

// ObjectsCount returns the number of objects.
func (m *Model) ObjectsCount() int { return len(m.objects) }

// Object returns the object at idx.
func (m *Model) Object(idx int) (*Object, error) {
	if err := checkIndex("object", idx, len(m.objects)); err != nil {
		return nil, err
	}
	return m.objects[idx], nil
}

// ObjectByID finds an object by ID.
func (m *Model) ObjectByID(id identity.ID) (*Object, bool) {
	if i := m.ObjectIndex(id); i >= 0 {
		return m.objects[i], true
	}
	return nil, false
}

// ObjectIndex returns the position of the object with the given ID, or -1.
func (m *Model) ObjectIndex(id identity.ID) int {
	return slices.IndexFunc(m.objects, func(o *Object) bool { return o.ID() == id })
}

// AddObject appends an empty object.
func (m *Model) AddObject() *Object {
	o := newObject(m.ID())
	m.objects = append(m.objects, o)
	return o
}

// AddObjectFromMesh appends an object with one model-part volume holding
// mesh and no instances.
func (m *Model) AddObjectFromMesh(name, inputFile string, mesh *geometry.TriangleMesh) *Object {
	o := m.AddObject()
	o.Name = name
	o.InputFile = inputFile
	v := o.AddVolume(mesh)
	v.SetName(name)
	return o
}

// AddObjectCopy appends a copy of src with fresh IDs.
func (m *Model) AddObjectCopy(src *Object) *Object {
	o := src.clone(m.ID(), false)
	m.objects = append(m.objects, o)
	return o
}

// AttachObject adopts a detached object, such as a Cut or Split result.
//
// Outputs:
//
//	error - Wraps ErrInvalidOperation when o already belongs to a model.
func (m *Model) AttachObject(o *Object) error {
	if o.modelID != identity.None {
		return fmt.Errorf("%w: object %s already belongs to model %s", ErrInvalidOperation, o.ID(), o.modelID)
	}
	o.modelID = m.ID()
	m.objects = append(m.objects, o)
	return nil
}

// DeleteObject removes the object at idx.
func (m *Model) DeleteObject(idx int) error {
	if err := checkIndex("object", idx, len(m.objects)); err != nil {
		return err
	}
	m.objects = slices.Delete(m.objects, idx, idx+1)
	return nil
}

// DeleteObjectByID removes the object with the given ID.
func (m *Model) DeleteObjectByID(id identity.ID) error {
	i := m.ObjectIndex(id)
	if i < 0 {
		return &IDError{Op: "delete object", IDs: []identity.ID{id}, Err: ErrObjectNotFound}
	}
	return m.DeleteObject(i)
}

// RemoveObject removes o if the model owns it and reports whether it did.
func (m *Model) RemoveObject(o *Object) bool {
	i := slices.Index(m.objects, o)
	if i < 0 {
		return false
	}
	m.objects = slices.Delete(m.objects, i, i+1)
	return true
}

// ClearObjects removes every object.
func (m *Model) ClearObjects() {
	m.objects = nil
}

// AddMaterial returns the material stored under key, creating it when
// missing.
func (m *Model) AddMaterial(key string) *Material {
	if mat, ok := m.materials[key]; ok {
		return mat
	}
	mat := newMaterial(m.ID())
	m.materials[key] = mat
	return mat
}

// Material looks up a material by key.
func (m *Model) Material(key string) (*Material, bool) {
	mat, ok := m.materials[key]
	return mat, ok
}

// DeleteMaterial removes a material and reports whether it existed.
// Volumes referring to the key keep it and resolve to nothing.
func (m *Model) DeleteMaterial(key string) bool {
	_, ok := m.materials[key]
	delete(m.materials, key)
	return ok
}

// MaterialKeys returns the material keys in sorted order.
func (m *Model) MaterialKeys() []string {
	return slices.Sorted(maps.Keys(m.materials))
}

// AddDefaultInstances gives every object without instances one identity
// instance and reports whether any was added.
func (m *Model) AddDefaultInstances() bool {
	added := false
	for _, o := range m.objects {
		if len(o.instances) == 0 {
			o.AddInstance()
			added = true
		}
	}
	return added
}

// BoundingBox returns the union of every object's world box.
func (m *Model) BoundingBox() math32.Box3 {
	box := math32.B3Empty()
	for _, o := range m.objects {
		box.ExpandByBox(o.BoundingBox())
	}
	return box
}

// Mesh merges every object's placed mesh.
func (m *Model) Mesh() *geometry.TriangleMesh {
	out := &geometry.TriangleMesh{}
	for _, o := range m.objects {
		out.Merge(o.Mesh())
	}
	return out
}

// CenterInstancesAroundPoint moves every instance by one XY shift so the
// snug box of all instances is centred on p.
func (m *Model) CenterInstancesAroundPoint(p math32.Vector2) {
	box := math32.B3Empty()
	for _, o := range m.objects {
		for i := range o.instances {
			box.ExpandByBox(o.instanceBox(i, false))
		}
	}
	if box.IsEmpty() {
		return
	}
	c := box.Center()
	shift := math32.Vec3(p.X-c.X, p.Y-c.Y, 0)
	for _, o := range m.objects {
		o.TranslateInstances(shift)
	}
}

// UpdatePrintVolumeState classifies every instance against printVolume and
// returns how many are fully inside.
func (m *Model) UpdatePrintVolumeState(printVolume math32.Box3) int {
	n := 0
	for _, o := range m.objects {
		n += o.CheckInstancesPrintVolumeState(printVolume)
	}
	return n
}

// LooksLikeMultipartObject reports whether a multi-object load is probably
// one part exported as separate files: every object has a single volume,
// carries at most one option, and the parts do not share a common base
// height.
func (m *Model) LooksLikeMultipartObject() bool {
	if len(m.objects) <= 1 {
		return false
	}
	zmin := math32.Inf(1)
	for _, o := range m.objects {
		if len(o.volumes) > 1 || len(o.Config) > 1 {
			return false
		}
		for _, v := range o.volumes {
			z := v.mesh.BoundingBox().Min.Z
			if math32.IsInf(zmin, 1) {
				zmin = z
			} else if math32.Abs(zmin-z) > geometry.Epsilon {
				return true
			}
		}
	}
	return false
}

// ConvertMultipartObject merges every object into one multi-volume object.
//
// Description:
//
//	Each source volume is copied once per source instance with that
//	instance's placement baked into the volume transform, named
//	"<object>_<n>", and given an extruder from a counter created here with
//	maxExtruders, so every part keeps its bed position and prints in its own
//	material. The merged object gets one instance and is re-centred, which
//	moves that instance to where the parts were.
//
// Outputs:
//
//	error - Wraps ErrInvalidOperation when the model has fewer than two
//	objects. The model is unchanged on error.
func (m *Model) ConvertMultipartObject(maxExtruders int) error {
	if len(m.objects) < 2 {
		return fmt.Errorf("%w: multipart conversion needs at least two objects, have %d",
			ErrInvalidOperation, len(m.objects))
	}
	counter := NewExtruderCounter(maxExtruders)

	first := m.objects[0]
	merged := newObject(m.ID())
	merged.Name = first.Name
	merged.InputFile = first.InputFile
	merged.Config = first.Config.Clone()
	if merged.Config == nil {
		merged.Config = config.Bundle{}
	}

	for _, src := range m.objects {
		placements := make([]math32.Matrix4, 0, len(src.instances))
		for _, inst := range src.instances {
			placements = append(placements, inst.FullMatrix())
		}
		if len(placements) == 0 {
			placements = append(placements, geometry.Identity())
		}

		n := 1
		for _, v := range src.volumes {
			for _, pm := range placements {
				nv := v.clone(merged.ID(), false)
				nv.trafo = geometry.TransformationFromMatrix(geometry.MulMatrix(pm, v.Matrix()))
				nv.name = fmt.Sprintf("%s_%d", src.Name, n)
				n++
				nv.config.Set("extruder", counter.Next())
				merged.volumes = append(merged.volumes, nv)
			}
		}
	}

	merged.AddInstance()
	merged.CenterAroundOrigin()
	m.objects = []*Object{merged}
	return nil
}

// SplitObject replaces the object with the given ID by its connected
// shells, in place.
func (m *Model) SplitObject(id identity.ID) error {
	i := m.ObjectIndex(id)
	if i < 0 {
		return &IDError{Op: "split object", IDs: []identity.ID{id}, Err: ErrObjectNotFound}
	}
	parts, err := m.objects[i].Split()
	if err != nil {
		return err
	}
	m.replaceObject(i, parts)
	return nil
}

// CutObject replaces the object at objectIdx by the result of Object.Cut.
func (m *Model) CutObject(objectIdx, instanceIdx int, z float32, keepUpper, keepLower, rotateLower bool) error {
	if err := checkIndex("object", objectIdx, len(m.objects)); err != nil {
		return err
	}
	parts, err := m.objects[objectIdx].Cut(instanceIdx, z, keepUpper, keepLower, rotateLower)
	if err != nil {
		return err
	}
	m.replaceObject(objectIdx, parts)
	return nil
}

func (m *Model) replaceObject(idx int, parts []*Object) {
	for _, p := range parts {
		p.modelID = m.ID()
	}
	m.objects = slices.Replace(m.objects, idx, idx+1, parts...)
}

// DuplicateObjectsGrid replaces the instances of the only object with an
// x by y grid spaced by the object size plus dist.
func (m *Model) DuplicateObjectsGrid(x, y int, dist float32) error {
	if len(m.objects) != 1 {
		return fmt.Errorf("%w: grid duplication needs exactly one object, have %d",
			ErrInvalidOperation, len(m.objects))
	}
	if x < 1 || y < 1 {
		return fmt.Errorf("%w: grid %dx%d", ErrInvalidOperation, x, y)
	}

	o := m.objects[0]
	template := geometry.NewTransformation()
	size := o.RawMeshBoundingBox().Size()
	if len(o.instances) > 0 {
		template = o.instances[0].trafo
		size = o.instanceBox(0, true).Size()
	}
	stepX := float64(size.X + dist)
	stepY := float64(size.Y + dist)
	if math.IsInf(stepX, 0) || math.IsNaN(stepX) {
		return fmt.Errorf("%w: object has no geometry", ErrInvalidOperation)
	}

	o.ClearInstances()
	for ix := 0; ix < x; ix++ {
		for iy := 0; iy < y; iy++ {
			tr := template
			tr.SetOffset(math32.Vec3(float32(stepX*float64(ix)), float32(stepY*float64(iy)), template.Offset().Z))
			o.AddInstanceWithTransformation(tr)
		}
	}
	return nil
}

// Clone returns a deep copy with fresh IDs throughout.
func (m *Model) Clone() *Model {
	return m.clone(false)
}

// CloneWithIdentity returns a deep copy carrying the same IDs. It is the
// snapshot handed to the processing pipeline.
func (m *Model) CloneWithIdentity() *Model {
	return m.clone(true)
}

func (m *Model) clone(keepID bool) *Model {
	out := &Model{materials: make(map[string]*Material, len(m.materials))}
	if keepID {
		out.CopyID(&m.Base)
	} else {
		out.Init()
	}
	out.objects = make([]*Object, len(m.objects))
	for i, o := range m.objects {
		out.objects[i] = o.clone(out.ID(), keepID)
	}
	for k, mat := range m.materials {
		out.materials[k] = mat.clone(out.ID(), keepID)
	}
	return out
}
