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
	"slices"

	"github.com/AleutianAI/AleutianSlice/services/slicer/geometry"
	"github.com/AleutianAI/AleutianSlice/services/slicer/identity"
)

// ObjectListEqual reports whether both models list the same object IDs in
// the same order.
func ObjectListEqual(a, b *Model) bool {
	return slices.EqualFunc(a.objects, b.objects, func(x, y *Object) bool { return x.ID() == y.ID() })
}

// ObjectListExtended reports whether next lists every object of prev, in
// order, followed by at least one more.
func ObjectListExtended(prev, next *Model) bool {
	if len(next.objects) <= len(prev.objects) {
		return false
	}
	for i, o := range prev.objects {
		if next.objects[i].ID() != o.ID() {
			return false
		}
	}
	return true
}

// VolumeListChanged compares the volumes of the given types in order, by ID
// and local transform.
func VolumeListChanged(prev, next *Object, types ...VolumeType) bool {
	pick := func(o *Object) []*Volume {
		var out []*Volume
		for _, v := range o.volumes {
			if slices.Contains(types, v.typ) {
				out = append(out, v)
			}
		}
		return out
	}
	pv, nv := pick(prev), pick(next)
	if len(pv) != len(nv) {
		return true
	}
	for i := range pv {
		if pv[i].ID() != nv[i].ID() || !geometry.MatrixNear(pv[i].Matrix(), nv[i].Matrix()) {
			return true
		}
	}
	return false
}

// CheckIDsValidity verifies that every entity in the tree has a distinct,
// non-zero ID and that child back-references name their actual parent.
//
// Description:
//
//	A debugging aid. Returns an *IDError wrapping ErrDuplicateID listing
//	every ID seen more than once (or the zero ID), or one wrapping
//	ErrIDMismatch listing children whose parent ID is wrong.
func CheckIDsValidity(m *Model) error {
	seen := make(map[identity.ID]int)
	var broken []identity.ID
	note := func(id identity.ID) { seen[id]++ }

	note(m.ID())
	for _, o := range m.objects {
		note(o.ID())
		if o.modelID != m.ID() {
			broken = append(broken, o.ID())
		}
		for _, v := range o.volumes {
			note(v.ID())
			if v.objectID != o.ID() {
				broken = append(broken, v.ID())
			}
		}
		for _, inst := range o.instances {
			note(inst.ID())
			if inst.objectID != o.ID() {
				broken = append(broken, inst.ID())
			}
		}
	}
	for _, mat := range m.materials {
		note(mat.ID())
		if mat.modelID != m.ID() {
			broken = append(broken, mat.ID())
		}
	}

	var dups []identity.ID
	for id, n := range seen {
		if n > 1 || id == identity.None {
			dups = append(dups, id)
		}
	}
	if len(dups) > 0 {
		slices.Sort(dups)
		return &IDError{Op: "check ids", IDs: dups, Err: ErrDuplicateID}
	}
	if len(broken) > 0 {
		return &IDError{Op: "check parent ids", IDs: broken, Err: ErrIDMismatch}
	}
	return nil
}

// CheckIDsEqual verifies that b carries the same IDs as a in the same
// positions, which is what CloneWithIdentity promises.
func CheckIDsEqual(a, b *Model) error {
	mismatch := func(what string, x, y identity.ID) error {
		return &IDError{Op: "compare " + what, IDs: []identity.ID{x, y}, Err: ErrIDMismatch}
	}
	if a.ID() != b.ID() {
		return mismatch("model", a.ID(), b.ID())
	}
	if len(a.objects) != len(b.objects) {
		return fmt.Errorf("%w: %d objects vs %d", ErrIDMismatch, len(a.objects), len(b.objects))
	}
	for i, ao := range a.objects {
		bo := b.objects[i]
		if ao.ID() != bo.ID() {
			return mismatch("object", ao.ID(), bo.ID())
		}
		if len(ao.volumes) != len(bo.volumes) || len(ao.instances) != len(bo.instances) {
			return fmt.Errorf("%w: object %s children differ", ErrIDMismatch, ao.ID())
		}
		for j, av := range ao.volumes {
			if bv := bo.volumes[j]; av.ID() != bv.ID() {
				return mismatch("volume", av.ID(), bv.ID())
			}
		}
		for j, ai := range ao.instances {
			if bi := bo.instances[j]; ai.ID() != bi.ID() {
				return mismatch("instance", ai.ID(), bi.ID())
			}
		}
	}
	if len(a.materials) != len(b.materials) {
		return fmt.Errorf("%w: %d materials vs %d", ErrIDMismatch, len(a.materials), len(b.materials))
	}
	for k, am := range a.materials {
		bm, ok := b.materials[k]
		if !ok {
			return fmt.Errorf("%w: material %q missing", ErrIDMismatch, k)
		}
		if am.ID() != bm.ID() {
			return mismatch("material", am.ID(), bm.ID())
		}
	}
	return nil
}

// ValidateLoaded rejects a freshly loaded model that cannot be printed: no
// objects at all, or an object whose model parts are all empty.
func ValidateLoaded(m *Model) error {
	if len(m.objects) == 0 {
		return ErrEmptyModel
	}
	for _, o := range m.objects {
		if o.FacetsCount() == 0 {
			return fmt.Errorf("%w: object %q (%s)", ErrEmptyMesh, o.Name, o.ID())
		}
	}
	return nil
}
