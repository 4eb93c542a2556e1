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
	"container/heap"
	"sort"
)

// None marks a missing slice in an index record.
const None = -1

// SliceRecord maps one level of an object to its model and support slices.
type SliceRecord struct {
	Level      LevelID
	Height     float64
	ModelIdx   int
	SupportIdx int
}

// SliceIndex is a list of records sorted by level.
type SliceIndex []SliceRecord

// BuildIndex merges the sorted model and support level lists.
//
// Description:
//
//	One record is produced per distinct level. A level present in only
//	one list carries None for the other index.
func BuildIndex(modelLevels, supportLevels []LevelID) SliceIndex {
	out := make(SliceIndex, 0, max(len(modelLevels), len(supportLevels)))
	i, j := 0, 0
	for i < len(modelLevels) || j < len(supportLevels) {
		rec := SliceRecord{ModelIdx: None, SupportIdx: None}
		switch {
		case j >= len(supportLevels) || (i < len(modelLevels) && modelLevels[i] < supportLevels[j]):
			rec.Level, rec.ModelIdx = modelLevels[i], i
			i++
		case i >= len(modelLevels) || supportLevels[j] < modelLevels[i]:
			rec.Level, rec.SupportIdx = supportLevels[j], j
			j++
		default:
			rec.Level, rec.ModelIdx, rec.SupportIdx = modelLevels[i], i, j
			i++
			j++
		}
		rec.Height = rec.Level.Height()
		out = append(out, rec)
	}
	return out
}

// Lookup finds the record at level.
func (idx SliceIndex) Lookup(level LevelID) (SliceRecord, bool) {
	i := sort.Search(len(idx), func(i int) bool { return idx[i].Level >= level })
	if i < len(idx) && idx[i].Level == level {
		return idx[i], true
	}
	return SliceRecord{}, false
}

// Levels returns the record levels in order.
func (idx SliceIndex) Levels() []LevelID {
	out := make([]LevelID, len(idx))
	for i, r := range idx {
		out[i] = r.Level
	}
	return out
}

// GlobalRecord is one print-wide level with, per object, the index into
// that object's level list or None.
type GlobalRecord struct {
	Level LevelID
	Refs  []int
}

// GlobalIndex is the print-wide merge of every object's levels.
type GlobalIndex []GlobalRecord

// cursor walks one object's sorted level list.
type cursor struct {
	obj int
	pos int
}

type cursorHeap struct {
	levels [][]LevelID
	items  []cursor
}

func (h *cursorHeap) Len() int { return len(h.items) }

func (h *cursorHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	la, lb := h.levels[a.obj][a.pos], h.levels[b.obj][b.pos]
	if la != lb {
		return la < lb
	}
	return a.obj < b.obj
}

func (h *cursorHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *cursorHeap) Push(x any) { h.items = append(h.items, x.(cursor)) }

func (h *cursorHeap) Pop() any {
	n := len(h.items)
	it := h.items[n-1]
	h.items = h.items[:n-1]
	return it
}

// MergeIndex performs a k-way merge of sorted per-object level lists.
//
// Description:
//
//	Distinct levels come out in ascending order. For each, Refs[k] is the
//	position of that level in objects[k], or None. A level repeated within
//	one list keeps its first position.
//
// Inputs:
//   - objects: One ascending level list per object.
//
// Outputs:
//   - GlobalIndex: The merged records.
func MergeIndex(objects ...[]LevelID) GlobalIndex {
	h := &cursorHeap{levels: objects}
	for k, lv := range objects {
		if len(lv) > 0 {
			h.items = append(h.items, cursor{obj: k})
		}
	}
	heap.Init(h)

	var out GlobalIndex
	for h.Len() > 0 {
		c := h.items[0]
		level := objects[c.obj][c.pos]
		if len(out) == 0 || out[len(out)-1].Level != level {
			refs := make([]int, len(objects))
			for k := range refs {
				refs[k] = None
			}
			out = append(out, GlobalRecord{Level: level, Refs: refs})
		}
		rec := &out[len(out)-1]
		if rec.Refs[c.obj] == None {
			rec.Refs[c.obj] = c.pos
		}

		if c.pos+1 < len(objects[c.obj]) {
			h.items[0].pos++
			heap.Fix(h, 0)
		} else {
			heap.Pop(h)
		}
	}
	return out
}
