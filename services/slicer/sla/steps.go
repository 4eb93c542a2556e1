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

import "github.com/AleutianAI/AleutianSlice/services/slicer/step"

// ObjectStep enumerates the per-object pipeline steps in execution order.
type ObjectStep int

const (
	// ObjectSlice places the model in the support frame and slices it.
	ObjectSlice ObjectStep = iota

	// SupportIslands finds the regions with nothing beneath them.
	SupportIslands

	// SupportPoints takes the user points or samples new ones.
	SupportPoints

	// SupportTree grows heads, pillars and bridges.
	SupportTree

	// BasePool builds the pad under the tree.
	BasePool

	// SliceSupports slices the tree and the pad.
	SliceSupports

	// IndexSlices pairs model and support layers by level.
	IndexSlices
)

// String returns the step name used in logs and metrics.
func (s ObjectStep) String() string {
	return objectSteps.StepName(s)
}

// PrintStep enumerates the print-wide steps.
type PrintStep int

const (
	// Validate checks every instance against the print volume.
	Validate PrintStep = iota

	// Rasterize assembles the printer input and hands it on.
	Rasterize
)

// String returns the step name used in logs and metrics.
func (s PrintStep) String() string {
	return printSteps.StepName(s)
}

var objectSteps = step.MustTable("sla_object", []step.Def[ObjectStep]{
	{Step: ObjectSlice, Name: "object_slice"},
	{Step: SupportIslands, Name: "support_islands", DependsOn: []ObjectStep{ObjectSlice}},
	{Step: SupportPoints, Name: "support_points", DependsOn: []ObjectStep{SupportIslands}},
	{Step: SupportTree, Name: "support_tree", DependsOn: []ObjectStep{SupportPoints}},
	{Step: BasePool, Name: "base_pool", DependsOn: []ObjectStep{SupportTree}},
	{Step: SliceSupports, Name: "slice_supports", DependsOn: []ObjectStep{SupportTree, BasePool}},
	{Step: IndexSlices, Name: "index_slices", DependsOn: []ObjectStep{ObjectSlice, SliceSupports}},
})

var printSteps = step.MustTable("sla_print", []step.Def[PrintStep]{
	{Step: Validate, Name: "validate"},
	{Step: Rasterize, Name: "rasterize", DependsOn: []PrintStep{Validate}},
})

// ObjectSteps returns the per-object steps in execution order.
func ObjectSteps() []ObjectStep {
	return objectSteps.Steps()
}

// PrintSteps returns the print-wide steps in execution order.
func PrintSteps() []PrintStep {
	return printSteps.Steps()
}
