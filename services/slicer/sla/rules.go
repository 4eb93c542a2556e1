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

import "strings"

// objectRule maps an object option to the earliest step that reads it.
// Invalidating that step clears its dependents as well.
func objectRule(key string) (ObjectStep, bool) {
	switch key {
	case "layer_height", "supports_enable", "support_object_elevation", "pad_enable", "pad_wall_thickness":
		return ObjectSlice, true
	case "support_points_density_relative", "support_points_minimal_distance", "support_critical_angle":
		// Automatic placement samples overhangs past the critical angle.
		return SupportPoints, true
	case "support_max_bridge_length":
		return SupportTree, true
	case "pad_wall_height", "pad_max_merge_distance", "pad_edge_radius":
		return BasePool, true
	}
	for _, prefix := range []string{"support_head_", "support_pillar_", "support_base_", "support_headless_"} {
		if strings.HasPrefix(key, prefix) {
			return SupportTree, true
		}
	}
	return 0, false
}

// printAction is what a changed print option invalidates.
type printAction int

const (
	printNone printAction = iota
	printRasterize
	printValidate
	printObjectSlice
	printEverything
)

func printRule(key string) printAction {
	switch key {
	case "exposure_time", "initial_exposure_time", "printer_correction":
		return printRasterize
	case "max_print_height":
		return printValidate
	case "initial_layer_height":
		return printObjectSlice
	case "max_extruders":
		return printNone
	}
	switch {
	case strings.HasPrefix(key, "display_"):
		return printRasterize
	case strings.HasPrefix(key, "bed_"):
		return printValidate
	}
	return printEverything
}
