// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"strings"
)

// Mode controls how rich the CLI output is.
type Mode string

const (
	// ModeFull enables colors, icons and boxes.
	ModeFull Mode = "full"

	// ModeMinimal keeps icons but drops colors and boxes.
	ModeMinimal Mode = "minimal"

	// ModeMachine prints plain tab-separated text for scripts.
	ModeMachine Mode = "machine"
)

// ParseMode converts a string to a Mode. Unknown values map to ModeFull.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minimal", "min", "quiet":
		return ModeMinimal
	case "machine", "plain", "script":
		return ModeMachine
	default:
		return ModeFull
	}
}
