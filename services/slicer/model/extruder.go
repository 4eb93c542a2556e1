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

// ExtruderCounter hands out extruder numbers round-robin in [1, max].
//
// Description:
//
//	One counter is scoped to one editing operation (split into parts,
//	convert to multipart) and passed in explicitly. The maximum is captured
//	at construction, so a concurrent configuration change cannot alter the
//	numbering of an operation already in progress.
//
// Thread Safety:
//
//	Not safe for concurrent use.
type ExtruderCounter struct {
	max  int
	last int
}

// NewExtruderCounter returns a counter whose first value is 1. A maximum
// below 1 is treated as 1.
func NewExtruderCounter(maxExtruders int) *ExtruderCounter {
	if maxExtruders < 1 {
		maxExtruders = 1
	}
	return &ExtruderCounter{max: maxExtruders}
}

// Next returns the next extruder number, wrapping back to 1 after the
// maximum.
func (c *ExtruderCounter) Next() int {
	c.last++
	if c.last > c.max {
		c.last = 1
	}
	return c.last
}

// Max returns the captured maximum.
func (c *ExtruderCounter) Max() int {
	return c.max
}
