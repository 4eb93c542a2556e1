// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package support

import (
	"errors"
	"fmt"

	"cogentcore.org/core/math32"
)

var (
	// ErrInvalidInput indicates support input that cannot be used.
	ErrInvalidInput = errors.New("invalid support input")

	// ErrPointOffSurface indicates a support point away from the model.
	ErrPointOffSurface = fmt.Errorf("%w: support point off the model surface", ErrInvalidInput)

	// ErrInvalidConfig indicates support sizing that failed validation.
	ErrInvalidConfig = fmt.Errorf("%w: configuration", ErrInvalidInput)
)

// PointError reports a support point that failed validation.
type PointError struct {
	// Index is the point's position in the input.
	Index int

	// Point is the offending point.
	Point math32.Vector3

	// Distance is the distance to the nearest surface point, or -1 for an
	// empty mesh.
	Distance float64

	// Err is the underlying sentinel.
	Err error
}

// Error implements error.
func (e *PointError) Error() string {
	return fmt.Sprintf("support point %d (%.3f, %.3f, %.3f), distance %.3f: %v",
		e.Index, e.Point.X, e.Point.Y, e.Point.Z, e.Distance, e.Err)
}

// Unwrap returns the underlying sentinel.
func (e *PointError) Unwrap() error {
	return e.Err
}
