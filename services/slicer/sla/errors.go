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

import (
	"errors"
	"fmt"
)

var (
	// ErrNilModel indicates Apply was called without a model.
	ErrNilModel = errors.New("nil model")

	// ErrInvalidConfig indicates an option bundle that failed validation.
	ErrInvalidConfig = errors.New("invalid print configuration")

	// ErrObjectNotFound indicates a query for an object the print does not
	// hold.
	ErrObjectNotFound = errors.New("print object not found")
)

// ValidationError reports a configuration that Apply refused. The print is
// left untouched.
type ValidationError struct {
	// Scope is "print" or the name of the offending object.
	Scope string

	// Err is the underlying validation failure.
	Err error
}

// Error implements error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrInvalidConfig, e.Scope, e.Err)
}

// Unwrap returns the validation failure.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is matches ErrInvalidConfig.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidConfig
}
