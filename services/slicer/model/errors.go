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
	"errors"
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianSlice/services/slicer/identity"
)

var (
	// ErrInvalidOperation indicates a call whose preconditions do not hold.
	// The receiver is left unchanged.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrIndexOutOfRange indicates a volume, instance or object index outside
	// the owning list.
	ErrIndexOutOfRange = fmt.Errorf("%w: index out of range", ErrInvalidOperation)

	// ErrEmptyModel indicates a loaded model without objects.
	ErrEmptyModel = errors.New("model has no objects")

	// ErrEmptyMesh indicates an object without printable geometry.
	ErrEmptyMesh = errors.New("object has no printable geometry")

	// ErrDuplicateID indicates two entities sharing one ID.
	ErrDuplicateID = errors.New("duplicate entity id")

	// ErrIDMismatch indicates two trees that should carry the same IDs but
	// do not.
	ErrIDMismatch = errors.New("entity id mismatch")

	// ErrNoInstances indicates an instance-relative query on an object with
	// no instances.
	ErrNoInstances = fmt.Errorf("%w: object has no instances", ErrInvalidOperation)

	// ErrObjectNotFound indicates an object ID absent from the model.
	ErrObjectNotFound = fmt.Errorf("%w: object not found", ErrInvalidOperation)
)

// IDError reports entity IDs that violate an identity rule.
type IDError struct {
	// Op names the check or operation that failed.
	Op string

	// IDs lists the offending IDs.
	IDs []identity.ID

	// Err is the underlying sentinel.
	Err error
}

// Error implements error.
func (e *IDError) Error() string {
	parts := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		parts[i] = id.String()
	}
	return fmt.Sprintf("%s: %v [%s]", e.Op, e.Err, strings.Join(parts, ", "))
}

// Unwrap returns the underlying sentinel.
func (e *IDError) Unwrap() error {
	return e.Err
}

func checkIndex(kind string, idx, n int) error {
	if idx < 0 || idx >= n {
		return fmt.Errorf("%w: %s %d of %d", ErrIndexOutOfRange, kind, idx, n)
	}
	return nil
}
