// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package step

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyTable indicates a table without step definitions.
	ErrEmptyTable = errors.New("step table has no steps")

	// ErrDuplicateStep indicates a step defined twice.
	ErrDuplicateStep = errors.New("duplicate step definition")

	// ErrUnknownStep indicates a dependency on, or a query for, an undefined
	// step.
	ErrUnknownStep = errors.New("unknown step")

	// ErrDeclarationOrder indicates a dependency declared after its
	// dependent.
	ErrDeclarationOrder = errors.New("dependency declared after dependent")

	// ErrCycleDetected indicates a dependency cycle.
	ErrCycleDetected = errors.New("step dependency cycle")

	// ErrDependencyNotDone indicates a step reached with an unsatisfied
	// dependency.
	ErrDependencyNotDone = errors.New("dependency not done")
)

// DefError reports an invalid step definition.
type DefError struct {
	// Table is the table name.
	Table string

	// Step is the offending step's name, or its number when unnamed.
	Step string

	// Err is the underlying sentinel.
	Err error
}

// Error implements error.
func (e *DefError) Error() string {
	return fmt.Sprintf("step table %s: step %s: %v", e.Table, e.Step, e.Err)
}

// Unwrap returns the underlying sentinel.
func (e *DefError) Unwrap() error {
	return e.Err
}

// CycleError reports a dependency cycle with its path.
type CycleError struct {
	// Path lists the steps on the cycle; the first repeats at the end.
	Path []string
}

// Error implements error.
func (e *CycleError) Error() string {
	return fmt.Sprintf("%v: %s", ErrCycleDetected, strings.Join(e.Path, " -> "))
}

// Unwrap returns ErrCycleDetected.
func (e *CycleError) Unwrap() error {
	return ErrCycleDetected
}

// StepError reports a step whose computation failed.
type StepError struct {
	// Table is the table name.
	Table string

	// Owner identifies the state the step belongs to, such as an object ID.
	Owner string

	// Step is the step's name.
	Step string

	// Err is the computation error.
	Err error
}

// Error implements error.
func (e *StepError) Error() string {
	if e.Owner == "" {
		return fmt.Sprintf("%s step %s: %v", e.Table, e.Step, e.Err)
	}
	return fmt.Sprintf("%s step %s (%s): %v", e.Table, e.Step, e.Owner, e.Err)
}

// Unwrap returns the computation error.
func (e *StepError) Unwrap() error {
	return e.Err
}
