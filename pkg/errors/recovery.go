// Package errors provides comprehensive error handling utilities for irisml.
//
// This file converts panics raised inside numeric code (gonum's mat package
// panics on shape mismatches, for example) into ordinary error values so a
// failing stage can be logged and reported instead of aborting the process.

package errors

import (
	"fmt"
	"runtime/debug"

	"github.com/cockroachdb/errors"
)

// PanicError is an error created from a recovered panic.
type PanicError struct {
	// PanicValue is the original value passed to panic()
	PanicValue interface{}

	// StackTrace contains the stack trace at the time of panic
	StackTrace string

	// Operation identifies where the panic was recovered
	Operation string
}

// Error implements the error interface for PanicError.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Operation, e.PanicValue)
}

// Unwrap exposes the panic value when it is itself an error, so that
// errors.Is(err, mat.ErrShape) keeps working after recovery.
func (e *PanicError) Unwrap() error {
	if err, ok := e.PanicValue.(error); ok {
		return err
	}
	return nil
}

// String provides detailed information including stack trace.
func (e *PanicError) String() string {
	return fmt.Sprintf("panic in %s: %v\nStack trace:\n%s",
		e.Operation, e.PanicValue, e.StackTrace)
}

// NewPanicError creates a new PanicError with the given operation context and panic value.
func NewPanicError(operation string, panicValue interface{}) *PanicError {
	return &PanicError{
		PanicValue: panicValue,
		StackTrace: string(debug.Stack()),
		Operation:  operation,
	}
}

// Recover is meant to be deferred with a pointer to the named error result
// of the enclosing function.
//
//	func (s *StandardScaler) Fit(X mat.Matrix) (err error) {
//	    defer errors.Recover(&err, "StandardScaler.Fit")
//	    ...
//	}
//
// A recovered panic replaces a nil *err with a *PanicError. If *err was
// already set, the existing error is kept and annotated with the panic.
func Recover(err *error, operation string) {
	r := recover()
	if r == nil {
		return
	}
	panicErr := NewPanicError(operation, r)
	if *err != nil {
		*err = errors.WithSecondaryError(
			errors.Wrapf(*err, "panic in %s: %v (original error)", operation, r),
			panicErr,
		)
		return
	}
	*err = errors.WithStack(panicErr)
}

// SafeExecute runs fn and converts any panic into an error.
//
//	err := errors.SafeExecute("split", func() error {
//	    split, err = model_selection.TrainTestSplit(X, y)
//	    return err
//	})
func SafeExecute(operation string, fn func() error) (err error) {
	defer Recover(&err, operation)
	return fn()
}
