// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

// Package reporterr defines the failures raised while a report definition is
// bound to its data. All of them share one Error type tagged with a Kind so
// callers can branch with errors.Is against the package sentinels.
package reporterr

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a report processing failure.
type Kind string

const (
	// KindProcessing is the generic failure every other kind specializes.
	KindProcessing Kind = "processing"
	// KindDataFactory is raised when a data factory cannot run a query.
	KindDataFactory Kind = "data-factory"
	// KindQueryTimeout is raised when a query exceeds its timeout.
	KindQueryTimeout Kind = "query-timeout"
	// KindParameterValidation is raised when parameter values are rejected.
	KindParameterValidation Kind = "parameter-validation"
	// KindInterrupted is raised when processing was cancelled.
	KindInterrupted Kind = "interrupted"
	// KindInvalidState is raised when a definition cannot be processed as configured.
	KindInvalidState Kind = "invalid-state"
	// KindEvent is raised by listeners and report expressions.
	KindEvent Kind = "event"
	// KindEmptyReport is raised when an empty result is configured to be fatal.
	KindEmptyReport Kind = "empty-report"
	// KindDefinition is raised for structurally broken report definitions.
	KindDefinition Kind = "definition"
	// KindResource is raised when a resource cannot be resolved or loaded.
	KindResource Kind = "resource"
)

// Sentinels for errors.Is. A sentinel matches every Error of the same kind;
// ErrProcessing matches all of them.
var (
	ErrProcessing          = &Error{Kind: KindProcessing}
	ErrDataFactory         = &Error{Kind: KindDataFactory}
	ErrQueryTimeout        = &Error{Kind: KindQueryTimeout}
	ErrParameterValidation = &Error{Kind: KindParameterValidation}
	ErrInterrupted         = &Error{Kind: KindInterrupted}
	ErrInvalidState        = &Error{Kind: KindInvalidState}
	ErrEvent               = &Error{Kind: KindEvent}
	ErrEmptyReport         = &Error{Kind: KindEmptyReport}
	ErrDefinition          = &Error{Kind: KindDefinition}
	ErrResource            = &Error{Kind: KindResource}
)

// Error is a report processing failure.
type Error struct {
	Kind Kind
	// Op names the operation that failed, e.g. "query orders".
	Op string
	// Err is the underlying cause, may be nil.
	Err error
}

// New creates an error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf creates an error of the given kind with a formatted cause.
func Newf(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Op == "" && e.Err == nil:
		return string(e.Kind)
	case e.Op == "":
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a sentinel matching this error's kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Op != "" || t.Err != nil {
		return false
	}
	return t.Kind == KindProcessing || t.Kind == e.Kind
}

// KindOf returns the kind of the first Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

// Interrupted converts a context error into an Interrupted or QueryTimeout error.
// Other errors are returned unchanged.
func Interrupted(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrProcessing):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return New(KindQueryTimeout, op, err)
	case errors.Is(err, context.Canceled):
		return New(KindInterrupted, op, err)
	default:
		return err
	}
}
