// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package lserr defines the error taxonomy shared across the stacking pipeline.
package lserr

import "fmt"

// Kind classifies why an activity failed, so a caller can decide whether to
// resume, abort, or retry.
type Kind int

const (
	// InputError covers decode failure, inconsistent frame shape/depth, or an empty source.
	InputError Kind = iota
	// ConfigError covers a configuration parameter out of its valid range.
	ConfigError
	// Ordering covers an activity invoked before its predecessor has run.
	Ordering
	// Degenerate covers an empty frame intersection, no surviving APs, or all local shifts saturated.
	Degenerate
	// NumericError covers a division-by-zero or ill-conditioned fit. Always recovered locally;
	// a caller should never observe this kind escape a single AP/frame computation.
	NumericError
	// Cancelled covers cooperative cancellation via the caller's context.
	Cancelled
	// Internal covers anything else: a broken invariant in this codebase.
	Internal
)

func (k Kind) String() string {
	switch k {
	case InputError:
		return "InputError"
	case ConfigError:
		return "ConfigError"
	case Ordering:
		return "Ordering"
	case Degenerate:
		return "Degenerate"
	case NumericError:
		return "NumericError"
	case Cancelled:
		return "Cancelled"
	case Internal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Error carries the failure kind plus the activity that was running when it occurred,
// so the pipeline driver can report where a caller should resume from after fixing
// whatever caused the failure.
type Error struct {
	Kind     Kind
	Activity string
	Msg      string
	Err      error
}

func (e *Error) Error() string {
	if e.Activity != "" {
		return fmt.Sprintf("%s in %s: %s", e.Kind, e.Activity, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind for the named activity.
func New(kind Kind, activity, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Activity: activity, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind for the named activity, preserving a cause.
func Wrap(kind Kind, activity string, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Activity: activity, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}
