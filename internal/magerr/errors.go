// Package magerr defines Magellan's stable, machine-readable error codes
// (spec.md §7), grounded on standardbeagle-lci's internal/errors package:
// a closed error-type enum, Unwrap support, and a Code the caller can
// switch on without parsing Error() strings.
package magerr

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error identifier (spec.md §7).
type Code string

const (
	CodeDBCompatVersionMismatch Code = "DB_COMPAT:VERSION_MISMATCH"
	CodeDBCompatCorrupt         Code = "DB_COMPAT:CORRUPT"
	CodeDBCompatUnreadable      Code = "DB_COMPAT:UNREADABLE"
	CodePathEscape              Code = "PATH_ESCAPE"
	CodeSuspiciousTraversal     Code = "SUSPICIOUS_TRAVERSAL"
	CodeCannotCanonicalize      Code = "CANNOT_CANONICALIZE"
	CodeNonUtf8Path             Code = "NON_UTF8_PATH"
	CodeOrphanReference         Code = "ORPHAN_REFERENCE"
	CodeStoreWriteFailure       Code = "STORE_WRITE_FAILURE"
	CodeDeleteResidue           Code = "DELETE_RESIDUE"
)

// Error is Magellan's structured error: a stable Code, a human message,
// an optional path, and an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Path    string
	Cause   error
}

// New creates an *Error with no cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an *Error wrapping an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WithPath attaches a path to the error and returns it for chaining.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

func (e *Error) Error() string {
	if e.Path != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s (%s): %v", e.Code, e.Message, e.Path, e.Cause)
		}
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Path)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap allows errors.Is/errors.As to see through to the cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches two *Error values by Code, so callers can do
// errors.Is(err, magerr.New(magerr.CodePathEscape, "")).
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return e.Code == te.Code
	}
	return false
}

// CodeOf extracts the Code from err if it (or something it wraps) is a
// *Error, and ok=false otherwise.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}
