// Package errors provides structured error types for pkgpulse.
//
// Every failure the core surfaces to a caller carries a machine-readable
// [Code]. Soft failures (an unreachable registry sub-page, a secondary download
// source that does not answer) are never errors; they show up as incomplete
// data instead.
//
// # Error Codes
//
//   - SOURCE_UNAVAILABLE: the registry index or the roster could not be fetched
//   - NO_VERSIONS_FOUND: the registry answered but listed no versions
//   - RECONCILIATION_PARTIAL_WRITE: a roster write step failed after earlier
//     steps committed
//   - INVALID_*: input validation failures
//   - STORAGE: a relational store read failed
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidPackage, "invalid package id: %s", id)
//	if errors.Is(err, errors.ErrCodeInvalidPackage) {
//	    // Handle validation error
//	}
//
//	err := errors.Wrap(errors.ErrCodeSourceUnavailable, origErr, "registry index for %s", id)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput   Code = "INVALID_INPUT"
	ErrCodeInvalidPackage Code = "INVALID_PACKAGE"
	ErrCodeInvalidProject Code = "INVALID_PROJECT"

	// Source errors
	ErrCodeSourceUnavailable Code = "SOURCE_UNAVAILABLE"
	ErrCodeNoVersionsFound   Code = "NO_VERSIONS_FOUND"

	// Storage errors
	ErrCodePartialWrite Code = "RECONCILIATION_PARTIAL_WRITE"
	ErrCodeStorage      Code = "STORAGE"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether the outermost coded error in err's chain has code.
func Is(err error, code Code) bool {
	c := GetCode(err)
	return c != "" && c == code
}

// GetCode extracts the outermost error code from an error chain.
// Returns empty string if no coded error is present.
func GetCode(err error) Code {
	for err != nil {
		switch e := err.(type) {
		case *Error:
			return e.Code
		case *PartialWriteError:
			return ErrCodePartialWrite
		}
		err = errors.Unwrap(err)
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// The outermost coded error decides: an *Error yields its message without
// the code prefix, a *PartialWriteError names the failed step. Other errors
// are returned as-is.
func UserMessage(err error) string {
	for e := err; e != nil; e = errors.Unwrap(e) {
		switch ce := e.(type) {
		case *Error:
			return ce.Message
		case *PartialWriteError:
			return fmt.Sprintf("reconciliation stopped at step %s: %v", ce.Step, ce.Cause)
		}
	}
	return err.Error()
}

// PartialWriteError reports which reconciliation write step failed.
// Steps before Step are committed and are not rolled back.
type PartialWriteError struct {
	Step      string   // "insert_new", "reactivate", "depart" or "daily_stats"
	Committed []string // steps that completed before the failure
	Cause     error
}

// Error implements the error interface.
func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("%s: step %s failed: %v", ErrCodePartialWrite, e.Step, e.Cause)
}

// Unwrap returns the underlying storage error.
func (e *PartialWriteError) Unwrap() error {
	return e.Cause
}

// Code returns the error code for this error type.
func (e *PartialWriteError) Code() Code {
	return ErrCodePartialWrite
}
