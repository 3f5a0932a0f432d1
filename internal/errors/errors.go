package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a wm error code.
type ErrorCode string

const (
	ErrInvalidRequest        ErrorCode = "INVALID_REQUEST"        // 400
	ErrNotFound              ErrorCode = "NOT_FOUND"              // 404
	ErrAlreadyExists         ErrorCode = "ALREADY_EXISTS"         // 409
	ErrCannotDeleteCurrent   ErrorCode = "CANNOT_DELETE_CURRENT"  // 409
	ErrNotInitialized        ErrorCode = "NOT_INITIALIZED"        // 412
	ErrParse                 ErrorCode = "PARSE_ERROR"            // 422
	ErrAmbiguousValue        ErrorCode = "AMBIGUOUS_VALUE"        // 422
	ErrLocked                ErrorCode = "LOCKED"                 // 423
	ErrIO                    ErrorCode = "IO_ERROR"               // 500
	ErrInternal              ErrorCode = "INTERNAL"               // 500
	ErrGenerationUnavailable ErrorCode = "GENERATION_UNAVAILABLE" // 503
	ErrTimeout               ErrorCode = "TIMEOUT"                // 504
	ErrNoChange              ErrorCode = "NO_CHANGE"              // informational, not a failure
)

// WMError represents a structured error with code, status, and details.
type WMError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	cause error
}

// Error implements the error interface.
func (e *WMError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error, if any.
func (e *WMError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *WMError {
	return &WMError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error. kind names what was looked up ("session", "dive", ...).
func NewNotFound(kind, identifier string) *WMError {
	return &WMError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewAlreadyExists creates a 409 error for name collisions.
func NewAlreadyExists(kind, name string) *WMError {
	return &WMError{
		Code:    ErrAlreadyExists,
		Status:  409,
		Message: fmt.Sprintf("%s already exists: %s", kind, name),
		Details: map[string]any{"kind": kind, "name": name},
	}
}

// NewCannotDeleteCurrent creates a 409 error when deleting the active dive.
func NewCannotDeleteCurrent(name string) *WMError {
	return &WMError{
		Code:    ErrCannotDeleteCurrent,
		Status:  409,
		Message: fmt.Sprintf("cannot delete current dive %q; switch to another first", name),
		Details: map[string]any{"name": name},
	}
}

// NewNotInitialized creates a 412 error when the .wm directory is missing.
func NewNotInitialized(dir string) *WMError {
	return &WMError{
		Code:    ErrNotInitialized,
		Status:  412,
		Message: fmt.Sprintf("no .wm directory at %s; run 'wm init'", dir),
		Details: map[string]any{"dir": dir},
	}
}

// NewParseError creates a 422 error for malformed input.
// where identifies the source (a file path, "line 12", "categorization output").
func NewParseError(where string, err error) *WMError {
	msg := "parse error in " + where
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return &WMError{
		Code:    ErrParse,
		Status:  422,
		Message: msg,
		Details: map[string]any{"where": where},
		cause:   err,
	}
}

// NewAmbiguousValue creates a 422 error for a marker whose value is not yes/no.
func NewAmbiguousValue(marker, value string) *WMError {
	return &WMError{
		Code:    ErrAmbiguousValue,
		Status:  422,
		Message: fmt.Sprintf("marker %s has ambiguous value %q", marker, value),
		Details: map[string]any{"marker": marker, "value": value},
	}
}

// NewLocked creates a 423 error when another process holds the lock.
func NewLocked(path string) *WMError {
	return &WMError{
		Code:    ErrLocked,
		Status:  423,
		Message: fmt.Sprintf("another wm process holds %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewIO creates a 500 error for persisted-state read/write failures.
func NewIO(op string, err error) *WMError {
	msg := op
	if err != nil {
		msg = fmt.Sprintf("%s: %v", op, err)
	}
	return &WMError{
		Code:    ErrIO,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// NewGenerationUnavailable creates a 503 error when the generator cannot run.
func NewGenerationUnavailable(err error) *WMError {
	msg := "generation unavailable"
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return &WMError{
		Code:    ErrGenerationUnavailable,
		Status:  503,
		Message: msg,
		cause:   err,
	}
}

// NewTimeout creates a 504 error when a generation call exceeds its deadline.
func NewTimeout(op string) *WMError {
	return &WMError{
		Code:    ErrTimeout,
		Status:  504,
		Message: fmt.Sprintf("%s timed out", op),
		Details: map[string]any{"op": op},
	}
}

// NewNoChange reports that an operation had nothing to write.
func NewNoChange(reason string) *WMError {
	return &WMError{
		Code:    ErrNoChange,
		Status:  200,
		Message: reason,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *WMError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &WMError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if an error (or anything it wraps) is a WMError with the given code.
func Is(err error, code ErrorCode) bool {
	var wmErr *WMError
	if stderrors.As(err, &wmErr) {
		return wmErr.Code == code
	}
	return false
}

// CodeOf returns the code of a WMError, or ErrInternal for foreign errors.
func CodeOf(err error) ErrorCode {
	var wmErr *WMError
	if stderrors.As(err, &wmErr) {
		return wmErr.Code
	}
	return ErrInternal
}
