// Package apperrors provides structured application errors with HTTP status mapping.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrInternal   = errors.New("internal error")

	// Deploy failure kinds. None of them is retried.
	ErrClassification  = errors.New("classification error")
	ErrRemoteRejection = errors.New("remote rejection")
	ErrPollTimeout     = errors.New("poll timeout")
	ErrParse           = errors.New("parse error")
)

// Error provides structured error with context.
type Error struct {
	Sentinel error  // Wrapped sentinel for errors.Is() classification
	Message  string // Human-readable message
	Field    string // For validation errors (e.g., "path")
	Resource string // For not found/conflict (e.g., "deploy")
	Op       string // Operation that failed (e.g., "bundle.createDefinition")
	Cause    error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the sentinel and the cause so both match errors.Is().
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Cause}
}

// Validation creates a validation error for a specific field.
func Validation(field, message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  message,
		Field:    field,
	}
}

// NotFound creates a not found error for a resource.
func NotFound(resource, id string) error {
	return &Error{
		Sentinel: ErrNotFound,
		Message:  fmt.Sprintf("%s %s not found", resource, id),
		Resource: resource,
	}
}

// Conflict creates a conflict error for a resource.
func Conflict(resource, id, reason string) error {
	return &Error{
		Sentinel: ErrConflict,
		Message:  reason,
		Resource: resource,
	}
}

// Internal creates an internal error wrapping an underlying cause.
func Internal(op string, cause error) error {
	return &Error{
		Sentinel: ErrInternal,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// Classification reports an artifact whose tooling kind, extension or role
// suffix cannot be resolved. Raised before any remote call.
func Classification(message string) error {
	return &Error{
		Sentinel: ErrClassification,
		Message:  message,
	}
}

// RemoteRejection carries the remote's own message verbatim.
func RemoteRejection(op, message string) error {
	return &Error{
		Sentinel: ErrRemoteRejection,
		Message:  message,
		Op:       op,
	}
}

// PollTimeout is raised when the compile request never left the queue within
// the poll budget. The message is the user-visible "Timeout".
func PollTimeout(op string, attempts int) error {
	return &Error{
		Sentinel: ErrPollTimeout,
		Message:  "Timeout",
		Op:       fmt.Sprintf("%s (after %d polls)", op, attempts),
	}
}

// Parse wraps a malformed payload: metadata XML or a remote error text.
func Parse(op string, cause error) error {
	return &Error{
		Sentinel: ErrParse,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}
