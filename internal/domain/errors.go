package domain

import (
	"errors"
	"net/http"
)

// HTTPError defines errors that can be mapped to HTTP status codes.
// Implementing this interface enables extensible error handling.
type HTTPError interface {
	error
	StatusCode() int
}

// Domain error types implementing HTTPError interface
type (
	// NotFoundError indicates a resource was not found
	NotFoundError struct {
		Message string
	}

	// ValidationError indicates invalid input
	ValidationError struct {
		Message string
	}

	// UnauthorizedError indicates authentication failure
	UnauthorizedError struct {
		Message string
	}

	// TransientError indicates a retryable downstream failure
	// (LLM timeout, provider pool exhaustion, cancelled call).
	TransientError struct {
		Message string
		Err     error
	}
)

// Error implementations
func (e *NotFoundError) Error() string     { return e.Message }
func (e *ValidationError) Error() string   { return e.Message }
func (e *UnauthorizedError) Error() string { return e.Message }
func (e *TransientError) Error() string    { return e.Message }

// StatusCode implementations (HTTPError interface)
func (e *NotFoundError) StatusCode() int     { return http.StatusNotFound }
func (e *ValidationError) StatusCode() int   { return http.StatusBadRequest }
func (e *UnauthorizedError) StatusCode() int { return http.StatusUnauthorized }
func (e *TransientError) StatusCode() int    { return http.StatusServiceUnavailable }

// Sentinel errors - use with errors.Is()
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("already exists")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTransient marks retryable downstream failures. Callers may retry
	// the whole user turn; no partial assistant turn has been persisted.
	ErrTransient = errors.New("transient failure")

	// ErrLoopBound is returned when the re-prompt loop saturates without a
	// usable answer. The orchestrator normally converts this to a
	// forced-break answer before it reaches a caller.
	ErrLoopBound = errors.New("directive loop bound reached")
)

// Is allows TransientError values to satisfy errors.Is(err, ErrTransient).
func (e *TransientError) Is(target error) bool {
	return target == ErrTransient
}

// Unwrap exposes the underlying cause, if any.
func (e *TransientError) Unwrap() error { return e.Err }

// ConflictError represents a duplicate resource with details about the
// existing one. Duplicate turn ids on append are an internal defect, never
// surfaced to end users.
type ConflictError struct {
	Message      string
	ResourceType string
	ResourceID   string
}

func (e *ConflictError) Error() string { return e.Message }

func (e *ConflictError) StatusCode() int { return http.StatusConflict }

// Is allows errors.Is() to match against ErrConflict
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
