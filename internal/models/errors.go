package models

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies a failure for the caller.
type ErrorCode string

const (
	// ErrValidation is returned when input data fails validation. Not retryable.
	ErrValidation ErrorCode = "VALIDATION"
	// ErrAuthInvalid is returned when the GitHub credential is missing or rejected.
	// Not retryable; the caller must resupply a token.
	ErrAuthInvalid ErrorCode = "AUTH_INVALID"
	// ErrRateLimit is returned on a 403, which GitHub uses both for rate
	// limiting and insufficient permissions. Not auto-retried, but marked
	// retryable so the caller can offer a user-triggered retry.
	ErrRateLimit ErrorCode = "RATE_LIMIT"
	// ErrNotFound is returned when a memo or object is absent. An existing
	// but empty shard is not a NotFound, it is a valid empty list.
	ErrNotFound ErrorCode = "NOT_FOUND"
	// ErrConflict is returned on a version token mismatch. Retryable by
	// re-reading and reapplying the mutation.
	ErrConflict ErrorCode = "CONFLICT"
	// ErrNetwork is returned for network failures and 5xx/429 responses
	// after internal retries are exhausted.
	ErrNetwork ErrorCode = "NETWORK"
	// ErrUnknown is the fallback classification.
	ErrUnknown ErrorCode = "UNKNOWN"
)

// Error is a classified storage error. It carries enough for the
// application boundary to build a tagged result without inspecting
// the underlying cause.
type Error struct {
	code       ErrorCode
	message    string
	retryable  bool
	wrappedErr error
}

// NewError creates a classified error.
func NewError(code ErrorCode, message string, retryable bool) *Error {
	return &Error{code: code, message: message, retryable: retryable}
}

// Wrap attaches an underlying cause.
func (e *Error) Wrap(err error) *Error {
	e.wrappedErr = err
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.wrappedErr != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrappedErr)
	}
	return e.message
}

// Code returns the error classification.
func (e *Error) Code() ErrorCode {
	return e.code
}

// Retryable reports whether the caller may usefully retry the operation.
func (e *Error) Retryable() bool {
	return e.retryable
}

// Unwrap returns the wrapped error if any.
func (e *Error) Unwrap() error {
	return e.wrappedErr
}

// StatusCode maps the classification to an HTTP status for the API boundary.
func (e *Error) StatusCode() int {
	switch e.code {
	case ErrValidation:
		return http.StatusBadRequest
	case ErrAuthInvalid:
		return http.StatusUnauthorized
	case ErrRateLimit:
		return http.StatusForbidden
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConflict:
		return http.StatusConflict
	case ErrNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Predefined constructors for common cases.

// Validation creates a non-retryable bad-input error.
func Validation(message string) *Error {
	return NewError(ErrValidation, message, false)
}

// NotFound creates a not-found error for the named resource.
func NotFound(resource string) *Error {
	return NewError(ErrNotFound, fmt.Sprintf("%s not found", resource), false)
}

// AuthInvalid creates an invalid-credential error.
func AuthInvalid() *Error {
	return NewError(ErrAuthInvalid, "invalid GitHub token", false)
}

// RateLimited creates a 403 rate-limit/permission error.
func RateLimited() *Error {
	return NewError(ErrRateLimit, "rate limit exceeded or insufficient permissions", true)
}

// Conflict creates a version mismatch error.
func Conflict(message string) *Error {
	return NewError(ErrConflict, message, true)
}

// Network creates a transient network error.
func Network(message string) *Error {
	return NewError(ErrNetwork, message, true)
}

// CodeOf returns the classification of err, or ErrUnknown when err carries none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code()
	}
	return ErrUnknown
}

// IsNotFound reports whether err is classified NotFound.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrNotFound
}

// IsConflict reports whether err is classified Conflict.
func IsConflict(err error) bool {
	return CodeOf(err) == ErrConflict
}

// IsRetryable reports whether err may usefully be retried by the caller.
// Unclassified errors are considered retryable, matching the conservative
// default at the application boundary.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return true
}
