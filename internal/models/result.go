package models

import "errors"

// ActionResult is the tagged envelope every API response uses. Errors never
// cross the store boundary as bare failures: they are flattened into a
// success flag plus classification, message, and retryable hint.
type ActionResult struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	Code      ErrorCode `json:"code,omitempty"`
	Retryable bool      `json:"retryable,omitempty"`
}

// OK builds a successful result.
func OK(data any) *ActionResult {
	return &ActionResult{Success: true, Data: data}
}

// Fail builds a failed result from err, preserving its classification.
func Fail(err error) *ActionResult {
	var e *Error
	if errors.As(err, &e) {
		return &ActionResult{
			Success:   false,
			Error:     err.Error(),
			Code:      e.Code(),
			Retryable: e.Retryable(),
		}
	}
	return &ActionResult{
		Success:   false,
		Error:     err.Error(),
		Code:      ErrUnknown,
		Retryable: true,
	}
}
