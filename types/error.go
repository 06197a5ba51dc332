package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the bridge.
type ErrorCode string

// Locating error codes
const (
	ErrScaleMismatch       ErrorCode = "SCALE_MISMATCH"
	ErrLocatorUnavailable  ErrorCode = "LOCATOR_UNAVAILABLE"
	ErrNoLocationAvailable ErrorCode = "NO_LOCATION_AVAILABLE"
	ErrOutOfBounds         ErrorCode = "OUT_OF_BOUNDS"
)

// Injection error codes
const (
	ErrInjectionFieldFailure ErrorCode = "INJECTION_FIELD_FAILURE"
	ErrDocumentUnavailable   ErrorCode = "DOCUMENT_UNAVAILABLE"
)

// Pipeline error codes
const (
	ErrPipelineAborted   ErrorCode = "PIPELINE_ABORTED"
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrExtractionEmpty   ErrorCode = "EXTRACTION_EMPTY"
)

// Record API error codes
const (
	ErrAuthentication ErrorCode = "AUTHENTICATION"
	ErrUpstreamError  ErrorCode = "UPSTREAM_ERROR"
	ErrTimeout        ErrorCode = "TIMEOUT"
	ErrInvalidRecord  ErrorCode = "INVALID_RECORD"
)

// Error represents a structured error with code, message, and metadata.
// Components return typed errors and never swallow them; only the pipeline
// decides between retry and abort.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	StepID    string    `json:"step_id,omitempty"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithStep tags the error with the pipeline step it occurred in.
func (e *Error) WithStep(stepID string) *Error {
	e.StepID = stepID
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
