// Package llmerrors provides structured error classification for LLM API interactions.
package llmerrors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorType represents different categories of LLM errors for retry logic.
type ErrorType int8

const (
	// Retryable error types.

	// ErrorTypeRateLimit represents rate limiting errors (429, quota exceeded).
	ErrorTypeRateLimit ErrorType = iota
	// ErrorTypeConnection represents network-level failures (refused, reset, EOF, timeout).
	ErrorTypeConnection
	// ErrorTypeServer represents provider-side failures (5xx, overloaded).
	ErrorTypeServer
	// ErrorTypeEmptyResponse represents HTTP 200 but no usable content.
	ErrorTypeEmptyResponse

	// Non-retryable error types.

	// ErrorTypeAuth represents authentication errors (401/403, bad API key).
	ErrorTypeAuth
	// ErrorTypeBadRequest represents malformed request errors (too long, invalid schema).
	ErrorTypeBadRequest
	// ErrorTypeUnknown represents unclassified errors. Unknown errors are NOT
	// retried: an error nobody recognizes fails fast rather than burning the
	// retry budget on something that will never succeed.
	ErrorTypeUnknown
)

// String returns the string representation of the error type.
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeConnection:
		return "connection"
	case ErrorTypeServer:
		return "server"
	case ErrorTypeEmptyResponse:
		return "empty_response"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeBadRequest:
		return "bad_request"
	case ErrorTypeUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Error represents a classified LLM error with retry metadata.
type Error struct {
	Err        error     // Wrapped underlying error
	Message    string    // Human-readable error message
	Type       ErrorType // Classified error type
	StatusCode int       // HTTP status code if applicable
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("LLM error (%s): %s", e.Type.String(), e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("LLM error (%s): %v", e.Type.String(), e.Err)
	}
	return fmt.Sprintf("LLM error (%s): status %d", e.Type.String(), e.StatusCode)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns whether this error type should be retried.
// Only explicitly retryable categories qualify; unknown errors fail fast.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeConnection, ErrorTypeServer, ErrorTypeEmptyResponse:
		return true
	default:
		return false
	}
}

// Is checks if an error is of a specific type.
func Is(err error, errorType ErrorType) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type == errorType
	}
	return false
}

// TypeOf returns the error type of an error, or ErrorTypeUnknown if not classified.
func TypeOf(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}

// IsRetryable reports whether an error should be retried. Errors that are not
// classified *Error values are never retryable.
func IsRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.IsRetryable()
	}
	return false
}

// NewError creates a new classified LLM error.
func NewError(errorType ErrorType, message string) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
	}
}

// NewErrorWithStatus creates a new classified LLM error with HTTP status.
func NewErrorWithStatus(errorType ErrorType, statusCode int, message string) *Error {
	return &Error{
		Type:       errorType,
		StatusCode: statusCode,
		Message:    message,
	}
}

// NewErrorWithStatusAndCause creates a classified LLM error carrying both an
// HTTP status and an underlying cause.
func NewErrorWithStatusAndCause(errorType ErrorType, statusCode int, cause error, message string) *Error {
	return &Error{
		Type:       errorType,
		StatusCode: statusCode,
		Err:        cause,
		Message:    message,
	}
}

// NewErrorWithCause creates a new classified LLM error wrapping another error.
func NewErrorWithCause(errorType ErrorType, cause error, message string) *Error {
	return &Error{
		Type:    errorType,
		Err:     cause,
		Message: message,
	}
}

// ClassifyHTTPStatus maps an HTTP status code from a provider API to an error type.
func ClassifyHTTPStatus(statusCode int) ErrorType {
	switch {
	case statusCode == 429:
		return ErrorTypeRateLimit
	case statusCode == 401 || statusCode == 403:
		return ErrorTypeAuth
	case statusCode == 400 || statusCode == 404 || statusCode == 413 || statusCode == 422:
		return ErrorTypeBadRequest
	case statusCode >= 500:
		return ErrorTypeServer
	default:
		return ErrorTypeUnknown
	}
}

// Classify wraps an arbitrary error from an LLM SDK into a classified *Error.
// Already-classified errors pass through unchanged; context cancellation is
// preserved so callers can distinguish it from provider failures.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewErrorWithCause(ErrorTypeConnection, err, "network error")
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429") ||
		strings.Contains(msg, "quota") || strings.Contains(msg, "too many requests"):
		return NewErrorWithCause(ErrorTypeRateLimit, err, "rate limited")
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") || strings.Contains(msg, "eof") ||
		strings.Contains(msg, "no such host") || strings.Contains(msg, "timeout"):
		return NewErrorWithCause(ErrorTypeConnection, err, "connection error")
	case strings.Contains(msg, "overloaded") || strings.Contains(msg, "internal server error") ||
		strings.Contains(msg, "bad gateway") || strings.Contains(msg, "service unavailable") ||
		strings.Contains(msg, "500") || strings.Contains(msg, "502") || strings.Contains(msg, "503"):
		return NewErrorWithCause(ErrorTypeServer, err, "server error")
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "401") ||
		strings.Contains(msg, "403") || strings.Contains(msg, "api key") ||
		strings.Contains(msg, "authentication"):
		return NewErrorWithCause(ErrorTypeAuth, err, "authentication failed")
	case strings.Contains(msg, "invalid request") || strings.Contains(msg, "400") ||
		strings.Contains(msg, "context length") || strings.Contains(msg, "maximum context"):
		return NewErrorWithCause(ErrorTypeBadRequest, err, "bad request")
	default:
		return NewErrorWithCause(ErrorTypeUnknown, err, "unclassified error")
	}
}
