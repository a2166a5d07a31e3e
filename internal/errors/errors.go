// Package errors defines application errors and their HTTP representation.
//
// Library packages return plain Go errors. Handlers translate them into an
// AppError, which carries a stable machine-readable code and the HTTP status
// used when the error reaches a client.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error codes used in HTTP error envelopes.
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeMethodNotAllow  = "METHOD_NOT_ALLOWED"
	CodeRateLimited     = "RATE_LIMITED"
	CodeExternalService = "EXTERNAL_SERVICE_ERROR"
	CodeRenderFailed    = "RENDER_FAILED"
	CodeRenderTimeout   = "RENDER_TIMEOUT"
	CodeUnavailable     = "SERVICE_UNAVAILABLE"
	CodeInternal        = "INTERNAL_ERROR"
)

// AppError is an error with an HTTP status and a stable code.
type AppError struct {
	Code    string
	Message string
	Status  int
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails returns a copy of e with details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	out := *e
	out.Details = make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		out.Details[k] = v
	}
	for k, v := range details {
		out.Details[k] = v
	}
	return &out
}

// NewValidationError reports bad client input (400).
func NewValidationError(message string, details map[string]any) *AppError {
	return &AppError{Code: CodeValidation, Message: message, Status: http.StatusBadRequest, Details: details}
}

// NewNotFoundError reports a missing route or resource (404).
func NewNotFoundError(message string) *AppError {
	return &AppError{Code: CodeNotFound, Message: message, Status: http.StatusNotFound}
}

// NewMethodNotAllowedError reports an unsupported method on a known route (405).
func NewMethodNotAllowedError(message string) *AppError {
	return &AppError{Code: CodeMethodNotAllow, Message: message, Status: http.StatusMethodNotAllowed}
}

// NewRateLimitedError reports a rejected request due to rate limiting (429).
func NewRateLimitedError(message string) *AppError {
	return &AppError{Code: CodeRateLimited, Message: message, Status: http.StatusTooManyRequests}
}

// NewExternalServiceError reports a failing dependency (502).
func NewExternalServiceError(message string) *AppError {
	return &AppError{Code: CodeExternalService, Message: message, Status: http.StatusBadGateway}
}

// WrapExternalService wraps err as an external service failure (502).
func WrapExternalService(err error, message string) *AppError {
	return &AppError{Code: CodeExternalService, Message: message, Status: http.StatusBadGateway, Err: err}
}

// NewTimeoutError reports that waiting for a dependency exceeded its bound (504).
func NewTimeoutError(message string, err error) *AppError {
	return &AppError{Code: CodeRenderTimeout, Message: message, Status: http.StatusGatewayTimeout, Err: err}
}

// NewUnavailableError reports that the service itself cannot serve (503).
func NewUnavailableError(message string, details map[string]any) *AppError {
	return &AppError{Code: CodeUnavailable, Message: message, Status: http.StatusServiceUnavailable, Details: details}
}

// WrapInternal wraps err as an internal error (500).
//
// Context cancellation is preserved so callers can still detect it with errors.Is.
func WrapInternal(ctx context.Context, err error, message string) *AppError {
	if err == nil && ctx != nil {
		err = ctx.Err()
	}
	return &AppError{Code: CodeInternal, Message: message, Status: http.StatusInternalServerError, Err: err}
}

// AsAppError returns err as an AppError, wrapping unknown errors as internal.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return &AppError{Code: CodeInternal, Message: "internal server error", Status: http.StatusInternalServerError, Err: err}
}

// StatusOf returns the HTTP status an error maps to.
func StatusOf(err error) int {
	return AsAppError(err).Status
}
