package render

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for render operations.
var (
	// ErrInvalidRequest indicates a submission failed validation.
	ErrInvalidRequest = errors.New("invalid render request")

	// ErrUpstream indicates the rendering service could not be reached or
	// rejected the call.
	ErrUpstream = errors.New("rendering service error")

	// ErrFatal indicates the rendering service reported a fatal render error.
	ErrFatal = errors.New("render failed")

	// ErrPollTimeout indicates the job did not reach a terminal state in time.
	ErrPollTimeout = errors.New("render did not finish in time")
)

// ValidationError describes one rejected request field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return "render request: " + e.Field + ": " + e.Message
}

// Unwrap returns ErrInvalidRequest.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidRequest
}

// FatalError carries the terminal status of a failed render.
type FatalError struct {
	Progress Progress
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	if len(e.Progress.Errors) > 0 {
		return fmt.Sprintf("render %s failed: %s", e.Progress.RenderID, e.Progress.Errors[0])
	}
	return fmt.Sprintf("render %s failed", e.Progress.RenderID)
}

// Unwrap returns ErrFatal.
func (e *FatalError) Unwrap() error {
	return ErrFatal
}

// TimeoutError reports how long and how often a job was polled before giving up.
type TimeoutError struct {
	RenderID string
	Queries  int
	Waited   time.Duration
	Last     *Progress
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("render %s not finished after %s (%d status queries)", e.RenderID, e.Waited.Round(time.Millisecond), e.Queries)
}

// Unwrap returns ErrPollTimeout.
func (e *TimeoutError) Unwrap() error {
	return ErrPollTimeout
}

// UpstreamError wraps a failed call to the rendering service.
type UpstreamError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return "render " + e.Op + ": " + e.Err.Error()
}

// Unwrap exposes both ErrUpstream and the cause.
func (e *UpstreamError) Unwrap() []error {
	return []error{ErrUpstream, e.Err}
}
