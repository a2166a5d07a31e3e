package provider

import (
	"errors"
	"fmt"
)

// Sentinel errors for AWS operations.
var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates a create call hit an existing resource.
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrConflict indicates the resource is busy (e.g. a function update in progress).
	ErrConflict = errors.New("resource conflict")

	// ErrAccessDenied indicates insufficient permissions.
	ErrAccessDenied = errors.New("access denied")

	// ErrInvalidCredentials indicates authentication failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidParameter indicates the service rejected a request parameter.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrProviderUnavailable indicates the service is unavailable.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrThrottled indicates the request was rate limited by the service.
	ErrThrottled = errors.New("request throttled")
)

// ProviderError wraps a service error with the operation and resource involved.
type ProviderError struct {
	// Op is the API operation that failed (e.g., "CreateBucket", "Invoke").
	Op string

	// Service is the AWS service called.
	Service Service

	// Resource names the bucket, role, policy or function, if applicable.
	Resource string

	// Err is the underlying error, usually one of the sentinels above.
	Err error

	// Cause is the original SDK error when Err was replaced by a sentinel.
	Cause error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	msg := e.Err.Error()
	if e.Cause != nil && e.Cause != e.Err {
		msg = msg + " (" + e.Cause.Error() + ")"
	}
	if e.Resource != "" {
		return fmt.Sprintf("%s %s: %s: %s", e.Service, e.Op, e.Resource, msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Service, e.Op, msg)
}

// Unwrap returns both the sentinel and the SDK cause for errors.Is/As support.
func (e *ProviderError) Unwrap() []error {
	if e.Cause == nil || e.Cause == e.Err {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists returns true if a create call hit an existing resource.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsConflict returns true if the resource was busy.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsAccessDenied returns true if the error indicates insufficient permissions.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsInvalidCredentials returns true if the error indicates authentication failed.
func IsInvalidCredentials(err error) bool {
	return errors.Is(err, ErrInvalidCredentials)
}

// IsInvalidParameter returns true if the service rejected a request parameter.
func IsInvalidParameter(err error) bool {
	return errors.Is(err, ErrInvalidParameter)
}

// IsProviderUnavailable returns true if the error indicates the service is unavailable.
func IsProviderUnavailable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable)
}

// IsThrottled returns true if the error indicates the request was rate limited.
func IsThrottled(err error) bool {
	return errors.Is(err, ErrThrottled)
}
