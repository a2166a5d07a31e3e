package provider

import (
	"errors"
	"strings"

	"github.com/aws/smithy-go"
)

// errorCodes maps service error codes onto sentinels. Codes are shared across
// S3, IAM and Lambda where the meaning matches.
var errorCodes = map[string]error{
	// Missing resources.
	"NoSuchKey":                 ErrNotFound,
	"NotFound":                  ErrNotFound,
	"NoSuchBucket":              ErrNotFound,
	"NoSuchEntity":              ErrNotFound,
	"ResourceNotFoundException": ErrNotFound,

	// Existing or busy resources, rejected input.
	"BucketAlreadyOwnedByYou":        ErrAlreadyExists,
	"BucketAlreadyExists":            ErrAlreadyExists,
	"EntityAlreadyExists":            ErrAlreadyExists,
	"ResourceConflictException":      ErrConflict,
	"ConcurrentModification":         ErrConflict,
	"OperationAborted":               ErrConflict,
	"InvalidParameterValueException": ErrInvalidParameter,
	"MalformedPolicyDocument":        ErrInvalidParameter,
	"InvalidRequest":                 ErrInvalidParameter,

	// Auth.
	"AccessDenied":                ErrAccessDenied,
	"AccessDeniedException":       ErrAccessDenied,
	"Forbidden":                   ErrAccessDenied,
	"InvalidAccessKeyId":          ErrInvalidCredentials,
	"SignatureDoesNotMatch":       ErrInvalidCredentials,
	"UnrecognizedClientException": ErrInvalidCredentials,
	"ExpiredToken":                ErrInvalidCredentials,

	// Throttling and availability.
	"SlowDown":                 ErrThrottled,
	"Throttling":               ErrThrottled,
	"ThrottlingException":      ErrThrottled,
	"TooManyRequestsException": ErrThrottled,
	"RequestLimitExceeded":     ErrThrottled,
	"ServiceUnavailable":       ErrProviderUnavailable,
	"ServiceException":         ErrProviderUnavailable,
	"ServiceFailure":           ErrProviderUnavailable,
	"InternalError":            ErrProviderUnavailable,
}

// Wrap converts an SDK error into a ProviderError whose Err is the matching
// sentinel when one is known. A nil err returns nil.
func Wrap(service Service, op, resource string, err error) error {
	if err == nil {
		return nil
	}

	wrapped := &ProviderError{
		Op:       op,
		Service:  service,
		Resource: resource,
		Err:      err,
	}

	if sentinel := classify(err); sentinel != nil {
		wrapped.Err = sentinel
		wrapped.Cause = err
	}
	return wrapped
}

func classify(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if sentinel, ok := errorCodes[apiErr.ErrorCode()]; ok {
			return sentinel
		}
		return nil
	}

	// Fallback: some transport errors only surface the code in the message.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "NoSuchKey") || strings.Contains(msg, "NoSuchBucket") || strings.Contains(msg, "404"):
		return ErrNotFound
	case strings.Contains(msg, "AccessDenied") || strings.Contains(msg, "Forbidden") || strings.Contains(msg, "403"):
		return ErrAccessDenied
	case strings.Contains(msg, "InvalidAccessKeyId") || strings.Contains(msg, "SignatureDoesNotMatch"):
		return ErrInvalidCredentials
	case strings.Contains(msg, "SlowDown") || strings.Contains(msg, "Throttling") || strings.Contains(msg, "429"):
		return ErrThrottled
	case strings.Contains(msg, "ServiceUnavailable") || strings.Contains(msg, "503"):
		return ErrProviderUnavailable
	}
	return nil
}
