// Copyright 2026 The Subconscious Systems Authors
// SPDX-License-Identifier: Apache-2.0

package subconscious

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies API errors into a small taxonomy callers can
// branch on.
type ErrorKind string

// Error kinds.
const (
	ErrorKindAuthentication ErrorKind = "authentication"
	ErrorKindRateLimit      ErrorKind = "rate_limit"
	ErrorKindNotFound       ErrorKind = "not_found"
	ErrorKindValidation     ErrorKind = "validation"
	ErrorKindAPI            ErrorKind = "api"
)

// Common errors.
var (
	// ErrMissingBody is returned when a streaming response carries no
	// readable body.
	ErrMissingBody = errors.New("response has no readable body")

	// ErrNoCompletion is returned when a rich protocol stream ends
	// without a run.completed or run.failed event.
	ErrNoCompletion = errors.New("stream ended without completion event")

	// ErrStreamClosed is returned when reading from a closed stream.
	ErrStreamClosed = errors.New("stream is closed")
)

// Error represents an error response from the Subconscious API.
type Error struct {
	// Kind is the taxonomy bucket for this error.
	Kind ErrorKind
	// Code is the machine-readable error code reported by the server,
	// if any.
	Code string
	// Message is the human-readable description.
	Message string
	// HTTPStatus is the status code of the response that produced the
	// error.
	HTTPStatus int
	// RequestID correlates the error with a request, when the server
	// echoes one.
	RequestID string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("subconscious: %s error (HTTP %d, code %s): %s", e.Kind, e.HTTPStatus, e.Code, e.Message)
	}
	return fmt.Sprintf("subconscious: %s error (HTTP %d): %s", e.Kind, e.HTTPStatus, e.Message)
}

// Is implements errors.Is: two API errors match when their kinds match.
func (e *Error) Is(target error) bool {
	var apiErr *Error
	if errors.As(target, &apiErr) {
		return e.Kind == apiErr.Kind
	}
	return false
}

// KindFromCode maps a server-provided machine-readable code to an
// ErrorKind. The second result reports whether the code was recognized;
// callers fall back to KindFromStatus when it was not.
func KindFromCode(code string) (ErrorKind, bool) {
	switch code {
	case "authentication_error", "invalid_api_key", "permission_denied":
		return ErrorKindAuthentication, true
	case "rate_limit_exceeded":
		return ErrorKindRateLimit, true
	case "not_found", "run_not_found", "engine_not_found":
		return ErrorKindNotFound, true
	case "validation_error", "invalid_request":
		return ErrorKindValidation, true
	default:
		return ErrorKindAPI, false
	}
}

// KindFromStatus derives an ErrorKind from an HTTP status code. It is the
// fallback when the error body carries no usable machine code.
func KindFromStatus(status int) ErrorKind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrorKindAuthentication
	case http.StatusTooManyRequests:
		return ErrorKindRateLimit
	case http.StatusNotFound:
		return ErrorKindNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrorKindValidation
	default:
		return ErrorKindAPI
	}
}

// IsAuthenticationError checks if an error is an authentication failure.
func IsAuthenticationError(err error) bool {
	return isKind(err, ErrorKindAuthentication)
}

// IsRateLimitError checks if an error is a rate-limit rejection.
func IsRateLimitError(err error) bool {
	return isKind(err, ErrorKindRateLimit)
}

// IsNotFoundError checks if an error is due to a missing run or engine.
func IsNotFoundError(err error) bool {
	return isKind(err, ErrorKindNotFound)
}

// IsValidationError checks if an error is due to an invalid request.
func IsValidationError(err error) bool {
	return isKind(err, ErrorKindValidation)
}

func isKind(err error, kind ErrorKind) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}
