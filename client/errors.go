// Copyright 2026 The Subconscious Systems Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-json-experiment/json"

	subconscious "github.com/subconscious-systems/subconscious-go"
)

// ValidationError represents a client-side validation error, raised
// before any request is sent.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// errorBody is the machine-readable error payload. The API nests it under
// an "error" key; older gateways return the fields at the top level, so
// both shapes are accepted.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
}

type errorResponse struct {
	Code    string     `json:"code"`
	Message string     `json:"message"`
	Details string     `json:"details"`
	Error   *errorBody `json:"error"`
}

const maxErrorBody = 64 << 10

// parseAPIError maps a non-2xx response to a *subconscious.Error. The
// error kind comes from the server's machine-readable code when the body
// parses, and falls back to a status-derived kind otherwise.
func parseAPIError(resp *http.Response) error {
	apiErr := &subconscious.Error{
		HTTPStatus: resp.StatusCode,
		RequestID:  resp.Header.Get(requestIDHeader),
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var parsed errorResponse
	if err := json.Unmarshal(body, &parsed); err == nil {
		eb := errorBody{Code: parsed.Code, Message: parsed.Message, Details: parsed.Details}
		if parsed.Error != nil {
			eb = *parsed.Error
		}
		apiErr.Code = eb.Code
		apiErr.Message = eb.Message
		if eb.Details != "" {
			apiErr.Message = eb.Details
		}
	}

	if kind, ok := subconscious.KindFromCode(apiErr.Code); ok {
		apiErr.Kind = kind
	} else {
		apiErr.Kind = subconscious.KindFromStatus(resp.StatusCode)
	}

	if apiErr.Message == "" {
		if text := strings.TrimSpace(string(body)); text != "" && len(text) < 256 {
			apiErr.Message = text
		} else {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
	}
	return apiErr
}
