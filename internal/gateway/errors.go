// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package gateway

import (
	"fmt"
	"time"
)

// ValidationError reports bad input. It is returned before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// TimeoutError reports a request that exceeded its time bound. It is not retried.
type TimeoutError struct {
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out after %s; service may be unavailable", e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// APIError reports a non-2xx status or a body in none of the known shapes.
// Body keeps the raw response (truncated) for diagnostics.
type APIError struct {
	StatusCode int
	Body       string
	Reason     string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("gateway error (HTTP %d): %s", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("gateway error (HTTP %d): %s", e.StatusCode, e.Body)
}
