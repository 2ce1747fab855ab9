// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package insightvm

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"syscall"
)

// APIError is a non-2xx response from the InsightVM console that is not
// worth retrying (client errors other than 429).
type APIError struct {
	Endpoint   string
	StatusCode int
	Status     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider API error: %s returned %s", e.Endpoint, e.Status)
}

// AuthenticationError is an HTTP 401: the configured credentials were
// rejected. Fatal, never retried.
type AuthenticationError struct {
	APIError
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed (401) at %s: check username and password", e.Endpoint)
}

// AuthorizationError is an HTTP 403: the credentials are valid but lack
// permission. Fatal, never retried.
type AuthorizationError struct {
	APIError
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("authorization failed (403) at %s: the account lacks permission", e.Endpoint)
}

// RetryableError is a transient provider failure (HTTP >= 500).
type RetryableError struct {
	APIError
}

// RateLimitError is an HTTP 429. RetryAfter carries the advertised wait in
// seconds; zero when the header was absent or unparseable.
type RateLimitError struct {
	APIError
	RetryAfter int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited (429) at %s, retry after %ds", e.Endpoint, e.RetryAfter)
}

// ValidationError is a fatal configuration or connectivity problem detected
// before or during invocation validation.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// responseError classifies a non-2xx response into the error taxonomy.
func responseError(endpoint string, resp *http.Response) error {
	base := APIError{
		Endpoint:   endpoint,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return &AuthenticationError{base}
	case resp.StatusCode == http.StatusForbidden:
		return &AuthorizationError{base}
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return &RateLimitError{APIError: base, RetryAfter: retryAfter}
	case resp.StatusCode >= 500:
		return &RetryableError{base}
	default:
		return &base
	}
}

// isRetryable reports whether the request that produced err may be retried.
// Connection resets are inherently retryable regardless of classification.
func isRetryable(err error) bool {
	var retryable *RetryableError
	if errors.As(err, &retryable) {
		return true
	}
	var rateLimited *RateLimitError
	if errors.As(err, &rateLimited) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	// net/http wraps some resets into plain error strings
	if err != nil && strings.Contains(err.Error(), "connection reset") {
		return true
	}
	return false
}
