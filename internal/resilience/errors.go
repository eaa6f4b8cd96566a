// Package resilience classifies upstream registry failures and retries the
// ones worth retrying.
package resilience

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError is a non-2xx response from an upstream HTTP API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Body)
}

// NewStatusError builds a StatusError, truncating the body to keep logs small.
func NewStatusError(statusCode int, body []byte) *StatusError {
	const maxBody = 512
	if len(body) > maxBody {
		body = body[:maxBody]
	}
	return &StatusError{StatusCode: statusCode, Body: string(body)}
}

// StatusCode returns the HTTP status carried by err, or 0 if err has none.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// IsRateLimited reports whether err (or anything it wraps) is a 429.
func IsRateLimited(err error) bool {
	return StatusCode(err) == http.StatusTooManyRequests
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
