package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrUnknownProvider is returned when no backend is registered under the
// requested name. Never retried.
var ErrUnknownProvider = errors.New("unknown provider")

// ErrRateLimited is returned when a backend rejects the call with HTTP 429
// and no fallback provider is available
var ErrRateLimited = errors.New("rate limited")

// APIError is a non-2xx response from a generation backend
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsRetryable classifies transient errors: timeouts, connection failures,
// server errors, and rate limits. Other 4xx responses and unknown backends
// are permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnknownProvider) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// IsRateLimit reports whether err is an HTTP 429 from a backend
func IsRateLimit(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}
