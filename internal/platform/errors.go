package platform

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorKind string

const (
	KindClient    ErrorKind = "client"
	KindAuth      ErrorKind = "auth"
	KindRateLimit ErrorKind = "rate_limit"
	KindTransient ErrorKind = "transient"
)

// APIError is the mapped form of a platform error response. Network
// failures map to a transient error with status code 0.
type APIError struct {
	StatusCode int
	Kind       ErrorKind
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform: %s error (status %d): %s", e.Kind, e.StatusCode, e.Message)
}

// Retryable reports whether another attempt could succeed. Auth and
// client errors never do.
func (e *APIError) Retryable() bool {
	return e.Kind == KindRateLimit || e.Kind == KindTransient
}

// IsRetryable classifies an arbitrary error from a platform call.
// Unknown error types are treated as transient.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return true
}

func classify(statusCode int) ErrorKind {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return KindAuth
	case statusCode == http.StatusTooManyRequests:
		return KindRateLimit
	case statusCode >= 500 || statusCode == 0:
		return KindTransient
	default:
		return KindClient
	}
}
