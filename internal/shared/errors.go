package shared

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// Configuration errors
	ErrConfiguration = errors.New("configuration error")
	ErrInvalidConfig = errors.New("invalid configuration")

	// Request errors
	ErrValidation      = errors.New("validation failed")
	ErrMissingArgument = errors.New("missing required argument")

	// Authentication errors
	ErrAuth           = errors.New("authentication failed")
	ErrNoRefreshToken = errors.New("no refresh token available")
	ErrTimeout        = errors.New("operation timed out")

	// Setup state errors
	ErrState = errors.New("invalid setup state")

	// Provider errors
	ErrUpstream = errors.New("upstream request failed")
)

// UpstreamError carries the provider's response for a failed token or API call.
//
// StatusCode is zero when the provider could not be reached at all.
type UpstreamError struct {
	StatusCode int
	Body       []byte
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%v: %v", ErrUpstream, e.Err)
	}
	return fmt.Sprintf("%v: status %d", ErrUpstream, e.StatusCode)
}

// Unwrap lets errors.Is match both [ErrUpstream] and the underlying cause.
func (e *UpstreamError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUpstream}
	}
	return []error{ErrUpstream, e.Err}
}

// Status returns the provider status, or 500 when there was none.
func (e *UpstreamError) Status() int {
	if e.StatusCode < 400 {
		return http.StatusInternalServerError
	}
	return e.StatusCode
}
