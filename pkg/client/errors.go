package client

import (
	"errors"
	"fmt"
)

// ErrQuotaExhausted is returned when the daily call budget blocks a request.
var ErrQuotaExhausted = errors.New("upstream quota exhausted")

// UpstreamError is a non-200 answer from the upstream.
type UpstreamError struct {
	Endpoint   string
	StatusCode int
	// Message is the endpoint-specific text shown to callers, e.g.
	// "Failed to fetch characters".
	Message string
	Err     error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s (status %d): %s: %v",
			e.Endpoint, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("upstream %s (status %d): %s",
		e.Endpoint, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Class returns the error class of the upstream status.
func (e *UpstreamError) Class() ErrorClass {
	switch {
	case e.StatusCode == 429:
		return ErrorClassRateLimit
	case e.StatusCode >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}
