package client

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrInvalidResponse is returned when a 2xx body cannot be decoded.
	ErrInvalidResponse = errors.New("invalid upstream response")

	// ErrInvalidLimit is returned for a non-positive page size.
	ErrInvalidLimit = errors.New("limit must be positive")
)

// UpstreamError is a non-2xx answer from Customer.io. It carries the status
// and body unchanged so callers can mirror them.
type UpstreamError struct {
	StatusCode int
	ErrorClass ErrorClass
	Body       []byte
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("customer.io %s error (status %d): %s", e.ErrorClass, e.StatusCode, truncate(e.Body, 256))
}

// Details returns the body as structured JSON when it parses, else as text.
func (e *UpstreamError) Details() any {
	if len(e.Body) > 0 && json.Valid(e.Body) {
		return json.RawMessage(e.Body)
	}
	return string(e.Body)
}

// AsUpstreamError unwraps err into an *UpstreamError if it is one.
func AsUpstreamError(err error) (*UpstreamError, bool) {
	var upstreamErr *UpstreamError
	if errors.As(err, &upstreamErr) {
		return upstreamErr, true
	}
	return nil, false
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
