// Package ratelimit tracks Customer.io throttling (HTTP 429) in Redis so
// every proxy replica backs off from the upstream together.
//
// The tracker never stores cursors or segment data. It only records how long
// outbound calls should pause after the upstream asked us to slow down.
package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Redis keys for throttle state storage.
const (
	RedisKeyBlockedUntil = "cio:throttle:blocked_until"
	RedisKeyEvents       = "cio:throttle:events"
)

// Retry-After bounds.
const (
	// DefaultRetryAfter applies when a 429 carries no usable Retry-After.
	DefaultRetryAfter = 1 * time.Second

	// MaxRetryAfter caps the cooldown a single 429 can impose.
	MaxRetryAfter = 60 * time.Second
)

// ThrottleState is the shared upstream throttle state.
type ThrottleState struct {
	// BlockedUntil is when outbound calls may resume. Zero when not throttled.
	BlockedUntil time.Time `json:"blocked_until"`

	// Events counts 429 responses observed by all replicas.
	Events int64 `json:"events"`
}

// IsThrottled reports whether calls made at now must wait.
func (s *ThrottleState) IsThrottled(now time.Time) bool {
	return now.Before(s.BlockedUntil)
}

// TimeUntilClear returns how long to wait from now. Returns 0 if clear.
func (s *ThrottleState) TimeUntilClear(now time.Time) time.Duration {
	d := s.BlockedUntil.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// ParseRetryAfter reads a Retry-After header value (delta-seconds or HTTP
// date) relative to now, clamped to [DefaultRetryAfter, MaxRetryAfter].
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return DefaultRetryAfter
	}

	var d time.Duration
	if secs, err := strconv.Atoi(value); err == nil {
		d = time.Duration(secs) * time.Second
	} else if at, err := http.ParseTime(value); err == nil {
		d = at.Sub(now)
	} else {
		return DefaultRetryAfter
	}

	switch {
	case d < DefaultRetryAfter:
		return DefaultRetryAfter
	case d > MaxRetryAfter:
		return MaxRetryAfter
	default:
		return d
	}
}
