package pagination

import (
	"context"
	"errors"
	"time"

	"github.com/Sternrassler/cio-segment-proxy/pkg/client"
)

// Pauses between sequential upstream calls.
const (
	// DefaultWalkDelay separates cursor-walk steps.
	DefaultWalkDelay = 500 * time.Millisecond

	// DefaultPageDelay separates aggregation pages.
	DefaultPageDelay = 1 * time.Second
)

// ErrExhausted means the segment has fewer pages than the requested page number.
var ErrExhausted = errors.New("segment has fewer pages than requested")

// PageFetcher fetches one membership page. *client.Client implements it.
type PageFetcher interface {
	FetchPage(ctx context.Context, segmentID string, limit int, cursor string) (*client.Page, error)
}

// PauseFunc blocks for d.
type PauseFunc func(d time.Duration)

// Config holds pacing configuration shared by the walker, aggregator and pager.
type Config struct {
	WalkDelay time.Duration
	PageDelay time.Duration

	// Pause defaults to time.Sleep.
	Pause PauseFunc
}

// DefaultConfig returns the upstream-friendly pacing defaults.
func DefaultConfig() Config {
	return Config{
		WalkDelay: DefaultWalkDelay,
		PageDelay: DefaultPageDelay,
		Pause:     time.Sleep,
	}
}

func (c Config) withDefaults() Config {
	if c.Pause == nil {
		c.Pause = time.Sleep
	}
	if c.WalkDelay < 0 {
		c.WalkDelay = 0
	}
	if c.PageDelay < 0 {
		c.PageDelay = 0
	}
	return c
}
