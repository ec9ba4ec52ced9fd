package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for throttle tracking.
var (
	cioThrottleCooldownSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cio_throttle_cooldown_seconds",
		Help: "Cooldown imposed by the most recent upstream 429",
	})

	cioThrottleEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cio_throttle_events_total",
		Help: "Total number of upstream 429 responses observed by this replica",
	})

	cioThrottleWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cio_throttle_waits_total",
		Help: "Total number of outbound calls delayed by an active cooldown",
	})
)

// Tracker records upstream throttling in Redis and gates outbound calls.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
	now    func() time.Time
}

// NewTracker creates a new throttle tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
		now:    time.Now,
	}
}

// GetState retrieves the current throttle state from Redis.
// Returns a clear state if nothing is stored.
func (t *Tracker) GetState(ctx context.Context) (*ThrottleState, error) {
	state := &ThrottleState{}

	blockedMs, err := t.redis.Get(ctx, RedisKeyBlockedUntil).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get blocked until: %w", err)
	}
	if err == nil {
		state.BlockedUntil = time.UnixMilli(blockedMs)
	}

	events, err := t.redis.Get(ctx, RedisKeyEvents).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get throttle events: %w", err)
	}
	state.Events = events

	return state, nil
}

// Observe inspects one upstream response. Only 429 changes state: the
// cooldown is stored with a matching TTL so it clears itself.
func (t *Tracker) Observe(ctx context.Context, status int, headers http.Header) error {
	if status != http.StatusTooManyRequests {
		return nil
	}

	now := t.now()
	cooldown := ParseRetryAfter(headers.Get("Retry-After"), now)
	until := now.Add(cooldown)

	pipe := t.redis.Pipeline()
	pipe.Set(ctx, RedisKeyBlockedUntil, strconv.FormatInt(until.UnixMilli(), 10), cooldown)
	pipe.Incr(ctx, RedisKeyEvents)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store throttle state in redis: %w", err)
	}

	cioThrottleEventsTotal.Inc()
	cioThrottleCooldownSeconds.Set(cooldown.Seconds())

	t.logger.Warn().
		Dur("cooldown", cooldown).
		Time("blocked_until", until).
		Msg("Customer.io throttled request - pausing outbound calls")

	return nil
}

// Wait blocks while a cooldown is active. A Redis failure is logged and the
// call proceeds unthrottled.
func (t *Tracker) Wait(ctx context.Context) error {
	state, err := t.GetState(ctx)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Throttle state unavailable - proceeding")
		return nil
	}

	wait := state.TimeUntilClear(t.now())
	if wait <= 0 {
		return nil
	}

	cioThrottleWaitsTotal.Inc()
	t.logger.Debug().Dur("wait", wait).Msg("Waiting for upstream cooldown")

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("wait for upstream cooldown: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
