package quota

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	quotaCallsUsed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marvel_quota_calls_used",
		Help: "Upstream calls recorded for the current UTC day",
	})

	quotaBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marvel_quota_blocks_total",
		Help: "Total number of calls blocked because the daily quota is spent",
	})

	quotaThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marvel_quota_throttles_total",
		Help: "Total number of calls throttled because the daily quota is nearly spent",
	})
)

// Config holds tracker thresholds.
type Config struct {
	DailyLimit       int
	WarningThreshold int
	// ThrottleDelay is the pause applied in the warning band. 0 disables it.
	ThrottleDelay time.Duration
}

// DefaultConfig returns thresholds for the public developer tier.
func DefaultConfig() Config {
	return Config{
		DailyLimit:       DefaultDailyLimit,
		WarningThreshold: DefaultWarningThreshold,
		ThrottleDelay:    DefaultThrottleDelay,
	}
}

// Tracker counts upstream calls and gates new ones. A nil *Tracker is valid
// and allows everything, which is how quota tracking is switched off.
type Tracker struct {
	redis  *redis.Client
	config Config
	logger zerolog.Logger
	now    func() time.Time
}

// NewTracker creates a tracker backed by redisClient.
func NewTracker(redisClient *redis.Client, cfg Config, logger zerolog.Logger) *Tracker {
	if cfg.DailyLimit <= 0 {
		cfg.DailyLimit = DefaultDailyLimit
	}
	if cfg.WarningThreshold < 0 {
		cfg.WarningThreshold = 0
	}
	return &Tracker{
		redis:  redisClient,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

// GetState reads today's counters from Redis. Missing keys mean nothing has
// been spent yet.
func (t *Tracker) GetState(ctx context.Context) (*QuotaState, error) {
	now := t.now()

	used, err := t.redis.Get(ctx, callsKey(now)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get calls used: %w", err)
	}

	exhaustedUntil, err := t.redis.Get(ctx, RedisKeyExhaustedUntil).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get exhausted until: %w", err)
	}

	state := &QuotaState{
		CallsUsed:        used,
		DailyLimit:       t.config.DailyLimit,
		WarningThreshold: t.config.WarningThreshold,
		ResetAt:          nextReset(now),
		LastUpdate:       now,
	}
	if exhaustedUntil > 0 {
		state.ExhaustedUntil = time.Unix(exhaustedUntil, 0)
	}

	quotaCallsUsed.Set(float64(used))

	return state, nil
}

// RecordCall counts one issued call against today's budget.
func (t *Tracker) RecordCall(ctx context.Context) error {
	if t == nil {
		return nil
	}

	now := t.now()
	key := callsKey(now)

	pipe := t.redis.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireAt(ctx, key, nextReset(now))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record call in redis: %w", err)
	}

	used := incr.Val()
	quotaCallsUsed.Set(float64(used))

	t.logger.Debug().
		Int64("calls_used", used).
		Int("daily_limit", t.config.DailyLimit).
		Msg("Quota call recorded")

	return nil
}

// RecordResponse inspects an upstream status. A 429 marks the quota as
// exhausted until the next reset.
func (t *Tracker) RecordResponse(ctx context.Context, statusCode int) error {
	if t == nil || statusCode != http.StatusTooManyRequests {
		return nil
	}

	reset := nextReset(t.now())
	if err := t.redis.Set(ctx, RedisKeyExhaustedUntil, reset.Unix(), time.Until(reset)).Err(); err != nil {
		return fmt.Errorf("store exhausted flag in redis: %w", err)
	}

	t.logger.Error().
		Time("reset_at", reset).
		Msg("Upstream quota exhausted - calls blocked until reset")

	return nil
}

// ShouldAllowRequest returns false when the budget is spent. In the warning
// band it pauses for the throttle delay first; a cancelled ctx ends the pause
// with ctx.Err().
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	if t == nil {
		return true, nil
	}

	state, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get quota state: %w", err)
	}

	if state.NeedsCriticalBlock() {
		t.logger.Error().
			Int("calls_used", state.CallsUsed).
			Int("daily_limit", state.DailyLimit).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("Upstream quota exhausted - blocking call")

		quotaBlocksTotal.Inc()
		return false, nil
	}

	if state.NeedsThrottling() {
		t.logger.Warn().
			Int("remaining", state.Remaining()).
			Msg("Upstream quota low - throttling call")

		quotaThrottlesTotal.Inc()
		if t.config.ThrottleDelay > 0 {
			timer := time.NewTimer(t.config.ThrottleDelay)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return true, nil
}

// Ping checks the Redis connection.
func (t *Tracker) Ping(ctx context.Context) error {
	if t == nil {
		return nil
	}
	return t.redis.Ping(ctx).Err()
}
