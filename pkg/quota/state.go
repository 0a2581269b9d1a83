// Package quota tracks the upstream's daily call budget in Redis so that every
// proxy instance sees the same count, and gates outbound calls once the budget
// is spent or the upstream has answered 429.
package quota

import (
	"time"
)

// Redis keys for quota state. The calls key is suffixed with the UTC date.
const (
	RedisKeyCallsPrefix    = "marvel:quota:calls:"
	RedisKeyExhaustedUntil = "marvel:quota:exhausted_until"
)

// Defaults for the public developer tier.
const (
	DefaultDailyLimit       = 3000
	DefaultWarningThreshold = 100
	DefaultThrottleDelay    = 1 * time.Second
)

// QuotaState is a snapshot of today's budget.
type QuotaState struct {
	// CallsUsed is the number of outbound calls recorded today (UTC).
	CallsUsed int `json:"calls_used"`

	// DailyLimit is the configured budget.
	DailyLimit int `json:"daily_limit"`

	// WarningThreshold is the remaining-call count below which calls are
	// throttled.
	WarningThreshold int `json:"warning_threshold"`

	// ResetAt is the next UTC midnight.
	ResetAt time.Time `json:"reset_at"`

	// ExhaustedUntil is set after the upstream answered 429. Zero if unset.
	ExhaustedUntil time.Time `json:"exhausted_until"`

	// LastUpdate is when this snapshot was read.
	LastUpdate time.Time `json:"last_update"`
}

// Remaining returns the calls left today, never negative.
func (s *QuotaState) Remaining() int {
	if r := s.DailyLimit - s.CallsUsed; r > 0 {
		return r
	}
	return 0
}

// IsExhausted reports whether the upstream has refused calls and the refusal
// window is still open.
func (s *QuotaState) IsExhausted() bool {
	return !s.ExhaustedUntil.IsZero() && time.Now().Before(s.ExhaustedUntil)
}

// NeedsCriticalBlock returns true if no call may be issued.
func (s *QuotaState) NeedsCriticalBlock() bool {
	return s.Remaining() <= 0 || s.IsExhausted()
}

// NeedsThrottling returns true if calls are allowed but should be slowed down.
func (s *QuotaState) NeedsThrottling() bool {
	return !s.NeedsCriticalBlock() && s.Remaining() < s.WarningThreshold
}

// IsHealthy returns true when neither blocking nor throttling applies.
func (s *QuotaState) IsHealthy() bool {
	return !s.NeedsCriticalBlock() && !s.NeedsThrottling()
}

// TimeUntilReset returns the duration until the budget resets, or 0.
func (s *QuotaState) TimeUntilReset() time.Duration {
	d := time.Until(s.ResetAt)
	if d < 0 {
		return 0
	}
	return d
}

// nextReset returns the UTC midnight following t.
func nextReset(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}

// callsKey returns the Redis key counting calls on t's UTC date.
func callsKey(t time.Time) string {
	return RedisKeyCallsPrefix + t.UTC().Format("2006-01-02")
}
