// File: internal/ratelimit/limiter.go
package ratelimit

import (
	"context"
	"time"
)

// AlertRateLimitExceeded is the alert type raised through the auditor when a
// source identity crosses its attempt budget.
const AlertRateLimitExceeded = "RATE_LIMIT_EXCEEDED"

// Settings are the hot-swappable limiter tunables.
type Settings struct {
	Window         time.Duration
	MaxAttempts    int
	SkipSuccessful bool
}

// Limiter throttles authentication attempts per source identity over a fixed
// window. Crossing the threshold raises RATE_LIMIT_EXCEEDED through the
// auditor exactly once per window exceedance.
type Limiter interface {
	// RecordAttempt counts one authentication attempt. Successful attempts
	// are excluded when SkipSuccessful is set.
	RecordAttempt(ctx context.Context, sourceIdentity string, succeeded bool)
	// Throttled reports whether the identity exceeded its budget in the
	// current window.
	Throttled(ctx context.Context, sourceIdentity string) bool
	// UpdateSettings hot-swaps the tunables; safe under concurrent use.
	UpdateSettings(s Settings)
}
