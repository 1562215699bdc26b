// File: internal/ratelimit/memory.go
package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/audit"
	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/domain/models"
	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/utils/metrics"
)

// pruneThreshold caps the counter map before expired entries get swept.
const pruneThreshold = 10000

type counter struct {
	windowStart time.Time
	attempts    int
	alerted     bool
}

// MemoryLimiter is the default in-process fixed-window limiter. All state is
// a mutex-guarded map keyed by source identity.
type MemoryLimiter struct {
	mu       sync.Mutex
	counters map[string]*counter
	settings Settings
	auditor  *audit.Auditor
	logger   *zap.Logger
	now      func() time.Time
}

// NewMemoryLimiter creates an in-memory limiter.
func NewMemoryLimiter(s Settings, auditor *audit.Auditor, logger *zap.Logger) *MemoryLimiter {
	return &MemoryLimiter{
		counters: make(map[string]*counter),
		settings: s,
		auditor:  auditor,
		logger:   logger.Named("rate_limiter"),
		now:      time.Now,
	}
}

// UpdateSettings hot-swaps the limiter tunables.
func (l *MemoryLimiter) UpdateSettings(s Settings) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.settings = s
}

// RecordAttempt counts one attempt and raises the exceedance alert when the
// identity first crosses the threshold within the current window.
func (l *MemoryLimiter) RecordAttempt(ctx context.Context, sourceIdentity string, succeeded bool) {
	l.mu.Lock()
	s := l.settings
	if succeeded && s.SkipSuccessful {
		l.mu.Unlock()
		return
	}

	now := l.now()
	c, ok := l.counters[sourceIdentity]
	if !ok || now.Sub(c.windowStart) >= s.Window {
		c = &counter{windowStart: now}
		l.counters[sourceIdentity] = c
	}
	c.attempts++

	raiseAlert := c.attempts > s.MaxAttempts && !c.alerted
	if raiseAlert {
		c.alerted = true
	}
	attempts := c.attempts

	if len(l.counters) > pruneThreshold {
		l.prune(now, s.Window)
	}
	l.mu.Unlock()

	if raiseAlert {
		metrics.RateLimitExceededTotal.Inc()
		l.logger.Warn("Rate limit exceeded",
			zap.String("source", sourceIdentity),
			zap.Int("attempts", attempts),
			zap.Int("max_attempts", s.MaxAttempts),
			zap.Duration("window", s.Window),
		)
		l.auditor.SecurityAlert(AlertRateLimitExceeded, models.SeverityHigh,
			audit.Entry{SourceIP: sourceIdentity},
			map[string]interface{}{
				"attempts":     attempts,
				"max_attempts": s.MaxAttempts,
				"window_ms":    s.Window.Milliseconds(),
			},
		)
	}
}

// Throttled reports whether the identity is over budget in the current window.
func (l *MemoryLimiter) Throttled(ctx context.Context, sourceIdentity string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.counters[sourceIdentity]
	if !ok {
		return false
	}
	if l.now().Sub(c.windowStart) >= l.settings.Window {
		return false
	}
	return c.attempts > l.settings.MaxAttempts
}

// prune drops counters whose window has passed. Caller holds the mutex.
func (l *MemoryLimiter) prune(now time.Time, window time.Duration) {
	for id, c := range l.counters {
		if now.Sub(c.windowStart) >= window {
			delete(l.counters, id)
		}
	}
}
