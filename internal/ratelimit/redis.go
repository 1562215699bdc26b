// File: internal/ratelimit/redis.go
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/audit"
	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/domain/models"
	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/utils/metrics"
)

// RedisLimiter is a fixed-window limiter backed by Redis INCR/EXPIRE, for
// deployments where several gateway replicas must share one attempt budget.
// On Redis errors it fails open: an unreachable counter store must not lock
// every caller out.
type RedisLimiter struct {
	client  *redis.Client
	auditor *audit.Auditor
	logger  *zap.Logger

	mu       sync.RWMutex
	settings Settings
}

// NewRedisLimiter creates a Redis-backed limiter.
func NewRedisLimiter(client *redis.Client, s Settings, auditor *audit.Auditor, logger *zap.Logger) *RedisLimiter {
	return &RedisLimiter{
		client:   client,
		settings: s,
		auditor:  auditor,
		logger:   logger.Named("rate_limiter_redis"),
	}
}

// UpdateSettings hot-swaps the limiter tunables.
func (l *RedisLimiter) UpdateSettings(s Settings) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.settings = s
}

func (l *RedisLimiter) current() Settings {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.settings
}

func attemptKey(id string) string { return fmt.Sprintf("authrate:attempts:%s", id) }
func alertKey(id string) string   { return fmt.Sprintf("authrate:alerted:%s", id) }

// alertMarkerTTL picks the expiry for the exceedance marker. The remaining
// counter TTL is used when Redis reports one; PTTL's negative sentinels for a
// missing or non-expiring key fall back to a full window.
func alertMarkerTTL(remaining, window time.Duration) time.Duration {
	if remaining > 0 {
		return remaining
	}
	return window
}

// RecordAttempt counts one attempt in the identity's current window.
func (l *RedisLimiter) RecordAttempt(ctx context.Context, sourceIdentity string, succeeded bool) {
	s := l.current()
	if succeeded && s.SkipSuccessful {
		return
	}

	key := attemptKey(sourceIdentity)
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		l.logger.Error("Failed to increment attempt counter", zap.Error(err), zap.String("source", sourceIdentity))
		return
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, s.Window).Err(); err != nil {
			l.logger.Error("Failed to set attempt window expiry", zap.Error(err), zap.String("source", sourceIdentity))
		}
	}

	if int(count) <= s.MaxAttempts {
		return
	}

	// SetNX makes the exceedance alert fire once per window across replicas.
	// The marker expires together with the attempt counter, not a full window
	// later, so suppression never bleeds into the next window.
	remaining, terr := l.client.PTTL(ctx, key).Result()
	if terr != nil {
		remaining = 0
	}
	first, err := l.client.SetNX(ctx, alertKey(sourceIdentity), 1, alertMarkerTTL(remaining, s.Window)).Result()
	if err != nil {
		l.logger.Error("Failed to mark exceedance alert", zap.Error(err), zap.String("source", sourceIdentity))
		return
	}
	if !first {
		return
	}

	metrics.RateLimitExceededTotal.Inc()
	l.logger.Warn("Rate limit exceeded",
		zap.String("source", sourceIdentity),
		zap.Int64("attempts", count),
		zap.Int("max_attempts", s.MaxAttempts),
	)
	l.auditor.SecurityAlert(AlertRateLimitExceeded, models.SeverityHigh,
		audit.Entry{SourceIP: sourceIdentity},
		map[string]interface{}{
			"attempts":     count,
			"max_attempts": s.MaxAttempts,
			"window_ms":    s.Window.Milliseconds(),
		},
	)
}

// Throttled reports whether the identity is over budget in the current window.
func (l *RedisLimiter) Throttled(ctx context.Context, sourceIdentity string) bool {
	s := l.current()
	count, err := l.client.Get(ctx, attemptKey(sourceIdentity)).Int()
	if err != nil {
		if err != redis.Nil {
			l.logger.Error("Failed to read attempt counter", zap.Error(err), zap.String("source", sourceIdentity))
		}
		return false
	}
	return count > s.MaxAttempts
}
