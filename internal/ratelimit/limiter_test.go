// File: internal/ratelimit/limiter_test.go
package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/audit"
	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/domain/models"
)

type recordingSink struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func (s *recordingSink) Emit(event models.AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) alerts(alertType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.EventType == models.AuditSecurityAlert && e.Action == alertType {
			n++
		}
	}
	return n
}

func newTestLimiter(s Settings) (*MemoryLimiter, *recordingSink, *time.Time) {
	sink := &recordingSink{}
	auditor := audit.NewAuditor(audit.Config{Enabled: true}, sink, zap.NewNop())
	l := NewMemoryLimiter(s, auditor, zap.NewNop())
	now := time.Now()
	l.now = func() time.Time { return now }
	return l, sink, &now
}

func TestLimiterAllowsWithinBudget(t *testing.T) {
	l, sink, _ := newTestLimiter(Settings{Window: time.Minute, MaxAttempts: 5})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.False(t, l.Throttled(ctx, "10.0.0.1"))
		l.RecordAttempt(ctx, "10.0.0.1", false)
	}

	assert.Equal(t, 0, sink.alerts(AlertRateLimitExceeded))
}

func TestLimiterAlertsExactlyOncePerWindow(t *testing.T) {
	l, sink, _ := newTestLimiter(Settings{Window: time.Minute, MaxAttempts: 5})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		l.RecordAttempt(ctx, "10.0.0.1", false)
	}
	// The 6th failed attempt crosses the budget and raises the alert.
	assert.False(t, l.Throttled(ctx, "10.0.0.1"))
	l.RecordAttempt(ctx, "10.0.0.1", false)
	assert.Equal(t, 1, sink.alerts(AlertRateLimitExceeded))

	// Subsequent throttled attempts in the same window stay silent.
	assert.True(t, l.Throttled(ctx, "10.0.0.1"))
	l.RecordAttempt(ctx, "10.0.0.1", false)
	l.RecordAttempt(ctx, "10.0.0.1", false)
	assert.Equal(t, 1, sink.alerts(AlertRateLimitExceeded))
}

func TestLimiterAlertSeverityHigh(t *testing.T) {
	l, sink, _ := newTestLimiter(Settings{Window: time.Minute, MaxAttempts: 1})
	ctx := context.Background()

	l.RecordAttempt(ctx, "10.0.0.1", false)
	l.RecordAttempt(ctx, "10.0.0.1", false)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Len(t, sink.events, 1)
	assert.Equal(t, string(models.SeverityHigh), sink.events[0].Metadata["severity"])
}

func TestLimiterWindowReset(t *testing.T) {
	l, sink, now := newTestLimiter(Settings{Window: time.Minute, MaxAttempts: 2})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		l.RecordAttempt(ctx, "10.0.0.1", false)
	}
	assert.True(t, l.Throttled(ctx, "10.0.0.1"))
	assert.Equal(t, 1, sink.alerts(AlertRateLimitExceeded))

	*now = now.Add(time.Minute + time.Second)
	assert.False(t, l.Throttled(ctx, "10.0.0.1"))

	// A fresh window counts from zero and may alert again.
	for i := 0; i < 3; i++ {
		l.RecordAttempt(ctx, "10.0.0.1", false)
	}
	assert.Equal(t, 2, sink.alerts(AlertRateLimitExceeded))
}

func TestLimiterSkipSuccessful(t *testing.T) {
	l, sink, _ := newTestLimiter(Settings{Window: time.Minute, MaxAttempts: 2, SkipSuccessful: true})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		l.RecordAttempt(ctx, "10.0.0.1", true)
	}
	assert.False(t, l.Throttled(ctx, "10.0.0.1"))
	assert.Equal(t, 0, sink.alerts(AlertRateLimitExceeded))
}

func TestLimiterIsolatesIdentities(t *testing.T) {
	l, _, _ := newTestLimiter(Settings{Window: time.Minute, MaxAttempts: 1})
	ctx := context.Background()

	l.RecordAttempt(ctx, "10.0.0.1", false)
	l.RecordAttempt(ctx, "10.0.0.1", false)

	assert.True(t, l.Throttled(ctx, "10.0.0.1"))
	assert.False(t, l.Throttled(ctx, "10.0.0.2"))
}

func TestLimiterUpdateSettings(t *testing.T) {
	l, _, _ := newTestLimiter(Settings{Window: time.Minute, MaxAttempts: 10})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		l.RecordAttempt(ctx, "10.0.0.1", false)
	}
	assert.False(t, l.Throttled(ctx, "10.0.0.1"))

	l.UpdateSettings(Settings{Window: time.Minute, MaxAttempts: 3})
	assert.True(t, l.Throttled(ctx, "10.0.0.1"))
}

func TestAlertMarkerTTLFollowsCounter(t *testing.T) {
	// Mid-window exceedance inherits the counter's remaining lifetime.
	assert.Equal(t, 20*time.Second, alertMarkerTTL(20*time.Second, time.Minute))

	// PTTL sentinels: -2 for a missing key, -1 for a key without expiry.
	assert.Equal(t, time.Minute, alertMarkerTTL(-2*time.Millisecond, time.Minute))
	assert.Equal(t, time.Minute, alertMarkerTTL(-1*time.Millisecond, time.Minute))
	assert.Equal(t, time.Minute, alertMarkerTTL(0, time.Minute))
}
