// File: internal/handler/http/middleware/auth_middleware.go
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/audit"
	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/domain/errors"
	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/domain/models"
	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/identity"
	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/jwks"
	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/ratelimit"
	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/utils/metrics"
)

const (
	AuthHeaderKey  = "Authorization"
	AuthTypeBearer = "Bearer"

	// Keys attached to the gin context on acceptance.
	ContextUserKey          = "user"
	ContextCorrelationIDKey = "correlation_id"
	ContextAuthTimestampKey = "auth_timestamp"

	// CorrelationIDHeader propagates a caller-supplied correlation id; a
	// fresh one is generated when absent.
	CorrelationIDHeader = "X-Correlation-ID"

	// AlertKeySourceUnavailable is raised when validation fails because the
	// identity provider's key source is unreachable with nothing cached.
	AlertKeySourceUnavailable = "KEY_SOURCE_UNAVAILABLE"
)

// Rejection is the fixed-shape 401/429 response body. Internal failure
// detail never appears here; it goes to the audit log only.
type Rejection struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	CorrelationID    string `json:"correlation_id"`
	Timestamp        string `json:"timestamp"`
}

// TokenValidator validates a bearer token into canonical claims.
type TokenValidator interface {
	Validate(ctx context.Context, tokenString, sourceIP string) (*models.TokenClaims, error)
}

// AuthMiddleware orchestrates token validation, identity extraction, rate
// limiting and auditing into a single request-level accept/reject decision.
type AuthMiddleware struct {
	validator TokenValidator
	extractor *identity.Extractor
	auditor   *audit.Auditor
	limiter   ratelimit.Limiter
	caches    map[string]*jwks.Cache
	logger    *zap.Logger

	mu               sync.Mutex
	rateLimitEnabled bool
	rateLimit        ratelimit.Settings
}

// NewAuthMiddleware wires the authentication pipeline. caches is keyed by
// realm name and is consulted for health reporting and TTL reconfiguration.
func NewAuthMiddleware(
	validator TokenValidator,
	extractor *identity.Extractor,
	auditor *audit.Auditor,
	limiter ratelimit.Limiter,
	caches map[string]*jwks.Cache,
	rateLimitEnabled bool,
	rateLimit ratelimit.Settings,
	logger *zap.Logger,
) *AuthMiddleware {
	return &AuthMiddleware{
		validator:        validator,
		extractor:        extractor,
		auditor:          auditor,
		limiter:          limiter,
		caches:           caches,
		logger:           logger.Named("auth_middleware"),
		rateLimitEnabled: rateLimitEnabled,
		rateLimit:        rateLimit,
	}
}

// Overrides carries the tunables that may be hot-swapped without a restart.
// Nil fields keep their current value.
type Overrides struct {
	JWKSCacheTTL         *time.Duration
	RateLimitWindow      *time.Duration
	RateLimitMaxAttempts *int
}

// Configure hot-swaps tunables. Safe to call concurrently with in-flight
// validations: caches take the TTL atomically and the limiter guards its
// settings itself.
func (m *AuthMiddleware) Configure(o Overrides) {
	if o.JWKSCacheTTL != nil {
		for _, cache := range m.caches {
			cache.SetTTL(*o.JWKSCacheTTL)
		}
	}
	if o.RateLimitWindow == nil && o.RateLimitMaxAttempts == nil {
		return
	}
	m.mu.Lock()
	if o.RateLimitWindow != nil {
		m.rateLimit.Window = *o.RateLimitWindow
	}
	if o.RateLimitMaxAttempts != nil {
		m.rateLimit.MaxAttempts = *o.RateLimitMaxAttempts
	}
	settings := m.rateLimit
	m.mu.Unlock()
	m.limiter.UpdateSettings(settings)
}

// Healthy reports whether every realm's key source is currently reachable.
// It informs external health checks and never gates request handling.
func (m *AuthMiddleware) Healthy(ctx context.Context) bool {
	for _, cache := range m.caches {
		if err := cache.Healthy(ctx); err != nil {
			return false
		}
	}
	return true
}

// Handler returns the gin middleware. Terminal outcomes are exactly two:
// the request is forwarded with identity attached, or it is rejected with
// the fixed-shape body. Unexpected internal failures reject as
// invalid_token: authentication fails closed and never partially succeeds.
func (m *AuthMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(CorrelationIDHeader)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		c.Header(CorrelationIDHeader, correlationID)

		entry := audit.Entry{
			CorrelationID: correlationID,
			SourceIP:      c.ClientIP(),
			Resource:      c.Request.URL.Path,
			Action:        c.Request.Method,
		}

		tokenString, ok := bearerToken(c.GetHeader(AuthHeaderKey))
		if !ok {
			m.auditor.Failure(entry, errors.ErrMissingToken)
			m.recordAttempt(c, false)
			metrics.AuthAttemptsTotal.WithLabelValues(errors.CodeMissingToken).Inc()
			m.reject(c, http.StatusUnauthorized, errors.CodeMissingToken,
				"Authorization header with a Bearer token is required", correlationID)
			return
		}

		if m.throttled(c) {
			m.limiter.RecordAttempt(c.Request.Context(), c.ClientIP(), false)
			m.auditor.Failure(entry, errors.ErrRateLimited)
			metrics.AuthAttemptsTotal.WithLabelValues(errors.CodeRateLimited).Inc()
			m.reject(c, http.StatusTooManyRequests, errors.CodeRateLimited,
				"Too many authentication attempts, retry later", correlationID)
			return
		}

		claims, err := m.safeValidate(c.Request.Context(), tokenString, c.ClientIP())
		if err != nil {
			entry.Claims = nil
			m.recordAttempt(c, false)
			if !errors.IsUnauthorized(err) {
				// Outside the authentication taxonomy: an internal failure
				// that is failing closed. Worth an operator's attention.
				m.logger.Error("Token validation failed outside the authentication taxonomy",
					zap.Error(err),
					zap.String("correlation_id", correlationID),
				)
			}
			if errors.IsExpired(err) {
				m.auditor.TokenExpired(entry, err)
				metrics.AuthAttemptsTotal.WithLabelValues(errors.CodeTokenExpired).Inc()
				m.reject(c, http.StatusUnauthorized, errors.CodeTokenExpired,
					"Token has expired", correlationID)
				return
			}
			if errors.IsKeySourceFailure(err) {
				m.auditor.SecurityAlert(AlertKeySourceUnavailable, models.SeverityHigh, entry,
					map[string]interface{}{"component": "auth_middleware"})
			}
			m.auditor.Failure(entry, err)
			metrics.AuthAttemptsTotal.WithLabelValues(errors.CodeInvalidToken).Inc()
			m.reject(c, http.StatusUnauthorized, errors.CodeInvalidToken,
				"Token validation failed", correlationID)
			return
		}

		user := m.extractor.Extract(claims)
		entry.User = user
		entry.Claims = claims

		c.Set(ContextUserKey, user)
		c.Set(ContextCorrelationIDKey, correlationID)
		c.Set(ContextAuthTimestampKey, time.Now().UTC())

		m.auditor.Success(entry)
		m.recordAttempt(c, true)
		metrics.AuthAttemptsTotal.WithLabelValues("success").Inc()

		c.Next()
	}
}

// safeValidate shields the request path from panics inside validation; any
// such panic is treated as an invalid token, not a 5xx.
func (m *AuthMiddleware) safeValidate(ctx context.Context, tokenString, sourceIP string) (claims *models.TokenClaims, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Panic during token validation", zap.Any("panic", r))
			claims = nil
			err = fmt.Errorf("%w: validation panic", errors.ErrInternal)
		}
	}()
	return m.validator.Validate(ctx, tokenString, sourceIP)
}

func (m *AuthMiddleware) recordAttempt(c *gin.Context, succeeded bool) {
	if !m.rateLimitingEnabled() {
		return
	}
	m.limiter.RecordAttempt(c.Request.Context(), c.ClientIP(), succeeded)
}

func (m *AuthMiddleware) throttled(c *gin.Context) bool {
	if !m.rateLimitingEnabled() {
		return false
	}
	return m.limiter.Throttled(c.Request.Context(), c.ClientIP())
}

func (m *AuthMiddleware) rateLimitingEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rateLimitEnabled
}

func (m *AuthMiddleware) reject(c *gin.Context, status int, code, description, correlationID string) {
	c.AbortWithStatusJSON(status, Rejection{
		Error:            code,
		ErrorDescription: description,
		CorrelationID:    correlationID,
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
	})
}

// bearerToken extracts the token from an Authorization header of the exact
// form "Bearer <token>".
func bearerToken(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], AuthTypeBearer) {
		return "", false
	}
	tok := strings.TrimSpace(parts[1])
	if tok == "" {
		return "", false
	}
	return tok, true
}

// UserFromContext returns the identity attached by the middleware.
func UserFromContext(c *gin.Context) (*models.UserContext, bool) {
	raw, ok := c.Get(ContextUserKey)
	if !ok {
		return nil, false
	}
	user, ok := raw.(*models.UserContext)
	return user, ok
}

// CorrelationIDFromContext returns the request's correlation id.
func CorrelationIDFromContext(c *gin.Context) string {
	return c.GetString(ContextCorrelationIDKey)
}
