package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts all inbound requests.
	RequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_gateway_requests_total",
		Help: "The total number of requests",
	})

	// ResponsesTotal counts responses by status code.
	ResponsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_gateway_responses_total",
		Help: "The total number of responses by status code",
	}, []string{"status"})

	// RequestDuration measures request handling time.
	RequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "auth_gateway_request_duration_seconds",
		Help:    "The request duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// AuthAttemptsTotal counts authentication outcomes by result code.
	AuthAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_gateway_auth_attempts_total",
		Help: "The total number of authentication attempts by result",
	}, []string{"result"})

	// RateLimitExceededTotal counts rate limit exceedances.
	RateLimitExceededTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_gateway_rate_limit_exceeded_total",
		Help: "The total number of rate limit exceeded events",
	})

	// JWKSRefreshTotal counts key set refreshes by realm and outcome.
	JWKSRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_gateway_jwks_refresh_total",
		Help: "The total number of JWKS refresh attempts by outcome",
	}, []string{"endpoint", "status"})

	// SecurityAlertsTotal counts emitted security alerts by severity.
	SecurityAlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_gateway_security_alerts_total",
		Help: "The total number of security alerts by severity",
	}, []string{"severity"})

	// ServiceTokenRequestsTotal counts outbound token acquisitions by grant.
	ServiceTokenRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_gateway_service_token_requests_total",
		Help: "The total number of service token requests by grant and outcome",
	}, []string{"grant", "status"})
)
