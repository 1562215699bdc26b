// File: internal/audit/auditor.go
package audit

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	domainErrors "github.com/jan-ru/cap-oclif-keycloack-sub000/internal/domain/errors"
	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/domain/models"
	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/utils/metrics"
)

// Sink receives every emitted audit event in addition to the log stream.
// Implementations must be cheap; delivery is best effort and failures never
// reach the request path.
type Sink interface {
	Emit(event models.AuditEvent)
}

// Entry carries the per-request fields common to all emit operations.
type Entry struct {
	CorrelationID string
	SourceIP      string
	Resource      string
	Action        string
	User          *models.UserContext
	Claims        *models.TokenClaims
}

// Auditor emits structured, correlated audit events for every authentication
// outcome and security anomaly. Emission is synchronous but must never panic
// or error into the request path; a broken sink degrades to the zap stream,
// a broken zap core is swallowed.
type Auditor struct {
	logger        *zap.Logger
	enabled       bool
	includeClaims bool
	sink          Sink
}

// Config controls auditor behavior.
type Config struct {
	Enabled bool
	// IncludeClaims opts raw token claims into events. Off by default since
	// claims may contain PII.
	IncludeClaims bool
}

// NewAuditor creates an auditor. sink may be nil.
func NewAuditor(cfg Config, sink Sink, logger *zap.Logger) *Auditor {
	return &Auditor{
		logger:        logger.Named("auth_audit"),
		enabled:       cfg.Enabled,
		includeClaims: cfg.IncludeClaims,
		sink:          sink,
	}
}

// Success records an accepted authentication.
func (a *Auditor) Success(e Entry) {
	event := a.build(models.AuditAuthSuccess, e, models.AuditResultSuccess, nil)
	a.emit(event, zap.InfoLevel)
}

// Failure records a rejected authentication.
func (a *Auditor) Failure(e Entry, err error) {
	event := a.build(models.AuditAuthFailure, e, models.AuditResultFailure, err)
	a.emit(event, zap.WarnLevel)
}

// TokenExpired records a rejection caused specifically by token expiry.
func (a *Auditor) TokenExpired(e Entry, err error) {
	event := a.build(models.AuditTokenExpired, e, models.AuditResultFailure, err)
	a.emit(event, zap.WarnLevel)
}

// SecurityAlert records a security anomaly. HIGH severity alerts are raised
// through the error-level channel so operational tooling picks them up.
func (a *Auditor) SecurityAlert(alertType string, severity models.AuditSeverity, e Entry, details map[string]interface{}) {
	event := a.build(models.AuditSecurityAlert, e, models.AuditResultFailure, nil)
	event.Action = alertType
	if event.Metadata == nil {
		event.Metadata = make(map[string]interface{})
	}
	event.Metadata["severity"] = string(severity)
	for k, v := range details {
		event.Metadata[k] = v
	}
	metrics.SecurityAlertsTotal.WithLabelValues(string(severity)).Inc()

	level := zap.WarnLevel
	if severity == models.SeverityHigh {
		level = zap.ErrorLevel
	}
	a.emit(event, level)
}

func (a *Auditor) build(eventType models.AuditEventType, e Entry, result models.AuditResult, err error) models.AuditEvent {
	correlationID := e.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	event := models.AuditEvent{
		EventType:     eventType,
		CorrelationID: correlationID,
		Timestamp:     time.Now().UTC(),
		SourceIP:      e.SourceIP,
		Resource:      e.Resource,
		Action:        e.Action,
		Result:        result,
	}
	if e.User != nil {
		event.UserID = e.User.UserID
		event.Username = e.User.Username
	} else if e.Claims != nil {
		event.UserID = e.Claims.Subject
		event.Username = e.Claims.Username
	}
	if err != nil {
		event.ErrorCode = domainErrors.CodeFor(err)
		event.ErrorMessage = err.Error()
	}
	if a.includeClaims && e.Claims != nil {
		event.Metadata = map[string]interface{}{
			"claims": e.Claims,
		}
	}
	return event
}

// emit writes the event to the log stream and the optional sink. A logging
// failure must not affect the request outcome, hence the recover.
func (a *Auditor) emit(event models.AuditEvent, level zapcore.Level) {
	if !a.enabled {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			// Swallowed: audit must never throw into the request path.
			_ = r
		}
	}()

	fields := []zap.Field{
		zap.String("event_type", string(event.EventType)),
		zap.String("correlation_id", event.CorrelationID),
		zap.Time("timestamp", event.Timestamp),
		zap.String("result", string(event.Result)),
	}
	if event.SourceIP != "" {
		fields = append(fields, zap.String("source_ip", event.SourceIP))
	}
	if event.UserID != "" {
		fields = append(fields, zap.String("user_id", event.UserID))
	}
	if event.Username != "" {
		fields = append(fields, zap.String("username", event.Username))
	}
	if event.Resource != "" {
		fields = append(fields, zap.String("resource", event.Resource))
	}
	if event.Action != "" {
		fields = append(fields, zap.String("action", event.Action))
	}
	if event.ErrorCode != "" {
		fields = append(fields,
			zap.String("error_code", event.ErrorCode),
			zap.String("error_message", event.ErrorMessage),
		)
	}
	if event.Metadata != nil {
		fields = append(fields, zap.Any("metadata", event.Metadata))
	}

	if ce := a.logger.Check(level, "Audit event"); ce != nil {
		ce.Write(fields...)
	}

	if a.sink != nil {
		a.sink.Emit(event)
	}
}
