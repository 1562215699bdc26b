// File: internal/domain/models/audit_event.go
package models

import "time"

// AuditEventType identifies the kind of authentication outcome being recorded.
type AuditEventType string

const (
	AuditAuthSuccess   AuditEventType = "AUTH_SUCCESS"
	AuditAuthFailure   AuditEventType = "AUTH_FAILURE"
	AuditTokenExpired  AuditEventType = "TOKEN_EXPIRED"
	AuditSecurityAlert AuditEventType = "SECURITY_ALERT"
)

// AuditSeverity grades security alerts. HIGH alerts are additionally surfaced
// through the error-level channel so they are not buried in routine logs.
type AuditSeverity string

const (
	SeverityLow    AuditSeverity = "LOW"
	SeverityMedium AuditSeverity = "MEDIUM"
	SeverityHigh   AuditSeverity = "HIGH"
)

// AuditResult is the terminal outcome recorded on an event.
type AuditResult string

const (
	AuditResultSuccess AuditResult = "success"
	AuditResultFailure AuditResult = "failure"
)

// AuditEvent is one write-once audit record. Events live only in the log
// sink (and the optional broker topic); they are never persisted by this
// service.
type AuditEvent struct {
	EventType     AuditEventType         `json:"event_type"`
	CorrelationID string                 `json:"correlation_id"`
	Timestamp     time.Time              `json:"timestamp"`
	SourceIP      string                 `json:"source_ip,omitempty"`
	UserID        string                 `json:"user_id,omitempty"`
	Username      string                 `json:"username,omitempty"`
	Resource      string                 `json:"resource,omitempty"`
	Action        string                 `json:"action,omitempty"`
	Result        AuditResult            `json:"result"`
	ErrorCode     string                 `json:"error_code,omitempty"`
	ErrorMessage  string                 `json:"error_message,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}
