package mcp

import (
	"time"

	"github.com/michiel/ratchet-sub007/internal/logger"
)

// AuditEventType classifies one AuditLogger entry.
type AuditEventType string

const (
	AuditAuthentication    AuditEventType = "authentication"
	AuditAuthorization     AuditEventType = "authorization"
	AuditToolExecution     AuditEventType = "tool_execution"
	AuditResourceAccess    AuditEventType = "resource_access"
	AuditRateLimitExceeded AuditEventType = "rate_limit_exceeded"
	AuditSecurityViolation AuditEventType = "security_violation"
	AuditConnection        AuditEventType = "connection"
)

// AuditEvent is one recorded security-relevant occurrence.
type AuditEvent struct {
	Timestamp           time.Time
	ClientID            string
	EventType           AuditEventType
	Details             map[string]any
	RequestID           string
	IsSecurityViolation bool
}

// AuditLogger records security events through the structured logger. A
// violation logs at Warn; everything else logs at Info.
type AuditLogger struct {
	enabled bool
	log     logger.Logger
}

func NewAuditLogger(enabled bool, log logger.Logger) *AuditLogger {
	return &AuditLogger{enabled: enabled, log: log}
}

func (a *AuditLogger) LogEvent(event AuditEvent) {
	if !a.enabled {
		return
	}
	fields := []logger.Field{
		logger.String("client_id", event.ClientID),
		logger.String("event_type", string(event.EventType)),
	}
	if event.RequestID != "" {
		fields = append(fields, logger.String("request_id", event.RequestID))
	}
	for k, v := range event.Details {
		fields = append(fields, logger.Any(k, v))
	}
	if event.IsSecurityViolation {
		a.log.Warn("security violation detected", fields...)
		return
	}
	a.log.Info("audit event", fields...)
}

func (a *AuditLogger) LogAuthentication(clientID string, success bool, method, requestID string) {
	a.LogEvent(AuditEvent{
		Timestamp:           time.Now().UTC(),
		ClientID:            clientID,
		EventType:           AuditAuthentication,
		Details:             map[string]any{"success": success, "method": method},
		RequestID:           requestID,
		IsSecurityViolation: !success,
	})
}

func (a *AuditLogger) LogAuthorization(clientID, resource, action string, allowed bool, requestID string) {
	a.LogEvent(AuditEvent{
		Timestamp:           time.Now().UTC(),
		ClientID:            clientID,
		EventType:           AuditAuthorization,
		Details:             map[string]any{"resource": resource, "action": action, "allowed": allowed},
		RequestID:           requestID,
		IsSecurityViolation: !allowed,
	})
}

func (a *AuditLogger) LogToolExecution(clientID, toolName string, success bool, durationMS int64, requestID string) {
	a.LogEvent(AuditEvent{
		Timestamp: time.Now().UTC(),
		ClientID:  clientID,
		EventType: AuditToolExecution,
		Details: map[string]any{
			"tool_name":   toolName,
			"success":     success,
			"duration_ms": durationMS,
		},
		RequestID: requestID,
	})
}

func (a *AuditLogger) LogRateLimitExceeded(clientID, requestID string) {
	a.LogEvent(AuditEvent{
		Timestamp:           time.Now().UTC(),
		ClientID:            clientID,
		EventType:           AuditRateLimitExceeded,
		RequestID:           requestID,
		IsSecurityViolation: true,
	})
}
