// Package audit provides security audit logging for SIEM consumption.
// Denied friend request operations are logged as structured JSON events
// so they can be filtered and alerted on separately from application logs.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventPermissionDenied is logged when a user tries to act on a request addressed to someone else.
	EventPermissionDenied SecurityEventType = "permission_denied"
	// EventRateLimitExceeded is logged when a user is refused by the request rate limit.
	EventRateLimitExceeded SecurityEventType = "rate_limit_exceeded"
)

// SecurityEvent represents an auditable security event.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	UserID    uuid.UUID         `json:"user_id"`
	RequestID uuid.UUID         `json:"request_id,omitempty"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// PermissionDeniedDetails describes an attempt to change someone else's request.
type PermissionDeniedDetails struct {
	RequestedStatus string `json:"requested_status"`
}

// RateLimitDetails describes a refused request creation.
type RateLimitDetails struct {
	ToUserID      uuid.UUID `json:"to_user_id"`
	Limit         int       `json:"limit"`
	WindowSeconds float64   `json:"window_seconds"`
}

// SecurityAuditor logs security events for SIEM consumption.
type SecurityAuditor struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewSecurityAuditor creates a new security auditor under the "security_audit" logger namespace.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{
		logger: logger.Named("security_audit"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// LogPermissionDenied records that actorID tried to change the status of a
// request addressed to another user. Logged at WARN with "warning" severity.
func (a *SecurityAuditor) LogPermissionDenied(
	_ context.Context,
	actorID, requestID uuid.UUID,
	details PermissionDeniedDetails,
) {
	event := SecurityEvent{
		Timestamp: a.now(),
		EventType: EventPermissionDenied,
		UserID:    actorID,
		RequestID: requestID,
		Details:   details,
		Severity:  "warning",
	}

	// Marshaling known types does not fail.
	eventJSON, _ := json.Marshal(event)

	a.logger.Warn("Friend request update denied",
		zap.String("event_json", string(eventJSON)),
		zap.String("user_id", actorID.String()),
		zap.String("request_id", requestID.String()),
		zap.String("requested_status", details.RequestedStatus),
		zap.String("severity", "warning"),
	)
}

// LogRateLimitExceeded records a request creation refused by the rate limit.
// Logged at INFO; repeated events for one user are the signal worth alerting on.
func (a *SecurityAuditor) LogRateLimitExceeded(
	_ context.Context,
	userID uuid.UUID,
	details RateLimitDetails,
) {
	event := SecurityEvent{
		Timestamp: a.now(),
		EventType: EventRateLimitExceeded,
		UserID:    userID,
		Details:   details,
		Severity:  "info",
	}

	eventJSON, _ := json.Marshal(event)

	a.logger.Info("Friend request rate limit exceeded",
		zap.String("event_json", string(eventJSON)),
		zap.String("user_id", userID.String()),
		zap.String("to_user_id", details.ToUserID.String()),
		zap.Int("limit", details.Limit),
		zap.String("severity", "info"),
	)
}
