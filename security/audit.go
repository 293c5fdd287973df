package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/giantswarm/oauth1-oob/instrumentation"
)

// Auditor handles security event logging. Token values are reduced to a
// short hash before they reach the log.
type Auditor struct {
	logger          *slog.Logger
	enabled         bool
	clock           Clock
	instrumentation *instrumentation.Instrumentation
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
		clock:   SystemClock{},
	}
}

// SetInstrumentation enables counting of audit events.
func (a *Auditor) SetInstrumentation(inst *instrumentation.Instrumentation) {
	a.instrumentation = inst
}

// SetClock replaces the clock used to timestamp events.
func (a *Auditor) SetClock(clock Clock) {
	if clock != nil {
		a.clock = clock
	}
}

// Event represents a security audit event
type Event struct {
	Type      string
	ClientKey string
	FlowID    string
	IPAddress string
	// Token is hashed before logging and never written verbatim.
	Token     string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event
func (a *Auditor) LogEvent(event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = a.clock.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"client_key", event.ClientKey,
		"flow_id", event.FlowID,
		"token_hash", hashForLogging(event.Token),
		"ip_address", event.IPAddress,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)

	if a.instrumentation != nil {
		a.instrumentation.Metrics().RecordAuditEvent(context.Background(), event.Type)
	}
}

// LogRequestTokenIssued logs the first leg of a flow.
func (a *Auditor) LogRequestTokenIssued(clientKey, flowID, ipAddress string) {
	a.LogEvent(Event{
		Type:      EventRequestTokenIssued,
		ClientKey: clientKey,
		FlowID:    flowID,
		IPAddress: ipAddress,
	})
}

// LogTokenAuthorized logs the out-of-band authorization step.
func (a *Auditor) LogTokenAuthorized(clientKey, flowID, ipAddress string, reauthorized bool) {
	eventType := EventRequestTokenAuthorized
	if reauthorized {
		eventType = EventRequestTokenReauthorized
	}
	a.LogEvent(Event{
		Type:      eventType,
		ClientKey: clientKey,
		FlowID:    flowID,
		IPAddress: ipAddress,
	})
}

// LogAccessTokenIssued logs a successful exchange.
func (a *Auditor) LogAccessTokenIssued(clientKey, flowID, ipAddress string) {
	a.LogEvent(Event{
		Type:      EventAccessTokenIssued,
		ClientKey: clientKey,
		FlowID:    flowID,
		IPAddress: ipAddress,
	})
}

// LogTokenInvalidated logs a token burned after a failed exchange.
func (a *Auditor) LogTokenInvalidated(clientKey, flowID, token, reason string) {
	a.LogEvent(Event{
		Type:      EventTokenInvalidated,
		ClientKey: clientKey,
		FlowID:    flowID,
		Token:     token,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogAuthFailure logs a signed request that failed validation
func (a *Auditor) LogAuthFailure(clientKey, ipAddress, step, reason string) {
	a.LogEvent(Event{
		Type:      EventAuthFailure,
		ClientKey: clientKey,
		IPAddress: ipAddress,
		Details: map[string]any{
			"step":   step,
			"reason": reason,
		},
	})
}

// LogRateLimitExceeded logs a rate limit violation
func (a *Auditor) LogRateLimitExceeded(ipAddress, endpoint string) {
	a.LogEvent(Event{
		Type:      EventRateLimitExceeded,
		IPAddress: ipAddress,
		Details: map[string]any{
			"endpoint": endpoint,
		},
	})
}

// hashForLogging creates a short SHA256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
