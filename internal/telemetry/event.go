// Package telemetry carries security events out of the process: to OpenTelemetry logs, to Kafka
// and, through the worker, to Loki.
package telemetry

import (
	"context"
	"errors"
	"time"
)

// Security event types.
const (
	EventThreatReported  = "threat_reported"
	EventThreatEscalated = "threat_escalated"
	EventThreatResolved  = "threat_resolved"
	EventAccountLocked   = "account_locked"
	EventRPCDenied       = "rpc_denied"
)

// SecurityEvent is the JSON document published for each security-relevant occurrence.
type SecurityEvent struct {
	ID         string         `json:"id"`
	EventType  string         `json:"eventType"`
	Source     string         `json:"source"`
	Severity   string         `json:"severity,omitempty"`
	ThreatType string         `json:"threatType,omitempty"`
	IdentityID string         `json:"identityId,omitempty"`
	SessionID  string         `json:"sessionId,omitempty"`
	Method     string         `json:"method,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// EventEmitter emits security events. Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *SecurityEvent) error
}

// MultiEmitter fans one event out to every emitter. Nil entries are skipped.
type MultiEmitter []EventEmitter

// Emit calls every emitter and joins their errors.
func (m MultiEmitter) Emit(ctx context.Context, event *SecurityEvent) error {
	var errs []error
	for _, e := range m {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
