package monitor

import (
	"context"
	"log"

	"accessguard/internal/monitor/domain"
	"accessguard/internal/telemetry"
)

// Escalation describes a source crossing the alert threshold of a threat type.
type Escalation struct {
	Threat    *domain.Threat
	Source    *domain.SourceRecord
	Count     int
	Threshold int
}

// Escalator reacts to an escalation, e.g. by paging or pushing a firewall rule. Implementations
// must not block for long; Report calls them inline.
type Escalator interface {
	Escalate(ctx context.Context, e Escalation)
}

// EscalatorFunc adapts a function to Escalator.
type EscalatorFunc func(ctx context.Context, e Escalation)

func (f EscalatorFunc) Escalate(ctx context.Context, e Escalation) { f(ctx, e) }

// LogEscalator writes one log line per escalation.
type LogEscalator struct{}

func (LogEscalator) Escalate(_ context.Context, e Escalation) {
	log.Printf("monitor: ESCALATION %s from %s reached %d/%d (threat %s, severity %s)",
		e.Threat.Type, e.Threat.Source, e.Count, e.Threshold, e.Threat.ID, e.Threat.Severity)
}

// EventEscalator publishes escalations as security events (OTel logs, Kafka).
type EventEscalator struct {
	Emitter telemetry.EventEmitter
}

func (x EventEscalator) Escalate(ctx context.Context, e Escalation) {
	telemetry.EmitAsync(x.Emitter, ctx, &telemetry.SecurityEvent{
		ID:         e.Threat.ID,
		EventType:  telemetry.EventThreatEscalated,
		Source:     e.Threat.Source,
		Severity:   string(e.Threat.Severity),
		ThreatType: string(e.Threat.Type),
		Metadata: map[string]any{
			"count":        e.Count,
			"threshold":    e.Threshold,
			"source_total": e.Source.Count,
		},
		CreatedAt: e.Threat.Timestamp,
	})
}

// Escalators fans out to each escalator in order.
type Escalators []Escalator

func (m Escalators) Escalate(ctx context.Context, e Escalation) {
	for _, x := range m {
		if x != nil {
			x.Escalate(ctx, e)
		}
	}
}
