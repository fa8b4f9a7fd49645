package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"accessguard/internal/monitor/domain"
	"accessguard/internal/telemetry"
)

type captureEmitter struct {
	mu     sync.Mutex
	events []*telemetry.SecurityEvent
}

func (c *captureEmitter) Emit(ctx context.Context, e *telemetry.SecurityEvent) error {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	return nil
}

func TestEventEscalator(t *testing.T) {
	em := &captureEmitter{}
	th := &domain.Threat{ID: "t1", Type: domain.TypeSQLInjection, Severity: domain.SeverityCritical, Source: "10.0.0.5", Timestamp: time.Now().UTC()}
	Escalators{LogEscalator{}, nil, EventEscalator{Emitter: em}}.Escalate(context.Background(), Escalation{
		Threat: th, Source: &domain.SourceRecord{Source: "10.0.0.5", Count: 1}, Count: 1, Threshold: 1,
	})
	if !telemetry.Drain(time.Second) {
		t.Fatal("Drain timed out")
	}
	em.mu.Lock()
	defer em.mu.Unlock()
	if len(em.events) != 1 {
		t.Fatalf("events = %d, want 1", len(em.events))
	}
	ev := em.events[0]
	if ev.EventType != telemetry.EventThreatEscalated || ev.ThreatType != "sql_injection" || ev.Metadata["threshold"] != 1 {
		t.Errorf("event = %+v", ev)
	}
}

func TestReport_EmitsThreatEvents(t *testing.T) {
	em := &captureEmitter{}
	m, _, _, _ := newTestMonitor(t, Deps{Events: em})
	th, _ := m.Report(context.Background(), ThreatReport{Type: domain.TypeUnauthorizedAccess, Source: "10.4.4.4"})
	_, _ = m.Resolve(context.Background(), th.ID, "admin-1")
	if !telemetry.Drain(time.Second) {
		t.Fatal("Drain timed out")
	}
	em.mu.Lock()
	defer em.mu.Unlock()
	if len(em.events) != 2 {
		t.Fatalf("events = %d, want 2", len(em.events))
	}
	types := map[string]bool{}
	for _, e := range em.events {
		types[e.EventType] = true
	}
	if !types[telemetry.EventThreatReported] || !types[telemetry.EventThreatResolved] {
		t.Errorf("event types = %v", types)
	}
}
