package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// recordingEmitter implements EventEmitter for tests.
type recordingEmitter struct {
	mu      sync.Mutex
	events  []*SecurityEvent
	emitErr error
	delay   time.Duration
}

func (m *recordingEmitter) Emit(ctx context.Context, event *SecurityEvent) error {
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.delay):
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.emitErr
}

func (m *recordingEmitter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func TestEmitAsync_NilArguments(t *testing.T) {
	EmitAsync(nil, context.Background(), &SecurityEvent{EventType: EventThreatReported})
	em := &recordingEmitter{}
	EmitAsync(em, context.Background(), nil)
	if !Drain(time.Second) {
		t.Fatal("Drain timed out")
	}
	if em.count() != 0 {
		t.Errorf("events = %d, want 0", em.count())
	}
}

func TestEmitAsync_SurvivesCancelledContext(t *testing.T) {
	em := &recordingEmitter{delay: 20 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	ev := &SecurityEvent{EventType: EventThreatReported, Source: "10.0.0.5"}
	EmitAsync(em, ctx, ev)
	cancel()
	if !Drain(time.Second) {
		t.Fatal("Drain timed out")
	}
	if em.count() != 1 {
		t.Errorf("events = %d, want 1", em.count())
	}
	if ev.CreatedAt.IsZero() {
		t.Error("CreatedAt should be stamped")
	}
}

func TestEmitAsync_ErrorIsSwallowed(t *testing.T) {
	em := &recordingEmitter{emitErr: errors.New("kafka down")}
	EmitAsync(em, context.Background(), &SecurityEvent{EventType: EventAccountLocked})
	if !Drain(time.Second) {
		t.Fatal("Drain timed out")
	}
	if em.count() != 1 {
		t.Errorf("events = %d, want 1", em.count())
	}
}

func TestMultiEmitter(t *testing.T) {
	a := &recordingEmitter{}
	b := &recordingEmitter{emitErr: errors.New("b failed")}
	m := MultiEmitter{a, nil, b}
	err := m.Emit(context.Background(), &SecurityEvent{EventType: EventThreatEscalated})
	if err == nil || err.Error() != "b failed" {
		t.Errorf("Emit err = %v, want b failed", err)
	}
	if a.count() != 1 || b.count() != 1 {
		t.Errorf("counts = %d/%d, want 1/1", a.count(), b.count())
	}
}
