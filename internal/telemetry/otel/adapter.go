package otel

import (
	"context"
	"encoding/json"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"accessguard/internal/telemetry"
)

const loggerName = "accessguard.security"

// recordEmitter is the subset of otellog.Logger the emitter needs.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewEventEmitter returns an EventEmitter that sends security events as OTel log records via
// provider. A nil provider yields a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: provider.Logger(loggerName)}
}

// NewEventEmitterWithLogger wraps an existing logger (tests, custom pipelines).
func NewEventEmitterWithLogger(logger recordEmitter) telemetry.EventEmitter {
	if logger == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: logger}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *telemetry.SecurityEvent) error { return nil }

type otelEmitter struct {
	logger recordEmitter
}

// Emit converts the event to an OTel log record. The metadata becomes the JSON body.
func (e *otelEmitter) Emit(ctx context.Context, event *telemetry.SecurityEvent) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	ts := event.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetEventName(event.EventType)
	rec.SetSeverity(severityOf(event.Severity))
	if event.Severity != "" {
		rec.SetSeverityText(event.Severity)
	}
	if len(event.Metadata) > 0 {
		body, err := json.Marshal(event.Metadata)
		if err != nil {
			return err
		}
		rec.SetBody(otellog.BytesValue(body))
	}
	attrs := []struct{ key, val string }{
		{"event_id", event.ID},
		{"event_type", event.EventType},
		{"source", event.Source},
		{"threat_type", event.ThreatType},
		{"identity_id", event.IdentityID},
		{"session_id", event.SessionID},
		{"rpc_method", event.Method},
	}
	for _, a := range attrs {
		if a.val != "" {
			rec.AddAttributes(otellog.String(a.key, a.val))
		}
	}
	e.logger.Emit(ctx, rec)
	return nil
}

func severityOf(s string) otellog.Severity {
	switch s {
	case "critical":
		return otellog.SeverityFatal
	case "high":
		return otellog.SeverityError
	case "medium":
		return otellog.SeverityWarn
	case "low":
		return otellog.SeverityInfo
	default:
		return otellog.SeverityInfo
	}
}
