package interceptors

import (
	"context"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"accessguard/internal/telemetry"
	"accessguard/internal/telemetry/metrics"
)

// TelemetryUnary returns a unary server interceptor that observes every RPC's latency and
// code, and emits a security event for each denied call. Emission is asynchronous and
// best-effort; a nil emitter only records metrics. skipMethods are not observed.
func TelemetryUnary(emitter telemetry.EventEmitter, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if skipMethods[info.FullMethod] {
			return resp, err
		}
		code := status.Code(err)
		metrics.ObserveRPC(info.FullMethod, code.String(), time.Since(start))
		if code != codes.PermissionDenied && code != codes.Unauthenticated {
			return resp, err
		}
		event := &telemetry.SecurityEvent{
			ID:        uuid.New().String(),
			EventType: telemetry.EventRPCDenied,
			Source:    ClientIP(ctx),
			Severity:  "low",
			Method:    info.FullMethod,
			Metadata: map[string]any{
				"code":        code.String(),
				"duration_ms": time.Since(start).Milliseconds(),
			},
		}
		if p := PrincipalFrom(ctx); p != nil {
			event.IdentityID = p.IdentityID
			event.SessionID = p.SessionID
		}
		telemetry.EmitAsync(emitter, ctx, event)
		return resp, err
	}
}
