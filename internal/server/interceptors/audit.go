package interceptors

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"accessguard/internal/audit"
	"accessguard/internal/audit/domain"
)

// AuditUnary returns a unary server interceptor that records an audit event after each
// authenticated RPC. skipMethods is the set of full method names not to audit (e.g. health
// checks). Recording is best-effort and never fails the RPC.
func AuditUnary(rec audit.Recorder, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		if rec == nil || skipMethods[info.FullMethod] {
			return resp, err
		}
		p := PrincipalFrom(ctx)
		if p == nil {
			return resp, err
		}
		ar := audit.ParseFullMethod(info.FullMethod)
		e := domain.Event{
			Action:      domain.Action(ar.Action),
			EntityType:  ar.Resource,
			EntityID:    p.IdentityID,
			ActorID:     p.IdentityID,
			ActorEmail:  p.Email,
			IPAddress:   ClientIP(ctx),
			UserAgent:   UserAgent(ctx),
			Description: info.FullMethod,
			Metadata: map[string]any{
				"method":     info.FullMethod,
				"code":       status.Code(err).String(),
				"session_id": p.SessionID,
			},
		}
		if a, ok := rec.(interface {
			RecordAsync(context.Context, domain.Event)
		}); ok {
			a.RecordAsync(ctx, e)
		} else {
			rec.Record(ctx, e)
		}
		return resp, err
	}
}

// UserAgent returns the caller's user agent from gRPC metadata, or "".
func UserAgent(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get("user-agent"); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
