package interceptors

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"accessguard/internal/csrf"
)

// CSRFValidator checks a CSRF token against its session.
type CSRFValidator interface {
	ValidateCSRF(ctx context.Context, token, sessionID string) bool
}

// CSRFUnary returns a unary server interceptor that requires a valid CSRF token bound to the
// caller's session on mutating methods. The token is read from any of the conventional
// headers; more than one value is rejected as ambiguous.
func CSRFUnary(v CSRFValidator, policies PolicySource) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		policy, _ := policies.Policy(info.FullMethod)
		if !policy.Mutating || policy.Public {
			return handler(ctx, req)
		}
		sessionID, ok := GetSessionID(ctx)
		if !ok {
			return nil, status.Error(codes.PermissionDenied, "invalid csrf token")
		}
		md, _ := metadata.FromIncomingContext(ctx)
		token, err := csrf.TokenFromMetadata(md)
		if err != nil || !v.ValidateCSRF(ctx, token, sessionID) {
			return nil, status.Error(codes.PermissionDenied, "invalid csrf token")
		}
		return handler(ctx, req)
	}
}
