package interceptors

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"accessguard/internal/identity/service"
	"accessguard/internal/platform/rbac"
)

const bearerPrefix = "bearer "

// Authenticator resolves a bearer access token to its principal.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*service.Principal, error)
}

// PolicySource returns the route policy of a full method name.
type PolicySource interface {
	Policy(method string) (rbac.RoutePolicy, bool)
}

// AuthUnary returns a unary server interceptor that validates the Bearer access token from
// gRPC metadata and puts the principal in context. Public methods run without a token; a bad
// token on a public method is ignored rather than rejected.
func AuthUnary(auth Authenticator, policies PolicySource) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		policy, _ := policies.Policy(info.FullMethod)
		token := extractBearer(ctx)
		if token == "" {
			if policy.Public {
				return handler(ctx, req)
			}
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}
		p, err := auth.Authenticate(ctx, token)
		if err != nil || p == nil {
			if policy.Public {
				return handler(ctx, req)
			}
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}
		return handler(WithPrincipal(ctx, p), req)
	}
}

// extractBearer returns the Bearer token from ctx metadata, or "" if missing or malformed.
func extractBearer(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	v := strings.TrimSpace(vals[0])
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
