package interceptors

import (
	"context"

	"google.golang.org/grpc"

	"accessguard/internal/platform/apperr"
	"accessguard/internal/platform/rbac"
)

// AuthorizeUnary returns a unary server interceptor that checks the principal's role against
// the route table. Public methods and methods without listed permissions pass; a denial names
// the permissions required.
func AuthorizeUnary(authz *rbac.Authorizer) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		policy, _ := authz.Policy(info.FullMethod)
		if policy.Public {
			return handler(ctx, req)
		}
		p := PrincipalFrom(ctx)
		if p == nil {
			return nil, apperr.GRPCStatus(apperr.ErrUnauthenticated)
		}
		if err := authz.Authorize(p.Role, info.FullMethod); err != nil {
			return nil, apperr.GRPCStatus(err)
		}
		return handler(ctx, req)
	}
}
