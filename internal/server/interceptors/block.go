package interceptors

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Blocker decides whether a source should be refused outright.
type Blocker interface {
	ShouldBlock(ctx context.Context, source string) bool
}

// BlockUnary returns a unary server interceptor that refuses requests from blocked sources.
// skipMethods are never blocked (e.g. health checks).
func BlockUnary(b Blocker, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if b == nil || skipMethods[info.FullMethod] {
			return handler(ctx, req)
		}
		if b.ShouldBlock(ctx, ClientIP(ctx)) {
			return nil, status.Error(codes.PermissionDenied, "source blocked")
		}
		return handler(ctx, req)
	}
}
