// Package server exposes the access core over gRPC. Messages are google.protobuf.Struct
// values; the services are described by hand in this package.
package server

import (
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"accessguard/internal/audit"
	identityrepo "accessguard/internal/identity/repository"
	"accessguard/internal/identity/service"
	"accessguard/internal/monitor"
	"accessguard/internal/platform/rbac"
	"accessguard/internal/server/interceptors"
	"accessguard/internal/telemetry"
)

// Deps holds the components the gRPC services are served from. Events may be nil.
type Deps struct {
	Auth       *service.AuthService
	Monitor    *monitor.Monitor
	Trail      *audit.Trail
	Roles      *rbac.Registry
	RolesFile  string
	Identities identityrepo.Repository
	Events     telemetry.EventEmitter
	// Health reports serving status; NewServer creates one when nil.
	Health *health.Server
}

// NewServer returns a gRPC server with every service registered. Interceptors run outermost
// first: telemetry, source blocking, authentication, authorization, CSRF, then audit.
func NewServer(deps Deps, opts ...grpc.ServerOption) *grpc.Server {
	authz := rbac.NewAuthorizer(deps.Roles, Routes())
	skip := untracked()
	chain := []grpc.UnaryServerInterceptor{
		interceptors.TelemetryUnary(deps.Events, skip),
	}
	if deps.Monitor != nil {
		chain = append(chain, interceptors.BlockUnary(deps.Monitor, skip))
	}
	chain = append(chain,
		interceptors.AuthUnary(deps.Auth, authz),
		interceptors.AuthorizeUnary(authz),
		interceptors.CSRFUnary(deps.Auth, authz),
	)
	if deps.Trail != nil {
		chain = append(chain, interceptors.AuditUnary(deps.Trail, skip))
	}
	opts = append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(chain...),
	}, opts...)
	s := grpc.NewServer(opts...)
	RegisterServices(s, deps)
	return s
}

// RegisterServices registers the API and the standard health service with s.
//
// Service → handler mapping:
//   - AuthService     → auth_handlers.go
//   - SessionService  → handlers.go (sessions)
//   - SecurityService → handlers.go (threats)
//   - AuditService    → handlers.go (audit trail)
//   - AdminService    → handlers.go (identity status, roles)
//   - grpc.health.v1  → google.golang.org/grpc/health
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	h := &handlers{
		auth:       deps.Auth,
		monitor:    deps.Monitor,
		trail:      deps.Trail,
		roles:      deps.Roles,
		rolesFile:  deps.RolesFile,
		identities: deps.Identities,
		now:        time.Now,
	}
	register(s, h.authService(), h.sessionService(), h.securityService(), h.auditService(), h.adminService())
	hs := deps.Health
	if hs == nil {
		hs = health.NewServer()
	}
	healthpb.RegisterHealthServer(s, hs)
}
