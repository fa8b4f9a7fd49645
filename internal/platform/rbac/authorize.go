package rbac

import (
	"accessguard/internal/platform/apperr"
)

// RoutePolicy is the permission requirement of one method. Public methods need no
// authenticated caller at all.
type RoutePolicy struct {
	Permissions []string
	RequireAll  bool
	Public      bool
	// Mutating methods must carry a valid CSRF token and are audited.
	Mutating bool
}

// Authorizer checks callers against a route table keyed by full gRPC method name.
type Authorizer struct {
	reg    *Registry
	routes map[string]RoutePolicy
}

// NewAuthorizer returns an Authorizer over reg and routes. routes is copied.
func NewAuthorizer(reg *Registry, routes map[string]RoutePolicy) *Authorizer {
	m := make(map[string]RoutePolicy, len(routes))
	for k, v := range routes {
		m[k] = v
	}
	return &Authorizer{reg: reg, routes: m}
}

// Registry returns the registry the authorizer resolves roles with.
func (a *Authorizer) Registry() *Registry { return a.reg }

// Policy returns the policy for method. Methods missing from the table only require an
// authenticated caller.
func (a *Authorizer) Policy(method string) (RoutePolicy, bool) {
	p, ok := a.routes[method]
	return p, ok
}

// Authorize returns nil when role satisfies the policy for method, or a
// *apperr.PermissionError naming the permissions required.
func (a *Authorizer) Authorize(role Role, method string) error {
	p, ok := a.routes[method]
	if !ok || p.Public || len(p.Permissions) == 0 {
		return nil
	}
	if a.reg.Check(role, p.Permissions, p.RequireAll) {
		return nil
	}
	return &apperr.PermissionError{
		Required:   append([]string(nil), p.Permissions...),
		RequireAll: p.RequireAll,
	}
}

// RequireAtLeast returns a PermissionError unless role ranks at or above min. It backs the
// coarse "can manage" checks that sit beside fine-grained permissions.
func RequireAtLeast(role, min Role) error {
	if AtLeast(role, min) {
		return nil
	}
	return &apperr.PermissionError{Required: []string{"role:" + string(min)}}
}
