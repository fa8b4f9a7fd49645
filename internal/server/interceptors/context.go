package interceptors

import (
	"context"

	"accessguard/internal/identity/service"
)

type contextKey struct{ name string }

var principalKey = contextKey{"principal"}

// WithPrincipal returns a context carrying the authenticated caller.
func WithPrincipal(ctx context.Context, p *service.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns the authenticated caller, or nil for an anonymous request.
func PrincipalFrom(ctx context.Context) *service.Principal {
	p, _ := ctx.Value(principalKey).(*service.Principal)
	return p
}

// GetIdentityID returns the caller's identity id and true if the request is authenticated.
func GetIdentityID(ctx context.Context) (string, bool) {
	if p := PrincipalFrom(ctx); p != nil {
		return p.IdentityID, true
	}
	return "", false
}

// GetSessionID returns the caller's session id and true if the request is authenticated.
func GetSessionID(ctx context.Context) (string, bool) {
	if p := PrincipalFrom(ctx); p != nil && p.SessionID != "" {
		return p.SessionID, true
	}
	return "", false
}
