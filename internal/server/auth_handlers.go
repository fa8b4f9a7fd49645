package server

import (
	"context"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"accessguard/internal/identity/service"
	"accessguard/internal/platform/apperr"
	"accessguard/internal/server/interceptors"
	sessiondomain "accessguard/internal/session/domain"
)

func (h *handlers) authService() rpcService {
	return rpcService{name: authServiceName, methods: map[string]unaryFunc{
		"Register":       h.register,
		"Login":          h.login,
		"Refresh":        h.refresh,
		"Logout":         h.logout,
		"LogoutAll":      h.logoutAll,
		"ChangePassword": h.changePassword,
		"IssueCSRF":      h.issueCSRF,
		"CurrentSession": h.currentSession,
	}}
}

func (h *handlers) register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	a := argsOf(req)
	p, err := h.auth.Register(ctx, service.RegisterInput{
		Email:     a.str("email"),
		Password:  a.raw("password"),
		FirstName: a.str("first_name"),
		LastName:  a.str("last_name"),
		IP:        interceptors.ClientIP(ctx),
		UserAgent: interceptors.UserAgent(ctx),
	})
	if err != nil {
		return nil, err
	}
	return respond(map[string]any{"identity": profileView(p)})
}

func (h *handlers) login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	a := argsOf(req)
	res, err := h.auth.Login(ctx, service.LoginInput{
		Email:     a.str("email"),
		Password:  a.raw("password"),
		IP:        interceptors.ClientIP(ctx),
		UserAgent: interceptors.UserAgent(ctx),
	})
	if err != nil {
		return nil, err
	}
	out := tokenView(res.TokenPair)
	out["session_id"] = res.SessionID
	out["csrf_token"] = res.CSRFToken
	out["identity"] = profileView(&res.Profile)
	out["password_expired"] = res.PasswordExpired
	return respond(out)
}

func (h *handlers) refresh(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	res, err := h.auth.Refresh(ctx, argsOf(req).raw("refresh_token"))
	if err != nil {
		return nil, err
	}
	out := tokenView(res.TokenPair)
	out["session_id"] = res.SessionID
	out["csrf_token"] = res.CSRFToken
	return respond(out)
}

func (h *handlers) logout(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.auth.Logout(ctx, p.IdentityID, argsOf(req).raw("refresh_token"), p.SessionID); err != nil {
		return nil, err
	}
	return respond(map[string]any{"ok": true})
}

func (h *handlers) logoutAll(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	n, err := h.auth.LogoutAll(ctx, p.IdentityID)
	if err != nil {
		return nil, err
	}
	return respond(map[string]any{"sessions_ended": n})
}

func (h *handlers) changePassword(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	a := argsOf(req)
	err = h.auth.ChangePassword(ctx, service.ChangePasswordInput{
		IdentityID: p.IdentityID,
		Current:    a.raw("current_password"),
		Next:       a.raw("new_password"),
		IP:         interceptors.ClientIP(ctx),
		UserAgent:  interceptors.UserAgent(ctx),
	})
	if err != nil {
		return nil, err
	}
	return respond(map[string]any{"ok": true})
}

func (h *handlers) issueCSRF(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	token, err := h.auth.IssueCSRF(ctx, p.SessionID)
	if err != nil {
		return nil, apperr.ErrUnauthenticated
	}
	return respond(map[string]any{"csrf_token": token})
}

func (h *handlers) currentSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	s, err := h.auth.CurrentSession(ctx, p.SessionID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, apperr.ErrNotFound
	}
	return respond(map[string]any{"session": sessionView(s, p.SessionID)})
}

func principal(ctx context.Context) (*service.Principal, error) {
	p := interceptors.PrincipalFrom(ctx)
	if p == nil {
		return nil, apperr.ErrUnauthenticated
	}
	return p, nil
}

func tokenView(t service.TokenPair) map[string]any {
	return map[string]any{
		"access_token":       t.AccessToken,
		"refresh_token":      t.RefreshToken,
		"expires_in":         t.ExpiresIn,
		"access_expires_at":  t.AccessExpiresAt.UTC().Format(time.RFC3339),
		"refresh_expires_at": t.RefreshExpiresAt.UTC().Format(time.RFC3339),
	}
}

func profileView(p *service.Profile) map[string]any {
	out := map[string]any{
		"id":         p.ID,
		"email":      p.Email,
		"first_name": p.FirstName,
		"last_name":  p.LastName,
		"role":       string(p.Role),
		"status":     string(p.Status),
	}
	if p.LastLoginAt != nil {
		out["last_login_at"] = p.LastLoginAt.UTC().Format(time.RFC3339)
	}
	return out
}

func sessionView(s *sessiondomain.Session, currentID string) map[string]any {
	return map[string]any{
		"id":            s.ID,
		"identity_id":   s.IdentityID,
		"device":        string(s.Device.Type),
		"browser":       s.Device.Browser,
		"os":            s.Device.OS,
		"ip_address":    s.IPAddress,
		"created_at":    s.CreatedAt.UTC().Format(time.RFC3339),
		"last_activity": s.LastActivity.UTC().Format(time.RFC3339),
		"expires_at":    s.ExpiresAt.UTC().Format(time.RFC3339),
		"current":       s.ID == currentID,
	}
}
