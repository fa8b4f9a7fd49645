package service

import (
	"context"
	"strings"

	auditdomain "accessguard/internal/audit/domain"
	"accessguard/internal/monitor"
	threatdomain "accessguard/internal/monitor/domain"
	"accessguard/internal/platform/apperr"
	"accessguard/internal/platform/rbac"
	sessiondomain "accessguard/internal/session/domain"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	IdentityID string
	Email      string
	Role       rbac.Role
	SessionID  string
}

// Authenticate resolves a bearer access token to its principal. The token's session must still
// be active and belong to the token's subject; the session's activity time is refreshed.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*Principal, error) {
	accessToken = strings.TrimSpace(strings.TrimPrefix(accessToken, "Bearer "))
	if accessToken == "" {
		return nil, ErrInvalidToken
	}
	claims, err := s.tokens.ValidateAccess(accessToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	sess, err := s.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.IdentityID != claims.Subject {
		return nil, ErrInvalidToken
	}
	if err := s.sessions.Touch(ctx, sess.ID); err != nil {
		return nil, err
	}
	return &Principal{
		IdentityID: claims.Subject,
		Email:      claims.Email,
		Role:       rbac.Role(claims.Role),
		SessionID:  sess.ID,
	}, nil
}

// CheckPermission reports whether role holds permissions, all of them when requireAll is set
// and any one otherwise. Unknown roles hold nothing.
func (s *AuthService) CheckPermission(role rbac.Role, permissions []string, requireAll bool) bool {
	return s.permissions.Check(role, permissions, requireAll)
}

// CurrentSession returns the active session sessionID, or nil.
func (s *AuthService) CurrentSession(ctx context.Context, sessionID string) (*sessiondomain.Session, error) {
	return s.sessions.Get(ctx, sessionID)
}

// ListSessions returns the active sessions of identityID, most recently active first.
func (s *AuthService) ListSessions(ctx context.Context, identityID string) ([]*sessiondomain.Session, error) {
	return s.sessions.ListActive(ctx, identityID)
}

// RevokeSession ends a session on behalf of p. Callers may end their own sessions; ending
// anyone else's needs sessions:manage. A session the caller may not see is reported as not
// found.
func (s *AuthService) RevokeSession(ctx context.Context, p *Principal, sessionID string) error {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return apperr.ErrNotFound
	}
	own := sess.IdentityID == p.IdentityID
	if !own && !s.permissions.Has(p.Role, rbac.PermSessionsManage) {
		return apperr.ErrNotFound
	}
	reason := sessiondomain.ReasonLogout
	if !own {
		reason = sessiondomain.ReasonRevoked
	}
	unlock := s.locks.Lock(sess.IdentityID)
	defer unlock()
	if _, err := s.sessions.Invalidate(ctx, sess.ID, reason); err != nil {
		return err
	}
	return nil
}

// IssueCSRF replaces the CSRF token of an active session.
func (s *AuthService) IssueCSRF(ctx context.Context, sessionID string) (string, error) {
	return s.csrf.Issue(ctx, sessionID)
}

// ValidateCSRF reports whether token is the live CSRF token of sessionID.
func (s *AuthService) ValidateCSRF(ctx context.Context, token, sessionID string) bool {
	return s.csrf.Validate(ctx, token, sessionID)
}

// Audit records an event supplied by a collaborating module. It never fails the caller.
func (s *AuthService) Audit(ctx context.Context, e auditdomain.Event) {
	s.record(ctx, e)
}

// ReportThreat forwards a detection from a request-validation layer to the monitor.
func (s *AuthService) ReportThreat(ctx context.Context, threatType threatdomain.ThreatType, source, description string, metadata map[string]any) (*threatdomain.Threat, error) {
	if s.monitor == nil {
		return nil, apperr.Validation("threat monitoring is not configured")
	}
	return s.monitor.Report(ctx, monitor.ThreatReport{
		Type:        threatType,
		Source:      source,
		Description: description,
		Metadata:    metadata,
	})
}
