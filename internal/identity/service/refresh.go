package service

import (
	"context"
	"log"

	auditdomain "accessguard/internal/audit/domain"
	sessiondomain "accessguard/internal/session/domain"
)

// RefreshResult is the outcome of a successful Refresh.
type RefreshResult struct {
	TokenPair
	SessionID string
	CSRFToken string
}

// Refresh exchanges a refresh token for a new token pair. The presented token is consumed:
// of several concurrent refreshes with the same token exactly one succeeds, and any later
// replay fails with ErrInvalidToken. The session moves to the new refresh token and its CSRF
// token is rotated.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if refreshToken == "" {
		return nil, ErrInvalidToken
	}
	identityID, err := s.tokens.Subject(refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	unlock := s.locks.Lock(identityID)
	defer unlock()

	sess, err := s.sessions.FindByRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.IdentityID != identityID {
		// A valid signature without a live session: the session ended, so the token goes too.
		s.revokeQuietly(ctx, identityID, refreshToken)
		return nil, ErrInvalidToken
	}
	_, newToken, refreshExp, err := s.tokens.Rotate(ctx, refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	ident, err := s.identities.GetByID(ctx, identityID)
	if err != nil {
		s.revokeQuietly(ctx, identityID, newToken)
		return nil, err
	}
	if ident == nil || !ident.IsActive() {
		s.revokeQuietly(ctx, identityID, newToken)
		if _, err := s.sessions.Invalidate(ctx, sess.ID, sessiondomain.ReasonStatusChanged); err != nil {
			log.Printf("auth: failed to end session %s: %v", sess.ID, err)
		}
		return nil, ErrInvalidToken
	}
	if err := s.sessions.Rebind(ctx, sess.ID, newToken); err != nil {
		s.revokeQuietly(ctx, identityID, newToken)
		return nil, err
	}

	now := s.now().UTC()
	access, accessExp, err := s.tokens.IssueAccess(ident, sess.ID)
	if err != nil {
		return nil, err
	}
	csrfToken, err := s.csrf.Rotate(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	return &RefreshResult{
		TokenPair: s.pair(access, accessExp, newToken, refreshExp, now),
		SessionID: sess.ID,
		CSRFToken: csrfToken,
	}, nil
}

// Logout removes exactly one refresh token from the identity's valid set and ends the session
// bound to it. sessionID, when known, names the session directly. Unknown tokens are not an
// error.
func (s *AuthService) Logout(ctx context.Context, identityID, refreshToken, sessionID string) error {
	if identityID == "" {
		return ErrInvalidToken
	}
	unlock := s.locks.Lock(identityID)
	defer unlock()

	if refreshToken != "" {
		if _, err := s.tokens.Revoke(ctx, identityID, refreshToken); err != nil {
			return err
		}
		if sessionID == "" {
			sess, err := s.sessions.FindByRefreshToken(ctx, refreshToken)
			if err != nil {
				return err
			}
			if sess != nil {
				sessionID = sess.ID
			}
		}
	}
	if sessionID != "" {
		sess, err := s.sessions.Get(ctx, sessionID)
		if err != nil {
			return err
		}
		if sess != nil && sess.IdentityID == identityID {
			if _, err := s.sessions.Invalidate(ctx, sess.ID, sessiondomain.ReasonLogout); err != nil {
				return err
			}
		}
	}
	s.record(ctx, auditdomain.Event{
		Action:      auditdomain.ActionLogout,
		EntityType:  auditdomain.EntityIdentity,
		EntityID:    identityID,
		ActorID:     identityID,
		Description: "logout",
		Metadata:    map[string]any{"session_id": sessionID},
	})
	return nil
}

// LogoutAll ends every session of identityID and empties its refresh-token set. Returns how
// many sessions were active.
func (s *AuthService) LogoutAll(ctx context.Context, identityID string) (int, error) {
	if identityID == "" {
		return 0, ErrInvalidToken
	}
	unlock := s.locks.Lock(identityID)
	defer unlock()

	n, err := s.endAllLocked(ctx, identityID, sessiondomain.ReasonLogoutAll)
	if err != nil {
		return n, err
	}
	s.record(ctx, auditdomain.Event{
		Action:      auditdomain.ActionLogout,
		EntityType:  auditdomain.EntityIdentity,
		EntityID:    identityID,
		ActorID:     identityID,
		Description: "logout from all sessions",
		Metadata:    map[string]any{"sessions": n, "all": true},
	})
	return n, nil
}

// endAllLocked ends every session and revokes every refresh token of identityID. The caller
// holds the identity lock.
func (s *AuthService) endAllLocked(ctx context.Context, identityID, reason string) (int, error) {
	n, err := s.sessions.InvalidateAll(ctx, identityID, reason)
	if err != nil {
		return n, err
	}
	if _, err := s.tokens.RevokeAll(ctx, identityID); err != nil {
		return n, err
	}
	return n, nil
}
