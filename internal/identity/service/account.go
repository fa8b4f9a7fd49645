package service

import (
	"context"
	"fmt"

	auditdomain "accessguard/internal/audit/domain"
	"accessguard/internal/identity/domain"
	"accessguard/internal/platform/apperr"
	"accessguard/internal/platform/rbac"
	"accessguard/internal/security"
	sessiondomain "accessguard/internal/session/domain"
)

// ChangePasswordInput is the input to ChangePassword.
type ChangePasswordInput struct {
	IdentityID string
	Current    string
	Next       string
	IP         string
	UserAgent  string
}

// ChangePassword replaces the password after verifying the current one. The new password must
// pass the complexity check and must not match the current or any remembered password. Every
// session and refresh token of the identity is revoked afterwards.
func (s *AuthService) ChangePassword(ctx context.Context, in ChangePasswordInput) error {
	ident, err := s.identities.GetByID(ctx, in.IdentityID)
	if err != nil {
		return err
	}
	if ident == nil {
		return ErrIdentityNotFound
	}
	if !s.passwords.Verify(ident.PasswordHash, in.Current) {
		return ErrInvalidCredentials
	}
	result := s.passwords.ScoreComplexity(in.Next, &security.UserInfo{Email: ident.Email, FirstName: ident.FirstName, LastName: ident.LastName})
	if !result.IsValid {
		return complexityError(result)
	}
	if s.passwords.InHistory(in.Next, append([]string{ident.PasswordHash}, ident.PasswordHistory...)) {
		return apperr.Validation("password was used recently; choose a different one")
	}
	hash, err := s.passwords.Hash(in.Next)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(ident.ID)
	defer unlock()

	current, err := s.identities.GetByID(ctx, ident.ID)
	if err != nil {
		return err
	}
	if current == nil {
		return ErrIdentityNotFound
	}
	if current.PasswordHash != ident.PasswordHash {
		return ErrConcurrentChange
	}
	now := s.now().UTC()
	current.PasswordHistory = security.PushHistory(current.PasswordHistory, current.PasswordHash, s.passwords.Policy().HistoryDepth)
	current.PasswordHash = hash
	current.PasswordChangedAt = now
	current.PasswordExpiresAt = nil
	current.UpdatedAt = now
	if err := s.identities.Update(ctx, current); err != nil {
		return err
	}
	s.record(ctx, auditdomain.Event{
		Action:      auditdomain.ActionPasswordChanged,
		EntityType:  auditdomain.EntityIdentity,
		EntityID:    current.ID,
		ActorID:     current.ID,
		ActorEmail:  current.Email,
		IPAddress:   in.IP,
		UserAgent:   in.UserAgent,
		Description: "password changed",
	})
	_, err = s.endAllLocked(ctx, current.ID, sessiondomain.ReasonPasswordChanged)
	return err
}

// Actor identifies who performs an administrative change.
type Actor struct {
	ID    string
	Email string
	Role  rbac.Role
}

// UpdateStatus moves an identity to status. Archiving is a status change and never deletes the
// record; only active identities keep their sessions.
func (s *AuthService) UpdateStatus(ctx context.Context, identityID string, status domain.Status, actor Actor) (*Profile, error) {
	if !status.Valid() {
		return nil, apperr.Validation(fmt.Sprintf("unknown status %q", string(status)))
	}
	unlock := s.locks.Lock(identityID)
	defer unlock()

	ident, err := s.identities.GetByID(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if ident == nil {
		return nil, ErrIdentityNotFound
	}
	prev := ident.Status
	if !prev.CanTransition(status) {
		return nil, fmt.Errorf("%w: %w: %s to %s", apperr.ErrConflict, domain.ErrInvalidTransition, prev, status)
	}
	ident.Status = status
	ident.UpdatedAt = s.now().UTC()
	if err := s.identities.Update(ctx, ident); err != nil {
		return nil, err
	}

	action := auditdomain.ActionStatusChanged
	switch {
	case status == domain.StatusArchived:
		action = auditdomain.ActionArchive
	case prev == domain.StatusArchived:
		action = auditdomain.ActionRestore
	}
	s.record(ctx, auditdomain.Event{
		Action:      action,
		EntityType:  auditdomain.EntityIdentity,
		EntityID:    ident.ID,
		ActorID:     actor.ID,
		ActorEmail:  actor.Email,
		Description: fmt.Sprintf("status %s -> %s", prev, status),
		Before:      map[string]any{"status": string(prev)},
		After:       map[string]any{"status": string(status)},
	})
	if status != domain.StatusActive {
		if _, err := s.endAllLocked(ctx, ident.ID, sessiondomain.ReasonStatusChanged); err != nil {
			return nil, err
		}
	}
	p := profileOf(ident)
	return &p, nil
}

// UpdateRole assigns role to an identity. The actor must outrank the identity's current role
// and rank at least as high as the new one. The change reaches access tokens at the next
// refresh.
func (s *AuthService) UpdateRole(ctx context.Context, identityID string, role rbac.Role, actor Actor) (*Profile, error) {
	if !role.Valid() {
		return nil, apperr.Validation(fmt.Sprintf("unknown role %q", string(role)))
	}
	unlock := s.locks.Lock(identityID)
	defer unlock()

	ident, err := s.identities.GetByID(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if ident == nil {
		return nil, ErrIdentityNotFound
	}
	if !rbac.IsHigher(actor.Role, ident.Role) {
		return nil, &apperr.PermissionError{Required: []string{"role above " + string(ident.Role)}}
	}
	if err := rbac.RequireAtLeast(actor.Role, role); err != nil {
		return nil, err
	}
	if ident.Role == role {
		p := profileOf(ident)
		return &p, nil
	}
	prev := ident.Role
	ident.Role = role
	ident.UpdatedAt = s.now().UTC()
	if err := s.identities.Update(ctx, ident); err != nil {
		return nil, err
	}
	s.record(ctx, auditdomain.Event{
		Action:      auditdomain.ActionUpdate,
		EntityType:  auditdomain.EntityIdentity,
		EntityID:    ident.ID,
		ActorID:     actor.ID,
		ActorEmail:  actor.Email,
		Description: fmt.Sprintf("role %s -> %s", prev, role),
		Before:      map[string]any{"role": string(prev)},
		After:       map[string]any{"role": string(role)},
	})
	p := profileOf(ident)
	return &p, nil
}
