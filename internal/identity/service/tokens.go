package service

import (
	"context"
	"time"

	"accessguard/internal/identity/domain"
	refreshrepo "accessguard/internal/refreshtoken/repository"
	"accessguard/internal/security"
)

// TokenPair is what a successful login or refresh hands back to the client.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64
}

// TokenIssuer signs access and refresh tokens and keeps each identity's set of valid refresh
// tokens. A refresh token is honored only while its hash is in the set.
type TokenIssuer struct {
	tokens *security.TokenProvider
	store  refreshrepo.Repository
}

// NewTokenIssuer returns a TokenIssuer over the given provider and refresh-token store.
func NewTokenIssuer(tokens *security.TokenProvider, store refreshrepo.Repository) *TokenIssuer {
	return &TokenIssuer{tokens: tokens, store: store}
}

// IssueRefresh signs a refresh token for identityID and adds it to the valid set.
func (t *TokenIssuer) IssueRefresh(ctx context.Context, identityID string) (string, time.Time, error) {
	token, _, exp, err := t.tokens.IssueRefresh(identityID)
	if err != nil {
		return "", time.Time{}, err
	}
	if err := t.store.Add(ctx, identityID, security.HashToken(token), exp); err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// IssueAccess signs an access token for ident bound to sessionID.
func (t *TokenIssuer) IssueAccess(ident *domain.Identity, sessionID string) (string, time.Time, error) {
	token, _, exp, err := t.tokens.IssueAccess(security.AccessSubject{
		UserID:    ident.ID,
		Email:     ident.Email,
		Role:      string(ident.Role),
		SessionID: sessionID,
	})
	return token, exp, err
}

// Subject returns the identity a refresh token was issued to, after checking signature and
// expiry. It does not consult the valid set.
func (t *TokenIssuer) Subject(refreshToken string) (string, error) {
	sub, _, err := t.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return "", ErrInvalidToken
	}
	return sub, nil
}

// Rotate swaps a presented refresh token for a new one. The old token must verify and still be
// in the valid set; removal and insertion are one atomic store step, so of several concurrent
// rotations of the same token exactly one succeeds and the rest get ErrInvalidToken.
func (t *TokenIssuer) Rotate(ctx context.Context, oldToken string) (identityID, newToken string, exp time.Time, err error) {
	identityID, err = t.Subject(oldToken)
	if err != nil {
		return "", "", time.Time{}, err
	}
	newToken, _, exp, err = t.tokens.IssueRefresh(identityID)
	if err != nil {
		return "", "", time.Time{}, err
	}
	ok, err := t.store.Rotate(ctx, identityID, security.HashToken(oldToken), security.HashToken(newToken), exp)
	if err != nil {
		return "", "", time.Time{}, err
	}
	if !ok {
		return "", "", time.Time{}, ErrInvalidToken
	}
	return identityID, newToken, exp, nil
}

// Revoke removes exactly one refresh token from identityID's set.
func (t *TokenIssuer) Revoke(ctx context.Context, identityID, refreshToken string) (bool, error) {
	return t.store.Remove(ctx, identityID, security.HashToken(refreshToken))
}

// RevokeHash removes a token by its stored hash, e.g. when its session ends.
func (t *TokenIssuer) RevokeHash(ctx context.Context, identityID, hash string) (bool, error) {
	return t.store.Remove(ctx, identityID, hash)
}

// RevokeAll empties identityID's set, invalidating every outstanding refresh token.
func (t *TokenIssuer) RevokeAll(ctx context.Context, identityID string) (int64, error) {
	return t.store.Clear(ctx, identityID)
}

// IsValid reports whether refreshToken verifies and is still in its subject's set.
func (t *TokenIssuer) IsValid(ctx context.Context, refreshToken string) bool {
	sub, err := t.Subject(refreshToken)
	if err != nil {
		return false
	}
	ok, err := t.store.Contains(ctx, sub, security.HashToken(refreshToken))
	return err == nil && ok
}

// ValidateAccess verifies an access token.
func (t *TokenIssuer) ValidateAccess(token string) (*security.AccessClaims, error) {
	claims, err := t.tokens.ValidateAccess(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// AccessTTL is the access token lifetime.
func (t *TokenIssuer) AccessTTL() time.Duration { return t.tokens.AccessTTL() }
