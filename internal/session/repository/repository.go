package repository

import (
	"context"
	"time"

	"accessguard/internal/session/domain"
)

// Repository defines persistence for sessions. Lookups return (nil, nil) for a missing row.
type Repository interface {
	Create(ctx context.Context, s *domain.Session) error
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// GetByRefreshHash returns the active session bound to a refresh-token hash.
	GetByRefreshHash(ctx context.Context, hash string) (*domain.Session, error)
	// ListActiveByIdentity returns sessions of identityID that are neither revoked nor expired at now.
	ListActiveByIdentity(ctx context.Context, identityID string, now time.Time) ([]*domain.Session, error)
	// Touch sets last activity on an unrevoked session; a revoked or missing session is a no-op.
	Touch(ctx context.Context, id string, at time.Time) error
	// Rebind moves a session to a new refresh-token hash and expiry.
	Rebind(ctx context.Context, id, hash string, expiresAt time.Time) error
	// Revoke marks the session revoked. Returns false if it was missing or already revoked.
	Revoke(ctx context.Context, id, reason string, at time.Time) (bool, error)
	// ListExpired returns unrevoked sessions whose expiry is at or before now.
	ListExpired(ctx context.Context, now time.Time) ([]*domain.Session, error)
	// DeleteRevokedBefore drops sessions revoked before cutoff.
	DeleteRevokedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
