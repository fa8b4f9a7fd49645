package repository

import (
	"context"
	"errors"
	"time"

	"accessguard/internal/identity/domain"
)

// ErrDuplicateEmail is returned by Create when the email is already registered.
var ErrDuplicateEmail = errors.New("email already registered")

// Repository defines persistence for identities. Lookups return (nil, nil) for a missing row.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Identity, error)
	GetByEmail(ctx context.Context, email string) (*domain.Identity, error)
	Create(ctx context.Context, i *domain.Identity) error
	// Update writes every mutable field of i except the failure counter and lockout, which
	// only RecordFailedLogin and ResetFailedLogins change.
	Update(ctx context.Context, i *domain.Identity) error
	// RecordFailedLogin increments the failure counter in one step and, once it reaches
	// maxFailures, sets the lockout to lockUntil. Returns the new count and lockout.
	RecordFailedLogin(ctx context.Context, id string, maxFailures int, lockUntil time.Time) (int, *time.Time, error)
	// ResetFailedLogins clears the counter and lockout and stamps the last login time.
	ResetFailedLogins(ctx context.Context, id string, at time.Time) error
	// CountByStatus returns identity counts per status.
	CountByStatus(ctx context.Context) (map[domain.Status]int, error)
}
