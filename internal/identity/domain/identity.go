package domain

import (
	"errors"
	"strings"
	"time"

	"accessguard/internal/platform/rbac"
)

// Identity is an authenticable account. It is never physically deleted; archiving is a
// status transition.
type Identity struct {
	ID                string
	Email             string
	PasswordHash      string
	FirstName         string
	LastName          string
	Role              rbac.Role
	Status            Status
	FailedLogins      int
	LockedUntil       *time.Time // nil when not locked
	PasswordChangedAt time.Time
	PasswordExpiresAt *time.Time // explicit expiry; nil derives it from the max-age policy
	PasswordHistory   []string   // prior hashes, newest first
	LastLoginAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Status is the account lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
	StatusPending   Status = "pending"
	StatusArchived  Status = "archived"
)

var (
	// ErrInvalidStatus is returned for an unknown status value.
	ErrInvalidStatus = errors.New("invalid status")
	// ErrInvalidTransition is returned when a status change is not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended, StatusPending, StatusArchived:
		return true
	}
	return false
}

// CanTransition reports whether an identity may move from s to next. An archived identity
// can only be restored to active; nothing moves back to pending.
func (s Status) CanTransition(next Status) bool {
	if !next.Valid() || s == next {
		return false
	}
	if s == StatusArchived {
		return next == StatusActive
	}
	return next != StatusPending
}

// NormalizeEmail trims and lower-cases an email for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate validates the identity for persistence. Returns an error describing the first validation failure.
func (i *Identity) Validate() error {
	if i.Email == "" {
		return errors.New("email is required")
	}
	if i.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	if !i.Role.Valid() {
		return errors.New("role is invalid")
	}
	if i.Status == "" {
		i.Status = StatusActive
	}
	if !i.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

// IsActive reports whether the identity may authenticate and own sessions.
func (i *Identity) IsActive() bool {
	return i.Status == StatusActive
}

// IsLocked reports whether a lockout is in force at now.
func (i *Identity) IsLocked(now time.Time) bool {
	return i.LockedUntil != nil && now.Before(*i.LockedUntil)
}

// DisplayName joins first and last name.
func (i *Identity) DisplayName() string {
	return strings.TrimSpace(i.FirstName + " " + i.LastName)
}
