package domain

import "time"

// Session is one authenticated device/browser instance of an identity.
type Session struct {
	ID               string
	IdentityID       string
	RefreshTokenHash string // SHA-256 of the refresh token the session is bound to
	Device           DeviceInfo
	UserAgent        string
	IPAddress        string
	CreatedAt        time.Time
	LastActivity     time.Time
	ExpiresAt        time.Time
	RevokedAt        *time.Time // nil while active
	RevokeReason     string
}

// Reasons recorded when a session ends.
const (
	ReasonLogout          = "logout"
	ReasonLogoutAll       = "logout all sessions"
	ReasonExpired         = "expired"
	ReasonEvicted         = "concurrent session limit exceeded"
	ReasonPasswordChanged = "password changed"
	ReasonStatusChanged   = "account status changed"
	ReasonRevoked         = "revoked by administrator"
	ReasonTokenRefresh    = "refresh token no longer valid"
)

// IsActive reports whether the session is neither revoked nor expired at now.
func (s *Session) IsActive(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
