package security

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired or otherwise invalid.
	// Callers must not reveal which check failed.
	ErrInvalidToken = errors.New("invalid token")
)

// AccessClaims holds JWT claims for the access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email     string `json:"email"`
	Role      string `json:"role"`
	SessionID string `json:"sid,omitempty"`
}

// RefreshClaims holds JWT claims for the refresh token: subject and jti only.
type RefreshClaims struct {
	jwt.RegisteredClaims
}

// AccessSubject is what an access token asserts about its bearer.
type AccessSubject struct {
	UserID    string
	Email     string
	Role      string
	SessionID string
}

// TokenProvider issues and validates access and refresh JWTs. Access tokens use RS256/ES256
// when a key pair is configured and HS256 otherwise; refresh tokens use HS256 with a
// separate secret.
type TokenProvider struct {
	keys       SigningKeys
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenProvider returns a TokenProvider. issuer and audience are set on claims and
// validated on parse.
func NewTokenProvider(keys SigningKeys, issuer, audience string, accessTTL, refreshTTL time.Duration) (*TokenProvider, error) {
	if err := keys.validate(); err != nil {
		return nil, err
	}
	return &TokenProvider{
		keys:       keys,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

// AccessTTL returns the access token lifetime.
func (p *TokenProvider) AccessTTL() time.Duration { return p.accessTTL }

// RefreshTTL returns the refresh token lifetime.
func (p *TokenProvider) RefreshTTL() time.Duration { return p.refreshTTL }

// IssueAccess issues a short-lived access JWT. Returns the token string, its jti and expiration time.
func (p *TokenProvider) IssueAccess(sub AccessSubject) (token, jti string, expiresAt time.Time, err error) {
	jti, err = generateJTI()
	if err != nil {
		return "", "", time.Time{}, err
	}
	now := time.Now().UTC()
	expiresAt = now.Add(p.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: p.registered(sub.UserID, jti, now, expiresAt),
		Email:            sub.Email,
		Role:             sub.Role,
		SessionID:        sub.SessionID,
	}
	if p.keys.PrivateKey != nil {
		method, err := asymmetricMethod(p.keys.PrivateKey.Public())
		if err != nil {
			return "", "", time.Time{}, err
		}
		token, err = jwt.NewWithClaims(method, claims).SignedString(p.keys.PrivateKey)
		return token, jti, expiresAt, err
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.keys.AccessSecret)
	return token, jti, expiresAt, err
}

// IssueRefresh issues a long-lived refresh JWT carrying only the subject and a unique jti.
func (p *TokenProvider) IssueRefresh(userID string) (token, jti string, expiresAt time.Time, err error) {
	jti, err = generateJTI()
	if err != nil {
		return "", "", time.Time{}, err
	}
	now := time.Now().UTC()
	expiresAt = now.Add(p.refreshTTL)
	claims := RefreshClaims{RegisteredClaims: p.registered(userID, jti, now, expiresAt)}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.keys.RefreshSecret)
	return token, jti, expiresAt, err
}

// ValidateAccess parses and validates the access token (signature, exp, iss, aud).
func (p *TokenProvider) ValidateAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if p.keys.PrivateKey != nil {
			switch token.Method.(type) {
			case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
				return p.keys.PublicKey, nil
			}
			return nil, ErrInvalidToken
		}
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
			return p.keys.AccessSecret, nil
		}
		return nil, ErrInvalidToken
	})
	if err != nil || !token.Valid || !p.claimsMatch(claims.RegisteredClaims) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ValidateRefresh parses and validates the refresh token (signature, exp, iss, aud).
// Returns the subject and jti.
func (p *TokenProvider) ValidateRefresh(tokenString string) (userID, jti string, err error) {
	claims := &RefreshClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
			return p.keys.RefreshSecret, nil
		}
		return nil, ErrInvalidToken
	})
	if err != nil || !token.Valid || !p.claimsMatch(claims.RegisteredClaims) {
		return "", "", ErrInvalidToken
	}
	return claims.Subject, claims.ID, nil
}

func (p *TokenProvider) registered(subject, jti string, now, expiresAt time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        jti,
		Subject:   subject,
		Issuer:    p.issuer,
		Audience:  jwt.ClaimStrings{p.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
}

func (p *TokenProvider) claimsMatch(c jwt.RegisteredClaims) bool {
	if c.Subject == "" || c.Issuer != p.issuer {
		return false
	}
	return slices.Contains(c.Audience, p.audience)
}

func asymmetricMethod(pub any) (jwt.SigningMethod, error) {
	switch pub.(type) {
	case *rsa.PublicKey:
		return jwt.SigningMethodRS256, nil
	case *ecdsa.PublicKey:
		return jwt.SigningMethodES256, nil
	default:
		return nil, ErrInvalidToken
	}
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
