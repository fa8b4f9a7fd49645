package security

import (
	"testing"
	"time"
)

func TestTokenProvider_IssueAccessAndRefresh(t *testing.T) {
	for name, newProvider := range map[string]func() (*TokenProvider, error){
		"hs256": NewTestTokenProvider,
		"rs256": NewTestPEMTokenProvider,
	} {
		t.Run(name, func(t *testing.T) {
			p, err := newProvider()
			if err != nil {
				t.Fatalf("new provider: %v", err)
			}
			sub := AccessSubject{UserID: "u1", Email: "a@example.com", Role: "admin", SessionID: "s1"}

			access, accessJti, exp, err := p.IssueAccess(sub)
			if err != nil {
				t.Fatalf("IssueAccess: %v", err)
			}
			if access == "" || accessJti == "" {
				t.Fatal("access token or jti empty")
			}
			if exp.Before(time.Now()) {
				t.Fatal("expires at in the past")
			}
			claims, err := p.ValidateAccess(access)
			if err != nil {
				t.Fatalf("ValidateAccess: %v", err)
			}
			if claims.Subject != "u1" || claims.Email != sub.Email || claims.Role != sub.Role || claims.SessionID != "s1" {
				t.Errorf("ValidateAccess: got %+v", claims)
			}

			refresh, jti, refreshExp, err := p.IssueRefresh("u1")
			if err != nil {
				t.Fatalf("IssueRefresh: %v", err)
			}
			if refreshExp.Before(exp) {
				t.Error("refresh token should outlive access token")
			}
			uid, jti2, err := p.ValidateRefresh(refresh)
			if err != nil {
				t.Fatalf("ValidateRefresh: %v", err)
			}
			if uid != "u1" || jti2 != jti {
				t.Errorf("ValidateRefresh: got userID=%q jti=%q", uid, jti2)
			}
		})
	}
}

func TestTokenProvider_RefreshAndAccessNotInterchangeable(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	access, _, _, _ := p.IssueAccess(AccessSubject{UserID: "u1"})
	refresh, _, _, _ := p.IssueRefresh("u1")
	if _, _, err := p.ValidateRefresh(access); err != ErrInvalidToken {
		t.Errorf("ValidateRefresh(access) = %v, want ErrInvalidToken", err)
	}
	if _, err := p.ValidateAccess(refresh); err != ErrInvalidToken {
		t.Errorf("ValidateAccess(refresh) = %v, want ErrInvalidToken", err)
	}
}

func TestTokenProvider_Invalid(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	if _, _, err := p.ValidateRefresh("invalid-token"); err != ErrInvalidToken {
		t.Errorf("ValidateRefresh invalid token: want ErrInvalidToken, got %v", err)
	}
	if _, err := p.ValidateAccess("invalid-token"); err != ErrInvalidToken {
		t.Errorf("ValidateAccess invalid token: want ErrInvalidToken, got %v", err)
	}

	other, err := NewTokenProvider(SigningKeys{AccessSecret: []byte("x"), RefreshSecret: []byte("y")}, "test-issuer", "other-audience", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("NewTokenProvider: %v", err)
	}
	tok, _, _, _ := other.IssueRefresh("u1")
	if _, _, err := p.ValidateRefresh(tok); err != ErrInvalidToken {
		t.Errorf("foreign refresh token: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_Expired(t *testing.T) {
	p, err := NewTokenProvider(SigningKeys{AccessSecret: []byte("a"), RefreshSecret: []byte("r")}, "i", "a", -time.Minute, -time.Minute)
	if err != nil {
		t.Fatalf("NewTokenProvider: %v", err)
	}
	access, _, _, _ := p.IssueAccess(AccessSubject{UserID: "u1"})
	if _, err := p.ValidateAccess(access); err != ErrInvalidToken {
		t.Errorf("expired access: want ErrInvalidToken, got %v", err)
	}
	refresh, _, _, _ := p.IssueRefresh("u1")
	if _, _, err := p.ValidateRefresh(refresh); err != ErrInvalidToken {
		t.Errorf("expired refresh: want ErrInvalidToken, got %v", err)
	}
}

func TestParseTTL(t *testing.T) {
	def := 15 * time.Minute
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"15m", 15 * time.Minute},
		{"7d", 7 * 24 * time.Hour},
		{"2w", 14 * 24 * time.Hour},
		{"1h30m", 90 * time.Minute},
		{"3600", time.Hour},
		{" 24H ", 24 * time.Hour},
		{"", def},
		{"abc", def},
		{"-5m", def},
		{"0", def},
		{"xd", def},
	}
	for _, tt := range tests {
		if got := ParseTTL(tt.in, def); got != tt.want {
			t.Errorf("ParseTTL(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
