package csrf

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeSessions marks sessions active until ended.
type fakeSessions struct {
	mu    sync.Mutex
	ended map[string]bool
}

func (f *fakeSessions) IsActive(ctx context.Context, sessionID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.ended[sessionID]
}

func (f *fakeSessions) end(id string) {
	f.mu.Lock()
	if f.ended == nil {
		f.ended = make(map[string]bool)
	}
	f.ended[id] = true
	f.mu.Unlock()
}

func newTestGuard() (*Guard, *fakeSessions, *time.Time) {
	sessions := &fakeSessions{}
	g := NewGuard(sessions, time.Hour, time.Minute)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }
	return g, sessions, &now
}

func TestGuard_Validate(t *testing.T) {
	ctx := context.Background()
	g, _, now := newTestGuard()
	tok, err := g.Issue(ctx, "s1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	other, _ := g.Issue(ctx, "s2")

	tests := []struct {
		name      string
		token     string
		sessionID string
		want      bool
	}{
		{"issued token", tok, "s1", true},
		{"unknown token", "nope", "s1", false},
		{"other session's token", other, "s1", false},
		{"empty token", "", "s1", false},
		{"empty session", tok, "", false},
	}
	for _, tt := range tests {
		if got := g.Validate(ctx, tt.token, tt.sessionID); got != tt.want {
			t.Errorf("%s: Validate = %v, want %v", tt.name, got, tt.want)
		}
	}

	*now = now.Add(time.Hour)
	if g.Validate(ctx, tok, "s1") {
		t.Error("expired token should not validate")
	}
	if g.Len() != 1 {
		t.Errorf("Len = %d, want 1 after the expired token was purged on lookup", g.Len())
	}
}

func TestGuard_OnlyLatestTokenValidates(t *testing.T) {
	ctx := context.Background()
	g, _, _ := newTestGuard()
	first, _ := g.Issue(ctx, "s1")
	second, _ := g.Rotate(ctx, "s1")
	if g.Validate(ctx, first, "s1") {
		t.Error("rotated-out token should not validate")
	}
	if !g.Validate(ctx, second, "s1") {
		t.Error("latest token should validate")
	}
	third, _ := g.Issue(ctx, "s1")
	if g.Validate(ctx, second, "s1") || !g.Validate(ctx, third, "s1") {
		t.Error("Issue should supersede the previous token")
	}
}

func TestGuard_InactiveSession(t *testing.T) {
	ctx := context.Background()
	g, sessions, _ := newTestGuard()
	tok, _ := g.Issue(ctx, "s1")
	sessions.end("s1")
	if g.Validate(ctx, tok, "s1") {
		t.Error("token of an ended session should not validate")
	}
	if _, err := g.Issue(ctx, "s1"); err != ErrInactiveSession {
		t.Errorf("Issue for ended session err = %v, want ErrInactiveSession", err)
	}
	if g.Len() != 0 {
		t.Errorf("Len = %d, want 0", g.Len())
	}
}

func TestGuard_RevokeAndSweep(t *testing.T) {
	ctx := context.Background()
	g, _, now := newTestGuard()
	a, _ := g.Issue(ctx, "a")
	_, _ = g.Issue(ctx, "b")
	g.Revoke("a")
	if g.Validate(ctx, a, "a") {
		t.Error("revoked token should not validate")
	}
	*now = now.Add(30 * time.Minute)
	_, _ = g.Issue(ctx, "c")
	*now = now.Add(31 * time.Minute)
	if n := g.Sweep(); n != 1 {
		t.Errorf("Sweep removed %d, want 1", n)
	}
	if g.Len() != 1 {
		t.Errorf("Len = %d, want 1", g.Len())
	}
}

func TestGuard_StartStop(t *testing.T) {
	g := NewGuard(nil, 0, time.Millisecond)
	g.Start(context.Background())
	time.Sleep(3 * time.Millisecond)
	g.Stop()
	g.Stop()
}
