// Package csrf issues and validates per-session anti-forgery tokens.
package csrf

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"sync"
	"time"

	"accessguard/internal/platform/schedule"
	"accessguard/internal/security"
)

// ErrInactiveSession is returned when a token is requested for a session that is not active.
var ErrInactiveSession = errors.New("csrf: session is not active")

// tokenBytes is the entropy of a CSRF token.
const tokenBytes = 32

// SessionChecker reports whether a session is active.
type SessionChecker interface {
	IsActive(ctx context.Context, sessionID string) bool
}

type entry struct {
	sessionID string
	tokenHash string
	expiresAt time.Time
}

// Guard holds exactly one live token per session. Tokens are kept by SHA-256 hash, indexed both
// by hash and by session.
type Guard struct {
	sessions SessionChecker
	ttl      time.Duration
	sweep    time.Duration
	now      func() time.Time

	mu        sync.Mutex
	byHash    map[string]*entry
	bySession map[string]*entry

	taskMu sync.Mutex
	task   *schedule.Task
}

// NewGuard returns a Guard. sessions may be nil, in which case only token state is checked.
// Non-positive durations default to 60 minutes for ttl and 5 minutes for sweepInterval.
func NewGuard(sessions SessionChecker, ttl, sweepInterval time.Duration) *Guard {
	if ttl <= 0 {
		ttl = 60 * time.Minute
	}
	if sweepInterval <= 0 {
		sweepInterval = 5 * time.Minute
	}
	return &Guard{
		sessions:  sessions,
		ttl:       ttl,
		sweep:     sweepInterval,
		now:       time.Now,
		byHash:    make(map[string]*entry),
		bySession: make(map[string]*entry),
	}
}

// Issue replaces any token of sessionID with a fresh one and returns it.
func (g *Guard) Issue(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" || (g.sessions != nil && !g.sessions.IsActive(ctx, sessionID)) {
		return "", ErrInactiveSession
	}
	token, err := security.RandomToken(tokenBytes)
	if err != nil {
		return "", err
	}
	e := &entry{sessionID: sessionID, tokenHash: security.HashToken(token), expiresAt: g.now().Add(g.ttl)}

	g.mu.Lock()
	g.dropLocked(sessionID)
	g.byHash[e.tokenHash] = e
	g.bySession[sessionID] = e
	g.mu.Unlock()
	return token, nil
}

// Rotate is Issue under its own name, used after token refresh.
func (g *Guard) Rotate(ctx context.Context, sessionID string) (string, error) {
	return g.Issue(ctx, sessionID)
}

// Validate reports whether token is the live token of sessionID. Unknown, expired or foreign
// tokens fail, as does any token of an inactive session. Expired tokens are purged on lookup.
func (g *Guard) Validate(ctx context.Context, token, sessionID string) bool {
	if token == "" || sessionID == "" {
		return false
	}
	hash := security.HashToken(token)

	g.mu.Lock()
	e, ok := g.byHash[hash]
	if ok && !g.now().Before(e.expiresAt) {
		g.dropLocked(e.sessionID)
		ok = false
	}
	g.mu.Unlock()

	if !ok || subtle.ConstantTimeCompare([]byte(e.sessionID), []byte(sessionID)) != 1 {
		return false
	}
	if g.sessions != nil && !g.sessions.IsActive(ctx, sessionID) {
		g.Revoke(sessionID)
		return false
	}
	return true
}

// Revoke drops the token of sessionID, if any.
func (g *Guard) Revoke(sessionID string) {
	g.mu.Lock()
	g.dropLocked(sessionID)
	g.mu.Unlock()
}

// Len returns the number of tokens held, expired ones included until swept.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.bySession)
}

// Sweep removes expired tokens and returns how many were removed. Candidates are collected
// under the lock and removed in a second short critical section.
func (g *Guard) Sweep() int {
	now := g.now()
	g.mu.Lock()
	var expired []string
	for sid, e := range g.bySession {
		if !now.Before(e.expiresAt) {
			expired = append(expired, sid)
		}
	}
	g.mu.Unlock()

	if len(expired) == 0 {
		return 0
	}
	n := 0
	g.mu.Lock()
	for _, sid := range expired {
		// The session may have been issued a fresh token in between.
		if e, ok := g.bySession[sid]; ok && !now.Before(e.expiresAt) {
			g.dropLocked(sid)
			n++
		}
	}
	g.mu.Unlock()
	return n
}

// Start runs Sweep on the sweep interval until Stop or ctx is cancelled.
func (g *Guard) Start(ctx context.Context) {
	g.taskMu.Lock()
	defer g.taskMu.Unlock()
	if g.task != nil {
		return
	}
	g.task = schedule.Every(ctx, "csrf-sweep", g.sweep, func(context.Context) {
		if n := g.Sweep(); n > 0 {
			log.Printf("csrf: sweep removed %d expired tokens", n)
		}
	})
}

// Stop halts the sweep.
func (g *Guard) Stop() {
	g.taskMu.Lock()
	t := g.task
	g.task = nil
	g.taskMu.Unlock()
	t.Stop()
}

func (g *Guard) dropLocked(sessionID string) {
	if e, ok := g.bySession[sessionID]; ok {
		delete(g.byHash, e.tokenHash)
		delete(g.bySession, sessionID)
	}
}
