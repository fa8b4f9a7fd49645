// Package session tracks the live sessions of each identity and enforces the concurrent-session
// ceiling.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"accessguard/internal/audit"
	auditdomain "accessguard/internal/audit/domain"
	"accessguard/internal/platform/keylock"
	"accessguard/internal/platform/schedule"
	"accessguard/internal/security"
	"accessguard/internal/session/domain"
	sessionrepo "accessguard/internal/session/repository"
	"accessguard/internal/telemetry/metrics"
)

// ErrIdentityRequired is returned by Create without an owning identity.
var ErrIdentityRequired = errors.New("session: identity id is required")

// sessionIDBytes is the entropy of an opaque session id.
const sessionIDBytes = 32

// InvalidateHook runs after a session ends, e.g. to drop its CSRF token.
type InvalidateHook func(ctx context.Context, s *domain.Session)

// Options configures a Registry. Zero fields take the defaults below.
type Options struct {
	MaxSessions   int           // concurrent-session ceiling, default 5
	TTL           time.Duration // session lifetime, the refresh-token TTL; default 7 days
	SweepInterval time.Duration // default 5 minutes
	Retention     time.Duration // how long ended sessions stay for audit correlation; default 1 hour
}

func (o Options) withDefaults() Options {
	if o.MaxSessions < 1 {
		o.MaxSessions = 5
	}
	if o.TTL <= 0 {
		o.TTL = 7 * 24 * time.Hour
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = 5 * time.Minute
	}
	if o.Retention <= 0 {
		o.Retention = time.Hour
	}
	return o
}

// Registry owns the session table. Mutations of one identity's sessions are serialized by a
// per-identity lock; storage calls happen under it, password hashing never does.
type Registry struct {
	repo  sessionrepo.Repository
	audit audit.Recorder
	locks *keylock.Locker
	opts  Options
	now   func() time.Time

	hooksMu sync.RWMutex
	hooks   []InvalidateHook

	taskMu sync.Mutex
	task   *schedule.Task
}

// NewRegistry returns a Registry over repo. rec may be nil.
func NewRegistry(repo sessionrepo.Repository, rec audit.Recorder, opts Options) *Registry {
	return &Registry{
		repo:  repo,
		audit: rec,
		locks: keylock.New(),
		opts:  opts.withDefaults(),
		now:   time.Now,
	}
}

// OnInvalidate registers fn to run after every session end.
func (r *Registry) OnInvalidate(fn InvalidateHook) {
	r.hooksMu.Lock()
	r.hooks = append(r.hooks, fn)
	r.hooksMu.Unlock()
}

// MaxSessions returns the concurrent-session ceiling.
func (r *Registry) MaxSessions() int { return r.opts.MaxSessions }

// Create starts a session for identityID bound to refreshToken. When the identity already holds
// the ceiling, the least recently active sessions are evicted first; eviction and insertion
// happen under the same identity lock so the ceiling is never exceeded.
func (r *Registry) Create(ctx context.Context, identityID, refreshToken, userAgent, ip string) (*domain.Session, error) {
	if identityID == "" {
		return nil, ErrIdentityRequired
	}
	id, err := security.RandomToken(sessionIDBytes)
	if err != nil {
		return nil, err
	}

	unlock := r.locks.Lock(identityID)
	defer unlock()

	now := r.now().UTC()
	active, err := r.repo.ListActiveByIdentity(ctx, identityID, now)
	if err != nil {
		return nil, err
	}
	sort.Slice(active, func(i, j int) bool { return active[i].LastActivity.Before(active[j].LastActivity) })
	for len(active) >= r.opts.MaxSessions {
		victim := active[0]
		active = active[1:]
		if _, err := r.end(ctx, victim, domain.ReasonEvicted, now); err != nil {
			return nil, fmt.Errorf("session: evict %s: %w", victim.ID, err)
		}
	}

	s := &domain.Session{
		ID:               id,
		IdentityID:       identityID,
		RefreshTokenHash: security.HashToken(refreshToken),
		Device:           domain.ParseUserAgent(userAgent),
		UserAgent:        userAgent,
		IPAddress:        ip,
		CreatedAt:        now,
		LastActivity:     now,
		ExpiresAt:        now.Add(r.opts.TTL),
	}
	if err := r.repo.Create(ctx, s); err != nil {
		return nil, err
	}
	metrics.SessionCreated()
	return s, nil
}

// Touch records activity on a session. Ended sessions are left alone.
func (r *Registry) Touch(ctx context.Context, sessionID string) error {
	return r.repo.Touch(ctx, sessionID, r.now().UTC())
}

// Get returns the session if it is active, nil otherwise.
func (r *Registry) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	s, err := r.repo.GetByID(ctx, sessionID)
	if err != nil || s == nil || !s.IsActive(r.now()) {
		return nil, err
	}
	return s, nil
}

// IsActive reports whether sessionID names an active session. Storage errors count as inactive.
func (r *Registry) IsActive(ctx context.Context, sessionID string) bool {
	s, err := r.Get(ctx, sessionID)
	if err != nil {
		log.Printf("session: lookup %s failed: %v", sessionID, err)
		return false
	}
	return s != nil
}

// FindByRefreshToken returns the active session bound to refreshToken, or nil.
func (r *Registry) FindByRefreshToken(ctx context.Context, refreshToken string) (*domain.Session, error) {
	s, err := r.repo.GetByRefreshHash(ctx, security.HashToken(refreshToken))
	if err != nil || s == nil || !s.IsActive(r.now()) {
		return nil, err
	}
	return s, nil
}

// Rebind moves the session to a rotated refresh token and extends its expiry.
func (r *Registry) Rebind(ctx context.Context, sessionID, refreshToken string) error {
	now := r.now().UTC()
	if err := r.repo.Rebind(ctx, sessionID, security.HashToken(refreshToken), now.Add(r.opts.TTL)); err != nil {
		return err
	}
	return r.repo.Touch(ctx, sessionID, now)
}

// ListActive returns the identity's active sessions, most recently active first.
func (r *Registry) ListActive(ctx context.Context, identityID string) ([]*domain.Session, error) {
	list, err := r.repo.ListActiveByIdentity(ctx, identityID, r.now())
	if err != nil {
		return nil, err
	}
	sort.Slice(list, func(i, j int) bool { return list[i].LastActivity.After(list[j].LastActivity) })
	return list, nil
}

// Invalidate ends one session. Returns false if it was unknown or already ended.
func (r *Registry) Invalidate(ctx context.Context, sessionID, reason string) (bool, error) {
	s, err := r.repo.GetByID(ctx, sessionID)
	if err != nil || s == nil {
		return false, err
	}
	unlock := r.locks.Lock(s.IdentityID)
	defer unlock()
	return r.end(ctx, s, reason, r.now().UTC())
}

// InvalidateAll ends every active session of identityID and returns how many ended.
func (r *Registry) InvalidateAll(ctx context.Context, identityID, reason string) (int, error) {
	unlock := r.locks.Lock(identityID)
	defer unlock()
	now := r.now().UTC()
	active, err := r.repo.ListActiveByIdentity(ctx, identityID, now)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range active {
		ok, err := r.end(ctx, s, reason, now)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// SweepExpired ends sessions past their expiry and drops ended sessions older than the
// retention window. It works from a snapshot so foreground calls are not held up.
func (r *Registry) SweepExpired(ctx context.Context) (int, error) {
	now := r.now().UTC()
	expired, err := r.repo.ListExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range expired {
		ok, err := r.end(ctx, s, domain.ReasonExpired, now)
		if err != nil {
			log.Printf("session: sweep failed to end %s: %v", s.ID, err)
			continue
		}
		if ok {
			n++
		}
	}
	if _, err := r.repo.DeleteRevokedBefore(ctx, now.Add(-r.opts.Retention)); err != nil {
		log.Printf("session: sweep failed to drop ended sessions: %v", err)
	}
	return n, nil
}

// Start runs SweepExpired every SweepInterval until Stop or ctx is cancelled.
func (r *Registry) Start(ctx context.Context) {
	r.taskMu.Lock()
	defer r.taskMu.Unlock()
	if r.task != nil {
		return
	}
	r.task = schedule.Every(ctx, "session-sweep", r.opts.SweepInterval, func(ctx context.Context) {
		n, err := r.SweepExpired(ctx)
		if err != nil {
			log.Printf("session: sweep: %v", err)
			return
		}
		if n > 0 {
			log.Printf("session: sweep ended %d expired sessions", n)
		}
	})
}

// Stop halts the sweep and waits for an in-flight pass.
func (r *Registry) Stop() {
	r.taskMu.Lock()
	t := r.task
	r.task = nil
	r.taskMu.Unlock()
	t.Stop()
}

// end revokes s, audits it and runs the hooks. Only the caller that actually revoked the
// session sees true.
func (r *Registry) end(ctx context.Context, s *domain.Session, reason string, at time.Time) (bool, error) {
	ok, err := r.repo.Revoke(ctx, s.ID, reason, at)
	if err != nil || !ok {
		return false, err
	}
	s.RevokedAt = &at
	s.RevokeReason = reason
	metrics.SessionEnded(reason)
	if r.audit != nil {
		r.audit.Record(ctx, auditdomain.Event{
			Action:      auditdomain.ActionSessionEnded,
			EntityType:  auditdomain.EntitySession,
			EntityID:    s.ID,
			ActorID:     s.IdentityID,
			IPAddress:   s.IPAddress,
			UserAgent:   s.UserAgent,
			Description: reason,
			Metadata: map[string]any{
				"reason":        reason,
				"last_activity": s.LastActivity.Format(time.RFC3339),
				"device":        string(s.Device.Type),
			},
		})
	}
	r.hooksMu.RLock()
	hooks := append([]InvalidateHook(nil), r.hooks...)
	r.hooksMu.RUnlock()
	for _, h := range hooks {
		h(ctx, s)
	}
	return true, nil
}
