package repository

import (
	"context"
	"sync"
	"time"

	"accessguard/internal/session/domain"
)

// MemoryRepository keeps sessions in process memory, indexed by id and by identity.
type MemoryRepository struct {
	mu         sync.RWMutex
	byID       map[string]*domain.Session
	byIdentity map[string]map[string]struct{}
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:       make(map[string]*domain.Session),
		byIdentity: make(map[string]map[string]struct{}),
	}
}

func (r *MemoryRepository) Create(ctx context.Context, s *domain.Session) error {
	c := *s
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[s.ID] = &c
	ids, ok := r.byIdentity[s.IdentityID]
	if !ok {
		ids = make(map[string]struct{})
		r.byIdentity[s.IdentityID] = ids
	}
	ids[s.ID] = struct{}{}
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return copySession(s), nil
}

func (r *MemoryRepository) GetByRefreshHash(ctx context.Context, hash string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.byID {
		if s.RevokedAt == nil && s.RefreshTokenHash == hash {
			return copySession(s), nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) ListActiveByIdentity(ctx context.Context, identityID string, now time.Time) ([]*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Session
	for id := range r.byIdentity[identityID] {
		if s := r.byID[id]; s.IsActive(now) {
			out = append(out, copySession(s))
		}
	}
	return out, nil
}

func (r *MemoryRepository) Touch(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byID[id]; ok && s.RevokedAt == nil {
		s.LastActivity = at
	}
	return nil
}

func (r *MemoryRepository) Rebind(ctx context.Context, id, hash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byID[id]; ok && s.RevokedAt == nil {
		s.RefreshTokenHash = hash
		s.ExpiresAt = expiresAt
	}
	return nil
}

func (r *MemoryRepository) Revoke(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok || s.RevokedAt != nil {
		return false, nil
	}
	s.RevokedAt = &at
	s.RevokeReason = reason
	// Only the active index drops the session; the record stays until DeleteRevokedBefore.
	delete(r.byIdentity[s.IdentityID], id)
	if len(r.byIdentity[s.IdentityID]) == 0 {
		delete(r.byIdentity, s.IdentityID)
	}
	return true, nil
}

// ListExpired snapshots matching sessions under the read lock; callers revoke them afterwards.
func (r *MemoryRepository) ListExpired(ctx context.Context, now time.Time) ([]*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Session
	for _, s := range r.byID {
		if s.RevokedAt == nil && !now.Before(s.ExpiresAt) {
			out = append(out, copySession(s))
		}
	}
	return out, nil
}

func (r *MemoryRepository) DeleteRevokedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.byID {
		if s.RevokedAt != nil && s.RevokedAt.Before(cutoff) {
			delete(r.byID, id)
			n++
		}
	}
	return n, nil
}

func copySession(s *domain.Session) *domain.Session {
	c := *s
	if s.RevokedAt != nil {
		t := *s.RevokedAt
		c.RevokedAt = &t
	}
	return &c
}
