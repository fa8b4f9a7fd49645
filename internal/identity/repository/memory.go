package repository

import (
	"context"
	"sync"
	"time"

	"accessguard/internal/identity/domain"
)

// MemoryRepository keeps identities in process memory. Stored values are copied in and out.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.Identity
	byEmail map[string]string
}

// NewMemoryRepository returns an empty in-memory identity repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]*domain.Identity), byEmail: make(map[string]string)}
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return clone(i), nil
}

func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return nil, nil
	}
	return clone(r.byID[id]), nil
}

func (r *MemoryRepository) Create(ctx context.Context, i *domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	email := domain.NormalizeEmail(i.Email)
	if _, ok := r.byEmail[email]; ok {
		return ErrDuplicateEmail
	}
	c := clone(i)
	c.Email = email
	r.byID[i.ID] = c
	r.byEmail[email] = i.ID
	return nil
}

// Update keeps the stored lockout state; see RecordFailedLogin and ResetFailedLogins.
func (r *MemoryRepository) Update(ctx context.Context, i *domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byID[i.ID]
	if !ok {
		return nil
	}
	c := clone(i)
	c.FailedLogins = cur.FailedLogins
	c.LockedUntil = copyTime(cur.LockedUntil)
	r.byID[i.ID] = c
	return nil
}

func (r *MemoryRepository) RecordFailedLogin(ctx context.Context, id string, maxFailures int, lockUntil time.Time) (int, *time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.byID[id]
	if !ok {
		return 0, nil, nil
	}
	i.FailedLogins++
	if i.FailedLogins >= maxFailures {
		t := lockUntil
		i.LockedUntil = &t
	}
	i.UpdatedAt = time.Now().UTC()
	return i.FailedLogins, copyTime(i.LockedUntil), nil
}

func (r *MemoryRepository) ResetFailedLogins(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.byID[id]
	if !ok {
		return nil
	}
	i.FailedLogins = 0
	i.LockedUntil = nil
	i.LastLoginAt = &at
	i.UpdatedAt = at
	return nil
}

func (r *MemoryRepository) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[domain.Status]int)
	for _, i := range r.byID {
		out[i.Status]++
	}
	return out, nil
}

func clone(i *domain.Identity) *domain.Identity {
	c := *i
	c.LockedUntil = copyTime(i.LockedUntil)
	c.PasswordExpiresAt = copyTime(i.PasswordExpiresAt)
	c.LastLoginAt = copyTime(i.LastLoginAt)
	c.PasswordHistory = append([]string(nil), i.PasswordHistory...)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
