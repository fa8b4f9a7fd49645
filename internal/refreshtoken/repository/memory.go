package repository

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository keeps refresh-token sets in process memory.
type MemoryRepository struct {
	mu   sync.Mutex
	sets map[string]map[string]time.Time
	now  func() time.Time
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sets: make(map[string]map[string]time.Time), now: time.Now}
}

func (r *MemoryRepository) Add(ctx context.Context, userID, hash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sets[userID]
	if !ok {
		set = make(map[string]time.Time)
		r.sets[userID] = set
	}
	r.pruneLocked(set)
	set[hash] = expiresAt
	return nil
}

func (r *MemoryRepository) Rotate(ctx context.Context, userID, oldHash, newHash string, expiresAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.sets[userID]
	exp, ok := set[oldHash]
	if !ok || !r.now().Before(exp) {
		return false, nil
	}
	delete(set, oldHash)
	set[newHash] = expiresAt
	return true, nil
}

func (r *MemoryRepository) Remove(ctx context.Context, userID, hash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.sets[userID]
	if _, ok := set[hash]; !ok {
		return false, nil
	}
	delete(set, hash)
	if len(set) == 0 {
		delete(r.sets, userID)
	}
	return true, nil
}

func (r *MemoryRepository) Clear(ctx context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := int64(len(r.sets[userID]))
	delete(r.sets, userID)
	return n, nil
}

func (r *MemoryRepository) Contains(ctx context.Context, userID, hash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	exp, ok := r.sets[userID][hash]
	return ok && r.now().Before(exp), nil
}

func (r *MemoryRepository) pruneLocked(set map[string]time.Time) {
	now := r.now()
	for h, exp := range set {
		if !now.Before(exp) {
			delete(set, h)
		}
	}
}
