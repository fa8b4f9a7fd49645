package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"accessguard/internal/audit/domain"
)

// MemoryRepository keeps audit events in process memory.
type MemoryRepository struct {
	mu     sync.RWMutex
	events []*domain.Event
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Create(ctx context.Context, e *domain.Event) error {
	c := *e
	r.mu.Lock()
	r.events = append(r.events, &c)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.events {
		if e.ID == id {
			c := *e
			return &c, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*domain.Event, error) {
	return r.filter(limit, func(e *domain.Event) bool {
		return e.EntityType == entityType && e.EntityID == entityID
	}), nil
}

func (r *MemoryRepository) ListByActor(ctx context.Context, actorID string, limit int) ([]*domain.Event, error) {
	return r.filter(limit, func(e *domain.Event) bool { return e.ActorID == actorID }), nil
}

func (r *MemoryRepository) ListByTimeRange(ctx context.Context, from, to time.Time, limit int) ([]*domain.Event, error) {
	return r.filter(limit, func(e *domain.Event) bool { return inRange(e.Timestamp, from, to) }), nil
}

func (r *MemoryRepository) Counts(ctx context.Context, from, to time.Time) (domain.Counts, error) {
	c := domain.NewCounts()
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.events {
		if inRange(e.Timestamp, from, to) {
			c.Add(e)
		}
	}
	return c, nil
}

func (r *MemoryRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.events[:0]
	var n int64
	for _, e := range r.events {
		if e.Timestamp.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(r.events); i++ {
		r.events[i] = nil
	}
	r.events = kept
	return n, nil
}

func (r *MemoryRepository) filter(limit int, keep func(*domain.Event) bool) []*domain.Event {
	r.mu.RLock()
	var out []*domain.Event
	for _, e := range r.events {
		if keep(e) {
			c := *e
			out = append(out, &c)
		}
	}
	r.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}
