package repository

import (
	"context"
	"time"

	"accessguard/internal/audit/domain"
)

// Repository defines persistence for audit events. Events are append-only; the only deletion is
// the retention purge.
type Repository interface {
	Create(ctx context.Context, e *domain.Event) error
	GetByID(ctx context.Context, id string) (*domain.Event, error)
	// ListByEntity returns events for one entity, newest first.
	ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*domain.Event, error)
	// ListByActor returns events recorded for actorID, newest first.
	ListByActor(ctx context.Context, actorID string, limit int) ([]*domain.Event, error)
	// ListByTimeRange returns events with from <= timestamp < to, newest first.
	ListByTimeRange(ctx context.Context, from, to time.Time, limit int) ([]*domain.Event, error)
	// Counts aggregates events with from <= timestamp < to.
	Counts(ctx context.Context, from, to time.Time) (domain.Counts, error)
	// DeleteBefore removes events older than cutoff and returns how many were removed.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
