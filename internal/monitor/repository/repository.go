// Package repository persists threats so they survive a restart and can be queried offline.
package repository

import (
	"context"
	"time"

	"accessguard/internal/monitor/domain"
)

// Repository is the durable threat store. The monitor keeps its working set in memory and
// writes through to a Repository when one is configured.
type Repository interface {
	Save(ctx context.Context, t *domain.Threat) error
	// MarkResolved stamps an unresolved threat; it reports false when id is unknown or already resolved.
	MarkResolved(ctx context.Context, id, resolvedBy string, at time.Time) (bool, error)
	// ListSince returns threats reported at or after since, oldest first.
	ListSince(ctx context.Context, since time.Time) ([]*domain.Threat, error)
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
