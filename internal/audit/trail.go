package audit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"accessguard/internal/audit/domain"
	auditrepo "accessguard/internal/audit/repository"
)

// ErrInvalidRetention is returned by PurgeOlderThan for a non-positive horizon.
var ErrInvalidRetention = errors.New("audit: retention days must be positive")

// IPExtractor returns the client IP from the request context (e.g. gRPC metadata or peer).
type IPExtractor func(context.Context) string

// Recorder writes audit events. Record is best-effort: failures are logged and do not affect the
// caller. Used by session, monitor and auth code paths.
type Recorder interface {
	Record(ctx context.Context, e domain.Event)
}

// Trail is the audit trail over a repository. It masks payloads, stamps id and time, and computes
// the integrity hash before persisting.
type Trail struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	now         func() time.Time
	wg          sync.WaitGroup
}

// NewTrail returns a Trail that persists to repo and uses ipExtractor to fill a missing source IP.
// ipExtractor may be nil; then a missing IP is recorded as "unknown".
func NewTrail(repo auditrepo.Repository, ipExtractor IPExtractor) *Trail {
	return &Trail{repo: repo, ipExtractor: ipExtractor, now: time.Now}
}

// Record persists one event. Errors are logged and swallowed.
func (t *Trail) Record(ctx context.Context, e domain.Event) {
	if t == nil || t.repo == nil {
		return
	}
	ev := t.prepare(ctx, e)
	if err := t.repo.Create(ctx, ev); err != nil {
		log.Printf("audit: failed to record %s %s/%s: %v", ev.Action, ev.EntityType, ev.EntityID, err)
	}
}

// RecordAsync records e on its own goroutine, detached from ctx cancellation.
func (t *Trail) RecordAsync(ctx context.Context, e domain.Event) {
	if t == nil || t.repo == nil {
		return
	}
	// Resolve the IP while the request context still carries it.
	if e.IPAddress == "" && t.ipExtractor != nil {
		e.IPAddress = t.ipExtractor(ctx)
	}
	detached := context.WithoutCancel(ctx)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.Record(detached, e)
	}()
}

// Wait blocks until every RecordAsync write has finished.
func (t *Trail) Wait() {
	t.wg.Wait()
}

func (t *Trail) prepare(ctx context.Context, e domain.Event) *domain.Event {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = t.now()
	}
	// Postgres keeps microseconds; the hash must survive a round trip.
	e.Timestamp = e.Timestamp.UTC().Truncate(time.Microsecond)
	e.EntityID = domain.CanonicalEntityID(e.EntityID)
	if e.IPAddress == "" {
		e.IPAddress = "unknown"
		if t.ipExtractor != nil {
			if ip := t.ipExtractor(ctx); ip != "" {
				e.IPAddress = ip
			}
		}
	}
	e.Before = MaskMap(e.Before)
	e.After = MaskMap(e.After)
	e.Metadata = MaskMap(e.Metadata)
	e.IntegrityHash = IntegrityHash(&e)
	return &e
}

// ByEntity returns the events recorded for one entity, newest first.
func (t *Trail) ByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*domain.Event, error) {
	return t.repo.ListByEntity(ctx, entityType, domain.CanonicalEntityID(entityID), limit)
}

// ByActor returns the events recorded for an actor, newest first.
func (t *Trail) ByActor(ctx context.Context, actorID string, limit int) ([]*domain.Event, error) {
	return t.repo.ListByActor(ctx, actorID, limit)
}

// ByTimeRange returns events with from <= timestamp < to, newest first.
func (t *Trail) ByTimeRange(ctx context.Context, from, to time.Time, limit int) ([]*domain.Event, error) {
	return t.repo.ListByTimeRange(ctx, from, to, limit)
}

// Counts aggregates events by action, entity type, actor and day.
func (t *Trail) Counts(ctx context.Context, from, to time.Time) (domain.Counts, error) {
	return t.repo.Counts(ctx, from, to)
}

// PurgeOlderThan deletes events older than days and returns the number removed. The purge itself
// is recorded.
func (t *Trail) PurgeOlderThan(ctx context.Context, days int, actorID string) (int64, error) {
	if days <= 0 {
		return 0, ErrInvalidRetention
	}
	cutoff := t.now().UTC().AddDate(0, 0, -days)
	n, err := t.repo.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit: purge: %w", err)
	}
	log.Printf("audit: purged %d events older than %s", n, cutoff.Format(time.RFC3339))
	t.Record(ctx, domain.Event{
		Action:      domain.ActionAuditPurged,
		EntityType:  domain.EntityAudit,
		EntityID:    "retention",
		ActorID:     actorID,
		Description: fmt.Sprintf("purged %d events older than %d days", n, days),
		Metadata:    map[string]any{"removed": n, "cutoff": cutoff.Format(time.RFC3339)},
	})
	return n, nil
}
