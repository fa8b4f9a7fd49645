package audit

import (
	"context"
	"errors"
	"sort"
	"time"

	"accessguard/internal/audit/domain"
)

// ErrEmptyRange is returned by ComplianceReport when from is not before to.
var ErrEmptyRange = errors.New("audit: report range is empty")

// topActorLimit is the number of actors listed in a compliance report.
const topActorLimit = 10

// ActorCount is one row of the top-actors table.
type ActorCount struct {
	ActorID string `json:"actor_id"`
	Count   int    `json:"count"`
}

// DayCount is one bucket of the daily histogram.
type DayCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

// ComplianceReport summarizes audit activity over [From, To).
type ComplianceReport struct {
	From         time.Time      `json:"from"`
	To           time.Time      `json:"to"`
	GeneratedAt  time.Time      `json:"generated_at"`
	TotalEvents  int            `json:"total_events"`
	ByAction     map[string]int `json:"by_action"`
	ByEntityType map[string]int `json:"by_entity_type"`
	TopActors    []ActorCount   `json:"top_actors"`
	Daily        []DayCount     `json:"daily"`
}

// ComplianceReport builds the report for [from, to). Days with no events are included with zero
// counts so the histogram is contiguous.
func (t *Trail) ComplianceReport(ctx context.Context, from, to time.Time) (*ComplianceReport, error) {
	if !from.Before(to) {
		return nil, ErrEmptyRange
	}
	c, err := t.repo.Counts(ctx, from, to)
	if err != nil {
		return nil, err
	}
	r := &ComplianceReport{
		From:         from.UTC(),
		To:           to.UTC(),
		GeneratedAt:  t.now().UTC(),
		TotalEvents:  c.Total,
		ByAction:     c.ByAction,
		ByEntityType: c.ByEntityType,
		TopActors:    topActors(c.ByActor, topActorLimit),
	}
	last := to.UTC().Add(-time.Nanosecond)
	for d := truncateDay(from.UTC()); !d.After(last); d = d.AddDate(0, 0, 1) {
		key := d.Format(domain.DayLayout)
		r.Daily = append(r.Daily, DayCount{Day: key, Count: c.ByDay[key]})
	}
	return r, nil
}

func topActors(byActor map[string]int, n int) []ActorCount {
	out := make([]ActorCount, 0, len(byActor))
	for id, c := range byActor {
		out = append(out, ActorCount{ActorID: id, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].ActorID < out[j].ActorID
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
