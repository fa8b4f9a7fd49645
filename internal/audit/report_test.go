package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"accessguard/internal/audit/domain"
)

func TestTrail_ComplianceReport(t *testing.T) {
	start := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	tr, _ := newTestTrail(start.AddDate(0, 0, 5))
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		tr.Record(ctx, domain.Event{
			Action:     domain.ActionUpdate,
			EntityType: "employee",
			EntityID:   fmt.Sprintf("e%d", i),
			ActorID:    fmt.Sprintf("actor-%02d", i),
			Timestamp:  start.Add(time.Duration(i) * time.Hour),
		})
	}
	for i := 0; i < 3; i++ {
		tr.Record(ctx, domain.Event{
			Action:     domain.ActionLoginFailed,
			EntityType: domain.EntityIdentity,
			EntityID:   "u",
			Timestamp:  start.AddDate(0, 0, 2),
		})
	}
	tr.Record(ctx, domain.Event{Action: domain.ActionRead, EntityType: "x", EntityID: "out", Timestamp: start.AddDate(0, 0, 3)})

	r, err := tr.ComplianceReport(ctx, start, start.AddDate(0, 0, 3))
	if err != nil {
		t.Fatalf("ComplianceReport: %v", err)
	}
	if r.TotalEvents != 15 {
		t.Errorf("TotalEvents = %d, want 15", r.TotalEvents)
	}
	if r.ByAction["update"] != 12 || r.ByAction["login_failed"] != 3 {
		t.Errorf("ByAction = %v", r.ByAction)
	}
	if len(r.TopActors) != topActorLimit {
		t.Fatalf("len(TopActors) = %d, want %d", len(r.TopActors), topActorLimit)
	}
	if r.TopActors[0].ActorID != domain.SystemActor || r.TopActors[0].Count != 3 {
		t.Errorf("TopActors[0] = %+v, want system actor with 3", r.TopActors[0])
	}
	want := []DayCount{{"2026-01-10", 12}, {"2026-01-11", 0}, {"2026-01-12", 3}}
	if len(r.Daily) != len(want) {
		t.Fatalf("Daily = %v, want %v", r.Daily, want)
	}
	for i := range want {
		if r.Daily[i] != want[i] {
			t.Errorf("Daily[%d] = %+v, want %+v", i, r.Daily[i], want[i])
		}
	}

	if _, err := tr.ComplianceReport(ctx, start, start); err == nil {
		t.Error("empty range should return error")
	}
}
