package domain

import (
	"testing"
	"time"
)

func TestCanonicalEntityID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  6F9619FF-8B86-D011-B42D-00CF4FC964FF ", "6f9619ff-8b86-d011-b42d-00cf4fc964ff"},
		{"6f9619ff8b86d011b42d00cf4fc964ff", "6f9619ff-8b86-d011-b42d-00cf4fc964ff"},
		{" emp-42 ", "emp-42"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CanonicalEntityID(tt.in); got != tt.want {
			t.Errorf("CanonicalEntityID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCounts_Add(t *testing.T) {
	c := NewCounts()
	ts := time.Date(2026, 3, 4, 23, 30, 0, 0, time.UTC)
	c.Add(&Event{Action: ActionLogout, EntityType: EntitySession, ActorID: "u1", Timestamp: ts})
	c.Add(&Event{Action: ActionLoginFailed, EntityType: EntityIdentity, Timestamp: ts.Add(time.Hour)})
	if c.Total != 2 {
		t.Errorf("Total = %d, want 2", c.Total)
	}
	if c.ByActor[SystemActor] != 1 || c.ByActor["u1"] != 1 {
		t.Errorf("ByActor = %v", c.ByActor)
	}
	if c.ByDay["2026-03-04"] != 1 || c.ByDay["2026-03-05"] != 1 {
		t.Errorf("ByDay = %v", c.ByDay)
	}
}
