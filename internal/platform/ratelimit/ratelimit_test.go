package ratelimit

import (
	"testing"
	"time"
)

func TestLimiter_BurstThenDeny(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	l := New(3, time.Minute)
	l.now = func() time.Time { return now }
	for i := 0; i < 3; i++ {
		if !l.Allow("10.0.0.1") {
			t.Fatalf("attempt %d denied, want allowed", i+1)
		}
	}
	if l.Allow("10.0.0.1") {
		t.Error("4th attempt allowed, want denied")
	}
	if !l.Allow("10.0.0.2") {
		t.Error("other key should have its own bucket")
	}
	now = now.Add(20 * time.Second)
	if !l.Allow("10.0.0.1") {
		t.Error("a token should refill after 20s at 3/min")
	}
}

func TestLimiter_Disabled(t *testing.T) {
	l := New(0, 0)
	for i := 0; i < 100; i++ {
		if !l.Allow("x") {
			t.Fatal("disabled limiter denied")
		}
	}
	var nilLimiter *Limiter
	if !nilLimiter.Allow("x") || nilLimiter.Prune() != 0 {
		t.Error("nil limiter should allow and prune nothing")
	}
}

func TestLimiter_Prune(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	l := New(10, time.Minute)
	l.now = func() time.Time { return now }
	l.Allow("old")
	now = now.Add(2 * time.Minute)
	l.Allow("fresh")
	if n := l.Prune(); n != 1 {
		t.Errorf("Prune = %d, want 1", n)
	}
	if l.Len() != 1 {
		t.Errorf("Len = %d, want 1", l.Len())
	}
}
