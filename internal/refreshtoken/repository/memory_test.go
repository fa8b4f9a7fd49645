package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoryRepository_RotateOnce(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	exp := time.Now().Add(time.Hour)
	if err := r.Add(ctx, "u1", "old", exp); err != nil {
		t.Fatalf("Add: %v", err)
	}
	ok, err := r.Rotate(ctx, "u1", "old", "new", exp)
	if err != nil || !ok {
		t.Fatalf("Rotate = %v, %v; want true", ok, err)
	}
	ok, _ = r.Rotate(ctx, "u1", "old", "other", exp)
	if ok {
		t.Error("second rotation of the same token should fail")
	}
	if has, _ := r.Contains(ctx, "u1", "old"); has {
		t.Error("old hash still present")
	}
	if has, _ := r.Contains(ctx, "u1", "new"); !has {
		t.Error("new hash missing")
	}
	if has, _ := r.Contains(ctx, "u1", "other"); has {
		t.Error("failed rotation must not add its hash")
	}
}

func TestMemoryRepository_ConcurrentRotateExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	exp := time.Now().Add(time.Hour)
	_ = r.Add(ctx, "u1", "old", exp)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := r.Rotate(ctx, "u1", "old", "new-"+string(rune('a'+i)), exp)
			if err != nil {
				t.Errorf("Rotate: %v", err)
			}
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}(i)
	}
	wg.Wait()
	if wins != 1 {
		t.Errorf("wins = %d, want 1", wins)
	}
}

func TestMemoryRepository_Expiry(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	now := time.Now()
	r.now = func() time.Time { return now }
	_ = r.Add(ctx, "u1", "h", now.Add(time.Minute))

	r.now = func() time.Time { return now.Add(2 * time.Minute) }
	if has, _ := r.Contains(ctx, "u1", "h"); has {
		t.Error("expired hash should not be contained")
	}
	if ok, _ := r.Rotate(ctx, "u1", "h", "h2", now.Add(time.Hour)); ok {
		t.Error("expired hash should not rotate")
	}
}

func TestMemoryRepository_RemoveAndClear(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	exp := time.Now().Add(time.Hour)
	for _, h := range []string{"a", "b", "c"} {
		_ = r.Add(ctx, "u1", h, exp)
	}
	_ = r.Add(ctx, "u2", "z", exp)

	if ok, _ := r.Remove(ctx, "u1", "a"); !ok {
		t.Error("Remove(a) = false, want true")
	}
	if ok, _ := r.Remove(ctx, "u1", "a"); ok {
		t.Error("second Remove(a) = true, want false")
	}
	if has, _ := r.Contains(ctx, "u1", "b"); !has {
		t.Error("Remove must only remove the given hash")
	}
	n, _ := r.Clear(ctx, "u1")
	if n != 2 {
		t.Errorf("Clear = %d, want 2", n)
	}
	if has, _ := r.Contains(ctx, "u1", "c"); has {
		t.Error("Clear left a hash behind")
	}
	if has, _ := r.Contains(ctx, "u2", "z"); !has {
		t.Error("Clear must not touch other identities")
	}
}
