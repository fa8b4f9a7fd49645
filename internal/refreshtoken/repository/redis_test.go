package repository

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newRedisRepo(t *testing.T) *RedisRepository {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	return NewRedisRepository(client)
}

func TestRedisRepository_Lifecycle(t *testing.T) {
	r := newRedisRepo(t)
	ctx := context.Background()
	user := uuid.NewString()
	exp := time.Now().Add(time.Hour)
	t.Cleanup(func() { _, _ = r.Clear(ctx, user) })

	if err := r.Add(ctx, user, "old", exp); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if has, err := r.Contains(ctx, user, "old"); err != nil || !has {
		t.Fatalf("Contains = %v, %v", has, err)
	}
	if ok, err := r.Rotate(ctx, user, "old", "new", exp); err != nil || !ok {
		t.Fatalf("Rotate = %v, %v", ok, err)
	}
	if ok, _ := r.Rotate(ctx, user, "old", "again", exp); ok {
		t.Error("replayed rotation should fail")
	}
	if ok, _ := r.Remove(ctx, user, "new"); !ok {
		t.Error("Remove(new) = false")
	}
	_ = r.Add(ctx, user, "a", exp)
	_ = r.Add(ctx, user, "b", exp)
	if n, err := r.Clear(ctx, user); err != nil || n != 2 {
		t.Errorf("Clear = %d, %v; want 2", n, err)
	}
}

func TestRedisRepository_ConcurrentRotate(t *testing.T) {
	r := newRedisRepo(t)
	ctx := context.Background()
	user := uuid.NewString()
	exp := time.Now().Add(time.Hour)
	t.Cleanup(func() { _, _ = r.Clear(ctx, user) })
	_ = r.Add(ctx, user, "old", exp)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := r.Rotate(ctx, user, "old", uuid.NewString(), exp); ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Errorf("wins = %d, want 1", wins)
	}
}
