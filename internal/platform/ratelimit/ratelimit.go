// Package ratelimit keeps one token bucket per source key.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// pruneAbove is the bucket count past which idle buckets are dropped on the next Allow.
const pruneAbove = 4096

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// Limiter is a keyed token-bucket limiter. A zero or negative perMinute disables limiting.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	idle    time.Duration
	now     func() time.Time
}

// New returns a Limiter allowing perMinute events per key with a burst of the same size.
// Buckets untouched for idle are eligible for pruning.
func New(perMinute int, idle time.Duration) *Limiter {
	if idle <= 0 {
		idle = 5 * time.Minute
	}
	l := &Limiter{buckets: make(map[string]*bucket), idle: idle, now: time.Now}
	if perMinute > 0 {
		l.limit = rate.Limit(float64(perMinute) / 60)
		l.burst = perMinute
	}
	return l
}

// Allow consumes one token for key and reports whether one was available.
func (l *Limiter) Allow(key string) bool {
	if l == nil || l.burst == 0 {
		return true
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.buckets) > pruneAbove {
		l.pruneLocked(now)
	}
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

// Prune drops buckets idle for longer than the idle window and returns how many went.
func (l *Limiter) Prune() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pruneLocked(l.now())
}

func (l *Limiter) pruneLocked(now time.Time) int {
	n := 0
	for k, b := range l.buckets {
		if now.Sub(b.seen) > l.idle {
			delete(l.buckets, k)
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
