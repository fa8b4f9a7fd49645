// Package keylock serializes work per key (e.g. per identity) without a global lock.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Locker hands out one mutex per key. Entries are reference counted and dropped when the
// last holder unlocks, so the map does not grow with every identity ever seen.
type Locker struct {
	mu sync.Mutex
	m  map[string]*entry
}

// New returns an empty Locker.
func New() *Locker {
	return &Locker{m: make(map[string]*entry)}
}

// Lock blocks until the lock for key is held and returns the function that releases it.
func (l *Locker) Lock(key string) (unlock func()) {
	l.mu.Lock()
	e, ok := l.m[key]
	if !ok {
		e = &entry{}
		l.m[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.m, key)
		}
		l.mu.Unlock()
	}
}

// Len returns the number of keys currently held or waited on.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
