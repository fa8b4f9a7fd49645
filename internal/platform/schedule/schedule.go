// Package schedule runs fixed-interval background tasks that their owner can stop
// deterministically (tests, graceful shutdown).
package schedule

import (
	"context"
	"log"
	"sync"
	"time"
)

// Task is a running periodic job. The zero value is not usable; use Every.
type Task struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Every starts fn on its own goroutine every interval until ctx is cancelled or Stop is
// called. A panic in fn is logged and the task keeps running.
func Every(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{name: name, cancel: cancel, done: make(chan struct{})}
	go t.run(ctx, interval, fn)
	return t
}

func (t *Task) run(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	defer close(t.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tick(ctx, fn)
		}
	}
}

func (t *Task) tick(ctx context.Context, fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("schedule: task %s panicked: %v", t.name, r)
		}
	}()
	fn(ctx)
}

// Stop cancels the task and waits for an in-flight run to finish. Safe to call twice and on nil.
func (t *Task) Stop() {
	if t == nil {
		return
	}
	t.once.Do(t.cancel)
	<-t.done
}
