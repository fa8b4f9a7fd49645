package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestEvery_RunsUntilStopped(t *testing.T) {
	var runs atomic.Int32
	task := Every(context.Background(), "test", 5*time.Millisecond, func(context.Context) {
		runs.Add(1)
	})
	deadline := time.Now().Add(time.Second)
	for runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	task.Stop()
	after := runs.Load()
	if after < 2 {
		t.Fatalf("runs = %d, want at least 2", after)
	}
	time.Sleep(20 * time.Millisecond)
	if runs.Load() != after {
		t.Error("task kept running after Stop")
	}
	task.Stop()
}

func TestEvery_SurvivesPanic(t *testing.T) {
	var runs atomic.Int32
	task := Every(context.Background(), "panicky", 5*time.Millisecond, func(context.Context) {
		if runs.Add(1) == 1 {
			panic("boom")
		}
	})
	defer task.Stop()
	deadline := time.Now().Add(time.Second)
	for runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if runs.Load() < 2 {
		t.Errorf("runs = %d, want task to continue after panic", runs.Load())
	}
}

func TestStop_Nil(t *testing.T) {
	var task *Task
	task.Stop()
}
