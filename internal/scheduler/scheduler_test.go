package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func newTestRunner() *Runner {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRunner_RunsRegisteredTask(t *testing.T) {
	r := newTestRunner()

	var runs atomic.Int64
	r.Register("counter", 10*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	r.Start(context.Background())
	time.Sleep(100 * time.Millisecond)
	r.Stop()

	if runs.Load() == 0 {
		t.Fatal("task never ran")
	}
}

func TestRunner_StopDrains(t *testing.T) {
	r := newTestRunner()

	var runs atomic.Int64
	r.Register("counter", 10*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	r.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	r.Stop()

	after := runs.Load()
	time.Sleep(50 * time.Millisecond)
	if runs.Load() != after {
		t.Fatalf("task ran after Stop: %d -> %d", after, runs.Load())
	}
}

func TestRunner_ErrorsDoNotStopTask(t *testing.T) {
	r := newTestRunner()

	var runs atomic.Int64
	r.Register("flaky", 10*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("transient failure")
	})

	r.Start(context.Background())
	time.Sleep(100 * time.Millisecond)
	r.Stop()

	// A failing task retries on its next tick instead of dying.
	if runs.Load() < 2 {
		t.Fatalf("expected task to keep running after errors, got %d runs", runs.Load())
	}
}

func TestRunner_MultipleTasksIndependent(t *testing.T) {
	r := newTestRunner()

	var a, b atomic.Int64
	r.Register("a", 10*time.Millisecond, func(ctx context.Context) error {
		a.Add(1)
		return nil
	})
	r.Register("b", 10*time.Millisecond, func(ctx context.Context) error {
		b.Add(1)
		return errors.New("always fails")
	})

	r.Start(context.Background())
	time.Sleep(100 * time.Millisecond)
	r.Stop()

	if a.Load() == 0 || b.Load() == 0 {
		t.Fatalf("expected both tasks to run: a=%d b=%d", a.Load(), b.Load())
	}
}
