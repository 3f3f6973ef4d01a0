// Package scheduler owns the process-wide periodic background tasks.
// Tasks are registered once at startup; Stop cancels them and waits for
// any in-flight run to drain before returning.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Task is one named periodic job.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Runner drives registered tasks, each on its own ticker goroutine.
type Runner struct {
	log    *slog.Logger
	tasks  []Task
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an empty Runner.
func New(log *slog.Logger) *Runner {
	return &Runner{log: log}
}

// Register adds a task. Must be called before Start.
func (r *Runner) Register(name string, interval time.Duration, run func(ctx context.Context) error) {
	r.tasks = append(r.tasks, Task{Name: name, Interval: interval, Run: run})
}

// Start launches one goroutine per registered task. A task error is
// logged and the task retries on its next tick; errors are never fatal
// to the process and never propagate to callers.
func (r *Runner) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	for _, task := range r.tasks {
		r.wg.Add(1)
		go r.loop(ctx, task)
	}
}

func (r *Runner) loop(ctx context.Context, task Task) {
	defer r.wg.Done()
	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := task.Run(ctx); err != nil {
				r.log.Error("scheduled task failed",
					"task", task.Name, "error", err.Error())
			}
		}
	}
}

// Stop cancels all tasks and blocks until their goroutines have drained.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}
