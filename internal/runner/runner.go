// Package runner schedules the periodic jobs the worker depends on: the
// account sweep, the status heartbeat and record cleanup.
package runner

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Runner executes registered tasks on their cron schedules.
type Runner struct {
	cron     *cron.Cron
	registry *TaskRegistry
	logger   *log.Logger
	wg       sync.WaitGroup
}

// NewRunner creates a runner over the given registry. Schedules use the
// six-field cron form with a seconds column.
func NewRunner(registry *TaskRegistry) *Runner {
	return &Runner{
		cron:     cron.New(cron.WithSeconds()),
		registry: registry,
		logger:   log.New(os.Stdout, "[RUNNER] ", log.LstdFlags),
	}
}

// Start schedules every registered task and starts the cron loop. It returns
// immediately; call Stop to drain.
func (r *Runner) Start(ctx context.Context) error {
	for name, task := range r.registry.All() {
		r.logger.Printf("registering task %s (schedule %q)", name, task.Schedule())
		_, err := r.cron.AddFunc(task.Schedule(), func() {
			r.executeTask(ctx, task)
		})
		if err != nil {
			return fmt.Errorf("failed to schedule task %s: %w", name, err)
		}
	}
	r.cron.Start()
	r.logger.Println("task runner started")
	return nil
}

// executeTask runs one task under its timeout. A task failure is logged and
// absorbed; the schedule keeps firing.
func (r *Runner) executeTask(ctx context.Context, task Task) {
	r.wg.Add(1)
	defer r.wg.Done()

	taskCtx, cancel := context.WithTimeout(ctx, task.Timeout())
	defer cancel()

	start := time.Now()
	err := task.Run(taskCtx)
	duration := time.Since(start)

	if err != nil {
		r.logger.Printf("task %s failed after %v: %v", task.Name(), duration, err)
		return
	}
	r.logger.Printf("task %s completed in %v", task.Name(), duration)
}

// Stop halts the schedule and waits for in-flight tasks.
func (r *Runner) Stop() {
	stopped := r.cron.Stop()
	r.wg.Wait()
	<-stopped.Done()
	r.logger.Println("task runner stopped")
}
