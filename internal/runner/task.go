package runner

import (
	"context"
	"time"
)

// Task is one scheduled job.
type Task interface {
	// Name identifies the task in logs and the registry.
	Name() string

	// Schedule is a cron expression with a seconds field.
	Schedule() string

	// Run executes the task once.
	Run(ctx context.Context) error

	// Timeout bounds a single run.
	Timeout() time.Duration
}

// TaskRegistry holds the tasks a runner will schedule.
type TaskRegistry struct {
	tasks map[string]Task
}

// NewTaskRegistry creates an empty registry.
func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{tasks: make(map[string]Task)}
}

// Register adds a task, replacing any task with the same name.
func (r *TaskRegistry) Register(task Task) {
	r.tasks[task.Name()] = task
}

// Get returns a task by name.
func (r *TaskRegistry) Get(name string) (Task, bool) {
	task, exists := r.tasks[name]
	return task, exists
}

// All returns every registered task.
func (r *TaskRegistry) All() map[string]Task {
	return r.tasks
}
