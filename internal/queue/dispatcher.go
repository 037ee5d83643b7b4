// Package queue decouples "check inbox" from "process order" work behind a
// dispatcher contract with at-least-once delivery and per-job dedup keys.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Queue names used by the engine.
const (
	QueueEmailCheck   = "email-check"
	QueueOrderProcess = "process-order"
)

// Default worker concurrency per queue.
const (
	DefaultEmailCheckConcurrency   = 5
	DefaultOrderProcessConcurrency = 10
)

// HandlerFunc processes one job payload. Returning an error re-enqueues the
// job until its attempt budget is spent.
type HandlerFunc func(ctx context.Context, payload []byte) error

// Job is one unit of queued work.
type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	DedupKey    string          `json:"dedup_key,omitempty"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
}

type enqueueOptions struct {
	dedupKey    string
	priority    bool
	maxAttempts int
}

// EnqueueOption customizes a single enqueue.
type EnqueueOption func(*enqueueOptions)

// WithDedupKey makes re-enqueuing the same logical job a no-op while a job
// with that key is still queued or running.
func WithDedupKey(key string) EnqueueOption {
	return func(o *enqueueOptions) { o.dedupKey = key }
}

// WithHighPriority places the job at the front of its queue.
func WithHighPriority() EnqueueOption {
	return func(o *enqueueOptions) { o.priority = true }
}

// WithMaxAttempts overrides the delivery budget for this job.
func WithMaxAttempts(n int) EnqueueOption {
	return func(o *enqueueOptions) { o.maxAttempts = n }
}

const defaultMaxAttempts = 3

// Dispatcher is the work-distribution capability the engine consumes. The
// implementation is chosen at startup by configuration: the Redis dispatcher
// in production, the inline dispatcher where no broker is available. Never
// through ambient globals.
type Dispatcher interface {
	// Enqueue submits a job. Payloads are JSON-encoded.
	Enqueue(ctx context.Context, queueName string, payload any, opts ...EnqueueOption) error

	// RegisterProcessor binds a handler and worker pool size to a queue.
	// Must be called before Start.
	RegisterProcessor(queueName string, concurrency int, handler HandlerFunc)

	// Start launches the worker pools.
	Start(ctx context.Context) error

	// Stop drains: no new jobs are picked up, in-flight handlers finish.
	Stop()
}

// NewJob builds the envelope a dispatcher carries. Exposed so alternative
// Dispatcher implementations and tests share the same encoding.
func NewJob(queueName string, payload any, opts ...EnqueueOption) (*Job, error) {
	return newJob(queueName, payload, applyOptions(opts))
}

func newJob(queueName string, payload any, opts *enqueueOptions) (*Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	maxAttempts := opts.maxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Job{
		ID:          uuid.New().String(),
		Queue:       queueName,
		Payload:     body,
		MaxAttempts: maxAttempts,
		DedupKey:    opts.dedupKey,
		EnqueuedAt:  time.Now(),
	}, nil
}

func applyOptions(opts []EnqueueOption) *enqueueOptions {
	o := &enqueueOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
