package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	queueKeyPrefix = "inboxpilot:queue:"
	dedupKeyPrefix = "inboxpilot:dedup:"

	// Dedup keys expire on their own so a crashed worker cannot block a
	// logical job forever.
	dedupTTL = time.Hour

	popTimeout   = time.Second
	retryBackoff = 2 * time.Second
)

type processor struct {
	concurrency int
	handler     HandlerFunc
}

// RedisDispatcher is the production Dispatcher: one Redis list per queue,
// SETNX dedup keys, a bounded worker pool per registered processor, and
// re-enqueue with attempt accounting on handler failure.
type RedisDispatcher struct {
	client     *redis.Client
	logger     *log.Logger
	processors map[string]processor
	backoff    time.Duration

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	timers  sync.WaitGroup
}

var _ Dispatcher = (*RedisDispatcher)(nil)

// RedisDispatcherOption customizes the dispatcher.
type RedisDispatcherOption func(*RedisDispatcher)

// WithRetryBackoff overrides the delay before a failed job is redelivered.
func WithRetryBackoff(d time.Duration) RedisDispatcherOption {
	return func(r *RedisDispatcher) { r.backoff = d }
}

// NewRedisDispatcher builds a dispatcher over an existing Redis client.
func NewRedisDispatcher(client *redis.Client, opts ...RedisDispatcherOption) *RedisDispatcher {
	d := &RedisDispatcher{
		client:     client,
		logger:     log.New(os.Stdout, "[QUEUE] ", log.LstdFlags),
		processors: make(map[string]processor),
		backoff:    retryBackoff,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func queueKey(name string) string { return queueKeyPrefix + name }
func dedupKey(name, key string) string {
	return fmt.Sprintf("%s%s:%s", dedupKeyPrefix, name, key)
}

// Enqueue pushes a job onto its queue. With a dedup key, the push happens
// only when no job with that key is already queued or running; duplicates
// are silently dropped, which is what makes double-enqueueing a follow-up
// job harmless.
func (d *RedisDispatcher) Enqueue(ctx context.Context, queueName string, payload any, opts ...EnqueueOption) error {
	o := applyOptions(opts)
	job, err := newJob(queueName, payload, o)
	if err != nil {
		return fmt.Errorf("failed to encode job payload: %w", err)
	}

	if job.DedupKey != "" {
		ok, err := d.client.SetNX(ctx, dedupKey(queueName, job.DedupKey), job.ID, dedupTTL).Result()
		if err != nil {
			return fmt.Errorf("failed to reserve dedup key: %w", err)
		}
		if !ok {
			d.logger.Printf("job with dedup key %s already queued on %s, skipping", job.DedupKey, queueName)
			return nil
		}
	}

	return d.push(ctx, job, o.priority)
}

func (d *RedisDispatcher) push(ctx context.Context, job *Job, front bool) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	if front {
		err = d.client.RPush(ctx, queueKey(job.Queue), body).Err()
	} else {
		err = d.client.LPush(ctx, queueKey(job.Queue), body).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to push job: %w", err)
	}
	return nil
}

// RegisterProcessor binds a worker pool to a queue.
func (d *RedisDispatcher) RegisterProcessor(queueName string, concurrency int, handler HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if concurrency <= 0 {
		concurrency = 1
	}
	d.processors[queueName] = processor{concurrency: concurrency, handler: handler}
}

// Start launches the configured worker pools.
func (d *RedisDispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return errors.New("dispatcher already started")
	}
	d.started = true

	workerCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	for name, proc := range d.processors {
		for i := 0; i < proc.concurrency; i++ {
			d.wg.Add(1)
			go d.worker(workerCtx, name, proc.handler)
		}
		d.logger.Printf("started %d workers for queue %s", proc.concurrency, name)
	}
	return nil
}

// Stop drains the dispatcher: workers stop picking up jobs and in-flight
// handlers run to completion.
func (d *RedisDispatcher) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.started = false
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.timers.Wait()
	d.wg.Wait()
}

func (d *RedisDispatcher) worker(ctx context.Context, queueName string, handler HandlerFunc) {
	defer d.wg.Done()
	key := queueKey(queueName)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := d.client.BRPop(ctx, popTimeout, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			d.logger.Printf("queue %s pop failed: %v", queueName, err)
			select {
			case <-time.After(popTimeout):
			case <-ctx.Done():
				return
			}
			continue
		}
		if len(res) < 2 {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			d.logger.Printf("queue %s dropped undecodable job: %v", queueName, err)
			continue
		}
		d.run(ctx, &job, handler)
	}
}

func (d *RedisDispatcher) run(ctx context.Context, job *Job, handler HandlerFunc) {
	job.Attempts++
	err := handler(ctx, job.Payload)
	if err == nil {
		d.release(job)
		return
	}

	if job.Attempts >= job.MaxAttempts {
		d.logger.Printf("job %s on %s failed permanently after %d attempts: %v",
			job.ID, job.Queue, job.Attempts, err)
		d.release(job)
		return
	}

	d.logger.Printf("job %s on %s failed (attempt %d/%d), redelivering in %s: %v",
		job.ID, job.Queue, job.Attempts, job.MaxAttempts, d.backoff, err)

	// Redeliver on a timer so the worker goroutine is free to pick up the
	// next job while this one waits out its backoff.
	d.timers.Add(1)
	time.AfterFunc(d.backoff, func() {
		defer d.timers.Done()
		pushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if pushErr := d.push(pushCtx, job, false); pushErr != nil {
			d.logger.Printf("failed to redeliver job %s: %v", job.ID, pushErr)
			d.release(job)
		}
	})
}

// release frees the dedup key once a job is terminally done.
func (d *RedisDispatcher) release(job *Job) {
	if job.DedupKey == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.client.Del(ctx, dedupKey(job.Queue, job.DedupKey)).Err(); err != nil {
		d.logger.Printf("failed to release dedup key %s: %v", job.DedupKey, err)
	}
}
