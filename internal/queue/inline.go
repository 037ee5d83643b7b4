package queue

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// InlineDispatcher executes jobs in-process, immediately, for environments
// without a broker (development, tests). Same contract as the Redis
// dispatcher: dedup keys suppress duplicate logical jobs, handler failures
// are retried up to the attempt budget.
type InlineDispatcher struct {
	logger  *log.Logger
	backoff time.Duration

	mu       sync.Mutex
	handlers map[string]HandlerFunc
	inflight map[string]struct{}
	started  bool
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

var _ Dispatcher = (*InlineDispatcher)(nil)

// NewInlineDispatcher builds the in-process fallback dispatcher.
func NewInlineDispatcher() *InlineDispatcher {
	return &InlineDispatcher{
		logger:   log.New(os.Stdout, "[QUEUE] ", log.LstdFlags),
		backoff:  10 * time.Millisecond,
		handlers: make(map[string]HandlerFunc),
		inflight: make(map[string]struct{}),
	}
}

// RegisterProcessor binds a handler. Concurrency is ignored: inline jobs run
// on their own goroutines as they arrive.
func (d *InlineDispatcher) RegisterProcessor(queueName string, concurrency int, handler HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[queueName] = handler
}

// Start marks the dispatcher ready.
func (d *InlineDispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.started = true
	return nil
}

// Stop waits for in-flight jobs to finish.
func (d *InlineDispatcher) Stop() {
	d.mu.Lock()
	d.started = false
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
}

// Enqueue runs the job's handler on a fresh goroutine. A held dedup key
// makes the call a logged no-op, mirroring broker behavior.
func (d *InlineDispatcher) Enqueue(ctx context.Context, queueName string, payload any, opts ...EnqueueOption) error {
	o := applyOptions(opts)
	job, err := newJob(queueName, payload, o)
	if err != nil {
		return fmt.Errorf("failed to encode job payload: %w", err)
	}

	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return fmt.Errorf("inline dispatcher not started")
	}
	handler, ok := d.handlers[queueName]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("no processor registered for queue %s", queueName)
	}
	if job.DedupKey != "" {
		key := queueName + ":" + job.DedupKey
		if _, held := d.inflight[key]; held {
			d.mu.Unlock()
			d.logger.Printf("job with dedup key %s already in flight on %s, skipping", job.DedupKey, queueName)
			return nil
		}
		d.inflight[key] = struct{}{}
	}
	runCtx := d.ctx
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		defer d.releaseDedup(queueName, job.DedupKey)
		for {
			job.Attempts++
			err := handler(runCtx, job.Payload)
			if err == nil {
				return
			}
			if job.Attempts >= job.MaxAttempts {
				d.logger.Printf("inline job %s on %s failed permanently after %d attempts: %v",
					job.ID, queueName, job.Attempts, err)
				return
			}
			select {
			case <-time.After(d.backoff):
			case <-runCtx.Done():
				return
			}
		}
	}()
	return nil
}

func (d *InlineDispatcher) releaseDedup(queueName, key string) {
	if key == "" {
		return
	}
	d.mu.Lock()
	delete(d.inflight, queueName+":"+key)
	d.mu.Unlock()
}
