// Package tasks holds the scheduled jobs registered with the runner.
package tasks

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/inboxpilot/inboxpilot/internal/engine"
	"github.com/inboxpilot/inboxpilot/internal/metrics"
	"github.com/inboxpilot/inboxpilot/internal/models"
	"github.com/inboxpilot/inboxpilot/internal/queue"
)

type accountLister interface {
	ListActive(ctx context.Context) ([]*models.Account, error)
}

type enqueuer interface {
	Enqueue(ctx context.Context, queueName string, payload any, opts ...queue.EnqueueOption) error
}

// AccountSweepTask fans an email-check job out per active account. The 30s
// cadence overlaps the 5-minute inbox window on purpose; record creation
// dedups anything seen twice.
type AccountSweepTask struct {
	accounts accountLister
	queue    enqueuer
	metrics  *metrics.Metrics
	logger   *log.Logger
}

// NewAccountSweepTask creates the sweep task.
func NewAccountSweepTask(accounts accountLister, q enqueuer, m *metrics.Metrics) *AccountSweepTask {
	return &AccountSweepTask{
		accounts: accounts,
		queue:    q,
		metrics:  m,
		logger:   log.New(os.Stdout, "[SWEEP] ", log.LstdFlags),
	}
}

func (t *AccountSweepTask) Name() string { return "account-sweep" }

func (t *AccountSweepTask) Schedule() string { return "*/30 * * * * *" }

func (t *AccountSweepTask) Timeout() time.Duration { return 25 * time.Second }

// Run enqueues one check per active account. A single enqueue failure does
// not stop the rest of the fan-out.
func (t *AccountSweepTask) Run(ctx context.Context) error {
	accounts, err := t.accounts.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active accounts: %w", err)
	}
	t.metrics.ActiveAccounts.Set(float64(len(accounts)))
	if len(accounts) == 0 {
		return nil
	}

	var failed int
	for _, account := range accounts {
		job := engine.EmailCheckJob{AccountID: account.ID}
		if err := t.queue.Enqueue(ctx, queue.QueueEmailCheck, job); err != nil {
			failed++
			t.logger.Printf("failed to enqueue check for %s: %v", account.Email, err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("failed to enqueue %d of %d account checks", failed, len(accounts))
	}
	return nil
}
