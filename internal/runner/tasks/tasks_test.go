package tasks

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/inboxpilot/inboxpilot/internal/metrics"
	"github.com/inboxpilot/inboxpilot/internal/models"
	"github.com/inboxpilot/inboxpilot/internal/queue"
)

type stubAccounts struct {
	accounts []*models.Account
	err      error
}

func (s *stubAccounts) ListActive(ctx context.Context) ([]*models.Account, error) {
	return s.accounts, s.err
}

type stubQueue struct {
	enqueued []string
	failFor  map[string]bool
}

func (s *stubQueue) Enqueue(ctx context.Context, queueName string, payload any, opts ...queue.EnqueueOption) error {
	job, err := queue.NewJob(queueName, payload)
	if err != nil {
		return err
	}
	if s.failFor[string(job.Payload)] {
		return fmt.Errorf("broker unavailable")
	}
	s.enqueued = append(s.enqueued, queueName)
	return nil
}

type stubPurger struct {
	cutoff   time.Time
	statuses []models.ProcessingStatus
	deleted  int64
	err      error
}

func (s *stubPurger) DeleteOlderThan(ctx context.Context, cutoff time.Time, statuses []models.ProcessingStatus) (int64, error) {
	s.cutoff = cutoff
	s.statuses = statuses
	return s.deleted, s.err
}

type stubStatus struct {
	service string
	healthy bool
	err     error
}

func (s *stubStatus) UpsertHeartbeat(ctx context.Context, serviceName string, healthy bool) error {
	s.service = serviceName
	s.healthy = healthy
	return s.err
}

func TestAccountSweepEnqueuesPerActiveAccount(t *testing.T) {
	accounts := &stubAccounts{accounts: []*models.Account{
		{ID: "a1", Email: "one@example.com"},
		{ID: "a2", Email: "two@example.com"},
	}}
	q := &stubQueue{}

	task := NewAccountSweepTask(accounts, q, metrics.New(prometheus.NewRegistry()))
	require.NoError(t, task.Run(context.Background()))
	require.Equal(t, []string{queue.QueueEmailCheck, queue.QueueEmailCheck}, q.enqueued)
}

func TestAccountSweepContinuesPastEnqueueFailure(t *testing.T) {
	accounts := &stubAccounts{accounts: []*models.Account{
		{ID: "a1", Email: "one@example.com"},
		{ID: "a2", Email: "two@example.com"},
	}}
	q := &stubQueue{failFor: map[string]bool{`{"account_id":"a1"}`: true}}

	task := NewAccountSweepTask(accounts, q, metrics.New(prometheus.NewRegistry()))
	err := task.Run(context.Background())
	require.Error(t, err)
	require.Len(t, q.enqueued, 1)
}

func TestAccountSweepListFailure(t *testing.T) {
	accounts := &stubAccounts{err: fmt.Errorf("db down")}
	task := NewAccountSweepTask(accounts, &stubQueue{}, metrics.New(prometheus.NewRegistry()))
	require.Error(t, task.Run(context.Background()))
}

func TestCleanupUsesRetentionWindow(t *testing.T) {
	purger := &stubPurger{deleted: 7}
	task := NewCleanupTask(purger, metrics.New(prometheus.NewRegistry()))
	fixed := time.Date(2025, 6, 15, 2, 0, 0, 0, time.UTC)
	task.now = func() time.Time { return fixed }

	require.NoError(t, task.Run(context.Background()))
	require.Equal(t, fixed.Add(-recordRetention), purger.cutoff)
	require.Equal(t, []models.ProcessingStatus{models.StatusAccepted, models.StatusSkipped}, purger.statuses)
}

func TestHeartbeatUpserts(t *testing.T) {
	status := &stubStatus{}
	task := NewHeartbeatTask(status, "email-worker")
	require.NoError(t, task.Run(context.Background()))
	require.Equal(t, "email-worker", status.service)
	require.True(t, status.healthy)
}

func TestSchedulesParse(t *testing.T) {
	// Six-field expressions with a seconds column, as the runner configures
	// its cron instance.
	for _, expr := range []string{
		NewAccountSweepTask(&stubAccounts{}, &stubQueue{}, metrics.New(prometheus.NewRegistry())).Schedule(),
		NewCleanupTask(&stubPurger{}, metrics.New(prometheus.NewRegistry())).Schedule(),
		NewHeartbeatTask(&stubStatus{}, "x").Schedule(),
	} {
		require.Len(t, strings.Fields(expr), 6, expr)
	}
}
