package tasks

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/inboxpilot/inboxpilot/internal/metrics"
	"github.com/inboxpilot/inboxpilot/internal/models"
)

// recordRetention is how long finished records are kept for reporting.
const recordRetention = 30 * 24 * time.Hour

type recordPurger interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time, statuses []models.ProcessingStatus) (int64, error)
}

// CleanupTask purges finished processing records past retention. Only
// terminal successes are removed; FAILED records stay for inspection.
type CleanupTask struct {
	records recordPurger
	metrics *metrics.Metrics
	logger  *log.Logger
	now     func() time.Time
}

// NewCleanupTask creates the cleanup task.
func NewCleanupTask(records recordPurger, m *metrics.Metrics) *CleanupTask {
	return &CleanupTask{
		records: records,
		metrics: m,
		logger:  log.New(os.Stdout, "[CLEANUP] ", log.LstdFlags),
		now:     time.Now,
	}
}

func (t *CleanupTask) Name() string { return "record-cleanup" }

// Schedule fires daily at 02:00.
func (t *CleanupTask) Schedule() string { return "0 0 2 * * *" }

func (t *CleanupTask) Timeout() time.Duration { return 5 * time.Minute }

func (t *CleanupTask) Run(ctx context.Context) error {
	cutoff := t.now().Add(-recordRetention)
	n, err := t.records.DeleteOlderThan(ctx, cutoff,
		[]models.ProcessingStatus{models.StatusAccepted, models.StatusSkipped})
	if err != nil {
		return fmt.Errorf("failed to purge old records: %w", err)
	}
	if n > 0 {
		t.metrics.RecordsCleaned.Add(float64(n))
		t.logger.Printf("purged %d records older than %s", n, cutoff.Format(time.RFC3339))
	}
	return nil
}
