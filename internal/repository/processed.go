package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/inboxpilot/inboxpilot/internal/models"
)

// ProcessedEmailRepository handles the dedup bookkeeping records. The
// UNIQUE(account_id, message_id) key is the core concurrency invariant: the
// poller and the batch checker can both see the same message, and exactly one
// of their inserts wins.
type ProcessedEmailRepository struct {
	db *sql.DB
}

// NewProcessedEmailRepository creates a new processed-email repository.
func NewProcessedEmailRepository(db *sql.DB) *ProcessedEmailRepository {
	return &ProcessedEmailRepository{db: db}
}

const processedColumns = `id, account_id, message_id, rule_id, thread_id, subject,
	   from_address, to_address, body_preview, accept_link, status, retry_count,
	   error, received_at, accepted_at, created_at`

// Create inserts the first-sight record for a message. This is a plain
// conditional insert against the unique key, never a check-then-insert: a
// duplicate-key error means another producer already evaluated the message
// and is reported as ErrDuplicate so the caller can skip it.
func (r *ProcessedEmailRepository) Create(ctx context.Context, rec *models.ProcessedEmail) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Status == "" {
		rec.Status = models.StatusPending
	}
	query := `
		INSERT INTO processed_emails (
			id, account_id, message_id, rule_id, thread_id, subject,
			from_address, to_address, body_preview, accept_link, status,
			retry_count, error, received_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NOW())
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.AccountID,
		rec.MessageID,
		rec.RuleID,
		rec.ThreadID,
		rec.Subject,
		rec.From,
		rec.To,
		rec.BodyPreview,
		rec.AcceptLink,
		rec.Status,
		rec.RetryCount,
		rec.Error,
		rec.ReceivedAt,
	)
	if err != nil {
		if isDuplicateErr(err) {
			return fmt.Errorf("message %s already processed for account %s: %w",
				rec.MessageID, rec.AccountID, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert processed email: %w", err)
	}
	return nil
}

// GetByMessageID fetches the record for a dedup key.
func (r *ProcessedEmailRepository) GetByMessageID(ctx context.Context, accountID, messageID string) (*models.ProcessedEmail, error) {
	query := `SELECT ` + processedColumns + ` FROM processed_emails WHERE account_id = ? AND message_id = ?`
	rec, err := scanProcessed(r.db.QueryRowContext(ctx, query, accountID, messageID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get processed email: %w", err)
	}
	return rec, nil
}

// UpdateStatus moves a record to a new lifecycle status.
func (r *ProcessedEmailRepository) UpdateStatus(ctx context.Context, id string, status models.ProcessingStatus) error {
	query := `UPDATE processed_emails SET status = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, status, id); err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	return nil
}

// MarkAccepted finalizes a record as successfully accepted.
func (r *ProcessedEmailRepository) MarkAccepted(ctx context.Context, id string) error {
	query := `
		UPDATE processed_emails
		SET status = ?, accepted_at = NOW(), error = NULL
		WHERE id = ?
	`
	if _, err := r.db.ExecContext(ctx, query, models.StatusAccepted, id); err != nil {
		return fmt.Errorf("failed to mark accepted: %w", err)
	}
	return nil
}

// MarkFailure records one failed processing attempt in a single statement:
// the bumped retry count, the resulting status (PENDING while the budget
// lasts, FAILED once exhausted) and the error text move together.
func (r *ProcessedEmailRepository) MarkFailure(ctx context.Context, id string, retryCount int, status models.ProcessingStatus, errText string) error {
	query := `
		UPDATE processed_emails
		SET status = ?, retry_count = ?, error = ?
		WHERE id = ?
	`
	if _, err := r.db.ExecContext(ctx, query, status, retryCount, errText, id); err != nil {
		return fmt.Errorf("failed to mark failure: %w", err)
	}
	return nil
}

// MarkSkipped finalizes a record as skipped with a reason.
func (r *ProcessedEmailRepository) MarkSkipped(ctx context.Context, id, reason string) error {
	query := `UPDATE processed_emails SET status = ?, error = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, models.StatusSkipped, reason, id); err != nil {
		return fmt.Errorf("failed to mark skipped: %w", err)
	}
	return nil
}

// DeleteOlderThan purges terminal records past the retention window. Used by
// the daily cleanup task.
func (r *ProcessedEmailRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time, statuses []models.ProcessingStatus) (int64, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	query := `DELETE FROM processed_emails WHERE created_at < ? AND status IN (?` +
		repeatPlaceholder(len(statuses)-1) + `)`
	args := make([]any, 0, len(statuses)+1)
	args = append(args, cutoff)
	for _, s := range statuses {
		args = append(args, s)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old processed emails: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func repeatPlaceholder(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += ", ?"
	}
	return out
}

func scanProcessed(row rowScanner) (*models.ProcessedEmail, error) {
	var rec models.ProcessedEmail
	err := row.Scan(
		&rec.ID,
		&rec.AccountID,
		&rec.MessageID,
		&rec.RuleID,
		&rec.ThreadID,
		&rec.Subject,
		&rec.From,
		&rec.To,
		&rec.BodyPreview,
		&rec.AcceptLink,
		&rec.Status,
		&rec.RetryCount,
		&rec.Error,
		&rec.ReceivedAt,
		&rec.AcceptedAt,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
