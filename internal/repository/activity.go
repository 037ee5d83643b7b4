package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/inboxpilot/inboxpilot/internal/models"
)

// ActivityLogRepository writes the append-only audit trail. The engine only
// appends; reads serve the reporting surface.
type ActivityLogRepository struct {
	db *sql.DB
}

// NewActivityLogRepository creates a new activity log repository.
func NewActivityLogRepository(db *sql.DB) *ActivityLogRepository {
	return &ActivityLogRepository{db: db}
}

// Append writes one audit entry.
func (r *ActivityLogRepository) Append(ctx context.Context, entry *models.ActivityLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	var metadata []byte
	if entry.Metadata != nil {
		var err error
		metadata, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode activity metadata: %w", err)
		}
	}
	query := `
		INSERT INTO activity_logs (
			id, user_id, account_id, processed_email_id, type, title,
			description, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, NOW())
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.UserID,
		entry.AccountID,
		entry.ProcessedEmailID,
		entry.Type,
		entry.Title,
		entry.Description,
		metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to append activity log: %w", err)
	}
	return nil
}

// ListRecent returns the newest entries for an account.
func (r *ActivityLogRepository) ListRecent(ctx context.Context, accountID string, limit int) ([]*models.ActivityLog, error) {
	query := `
		SELECT id, user_id, account_id, processed_email_id, type, title,
			   description, metadata, created_at
		FROM activity_logs
		WHERE account_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity logs: %w", err)
	}
	defer rows.Close()

	var entries []*models.ActivityLog
	for rows.Next() {
		var entry models.ActivityLog
		var metadata []byte
		err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.AccountID,
			&entry.ProcessedEmailID,
			&entry.Type,
			&entry.Title,
			&entry.Description,
			&metadata,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity log: %w", err)
		}
		if len(metadata) > 0 {
			// Unreadable metadata is not worth failing a listing over.
			_ = json.Unmarshal(metadata, &entry.Metadata)
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}
