package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// SystemStatusRepository maintains the worker heartbeat row.
type SystemStatusRepository struct {
	db *sql.DB
}

// NewSystemStatusRepository creates a new system status repository.
func NewSystemStatusRepository(db *sql.DB) *SystemStatusRepository {
	return &SystemStatusRepository{db: db}
}

// UpsertHeartbeat records that a service is alive. service_name is unique, so
// the insert collapses into an update on repeat beats.
func (r *SystemStatusRepository) UpsertHeartbeat(ctx context.Context, serviceName string, healthy bool) error {
	query := `
		INSERT INTO system_status (service_name, is_healthy, last_check)
		VALUES (?, ?, NOW())
		ON DUPLICATE KEY UPDATE is_healthy = VALUES(is_healthy), last_check = NOW()
	`
	if _, err := r.db.ExecContext(ctx, query, serviceName, healthy); err != nil {
		return fmt.Errorf("failed to upsert heartbeat: %w", err)
	}
	return nil
}
