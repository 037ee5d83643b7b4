package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/inboxpilot/inboxpilot/internal/models"
)

// RuleRepository handles database operations for matching rules. Counter
// updates are single-statement atomic increments: concurrent matches against
// the same rule must never lose updates to read-modify-write races.
type RuleRepository struct {
	db *sql.DB
}

// NewRuleRepository creates a new rule repository.
func NewRuleRepository(db *sql.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

const ruleColumns = `id, account_id, name, description, conditions, logic, priority, action,
	   forward_to, confirmation_subject, confirmation_body, auto_accept, mark_as_read,
	   is_active, match_count, success_count, failure_count, last_matched, created_at, updated_at`

// Create validates and inserts a rule, encoding its canonical conditions.
func (r *RuleRepository) Create(ctx context.Context, rule *models.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if rule.Logic == "" {
		rule.Logic = models.LogicAnd
	}
	raw, err := rule.Conditions.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode conditions: %w", err)
	}
	rule.RawConditions = raw

	query := `
		INSERT INTO rules (
			id, account_id, name, description, conditions, logic, priority, action,
			forward_to, confirmation_subject, confirmation_body, auto_accept,
			mark_as_read, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())
	`
	_, err = r.db.ExecContext(ctx, query,
		rule.ID,
		rule.AccountID,
		rule.Name,
		rule.Description,
		rule.RawConditions,
		rule.Logic,
		rule.Priority,
		rule.Action,
		rule.ForwardTo,
		rule.ConfirmationSubject,
		rule.ConfirmationBody,
		rule.AutoAccept,
		rule.MarkAsRead,
		rule.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}
	return nil
}

// GetByID fetches one rule with conditions parsed.
func (r *RuleRepository) GetByID(ctx context.Context, id string) (*models.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules WHERE id = ?`
	rule, err := scanRule(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// ListActiveByAccount returns a stable evaluation order: priority descending,
// then creation time, then id. SelectRule relies on this ordering for its
// tie-break guarantee.
func (r *RuleRepository) ListActiveByAccount(ctx context.Context, accountID string) ([]*models.Rule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM rules
		WHERE account_id = ? AND is_active = 1
		ORDER BY priority DESC, created_at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var result []*models.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		result = append(result, rule)
	}
	return result, rows.Err()
}

// IncrementMatch bumps the match counter and stamps the last match.
func (r *RuleRepository) IncrementMatch(ctx context.Context, id string) error {
	query := `
		UPDATE rules
		SET match_count = match_count + 1, last_matched = NOW(), updated_at = NOW()
		WHERE id = ?
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to increment match count: %w", err)
	}
	return nil
}

// IncrementSuccess bumps the success counter.
func (r *RuleRepository) IncrementSuccess(ctx context.Context, id string) error {
	query := `UPDATE rules SET success_count = success_count + 1, updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to increment success count: %w", err)
	}
	return nil
}

// IncrementFailure bumps the failure counter.
func (r *RuleRepository) IncrementFailure(ctx context.Context, id string) error {
	query := `UPDATE rules SET failure_count = failure_count + 1, updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to increment failure count: %w", err)
	}
	return nil
}

// Delete removes a rule.
func (r *RuleRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return nil
}

func scanRule(row rowScanner) (*models.Rule, error) {
	var rule models.Rule
	err := row.Scan(
		&rule.ID,
		&rule.AccountID,
		&rule.Name,
		&rule.Description,
		&rule.RawConditions,
		&rule.Logic,
		&rule.Priority,
		&rule.Action,
		&rule.ForwardTo,
		&rule.ConfirmationSubject,
		&rule.ConfirmationBody,
		&rule.AutoAccept,
		&rule.MarkAsRead,
		&rule.IsActive,
		&rule.MatchCount,
		&rule.SuccessCount,
		&rule.FailureCount,
		&rule.LastMatched,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	// Conditions are parsed once here, never per evaluation.
	rule.Conditions = models.ParseConditions(rule.RawConditions)
	return &rule, nil
}
