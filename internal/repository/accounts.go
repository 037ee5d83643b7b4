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

// AccountRepository handles database operations for mailbox accounts.
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository creates a new account repository.
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, user_id, email, provider, access_token, refresh_token,
	   token_expiry, history_id, is_active, last_checked, created_at, updated_at`

// Create inserts a new account. The caller-visible email must be unique per
// user; a collision surfaces as ErrDuplicate.
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	query := `
		INSERT INTO email_accounts (
			id, user_id, email, provider, access_token, refresh_token,
			token_expiry, history_id, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())
	`
	_, err := r.db.ExecContext(ctx, query,
		account.ID,
		account.UserID,
		account.Email,
		account.Provider,
		account.AccessToken,
		account.RefreshToken,
		account.TokenExpiry,
		account.HistoryID,
		account.IsActive,
	)
	if err != nil {
		if isDuplicateErr(err) {
			return fmt.Errorf("account already connected: %w", ErrDuplicate)
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

// GetByID fetches one account.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM email_accounts WHERE id = ?`
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// ListActive returns all accounts eligible for polling, oldest-checked first
// so starved accounts catch up before recently swept ones.
func (r *AccountRepository) ListActive(ctx context.Context) ([]*models.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM email_accounts
		WHERE is_active = 1
		ORDER BY last_checked IS NULL DESC, last_checked ASC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// UpdateTokens persists a refreshed credential. It runs before the refreshed
// token is used so a crash mid-cycle never strands a stale token.
func (r *AccountRepository) UpdateTokens(ctx context.Context, id, accessToken string, expiry time.Time) error {
	query := `
		UPDATE email_accounts
		SET access_token = ?, token_expiry = ?, updated_at = NOW()
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, query, accessToken, expiry, id)
	if err != nil {
		return fmt.Errorf("failed to update account tokens: %w", err)
	}
	return nil
}

// UpdateLastChecked stamps a completed poll cycle.
func (r *AccountRepository) UpdateLastChecked(ctx context.Context, id string) error {
	query := `UPDATE email_accounts SET last_checked = NOW(), updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to update last checked: %w", err)
	}
	return nil
}

// SetActive toggles polling for an account.
func (r *AccountRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `UPDATE email_accounts SET is_active = ?, updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, active, id); err != nil {
		return fmt.Errorf("failed to set account active flag: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var account models.Account
	err := row.Scan(
		&account.ID,
		&account.UserID,
		&account.Email,
		&account.Provider,
		&account.AccessToken,
		&account.RefreshToken,
		&account.TokenExpiry,
		&account.HistoryID,
		&account.IsActive,
		&account.LastChecked,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &account, nil
}
