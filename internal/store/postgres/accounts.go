package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/narvanalabs/playdate/internal/models"
)

// AccountStore implements store.AccountStore using PostgreSQL.
type AccountStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

// conn returns the queryable connection (transaction or database).
func (s *AccountStore) conn() queryable {
	return pick(s.db, s.tx)
}

const accountColumns = `id, handle, display_name, COALESCE(email_fp, ''), COALESCE(phone_fp, ''),
	COALESCE(password_hash, ''), is_skeleton, promoted_at, created_at, updated_at`

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	var handle string
	var promotedAt sql.NullTime
	err := row.Scan(
		&a.ID, &handle, &a.DisplayName, &a.EmailFingerprint, &a.PhoneFingerprint,
		&a.PasswordHash, &a.IsSkeleton, &promotedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Handle = models.Handle(handle)
	if promotedAt.Valid {
		a.PromotedAt = &promotedAt.Time
	}
	return &a, nil
}

// nullString stores empty strings as NULL so partial unique indexes ignore them.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Create inserts a new account.
func (s *AccountStore) Create(ctx context.Context, account *models.Account) error {
	if err := account.Validate(); err != nil {
		return fmt.Errorf("validating account: %w", err)
	}
	if account.Handle == "" {
		account.Handle = models.NewHandle()
	}
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	query := `
		INSERT INTO accounts (handle, display_name, email_fp, phone_fp, password_hash,
			is_skeleton, promoted_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	err := s.conn().QueryRowContext(ctx, query,
		string(account.Handle),
		account.DisplayName,
		nullString(account.EmailFingerprint),
		nullString(account.PhoneFingerprint),
		nullString(account.PasswordHash),
		account.IsSkeleton,
		account.PromotedAt,
		account.CreatedAt,
		account.UpdatedAt,
	).Scan(&account.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicateAccount
		}
		return fmt.Errorf("inserting account: %w", err)
	}
	return nil
}

// Get retrieves an account by internal key.
func (s *AccountStore) Get(ctx context.Context, id int64) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	a, err := scanAccount(s.conn().QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying account: %w", err)
	}
	return a, nil
}

// GetByFingerprint returns the real account matching either fingerprint.
func (s *AccountStore) GetByFingerprint(ctx context.Context, email, phone string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + `
		FROM accounts
		WHERE NOT is_skeleton
		  AND ((email_fp IS NOT NULL AND email_fp = $1) OR (phone_fp IS NOT NULL AND phone_fp = $2))
		ORDER BY id ASC
		LIMIT 1`

	a, err := scanAccount(s.conn().QueryRowContext(ctx, query, nullString(email), nullString(phone)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying account by fingerprint: %w", err)
	}
	return a, nil
}

// LockSkeletonsByFingerprint returns and locks the skeletons matching either fingerprint.
func (s *AccountStore) LockSkeletonsByFingerprint(ctx context.Context, email, phone string) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + `
		FROM accounts
		WHERE is_skeleton
		  AND ((email_fp IS NOT NULL AND email_fp = $1) OR (phone_fp IS NOT NULL AND phone_fp = $2))
		ORDER BY id ASC
		FOR UPDATE`

	return s.list(ctx, query, nullString(email), nullString(phone))
}

// Update updates an existing account.
func (s *AccountStore) Update(ctx context.Context, account *models.Account) error {
	account.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE accounts
		SET display_name = $2, email_fp = $3, phone_fp = $4, password_hash = $5,
		    is_skeleton = $6, promoted_at = $7, updated_at = $8
		WHERE id = $1`

	result, err := s.conn().ExecContext(ctx, query,
		account.ID,
		account.DisplayName,
		nullString(account.EmailFingerprint),
		nullString(account.PhoneFingerprint),
		nullString(account.PasswordHash),
		account.IsSkeleton,
		account.PromotedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicateAccount
		}
		return fmt.Errorf("updating account: %w", err)
	}
	return requireRow(result)
}

// Delete removes an account.
func (s *AccountStore) Delete(ctx context.Context, id int64) error {
	result, err := s.conn().ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting account: %w", err)
	}
	return requireRow(result)
}

// ListPromotedSince returns accounts promoted at or after since.
func (s *AccountStore) ListPromotedSince(ctx context.Context, since time.Time) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + `
		FROM accounts
		WHERE promoted_at IS NOT NULL AND promoted_at >= $1
		ORDER BY promoted_at ASC, id ASC`

	return s.list(ctx, query, since)
}

func (s *AccountStore) list(ctx context.Context, query string, args ...any) ([]*models.Account, error) {
	rows, err := s.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning account row: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating account rows: %w", err)
	}
	return accounts, nil
}

// requireRow maps a zero-row update or delete to models.ErrNotFound.
func requireRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}
