package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SettingsStore implements store.SettingsStore using PostgreSQL.
type SettingsStore struct {
	db *sql.DB
	tx *sql.Tx
}

func (s *SettingsStore) conn() queryable {
	return pick(s.db, s.tx)
}

// Get retrieves a setting by key.
func (s *SettingsStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.conn().QueryRowContext(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying setting: %w", err)
	}
	return value, nil
}

// Set sets a setting key-value pair.
func (s *SettingsStore) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`

	if _, err := s.conn().ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("saving setting: %w", err)
	}
	return nil
}
