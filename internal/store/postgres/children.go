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

// ChildStore implements store.ChildStore using PostgreSQL.
type ChildStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

func (s *ChildStore) conn() queryable {
	return pick(s.db, s.tx)
}

const childColumns = `id, handle, account_id, display_name, is_skeleton, created_at`

func scanChild(row rowScanner) (*models.Child, error) {
	var c models.Child
	var handle string
	if err := row.Scan(&c.ID, &handle, &c.AccountID, &c.DisplayName, &c.IsSkeleton, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Handle = models.Handle(handle)
	return &c, nil
}

// Create inserts a new child.
func (s *ChildStore) Create(ctx context.Context, child *models.Child) error {
	if err := child.Validate(); err != nil {
		return fmt.Errorf("validating child: %w", err)
	}
	if child.Handle == "" {
		child.Handle = models.NewHandle()
	}
	if child.CreatedAt.IsZero() {
		child.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO children (handle, account_id, display_name, is_skeleton, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	err := s.conn().QueryRowContext(ctx, query,
		string(child.Handle), child.AccountID, child.DisplayName, child.IsSkeleton, child.CreatedAt,
	).Scan(&child.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return models.ErrNotFound
		}
		return fmt.Errorf("inserting child: %w", err)
	}
	return nil
}

// Get retrieves a child by internal key.
func (s *ChildStore) Get(ctx context.Context, id int64) (*models.Child, error) {
	c, err := scanChild(s.conn().QueryRowContext(ctx,
		`SELECT `+childColumns+` FROM children WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying child: %w", err)
	}
	return c, nil
}

// ListByAccount retrieves every child of an account.
func (s *ChildStore) ListByAccount(ctx context.Context, accountID int64) ([]*models.Child, error) {
	rows, err := s.conn().QueryContext(ctx,
		`SELECT `+childColumns+` FROM children WHERE account_id = $1 ORDER BY id ASC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("querying children: %w", err)
	}
	defer rows.Close()

	var children []*models.Child
	for rows.Next() {
		c, err := scanChild(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning child row: %w", err)
		}
		children = append(children, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating child rows: %w", err)
	}
	return children, nil
}

// Update updates the child's owner, name and skeleton flag.
func (s *ChildStore) Update(ctx context.Context, child *models.Child) error {
	result, err := s.conn().ExecContext(ctx,
		`UPDATE children SET account_id = $2, display_name = $3, is_skeleton = $4 WHERE id = $1`,
		child.ID, child.AccountID, child.DisplayName, child.IsSkeleton,
	)
	if err != nil {
		return fmt.Errorf("updating child: %w", err)
	}
	return requireRow(result)
}

// Delete removes a child.
func (s *ChildStore) Delete(ctx context.Context, id int64) error {
	result, err := s.conn().ExecContext(ctx, `DELETE FROM children WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting child: %w", err)
	}
	return requireRow(result)
}
