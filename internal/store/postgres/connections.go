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

// ConnectionStore implements store.ConnectionStore using PostgreSQL.
type ConnectionStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

func (s *ConnectionStore) conn() queryable {
	return pick(s.db, s.tx)
}

const connectionSelect = `
	SELECT c.id, c.handle, c.child_low_id, c.child_high_id, lo.handle, hi.handle,
	       c.request_id, c.created_at
	FROM connections c
	JOIN children lo ON lo.id = c.child_low_id
	JOIN children hi ON hi.id = c.child_high_id`

func scanConnection(row rowScanner) (*models.Connection, error) {
	var c models.Connection
	var handle, low, high string
	var requestID sql.NullInt64
	if err := row.Scan(&c.ID, &handle, &c.ChildLowID, &c.ChildHighID, &low, &high, &requestID, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Handle = models.Handle(handle)
	c.ChildLow = models.Handle(low)
	c.ChildHigh = models.Handle(high)
	if requestID.Valid {
		c.RequestID = &requestID.Int64
	}
	return &c, nil
}

// GetOrCreate returns the connection for the unordered pair, creating it when absent.
func (s *ConnectionStore) GetOrCreate(ctx context.Context, childA, childB int64, requestID *int64) (*models.Connection, bool, error) {
	if childA == childB {
		return nil, false, models.ErrInvalidInput
	}
	low, high := models.OrderPair(childA, childB)

	query := `
		INSERT INTO connections (handle, child_low_id, child_high_id, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (child_low_id, child_high_id) DO NOTHING
		RETURNING id`

	var id int64
	err := s.conn().QueryRowContext(ctx, query,
		string(models.NewHandle()), low, high, requestID, time.Now().UTC(),
	).Scan(&id)
	created := true
	if errors.Is(err, sql.ErrNoRows) {
		created = false
	} else if err != nil {
		if isForeignKeyViolation(err) {
			return nil, false, models.ErrNotFound
		}
		return nil, false, fmt.Errorf("inserting connection: %w", err)
	}

	c, err := s.GetBetween(ctx, low, high)
	if err != nil {
		return nil, false, err
	}
	return c, created, nil
}

// GetBetween returns the connection for the unordered pair.
func (s *ConnectionStore) GetBetween(ctx context.Context, childA, childB int64) (*models.Connection, error) {
	low, high := models.OrderPair(childA, childB)
	return s.get(ctx, connectionSelect+` WHERE c.child_low_id = $1 AND c.child_high_id = $2`, low, high)
}

func (s *ConnectionStore) get(ctx context.Context, query string, args ...any) (*models.Connection, error) {
	c, err := scanConnection(s.conn().QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying connection: %w", err)
	}
	return c, nil
}

// ListByChild retrieves every connection of a child.
func (s *ConnectionStore) ListByChild(ctx context.Context, childID int64) ([]*models.Connection, error) {
	return s.list(ctx, connectionSelect+`
		WHERE c.child_low_id = $1 OR c.child_high_id = $1
		ORDER BY c.created_at ASC`, childID)
}

// ListCreatedSince retrieves connections created at or after since.
func (s *ConnectionStore) ListCreatedSince(ctx context.Context, since time.Time) ([]*models.Connection, error) {
	return s.list(ctx, connectionSelect+`
		WHERE c.created_at >= $1
		ORDER BY c.created_at ASC, c.id ASC`, since)
}

func (s *ConnectionStore) list(ctx context.Context, query string, args ...any) ([]*models.Connection, error) {
	rows, err := s.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying connections: %w", err)
	}
	defer rows.Close()

	var connections []*models.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning connection row: %w", err)
		}
		connections = append(connections, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating connection rows: %w", err)
	}
	return connections, nil
}
