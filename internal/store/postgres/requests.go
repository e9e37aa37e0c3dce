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

// RequestStore implements store.ConnectionRequestStore using PostgreSQL.
type RequestStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

func (s *RequestStore) conn() queryable {
	return pick(s.db, s.tx)
}

const requestSelect = `
	SELECT r.id, r.handle, r.requester_child_id, r.requester_account_id,
	       r.target_child_id, r.target_account_id, rc.handle, tc.handle,
	       r.status, r.message, r.responded_at, r.created_at
	FROM connection_requests r
	JOIN children rc ON rc.id = r.requester_child_id
	JOIN children tc ON tc.id = r.target_child_id`

func scanRequest(row rowScanner) (*models.ConnectionRequest, error) {
	var r models.ConnectionRequest
	var handle, requester, target, status string
	var respondedAt sql.NullTime
	err := row.Scan(
		&r.ID, &handle, &r.RequesterChildID, &r.RequesterAccountID,
		&r.TargetChildID, &r.TargetAccountID, &requester, &target,
		&status, &r.Message, &respondedAt, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Handle = models.Handle(handle)
	r.RequesterChild = models.Handle(requester)
	r.TargetChild = models.Handle(target)
	r.Status = models.RequestStatus(status)
	if respondedAt.Valid {
		r.RespondedAt = &respondedAt.Time
	}
	return &r, nil
}

// Create inserts a new request.
func (s *RequestStore) Create(ctx context.Context, req *models.ConnectionRequest) error {
	if req.Handle == "" {
		req.Handle = models.NewHandle()
	}
	if req.Status == "" {
		req.Status = models.RequestStatusPending
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO connection_requests (handle, requester_child_id, requester_account_id,
			target_child_id, target_account_id, status, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	err := s.conn().QueryRowContext(ctx, query,
		string(req.Handle),
		req.RequesterChildID,
		req.RequesterAccountID,
		req.TargetChildID,
		req.TargetAccountID,
		string(req.Status),
		req.Message,
		req.CreatedAt,
	).Scan(&req.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return models.ErrNotFound
		}
		return fmt.Errorf("inserting connection request: %w", err)
	}
	return nil
}

// Get retrieves a request by internal key.
func (s *RequestStore) Get(ctx context.Context, id int64) (*models.ConnectionRequest, error) {
	return s.get(ctx, requestSelect+` WHERE r.id = $1`, id)
}

// GetForUpdate retrieves a request and locks its row.
func (s *RequestStore) GetForUpdate(ctx context.Context, id int64) (*models.ConnectionRequest, error) {
	return s.get(ctx, requestSelect+` WHERE r.id = $1 FOR UPDATE OF r`, id)
}

// FindPending returns the pending request between two children.
func (s *RequestStore) FindPending(ctx context.Context, childA, childB int64) (*models.ConnectionRequest, error) {
	query := requestSelect + `
		WHERE r.status = 'pending'
		  AND ((r.requester_child_id = $1 AND r.target_child_id = $2)
		    OR (r.requester_child_id = $2 AND r.target_child_id = $1))
		ORDER BY r.id ASC
		LIMIT 1`
	return s.get(ctx, query, childA, childB)
}

func (s *RequestStore) get(ctx context.Context, query string, args ...any) (*models.ConnectionRequest, error) {
	r, err := scanRequest(s.conn().QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying connection request: %w", err)
	}
	return r, nil
}

// UpdateStatus transitions a pending request.
func (s *RequestStore) UpdateStatus(ctx context.Context, id int64, status models.RequestStatus, at time.Time) error {
	result, err := s.conn().ExecContext(ctx,
		`UPDATE connection_requests SET status = $2, responded_at = $3 WHERE id = $1 AND status = 'pending'`,
		id, string(status), at,
	)
	if err != nil {
		return fmt.Errorf("updating connection request: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return models.ErrInvalidStateTransition
	}
	return nil
}

// ListByChild retrieves requests where the child is on either side.
func (s *RequestStore) ListByChild(ctx context.Context, childID int64) ([]*models.ConnectionRequest, error) {
	rows, err := s.conn().QueryContext(ctx, requestSelect+`
		WHERE r.requester_child_id = $1 OR r.target_child_id = $1
		ORDER BY r.created_at DESC`, childID)
	if err != nil {
		return nil, fmt.Errorf("querying connection requests: %w", err)
	}
	defer rows.Close()

	var requests []*models.ConnectionRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning connection request row: %w", err)
		}
		requests = append(requests, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating connection request rows: %w", err)
	}
	return requests, nil
}

// RepointChild moves every reference to fromChild onto toChild.
func (s *RequestStore) RepointChild(ctx context.Context, fromChild, toChild, toAccount int64) (int64, error) {
	var total int64
	for _, query := range []string{
		`UPDATE connection_requests SET requester_child_id = $2, requester_account_id = $3 WHERE requester_child_id = $1`,
		`UPDATE connection_requests SET target_child_id = $2, target_account_id = $3 WHERE target_child_id = $1`,
	} {
		result, err := s.conn().ExecContext(ctx, query, fromChild, toChild, toAccount)
		if err != nil {
			return total, fmt.Errorf("repointing connection requests: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("getting rows affected: %w", err)
		}
		total += n
	}
	return total, nil
}

// RepointAccount moves every account reference from one account to another.
func (s *RequestStore) RepointAccount(ctx context.Context, fromAccount, toAccount int64) (int64, error) {
	var total int64
	for _, query := range []string{
		`UPDATE connection_requests SET requester_account_id = $2 WHERE requester_account_id = $1`,
		`UPDATE connection_requests SET target_account_id = $2 WHERE target_account_id = $1`,
	} {
		result, err := s.conn().ExecContext(ctx, query, fromAccount, toAccount)
		if err != nil {
			return total, fmt.Errorf("repointing connection requests: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("getting rows affected: %w", err)
		}
		total += n
	}
	return total, nil
}
