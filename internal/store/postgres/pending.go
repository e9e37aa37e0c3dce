package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/narvanalabs/playdate/internal/models"
	"github.com/narvanalabs/playdate/internal/store"
)

// PendingStore implements store.PendingInvitationStore using PostgreSQL.
type PendingStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

func (s *PendingStore) conn() queryable {
	return pick(s.db, s.tx)
}

const pendingSelect = `
	SELECT p.id, p.handle, p.activity_id, a.handle, p.key_kind,
	       p.request_id, r.handle, p.child_id, c.handle, p.account_id, acc.handle,
	       p.message, p.created_at
	FROM pending_invitations p
	JOIN activities a ON a.id = p.activity_id
	LEFT JOIN connection_requests r ON r.id = p.request_id
	LEFT JOIN children c ON c.id = p.child_id
	LEFT JOIN accounts acc ON acc.id = p.account_id`

func scanPending(row rowScanner) (*models.PendingInvitation, error) {
	var p models.PendingInvitation
	var handle, activity, kind string
	var requestID, childID, accountID sql.NullInt64
	var requestHandle, childHandle, accountHandle sql.NullString
	err := row.Scan(
		&p.ID, &handle, &p.ActivityID, &activity, &kind,
		&requestID, &requestHandle, &childID, &childHandle, &accountID, &accountHandle,
		&p.Message, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Handle = models.Handle(handle)
	p.Activity = models.Handle(activity)

	switch models.KeyKind(kind) {
	case models.KeyKindConnectionRequest:
		p.Key = models.ConnectionRequestKey{RequestID: requestID.Int64, Request: models.Handle(requestHandle.String)}
	case models.KeyKindChild:
		p.Key = models.ChildKey{ChildID: childID.Int64, Child: models.Handle(childHandle.String)}
	case models.KeyKindAccount:
		p.Key = models.AccountKey{AccountID: accountID.Int64, Account: models.Handle(accountHandle.String)}
	default:
		return nil, fmt.Errorf("unknown resolution key kind %q", kind)
	}
	return &p, nil
}

// Create inserts a pending invitation.
func (s *PendingStore) Create(ctx context.Context, p *models.PendingInvitation) error {
	if p.Key == nil {
		return models.ErrInvalidInput
	}
	if p.Handle == "" {
		p.Handle = models.NewHandle()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	requestID, childID, accountID := models.KeyColumns(p.Key)

	query := `
		INSERT INTO pending_invitations (handle, activity_id, key_kind, request_id, child_id,
			account_id, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	err := s.conn().QueryRowContext(ctx, query,
		string(p.Handle),
		p.ActivityID,
		string(p.Key.Kind()),
		requestID,
		childID,
		accountID,
		p.Message,
		p.CreatedAt,
	).Scan(&p.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return models.ErrNotFound
		}
		return fmt.Errorf("inserting pending invitation: %w", err)
	}

	// Reload to pick up the handles of the activity and the keyed entity.
	stored, err := s.Get(ctx, p.ID)
	if err != nil {
		return err
	}
	*p = *stored
	return nil
}

// Get retrieves a pending invitation by internal key.
func (s *PendingStore) Get(ctx context.Context, id int64) (*models.PendingInvitation, error) {
	p, err := scanPending(s.conn().QueryRowContext(ctx, pendingSelect+` WHERE p.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying pending invitation: %w", err)
	}
	return p, nil
}

// ListByActivity retrieves the pending entries of one activity copy.
func (s *PendingStore) ListByActivity(ctx context.Context, activityID int64) ([]*models.PendingInvitation, error) {
	return s.list(ctx, pendingSelect+` WHERE p.activity_id = $1 ORDER BY p.id ASC`, activityID)
}

// LockResolvable retrieves and locks candidate entries. Rows are locked in
// primary-key order so concurrent triggers cannot deadlock on each other.
func (s *PendingStore) LockResolvable(ctx context.Context, q store.ResolvableQuery) ([]*models.PendingInvitation, error) {
	if q.Empty() {
		return nil, nil
	}
	query := pendingSelect + `
		WHERE p.request_id = ANY($1) OR p.child_id = ANY($2) OR p.account_id = ANY($3)
		ORDER BY p.id ASC
		FOR UPDATE OF p`
	return s.list(ctx, query, pq.Array(q.RequestIDs), pq.Array(q.ChildIDs), pq.Array(q.AccountIDs))
}

func (s *PendingStore) list(ctx context.Context, query string, args ...any) ([]*models.PendingInvitation, error) {
	rows, err := s.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying pending invitations: %w", err)
	}
	defer rows.Close()

	var entries []*models.PendingInvitation
	for rows.Next() {
		p, err := scanPending(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning pending invitation row: %w", err)
		}
		entries = append(entries, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pending invitation rows: %w", err)
	}
	return entries, nil
}

// Delete removes a pending invitation.
func (s *PendingStore) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := s.conn().ExecContext(ctx, `DELETE FROM pending_invitations WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("deleting pending invitation: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	return n > 0, nil
}

// RepointChild moves child keys from one child to another.
func (s *PendingStore) RepointChild(ctx context.Context, fromChild, toChild int64) (int64, error) {
	result, err := s.conn().ExecContext(ctx,
		`UPDATE pending_invitations SET child_id = $2 WHERE child_id = $1`, fromChild, toChild)
	if err != nil {
		return 0, fmt.Errorf("repointing pending invitations: %w", err)
	}
	return result.RowsAffected()
}

// RepointAccount moves account keys from one account to another.
func (s *PendingStore) RepointAccount(ctx context.Context, fromAccount, toAccount int64) (int64, error) {
	result, err := s.conn().ExecContext(ctx,
		`UPDATE pending_invitations SET account_id = $2 WHERE account_id = $1`, fromAccount, toAccount)
	if err != nil {
		return 0, fmt.Errorf("repointing pending invitations: %w", err)
	}
	return result.RowsAffected()
}
