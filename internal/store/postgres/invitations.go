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

// InvitationStore implements store.InvitationStore using PostgreSQL.
type InvitationStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

func (s *InvitationStore) conn() queryable {
	return pick(s.db, s.tx)
}

const invitationSelect = `
	SELECT i.id, i.handle, i.activity_id, i.invited_child_id, i.invited_account_id,
	       i.inviter_account_id, a.handle, c.handle, i.status, i.message,
	       i.responded_at, i.created_at
	FROM activity_invitations i
	JOIN activities a ON a.id = i.activity_id
	JOIN children c ON c.id = i.invited_child_id`

func scanInvitation(row rowScanner) (*models.ActivityInvitation, error) {
	var inv models.ActivityInvitation
	var handle, activity, child, status string
	var respondedAt sql.NullTime
	err := row.Scan(
		&inv.ID, &handle, &inv.ActivityID, &inv.InvitedChildID, &inv.InvitedAccountID,
		&inv.InviterAccountID, &activity, &child, &status, &inv.Message,
		&respondedAt, &inv.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	inv.Handle = models.Handle(handle)
	inv.Activity = models.Handle(activity)
	inv.InvitedChild = models.Handle(child)
	inv.Status = models.InvitationStatus(status)
	if respondedAt.Valid {
		inv.RespondedAt = &respondedAt.Time
	}
	return &inv, nil
}

// Create inserts a pending invitation unless one already exists for the pair.
func (s *InvitationStore) Create(ctx context.Context, inv *models.ActivityInvitation) (bool, error) {
	if inv.Handle == "" {
		inv.Handle = models.NewHandle()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	inv.Status = models.InvitationStatusPending

	query := `
		INSERT INTO activity_invitations (handle, activity_id, invited_child_id, invited_account_id,
			inviter_account_id, status, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (activity_id, invited_child_id) WHERE status = 'pending' DO NOTHING
		RETURNING id`

	err := s.conn().QueryRowContext(ctx, query,
		string(inv.Handle),
		inv.ActivityID,
		inv.InvitedChildID,
		inv.InvitedAccountID,
		inv.InviterAccountID,
		string(inv.Status),
		inv.Message,
		inv.CreatedAt,
	).Scan(&inv.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		if isForeignKeyViolation(err) {
			return false, models.ErrNotFound
		}
		return false, fmt.Errorf("inserting invitation: %w", err)
	}
	return true, nil
}

// Get retrieves an invitation by internal key.
func (s *InvitationStore) Get(ctx context.Context, id int64) (*models.ActivityInvitation, error) {
	inv, err := scanInvitation(s.conn().QueryRowContext(ctx, invitationSelect+` WHERE i.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying invitation: %w", err)
	}
	return inv, nil
}

// FindForChild retrieves every invitation for (activity, child).
func (s *InvitationStore) FindForChild(ctx context.Context, activityID, childID int64) ([]*models.ActivityInvitation, error) {
	return s.list(ctx, invitationSelect+`
		WHERE i.activity_id = $1 AND i.invited_child_id = $2
		ORDER BY i.id ASC`, activityID, childID)
}

// ListByChild retrieves the invitations addressed to a child.
func (s *InvitationStore) ListByChild(ctx context.Context, childID int64) ([]*models.ActivityInvitation, error) {
	return s.list(ctx, invitationSelect+`
		WHERE i.invited_child_id = $1
		ORDER BY i.created_at DESC, i.id DESC`, childID)
}

// ListByActivity retrieves the invitations of one activity copy.
func (s *InvitationStore) ListByActivity(ctx context.Context, activityID int64) ([]*models.ActivityInvitation, error) {
	return s.list(ctx, invitationSelect+`
		WHERE i.activity_id = $1
		ORDER BY i.created_at ASC, i.id ASC`, activityID)
}

func (s *InvitationStore) list(ctx context.Context, query string, args ...any) ([]*models.ActivityInvitation, error) {
	rows, err := s.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying invitations: %w", err)
	}
	defer rows.Close()

	var invitations []*models.ActivityInvitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning invitation row: %w", err)
		}
		invitations = append(invitations, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating invitation rows: %w", err)
	}
	return invitations, nil
}

// UpdateStatus answers a pending invitation.
func (s *InvitationStore) UpdateStatus(ctx context.Context, id int64, status models.InvitationStatus, at time.Time) error {
	result, err := s.conn().ExecContext(ctx,
		`UPDATE activity_invitations SET status = $2, responded_at = $3 WHERE id = $1 AND status = 'pending'`,
		id, string(status), at,
	)
	if err != nil {
		return fmt.Errorf("updating invitation: %w", err)
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

// RepointChild moves invitations from fromChild to toChild.
func (s *InvitationStore) RepointChild(ctx context.Context, fromChild, toChild, toAccount int64) (int64, error) {
	dedupe := `
		DELETE FROM activity_invitations f
		WHERE f.invited_child_id = $1
		  AND EXISTS (
			SELECT 1 FROM activity_invitations t
			WHERE t.activity_id = f.activity_id AND t.invited_child_id = $2
		  )`
	if _, err := s.conn().ExecContext(ctx, dedupe, fromChild, toChild); err != nil {
		return 0, fmt.Errorf("dropping duplicate invitations: %w", err)
	}

	result, err := s.conn().ExecContext(ctx,
		`UPDATE activity_invitations SET invited_child_id = $2, invited_account_id = $3 WHERE invited_child_id = $1`,
		fromChild, toChild, toAccount,
	)
	if err != nil {
		return 0, fmt.Errorf("repointing invitations: %w", err)
	}
	return result.RowsAffected()
}

// RepointAccount moves invited/inviter account references.
func (s *InvitationStore) RepointAccount(ctx context.Context, fromAccount, toAccount int64) (int64, error) {
	var total int64
	for _, query := range []string{
		`UPDATE activity_invitations SET invited_account_id = $2 WHERE invited_account_id = $1`,
		`UPDATE activity_invitations SET inviter_account_id = $2 WHERE inviter_account_id = $1`,
	} {
		result, err := s.conn().ExecContext(ctx, query, fromAccount, toAccount)
		if err != nil {
			return total, fmt.Errorf("repointing invitations: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("getting rows affected: %w", err)
		}
		total += n
	}
	return total, nil
}
