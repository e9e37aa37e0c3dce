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

// ActivityStore implements store.ActivityStore using PostgreSQL.
type ActivityStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

func (s *ActivityStore) conn() queryable {
	return pick(s.db, s.tx)
}

const activitySelect = `
	SELECT a.id, a.handle, a.group_handle, a.host_child_id, a.host_account_id, hc.handle,
	       a.is_primary, a.title, a.description, a.location, a.starts_at, a.ends_at, a.created_at
	FROM activities a
	JOIN children hc ON hc.id = a.host_child_id`

func scanActivity(row rowScanner) (*models.Activity, error) {
	var a models.Activity
	var handle, group, host string
	err := row.Scan(
		&a.ID, &handle, &group, &a.HostChildID, &a.HostAccountID, &host,
		&a.IsPrimary, &a.Title, &a.Description, &a.Location, &a.StartsAt, &a.EndsAt, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Handle = models.Handle(handle)
	a.GroupHandle = models.Handle(group)
	a.HostChild = models.Handle(host)
	return &a, nil
}

// Create inserts a new activity copy.
func (s *ActivityStore) Create(ctx context.Context, activity *models.Activity) error {
	if err := activity.Validate(); err != nil {
		return fmt.Errorf("validating activity: %w", err)
	}
	if activity.Handle == "" {
		activity.Handle = models.NewHandle()
	}
	if activity.GroupHandle == "" {
		activity.GroupHandle = models.NewHandle()
	}
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO activities (handle, group_handle, host_child_id, host_account_id, is_primary,
			title, description, location, starts_at, ends_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	err := s.conn().QueryRowContext(ctx, query,
		string(activity.Handle),
		string(activity.GroupHandle),
		activity.HostChildID,
		activity.HostAccountID,
		activity.IsPrimary,
		activity.Title,
		activity.Description,
		activity.Location,
		activity.StartsAt,
		activity.EndsAt,
		activity.CreatedAt,
	).Scan(&activity.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrConstraintViolation
		}
		if isForeignKeyViolation(err) {
			return models.ErrNotFound
		}
		return fmt.Errorf("inserting activity: %w", err)
	}
	return nil
}

// Get retrieves an activity by internal key.
func (s *ActivityStore) Get(ctx context.Context, id int64) (*models.Activity, error) {
	a, err := scanActivity(s.conn().QueryRowContext(ctx, activitySelect+` WHERE a.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying activity: %w", err)
	}
	return a, nil
}

// ListByGroup retrieves every host copy of a logical activity, primary first.
func (s *ActivityStore) ListByGroup(ctx context.Context, group models.Handle) ([]*models.Activity, error) {
	if !group.Valid() {
		return nil, nil
	}
	rows, err := s.conn().QueryContext(ctx, activitySelect+`
		WHERE a.group_handle = $1
		ORDER BY a.is_primary DESC, a.id ASC`, string(group))
	if err != nil {
		return nil, fmt.Errorf("querying activities: %w", err)
	}
	defer rows.Close()

	var activities []*models.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning activity row: %w", err)
		}
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating activity rows: %w", err)
	}
	return activities, nil
}
