package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/narvanalabs/playdate/internal/models"
)

// kindTables maps each handle kind to its table. Only these names are ever
// interpolated into SQL.
var kindTables = map[models.Kind]string{
	models.KindAccount:           "accounts",
	models.KindChild:             "children",
	models.KindConnectionRequest: "connection_requests",
	models.KindConnection:        "connections",
	models.KindActivity:          "activities",
	models.KindInvitation:        "activity_invitations",
	models.KindPendingInvitation: "pending_invitations",
}

// HandleStore implements store.HandleStore using PostgreSQL.
type HandleStore struct {
	db *sql.DB
	tx *sql.Tx
}

func (s *HandleStore) conn() queryable {
	return pick(s.db, s.tx)
}

// Lookup returns the internal key for a handle.
func (s *HandleStore) Lookup(ctx context.Context, kind models.Kind, handle models.Handle) (int64, error) {
	table, ok := kindTables[kind]
	if !ok || !handle.Valid() {
		return 0, models.ErrNotFound
	}

	var id int64
	err := s.conn().QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id FROM %s WHERE handle = $1`, table), string(handle),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, models.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("looking up %s handle: %w", kind, err)
	}
	return id, nil
}

// Handle returns the external handle for an internal key.
func (s *HandleStore) Handle(ctx context.Context, kind models.Kind, id int64) (models.Handle, error) {
	table, ok := kindTables[kind]
	if !ok {
		return "", models.ErrNotFound
	}

	var handle string
	err := s.conn().QueryRowContext(ctx,
		fmt.Sprintf(`SELECT handle FROM %s WHERE id = $1`, table), id,
	).Scan(&handle)
	if errors.Is(err, sql.ErrNoRows) {
		return "", models.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading %s handle: %w", kind, err)
	}
	return models.Handle(handle), nil
}
