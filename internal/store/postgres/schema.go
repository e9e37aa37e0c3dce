package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is the idempotent DDL for the playdate tables. Internal keys are
// BIGSERIAL; handles are UUIDs and are the only identifiers leaving the store.
const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id BIGSERIAL PRIMARY KEY,
	handle UUID NOT NULL UNIQUE,
	display_name TEXT NOT NULL DEFAULT '',
	email_fp TEXT,
	phone_fp TEXT,
	password_hash TEXT,
	is_skeleton BOOLEAN NOT NULL DEFAULT FALSE,
	promoted_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_real_email ON accounts(email_fp) WHERE NOT is_skeleton AND email_fp IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_real_phone ON accounts(phone_fp) WHERE NOT is_skeleton AND phone_fp IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_accounts_skeleton_email ON accounts(email_fp) WHERE is_skeleton;
CREATE INDEX IF NOT EXISTS idx_accounts_skeleton_phone ON accounts(phone_fp) WHERE is_skeleton;
CREATE INDEX IF NOT EXISTS idx_accounts_promoted_at ON accounts(promoted_at) WHERE promoted_at IS NOT NULL;

CREATE TABLE IF NOT EXISTS children (
	id BIGSERIAL PRIMARY KEY,
	handle UUID NOT NULL UNIQUE,
	account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	display_name TEXT NOT NULL,
	is_skeleton BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_children_account ON children(account_id);

CREATE TABLE IF NOT EXISTS connection_requests (
	id BIGSERIAL PRIMARY KEY,
	handle UUID NOT NULL UNIQUE,
	requester_child_id BIGINT NOT NULL REFERENCES children(id) ON DELETE CASCADE,
	requester_account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	target_child_id BIGINT NOT NULL REFERENCES children(id) ON DELETE CASCADE,
	target_account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	status VARCHAR(16) NOT NULL CHECK (status IN ('pending', 'accepted', 'rejected')),
	message TEXT NOT NULL DEFAULT '',
	responded_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_requests_requester ON connection_requests(requester_child_id);
CREATE INDEX IF NOT EXISTS idx_requests_target ON connection_requests(target_child_id);

CREATE TABLE IF NOT EXISTS connections (
	id BIGSERIAL PRIMARY KEY,
	handle UUID NOT NULL UNIQUE,
	child_low_id BIGINT NOT NULL REFERENCES children(id) ON DELETE CASCADE,
	child_high_id BIGINT NOT NULL REFERENCES children(id) ON DELETE CASCADE,
	request_id BIGINT REFERENCES connection_requests(id) ON DELETE SET NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CHECK (child_low_id < child_high_id),
	UNIQUE (child_low_id, child_high_id)
);

CREATE INDEX IF NOT EXISTS idx_connections_high ON connections(child_high_id);
CREATE INDEX IF NOT EXISTS idx_connections_created_at ON connections(created_at);

CREATE TABLE IF NOT EXISTS activities (
	id BIGSERIAL PRIMARY KEY,
	handle UUID NOT NULL UNIQUE,
	group_handle UUID NOT NULL,
	host_child_id BIGINT NOT NULL REFERENCES children(id) ON DELETE CASCADE,
	host_account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	is_primary BOOLEAN NOT NULL DEFAULT FALSE,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	location TEXT NOT NULL DEFAULT '',
	starts_at TIMESTAMPTZ NOT NULL,
	ends_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (group_handle, host_child_id)
);

CREATE TABLE IF NOT EXISTS activity_invitations (
	id BIGSERIAL PRIMARY KEY,
	handle UUID NOT NULL UNIQUE,
	activity_id BIGINT NOT NULL REFERENCES activities(id) ON DELETE CASCADE,
	invited_child_id BIGINT NOT NULL REFERENCES children(id) ON DELETE CASCADE,
	invited_account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	inviter_account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	status VARCHAR(16) NOT NULL CHECK (status IN ('pending', 'accepted', 'rejected')),
	message TEXT NOT NULL DEFAULT '',
	responded_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_invitations_one_pending
	ON activity_invitations(activity_id, invited_child_id) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS idx_invitations_child ON activity_invitations(invited_child_id);

CREATE TABLE IF NOT EXISTS pending_invitations (
	id BIGSERIAL PRIMARY KEY,
	handle UUID NOT NULL UNIQUE,
	activity_id BIGINT NOT NULL REFERENCES activities(id) ON DELETE CASCADE,
	key_kind VARCHAR(32) NOT NULL CHECK (key_kind IN ('connection_request', 'child', 'account')),
	request_id BIGINT REFERENCES connection_requests(id) ON DELETE CASCADE,
	child_id BIGINT REFERENCES children(id) ON DELETE CASCADE,
	account_id BIGINT REFERENCES accounts(id) ON DELETE CASCADE,
	message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CHECK (
		(key_kind = 'connection_request' AND request_id IS NOT NULL AND child_id IS NULL AND account_id IS NULL) OR
		(key_kind = 'child' AND child_id IS NOT NULL AND request_id IS NULL AND account_id IS NULL) OR
		(key_kind = 'account' AND account_id IS NOT NULL AND request_id IS NULL AND child_id IS NULL)
	)
);

CREATE INDEX IF NOT EXISTS idx_pending_activity ON pending_invitations(activity_id);
CREATE INDEX IF NOT EXISTS idx_pending_request ON pending_invitations(request_id) WHERE request_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_pending_child ON pending_invitations(child_id) WHERE child_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_pending_account ON pending_invitations(account_id) WHERE account_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Migrate applies the schema. It is safe to run repeatedly.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// Migrate applies the schema to the store's database.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return Migrate(ctx, s.db)
}
