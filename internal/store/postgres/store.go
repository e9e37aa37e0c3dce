// Package postgres provides PostgreSQL implementation of the store interfaces.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/narvanalabs/playdate/internal/store"
	"github.com/narvanalabs/playdate/pkg/config"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
	retry  RetryConfig

	handles     *HandleStore
	accounts    *AccountStore
	children    *ChildStore
	requests    *RequestStore
	connections *ConnectionStore
	activities  *ActivityStore
	invitations *InvitationStore
	pending     *PendingStore
	settings    *SettingsStore
}

// RetryConfig bounds the retries of transactions aborted by serialization
// failures or deadlocks.
type RetryConfig struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Config holds PostgreSQL connection configuration.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	Retry           RetryConfig
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(dsn string) *Config {
	return &Config{
		DSN:             dsn,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,
		Retry: RetryConfig{
			MaxAttempts:     5,
			InitialInterval: 20 * time.Millisecond,
			MaxInterval:     500 * time.Millisecond,
		},
	}
}

// FromConfig builds a Config from the database section of the service
// configuration.
func FromConfig(cfg config.DatabaseConfig) *Config {
	return &Config{
		DSN:             cfg.URL,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		Retry: RetryConfig{
			MaxAttempts:     cfg.TxRetry.MaxAttempts,
			InitialInterval: cfg.TxRetry.InitialInterval,
			MaxInterval:     cfg.TxRetry.MaxInterval,
		},
	}
}

// NewPostgresStore creates a new PostgreSQL store with the given configuration.
func NewPostgresStore(cfg *Config, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := newStore(db, cfg.Retry, logger)
	logger.Info("connected to PostgreSQL database")
	return s, nil
}

func newStore(db *sql.DB, retry RetryConfig, logger *slog.Logger) *PostgresStore {
	if retry.MaxAttempts == 0 {
		retry.MaxAttempts = 1
	}
	return &PostgresStore{
		db:          db,
		logger:      logger,
		retry:       retry,
		handles:     &HandleStore{db: db},
		accounts:    &AccountStore{db: db, logger: logger},
		children:    &ChildStore{db: db, logger: logger},
		requests:    &RequestStore{db: db, logger: logger},
		connections: &ConnectionStore{db: db, logger: logger},
		activities:  &ActivityStore{db: db, logger: logger},
		invitations: &InvitationStore{db: db, logger: logger},
		pending:     &PendingStore{db: db, logger: logger},
		settings:    &SettingsStore{db: db},
	}
}

func (s *PostgresStore) Handles() store.HandleStore              { return s.handles }
func (s *PostgresStore) Accounts() store.AccountStore            { return s.accounts }
func (s *PostgresStore) Children() store.ChildStore              { return s.children }
func (s *PostgresStore) Requests() store.ConnectionRequestStore  { return s.requests }
func (s *PostgresStore) Connections() store.ConnectionStore      { return s.connections }
func (s *PostgresStore) Activities() store.ActivityStore         { return s.activities }
func (s *PostgresStore) Invitations() store.InvitationStore      { return s.invitations }
func (s *PostgresStore) Pending() store.PendingInvitationStore   { return s.pending }
func (s *PostgresStore) Settings() store.SettingsStore           { return s.settings }

// WithTx executes the given function within a serializable transaction.
// Transactions aborted by a serialization failure or deadlock are retried
// with exponential backoff; fn must therefore be safe to run again.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(store.Store) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retry.InitialInterval
	b.MaxInterval = s.retry.MaxInterval

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := s.runTx(ctx, fn)
		if err == nil {
			return struct{}{}, nil
		}
		if isRetryable(err) {
			s.logger.Debug("retrying transaction", "attempt", attempt, "error", err)
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(s.retry.MaxAttempts))
	return err
}

func (s *PostgresStore) runTx(ctx context.Context, fn func(store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	txStore := &txStore{
		tx:     tx,
		logger: s.logger,
	}

	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("failed to rollback transaction", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// Ping verifies the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	s.logger.Info("closing PostgreSQL connection")
	return s.db.Close()
}

// DB returns the underlying database connection.
// This is useful for components that need direct database access.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// txStore wraps a transaction and implements the Store interface.
type txStore struct {
	tx     *sql.Tx
	logger *slog.Logger

	handles     *HandleStore
	accounts    *AccountStore
	children    *ChildStore
	requests    *RequestStore
	connections *ConnectionStore
	activities  *ActivityStore
	invitations *InvitationStore
	pending     *PendingStore
	settings    *SettingsStore
}

func (s *txStore) Handles() store.HandleStore {
	if s.handles == nil {
		s.handles = &HandleStore{tx: s.tx}
	}
	return s.handles
}

func (s *txStore) Accounts() store.AccountStore {
	if s.accounts == nil {
		s.accounts = &AccountStore{tx: s.tx, logger: s.logger}
	}
	return s.accounts
}

func (s *txStore) Children() store.ChildStore {
	if s.children == nil {
		s.children = &ChildStore{tx: s.tx, logger: s.logger}
	}
	return s.children
}

func (s *txStore) Requests() store.ConnectionRequestStore {
	if s.requests == nil {
		s.requests = &RequestStore{tx: s.tx, logger: s.logger}
	}
	return s.requests
}

func (s *txStore) Connections() store.ConnectionStore {
	if s.connections == nil {
		s.connections = &ConnectionStore{tx: s.tx, logger: s.logger}
	}
	return s.connections
}

func (s *txStore) Activities() store.ActivityStore {
	if s.activities == nil {
		s.activities = &ActivityStore{tx: s.tx, logger: s.logger}
	}
	return s.activities
}

func (s *txStore) Invitations() store.InvitationStore {
	if s.invitations == nil {
		s.invitations = &InvitationStore{tx: s.tx, logger: s.logger}
	}
	return s.invitations
}

func (s *txStore) Pending() store.PendingInvitationStore {
	if s.pending == nil {
		s.pending = &PendingStore{tx: s.tx, logger: s.logger}
	}
	return s.pending
}

func (s *txStore) Settings() store.SettingsStore {
	if s.settings == nil {
		s.settings = &SettingsStore{tx: s.tx}
	}
	return s.settings
}

func (s *txStore) WithTx(ctx context.Context, fn func(store.Store) error) error {
	// Already in a transaction, just execute the function
	return fn(s)
}

func (s *txStore) Ping(ctx context.Context) error {
	return nil
}

func (s *txStore) Close() error {
	// No-op for transaction store
	return nil
}

// queryable is an interface that both *sql.DB and *sql.Tx implement.
type queryable interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func pick(db *sql.DB, tx *sql.Tx) queryable {
	if tx != nil {
		return tx
	}
	return db
}
