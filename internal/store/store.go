// Package store provides database access interfaces and implementations.
//
// All methods take and return internal keys. Handles only enter the store
// through HandleStore, which backs the identity resolver.
package store

import (
	"context"
	"time"

	"github.com/narvanalabs/playdate/internal/models"
)

// HandleStore maps between external handles and internal keys.
type HandleStore interface {
	// Lookup returns the internal key for a handle of the given kind.
	// Returns models.ErrNotFound if the handle does not exist.
	Lookup(ctx context.Context, kind models.Kind, handle models.Handle) (int64, error)
	// Handle returns the external handle for an internal key.
	Handle(ctx context.Context, kind models.Kind, id int64) (models.Handle, error)
}

// AccountStore defines operations for parent accounts, real and skeleton.
type AccountStore interface {
	// Create inserts a new account, assigning ID, Handle and timestamps.
	Create(ctx context.Context, account *models.Account) error
	// Get retrieves an account by internal key.
	Get(ctx context.Context, id int64) (*models.Account, error)
	// GetByFingerprint returns the real (non-skeleton) account matching either
	// fingerprint. Empty fingerprints never match.
	GetByFingerprint(ctx context.Context, email, phone string) (*models.Account, error)
	// LockSkeletonsByFingerprint returns every skeleton account matching either
	// fingerprint, oldest first, locking the rows for the transaction.
	LockSkeletonsByFingerprint(ctx context.Context, email, phone string) ([]*models.Account, error)
	// Update updates name, fingerprints, password hash, skeleton flag and promoted_at.
	Update(ctx context.Context, account *models.Account) error
	// Delete removes an account.
	Delete(ctx context.Context, id int64) error
	// ListPromotedSince returns accounts promoted at or after since.
	ListPromotedSince(ctx context.Context, since time.Time) ([]*models.Account, error)
}

// ChildStore defines operations for children.
type ChildStore interface {
	// Create inserts a new child.
	Create(ctx context.Context, child *models.Child) error
	// Get retrieves a child by internal key.
	Get(ctx context.Context, id int64) (*models.Child, error)
	// ListByAccount retrieves every child of an account, oldest first.
	ListByAccount(ctx context.Context, accountID int64) ([]*models.Child, error)
	// Update updates the child's owner, name and skeleton flag.
	Update(ctx context.Context, child *models.Child) error
	// Delete removes a child.
	Delete(ctx context.Context, id int64) error
}

// ConnectionRequestStore defines operations for connection requests.
type ConnectionRequestStore interface {
	// Create inserts a new request.
	Create(ctx context.Context, req *models.ConnectionRequest) error
	// Get retrieves a request by internal key.
	Get(ctx context.Context, id int64) (*models.ConnectionRequest, error)
	// GetForUpdate retrieves a request and locks it for the transaction.
	GetForUpdate(ctx context.Context, id int64) (*models.ConnectionRequest, error)
	// FindPending returns the pending request between two children, in
	// either direction. Returns models.ErrNotFound if none exists.
	FindPending(ctx context.Context, childA, childB int64) (*models.ConnectionRequest, error)
	// UpdateStatus transitions a pending request. Returns
	// models.ErrInvalidStateTransition if the request is no longer pending.
	UpdateStatus(ctx context.Context, id int64, status models.RequestStatus, at time.Time) error
	// ListByChild retrieves requests where the child is on either side.
	ListByChild(ctx context.Context, childID int64) ([]*models.ConnectionRequest, error)
	// RepointChild moves every reference to fromChild onto toChild/toAccount.
	RepointChild(ctx context.Context, fromChild, toChild, toAccount int64) (int64, error)
	// RepointAccount moves every account reference from one account to another.
	RepointAccount(ctx context.Context, fromAccount, toAccount int64) (int64, error)
}

// ConnectionStore defines operations for accepted connections.
type ConnectionStore interface {
	// GetOrCreate returns the connection for the unordered pair, creating it
	// when absent. The second return reports whether a row was inserted.
	GetOrCreate(ctx context.Context, childA, childB int64, requestID *int64) (*models.Connection, bool, error)
	// GetBetween returns the connection for the unordered pair.
	GetBetween(ctx context.Context, childA, childB int64) (*models.Connection, error)
	// ListByChild retrieves every connection of a child.
	ListByChild(ctx context.Context, childID int64) ([]*models.Connection, error)
	// ListCreatedSince retrieves connections created at or after since, oldest first.
	ListCreatedSince(ctx context.Context, since time.Time) ([]*models.Connection, error)
}

// ActivityStore defines operations for activity host copies.
type ActivityStore interface {
	// Create inserts a new activity copy.
	Create(ctx context.Context, activity *models.Activity) error
	// Get retrieves an activity by internal key.
	Get(ctx context.Context, id int64) (*models.Activity, error)
	// ListByGroup retrieves every host copy of a logical activity, primary first.
	ListByGroup(ctx context.Context, group models.Handle) ([]*models.Activity, error)
}

// InvitationStore defines operations for activity invitations.
type InvitationStore interface {
	// Create inserts a pending invitation. It returns false without error when
	// a pending invitation already exists for (activity, child).
	Create(ctx context.Context, inv *models.ActivityInvitation) (bool, error)
	// Get retrieves an invitation by internal key.
	Get(ctx context.Context, id int64) (*models.ActivityInvitation, error)
	// FindForChild retrieves every invitation of any status for (activity, child).
	FindForChild(ctx context.Context, activityID, childID int64) ([]*models.ActivityInvitation, error)
	// ListByChild retrieves the invitations addressed to a child, newest first.
	ListByChild(ctx context.Context, childID int64) ([]*models.ActivityInvitation, error)
	// ListByActivity retrieves the invitations of one activity copy.
	ListByActivity(ctx context.Context, activityID int64) ([]*models.ActivityInvitation, error)
	// UpdateStatus answers a pending invitation. Returns
	// models.ErrInvalidStateTransition if it is no longer pending.
	UpdateStatus(ctx context.Context, id int64, status models.InvitationStatus, at time.Time) error
	// RepointChild moves invitations from fromChild to toChild, dropping rows
	// that would duplicate an invitation toChild already holds.
	RepointChild(ctx context.Context, fromChild, toChild, toAccount int64) (int64, error)
	// RepointAccount moves invited/inviter account references.
	RepointAccount(ctx context.Context, fromAccount, toAccount int64) (int64, error)
}

// ResolvableQuery selects pending invitations whose key references any of
// the listed requests, children or accounts.
type ResolvableQuery struct {
	RequestIDs []int64
	ChildIDs   []int64
	AccountIDs []int64
}

// Empty reports whether the query can match nothing.
func (q ResolvableQuery) Empty() bool {
	return len(q.RequestIDs) == 0 && len(q.ChildIDs) == 0 && len(q.AccountIDs) == 0
}

// PendingInvitationStore defines operations for the pending invitation ledger.
type PendingInvitationStore interface {
	// Create inserts a pending invitation.
	Create(ctx context.Context, p *models.PendingInvitation) error
	// Get retrieves a pending invitation by internal key.
	Get(ctx context.Context, id int64) (*models.PendingInvitation, error)
	// ListByActivity retrieves the pending entries of one activity copy.
	ListByActivity(ctx context.Context, activityID int64) ([]*models.PendingInvitation, error)
	// LockResolvable retrieves and locks candidate entries in key order.
	LockResolvable(ctx context.Context, q ResolvableQuery) ([]*models.PendingInvitation, error)
	// Delete removes a pending invitation. It returns false when the row was
	// already gone.
	Delete(ctx context.Context, id int64) (bool, error)
	// RepointChild moves child keys from one child to another.
	RepointChild(ctx context.Context, fromChild, toChild int64) (int64, error)
	// RepointAccount moves account keys from one account to another.
	RepointAccount(ctx context.Context, fromAccount, toAccount int64) (int64, error)
}

// SettingsStore defines operations for global key/value state such as the
// reconciler checkpoint.
type SettingsStore interface {
	// Get retrieves a setting by key. Returns "" when unset.
	Get(ctx context.Context, key string) (string, error)
	// Set sets a setting key-value pair.
	Set(ctx context.Context, key, value string) error
}

// Store is the main interface for database operations.
type Store interface {
	// Handles returns the HandleStore backing the identity resolver.
	Handles() HandleStore
	// Accounts returns the AccountStore.
	Accounts() AccountStore
	// Children returns the ChildStore.
	Children() ChildStore
	// Requests returns the ConnectionRequestStore.
	Requests() ConnectionRequestStore
	// Connections returns the ConnectionStore.
	Connections() ConnectionStore
	// Activities returns the ActivityStore.
	Activities() ActivityStore
	// Invitations returns the InvitationStore.
	Invitations() InvitationStore
	// Pending returns the PendingInvitationStore.
	Pending() PendingInvitationStore
	// Settings returns the SettingsStore.
	Settings() SettingsStore

	// WithTx executes the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// Otherwise, the transaction is committed. Calling WithTx on a
	// transaction-scoped store runs fn in the existing transaction.
	WithTx(ctx context.Context, fn func(Store) error) error

	// Ping verifies the backing database is reachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
