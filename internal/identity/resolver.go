// Package identity maps external handles to internal keys and normalizes the
// contact details used to match parents across registrations.
package identity

import (
	"context"
	"fmt"

	"github.com/narvanalabs/playdate/internal/models"
	"github.com/narvanalabs/playdate/internal/store"
)

// Resolver translates between handles and internal keys. A malformed handle,
// an unknown handle and a handle of the wrong kind are all reported as
// models.ErrNotFound.
type Resolver struct {
	handles store.HandleStore
}

// NewResolver creates a resolver over the given handle store.
func NewResolver(handles store.HandleStore) *Resolver {
	return &Resolver{handles: handles}
}

// Key returns the internal key for a handle.
func (r *Resolver) Key(ctx context.Context, kind models.Kind, handle models.Handle) (int64, error) {
	if !kind.Valid() || !handle.Valid() {
		return 0, fmt.Errorf("resolving %s: %w", kind, models.ErrNotFound)
	}
	id, err := r.handles.Lookup(ctx, kind, handle)
	if err != nil {
		return 0, fmt.Errorf("resolving %s: %w", kind, err)
	}
	return id, nil
}

// Handle returns the external handle for an internal key.
func (r *Resolver) Handle(ctx context.Context, kind models.Kind, id int64) (models.Handle, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("resolving %s key: %w", kind, models.ErrNotFound)
	}
	h, err := r.handles.Handle(ctx, kind, id)
	if err != nil {
		return "", fmt.Errorf("resolving %s key: %w", kind, err)
	}
	return h, nil
}

// Account resolves an account handle.
func (r *Resolver) Account(ctx context.Context, h models.Handle) (int64, error) {
	return r.Key(ctx, models.KindAccount, h)
}

// Child resolves a child handle.
func (r *Resolver) Child(ctx context.Context, h models.Handle) (int64, error) {
	return r.Key(ctx, models.KindChild, h)
}

// Request resolves a connection request handle.
func (r *Resolver) Request(ctx context.Context, h models.Handle) (int64, error) {
	return r.Key(ctx, models.KindConnectionRequest, h)
}

// Activity resolves an activity handle.
func (r *Resolver) Activity(ctx context.Context, h models.Handle) (int64, error) {
	return r.Key(ctx, models.KindActivity, h)
}

// Invitation resolves an activity invitation handle.
func (r *Resolver) Invitation(ctx context.Context, h models.Handle) (int64, error) {
	return r.Key(ctx, models.KindInvitation, h)
}
