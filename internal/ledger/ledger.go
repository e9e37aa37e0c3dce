// Package ledger records invitation intents that cannot be issued yet and
// finds the ones a newly true prerequisite satisfies.
package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/narvanalabs/playdate/internal/identity"
	"github.com/narvanalabs/playdate/internal/models"
	"github.com/narvanalabs/playdate/internal/store"
	"github.com/narvanalabs/playdate/internal/validation"
)

// Ledger is the pending invitation ledger.
type Ledger struct {
	store    store.Store
	resolver *identity.Resolver
	logger   *slog.Logger
}

// New creates a ledger.
func New(st store.Store, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:    st,
		resolver: identity.NewResolver(st.Handles()),
		logger:   logger.With("component", "ledger"),
	}
}

// Record inserts a pending invitation for an activity copy. Entries for the
// same key on different activities are independent.
func (l *Ledger) Record(ctx context.Context, tx store.Store, activityID int64, key models.ResolutionKey, message string) (*models.PendingInvitation, error) {
	if key == nil {
		return nil, models.ErrInvalidInput
	}
	if err := validation.ValidateMessage(message); err != nil {
		return nil, err
	}

	p := &models.PendingInvitation{
		ActivityID: activityID,
		Key:        key,
		Message:    message,
	}
	if err := tx.Pending().Create(ctx, p); err != nil {
		return nil, fmt.Errorf("recording pending invitation: %w", err)
	}

	l.logger.Debug("pending invitation recorded",
		"pending", p.Handle,
		"key_kind", key.Kind(),
	)
	return p, nil
}

// ListForActivity returns the pending entries of an activity copy. Only the
// copy's host account may list them; anyone else sees models.ErrNotFound.
func (l *Ledger) ListForActivity(ctx context.Context, callerAccountID int64, activity models.Handle) ([]*models.PendingInvitation, error) {
	activityID, err := l.resolver.Activity(ctx, activity)
	if err != nil {
		return nil, err
	}
	a, err := l.store.Activities().Get(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if a.HostAccountID != callerAccountID {
		return nil, models.ErrNotFound
	}

	entries, err := l.store.Pending().ListByActivity(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("listing pending invitations: %w", err)
	}
	return entries, nil
}
