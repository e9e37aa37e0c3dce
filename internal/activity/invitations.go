package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/narvanalabs/playdate/internal/connection"
	"github.com/narvanalabs/playdate/internal/models"
	"github.com/narvanalabs/playdate/internal/store"
)

// Respond answers an invitation addressed to one of the caller's children.
func (s *Service) Respond(ctx context.Context, caller int64, invitation models.Handle, accept bool) (*models.ActivityInvitation, error) {
	id, err := s.resolver.Invitation(ctx, invitation)
	if err != nil {
		return nil, err
	}

	status := models.InvitationStatusRejected
	if accept {
		status = models.InvitationStatusAccepted
	}

	var inv *models.ActivityInvitation
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		var err error
		inv, err = tx.Invitations().Get(ctx, id)
		if err != nil {
			return err
		}
		if inv.InvitedAccountID != caller {
			return models.ErrNotFound
		}
		now := time.Now().UTC()
		if err := tx.Invitations().UpdateStatus(ctx, inv.ID, status, now); err != nil {
			return err
		}
		inv.Status = status
		inv.RespondedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("invitation answered", "invitation", invitation, "status", status)
	return inv, nil
}

// ListInvitations returns the invitations addressed to one of the caller's
// children, newest first.
func (s *Service) ListInvitations(ctx context.Context, caller int64, child models.Handle) ([]*models.ActivityInvitation, error) {
	c, err := connection.OwnedChild(ctx, s.store, s.resolver, caller, child)
	if err != nil {
		return nil, err
	}
	invs, err := s.store.Invitations().ListByChild(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("listing invitations: %w", err)
	}
	return invs, nil
}

// ListActivityInvitations returns the invitations issued from one activity
// copy. Only the copy's host family may list them.
func (s *Service) ListActivityInvitations(ctx context.Context, caller int64, activity models.Handle) ([]*models.ActivityInvitation, error) {
	a, err := s.hosted(ctx, caller, activity)
	if err != nil {
		return nil, err
	}
	invs, err := s.store.Invitations().ListByActivity(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("listing activity invitations: %w", err)
	}
	return invs, nil
}

// ListPending returns the pending ledger entries of one activity copy.
func (s *Service) ListPending(ctx context.Context, caller int64, activity models.Handle) ([]*models.PendingInvitation, error) {
	return s.ledger.ListForActivity(ctx, caller, activity)
}

// Get returns an activity copy hosted by the caller's family.
func (s *Service) Get(ctx context.Context, caller int64, activity models.Handle) (*models.Activity, error) {
	return s.hosted(ctx, caller, activity)
}

// ListCopies returns every host copy of the logical activity, primary first.
// Any co-host may list them; each copy's invitations stay with its host.
func (s *Service) ListCopies(ctx context.Context, caller int64, activity models.Handle) ([]*models.Activity, error) {
	a, err := s.hosted(ctx, caller, activity)
	if err != nil {
		return nil, err
	}
	return s.store.Activities().ListByGroup(ctx, a.GroupHandle)
}

func (s *Service) hosted(ctx context.Context, caller int64, activity models.Handle) (*models.Activity, error) {
	id, err := s.resolver.Activity(ctx, activity)
	if err != nil {
		return nil, err
	}
	a, err := s.store.Activities().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.HostAccountID != caller {
		return nil, models.ErrNotFound
	}
	return a, nil
}
