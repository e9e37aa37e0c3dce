package memstore

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/narvanalabs/playdate/internal/models"
	"github.com/narvanalabs/playdate/internal/store"
)

type activityStore struct{ access access }

func (s *state) hydrateActivity(a *models.Activity) *models.Activity {
	cp := *a
	cp.HostChild = s.handleOf(models.KindChild, a.HostChildID)
	return &cp
}

func (st *activityStore) Create(ctx context.Context, activity *models.Activity) error {
	if err := activity.Validate(); err != nil {
		return fmt.Errorf("validating activity: %w", err)
	}
	return st.access(func(s *state) error {
		if s.children[activity.HostChildID] == nil || s.accounts[activity.HostAccountID] == nil {
			return models.ErrNotFound
		}
		if activity.Handle == "" {
			activity.Handle = models.NewHandle()
		}
		if activity.GroupHandle == "" {
			activity.GroupHandle = models.NewHandle()
		}
		for _, a := range s.activities {
			if a.GroupHandle == activity.GroupHandle && a.HostChildID == activity.HostChildID {
				return models.ErrConstraintViolation
			}
		}
		if activity.CreatedAt.IsZero() {
			activity.CreatedAt = time.Now().UTC()
		}
		activity.ID = s.id()
		activity.HostChild = s.handleOf(models.KindChild, activity.HostChildID)
		cp := *activity
		s.activities[cp.ID] = &cp
		return nil
	})
}

func (st *activityStore) Get(ctx context.Context, id int64) (*models.Activity, error) {
	var out *models.Activity
	err := st.access(func(s *state) error {
		a, ok := s.activities[id]
		if !ok {
			return models.ErrNotFound
		}
		out = s.hydrateActivity(a)
		return nil
	})
	return out, err
}

func (st *activityStore) ListByGroup(ctx context.Context, group models.Handle) ([]*models.Activity, error) {
	var out []*models.Activity
	err := st.access(func(s *state) error {
		for _, a := range s.activities {
			if a.GroupHandle == group {
				out = append(out, s.hydrateActivity(a))
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b *models.Activity) int {
		if a.IsPrimary != b.IsPrimary {
			if a.IsPrimary {
				return -1
			}
			return 1
		}
		return cmpID(a.ID, b.ID)
	})
	return out, err
}

type invitationStore struct{ access access }

func (s *state) hydrateInvitation(inv *models.ActivityInvitation) *models.ActivityInvitation {
	cp := *inv
	cp.Activity = s.handleOf(models.KindActivity, inv.ActivityID)
	cp.InvitedChild = s.handleOf(models.KindChild, inv.InvitedChildID)
	return &cp
}

func (s *state) hasPendingInvitation(activityID, childID, except int64) bool {
	for id, inv := range s.invitations {
		if id != except && inv.ActivityID == activityID && inv.InvitedChildID == childID &&
			inv.Status == models.InvitationStatusPending {
			return true
		}
	}
	return false
}

func (st *invitationStore) Create(ctx context.Context, inv *models.ActivityInvitation) (bool, error) {
	var created bool
	err := st.access(func(s *state) error {
		if s.activities[inv.ActivityID] == nil || s.children[inv.InvitedChildID] == nil ||
			s.accounts[inv.InvitedAccountID] == nil || s.accounts[inv.InviterAccountID] == nil {
			return models.ErrNotFound
		}
		if inv.Handle == "" {
			inv.Handle = models.NewHandle()
		}
		if inv.Status == "" {
			inv.Status = models.InvitationStatusPending
		}
		if inv.Status == models.InvitationStatusPending && s.hasPendingInvitation(inv.ActivityID, inv.InvitedChildID, 0) {
			return nil
		}
		if inv.CreatedAt.IsZero() {
			inv.CreatedAt = time.Now().UTC()
		}
		inv.ID = s.id()
		inv.Activity = s.handleOf(models.KindActivity, inv.ActivityID)
		inv.InvitedChild = s.handleOf(models.KindChild, inv.InvitedChildID)
		cp := *inv
		s.invitations[cp.ID] = &cp
		created = true
		return nil
	})
	return created, err
}

func (st *invitationStore) Get(ctx context.Context, id int64) (*models.ActivityInvitation, error) {
	var out *models.ActivityInvitation
	err := st.access(func(s *state) error {
		inv, ok := s.invitations[id]
		if !ok {
			return models.ErrNotFound
		}
		out = s.hydrateInvitation(inv)
		return nil
	})
	return out, err
}

func (st *invitationStore) FindForChild(ctx context.Context, activityID, childID int64) ([]*models.ActivityInvitation, error) {
	out, err := st.list(func(inv *models.ActivityInvitation) bool {
		return inv.ActivityID == activityID && inv.InvitedChildID == childID
	})
	slices.SortFunc(out, func(a, b *models.ActivityInvitation) int { return cmpID(a.ID, b.ID) })
	return out, err
}

func (st *invitationStore) ListByChild(ctx context.Context, childID int64) ([]*models.ActivityInvitation, error) {
	out, err := st.list(func(inv *models.ActivityInvitation) bool { return inv.InvitedChildID == childID })
	slices.SortFunc(out, func(a, b *models.ActivityInvitation) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmpID(b.ID, a.ID)
	})
	return out, err
}

func (st *invitationStore) ListByActivity(ctx context.Context, activityID int64) ([]*models.ActivityInvitation, error) {
	out, err := st.list(func(inv *models.ActivityInvitation) bool { return inv.ActivityID == activityID })
	slices.SortFunc(out, func(a, b *models.ActivityInvitation) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmpID(a.ID, b.ID)
	})
	return out, err
}

func (st *invitationStore) list(match func(*models.ActivityInvitation) bool) ([]*models.ActivityInvitation, error) {
	var out []*models.ActivityInvitation
	err := st.access(func(s *state) error {
		for _, inv := range s.invitations {
			if match(inv) {
				out = append(out, s.hydrateInvitation(inv))
			}
		}
		return nil
	})
	return out, err
}

func (st *invitationStore) UpdateStatus(ctx context.Context, id int64, status models.InvitationStatus, at time.Time) error {
	return st.access(func(s *state) error {
		inv, ok := s.invitations[id]
		if !ok {
			return models.ErrNotFound
		}
		if inv.Status != models.InvitationStatusPending {
			return models.ErrInvalidStateTransition
		}
		inv.Status = status
		inv.RespondedAt = &at
		return nil
	})
}

func (st *invitationStore) RepointChild(ctx context.Context, fromChild, toChild, toAccount int64) (int64, error) {
	var n int64
	err := st.access(func(s *state) error {
		held := make(map[int64]bool)
		for _, inv := range s.invitations {
			if inv.InvitedChildID == toChild {
				held[inv.ActivityID] = true
			}
		}
		for id, inv := range s.invitations {
			if inv.InvitedChildID != fromChild {
				continue
			}
			if held[inv.ActivityID] {
				delete(s.invitations, id)
				continue
			}
			inv.InvitedChildID, inv.InvitedAccountID = toChild, toAccount
			n++
		}
		return nil
	})
	return n, err
}

func (st *invitationStore) RepointAccount(ctx context.Context, fromAccount, toAccount int64) (int64, error) {
	var n int64
	err := st.access(func(s *state) error {
		for _, inv := range s.invitations {
			if inv.InvitedAccountID == fromAccount {
				inv.InvitedAccountID = toAccount
				n++
			}
			if inv.InviterAccountID == fromAccount {
				inv.InviterAccountID = toAccount
				n++
			}
		}
		return nil
	})
	return n, err
}

type pendingStore struct{ access access }

func (s *state) hydratePending(p *models.PendingInvitation) *models.PendingInvitation {
	cp := *p
	cp.Activity = s.handleOf(models.KindActivity, p.ActivityID)
	switch k := p.Key.(type) {
	case models.ConnectionRequestKey:
		k.Request = s.handleOf(models.KindConnectionRequest, k.RequestID)
		cp.Key = k
	case models.ChildKey:
		k.Child = s.handleOf(models.KindChild, k.ChildID)
		cp.Key = k
	case models.AccountKey:
		k.Account = s.handleOf(models.KindAccount, k.AccountID)
		cp.Key = k
	}
	return &cp
}

func (st *pendingStore) Create(ctx context.Context, p *models.PendingInvitation) error {
	if p.Key == nil {
		return models.ErrInvalidInput
	}
	return st.access(func(s *state) error {
		if s.activities[p.ActivityID] == nil {
			return models.ErrNotFound
		}
		requestID, childID, accountID := models.KeyColumns(p.Key)
		switch {
		case requestID != nil && s.requests[*requestID] == nil,
			childID != nil && s.children[*childID] == nil,
			accountID != nil && s.accounts[*accountID] == nil:
			return models.ErrNotFound
		}
		if p.Handle == "" {
			p.Handle = models.NewHandle()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = time.Now().UTC()
		}
		p.ID = s.id()
		cp := *p
		s.pending[cp.ID] = &cp
		*p = *s.hydratePending(&cp)
		return nil
	})
}

func (st *pendingStore) Get(ctx context.Context, id int64) (*models.PendingInvitation, error) {
	var out *models.PendingInvitation
	err := st.access(func(s *state) error {
		p, ok := s.pending[id]
		if !ok {
			return models.ErrNotFound
		}
		out = s.hydratePending(p)
		return nil
	})
	return out, err
}

func (st *pendingStore) ListByActivity(ctx context.Context, activityID int64) ([]*models.PendingInvitation, error) {
	return st.list(func(p *models.PendingInvitation) bool { return p.ActivityID == activityID })
}

func (st *pendingStore) LockResolvable(ctx context.Context, q store.ResolvableQuery) ([]*models.PendingInvitation, error) {
	return st.list(func(p *models.PendingInvitation) bool {
		switch k := p.Key.(type) {
		case models.ConnectionRequestKey:
			return slices.Contains(q.RequestIDs, k.RequestID)
		case models.ChildKey:
			return slices.Contains(q.ChildIDs, k.ChildID)
		case models.AccountKey:
			return slices.Contains(q.AccountIDs, k.AccountID)
		}
		return false
	})
}

func (st *pendingStore) list(match func(*models.PendingInvitation) bool) ([]*models.PendingInvitation, error) {
	var out []*models.PendingInvitation
	err := st.access(func(s *state) error {
		for _, p := range s.pending {
			if match(p) {
				out = append(out, s.hydratePending(p))
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b *models.PendingInvitation) int { return cmpID(a.ID, b.ID) })
	return out, err
}

func (st *pendingStore) Delete(ctx context.Context, id int64) (bool, error) {
	var deleted bool
	err := st.access(func(s *state) error {
		if _, ok := s.pending[id]; ok {
			delete(s.pending, id)
			deleted = true
		}
		return nil
	})
	return deleted, err
}

func (st *pendingStore) RepointChild(ctx context.Context, fromChild, toChild int64) (int64, error) {
	var n int64
	err := st.access(func(s *state) error {
		for _, p := range s.pending {
			if k, ok := p.Key.(models.ChildKey); ok && k.ChildID == fromChild {
				p.Key = models.ChildKey{ChildID: toChild}
				n++
			}
		}
		return nil
	})
	return n, err
}

func (st *pendingStore) RepointAccount(ctx context.Context, fromAccount, toAccount int64) (int64, error) {
	var n int64
	err := st.access(func(s *state) error {
		for _, p := range s.pending {
			if k, ok := p.Key.(models.AccountKey); ok && k.AccountID == fromAccount {
				p.Key = models.AccountKey{AccountID: toAccount}
				n++
			}
		}
		return nil
	})
	return n, err
}
