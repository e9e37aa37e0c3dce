package memstore

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/narvanalabs/playdate/internal/models"
)

type accountStore struct{ access access }

// conflicts reports whether a real account other than self already owns one
// of the fingerprints.
func (s *state) conflicts(self *models.Account) bool {
	if self.IsSkeleton {
		return false
	}
	for id, a := range s.accounts {
		if id == self.ID || a.IsSkeleton {
			continue
		}
		if fingerprintMatch(a, self.EmailFingerprint, self.PhoneFingerprint) {
			return true
		}
	}
	return false
}

func fingerprintMatch(a *models.Account, email, phone string) bool {
	return (email != "" && a.EmailFingerprint == email) ||
		(phone != "" && a.PhoneFingerprint == phone)
}

func (st *accountStore) Create(ctx context.Context, account *models.Account) error {
	if err := account.Validate(); err != nil {
		return fmt.Errorf("validating account: %w", err)
	}
	return st.access(func(s *state) error {
		if s.conflicts(account) {
			return models.ErrDuplicateAccount
		}
		if account.Handle == "" {
			account.Handle = models.NewHandle()
		}
		now := time.Now().UTC()
		if account.CreatedAt.IsZero() {
			account.CreatedAt = now
		}
		account.UpdatedAt = now
		account.ID = s.id()
		cp := *account
		s.accounts[cp.ID] = &cp
		return nil
	})
}

func (st *accountStore) Get(ctx context.Context, id int64) (*models.Account, error) {
	var out *models.Account
	err := st.access(func(s *state) error {
		a, ok := s.accounts[id]
		if !ok {
			return models.ErrNotFound
		}
		cp := *a
		out = &cp
		return nil
	})
	return out, err
}

func (st *accountStore) GetByFingerprint(ctx context.Context, email, phone string) (*models.Account, error) {
	var out *models.Account
	err := st.access(func(s *state) error {
		for _, a := range s.sortedAccounts() {
			if !a.IsSkeleton && fingerprintMatch(a, email, phone) {
				cp := *a
				out = &cp
				return nil
			}
		}
		return models.ErrNotFound
	})
	return out, err
}

func (st *accountStore) LockSkeletonsByFingerprint(ctx context.Context, email, phone string) ([]*models.Account, error) {
	var out []*models.Account
	err := st.access(func(s *state) error {
		for _, a := range s.sortedAccounts() {
			if a.IsSkeleton && fingerprintMatch(a, email, phone) {
				cp := *a
				out = append(out, &cp)
			}
		}
		return nil
	})
	return out, err
}

func (st *accountStore) Update(ctx context.Context, account *models.Account) error {
	return st.access(func(s *state) error {
		existing, ok := s.accounts[account.ID]
		if !ok {
			return models.ErrNotFound
		}
		if s.conflicts(account) {
			return models.ErrDuplicateAccount
		}
		account.UpdatedAt = time.Now().UTC()
		cp := *account
		cp.Handle = existing.Handle
		cp.CreatedAt = existing.CreatedAt
		s.accounts[cp.ID] = &cp
		return nil
	})
}

func (st *accountStore) Delete(ctx context.Context, id int64) error {
	return st.access(func(s *state) error {
		if _, ok := s.accounts[id]; !ok {
			return models.ErrNotFound
		}
		s.deleteAccount(id)
		return nil
	})
}

func (st *accountStore) ListPromotedSince(ctx context.Context, since time.Time) ([]*models.Account, error) {
	var out []*models.Account
	err := st.access(func(s *state) error {
		for _, a := range s.accounts {
			if a.PromotedAt != nil && !a.PromotedAt.Before(since) {
				cp := *a
				out = append(out, &cp)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b *models.Account) int {
		if c := a.PromotedAt.Compare(*b.PromotedAt); c != 0 {
			return c
		}
		return cmpID(a.ID, b.ID)
	})
	return out, err
}

func (s *state) sortedAccounts() []*models.Account {
	out := make([]*models.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b *models.Account) int { return cmpID(a.ID, b.ID) })
	return out
}

func cmpID(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

type childStore struct{ access access }

func (st *childStore) Create(ctx context.Context, child *models.Child) error {
	if err := child.Validate(); err != nil {
		return fmt.Errorf("validating child: %w", err)
	}
	return st.access(func(s *state) error {
		if _, ok := s.accounts[child.AccountID]; !ok {
			return models.ErrNotFound
		}
		if child.Handle == "" {
			child.Handle = models.NewHandle()
		}
		if child.CreatedAt.IsZero() {
			child.CreatedAt = time.Now().UTC()
		}
		child.ID = s.id()
		cp := *child
		s.children[cp.ID] = &cp
		return nil
	})
}

func (st *childStore) Get(ctx context.Context, id int64) (*models.Child, error) {
	var out *models.Child
	err := st.access(func(s *state) error {
		c, ok := s.children[id]
		if !ok {
			return models.ErrNotFound
		}
		cp := *c
		out = &cp
		return nil
	})
	return out, err
}

func (st *childStore) ListByAccount(ctx context.Context, accountID int64) ([]*models.Child, error) {
	var out []*models.Child
	err := st.access(func(s *state) error {
		for _, c := range s.children {
			if c.AccountID == accountID {
				cp := *c
				out = append(out, &cp)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b *models.Child) int { return cmpID(a.ID, b.ID) })
	return out, err
}

func (st *childStore) Update(ctx context.Context, child *models.Child) error {
	return st.access(func(s *state) error {
		existing, ok := s.children[child.ID]
		if !ok {
			return models.ErrNotFound
		}
		if _, ok := s.accounts[child.AccountID]; !ok {
			return models.ErrNotFound
		}
		existing.AccountID = child.AccountID
		existing.DisplayName = child.DisplayName
		existing.IsSkeleton = child.IsSkeleton
		return nil
	})
}

func (st *childStore) Delete(ctx context.Context, id int64) error {
	return st.access(func(s *state) error {
		if _, ok := s.children[id]; !ok {
			return models.ErrNotFound
		}
		s.deleteChild(id)
		return nil
	})
}

// The delete helpers mirror the ON DELETE rules of the relational schema.

func (s *state) deleteAccount(id int64) {
	for cid, c := range s.children {
		if c.AccountID == id {
			s.deleteChild(cid)
		}
	}
	for rid, r := range s.requests {
		if r.RequesterAccountID == id || r.TargetAccountID == id {
			s.deleteRequest(rid)
		}
	}
	for aid, a := range s.activities {
		if a.HostAccountID == id {
			s.deleteActivity(aid)
		}
	}
	for iid, inv := range s.invitations {
		if inv.InvitedAccountID == id || inv.InviterAccountID == id {
			delete(s.invitations, iid)
		}
	}
	for pid, p := range s.pending {
		if k, ok := p.Key.(models.AccountKey); ok && k.AccountID == id {
			delete(s.pending, pid)
		}
	}
	delete(s.accounts, id)
}

func (s *state) deleteChild(id int64) {
	for rid, r := range s.requests {
		if r.Involves(id) {
			s.deleteRequest(rid)
		}
	}
	for cid, c := range s.connections {
		if c.Involves(id) {
			delete(s.connections, cid)
		}
	}
	for aid, a := range s.activities {
		if a.HostChildID == id {
			s.deleteActivity(aid)
		}
	}
	for iid, inv := range s.invitations {
		if inv.InvitedChildID == id {
			delete(s.invitations, iid)
		}
	}
	for pid, p := range s.pending {
		if k, ok := p.Key.(models.ChildKey); ok && k.ChildID == id {
			delete(s.pending, pid)
		}
	}
	delete(s.children, id)
}

func (s *state) deleteRequest(id int64) {
	for _, c := range s.connections {
		if c.RequestID != nil && *c.RequestID == id {
			c.RequestID = nil
		}
	}
	for pid, p := range s.pending {
		if k, ok := p.Key.(models.ConnectionRequestKey); ok && k.RequestID == id {
			delete(s.pending, pid)
		}
	}
	delete(s.requests, id)
}

func (s *state) deleteActivity(id int64) {
	for iid, inv := range s.invitations {
		if inv.ActivityID == id {
			delete(s.invitations, iid)
		}
	}
	for pid, p := range s.pending {
		if p.ActivityID == id {
			delete(s.pending, pid)
		}
	}
	delete(s.activities, id)
}
