package memstore

import (
	"context"
	"slices"
	"time"

	"github.com/narvanalabs/playdate/internal/models"
)

type requestStore struct{ access access }

func (s *state) hydrateRequest(r *models.ConnectionRequest) *models.ConnectionRequest {
	cp := *r
	cp.RequesterChild = s.handleOf(models.KindChild, r.RequesterChildID)
	cp.TargetChild = s.handleOf(models.KindChild, r.TargetChildID)
	return &cp
}

func (st *requestStore) Create(ctx context.Context, req *models.ConnectionRequest) error {
	return st.access(func(s *state) error {
		if s.children[req.RequesterChildID] == nil || s.children[req.TargetChildID] == nil ||
			s.accounts[req.RequesterAccountID] == nil || s.accounts[req.TargetAccountID] == nil {
			return models.ErrNotFound
		}
		if req.Handle == "" {
			req.Handle = models.NewHandle()
		}
		if req.Status == "" {
			req.Status = models.RequestStatusPending
		}
		if req.CreatedAt.IsZero() {
			req.CreatedAt = time.Now().UTC()
		}
		req.ID = s.id()
		cp := *req
		s.requests[cp.ID] = &cp
		return nil
	})
}

func (st *requestStore) Get(ctx context.Context, id int64) (*models.ConnectionRequest, error) {
	var out *models.ConnectionRequest
	err := st.access(func(s *state) error {
		r, ok := s.requests[id]
		if !ok {
			return models.ErrNotFound
		}
		out = s.hydrateRequest(r)
		return nil
	})
	return out, err
}

func (st *requestStore) GetForUpdate(ctx context.Context, id int64) (*models.ConnectionRequest, error) {
	return st.Get(ctx, id)
}

func (st *requestStore) FindPending(ctx context.Context, childA, childB int64) (*models.ConnectionRequest, error) {
	var out *models.ConnectionRequest
	err := st.access(func(s *state) error {
		var best *models.ConnectionRequest
		for _, r := range s.requests {
			if r.Status != models.RequestStatusPending {
				continue
			}
			if (r.RequesterChildID == childA && r.TargetChildID == childB) ||
				(r.RequesterChildID == childB && r.TargetChildID == childA) {
				if best == nil || r.ID < best.ID {
					best = r
				}
			}
		}
		if best == nil {
			return models.ErrNotFound
		}
		out = s.hydrateRequest(best)
		return nil
	})
	return out, err
}

func (st *requestStore) UpdateStatus(ctx context.Context, id int64, status models.RequestStatus, at time.Time) error {
	return st.access(func(s *state) error {
		r, ok := s.requests[id]
		if !ok {
			return models.ErrNotFound
		}
		if r.Status != models.RequestStatusPending {
			return models.ErrInvalidStateTransition
		}
		r.Status = status
		r.RespondedAt = &at
		return nil
	})
}

func (st *requestStore) ListByChild(ctx context.Context, childID int64) ([]*models.ConnectionRequest, error) {
	var out []*models.ConnectionRequest
	err := st.access(func(s *state) error {
		for _, r := range s.requests {
			if r.Involves(childID) {
				out = append(out, s.hydrateRequest(r))
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b *models.ConnectionRequest) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmpID(b.ID, a.ID)
	})
	return out, err
}

func (st *requestStore) RepointChild(ctx context.Context, fromChild, toChild, toAccount int64) (int64, error) {
	var n int64
	err := st.access(func(s *state) error {
		for _, r := range s.requests {
			if r.RequesterChildID == fromChild {
				r.RequesterChildID, r.RequesterAccountID = toChild, toAccount
				n++
			}
			if r.TargetChildID == fromChild {
				r.TargetChildID, r.TargetAccountID = toChild, toAccount
				n++
			}
		}
		return nil
	})
	return n, err
}

func (st *requestStore) RepointAccount(ctx context.Context, fromAccount, toAccount int64) (int64, error) {
	var n int64
	err := st.access(func(s *state) error {
		for _, r := range s.requests {
			if r.RequesterAccountID == fromAccount {
				r.RequesterAccountID = toAccount
				n++
			}
			if r.TargetAccountID == fromAccount {
				r.TargetAccountID = toAccount
				n++
			}
		}
		return nil
	})
	return n, err
}

type connectionStore struct{ access access }

func (s *state) hydrateConnection(c *models.Connection) *models.Connection {
	cp := *c
	cp.ChildLow = s.handleOf(models.KindChild, c.ChildLowID)
	cp.ChildHigh = s.handleOf(models.KindChild, c.ChildHighID)
	return &cp
}

func (s *state) between(childA, childB int64) *models.Connection {
	low, high := models.OrderPair(childA, childB)
	for _, c := range s.connections {
		if c.ChildLowID == low && c.ChildHighID == high {
			return c
		}
	}
	return nil
}

func (st *connectionStore) GetOrCreate(ctx context.Context, childA, childB int64, requestID *int64) (*models.Connection, bool, error) {
	if childA == childB {
		return nil, false, models.ErrInvalidInput
	}
	var out *models.Connection
	var created bool
	err := st.access(func(s *state) error {
		if c := s.between(childA, childB); c != nil {
			out = s.hydrateConnection(c)
			return nil
		}
		if s.children[childA] == nil || s.children[childB] == nil {
			return models.ErrNotFound
		}
		low, high := models.OrderPair(childA, childB)
		c := &models.Connection{
			ID:          s.id(),
			Handle:      models.NewHandle(),
			ChildLowID:  low,
			ChildHighID: high,
			CreatedAt:   time.Now().UTC(),
		}
		if requestID != nil {
			rid := *requestID
			c.RequestID = &rid
		}
		s.connections[c.ID] = c
		out = s.hydrateConnection(c)
		created = true
		return nil
	})
	return out, created, err
}

func (st *connectionStore) GetBetween(ctx context.Context, childA, childB int64) (*models.Connection, error) {
	var out *models.Connection
	err := st.access(func(s *state) error {
		c := s.between(childA, childB)
		if c == nil {
			return models.ErrNotFound
		}
		out = s.hydrateConnection(c)
		return nil
	})
	return out, err
}

func (st *connectionStore) ListByChild(ctx context.Context, childID int64) ([]*models.Connection, error) {
	return st.list(func(c *models.Connection) bool { return c.Involves(childID) })
}

func (st *connectionStore) ListCreatedSince(ctx context.Context, since time.Time) ([]*models.Connection, error) {
	return st.list(func(c *models.Connection) bool { return !c.CreatedAt.Before(since) })
}

func (st *connectionStore) list(match func(*models.Connection) bool) ([]*models.Connection, error) {
	var out []*models.Connection
	err := st.access(func(s *state) error {
		for _, c := range s.connections {
			if match(c) {
				out = append(out, s.hydrateConnection(c))
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b *models.Connection) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmpID(a.ID, b.ID)
	})
	return out, err
}
