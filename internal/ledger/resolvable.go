package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/narvanalabs/playdate/internal/models"
	"github.com/narvanalabs/playdate/internal/store"
)

// Trigger is a prerequisite that just became true. It is either a
// ConnectionTrigger or a PromotionTrigger.
type Trigger interface {
	query(ctx context.Context, tx store.Store) (store.ResolvableQuery, error)
	resolve(ctx context.Context, tx store.Store, p *models.PendingInvitation, host *models.Activity) ([]int64, error)
}

// ConnectionTrigger describes an accepted connection between two children.
// RequestID is zero when the connection predates any tracked request.
type ConnectionTrigger struct {
	RequestID int64
	ChildA    int64
	ChildB    int64
	AccountA  int64
	AccountB  int64
}

// PromotionTrigger describes an account that just became real, either by
// promotion in place or by absorbing skeletons. When PromotedAt is set, only
// entries recorded at or before it resolve; later entries were recorded
// against a real family and wait for a connection instead.
type PromotionTrigger struct {
	AccountID  int64
	PromotedAt time.Time
}

// Resolution is a pending entry together with the children it now resolves
// to. Children is never empty.
type Resolution struct {
	Pending  *models.PendingInvitation
	Activity *models.Activity
	Children []*models.Child
}

// FindResolvable locks every pending entry the trigger could satisfy and
// returns those whose key is satisfied, in key order. Account keys resolve
// against the account's children at the time of the call.
func (l *Ledger) FindResolvable(ctx context.Context, tx store.Store, trigger Trigger) ([]Resolution, error) {
	q, err := trigger.query(ctx, tx)
	if err != nil {
		return nil, err
	}
	if q.Empty() {
		return nil, nil
	}

	candidates, err := tx.Pending().LockResolvable(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("locking pending invitations: %w", err)
	}

	activities := make(map[int64]*models.Activity)
	var out []Resolution
	for _, p := range candidates {
		a, ok := activities[p.ActivityID]
		if !ok {
			a, err = tx.Activities().Get(ctx, p.ActivityID)
			if err != nil {
				return nil, fmt.Errorf("loading activity for pending invitation: %w", err)
			}
			activities[p.ActivityID] = a
		}

		ids, err := trigger.resolve(ctx, tx, p, a)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			continue
		}

		children := make([]*models.Child, 0, len(ids))
		for _, id := range ids {
			c, err := tx.Children().Get(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("loading resolved child: %w", err)
			}
			children = append(children, c)
		}
		out = append(out, Resolution{Pending: p, Activity: a, Children: children})
	}
	return out, nil
}

func (t ConnectionTrigger) query(ctx context.Context, tx store.Store) (store.ResolvableQuery, error) {
	q := store.ResolvableQuery{
		ChildIDs:   []int64{t.ChildA, t.ChildB},
		AccountIDs: []int64{t.AccountA, t.AccountB},
	}
	if t.RequestID != 0 {
		q.RequestIDs = []int64{t.RequestID}
	}
	return q, nil
}

// resolve applies the connection rules relative to the activity's host
// child: a request key yields the far side; child and account keys only
// resolve when the connection links the host to the named child or family.
func (t ConnectionTrigger) resolve(ctx context.Context, tx store.Store, p *models.PendingInvitation, host *models.Activity) ([]int64, error) {
	var other, otherAccount int64
	switch host.HostChildID {
	case t.ChildA:
		other, otherAccount = t.ChildB, t.AccountB
	case t.ChildB:
		other, otherAccount = t.ChildA, t.AccountA
	default:
		return nil, nil
	}

	switch k := p.Key.(type) {
	case models.ConnectionRequestKey:
		if t.RequestID != 0 && k.RequestID == t.RequestID {
			return []int64{other}, nil
		}
	case models.ChildKey:
		if k.ChildID == other {
			return []int64{other}, nil
		}
	case models.AccountKey:
		if k.AccountID == otherAccount {
			return childrenOf(ctx, tx, otherAccount)
		}
	}
	return nil, nil
}

func (t PromotionTrigger) query(ctx context.Context, tx store.Store) (store.ResolvableQuery, error) {
	children, err := tx.Children().ListByAccount(ctx, t.AccountID)
	if err != nil {
		return store.ResolvableQuery{}, fmt.Errorf("listing promoted account children: %w", err)
	}
	q := store.ResolvableQuery{AccountIDs: []int64{t.AccountID}}
	for _, c := range children {
		q.ChildIDs = append(q.ChildIDs, c.ID)
	}
	return q, nil
}

// resolve matches child keys naming one of the account's children and
// account keys naming the account itself. Request keys never resolve on
// promotion; they wait for the request to be accepted.
func (t PromotionTrigger) resolve(ctx context.Context, tx store.Store, p *models.PendingInvitation, host *models.Activity) ([]int64, error) {
	if !t.PromotedAt.IsZero() && p.CreatedAt.After(t.PromotedAt) {
		return nil, nil
	}
	switch k := p.Key.(type) {
	case models.ChildKey:
		c, err := tx.Children().Get(ctx, k.ChildID)
		if err != nil {
			return nil, fmt.Errorf("loading keyed child: %w", err)
		}
		if c.AccountID == t.AccountID {
			return []int64{c.ID}, nil
		}
	case models.AccountKey:
		if k.AccountID == t.AccountID {
			return childrenOf(ctx, tx, t.AccountID)
		}
	}
	return nil, nil
}

func childrenOf(ctx context.Context, tx store.Store, accountID int64) ([]int64, error) {
	children, err := tx.Children().ListByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("listing account children: %w", err)
	}
	ids := make([]int64, 0, len(children))
	for _, c := range children {
		ids = append(ids, c.ID)
	}
	return ids, nil
}
