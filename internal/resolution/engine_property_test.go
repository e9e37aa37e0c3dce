package resolution

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narvanalabs/playdate/internal/ledger"
	"github.com/narvanalabs/playdate/internal/models"
	"github.com/narvanalabs/playdate/internal/store"
	"github.com/narvanalabs/playdate/internal/store/memstore"
)

// world is a small family graph seeded straight into a memstore.
type world struct {
	t      *testing.T
	ctx    context.Context
	store  *memstore.Store
	ledger *ledger.Ledger
	engine *Engine
	seq    int
}

func newWorld(t *testing.T) *world {
	st := memstore.New()
	l := ledger.New(st, nil)
	return &world{t: t, ctx: context.Background(), store: st, ledger: l, engine: NewEngine(l, nil)}
}

func (w *world) family(skeleton bool, children ...string) (*models.Account, []*models.Child) {
	w.seq++
	acc := &models.Account{
		DisplayName:      fmt.Sprintf("parent %d", w.seq),
		EmailFingerprint: fmt.Sprintf("parent%d@example.com", w.seq),
		IsSkeleton:       skeleton,
	}
	if err := w.store.Accounts().Create(w.ctx, acc); err != nil {
		w.t.Fatalf("creating account: %v", err)
	}
	out := make([]*models.Child, 0, len(children))
	for _, name := range children {
		out = append(out, w.child(acc, name))
	}
	return acc, out
}

func (w *world) child(acc *models.Account, name string) *models.Child {
	c := &models.Child{AccountID: acc.ID, DisplayName: name, IsSkeleton: acc.IsSkeleton}
	if err := w.store.Children().Create(w.ctx, c); err != nil {
		w.t.Fatalf("creating child: %v", err)
	}
	return c
}

func (w *world) activity(host *models.Child) *models.Activity {
	start := time.Now().Add(24 * time.Hour).UTC()
	a := &models.Activity{
		HostChildID:   host.ID,
		HostAccountID: host.AccountID,
		IsPrimary:     true,
		Title:         "park",
		StartsAt:      start,
		EndsAt:        start.Add(2 * time.Hour),
	}
	if err := w.store.Activities().Create(w.ctx, a); err != nil {
		w.t.Fatalf("creating activity: %v", err)
	}
	return a
}

func (w *world) request(from, to *models.Child) *models.ConnectionRequest {
	req := &models.ConnectionRequest{
		RequesterChildID:   from.ID,
		RequesterAccountID: from.AccountID,
		TargetChildID:      to.ID,
		TargetAccountID:    to.AccountID,
		Status:             models.RequestStatusPending,
	}
	if err := w.store.Requests().Create(w.ctx, req); err != nil {
		w.t.Fatalf("creating request: %v", err)
	}
	return req
}

func (w *world) record(a *models.Activity, key models.ResolutionKey) *models.PendingInvitation {
	var p *models.PendingInvitation
	err := w.store.WithTx(w.ctx, func(tx store.Store) error {
		var err error
		p, err = w.ledger.Record(w.ctx, tx, a.ID, key, "come play")
		return err
	})
	if err != nil {
		w.t.Fatalf("recording pending invitation: %v", err)
	}
	return p
}

// accept connects two children and runs the engine the way an accepted
// request does.
func (w *world) accept(a, b *models.Child, requestID int64) Outcome {
	var out Outcome
	err := w.store.WithTx(w.ctx, func(tx store.Store) error {
		var rid *int64
		if requestID != 0 {
			rid = &requestID
			if err := tx.Requests().UpdateStatus(w.ctx, requestID, models.RequestStatusAccepted, time.Now().UTC()); err != nil {
				return err
			}
		}
		if _, _, err := tx.Connections().GetOrCreate(w.ctx, a.ID, b.ID, rid); err != nil {
			return err
		}
		var err error
		out, err = w.engine.OnConnectionAccepted(w.ctx, tx, ConnectionAccepted{
			RequestID:        requestID,
			RequesterChild:   a.ID,
			TargetChild:      b.ID,
			RequesterAccount: a.AccountID,
			TargetAccount:    b.AccountID,
		})
		return err
	})
	if err != nil {
		w.t.Fatalf("accepting connection: %v", err)
	}
	return out
}

func (w *world) invitations(a *models.Activity) []*models.ActivityInvitation {
	invs, err := w.store.Invitations().ListByActivity(w.ctx, a.ID)
	if err != nil {
		w.t.Fatalf("listing invitations: %v", err)
	}
	return invs
}

func (w *world) pending(a *models.Activity) []*models.PendingInvitation {
	entries, err := w.store.Pending().ListByActivity(w.ctx, a.ID)
	if err != nil {
		w.t.Fatalf("listing pending invitations: %v", err)
	}
	return entries
}

// **Feature: playdate, Property 6: Materialization is idempotent**
// However often a pending entry is materialized, each child receives at most
// one invitation and the entry is consumed exactly once.

func TestMaterializeIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("repeated materialization yields one invitation per child", prop.ForAll(
		func(repeats, family int) bool {
			w := newWorld(t)
			_, hosts := w.family(false, "host")
			names := make([]string, family)
			for i := range names {
				names[i] = fmt.Sprintf("kid %d", i)
			}
			acc, kids := w.family(false, names...)
			a := w.activity(hosts[0])
			p := w.record(a, models.AccountKey{AccountID: acc.ID})

			consumed := 0
			for i := 0; i < repeats; i++ {
				err := w.store.WithTx(w.ctx, func(tx store.Store) error {
					out, err := w.engine.Materialize(w.ctx, tx, p, kids)
					consumed += out.Consumed
					return err
				})
				if err != nil {
					return false
				}
			}

			return consumed == 1 &&
				len(w.invitations(a)) == family &&
				len(w.pending(a)) == 0
		},
		gen.IntRange(1, 5),
		gen.IntRange(1, 4),
	))

	properties.TestingRun(t)
}

func TestMaterializeSkipsHostFamilyAndOpenInvitations(t *testing.T) {
	w := newWorld(t)
	_, hosts := w.family(false, "host", "sibling")
	_, guests := w.family(false, "guest", "other")
	a := w.activity(hosts[0])

	open := &models.ActivityInvitation{
		ActivityID:       a.ID,
		InvitedChildID:   guests[0].ID,
		InvitedAccountID: guests[0].AccountID,
		InviterAccountID: a.HostAccountID,
		Status:           models.InvitationStatusPending,
	}
	_, err := w.store.Invitations().Create(w.ctx, open)
	require.NoError(t, err)

	declined := &models.ActivityInvitation{
		ActivityID:       a.ID,
		InvitedChildID:   guests[1].ID,
		InvitedAccountID: guests[1].AccountID,
		InviterAccountID: a.HostAccountID,
		Status:           models.InvitationStatusPending,
	}
	_, err = w.store.Invitations().Create(w.ctx, declined)
	require.NoError(t, err)
	require.NoError(t, w.store.Invitations().UpdateStatus(w.ctx, declined.ID, models.InvitationStatusRejected, time.Now().UTC()))

	p := w.record(a, models.AccountKey{AccountID: guests[0].AccountID})
	var out Outcome
	require.NoError(t, w.store.WithTx(w.ctx, func(tx store.Store) error {
		var err error
		out, err = w.engine.Materialize(w.ctx, tx, p, []*models.Child{hosts[1], guests[0], guests[1]})
		return err
	}))

	assert.Equal(t, 1, out.Consumed)
	require.Len(t, out.Invitations, 1, "only the child without an open invitation is invited; siblings never are")
	assert.Equal(t, guests[1].ID, out.Invitations[0].InvitedChildID)

	invs := w.invitations(a)
	require.Len(t, invs, 3)
	pendingCount := 0
	for _, inv := range invs {
		if inv.Status == models.InvitationStatusPending {
			pendingCount++
		}
	}
	assert.Equal(t, 2, pendingCount, "at most one pending invitation per child")
}

// **Feature: playdate, Property 7: No premature invitation**
// A pending entry whose key is unresolved produces no invitation no matter
// how many unrelated connections are accepted.

func TestNoPrematureInvitation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("unrelated connections leave pending entries untouched", prop.ForAll(
		func(pairs []int) bool {
			w := newWorld(t)
			_, hosts := w.family(false, "host")
			_, targets := w.family(false, "target")
			targetAcc, _ := w.family(true, "skeleton kid")
			_, strangers := w.family(false, "s0", "s1", "s2", "s3")
			_, others := w.family(false, "o0", "o1", "o2", "o3")

			a := w.activity(hosts[0])
			req := w.request(hosts[0], targets[0])
			w.record(a, models.ConnectionRequestKey{RequestID: req.ID})
			w.record(a, models.ChildKey{ChildID: targets[0].ID})
			w.record(a, models.AccountKey{AccountID: targetAcc.ID})

			for _, n := range pairs {
				// Connect the host to a stranger, or two strangers to each other.
				left := hosts[0]
				if n%2 == 1 {
					left = others[(n/2)%len(others)]
				}
				w.accept(left, strangers[n%len(strangers)], 0)
			}

			return len(w.invitations(a)) == 0 && len(w.pending(a)) == 3
		},
		gen.SliceOfN(6, gen.IntRange(0, 15)),
	))

	properties.TestingRun(t)
}

func TestConnectionResolvesRequestAndChildKeys(t *testing.T) {
	w := newWorld(t)
	_, hosts := w.family(false, "host")
	_, targets := w.family(false, "target")
	a := w.activity(hosts[0])

	req := w.request(hosts[0], targets[0])
	w.record(a, models.ConnectionRequestKey{RequestID: req.ID})
	w.record(a, models.ChildKey{ChildID: targets[0].ID})

	// Accepting from the far side still resolves relative to the host.
	out := w.accept(targets[0], hosts[0], req.ID)
	assert.Equal(t, 2, out.Consumed)
	require.Len(t, out.Invitations, 1)
	assert.Equal(t, targets[0].Handle, out.Invitations[0].InvitedChild)
	assert.Equal(t, a.Handle, out.Invitations[0].Activity)
	assert.Empty(t, w.pending(a))
}

// **Feature: playdate, Property 8: Account keys resolve to the current family**
// An account-keyed entry resolves against the children the account has when
// the trigger fires, not when the entry was recorded.

func TestAccountKeyResolvesToCurrentFamily(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("children added after recording are invited", prop.ForAll(
		func(before, after int) bool {
			w := newWorld(t)
			_, hosts := w.family(false, "host")
			acc, _ := w.family(true)
			for i := 0; i < before; i++ {
				w.child(acc, fmt.Sprintf("early %d", i))
			}
			a := w.activity(hosts[0])
			w.record(a, models.AccountKey{AccountID: acc.ID})
			for i := 0; i < after; i++ {
				w.child(acc, fmt.Sprintf("late %d", i))
			}

			acc.IsSkeleton = false
			if err := w.store.Accounts().Update(w.ctx, acc); err != nil {
				return false
			}
			var out Outcome
			err := w.store.WithTx(w.ctx, func(tx store.Store) error {
				var err error
				out, err = w.engine.OnAccountPromoted(w.ctx, tx, AccountPromoted{AccountID: acc.ID})
				return err
			})
			if err != nil {
				return false
			}
			return out.Consumed == 1 && len(out.Invitations) == before+after
		},
		gen.IntRange(0, 3),
		gen.IntRange(1, 3),
	))

	properties.TestingRun(t)
}

func TestPromotionLeavesRequestKeysWaiting(t *testing.T) {
	w := newWorld(t)
	_, hosts := w.family(false, "host")
	acc, kids := w.family(true, "kid")
	a := w.activity(hosts[0])
	req := w.request(hosts[0], kids[0])
	w.record(a, models.ConnectionRequestKey{RequestID: req.ID})

	var out Outcome
	require.NoError(t, w.store.WithTx(w.ctx, func(tx store.Store) error {
		var err error
		out, err = w.engine.OnAccountPromoted(w.ctx, tx, AccountPromoted{AccountID: acc.ID})
		return err
	}))
	assert.Zero(t, out.Consumed)
	assert.Len(t, w.pending(a), 1)

	out = w.accept(hosts[0], kids[0], req.ID)
	assert.Equal(t, 1, out.Consumed)
	assert.Len(t, out.Invitations, 1)
}
