package activity

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narvanalabs/playdate/internal/account"
	"github.com/narvanalabs/playdate/internal/connection"
	"github.com/narvanalabs/playdate/internal/ledger"
	"github.com/narvanalabs/playdate/internal/models"
	"github.com/narvanalabs/playdate/internal/resolution"
)

// TestUnregisteredParentScenario walks an invitation to a family that has
// not signed up through registration and acceptance.
func TestUnregisteredParentScenario(t *testing.T) {
	f := newFixture(t)
	host, hk := f.register("host@example.com", "Hana")

	res, err := f.activities.Create(f.ctx, host.ID, f.input(hk[0], Invitee{
		Contact: &connection.Contact{Email: "Newbie@Example.com", ChildName: "Max"},
	}))
	require.NoError(t, err)
	require.Len(t, res.Requests, 1)
	require.Len(t, res.Pending, 1)
	assert.Empty(t, res.Invitations)
	assert.Equal(t, models.KeyKindConnectionRequest, res.Pending[0].Key.Kind())
	skeletonMax := res.Requests[0].TargetChild

	reg, err := f.accounts.Register(f.ctx, account.RegisterInput{
		DisplayName: "Newbie",
		Email:       "newbie@example.com",
		Password:    "hunter2hunter2",
		Children:    []string{"max", "Lia"},
	})
	require.NoError(t, err)
	assert.Empty(t, reg.Invitations, "registration alone does not accept the request")

	var maxChild *models.Child
	for _, c := range reg.Children {
		if c.Handle == skeletonMax {
			maxChild = c
		}
	}
	require.NotNil(t, maxChild, "the skeleton child keeps its handle after promotion")
	assert.False(t, maxChild.IsSkeleton)

	reqs, err := f.connections.ListRequests(f.ctx, reg.Account.ID, maxChild.Handle)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, models.RequestStatusPending, reqs[0].Status)

	accepted, err := f.connections.Accept(f.ctx, reg.Account.ID, reqs[0].Handle)
	require.NoError(t, err)
	require.Len(t, accepted.Invitations, 1)
	assert.Equal(t, maxChild.Handle, accepted.Invitations[0].InvitedChild)
	assert.Equal(t, res.Activities[0].Handle, accepted.Invitations[0].Activity)

	pending, err := f.activities.ListPending(f.ctx, host.ID, res.Activities[0].Handle)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// A reconciler pass over the same window issues nothing new.
	engine := resolution.NewEngine(ledger.New(f.store, nil), nil)
	sweep, err := resolution.NewReconciler(f.store, engine, resolution.ReconcilerConfig{}, nil).Sweep(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, sweep.Invitations)

	invs, err := f.activities.ListInvitations(f.ctx, reg.Account.ID, maxChild.Handle)
	require.NoError(t, err)
	assert.Len(t, invs, 1)
}

// **Feature: playdate, Property 11: Invitations reach unregistered families exactly once**
// However many activities invite a not-yet-registered family, and whichever
// of registration and acceptance happen, every activity yields exactly one
// invitation for the child once the request is accepted.

func TestUnregisteredFamilyInvitedExactlyOnce(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("one invitation per activity after acceptance", prop.ForAll(
		func(activities int, byAccount bool) bool {
			f := newFixture(t)
			host, hk := f.register(f.email(), "Hana")
			contact := &connection.Contact{Phone: "+61 2 9374 4000", ChildName: "Remy"}

			var groups []models.Handle
			for i := 0; i < activities; i++ {
				res, err := f.activities.Create(f.ctx, host.ID, f.input(hk[0], Invitee{Contact: contact}))
				if err != nil || len(res.Pending) != 1 {
					return false
				}
				groups = append(groups, res.Activities[0].Handle)
			}

			reg, err := f.accounts.Register(f.ctx, account.RegisterInput{
				DisplayName: "Remy's parent",
				Phone:       "+61293744000",
				Password:    "hunter2hunter2",
			})
			if err != nil || len(reg.Children) != 1 || len(reg.Invitations) != 0 {
				return false
			}
			remy := reg.Children[0]

			if byAccount {
				// A later activity addressed to the now-real account waits for
				// the same connection.
				res, err := f.activities.Create(f.ctx, host.ID, f.input(hk[0], Invitee{Account: reg.Account.Handle}))
				if err != nil {
					return false
				}
				groups = append(groups, res.Activities[0].Handle)
			}

			reqs, err := f.connections.ListRequests(f.ctx, reg.Account.ID, remy.Handle)
			if err != nil || len(reqs) != 1 {
				return false
			}
			if _, err := f.connections.Accept(f.ctx, reg.Account.ID, reqs[0].Handle); err != nil {
				return false
			}

			for _, h := range groups {
				invs, err := f.activities.ListActivityInvitations(f.ctx, host.ID, h)
				if err != nil || len(invs) != 1 || invs[0].InvitedChild != remy.Handle {
					return false
				}
				pending, err := f.activities.ListPending(f.ctx, host.ID, h)
				if err != nil || len(pending) != 0 {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 3),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// TestSweepKeepsJointHostCopiesApart covers a family that registered before
// the activity existed. Replaying that registration must not resolve entries
// recorded afterwards on a copy whose host is still unconnected.
func TestSweepKeepsJointHostCopiesApart(t *testing.T) {
	f := newFixture(t)
	ana, ak := f.register("ana@example.com", "Ana")
	ben, bk := f.register("ben@example.com", "Ben")
	f.connect(ak[0], ana, bk[0], ben)

	req, err := f.connections.Request(f.ctx, ben.ID, connection.RequestInput{
		FromChild: bk[0].Handle,
		Contact:   &connection.Contact{Email: "xia.parent@example.com", ChildName: "Xia"},
	})
	require.NoError(t, err)

	reg, err := f.accounts.Register(f.ctx, account.RegisterInput{
		DisplayName: "Xia's parent",
		Email:       "xia.parent@example.com",
		Password:    "hunter2hunter2",
	})
	require.NoError(t, err)
	require.Len(t, reg.Children, 1)
	require.NotNil(t, reg.Account.PromotedAt)
	xia := reg.Children[0]

	_, err = f.connections.Accept(f.ctx, reg.Account.ID, req.Handle)
	require.NoError(t, err)

	in := f.input(ak[0], Invitee{Child: xia.Handle})
	in.JointHosts = []models.Handle{bk[0].Handle}
	res, err := f.activities.Create(f.ctx, ana.ID, in)
	require.NoError(t, err)
	require.Len(t, res.Activities, 2)

	var anaCopy, benCopy *models.Activity
	for _, a := range res.Activities {
		if a.IsPrimary {
			anaCopy = a
		} else {
			benCopy = a
		}
	}
	require.NotNil(t, anaCopy)
	require.NotNil(t, benCopy)

	check := func() {
		t.Helper()
		invs, err := f.activities.ListActivityInvitations(f.ctx, ana.ID, anaCopy.Handle)
		require.NoError(t, err)
		assert.Empty(t, invs, "Ana is not connected to Xia")

		pending, err := f.activities.ListPending(f.ctx, ana.ID, anaCopy.Handle)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, models.KeyKindChild, pending[0].Key.Kind())

		invs, err = f.activities.ListActivityInvitations(f.ctx, ben.ID, benCopy.Handle)
		require.NoError(t, err)
		require.Len(t, invs, 1)
		assert.Equal(t, xia.Handle, invs[0].InvitedChild)
	}
	check()

	engine := resolution.NewEngine(ledger.New(f.store, nil), nil)
	sweep, err := resolution.NewReconciler(f.store, engine, resolution.ReconcilerConfig{}, nil).Sweep(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, sweep.Invitations)
	check()

	// Either co-host sees both copies of the group, primary first.
	copies, err := f.activities.ListCopies(f.ctx, ben.ID, benCopy.Handle)
	require.NoError(t, err)
	require.Len(t, copies, 2)
	assert.Equal(t, anaCopy.Handle, copies[0].Handle)
	assert.Equal(t, benCopy.Handle, copies[1].Handle)
	assert.Equal(t, anaCopy.GroupHandle, copies[1].GroupHandle)

	_, err = f.activities.ListCopies(f.ctx, reg.Account.ID, anaCopy.Handle)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
