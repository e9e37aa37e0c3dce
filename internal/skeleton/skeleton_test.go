package skeleton

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narvanalabs/playdate/internal/identity"
	"github.com/narvanalabs/playdate/internal/ledger"
	"github.com/narvanalabs/playdate/internal/models"
	"github.com/narvanalabs/playdate/internal/resolution"
	"github.com/narvanalabs/playdate/internal/store"
	"github.com/narvanalabs/playdate/internal/store/memstore"
)

func newService(t *testing.T) (*Service, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	engine := resolution.NewEngine(ledger.New(st, nil), nil)
	return NewService(st, engine, nil), st
}

func hint(t *testing.T, email, phone string) identity.Fingerprints {
	t.Helper()
	fp, err := identity.NewFingerprints(email, phone)
	require.NoError(t, err)
	return fp
}

func findOrCreate(t *testing.T, svc *Service, st store.Store, fp identity.Fingerprints, child string) (*models.Account, *models.Child) {
	t.Helper()
	var acc *models.Account
	var c *models.Child
	require.NoError(t, st.WithTx(context.Background(), func(tx store.Store) error {
		var err error
		acc, c, err = svc.FindOrCreate(context.Background(), tx, fp, child)
		return err
	}))
	return acc, c
}

func realAccount(t *testing.T, st store.Store, email string, children ...string) (*models.Account, []*models.Child) {
	t.Helper()
	ctx := context.Background()
	acc := &models.Account{DisplayName: "real", EmailFingerprint: email}
	require.NoError(t, st.Accounts().Create(ctx, acc))
	var out []*models.Child
	for _, name := range children {
		c := &models.Child{AccountID: acc.ID, DisplayName: name}
		require.NoError(t, st.Children().Create(ctx, c))
		out = append(out, c)
	}
	return acc, out
}

func TestFindOrCreateReusesSkeleton(t *testing.T) {
	svc, st := newService(t)
	fp := hint(t, "Pat@Example.com", "")

	acc1, c1 := findOrCreate(t, svc, st, fp, "Robin")
	acc2, c2 := findOrCreate(t, svc, st, hint(t, "pat@example.com", ""), "  robin ")
	acc3, c3 := findOrCreate(t, svc, st, fp, "Sky")

	assert.True(t, acc1.IsSkeleton)
	assert.True(t, c1.IsSkeleton)
	assert.Equal(t, acc1.Handle, acc2.Handle)
	assert.Equal(t, c1.Handle, c2.Handle)
	assert.Equal(t, acc1.Handle, acc3.Handle)
	assert.NotEqual(t, c1.Handle, c3.Handle)

	_, err := func() (*models.Account, error) {
		var acc *models.Account
		err := st.WithTx(context.Background(), func(tx store.Store) error {
			var err error
			acc, _, err = svc.FindOrCreate(context.Background(), tx, identity.Fingerprints{}, "x")
			return err
		})
		return acc, err
	}()
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestResolveContactPrefersRealAccount(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	acc, kids := realAccount(t, st, "real@example.com", "Ada", "Bo", "bo")

	var contact *Contact
	require.NoError(t, st.WithTx(ctx, func(tx store.Store) error {
		var err error
		contact, err = svc.ResolveContact(ctx, tx, hint(t, "REAL@example.com", ""), "ada")
		return err
	}))
	assert.Equal(t, acc.Handle, contact.Account.Handle)
	require.NotNil(t, contact.Child)
	assert.Equal(t, kids[0].Handle, contact.Child.Handle)

	require.NoError(t, st.WithTx(ctx, func(tx store.Store) error {
		var err error
		contact, err = svc.ResolveContact(ctx, tx, hint(t, "real@example.com", ""), "Bo")
		return err
	}))
	assert.Equal(t, acc.Handle, contact.Account.Handle)
	assert.Nil(t, contact.Child, "two children share the name")
}

func TestPromoteMergesAndAdopts(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	sk, skMia := findOrCreate(t, svc, st, hint(t, "lee@example.com", ""), "Mia")
	_, skTom := findOrCreate(t, svc, st, hint(t, "lee@example.com", ""), "Tom")
	_, skSam := findOrCreate(t, svc, st, hint(t, "lee@example.com", ""), "Sam")
	target, kids := realAccount(t, st, "lee@example.com", "mia", "Sam", "SAM")

	res, err := svc.Promote(ctx, target.Handle)
	require.NoError(t, err)

	assert.Equal(t, []models.Handle{sk.Handle}, res.Merged)
	assert.Equal(t, []ChildMerge{{From: skMia.Handle, Into: kids[0].Handle}}, res.Children)
	assert.ElementsMatch(t, []models.Handle{skTom.Handle, skSam.Handle}, res.Adopted)
	require.Len(t, res.Ambiguous, 1)
	assert.Equal(t, skSam.Handle, res.Ambiguous[0].Child)
	assert.ElementsMatch(t, []models.Handle{kids[1].Handle, kids[2].Handle}, res.Ambiguous[0].Candidates)

	_, err = st.Handles().Lookup(ctx, models.KindAccount, sk.Handle)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = st.Handles().Lookup(ctx, models.KindChild, skMia.Handle)
	assert.ErrorIs(t, err, models.ErrNotFound)

	children, err := st.Children().ListByAccount(ctx, target.ID)
	require.NoError(t, err)
	assert.Len(t, children, 5)
	for _, c := range children {
		assert.False(t, c.IsSkeleton)
	}

	reloaded, err := st.Accounts().Get(ctx, target.ID)
	require.NoError(t, err)
	assert.NotNil(t, reloaded.PromotedAt)
}

func TestPromoteRepointsReferences(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	host, hostKids := realAccount(t, st, "host@example.com", "Host")
	_, skKid := findOrCreate(t, svc, st, hint(t, "", "+1 202 555 0101"), "Wren")

	req := &models.ConnectionRequest{
		RequesterChildID:   hostKids[0].ID,
		RequesterAccountID: host.ID,
		TargetChildID:      skKid.ID,
		TargetAccountID:    skKid.AccountID,
	}
	require.NoError(t, st.Requests().Create(ctx, req))

	start := time.Now().Add(time.Hour).UTC()
	a := &models.Activity{HostChildID: hostKids[0].ID, HostAccountID: host.ID, IsPrimary: true, Title: "zoo", StartsAt: start, EndsAt: start.Add(time.Hour)}
	require.NoError(t, st.Activities().Create(ctx, a))
	require.NoError(t, st.Pending().Create(ctx, &models.PendingInvitation{ActivityID: a.ID, Key: models.ConnectionRequestKey{RequestID: req.ID}}))

	target := &models.Account{DisplayName: "Wren's parent", PhoneFingerprint: "+12025550101"}
	require.NoError(t, st.Accounts().Create(ctx, target))
	realWren := &models.Child{AccountID: target.ID, DisplayName: "wren"}
	require.NoError(t, st.Children().Create(ctx, realWren))

	_, err := svc.Promote(ctx, target.Handle)
	require.NoError(t, err)

	moved, err := st.Requests().Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, realWren.ID, moved.TargetChildID)
	assert.Equal(t, target.ID, moved.TargetAccountID)

	entries, err := st.Pending().ListByActivity(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "request keys wait for acceptance")
}

// **Feature: playdate, Property 9: Promotion is atomic**
// When the surrounding transaction fails after promotion, no skeleton is
// removed, no child moves and no pending entry is consumed.

func TestPromotionAtomic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("a failed transaction leaves skeletons untouched", prop.ForAll(
		func(skeletons, kids int) bool {
			svc, st := newService(t)
			ctx := context.Background()
			host, hostKids := realAccount(t, st, "host@example.com", "Host")

			phone := func(i int) string { return fmt.Sprintf("+1202555%04d", i) }
			start := time.Now().Add(time.Hour).UTC()
			a := &models.Activity{HostChildID: hostKids[0].ID, HostAccountID: host.ID, IsPrimary: true, Title: "pool", StartsAt: start, EndsAt: start.Add(time.Hour)}
			if err := st.Activities().Create(ctx, a); err != nil {
				return false
			}
			for i := 0; i < skeletons; i++ {
				var acc *models.Account
				for k := 0; k < kids; k++ {
					acc, _ = findOrCreate(t, svc, st, hint(t, "", phone(i)), fmt.Sprintf("kid %d", k))
				}
				if err := st.Pending().Create(ctx, &models.PendingInvitation{ActivityID: a.ID, Key: models.AccountKey{AccountID: acc.ID}}); err != nil {
					return false
				}
			}
			before, err := st.Pending().ListByActivity(ctx, a.ID)
			if err != nil {
				return false
			}

			target := &models.Account{DisplayName: "target", EmailFingerprint: "fam@example.com"}
			if err := st.Accounts().Create(ctx, target); err != nil {
				return false
			}

			boom := errors.New("boom")
			err = st.WithTx(ctx, func(tx store.Store) error {
				for i := 0; i < skeletons; i++ {
					fp := identity.Fingerprints{Phone: phone(i)}
					if _, err := svc.PromoteTx(ctx, tx, target, fp); err != nil {
						return err
					}
				}
				return boom
			})
			if !errors.Is(err, boom) {
				return false
			}

			after, err := st.Pending().ListByActivity(ctx, a.ID)
			if err != nil || len(after) != len(before) {
				return false
			}
			invs, err := st.Invitations().ListByActivity(ctx, a.ID)
			if err != nil || len(invs) != 0 {
				return false
			}
			for i := 0; i < skeletons; i++ {
				sks, err := st.Accounts().LockSkeletonsByFingerprint(ctx, "", phone(i))
				if err != nil || len(sks) != 1 {
					return false
				}
				children, err := st.Children().ListByAccount(ctx, sks[0].ID)
				if err != nil || len(children) != kids {
					return false
				}
			}
			children, err := st.Children().ListByAccount(ctx, target.ID)
			return err == nil && len(children) == 0
		},
		gen.IntRange(1, 3),
		gen.IntRange(1, 3),
	))

	properties.TestingRun(t)
}
