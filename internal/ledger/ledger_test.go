package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narvanalabs/playdate/internal/models"
	"github.com/narvanalabs/playdate/internal/store"
	"github.com/narvanalabs/playdate/internal/store/memstore"
)

type seed struct {
	store    *memstore.Store
	host     *models.Account
	hostKid  *models.Child
	guest    *models.Account
	guestKid *models.Child
	activity *models.Activity
}

func newSeed(t *testing.T) *seed {
	t.Helper()
	ctx := context.Background()
	st := memstore.New()
	s := &seed{store: st}

	s.host = &models.Account{DisplayName: "host", EmailFingerprint: "host@example.com"}
	require.NoError(t, st.Accounts().Create(ctx, s.host))
	s.hostKid = &models.Child{AccountID: s.host.ID, DisplayName: "Hana"}
	require.NoError(t, st.Children().Create(ctx, s.hostKid))

	s.guest = &models.Account{EmailFingerprint: "guest@example.com", IsSkeleton: true}
	require.NoError(t, st.Accounts().Create(ctx, s.guest))
	s.guestKid = &models.Child{AccountID: s.guest.ID, DisplayName: "Gus", IsSkeleton: true}
	require.NoError(t, st.Children().Create(ctx, s.guestKid))

	start := time.Now().Add(time.Hour).UTC()
	s.activity = &models.Activity{
		HostChildID:   s.hostKid.ID,
		HostAccountID: s.host.ID,
		IsPrimary:     true,
		Title:         "beach",
		StartsAt:      start,
		EndsAt:        start.Add(time.Hour),
	}
	require.NoError(t, st.Activities().Create(ctx, s.activity))
	return s
}

func (s *seed) record(t *testing.T, l *Ledger, key models.ResolutionKey) *models.PendingInvitation {
	t.Helper()
	var p *models.PendingInvitation
	require.NoError(t, s.store.WithTx(context.Background(), func(tx store.Store) error {
		var err error
		p, err = l.Record(context.Background(), tx, s.activity.ID, key, "see you there")
		return err
	}))
	return p
}

func TestRecordAndList(t *testing.T) {
	s := newSeed(t)
	l := New(s.store, nil)
	ctx := context.Background()

	p := s.record(t, l, models.ChildKey{ChildID: s.guestKid.ID})
	assert.True(t, p.Handle.Valid())
	assert.Equal(t, s.activity.Handle, p.Activity)
	assert.Equal(t, s.guestKid.Handle, p.Key.Target())

	entries, err := l.ListForActivity(ctx, s.host.ID, s.activity.Handle)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, p.Handle, entries[0].Handle)

	_, err = l.ListForActivity(ctx, s.guest.ID, s.activity.Handle)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = l.ListForActivity(ctx, s.host.ID, models.NewHandle())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRecordRejectsMissingKey(t *testing.T) {
	s := newSeed(t)
	l := New(s.store, nil)

	err := s.store.WithTx(context.Background(), func(tx store.Store) error {
		_, err := l.Record(context.Background(), tx, s.activity.ID, nil, "")
		return err
	})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	err = s.store.WithTx(context.Background(), func(tx store.Store) error {
		_, err := l.Record(context.Background(), tx, s.activity.ID, models.ChildKey{ChildID: 9999}, "")
		return err
	})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestFindResolvable(t *testing.T) {
	s := newSeed(t)
	l := New(s.store, nil)
	ctx := context.Background()

	before := time.Now().UTC().Add(-time.Second)
	s.record(t, l, models.ChildKey{ChildID: s.guestKid.ID})
	s.record(t, l, models.AccountKey{AccountID: s.guest.ID})
	after := time.Now().UTC().Add(time.Second)

	tests := []struct {
		name    string
		trigger Trigger
		want    int
	}{
		{"connection with host", ConnectionTrigger{ChildA: s.guestKid.ID, ChildB: s.hostKid.ID, AccountA: s.guest.ID, AccountB: s.host.ID}, 2},
		{"connection not involving host", ConnectionTrigger{ChildA: s.guestKid.ID, ChildB: 9999, AccountA: s.guest.ID, AccountB: 9998}, 0},
		{"promotion of guest", PromotionTrigger{AccountID: s.guest.ID}, 2},
		{"promotion of someone else", PromotionTrigger{AccountID: s.host.ID}, 0},
		{"replayed promotion after recording", PromotionTrigger{AccountID: s.guest.ID, PromotedAt: after}, 2},
		{"replayed promotion before recording", PromotionTrigger{AccountID: s.guest.ID, PromotedAt: before}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []Resolution
			require.NoError(t, s.store.WithTx(ctx, func(tx store.Store) error {
				var err error
				got, err = l.FindResolvable(ctx, tx, tt.trigger)
				return err
			}))
			assert.Len(t, got, tt.want)
			for _, r := range got {
				require.Len(t, r.Children, 1)
				assert.Equal(t, s.guestKid.ID, r.Children[0].ID)
				assert.Equal(t, s.activity.ID, r.Activity.ID)
			}
		})
	}
}
