package resolution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narvanalabs/playdate/internal/models"
)

func TestSweepResolvesMissedTriggers(t *testing.T) {
	w := newWorld(t)
	_, hosts := w.family(false, "host")
	_, friends := w.family(false, "friend")
	promoted, promotedKids := w.family(true, "late")
	a := w.activity(hosts[0])

	w.record(a, models.ChildKey{ChildID: friends[0].ID})
	w.record(a, models.AccountKey{AccountID: promoted.ID})

	// Commit both prerequisites without running the engine.
	_, _, err := w.store.Connections().GetOrCreate(w.ctx, hosts[0].ID, friends[0].ID, nil)
	require.NoError(t, err)
	now := time.Now().UTC()
	promoted.IsSkeleton = false
	promoted.PromotedAt = &now
	require.NoError(t, w.store.Accounts().Update(w.ctx, promoted))

	r := NewReconciler(w.store, w.engine, ReconcilerConfig{Overlap: time.Minute}, nil)

	checkpoint, err := r.Checkpoint(w.ctx)
	require.NoError(t, err)
	assert.True(t, checkpoint.IsZero())

	res, err := r.Sweep(w.ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 1, res.Connections)
	assert.Equal(t, 1, res.Accounts)
	assert.Equal(t, 2, res.Consumed)
	assert.Equal(t, 2, res.Invitations)

	invited := map[models.Handle]bool{}
	for _, inv := range w.invitations(a) {
		invited[inv.InvitedChild] = true
	}
	assert.True(t, invited[friends[0].Handle])
	assert.True(t, invited[promotedKids[0].Handle])

	checkpoint, err = r.Checkpoint(w.ctx)
	require.NoError(t, err)
	assert.False(t, checkpoint.IsZero())

	// A second pass replays the same window and changes nothing.
	res, err = r.Sweep(w.ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Consumed)
	assert.Len(t, w.invitations(a), 2)
}

func TestSweepWindowStartsAtCheckpointMinusOverlap(t *testing.T) {
	w := newWorld(t)
	_, hosts := w.family(false, "host")
	_, friends := w.family(false, "friend")
	_, _, err := w.store.Connections().GetOrCreate(w.ctx, hosts[0].ID, friends[0].ID, nil)
	require.NoError(t, err)

	r := NewReconciler(w.store, w.engine, ReconcilerConfig{Overlap: time.Minute}, nil)
	future := time.Now().UTC().Add(time.Hour)
	require.NoError(t, w.store.Settings().Set(w.ctx, CheckpointKey, future.Format(time.RFC3339Nano)))

	res, err := r.Sweep(w.ctx)
	require.NoError(t, err)
	assert.True(t, res.Since.Equal(future.Add(-time.Minute)))
	assert.Zero(t, res.Connections, "connections older than the window are not replayed")
}

func TestReconcilerRunStops(t *testing.T) {
	w := newWorld(t)
	r := NewReconciler(w.store, w.engine, ReconcilerConfig{Interval: 10 * time.Millisecond}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		cp, err := r.Checkpoint(ctx)
		return err == nil && !cp.IsZero()
	}, time.Second, 5*time.Millisecond)

	r.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop")
	}
}
