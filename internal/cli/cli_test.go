package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narvanalabs/playdate/internal/models"
	"github.com/narvanalabs/playdate/internal/resolution"
	"github.com/narvanalabs/playdate/internal/store"
	"github.com/narvanalabs/playdate/internal/store/memstore"
)

func run(t *testing.T, st store.Store, args ...string) (string, error) {
	t.Helper()
	open := func(ctx context.Context) (store.Store, error) { return st, nil }
	cmd := NewRootCommand(open, nil)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestResolveCommand(t *testing.T) {
	st := memstore.New()
	acc := &models.Account{EmailFingerprint: "ghost@example.com", IsSkeleton: true}
	require.NoError(t, st.Accounts().Create(context.Background(), acc))

	out, err := run(t, st, "resolve", "account", acc.Handle.String())
	require.NoError(t, err)
	assert.Contains(t, out, "(skeleton)")

	out, err = run(t, st, "--format", "json", "resolve", "account", acc.Handle.String())
	require.NoError(t, err)
	var res ResolveResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, acc.ID, res.Key)
	require.NotNil(t, res.IsSkeleton)
	assert.True(t, *res.IsSkeleton)

	_, err = run(t, st, "resolve", "child", acc.Handle.String())
	assert.ErrorIs(t, err, models.ErrNotFound, "handles are kind-scoped")

	_, err = run(t, st, "resolve", "planet", acc.Handle.String())
	assert.Error(t, err)
}

func TestReconcileCommandAdvancesCheckpoint(t *testing.T) {
	st := memstore.New()

	out, err := run(t, st, "--format", "json", "reconcile")
	require.NoError(t, err)
	var res resolution.SweepResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Zero(t, res.Invitations)

	raw, err := st.Settings().Get(context.Background(), resolution.CheckpointKey)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
}

func TestMigrateCommandWithoutSchema(t *testing.T) {
	out, err := run(t, memstore.New(), "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "no schema")
}

func TestInvalidFormat(t *testing.T) {
	_, err := run(t, memstore.New(), "--format", "yaml", "migrate")
	assert.ErrorContains(t, err, "invalid format")
}
