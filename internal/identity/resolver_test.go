package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narvanalabs/playdate/internal/models"
	"github.com/narvanalabs/playdate/internal/store/memstore"
)

func TestResolverRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	acc := &models.Account{DisplayName: "Y", EmailFingerprint: "y@example.com"}
	require.NoError(t, st.Accounts().Create(ctx, acc))

	r := NewResolver(st.Handles())

	id, err := r.Account(ctx, acc.Handle)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, id)

	h, err := r.Handle(ctx, models.KindAccount, id)
	require.NoError(t, err)
	assert.Equal(t, acc.Handle, h)
}

func TestResolverHidesExistence(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	acc := &models.Account{DisplayName: "Y", EmailFingerprint: "y@example.com"}
	require.NoError(t, st.Accounts().Create(ctx, acc))

	r := NewResolver(st.Handles())

	cases := map[string]struct {
		kind   models.Kind
		handle models.Handle
	}{
		"malformed":  {models.KindAccount, "42"},
		"unknown":    {models.KindAccount, models.NewHandle()},
		"wrong kind": {models.KindChild, acc.Handle},
		"bad kind":   {models.Kind("user"), acc.Handle},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := r.Key(ctx, tc.kind, tc.handle)
			assert.ErrorIs(t, err, models.ErrNotFound)
		})
	}
}
