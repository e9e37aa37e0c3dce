package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narvanalabs/playdate/internal/auth"
	"github.com/narvanalabs/playdate/internal/models"
	"github.com/narvanalabs/playdate/internal/store/memstore"
)

func newAuthFixture(t *testing.T) (*AuthMiddleware, *auth.Service, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	authSvc := auth.NewService(&auth.Config{
		JWTSecret:   []byte("0123456789abcdef0123456789abcdef"),
		TokenExpiry: time.Hour,
		BcryptCost:  4,
	}, nil)
	return NewAuthMiddleware(authSvc, st, nil), authSvc, st
}

// echoCaller reports the bound account handle in the response body.
func echoCaller() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetAccountID(r.Context()); !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(GetAccountHandle(r.Context())))
	})
}

func call(m *AuthMiddleware, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/v1/children", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	m.Authenticate(echoCaller()).ServeHTTP(rr, req)
	return rr
}

func TestAuthenticateBindsAccount(t *testing.T) {
	m, authSvc, st := newAuthFixture(t)
	acc := &models.Account{DisplayName: "Pat", EmailFingerprint: "pat@example.com"}
	require.NoError(t, st.Accounts().Create(context.Background(), acc))

	token, err := authSvc.GenerateToken(acc.Handle.String())
	require.NoError(t, err)

	rr := call(m, token)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, acc.Handle.String(), rr.Body.String())
}

func TestAuthenticateRejectsSkeletonAndMissingToken(t *testing.T) {
	m, authSvc, st := newAuthFixture(t)
	sk := &models.Account{EmailFingerprint: "ghost@example.com", IsSkeleton: true}
	require.NoError(t, st.Accounts().Create(context.Background(), sk))

	token, err := authSvc.GenerateToken(sk.Handle.String())
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, call(m, token).Code)
	assert.Equal(t, http.StatusUnauthorized, call(m, "").Code)
}

// **Feature: playdate, Property 13: Tokens for unknown accounts are rejected**
// A well-signed token whose subject is not a live account never reaches the
// handler.
func TestAuthenticateRejectsUnknownSubject(t *testing.T) {
	m, authSvc, _ := newAuthFixture(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("unknown subjects get 401", prop.ForAll(
		func(subject string) bool {
			token, err := authSvc.GenerateToken(subject)
			if err != nil {
				return false
			}
			return call(m, token).Code == http.StatusUnauthorized
		},
		gen.OneGenOf(
			gen.Const(0).Map(func(int) string { return models.NewHandle().String() }),
			gen.Identifier(),
		),
	))

	properties.TestingRun(t)
}
