package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "github.com/narvanalabs/playdate/internal/api/errors"
	"github.com/narvanalabs/playdate/internal/auth"
	"github.com/narvanalabs/playdate/internal/models"
	"github.com/narvanalabs/playdate/internal/resolution"
	"github.com/narvanalabs/playdate/internal/store/memstore"
	"github.com/narvanalabs/playdate/pkg/config"
)

type testServer struct {
	t      *testing.T
	router http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := config.Defaults()
	cfg.Auth.JWTSecret = "0123456789abcdef0123456789abcdef"

	st := memstore.New()
	authSvc := auth.NewService(&auth.Config{
		JWTSecret:   []byte(cfg.Auth.JWTSecret),
		TokenExpiry: cfg.Auth.JWTExpiry,
		BcryptCost:  4,
	}, nil)
	services := NewServices(st, authSvc, resolution.ReconcilerConfig{
		Interval: cfg.Reconciler.Interval,
		Overlap:  cfg.Reconciler.Overlap,
	}, nil)
	return &testServer{t: t, router: NewServer(cfg, st, services, authSvc, nil).Router()}
}

// do sends a JSON request and decodes the response body into out when set.
func (s *testServer) do(method, path, token string, body, out any) int {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	if out != nil {
		require.NoError(s.t, json.NewDecoder(rr.Body).Decode(out), rr.Body.String())
	}
	return rr.Code
}

type registered struct {
	Token    string          `json:"token"`
	Account  models.Account  `json:"account"`
	Children []*models.Child `json:"children"`
}

func (s *testServer) register(email, child string) registered {
	s.t.Helper()
	var res registered
	code := s.do(http.MethodPost, "/auth/register", "", map[string]any{
		"display_name": "parent of " + child,
		"email":        email,
		"password":     "hunter2hunter2",
		"children":     []string{child},
	}, &res)
	require.Equal(s.t, http.StatusCreated, code)
	require.Len(s.t, res.Children, 1)
	return res
}

func TestInvitationFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	host := s.register("host@example.com", "Hana")
	friend := s.register("friend@example.com", "Finn")
	hana, finn := host.Children[0], friend.Children[0]

	var req models.ConnectionRequest
	code := s.do(http.MethodPost, "/v1/connection-requests", host.Token, map[string]any{
		"from_child": hana.Handle,
		"to_child":   finn.Handle,
	}, &req)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, models.RequestStatusPending, req.Status)

	code = s.do(http.MethodPost, "/v1/connection-requests/"+req.Handle.String()+"/accept", friend.Token, nil, nil)
	require.Equal(t, http.StatusOK, code)

	start := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Minute)
	var created struct {
		Activities  []*models.Activity           `json:"activities"`
		Invitations []*models.ActivityInvitation `json:"invitations"`
		Pending     []json.RawMessage            `json:"pending"`
	}
	code = s.do(http.MethodPost, "/v1/activities", host.Token, map[string]any{
		"host_child": hana.Handle,
		"title":      "Park",
		"starts_at":  start,
		"ends_at":    start.Add(2 * time.Hour),
		"invitees": []map[string]any{
			{"child": finn.Handle},
			{"contact": map[string]any{"email": "later@example.com", "child_name": "Lou"}},
		},
	}, &created)
	require.Equal(t, http.StatusCreated, code)
	require.Len(t, created.Activities, 1)
	require.Len(t, created.Invitations, 1)
	assert.Len(t, created.Pending, 1)

	var pending []json.RawMessage
	code = s.do(http.MethodGet, "/v1/activities/"+created.Activities[0].Handle.String()+"/pending", host.Token, nil, &pending)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, pending, 1)

	var copies []*models.Activity
	code = s.do(http.MethodGet, "/v1/activities/"+created.Activities[0].Handle.String()+"/copies", host.Token, nil, &copies)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, copies, 1)
	assert.Equal(t, created.Activities[0].Handle, copies[0].Handle)

	var inbox []*models.ActivityInvitation
	code = s.do(http.MethodGet, "/v1/children/"+finn.Handle.String()+"/invitations", friend.Token, nil, &inbox)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, inbox, 1)

	var answered models.ActivityInvitation
	respond := "/v1/invitations/" + inbox[0].Handle.String() + "/respond"
	code = s.do(http.MethodPost, respond, friend.Token, map[string]any{"accept": true}, &answered)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.InvitationStatusAccepted, answered.Status)

	var apiErr apierrors.APIError
	code = s.do(http.MethodPost, respond, friend.Token, map[string]any{"accept": false}, &apiErr)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, apierrors.CodeInvalidState, apiErr.Code)
	assert.NotEmpty(t, apiErr.RequestID)
}

func TestOwnershipFailuresLookLikeMissingHandles(t *testing.T) {
	s := newTestServer(t)
	host := s.register("host@example.com", "Hana")
	other := s.register("other@example.com", "Oli")

	var foreign, missing apierrors.APIError
	code := s.do(http.MethodGet, "/v1/children/"+host.Children[0].Handle.String()+"/connections", other.Token, nil, &foreign)
	assert.Equal(t, http.StatusNotFound, code)
	code = s.do(http.MethodGet, "/v1/children/"+models.NewHandle().String()+"/connections", other.Token, nil, &missing)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, foreign.Code, missing.Code)
	assert.Equal(t, foreign.Message, missing.Message)
}

func TestAuthEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.register("pat@example.com", "Pip")

	var dup apierrors.APIError
	code := s.do(http.MethodPost, "/auth/register", "", map[string]any{
		"display_name": "Pat again",
		"email":        "PAT@example.com",
		"password":     "hunter2hunter2",
	}, &dup)
	assert.Equal(t, http.StatusConflict, code)

	var bad apierrors.APIError
	code = s.do(http.MethodPost, "/auth/register", "", map[string]any{"display_name": "", "password": "x"}, &bad)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, apierrors.CodeValidationError, bad.Code)

	code = s.do(http.MethodPost, "/auth/login", "", map[string]any{"email": "pat@example.com", "password": "wrong-password"}, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	var login struct {
		Token string `json:"token"`
	}
	code = s.do(http.MethodPost, "/auth/login", "", map[string]any{"email": "pat@example.com", "password": "hunter2hunter2"}, &login)
	require.Equal(t, http.StatusOK, code)

	var children []*models.Child
	code = s.do(http.MethodGet, "/v1/children", login.Token, nil, &children)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, children, 1)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/v1/children", "", nil, nil))
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/v1/children", login.Token, map[string]any{"nickname": "x"}, nil))
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	var resp struct {
		Status     string                    `json:"status"`
		Components map[string]map[string]any `json:"components"`
	}
	code := s.do(http.MethodGet, "/health", "", nil, &resp)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, resp.Components, "database")
	assert.Contains(t, resp.Components, "reconciler")
}
