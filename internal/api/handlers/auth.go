package handlers

import (
	"log/slog"
	"net/http"

	"github.com/narvanalabs/playdate/internal/account"
)

// AuthHandler handles registration, login and the caller's own account.
type AuthHandler struct {
	accounts *account.Service
	logger   *slog.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(accounts *account.Service, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		logger:   logger,
	}
}

// Register handles POST /auth/register. Registration promotes any skeleton
// created for the same contact details, so the response also lists the
// invitations that became deliverable.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req account.RegisterInput
	if !decode(w, r, &req) {
		return
	}

	res, err := h.accounts.Register(r.Context(), req)
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "register")
		return
	}

	res.Children = nonNil(res.Children)
	res.Invitations = nonNil(res.Invitations)
	WriteJSON(w, http.StatusCreated, res)
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req account.LoginInput
	if !decode(w, r, &req) {
		return
	}

	res, err := h.accounts.Login(r.Context(), req)
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "login")
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

// Me handles GET /v1/account.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	acc, err := h.accounts.Get(r.Context(), id)
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "get account")
		return
	}
	WriteJSON(w, http.StatusOK, acc)
}
