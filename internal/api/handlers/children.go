package handlers

import (
	"log/slog"
	"net/http"

	"github.com/narvanalabs/playdate/internal/account"
	"github.com/narvanalabs/playdate/internal/activity"
	"github.com/narvanalabs/playdate/internal/connection"
)

// ChildHandler serves the caller's children and their per-child views.
type ChildHandler struct {
	accounts    *account.Service
	connections *connection.Service
	activities  *activity.Service
	logger      *slog.Logger
}

// NewChildHandler creates a new child handler.
func NewChildHandler(accounts *account.Service, connections *connection.Service, activities *activity.Service, logger *slog.Logger) *ChildHandler {
	return &ChildHandler{
		accounts:    accounts,
		connections: connections,
		activities:  activities,
		logger:      logger,
	}
}

// AddChildRequest is the body of POST /v1/children.
type AddChildRequest struct {
	DisplayName string `json:"display_name"`
}

// List handles GET /v1/children.
func (h *ChildHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	children, err := h.accounts.ListChildren(r.Context(), id)
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "list children")
		return
	}
	WriteJSON(w, http.StatusOK, nonNil(children))
}

// Create handles POST /v1/children.
func (h *ChildHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var req AddChildRequest
	if !decode(w, r, &req) {
		return
	}
	child, err := h.accounts.AddChild(r.Context(), id, req.DisplayName)
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "add child")
		return
	}
	h.logger.Info("child added", "child", child.Handle)
	WriteJSON(w, http.StatusCreated, child)
}

// Connections handles GET /v1/children/{child}/connections.
func (h *ChildHandler) Connections(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	conns, err := h.connections.ListConnections(r.Context(), id, handleParam(r, "child"))
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "list connections")
		return
	}
	WriteJSON(w, http.StatusOK, nonNil(conns))
}

// Requests handles GET /v1/children/{child}/requests.
func (h *ChildHandler) Requests(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	reqs, err := h.connections.ListRequests(r.Context(), id, handleParam(r, "child"))
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "list connection requests")
		return
	}
	WriteJSON(w, http.StatusOK, nonNil(reqs))
}

// Invitations handles GET /v1/children/{child}/invitations.
func (h *ChildHandler) Invitations(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	invs, err := h.activities.ListInvitations(r.Context(), id, handleParam(r, "child"))
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "list invitations")
		return
	}
	WriteJSON(w, http.StatusOK, nonNil(invs))
}
