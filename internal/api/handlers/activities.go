package handlers

import (
	"log/slog"
	"net/http"

	"github.com/narvanalabs/playdate/internal/activity"
)

// ActivityHandler handles activities and their ledgers.
type ActivityHandler struct {
	activities *activity.Service
	logger     *slog.Logger
}

// NewActivityHandler creates a new activity handler.
func NewActivityHandler(activities *activity.Service, logger *slog.Logger) *ActivityHandler {
	return &ActivityHandler{
		activities: activities,
		logger:     logger,
	}
}

// Create handles POST /v1/activities.
func (h *ActivityHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var req activity.CreateInput
	if !decode(w, r, &req) {
		return
	}
	res, err := h.activities.Create(r.Context(), id, req)
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "create activity")
		return
	}
	res.Invitations = nonNil(res.Invitations)
	res.Pending = nonNil(res.Pending)
	WriteJSON(w, http.StatusCreated, res)
}

// Get handles GET /v1/activities/{activity}.
func (h *ActivityHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	a, err := h.activities.Get(r.Context(), id, handleParam(r, "activity"))
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "get activity")
		return
	}
	WriteJSON(w, http.StatusOK, a)
}

// Copies handles GET /v1/activities/{activity}/copies.
func (h *ActivityHandler) Copies(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	copies, err := h.activities.ListCopies(r.Context(), id, handleParam(r, "activity"))
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "list activity copies")
		return
	}
	WriteJSON(w, http.StatusOK, copies)
}

// Pending handles GET /v1/activities/{activity}/pending.
func (h *ActivityHandler) Pending(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	entries, err := h.activities.ListPending(r.Context(), id, handleParam(r, "activity"))
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "list pending invitations")
		return
	}
	WriteJSON(w, http.StatusOK, nonNil(entries))
}

// Invitations handles GET /v1/activities/{activity}/invitations.
func (h *ActivityHandler) Invitations(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	invs, err := h.activities.ListActivityInvitations(r.Context(), id, handleParam(r, "activity"))
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "list activity invitations")
		return
	}
	WriteJSON(w, http.StatusOK, nonNil(invs))
}
