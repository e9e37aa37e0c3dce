package handlers

import (
	"log/slog"
	"net/http"

	"github.com/narvanalabs/playdate/internal/activity"
)

// InvitationHandler handles answers to activity invitations.
type InvitationHandler struct {
	activities *activity.Service
	logger     *slog.Logger
}

// NewInvitationHandler creates a new invitation handler.
func NewInvitationHandler(activities *activity.Service, logger *slog.Logger) *InvitationHandler {
	return &InvitationHandler{
		activities: activities,
		logger:     logger,
	}
}

// RespondRequest is the body of POST /v1/invitations/{invitation}/respond.
type RespondRequest struct {
	Accept *bool `json:"accept"`
}

// Respond handles POST /v1/invitations/{invitation}/respond.
func (h *InvitationHandler) Respond(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var req RespondRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Accept == nil {
		WriteBadRequest(w, r, "accept is required")
		return
	}
	inv, err := h.activities.Respond(r.Context(), id, handleParam(r, "invitation"), *req.Accept)
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "respond to invitation")
		return
	}
	WriteJSON(w, http.StatusOK, inv)
}
