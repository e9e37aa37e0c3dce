package handlers

import (
	"log/slog"
	"net/http"

	"github.com/narvanalabs/playdate/internal/connection"
)

// ConnectionHandler handles connection requests.
type ConnectionHandler struct {
	connections *connection.Service
	logger      *slog.Logger
}

// NewConnectionHandler creates a new connection handler.
func NewConnectionHandler(connections *connection.Service, logger *slog.Logger) *ConnectionHandler {
	return &ConnectionHandler{
		connections: connections,
		logger:      logger,
	}
}

// Request handles POST /v1/connection-requests.
func (h *ConnectionHandler) Request(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var req connection.RequestInput
	if !decode(w, r, &req) {
		return
	}
	created, err := h.connections.Request(r.Context(), id, req)
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "request connection")
		return
	}
	WriteJSON(w, http.StatusCreated, created)
}

// Accept handles POST /v1/connection-requests/{request}/accept. The
// response carries the invitations the new connection released.
func (h *ConnectionHandler) Accept(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	res, err := h.connections.Accept(r.Context(), id, handleParam(r, "request"))
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "accept connection request")
		return
	}
	res.Invitations = nonNil(res.Invitations)
	WriteJSON(w, http.StatusOK, res)
}

// Reject handles POST /v1/connection-requests/{request}/reject.
func (h *ConnectionHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	req, err := h.connections.Reject(r.Context(), id, handleParam(r, "request"))
	if err != nil {
		WriteServiceError(w, r, h.logger, err, "reject connection request")
		return
	}
	WriteJSON(w, http.StatusOK, req)
}
