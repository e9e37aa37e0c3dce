// Package handlers provides HTTP request handlers for the API.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	apierrors "github.com/narvanalabs/playdate/internal/api/errors"
	"github.com/narvanalabs/playdate/internal/api/middleware"
	"github.com/narvanalabs/playdate/internal/models"
	"github.com/narvanalabs/playdate/pkg/logger"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	apierrors.WriteJSON(w, status, data)
}

// WriteBadRequest writes a 400 response in the error envelope.
func WriteBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	apierrors.WriteErrorWithRequestID(w, apierrors.NewValidationError(message), chimiddleware.GetReqID(r.Context()))
}

// WriteUnauthorized writes a 401 response in the error envelope.
func WriteUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	apierrors.WriteErrorWithRequestID(w, apierrors.NewUnauthorizedError(message), chimiddleware.GetReqID(r.Context()))
}

// WriteServiceError maps a service error onto the envelope. Unknown errors
// are logged with a correlation id and reported as internal failures.
func WriteServiceError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error, op string) {
	requestID := chimiddleware.GetReqID(r.Context())
	apiErr, known := apierrors.FromDomain(err)
	l := (&logger.Logger{Logger: log}).WithContext(r.Context())
	if !known {
		entry := apierrors.NewErrorLogEntry(requestID, apiErr.Code, op+" failed")
		l.Error(op+" failed", append(entry.ToSlogAttrs(), "error", err)...)
	} else {
		l.Debug(op+" rejected", "error", err)
	}
	apierrors.WriteErrorWithRequestID(w, apiErr, requestID)
}

// decode reads a JSON body into dst, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		WriteBadRequest(w, r, "Invalid request body")
		return false
	}
	return true
}

// caller returns the authenticated account key, writing a 401 when absent.
func caller(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := middleware.GetAccountID(r.Context())
	if !ok {
		WriteUnauthorized(w, r, "Authentication required")
	}
	return id, ok
}

func handleParam(r *http.Request, name string) models.Handle {
	return models.Handle(chi.URLParam(r, name))
}

// nonNil keeps list responses as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
