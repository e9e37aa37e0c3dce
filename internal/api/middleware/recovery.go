package middleware

import (
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	apierrors "github.com/narvanalabs/playdate/internal/api/errors"
	"github.com/narvanalabs/playdate/pkg/logger"
)

// Recovery returns a middleware that turns panics into a 500 envelope.
func Recovery(log *slog.Logger) func(http.Handler) http.Handler {
	base := &logger.Logger{Logger: log}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				requestID := chimiddleware.GetReqID(r.Context())
				entry := apierrors.NewErrorLogEntry(requestID, apierrors.CodeInternalError, "panic recovered")
				base.WithContext(r.Context()).Error("panic recovered",
					append(entry.ToSlogAttrs(),
						"panic", rec,
						"method", r.Method,
						"path", r.URL.Path,
					)...,
				)

				apierrors.WriteErrorWithRequestID(w,
					apierrors.NewInternalError("An unexpected error occurred"), requestID)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
