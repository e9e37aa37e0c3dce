// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/narvanalabs/playdate/pkg/logger"
)

// RequestLogger returns a middleware that logs HTTP requests. It also copies
// chi's request id into the logger context so handlers log it.
func RequestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	base := &logger.Logger{Logger: log}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ctx := logger.ContextWithRequestID(r.Context(), chimiddleware.GetReqID(r.Context()))

			defer func() {
				level := slog.LevelInfo
				if ww.Status() >= http.StatusInternalServerError {
					level = slog.LevelWarn
				}
				base.WithContext(ctx).Log(ctx, level, "request completed",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start).String(),
					"remote_addr", r.RemoteAddr,
				)
			}()

			next.ServeHTTP(ww, r.WithContext(ctx))
		})
	}
}
