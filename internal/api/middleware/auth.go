package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	apierrors "github.com/narvanalabs/playdate/internal/api/errors"
	"github.com/narvanalabs/playdate/internal/auth"
	"github.com/narvanalabs/playdate/internal/identity"
	"github.com/narvanalabs/playdate/internal/models"
	"github.com/narvanalabs/playdate/internal/store"
	"github.com/narvanalabs/playdate/pkg/logger"
)

// Context keys for the authenticated caller.
type contextKey string

const (
	// AccountIDKey is the context key for the caller's internal account key.
	AccountIDKey contextKey = "account_id"
	// AccountHandleKey is the context key for the caller's account handle.
	AccountHandleKey contextKey = "account_handle"
)

// GetAccountID extracts the caller's internal account key from the context.
func GetAccountID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(AccountIDKey).(int64)
	return id, ok
}

// GetAccountHandle extracts the caller's account handle from the context.
func GetAccountHandle(ctx context.Context) models.Handle {
	h, _ := ctx.Value(AccountHandleKey).(models.Handle)
	return h
}

// WithAccount returns a context carrying the caller identity.
func WithAccount(ctx context.Context, id int64, handle models.Handle) context.Context {
	ctx = context.WithValue(ctx, AccountIDKey, id)
	ctx = logger.ContextWithAccount(ctx, handle.String())
	return context.WithValue(ctx, AccountHandleKey, handle)
}

// AuthMiddleware validates bearer tokens and binds the caller's account.
type AuthMiddleware struct {
	authService *auth.Service
	store       store.Store
	resolver    *identity.Resolver
	logger      *slog.Logger
}

// NewAuthMiddleware creates a new authentication middleware.
func NewAuthMiddleware(authService *auth.Service, st store.Store, logger *slog.Logger) *AuthMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthMiddleware{
		authService: authService,
		store:       st,
		resolver:    identity.NewResolver(st.Handles()),
		logger:      logger,
	}
}

// Authenticate rejects requests without a valid token for a real account.
// Tokens for accounts that were merged away or never registered fail the
// same way as forged ones.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())

		token := auth.ExtractBearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeUnauthorized(w, "Missing authentication", requestID)
			return
		}

		claims, err := m.authService.ValidateToken(token)
		if err != nil {
			m.logger.Debug("JWT validation failed", "error", err)
			if errors.Is(err, auth.ErrExpiredToken) {
				writeUnauthorized(w, "Token has expired", requestID)
				return
			}
			writeUnauthorized(w, "Invalid token", requestID)
			return
		}

		handle := models.Handle(claims.AccountHandle)
		id, err := m.resolver.Account(r.Context(), handle)
		if err != nil {
			m.logger.Debug("token subject did not resolve", "error", err)
			writeUnauthorized(w, "Invalid token", requestID)
			return
		}
		acc, err := m.store.Accounts().Get(r.Context(), id)
		if err != nil || acc.IsSkeleton {
			writeUnauthorized(w, "Invalid token", requestID)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), id, handle)))
	})
}

func writeUnauthorized(w http.ResponseWriter, message, requestID string) {
	apierrors.WriteErrorWithRequestID(w, apierrors.NewUnauthorizedError(message), requestID)
}
