// Package api provides the HTTP API server for playdate.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/narvanalabs/playdate/internal/account"
	"github.com/narvanalabs/playdate/internal/activity"
	"github.com/narvanalabs/playdate/internal/api/handlers"
	"github.com/narvanalabs/playdate/internal/api/health"
	"github.com/narvanalabs/playdate/internal/api/middleware"
	"github.com/narvanalabs/playdate/internal/auth"
	"github.com/narvanalabs/playdate/internal/connection"
	"github.com/narvanalabs/playdate/internal/ledger"
	"github.com/narvanalabs/playdate/internal/resolution"
	"github.com/narvanalabs/playdate/internal/skeleton"
	"github.com/narvanalabs/playdate/internal/store"
	"github.com/narvanalabs/playdate/pkg/config"
)

// Version is the current version of the API server.
// This should be set at build time using ldflags.
var Version = "dev"

// Services is the domain layer the API serves.
type Services struct {
	Accounts    *account.Service
	Connections *connection.Service
	Activities  *activity.Service
	Reconciler  *resolution.Reconciler
}

// NewServices wires the domain services over one store. Every service
// shares the same resolution engine.
func NewServices(st store.Store, authSvc *auth.Service, reconcile resolution.ReconcilerConfig, logger *slog.Logger) *Services {
	l := ledger.New(st, logger)
	engine := resolution.NewEngine(l, logger)
	skeletons := skeleton.NewService(st, engine, logger)
	connections := connection.NewService(st, skeletons, engine, logger)
	return &Services{
		Accounts:    account.NewService(st, skeletons, authSvc, logger),
		Connections: connections,
		Activities:  activity.NewService(st, l, skeletons, connections, logger),
		Reconciler:  resolution.NewReconciler(st, engine, reconcile, logger),
	}
}

// Server represents the HTTP API server.
type Server struct {
	router        chi.Router
	httpServer    *http.Server
	store         store.Store
	services      *Services
	auth          *auth.Service
	config        *config.Config
	logger        *slog.Logger
	healthChecker *health.Checker
}

// NewServer creates a new API server with the given dependencies.
func NewServer(cfg *config.Config, st store.Store, services *Services, authSvc *auth.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		store:         st,
		services:      services,
		auth:          authSvc,
		config:        cfg,
		logger:        logger,
		healthChecker: health.NewChecker(st, Version),
	}
	if services.Reconciler != nil && cfg.Reconciler.Interval > 0 {
		s.healthChecker.WithReconciler(services.Reconciler, 3*cfg.Reconciler.Interval+cfg.Reconciler.Overlap)
	}

	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Tracing)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.Recovery(s.logger))
	r.Use(chimiddleware.Timeout(60 * time.Second))

	authHandler := handlers.NewAuthHandler(s.services.Accounts, s.logger)
	childHandler := handlers.NewChildHandler(s.services.Accounts, s.services.Connections, s.services.Activities, s.logger)
	connectionHandler := handlers.NewConnectionHandler(s.services.Connections, s.logger)
	activityHandler := handlers.NewActivityHandler(s.services.Activities, s.logger)
	invitationHandler := handlers.NewInvitationHandler(s.services.Activities, s.logger)

	r.Get("/health", s.healthChecker.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
	})

	authMiddleware := middleware.NewAuthMiddleware(s.auth, s.store, s.logger)
	r.Route("/v1", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		r.Get("/account", authHandler.Me)

		r.Route("/children", func(r chi.Router) {
			r.Get("/", childHandler.List)
			r.Post("/", childHandler.Create)
			r.Route("/{child}", func(r chi.Router) {
				r.Get("/connections", childHandler.Connections)
				r.Get("/requests", childHandler.Requests)
				r.Get("/invitations", childHandler.Invitations)
			})
		})

		r.Route("/connection-requests", func(r chi.Router) {
			r.Post("/", connectionHandler.Request)
			r.Post("/{request}/accept", connectionHandler.Accept)
			r.Post("/{request}/reject", connectionHandler.Reject)
		})

		r.Route("/activities", func(r chi.Router) {
			r.Post("/", activityHandler.Create)
			r.Route("/{activity}", func(r chi.Router) {
				r.Get("/", activityHandler.Get)
				r.Get("/copies", activityHandler.Copies)
				r.Get("/pending", activityHandler.Pending)
				r.Get("/invitations", activityHandler.Invitations)
			})
		})

		r.Post("/invitations/{invitation}/respond", invitationHandler.Respond)
	})

	s.router = r
}

// Start starts the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.API.Host, s.config.API.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err == nil {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down API server")
	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Router returns the chi router for testing purposes.
func (s *Server) Router() chi.Router {
	return s.router
}
