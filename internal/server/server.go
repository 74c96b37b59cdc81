// Package server wires the application together: database, services,
// handlers, routes, and graceful shutdown.
//
// This is the composition root — the only place that knows the concrete
// types behind every interface. The service receives the repository
// interface (not *sqlite.DB), handlers receive the service, and main.go
// only knows this package.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/referral-rewards/internal/auth"
	"github.com/sakif/referral-rewards/internal/handler"
	"github.com/sakif/referral-rewards/internal/middleware"
	"github.com/sakif/referral-rewards/internal/referral"
	sqliteRepo "github.com/sakif/referral-rewards/internal/repository/sqlite"
	"github.com/sakif/referral-rewards/internal/service"
)

// Config holds everything the server needs from the environment.
//
// The referral constants travel inside Referral — an explicit value handed
// to the ledger at construction, not a global config object anyone can
// reach into.
type Config struct {
	Port      int
	DBPath    string
	JWTSecret string          // deployment secret, never checked in
	Referral  referral.Config // base URL, cadence, award, signup bonus
}

// Server owns the HTTP router and the database connection. The connection
// is closed during graceful shutdown.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New builds the full dependency graph:
//
//	sqlite.DB → referral.Ledger ─┐
//	          → AccountService ──┴→ AccountHandler → routes
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures middleware, builds the service stack, and declares
// the route table:
//
//	POST /api/register       → create account (referral code via ?code=)
//	POST /api/login          → authenticate, returns bearer token
//	GET  /api/refer          → issue referral link        [auth]
//	GET  /api/user           → fetch own profile          [auth]
//	GET  /healthz            → liveness probe
//	GET  /metrics            → Prometheus metrics
func (s *Server) setupRoutes() error {
	// Global middleware, in order: request ID first so the logger and any
	// panic report can reference it.
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.RequestLogger(s.logger))

	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService()

	ledger := referral.NewLedger(s.db, referral.NewGenerator(), s.config.Referral, s.logger)
	accountService := service.NewAccountService(s.db, passwords, tokens, ledger, s.logger)
	accountHandler := handler.NewAccountHandler(accountService, s.logger)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/register", accountHandler.HandleRegister)
		r.Post("/login", accountHandler.HandleLogin)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))
			r.Get("/refer", accountHandler.HandleReferralLink)
			r.Get("/user", accountHandler.HandleProfile)
		})
	})

	s.router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	s.router.Handle("/metrics", promhttp.Handler())

	return nil
}

// Start runs the HTTP server until SIGINT/SIGTERM, then shuts down
// gracefully: stop accepting connections, give in-flight requests 30s, and
// close the database (flushes the WAL, releases the file lock).
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
			slog.String("referralBaseURL", s.config.Referral.BaseURL),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
