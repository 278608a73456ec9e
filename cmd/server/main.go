// Package main is the entry point for the verification server.
// It serves the staff worklist used to approve, decline and manage
// applications for restricted data access, backed by the verification API.
//
// Architecture:
//   - Every case operation is delegated to the verification API over HTTP
//   - Staff authenticate with ADFS-issued access tokens
//   - Per-session state (username, last search, flash messages) lives in Redis
//   - Staff actions are optionally written to a Postgres audit trail
//   - Prometheus metrics are served on /metrics
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/landreg/verification-server/internal/auth"
	"github.com/landreg/verification-server/internal/config"
	"github.com/landreg/verification-server/internal/database"
	"github.com/landreg/verification-server/internal/handlers"
	"github.com/landreg/verification-server/internal/lock"
	"github.com/landreg/verification-server/internal/metrics"
	"github.com/landreg/verification-server/internal/middleware"
	"github.com/landreg/verification-server/internal/services"
	"github.com/landreg/verification-server/internal/session"
	"github.com/landreg/verification-server/internal/verification"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()
	sugar := logger.Sugar()

	cfg, err := config.Load()
	if err != nil {
		sugar.Fatalf("Failed to load config: %v", err)
	}

	sugar.Infow("Starting verification server",
		"port", cfg.Port,
		"env", cfg.Environment,
		"version", version,
		"verification_api", cfg.VerificationAPIURL,
		"login_disabled", cfg.LoginDisabled,
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	client := verification.NewClient(cfg.VerificationAPIURL, cfg.DefaultTimeout, sugar).WithMetrics(m)
	locks := lock.NewCoordinator(client, sugar)

	sessions, err := session.NewRedisStore(cfg.RedisURL, cfg.SessionTTL)
	if err != nil {
		sugar.Fatalf("Failed to connect to redis: %v", err)
	}
	defer sessions.Close()

	// The audit trail is optional
	var (
		audit       services.AuditLog
		activitySvc *services.ActivityLogService
	)
	if cfg.DatabaseURL != "" {
		db, err := database.NewPool(context.Background(), cfg.DatabaseURL)
		if err != nil {
			sugar.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		activitySvc = services.NewActivityLogService(db, sugar)
		if err := activitySvc.EnsureSchema(context.Background()); err != nil {
			sugar.Fatalf("Failed to prepare audit schema: %v", err)
		}
		audit = activitySvc
	} else {
		sugar.Warnw("DATABASE_URL not set, staff actions will not be audited")
	}

	keys := auth.NewKeyCache(cfg.ADFSURL, cfg.DefaultTimeout, sugar)
	verifier := auth.NewVerifier(keys, cfg.JWTAudience, cfg.JWTLeeway, sugar)

	workflow := services.NewWorkflowService(client, locks, sessions, audit, cfg.SearchLimit, sugar).WithMetrics(m)

	workflowHandler := handlers.NewWorkflowHandler(workflow, sugar)
	healthHandler := handlers.NewHealthHandler(client, sessions, version, sugar)

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.TraceID())
	r.Use(middleware.StructuredLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(cfg.RequestTimeout()))
	r.Use(middleware.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", middleware.TraceHeader},
		ExposedHeaders:   []string{"X-Request-ID", middleware.TraceHeader, "Location"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Check)
	r.Get("/health/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	requireRole := middleware.RequireRole(cfg.AdminRole, cfg.LoginDisabled)

	r.Route("/verification", func(r chi.Router) {
		r.Use(middleware.Session(cfg.SessionTTL, cfg.Environment == "production"))
		r.Use(middleware.RequireAuth(verifier, cfg.LoginDisabled, sugar))

		r.Route("/worklist", func(r chi.Router) {
			workflowHandler.Routes(r, requireRole)
		})

		if activitySvc != nil {
			activityHandler := handlers.NewActivityHandler(activitySvc, sugar)
			r.Route("/activity", func(r chi.Router) {
				r.Use(requireRole)
				r.Get("/case/{caseID}", activityHandler.ByCase)
				r.Get("/recent", activityHandler.Recent)
			})
		}
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout() + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sugar.Infof("Server listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	sugar.Info("Shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		sugar.Fatalf("Forced shutdown: %v", err)
	}

	sugar.Info("Server stopped")
}
