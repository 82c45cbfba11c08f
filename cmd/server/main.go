// Package main is the entrypoint for the Tierwatch API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/provtrack/tierwatch/internal/api"
	"github.com/provtrack/tierwatch/internal/api/handler"
	mw "github.com/provtrack/tierwatch/internal/api/middleware"
	"github.com/provtrack/tierwatch/internal/api/response"
	"github.com/provtrack/tierwatch/internal/cache"
	"github.com/provtrack/tierwatch/internal/config"
	"github.com/provtrack/tierwatch/internal/coordinator"
	"github.com/provtrack/tierwatch/internal/crm"
	"github.com/provtrack/tierwatch/internal/engine"
	"github.com/provtrack/tierwatch/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "crm", cfg.CRM.BaseURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create CRM record source client
	crmClient := crm.NewHTTPClient(cfg.CRM.BaseURL, cfg.CRM.Username, cfg.CRM.Password,
		cfg.CRM.OrgID, cfg.CRM.Timeout)

	// 6. Create store and coordinator
	pgStore := store.NewPostgresStore(pool)

	coord := coordinator.New(crmClient, pgStore, redisCache, engine.TierResolver{}, coordinator.Config{
		RecentLimit: cfg.Engine.RecentLimit,
		DiffWorkers: cfg.Engine.DiffWorkers,
		StaleAfter:  cfg.Engine.RunStaleAfter,
	})
	if err := coord.Restore(ctx); err != nil {
		return fmt.Errorf("restore published result: %w", err)
	}

	// 7. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, 60)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler: healthHandler(pgStore, redisCache, crmClient),

		RefreshHandler:  handler.NewRefreshHandler(coord),
		GetRunHandler:   handler.NewGetRunHandler(pgStore, redisCache),
		ListRunsHandler: handler.NewListRunsHandler(pgStore),

		SummaryHandler:  handler.NewSummaryHandler(coord),
		ProductsHandler: handler.NewProductsHandler(coord),
		AccountsHandler: handler.NewAccountsHandler(coord),
		RecentHandler:   handler.NewRecentHandler(coord),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database, cache, and record source connectivity.
func healthHandler(s store.Store, c cache.Cache, source crm.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
			"crm":      "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}
		if err := source.Ready(r.Context()); err != nil {
			checks["crm"] = "degraded"
		}

		// A degraded CRM blocks refreshes but published results stay readable,
		// so only database/cache degrade the service as a whole.
		if checks["database"] != "ok" || checks["cache"] != "ok" {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
