// Shrike - Tenant-scoped transaction risk scoring.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-finance/shrike/internal/api"
	"github.com/opensource-finance/shrike/internal/blacklist"
	"github.com/opensource-finance/shrike/internal/bus"
	"github.com/opensource-finance/shrike/internal/cache"
	"github.com/opensource-finance/shrike/internal/domain"
	"github.com/opensource-finance/shrike/internal/metrics"
	"github.com/opensource-finance/shrike/internal/repository"
	"github.com/opensource-finance/shrike/internal/rules"
	"github.com/opensource-finance/shrike/internal/stats"
	"github.com/opensource-finance/shrike/internal/velocity"
	"github.com/opensource-finance/shrike/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Load configuration first; the log level comes from it.
	cfg, err := domain.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	slog.Info("starting shrike",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"velocity_window", cfg.Scoring.VelocityWindow,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Signal providers
	matcher := blacklist.NewMatcher(repo)
	signals := velocity.NewService(repo)

	// Custom rule engine, pre-loaded for the configured tenants
	custom, err := rules.NewCustomEngine(logger)
	if err != nil {
		slog.Error("failed to initialize custom rule engine", "error", err)
		os.Exit(1)
	}

	tenantIDs := parseTenants(os.Getenv("SHRIKE_TENANTS"))
	for _, tenantID := range tenantIDs {
		if err := loadTenantRules(ctx, repo, custom, tenantID); err != nil {
			slog.Error("failed to load tenant rules",
				"tenant_id", tenantID,
				"error", err,
			)
			os.Exit(1)
		}
	}

	// Scoring engine
	engine, err := rules.NewEngine(cfg.Scoring, matcher, signals, repo, custom)
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized",
		"review_threshold", cfg.Scoring.ReviewThreshold,
		"decline_threshold", cfg.Scoring.DeclineThreshold,
	)

	m := metrics.New()
	statsSvc := stats.NewService(repo, cacheImpl, logger)

	// Async worker: usage-log persistence and decline alerts
	var asyncWorker *worker.Worker
	if len(tenantIDs) > 0 {
		asyncWorker = worker.NewWorker(busImpl, repo, m, logger)
		if err := asyncWorker.Start(worker.Config{TenantIDs: tenantIDs}); err != nil {
			slog.Error("failed to start async worker", "error", err)
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, engine, custom, statsSvc, m, Version)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("shrike is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("shrike shutdown complete")
}

func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func parseTenants(raw string) []string {
	if raw == "" {
		return nil
	}
	var tenants []string
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tenants = append(tenants, t)
		}
	}
	return tenants
}

// loadTenantRules loads a tenant's custom rules into the engine at startup.
// Tenants not listed here pick up their rules via POST /v1/rules/reload.
func loadTenantRules(ctx context.Context, repo domain.Repository, custom *rules.CustomEngine, tenantID string) error {
	ruleList, err := repo.ListCustomRules(ctx, tenantID)
	if err != nil {
		return err
	}

	if len(ruleList) == 0 {
		return nil
	}

	if err := custom.ReloadTenant(tenantID, ruleList); err != nil {
		return err
	}

	slog.Info("custom rules loaded",
		"tenant_id", tenantID,
		"count", len(ruleList),
	)
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  SHRIKE - transaction risk scoring")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST   /v1/score             - Score a transaction")
	fmt.Println("    GET    /v1/transactions      - List ledger records")
	fmt.Println("    GET    /v1/transactions/{id} - Get ledger record by ID")
	fmt.Println("    GET    /v1/blacklist         - List denylist entries")
	fmt.Println("    POST   /v1/blacklist         - Create a denylist entry")
	fmt.Println("    PUT    /v1/blacklist/{id}    - Update a denylist entry")
	fmt.Println("    DELETE /v1/blacklist/{id}    - Delete a denylist entry")
	fmt.Println("    GET    /v1/rules             - List custom rules")
	fmt.Println("    POST   /v1/rules             - Create a custom rule")
	fmt.Println("    POST   /v1/rules/reload      - Hot-reload custom rules")
	fmt.Println("    GET    /v1/stats             - Tenant dashboard stats")
	fmt.Println("    GET    /health               - Health check")
	fmt.Println("    GET    /metrics              - Prometheus metrics")
	fmt.Println()
}
