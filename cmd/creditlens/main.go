// CreditLens - Credit grading and risk assessment engine.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/opensource-finance/creditlens/internal/analysis"
	"github.com/opensource-finance/creditlens/internal/api"
	"github.com/opensource-finance/creditlens/internal/bureau"
	"github.com/opensource-finance/creditlens/internal/bus"
	"github.com/opensource-finance/creditlens/internal/cache"
	"github.com/opensource-finance/creditlens/internal/compare"
	"github.com/opensource-finance/creditlens/internal/domain"
	"github.com/opensource-finance/creditlens/internal/economic"
	"github.com/opensource-finance/creditlens/internal/lenders"
	"github.com/opensource-finance/creditlens/internal/metrics"
	"github.com/opensource-finance/creditlens/internal/ratelimit"
	"github.com/opensource-finance/creditlens/internal/repository"
	"github.com/opensource-finance/creditlens/internal/scheduler"
	"github.com/opensource-finance/creditlens/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	envErr := godotenv.Load()

	cfg := domain.LoadConfig()
	slog.SetDefault(newLogger(cfg.Logging))

	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", envErr)
	}

	slog.Info("starting creditlens",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
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

	if err := run(ctx, cfg); err != nil {
		slog.Error("creditlens stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("creditlens shutdown complete")
}

func run(ctx context.Context, cfg *domain.Config) error {
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type, "two_phase", cfg.Cache.EnableTwoPhase)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	collector := metrics.NewCollector()
	registry := bureau.NewRegistry(cfg.Analysis.WorthinessThresholds)

	lenderEngine, err := lenders.NewDefaultEngine()
	if err != nil {
		return fmt.Errorf("failed to initialize lender engine: %w", err)
	}
	if err := loadLenderProfiles(ctx, repo, lenderEngine, cfg.Analysis.LenderProfilesPath); err != nil {
		return err
	}
	slog.Info("lender engine initialized", "profiles_count", lenderEngine.ProfilesCount())

	provider := newEconomicProvider(cfg.Economic)
	econ := economic.NewService(provider, cacheImpl, collector, economic.ServiceConfig{
		TTL:        cfg.Economic.TTL,
		MaxRetries: cfg.Economic.MaxRetries,
		Timeout:    time.Duration(cfg.Economic.MaxRetries+2) * cfg.Economic.Timeout,
	})

	analyzer := analysis.New(analysis.Options{
		Store:      repo,
		Economic:   econ,
		Lenders:    lenderEngine,
		Thresholds: registry,
		Metrics:    collector,
	}, analysis.Config{
		Version: cfg.Analysis.Version,
		MaxAge:  cfg.Analysis.MaxAge,
	})
	slog.Info("analyzer initialized", "version", analyzer.Version(), "max_age", cfg.Analysis.MaxAge)

	comparator := compare.New(compare.Options{
		Source:  repo,
		Store:   repo,
		Cache:   cacheImpl,
		Metrics: collector,
		TTL:     cfg.Cache.ComparisonTTL,
	})

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter, err = ratelimit.New(cacheImpl, cfg.RateLimit, collector)
		if err != nil {
			return fmt.Errorf("failed to initialize rate limiter: %w", err)
		}
		slog.Info("rate limiter initialized", "requests", cfg.RateLimit.Requests, "window", cfg.RateLimit.Window)
	}

	var asyncWorker *worker.Worker
	if cfg.Worker.Enabled {
		asyncWorker = worker.NewWorker(worker.Options{
			Bus:        busImpl,
			Reports:    repo,
			Analyzer:   analyzer,
			Comparator: comparator,
			Metrics:    collector,
		})
		if err := asyncWorker.Start(worker.Config{TenantIDs: cfg.Worker.Tenants}); err != nil {
			slog.Error("failed to start async worker", "error", err)
			asyncWorker = nil
		}
	}

	var sched *scheduler.Scheduler
	if provider != nil && cfg.Economic.RefreshCron != "" {
		sched = scheduler.New()
		if err := sched.Add(scheduler.EconomicRefreshTask, cfg.Economic.RefreshCron, 2*cfg.Economic.Timeout, scheduler.EconomicRefresh(econ)); err != nil {
			return err
		}
		sched.Start()
	}

	srv := api.NewServer(cfg.Server, api.Options{
		Repo:       repo,
		Cache:      cacheImpl,
		Bus:        busImpl,
		Bureaus:    registry,
		Analyzer:   analyzer,
		Comparator: comparator,
		Economic:   econ,
		Lenders:    lenderEngine,
		Limiter:    limiter,
		Metrics:    collector,
		Version:    Version,
	})

	srvErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	slog.Info("creditlens is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)
	printBanner(cfg, Version)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-srvErr:
		runErr = fmt.Errorf("server failed: %w", runErr)
	}
	slog.Info("shutting down...")

	if sched != nil {
		sched.Stop()
	}
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
	return runErr
}

func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// newEconomicProvider returns nil when no feed is configured; the service
// then serves the fallback snapshot.
func newEconomicProvider(cfg domain.EconomicConfig) economic.Provider {
	if cfg.FeedURL == "" && cfg.KeyRateURL == "" {
		slog.Info("no economic feed configured, using fallback snapshot")
		return nil
	}
	var keyRate *economic.KeyRateClient
	if cfg.KeyRateURL != "" {
		keyRate = economic.NewKeyRateClient(cfg.KeyRateURL, cfg.Timeout)
	}
	return economic.NewHTTPProvider(cfg.FeedURL, keyRate, cfg.Timeout)
}

// loadLenderProfiles overlays the optional YAML file and then the stored
// global profiles on the built-in defaults.
func loadLenderProfiles(ctx context.Context, repo domain.Repository, engine *lenders.Engine, path string) error {
	var custom []*domain.LenderProfile
	if path != "" {
		fromFile, err := lenders.LoadFile(path)
		if err != nil {
			return fmt.Errorf("failed to load lender profiles from %s: %w", path, err)
		}
		custom = append(custom, fromFile...)
		slog.Info("lender profiles loaded from file", "path", path, "count", len(fromFile))
	}

	stored, err := repo.ListLenderProfiles(ctx, api.GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list lender profiles from database", "error", err)
	} else {
		custom = append(custom, stored...)
	}

	if len(custom) == 0 {
		return nil
	}
	if err := engine.ReloadProfiles(custom); err != nil {
		return fmt.Errorf("failed to apply lender profiles: %w", err)
	}
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  +-------------------------------------------+")
	fmt.Println("  |               CREDITLENS                  |")
	fmt.Println("  |   Credit Grading & Risk Assessment        |")
	fmt.Println("  +-------------------------------------------+")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /analyze                      - Grade a bureau report")
	fmt.Println("    POST /reports                      - Ingest a bureau report")
	fmt.Println("    GET  /subjects/{id}/reports        - List stored reports")
	fmt.Println("    GET  /subjects/{id}/analysis       - Cached analysis (?bureau=&force=)")
	fmt.Println("    GET  /subjects/{id}/comparison     - Multi-bureau comparison (?refresh=)")
	fmt.Println("    GET  /economic                     - Current economic snapshot")
	fmt.Println("    GET  /lenders                      - Loaded lender profiles")
	fmt.Println("    POST /lenders                      - Store a lender profile")
	fmt.Println("    POST /lenders/reload               - Hot-reload lender profiles")
	fmt.Println("    GET  /health, /ready, /metrics")
	fmt.Println()
}
