// Sentinel - Risk decisions for every transaction.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

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

	"github.com/joho/godotenv"

	"github.com/opensource-finance/sentinel/internal/api"
	"github.com/opensource-finance/sentinel/internal/assessment"
	"github.com/opensource-finance/sentinel/internal/bus"
	"github.com/opensource-finance/sentinel/internal/cache"
	"github.com/opensource-finance/sentinel/internal/config"
	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/logging"
	"github.com/opensource-finance/sentinel/internal/metrics"
	"github.com/opensource-finance/sentinel/internal/pipeline"
	"github.com/opensource-finance/sentinel/internal/repository"
	"github.com/opensource-finance/sentinel/internal/rules"
	"github.com/opensource-finance/sentinel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// A missing .env file is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	slog.SetDefault(logging.New(cfg.Logging))

	slog.Info("starting sentinel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"assessment", cfg.Assessment.Provider,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("sentinel stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("sentinel shutdown complete")
}

func run(ctx context.Context, cfg *domain.Config) error {
	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type, "two_phase", cfg.Cache.EnableTwoPhase)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Rule catalog
	catalog, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return err
	}
	slog.Info("rule catalog loaded",
		"version", catalog.Version(),
		"rules", catalog.Len(),
		"critical_flags", catalog.CriticalFlags(),
	)

	// Assessment provider
	assessor, err := assessment.New(cfg.Assessment, busImpl, catalog.FlagDescription)
	if err != nil {
		return fmt.Errorf("failed to initialize assessment provider: %w", err)
	}
	slog.Info("assessment provider initialized",
		"provider", assessor.Name(),
		"timeout", cfg.Assessment.Timeout,
	)

	if cfg.Assessment.Respond {
		responder := assessment.NewResponder(busImpl, assessment.NewHeuristicProvider(catalog.FlagDescription))
		if err := responder.Start(ctx); err != nil {
			return err
		}
		defer responder.Stop()
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.New()
	}

	if cfg.Tracing.Enabled {
		slog.Info("tracing enabled", "service_name", cfg.Tracing.ServiceName)
	}

	orchestrator := pipeline.New(catalog, assessor,
		pipeline.WithAssessmentTimeout(cfg.Assessment.Timeout),
		pipeline.WithCheckpointer(pipeline.NewCacheCheckpointer(cacheImpl, cfg.Pipeline.CheckpointTTL)),
		pipeline.WithMetrics(collector),
	)

	// Async worker
	var asyncWorker *worker.Worker
	if cfg.Pipeline.AsyncWorker {
		asyncWorker = worker.NewWorker(busImpl, repo, orchestrator, collector)
		if err := asyncWorker.Start(worker.Config{Workers: cfg.Pipeline.Workers}); err != nil {
			return fmt.Errorf("failed to start async worker: %w", err)
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, cfg.Metrics.Path, api.Dependencies{
		Repo:     repo,
		Cache:    cacheImpl,
		Bus:      busImpl,
		Pipeline: orchestrator,
		Metrics:  collector,
		Version:  Version,
	})

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	slog.Info("sentinel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)
	printBanner(cfg, Version)

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	// Stop async worker first
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
	return nil
}

func loadCatalog(path string) (*rules.Catalog, error) {
	if path == "" {
		return rules.DefaultCatalog(), nil
	}
	catalog, err := rules.LoadCatalogFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule catalog %s: %w", path, err)
	}
	return catalog, nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               SENTINEL                    ║")
	fmt.Println("  ║       Transaction Risk Decisions          ║")
	fmt.Println("  ║     ALLOW, REVIEW or BLOCK. Explained.    ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:    %s\n", version)
	fmt.Printf("  Tier:       %s\n", cfg.Tier)
	fmt.Printf("  Assessment: %s\n", cfg.Assessment.Provider)
	fmt.Printf("  Server:     http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /transactions/analyse     - Score, assess and decide")
	fmt.Println("    POST /transactions/ingest      - Queue for async evaluation")
	fmt.Println("    POST /transactions             - Store a transaction record")
	fmt.Println("    GET  /transactions             - List transactions")
	fmt.Println("    GET  /transactions/users/{id}  - List a user's transactions")
	fmt.Println("    GET  /evaluations/{id}         - Get evaluation by ID")
	fmt.Println("    GET  /runs/{runKey}            - Last checkpoint of a run")
	fmt.Println("    GET  /catalog                  - Active rule catalog")
	fmt.Println("    GET  /health                   - Health check")
	if cfg.Metrics.Enabled {
		fmt.Printf("    GET  %-26s- Prometheus metrics\n", cfg.Metrics.Path)
	}
	fmt.Println()
}
