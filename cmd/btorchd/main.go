// Command btorchd runs the market-data ingestion and backtest job
// orchestration service: the job control plane, the dataset router, the
// rate-limited upstream fetcher, and the HTTP surface binding them together.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/jmylchreest/btorch/internal/cache"
	"github.com/jmylchreest/btorch/internal/config"
	"github.com/jmylchreest/btorch/internal/credentials"
	"github.com/jmylchreest/btorch/internal/crypto"
	"github.com/jmylchreest/btorch/internal/database"
	"github.com/jmylchreest/btorch/internal/datasets"
	"github.com/jmylchreest/btorch/internal/executor"
	"github.com/jmylchreest/btorch/internal/httpapi"
	"github.com/jmylchreest/btorch/internal/jobkinds"
	"github.com/jmylchreest/btorch/internal/jobruntime"
	"github.com/jmylchreest/btorch/internal/logging"
	"github.com/jmylchreest/btorch/internal/ratelimiter"
	"github.com/jmylchreest/btorch/internal/shutdown"
	"github.com/jmylchreest/btorch/internal/upstream"
	"github.com/jmylchreest/btorch/internal/version"
)

func main() {
	logger := logging.SetDefault()

	v := version.Get()
	logger.Info("starting btorchd", "version", v.Version, "commit", v.Commit, "built", v.Date, "go_version", v.GoVersion)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.ServiceDataDir, 0o755); err != nil {
		logger.Error("failed to create data directory", "path", cfg.ServiceDataDir, "error", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(cfg.DatasetBasePath, 0o755); err != nil {
		logger.Error("failed to create dataset directory", "path", cfg.DatasetBasePath, "error", err)
		os.Exit(1)
	}

	marketDB, err := database.New("file:" + cfg.MarketDBPath)
	if err != nil {
		logger.Error("failed to open market database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = marketDB.Close() }()

	if err := database.MigrateWithLogger(marketDB, logger); err != nil {
		logger.Error("failed to run market database migrations", "error", err)
		os.Exit(1)
	}

	datasetRouter, err := datasets.NewRouter(cfg.DatasetBasePath)
	if err != nil {
		logger.Error("failed to initialize dataset router", "error", err)
		os.Exit(1)
	}
	defer func() { _ = datasetRouter.CloseAll() }()

	jquantsAPIKey, err := resolveJQuantsAPIKey(cfg, logger)
	if err != nil {
		logger.Error("failed to resolve jquants api key", "error", err)
		os.Exit(1)
	}

	limiter := ratelimiter.New(ratelimiter.Plan(cfg.JQuantsPlan))
	fetcher := upstream.New(cfg.APIBaseURL, jquantsAPIKey, cfg.APITimeout, limiter)

	registry := jobkinds.NewRegistry(64)
	pool := executor.New[jobkinds.Data, jobkinds.Progress, jobkinds.Result](registry, cfg.ExecutorSlots, logger)

	runtime := &jobruntime.Deps{
		MarketDB: marketDB,
		Datasets: datasetRouter,
		Fetcher:  fetcher,
		Logger:   logger,
	}

	var adminKey []byte
	if cfg.AdminTokenSecret != "" {
		adminKey, err = crypto.DeriveAdminKey(cfg.AdminTokenSecret)
		if err != nil {
			logger.Error("failed to derive admin key", "error", err)
			os.Exit(1)
		}
	}

	deps := &httpapi.Deps{
		Config:     cfg,
		Logger:     logger,
		Registry:   registry,
		Pool:       pool,
		Runtime:    runtime,
		Datasets:   datasetRouter,
		MarketDB:   marketDB,
		OHLCVCache: cache.New[[]datasets.Bar](),
		TopixCache: cache.New[[]datasets.Bar](),
		AdminKey:   adminKey,
	}

	router := httpapi.NewRouter(deps)

	ctx, cancel := context.WithCancel(context.Background())

	go runJobCleanup(ctx, registry, cfg.JobCleanupInterval, cfg.JobRetention, logger)

	idleMonitor := shutdown.NewIdleMonitor(shutdown.IdleMonitorConfig{
		Timeout:      cfg.IdleTimeout,
		Logger:       logger,
		ExcludePaths: []string{"/api/health"},
		BackgroundWorkCheck: func() bool {
			for _, s := range registry.List() {
				if !s.Status.IsTerminal() {
					return true
				}
			}
			return false
		},
	})
	idleMonitor.Start()

	handler := idleMonitor.Middleware(router)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		select {
		case <-sigChan:
			logger.Info("shutdown signal received")
		case <-idleMonitor.ShutdownChan():
			logger.Info("idle timeout reached")
		}

		cancel()
		idleMonitor.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
		pool.Wait()
	}()

	logger.Info("starting server", "port", cfg.Port, "base_url", cfg.BaseURL)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// resolveJQuantsAPIKey returns the upstream API key to use, preferring the
// JQUANTS_API_KEY environment value when present and persisting it to the
// encrypted credential cache under ServiceDataDir so later restarts can
// recover it without the environment variable being set again. With no
// environment value, it falls back to whatever was previously cached.
func resolveJQuantsAPIKey(cfg *config.Config, logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}) (string, error) {
	keyPath := filepath.Join(cfg.ServiceDataDir, "credentials.key")
	storePath := filepath.Join(cfg.ServiceDataDir, "credentials.enc")

	encKey, err := credentials.ResolveKey(cfg.AdminTokenSecret, keyPath)
	if err != nil {
		return "", fmt.Errorf("resolve credentials key: %w", err)
	}

	store, err := credentials.Open(storePath, encKey)
	if err != nil {
		return "", fmt.Errorf("open credentials store: %w", err)
	}

	if cfg.JQuantsAPIKey != "" {
		if err := store.Save(cfg.JQuantsAPIKey); err != nil {
			logger.Warn("failed to cache jquants api key", "error", err)
		}
		return cfg.JQuantsAPIKey, nil
	}

	cached, err := store.Load()
	if err != nil {
		return "", fmt.Errorf("load cached jquants api key: %w", err)
	}
	if cached != "" {
		logger.Info("recovered jquants api key from encrypted cache")
	}
	return cached, nil
}

// runJobCleanup periodically removes terminal jobs older than retention from
// the registry until ctx is cancelled. Pacing uses an x/time/rate limiter
// (one token per interval) rather than a bare time.Ticker, the same
// Wait-on-a-context idiom the examples use for outbound-call pacing, so the
// loop exits promptly on shutdown without a second stop channel to thread
// through.
func runJobCleanup(ctx context.Context, registry *jobkinds.Registry, interval, retention time.Duration, logger interface {
	Info(msg string, args ...any)
}) {
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		removed := registry.Cleanup(retention)
		if removed > 0 {
			logger.Info("job cleanup removed terminal jobs", "count", removed)
		}
	}
}
