// Command pricehound runs the price aggregation engine: HTTP API, search
// orchestrator, browser-backed scrapers, health monitoring.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	_ "modernc.org/sqlite"

	"github.com/pricehound/pricehound/api"
	"github.com/pricehound/pricehound/cache"
	"github.com/pricehound/pricehound/extract"
	"github.com/pricehound/pricehound/health"
	"github.com/pricehound/pricehound/ratelimit"
	"github.com/pricehound/pricehound/scrape"
	"github.com/pricehound/pricehound/search"
	"github.com/pricehound/pricehound/source"
)

func main() {
	configPath := flag.String("config", env("PRICEHOUND_CONFIG", "pricehound.yaml"), "path to the YAML config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config, logger *slog.Logger) error {
	// Profile store.
	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()

	store, err := source.NewSQLStore(db)
	if err != nil {
		return err
	}
	for i := range cfg.Sources {
		p := &cfg.Sources[i]
		if err := store.Upsert(ctx, p); err != nil {
			logger.Warn("seed source rejected", "source", p.ID, "error", err)
		}
	}

	// Cache: Redis when configured, in-memory otherwise. The engine only
	// loses cross-process coordination without Redis, not correctness.
	var kv cache.Cache
	if cfg.Redis.Addr != "" {
		rds, err := cache.NewRedis(ctx, cache.RedisOptions{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: "pricehound:",
		})
		if err != nil {
			return err
		}
		defer rds.Close()
		kv = rds
	} else {
		logger.Warn("no redis configured, using in-process cache")
		kv = cache.NewMemory()
	}

	// Health monitoring.
	metrics := health.NewMetrics(prometheus.DefaultRegisterer)
	thresholds := health.DefaultThresholds
	if cfg.Health.SuccessRate > 0 {
		thresholds.SuccessRate = cfg.Health.SuccessRate
	}
	if cfg.Health.ResponseTimeMs > 0 {
		thresholds.ResponseTimeMs = cfg.Health.ResponseTimeMs
	}
	if cfg.Health.ErrorCount > 0 {
		thresholds.ErrorCount = cfg.Health.ErrorCount
	}
	monitor := health.NewMonitor(kv,
		health.WithThresholds(thresholds),
		health.WithMetrics(metrics),
		health.WithNotifier(health.LogNotifier{Logger: logger}),
		health.WithLogger(logger),
	)
	monitor.Rehydrate(ctx)

	// Scraping.
	browser := scrape.NewBrowserManager(scrape.BrowserConfig{
		RemoteURL:        cfg.Scraper.RemoteURL,
		Headless:         cfg.Scraper.Headless,
		ResourceBlocking: cfg.Scraper.BlockResources,
		Logger:           logger,
	})
	defer func() {
		if err := browser.Close(); err != nil {
			logger.Warn("browser close", "error", err)
		}
	}()

	engine := extract.New(extract.WithLogger(logger))
	workers := func(p *source.Profile) search.Runner {
		return scrape.NewWorker(p, engine, scrape.NewBrowserFetcher(browser, logger), scrape.Config{
			AllowSyntheticFallback: cfg.Scraper.SyntheticFallback,
			Logger:                 logger,
		})
	}

	orchestrator := search.New(store, kv, ratelimit.New(kv, ratelimit.WithLogger(logger)), workers,
		search.WithObserver(monitor),
		search.WithLogger(logger),
	)

	// HTTP.
	svc := api.NewService(orchestrator, monitor, logger)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           svc.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
