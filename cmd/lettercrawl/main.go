// Package main wires together the newsletter crawler binary.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/lettercrawl/lettercrawl/internal/api"
	"github.com/lettercrawl/lettercrawl/internal/browser"
	"github.com/lettercrawl/lettercrawl/internal/clock/system"
	"github.com/lettercrawl/lettercrawl/internal/config"
	"github.com/lettercrawl/lettercrawl/internal/crawler"
	collyclient "github.com/lettercrawl/lettercrawl/internal/fetcher/colly"
	"github.com/lettercrawl/lettercrawl/internal/fetcher/headless"
	"github.com/lettercrawl/lettercrawl/internal/hash/sha256"
	iduuid "github.com/lettercrawl/lettercrawl/internal/id/uuid"
	"github.com/lettercrawl/lettercrawl/internal/images"
	"github.com/lettercrawl/lettercrawl/internal/logging"
	"github.com/lettercrawl/lettercrawl/internal/metadata"
	"github.com/lettercrawl/lettercrawl/internal/metrics"
	"github.com/lettercrawl/lettercrawl/internal/orchestrator"
	"github.com/lettercrawl/lettercrawl/internal/progress"
	"github.com/lettercrawl/lettercrawl/internal/progress/sinks"
	"github.com/lettercrawl/lettercrawl/internal/storage/local"
	"github.com/lettercrawl/lettercrawl/internal/storage/postgres"
	"github.com/lettercrawl/lettercrawl/internal/transform"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("crawl run failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	engine := cfg.Engine().Normalize()
	tracker := progress.NewTracker()
	clock := system.New()
	hasher := sha256.New()
	seed := time.Now().UnixNano()

	store, closeStore, err := newCheckpointStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	m := metrics.New()
	promSink, err := sinks.NewPrometheusSink(m.Registry())
	if err != nil {
		return fmt.Errorf("registering progress collectors: %w", err)
	}
	hub := progress.NewHub(progress.HubConfig{},
		sinks.NewLogSink(logger.Named("progress")),
		promSink,
	)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			logger.Warn("progress hub close failed", zap.Error(err))
		}
	}()

	poolCfg := browser.Config{
		Handles:           cfg.Browser.Handles,
		UserAgent:         cfg.Browser.UserAgent,
		NavigationTimeout: engine.BrowserTimeout,
	}
	if cfg.Browser.Fingerprint {
		poolCfg.Fingerprint = browser.RandomFingerprint(rand.New(rand.NewSource(seed)))
	}
	pool, err := browser.NewPool(poolCfg, logger.Named("browser"))
	if err != nil {
		return fmt.Errorf("starting browser pool: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := pool.Close(closeCtx); err != nil {
			logger.Warn("browser pool close failed", zap.Error(err))
		}
	}()

	policy := crawler.NewRetryPolicy(engine)
	meter := crawler.NewRateLimitMeter(engine.ArticleDelay)
	pauser := crawler.TimerPauser{}

	var strategy crawler.FetchStrategy = headless.NewBaseStrategy(
		engine.ArticleDelay, policy, pauser, rand.New(rand.NewSource(seed+1)))
	if cfg.Browser.Evasive {
		strategy = headless.NewEvasiveStrategy(
			strategy, pauser, rand.New(rand.NewSource(seed+2)), logger.Named("evasive"))
	}
	fetcher := headless.New(headless.Options{
		Pool:     pool,
		Strategy: strategy,
		Policy:   policy,
		Meter:    meter,
		Pauser:   pauser,
		Logger:   logger.Named("fetcher"),
	})

	httpClient := collyclient.New(collyclient.Config{
		UserAgent: cfg.Browser.UserAgent,
		Timeout:   engine.RequestTimeout,
	})
	lister := metadata.New(metadata.Config{
		BaseURL:    engine.BaseURL,
		PageSize:   cfg.Listing.PageSize,
		Sort:       cfg.Listing.Sort,
		MaxRetries: engine.MaxRetries,
		RetryDelay: engine.RetryDelay,
		APIDelay:   engine.APIDelay,
	}, httpClient, logger.Named("metadata"))

	governor := crawler.NewGovernor(engine)
	downloader := images.New(engine.OutputDir, httpClient, hasher, tracker, governor, logger.Named("images"))
	sink, err := local.New(local.Config{BaseDir: engine.OutputDir}, logger.Named("storage"))
	if err != nil {
		return fmt.Errorf("opening article store: %w", err)
	}

	orch, err := orchestrator.New(engine, orchestrator.Deps{
		Lister:      lister,
		Fetcher:     fetcher,
		Images:      downloader,
		Transformer: transform.New(hasher, logger.Named("transform")),
		Sink:        sink,
		Tracker:     tracker,
		Store:       store,
		Governor:    governor,
		Meter:       meter,
		Pauser:      pauser,
		Emitter:     hub,
		Clock:       clock,
		IDs:         iduuid.New(),
		Logger:      logger.Named("orchestrator"),
	})
	if err != nil {
		return err
	}

	apiServer := api.NewServer(tracker, m, logger.Named("api"))
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		logger.Info("ops server started", zap.String("addr", addr))
		if err := apiServer.Run(ctx, addr); err != nil {
			logger.Error("ops server error", zap.Error(err))
		}
	}()

	stats, err := orch.CrawlAll(ctx)
	if err != nil {
		return err
	}
	logger.Info("run complete",
		zap.Int("processed", stats.Processed),
		zap.Int("failed", stats.Failed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("images", stats.Images),
		zap.Duration("elapsed", stats.Elapsed),
	)
	return nil
}

func newCheckpointStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (progress.Store, func(), error) {
	switch cfg.Checkpoint.Backend {
	case "postgres":
		store, err := postgres.New(ctx, postgres.Config{
			DSN:    cfg.Checkpoint.DSN,
			Table:  cfg.Checkpoint.Table,
			RunKey: cfg.Crawler.BaseURL,
		}, logger.Named("checkpoint"))
		if err != nil {
			return nil, nil, fmt.Errorf("opening postgres checkpoint store: %w", err)
		}
		return store, store.Close, nil
	default:
		store := progress.NewFileStore(cfg.Checkpoint.Path, logger.Named("checkpoint"))
		return store, func() {}, nil
	}
}
