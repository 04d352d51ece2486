package cmd

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/appdex/catalog-crawler/internal/checkpoint"
	"github.com/appdex/catalog-crawler/internal/clock"
	"github.com/appdex/catalog-crawler/internal/config"
	"github.com/appdex/catalog-crawler/internal/crawl"
	"github.com/appdex/catalog-crawler/internal/fetcher"
	"github.com/appdex/catalog-crawler/internal/logging"
	"github.com/appdex/catalog-crawler/internal/progress"
	"github.com/appdex/catalog-crawler/internal/progress/sinks"
	"github.com/appdex/catalog-crawler/internal/runner"
	"github.com/appdex/catalog-crawler/internal/storeapi"
)

// app bundles the wired service graph shared by the subcommands.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	store    *checkpoint.Store
	client   *storeapi.Client
	fetch    *fetcher.Fetcher
	hub      *progress.Hub
	runner   *runner.Runner
	registry *prometheus.Registry
	trending *crawl.Trending
	catalog  *crawl.CatalogSync
}

// buildApp loads configuration and wires every service the commands
// share: checkpoint store, store client, fetcher, progress hub with
// its sinks, the two crawl jobs, and the runner.
func buildApp(cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)

	registry := prometheus.NewRegistry()
	promSink, err := sinks.NewPrometheusSink(registry)
	if err != nil {
		return nil, fmt.Errorf("init metrics sink: %w", err)
	}
	hub := progress.NewHub(
		progress.Config{Logger: logger},
		sinks.NewLogSink(logger),
		promSink,
	)

	store := checkpoint.NewStore(cfg.Checkpoint.Root, logger)
	client := storeapi.New(storeapi.Config{
		SearchURL:         cfg.Store.SearchURL,
		DetailsURL:        cfg.Store.DetailsURL,
		AppListURL:        cfg.Store.AppListURL,
		UserAgent:         cfg.Store.UserAgent,
		Timeout:           cfg.Store.Timeout(),
		CountryCode:       cfg.Store.CountryCode,
		Language:          cfg.Store.Language,
		RequestsPerSecond: cfg.Fetcher.RequestsPerSecond,
		Burst:             cfg.Fetcher.RequestBurst,
	}, nil, logger)

	fetch := fetcher.New(client, fetcher.Config{
		RateLimitWait: cfg.Fetcher.RateLimitWait(),
		BlockedWait:   cfg.Fetcher.BlockedWait(),
	}, logger)

	clk := clock.System{}
	trending := crawl.NewTrending(store, client, fetch, clk, hub, crawl.TrendingConfig{
		Pages:         cfg.Crawler.Pages,
		TotalEstimate: cfg.Crawler.TotalEstimate,
		SkipIncrement: cfg.Crawler.SkipIncrement,
	}, logger)
	catalogSync := crawl.NewCatalogSync(store, client, fetch, clk, hub, crawl.CatalogSyncConfig{
		MaxNewPerRun: cfg.Catalog.MaxNewPerRun,
	}, logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		client:   client,
		fetch:    fetch,
		hub:      hub,
		runner:   runner.New(clk, hub, logger, trending, catalogSync),
		registry: registry,
		trending: trending,
		catalog:  catalogSync,
	}, nil
}

// close drains the progress hub and flushes the logger.
func (a *app) close(ctx context.Context) {
	if err := a.hub.Close(ctx); err != nil {
		a.logger.Warn("progress hub close failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}
