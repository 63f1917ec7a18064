// Package app assembles the service: configuration, logging, tracing,
// metrics, the cache and rate limiters, the retrieval pipeline and the
// HTTP server, with graceful shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZackGrogan/SDEA/internal/cache"
	"github.com/ZackGrogan/SDEA/internal/config"
	"github.com/ZackGrogan/SDEA/internal/edgar"
	"github.com/ZackGrogan/SDEA/internal/filing"
	"github.com/ZackGrogan/SDEA/internal/infrastructure"
	"github.com/ZackGrogan/SDEA/internal/marketdata"
	"github.com/ZackGrogan/SDEA/internal/pipeline"
	"github.com/ZackGrogan/SDEA/internal/ratelimit"
	"github.com/ZackGrogan/SDEA/internal/threshold"
	"github.com/ZackGrogan/SDEA/internal/tickers"
	handlers "github.com/ZackGrogan/SDEA/internal/transport/http"
)

// Application is the composed service.
type Application struct {
	Config   *config.Config
	Logger   *slog.Logger
	Metrics  *infrastructure.Metrics
	Tracing  *infrastructure.TracingProviders
	Pipeline *pipeline.Pipeline
	Jobs     *pipeline.JobManager
	Server   *http.Server

	memStore *cache.MemoryStore
	pgStore  *cache.PostgresStore
}

// New builds the application from configuration.
func New(ctx context.Context) (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	tracing, err := infrastructure.InitializeTracing(logger)
	if err != nil {
		return nil, fmt.Errorf("initialize tracing: %w", err)
	}

	metrics := infrastructure.NewMetrics()

	limiter := ratelimit.New(map[string]ratelimit.SourceConfig{
		edgar.SourceKey:      {Requests: cfg.EDGAR.RequestsPerWindow, Window: cfg.EDGAR.Window},
		marketdata.SourceKey: {Requests: cfg.MarketData.RequestsPerWindow, Window: cfg.MarketData.Window},
	}, ratelimit.SourceConfig{Requests: 5, Window: time.Second}, logger)
	limiter.SetWaitObserver(func(source string, waited time.Duration) {
		metrics.RateLimitWait.WithLabelValues(source).Observe(waited.Seconds())
	})

	app := &Application{Config: cfg, Logger: logger, Metrics: metrics, Tracing: tracing}

	store, err := app.buildCacheStore(ctx, cfg, metrics, logger)
	if err != nil {
		return nil, err
	}

	idmap, err := loadTickers(ctx, cfg.EDGAR, logger)
	if err != nil {
		return nil, fmt.Errorf("load company tickers: %w", err)
	}

	filingStore := cache.Instrument(store, "filings", metrics)
	marketStore := cache.Instrument(store, "market", metrics)

	edgarClient := edgar.NewClient(cfg.EDGAR, limiter, filingStore, cfg.Cache.FilingTTL, metrics, logger)
	parser := filing.NewParser(logger)
	mdClient := marketdata.NewClient(cfg.MarketData, limiter, marketStore, cfg.Cache.MarketTTL, metrics, logger)
	enricher := marketdata.NewEnricher(mdClient, idmap, logger)
	tracker := threshold.New(threshold.Policy{
		ThresholdPct: cfg.Pipeline.ThresholdPct,
		SilenceYears: cfg.Pipeline.SilenceYears,
	}, logger)

	app.Pipeline = pipeline.New(edgarClient, parser, enricher, tracker, idmap, cfg.Pipeline, metrics, logger)
	app.Jobs = pipeline.NewJobManager(app.Pipeline, cfg.Pipeline.JobRetention, logger)

	router := handlers.NewRouter(handlers.RouterConfig{
		Retrieve:       handlers.NewRetrieveHandler(app.Pipeline, app.Jobs, logger),
		Metrics:        metrics,
		Logger:         logger,
		RequestTimeout: cfg.Server.WriteTimeout,
	})

	app.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return app, nil
}

// buildCacheStore prefers Postgres when a DSN is configured and degrades
// to memory-only when the database is unreachable.
func (a *Application) buildCacheStore(ctx context.Context, cfg *config.Config, metrics *infrastructure.Metrics, logger *slog.Logger) (cache.Store, error) {
	a.memStore = cache.NewMemoryStore(cfg.Cache.MaxEntries)

	if cfg.Cache.DSN == "" {
		return a.memStore, nil
	}

	pg, err := cache.NewPostgresStore(ctx, cfg.Cache.DSN, cfg.Cache.MinConns, cfg.Cache.MaxConns, metrics, logger)
	if err != nil {
		logger.Warn("cache_backend_unavailable",
			slog.String("error", err.Error()),
			slog.String("fallback", "memory"))
		return a.memStore, nil
	}
	a.pgStore = pg
	return pg, nil
}

// loadTickers reads the company ticker map from disk, falling back to the
// published source when no local copy exists.
func loadTickers(ctx context.Context, cfg config.EDGARConfig, logger *slog.Logger) (*tickers.Map, error) {
	if cfg.TickersFile != "" {
		if m, err := tickers.LoadFile(cfg.TickersFile); err == nil {
			logger.Info("tickers_loaded",
				slog.String("source", cfg.TickersFile),
				slog.Int("entries", m.Len()))
			return m, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.TickersURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", cfg.UserAgent)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tickers fetch: status %d", resp.StatusCode)
	}

	m, err := tickers.Load(resp.Body)
	if err != nil {
		return nil, err
	}
	logger.Info("tickers_loaded",
		slog.String("source", cfg.TickersURL),
		slog.Int("entries", m.Len()))
	return m, nil
}

// Run serves HTTP until the process receives SIGINT or SIGTERM, then shuts
// down gracefully.
func (a *Application) Run() error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("server_listening", slog.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		a.Logger.Info("shutdown_signal", slog.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()
	if err := a.Server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	a.Close(ctx)
	return nil
}

// Close releases background resources.
func (a *Application) Close(ctx context.Context) {
	if a.Jobs != nil {
		a.Jobs.Close()
	}
	if a.memStore != nil {
		a.memStore.Stop()
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
	if a.Tracing != nil {
		a.Tracing.Shutdown(ctx)
	}
	infrastructure.CloseLogFile()
}
