// Package app holds the long-lived services shared by every command and
// builds a fresh fetcher, processor, and pipeline for each batch.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/concurrent-scraper/internal/config"
	"github.com/JakeFAU/concurrent-scraper/internal/downloader"
	"github.com/JakeFAU/concurrent-scraper/internal/fetcher"
	"github.com/JakeFAU/concurrent-scraper/internal/pipeline"
	"github.com/JakeFAU/concurrent-scraper/internal/processor"
	"github.com/JakeFAU/concurrent-scraper/internal/progress"
	"github.com/JakeFAU/concurrent-scraper/internal/progress/sinks"
	"github.com/JakeFAU/concurrent-scraper/internal/storage"
)

// ErrNoURLs is returned when a batch is requested without any URL.
var ErrNoURLs = errors.New("at least one URL required")

// Option customizes App construction.
type Option func(*App)

// WithTransport replaces the colly transport, mainly for tests.
func WithTransport(t fetcher.Transport) Option {
	return func(a *App) {
		if t != nil {
			a.transport = t
		}
	}
}

// WithRegisterer registers progress collectors somewhere other than the
// default Prometheus registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *App) {
		a.registerer = reg
	}
}

// WithStore supplies the blob store instead of building one from config.
func WithStore(store storage.BlobStore) Option {
	return func(a *App) {
		if store != nil {
			a.store = store
		}
	}
}

// App holds the shared services for one process.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	transport  fetcher.Transport
	registerer prometheus.Registerer

	hub     *progress.Hub
	counter *sinks.CounterSink
	emitter progress.Emitter

	storeMu    sync.Mutex
	store      storage.BlobStore
	closeStore func() error
}

// New initializes the shared services described by cfg.
func New(cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:     cfg,
		logger:  logger,
		emitter: progress.Discard,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.transport == nil {
		a.transport = fetcher.NewCollyTransport(fetcher.CollyConfig{
			UserAgent:     cfg.Fetch.UserAgent,
			RespectRobots: cfg.Fetch.RespectRobots,
			Timeout:       cfg.Fetch.RequestTimeout,
			MaxBodyBytes:  cfg.Fetch.MaxBodyBytes,
		})
	}

	if cfg.Progress.Enabled {
		promSink, err := sinks.NewPrometheusSink(a.registerer)
		if err != nil {
			return nil, fmt.Errorf("progress metrics: %w", err)
		}
		a.counter = sinks.NewCounterSink(logger)
		a.hub = progress.NewHub(progress.Config{
			BufferSize:   cfg.Progress.BufferSize,
			MaxBatchWait: cfg.Progress.MaxBatchWait,
			Logger:       logger,
		}, sinks.NewLogSink(logger), a.counter, promSink)
		a.emitter = a.hub
	}

	logger.Debug("application services initialized",
		zap.Int("max_concurrent", cfg.Fetch.MaxConcurrent),
		zap.Bool("progress", cfg.Progress.Enabled),
	)
	return a, nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// NewFetcher builds a fetcher bounded by maxConcurrent, or by the configured
// limit when maxConcurrent is zero.
func (a *App) NewFetcher(maxConcurrent int) (*fetcher.Fetcher, error) {
	if maxConcurrent == 0 {
		maxConcurrent = a.cfg.Fetch.MaxConcurrent
	}
	f, err := fetcher.New(fetcher.Config{
		MaxConcurrent:  maxConcurrent,
		RequestTimeout: a.cfg.Fetch.RequestTimeout,
	}, a.transport,
		fetcher.WithLogger(a.logger.Named("fetcher")),
		fetcher.WithEmitter(a.emitter),
	)
	if err != nil {
		return nil, fmt.Errorf("build fetcher: %w", err)
	}
	return f, nil
}

// NewProcessor builds a processor sized by config.
func (a *App) NewProcessor() *processor.Processor {
	return processor.New(
		processor.WithWorkers(a.cfg.Process.Workers),
		processor.WithLogger(a.logger.Named("processor")),
		processor.WithEmitter(a.emitter),
	)
}

// RunBatch scrapes urls with fresh stages so that each batch has its own
// metrics.
func (a *App) RunBatch(ctx context.Context, urls []string, maxConcurrent int) (pipeline.Report, error) {
	if len(urls) == 0 {
		return pipeline.Report{}, ErrNoURLs
	}
	f, err := a.NewFetcher(maxConcurrent)
	if err != nil {
		return pipeline.Report{}, err
	}
	defer f.Close()

	p := pipeline.New(f, a.NewProcessor(),
		pipeline.WithLogger(a.logger.Named("pipeline")),
		pipeline.WithEmitter(a.emitter),
	)
	return p.Run(ctx, urls), nil
}

// Store returns the blob store, building it from config on first use.
func (a *App) Store(ctx context.Context) (storage.BlobStore, error) {
	a.storeMu.Lock()
	defer a.storeMu.Unlock()
	if a.store != nil {
		return a.store, nil
	}
	store, closeFn, err := storage.New(ctx, a.cfg.Storage)
	if err != nil {
		return nil, err
	}
	a.logger.Info("blob store ready", zap.String("backend", a.cfg.Storage.Backend))
	a.store = store
	a.closeStore = closeFn
	return store, nil
}

// Download fetches urls and writes each body to the blob store.
func (a *App) Download(ctx context.Context, urls []string, maxConcurrent int) (downloader.Batch, error) {
	if len(urls) == 0 {
		return downloader.Batch{}, ErrNoURLs
	}
	store, err := a.Store(ctx)
	if err != nil {
		return downloader.Batch{}, err
	}
	f, err := a.NewFetcher(maxConcurrent)
	if err != nil {
		return downloader.Batch{}, err
	}
	defer f.Close()

	d := downloader.New(f, store,
		downloader.WithLogger(a.logger.Named("downloader")),
		downloader.WithEmitter(a.emitter),
	)
	return d.DownloadAll(ctx, urls), nil
}

// BatchProgress reports the progress tally for a batch, if progress
// tracking is enabled and the batch is known.
func (a *App) BatchProgress(id uuid.UUID) (sinks.BatchCounts, bool) {
	if a.counter == nil {
		return sinks.BatchCounts{}, false
	}
	return a.counter.Counts(id)
}

// flushProgress is a no-op when progress tracking is disabled.
func (a *App) flushProgress(ctx context.Context) error {
	if a.hub == nil {
		return nil
	}
	if err := a.hub.Close(ctx); err != nil {
		return fmt.Errorf("close progress hub: %w", err)
	}
	return nil
}

// Close flushes progress events and releases the blob store.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.flushProgress(ctx); err != nil {
		errs = append(errs, err)
	}
	a.storeMu.Lock()
	if a.closeStore != nil {
		if err := a.closeStore(); err != nil {
			errs = append(errs, err)
		}
		a.closeStore = nil
	}
	a.storeMu.Unlock()
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
