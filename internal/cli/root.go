// Package cli defines the scraper command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/concurrent-scraper/internal/app"
	"github.com/JakeFAU/concurrent-scraper/internal/config"
	"github.com/JakeFAU/concurrent-scraper/internal/downloader"
	"github.com/JakeFAU/concurrent-scraper/internal/logging"
	"github.com/JakeFAU/concurrent-scraper/internal/pipeline"
	"github.com/JakeFAU/concurrent-scraper/internal/progress/sinks"
)

const closeTimeout = 10 * time.Second

// App is what commands need from the application layer. Tests inject their
// own factory to avoid real network access.
type App interface {
	Config() config.Config
	Logger() *zap.Logger
	RunBatch(ctx context.Context, urls []string, maxConcurrent int) (pipeline.Report, error)
	Download(ctx context.Context, urls []string, maxConcurrent int) (downloader.Batch, error)
	BatchProgress(id uuid.UUID) (sinks.BatchCounts, bool)
	Close(ctx context.Context) error
}

type appFactory func(cfg config.Config, logger *zap.Logger) (App, error)

func defaultFactory(cfg config.Config, logger *zap.Logger) (App, error) {
	a, err := app.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// rootState carries the loaded config and lazily built App between the
// persistent hooks and subcommands.
type rootState struct {
	cfgFile string
	newApp  appFactory

	cfg    config.Config
	logger *zap.Logger
	app    App
}

// openApp builds the App once, letting the caller adjust the loaded config first.
func (s *rootState) openApp(mutate func(*config.Config)) (App, error) {
	if s.app != nil {
		return s.app, nil
	}
	cfg := s.cfg
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := s.newApp(cfg, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application services: %w", err)
	}
	s.app = a
	return a, nil
}

// run opens the App, hands it to fn, and closes it whether or not fn fails.
func (s *rootState) run(mutate func(*config.Config), fn func(App) error) (err error) {
	a, err := s.openApp(mutate)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.close(); cerr != nil && err == nil {
			err = fmt.Errorf("close application: %w", cerr)
		}
	}()
	return fn(a)
}

func (s *rootState) close() error {
	if s.app == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	err := s.app.Close(ctx)
	s.app = nil
	return err
}

func newRootCmd(factory appFactory) *cobra.Command {
	state := &rootState{newApp: factory}
	cmd := &cobra.Command{
		Use:   "scraper",
		Short: "Fetch a batch of pages concurrently and summarize them.",
		Long: `scraper fetches a list of URLs with a bounded number of requests in
flight, extracts each page's title, links, and text on a worker pool, and
reports timing and size metrics for both stages.`,
		SilenceUsage: true,

		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(state.cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(logging.Config{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			state.cfg = cfg
			state.logger = logger
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&state.cfgFile, "config", "", "config file (YAML, JSON, or TOML)")

	cmd.AddCommand(newScrapeCmd(state))
	cmd.AddCommand(newDownloadCmd(state))
	cmd.AddCommand(newServeCmd(state))
	return cmd
}

// Execute runs the command tree until it finishes or the process is signaled.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(defaultFactory).ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		stop()
		os.Exit(1)
	}
}
