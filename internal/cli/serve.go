package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/concurrent-scraper/internal/api"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(state *rootState) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the scraper over HTTP",
		Long: `Starts the HTTP API on server.port. The process drains in-flight
requests and flushes progress events on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return state.run(nil, func(a App) error {
				cfg := a.Config()
				listenPort := port
				if listenPort == 0 {
					listenPort = cfg.Server.Port
				}
				ln, err := net.Listen("tcp", fmt.Sprintf(":%d", listenPort))
				if err != nil {
					return fmt.Errorf("listen on port %d: %w", listenPort, err)
				}
				logger := a.Logger()
				srv := &http.Server{
					Handler:           api.NewServer(a, cfg.Server, logger.Named("api")).Handler(),
					ReadHeaderTimeout: 5 * time.Second,
				}
				return serve(cmd.Context(), srv, ln, logger)
			})
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (0 uses server.port)")
	return cmd
}

// serve runs srv on ln until ctx ends, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
