package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Tyrowin/relaychat/internal/audit"
	"github.com/Tyrowin/relaychat/internal/rates"
	"github.com/Tyrowin/relaychat/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relay server",
	Long: `Start the relay server. Clients connect to /ws; /test serves a small
browser client, / answers health checks and /metrics exposes Prometheus metrics.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVar(&portFlag, "port", "", "Listen address, e.g. :8080 (overrides SERVER_PORT)")
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := server.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink, err := audit.Open(ctx, cfg.Audit, logger)
	if err != nil {
		return fmt.Errorf("open audit sink: %w", err)
	}

	fetcher := rates.NewClient(
		rates.WithURL(cfg.Rates.URL),
		rates.WithArchiveURL(cfg.Rates.ArchiveURL),
		rates.WithMaxDays(cfg.Rates.MaxDays),
		rates.WithLogger(logger),
	)

	srv := server.New(cfg,
		server.WithLogger(logger),
		server.WithFetcher(fetcher),
		server.WithAuditSink(sink),
	)
	httpServer := server.CreateServer(cfg.Port, srv.Handler())

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.StartServer(httpServer, logger)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			err = fmt.Errorf("listen on %s: %w", cfg.Port, err)
		}
		if shutdownErr := srv.Shutdown(cfg.ShutdownTimeout); shutdownErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown: %w", shutdownErr))
		}
		return err
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	}

	httpErr := server.ShutdownServer(httpServer, cfg.ShutdownTimeout, logger)
	if err := errors.Join(httpErr, srv.Shutdown(cfg.ShutdownTimeout)); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("relaychat stopped")
	return nil
}
