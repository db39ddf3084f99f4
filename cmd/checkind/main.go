// Package main implements checkind, the changeset server daemon.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/checkin/internal/config"
	"github.com/fyrsmithlabs/checkin/internal/logging"
	"github.com/fyrsmithlabs/checkin/internal/server"
	"github.com/fyrsmithlabs/checkin/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "checkind: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		host       string
		port       int
	)

	root := &cobra.Command{
		Use:   "checkind",
		Short: "Changeset server for checkin",
		Long: `checkind accepts changesets from the checkin CLI, rejects stale
submissions and serves the changeset ledger over HTTP.

Endpoints:
  GET  /health
  POST /api/v1/changesets
  GET  /api/v1/changesets[?limit=N]
  GET  /api/v1/changesets/:id
  GET  /metrics`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWithFile(configPath)
			if err != nil {
				return err
			}
			if host != "" {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return run(cmd.Context(), cfg)
		},
	}

	root.Flags().StringVar(&configPath, "config", "", "config file (default ~/.config/checkin/config.yaml)")
	root.Flags().StringVar(&host, "host", "", "listen host (overrides server.host)")
	root.Flags().IntVar(&port, "port", 0, "listen port (overrides server.port)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "checkind by Fyrsmith Labs\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	})
	return root
}

// run starts the changeset server and blocks until ctx is cancelled, then
// shuts down within the configured shutdown timeout.
func run(ctx context.Context, cfg *config.Config) error {
	logCfg, err := logging.FromAppConfig(cfg.Logging)
	if err != nil {
		return err
	}

	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Telemetry, version))
	if err != nil {
		return err
	}
	defer func() { _ = tel.Shutdown(context.Background()) }()

	logger, err := logging.NewLogger(logCfg, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info(ctx, "starting checkind",
		zap.String("version", version),
		zap.Float64("rate_limit", cfg.Server.RateLimit),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout.Duration()),
	)

	srv, err := server.NewServer(server.NewStore(), logger.Named("server"), &server.Config{
		Host:      cfg.Server.Host,
		Port:      cfg.Server.Port,
		RateLimit: cfg.Server.RateLimit,
		Burst:     cfg.Server.Burst,
		Meter:     tel.Meter(server.InstrumentationName),
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info(ctx, "checkind stopped")
	return nil
}
