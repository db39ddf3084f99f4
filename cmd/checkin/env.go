package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/checkin/internal/config"
	"github.com/fyrsmithlabs/checkin/internal/logging"
	"github.com/fyrsmithlabs/checkin/internal/orchestrator"
	"github.com/fyrsmithlabs/checkin/internal/policy"
	"github.com/fyrsmithlabs/checkin/internal/remote"
	"github.com/fyrsmithlabs/checkin/internal/telemetry"
	"github.com/fyrsmithlabs/checkin/internal/workspace"
)

// env holds everything a subcommand needs, built from flags and config.
type env struct {
	cfg       *config.Config
	logger    *logging.Logger
	tel       *telemetry.Telemetry
	ws        *workspace.Workspace
	evaluator *policy.Evaluator
	metrics   *orchestrator.Metrics
}

// newEnv loads configuration, then opens the logger, telemetry, working
// copy and policy evaluator. The caller must call close.
func newEnv(ctx context.Context, cmd *cobra.Command, g *globalFlags) (*env, error) {
	cfg, err := config.LoadWithFile(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.workspace != "" {
		cfg.Workspace.Path = g.workspace
	}
	if g.remote != "" {
		cfg.Remote.URL = g.remote
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logCfg, err := logging.FromAppConfig(cfg.Logging)
	if err != nil {
		return nil, err
	}
	// Logs go to stderr; stdout carries the policy diagnostics.
	logCfg.Output.Writer = cmd.ErrOrStderr()
	logger, err := logging.NewLogger(logCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Telemetry, version), telemetry.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, logger: logger, tel: tel}

	e.ws, err = workspace.Open(cfg.Workspace.Path)
	if err != nil {
		e.close(ctx)
		return nil, err
	}

	e.evaluator, err = policy.FromConfig(cfg.Policies, e.ws, logger)
	if err != nil {
		e.close(ctx)
		return nil, err
	}

	e.metrics, err = orchestrator.NewMetrics(tel.Meter(orchestrator.InstrumentationName))
	if err != nil {
		logger.Warn(ctx, "checkin metrics unavailable", zap.Error(err))
	}

	return e, nil
}

func (e *env) client() (*remote.Client, error) {
	return remote.NewClient(e.cfg.Remote.URL,
		remote.WithTimeout(e.cfg.Remote.Timeout.Duration()),
		remote.WithContents(e.ws),
		remote.WithAuthor(e.ws.Author()),
		remote.WithLogger(e.logger),
	)
}

func (e *env) close(ctx context.Context) {
	if err := e.tel.Shutdown(ctx); err != nil {
		e.logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
	}
	_ = e.logger.Sync()
}
