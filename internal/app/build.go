package app

import (
	"context"
	"fmt"
	"net/http"
	"runtime"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/antoniostano/backendmcp/internal/command"
	"github.com/antoniostano/backendmcp/internal/config"
	"github.com/antoniostano/backendmcp/internal/httpapi"
	"github.com/antoniostano/backendmcp/internal/logs"
	"github.com/antoniostano/backendmcp/internal/observability"
	"github.com/antoniostano/backendmcp/internal/process"
	"github.com/antoniostano/backendmcp/internal/tasks"
	"github.com/antoniostano/backendmcp/internal/toolserver"
)

type BuildResult struct {
	Config     config.Config
	Tasks      *tasks.Manager
	ToolServer *toolserver.Server
	API        *httpapi.Server
	Metrics    *observability.Metrics
	Dialect    command.Dialect

	// Cleanup releases the task store. Call it on every exit path.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, err := tasks.NewStore(ctx, cfg.DatabaseURL, cfg.TasksDBPath)
	if err != nil {
		return nil, fmt.Errorf("task store init failed: %w", err)
	}
	logger.Info().Str("task_store_mode", store.Mode()).Msg("task store ready")

	manager := tasks.NewManager(store, tasks.ManagerOptions{
		Logger:          logger,
		Metrics:         metrics,
		SessionLock:     cfg.NextSessionLock,
		SubscriberQueue: cfg.EventSubscriberQueue,
	})

	dialect := command.ResolveDialect(cfg.ShellDialect, runtime.GOOS)
	executor := command.NewExecutor(
		command.NewRewriter(cfg.BearerToken, dialect),
		command.NewShellRunner(dialect, cfg.CommandTimeout),
		logger,
		metrics,
	)

	restarter := process.NewRestarter(
		command.NewShellRunner(dialect, cfg.ShellTimeout),
		process.NewNodeLauncher("node", logger),
		process.RestarterOptions{
			KillCommand: cfg.KillCommand,
			Port:        cfg.RestartPort,
			Defaults: process.LaunchSpec{
				Entrypoint:   cfg.NodeEntrypoint,
				LogFile:      cfg.NodeLogFile,
				ErrorLogFile: cfg.NodeErrorLogFile,
			},
			Logger:  logger,
			Metrics: metrics,
		},
	)

	tools := toolserver.New(cfg, toolserver.Deps{
		Tasks:     manager,
		Executor:  executor,
		Restarter: restarter,
		Logs:      logs.NewReader(cfg.LogFilePath, cfg.LogMaxSizeMB),
		Logger:    logger,
		Metrics:   metrics,
	})

	var mcpHandler http.Handler = server.NewStreamableHTTPServer(tools.MCPServer())
	api := httpapi.New(cfg, manager, mcpHandler, metrics, logger)

	cleanup := func() error {
		if err := store.Close(); err != nil {
			return fmt.Errorf("close task store: %w", err)
		}
		return nil
	}

	return &BuildResult{
		Config:     cfg,
		Tasks:      manager,
		ToolServer: tools,
		API:        api,
		Metrics:    metrics,
		Dialect:    dialect,
		Cleanup:    cleanup,
	}, nil
}
