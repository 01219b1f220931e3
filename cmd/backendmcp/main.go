package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/antoniostano/backendmcp/internal/app"
	"github.com/antoniostano/backendmcp/internal/command"
	"github.com/antoniostano/backendmcp/internal/config"
	"github.com/antoniostano/backendmcp/internal/observability"
)

var version = "dev"

var (
	flagConfig   string
	flagHTTPAddr string
	flagNoStdio  bool
	flagToken    string
	flagDialect  string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "backendmcp",
		Short: "MCP tool server for backend development agents",
		Long: `backendmcp exposes curl execution with bearer injection, Node.js restarts,
log reading, random identifiers and a per-session task queue as MCP tools.
Without a subcommand it serves MCP over stdio.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "TOML config file (defaults to $"+config.EnvConfigFile+")")
	rootCmd.Flags().StringVar(&flagHTTPAddr, "http-addr", "", "Serve HTTP (MCP, REST, websocket) on this address")
	rootCmd.Flags().BoolVar(&flagNoStdio, "no-stdio", false, "Do not serve MCP over stdio; requires --http-addr")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(rewriteCmd())
	rootCmd.AddCommand(versionCmd())
	return rootCmd
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP over stdio and, when configured, HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&flagHTTPAddr, "http-addr", "", "Serve HTTP (MCP, REST, websocket) on this address")
	cmd.Flags().BoolVar(&flagNoStdio, "no-stdio", false, "Do not serve MCP over stdio; requires --http-addr")
	return cmd
}

func rewriteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rewrite <curl command>",
		Short: "Print a curl command with the bearer header injected and the dialect applied",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			token := cfg.BearerToken
			if cmd.Flags().Changed("token") {
				token = flagToken
			}
			dialectRaw := cfg.ShellDialect
			if cmd.Flags().Changed("dialect") {
				dialectRaw = flagDialect
			}
			rewriter := command.NewRewriter(token, command.ResolveDialect(dialectRaw, runtime.GOOS))
			out, err := rewriter.Rewrite(strings.Join(args, " "))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().StringVar(&flagToken, "token", "", "Bearer token (defaults to CURL_BEARER_TOKEN)")
	cmd.Flags().StringVar(&flagDialect, "dialect", "", "auto|posix|powershell (defaults to SHELL_DIALECT)")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version)
			return err
		},
	}
}

func loadConfig() (config.Config, error) {
	load := config.Load
	if path := strings.TrimSpace(flagConfig); path != "" {
		load = func() (config.Config, error) { return config.LoadFile(path) }
	}
	cfg, err := load()
	if err != nil {
		return config.Config{}, fmt.Errorf("config error: %w", err)
	}
	return cfg, nil
}

func runServe(parent context.Context, in io.Reader, out io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if strings.TrimSpace(flagHTTPAddr) != "" {
		cfg.HTTPAddr = strings.TrimSpace(flagHTTPAddr)
	}
	if flagNoStdio && cfg.HTTPAddr == "" {
		return errors.New("--no-stdio requires --http-addr or HTTP_ADDR")
	}

	logger := observability.NewLogger("backendmcp", cfg.LogLevel, cfg.LogFormat)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	built, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("startup failed")
		return err
	}
	defer func() {
		if err := built.Cleanup(); err != nil {
			logger.Warn().Err(err).Msg("cleanup failed")
		}
	}()

	logger.Info().
		Str("server", cfg.ServerName).
		Str("version", cfg.ServerVersion).
		Str("dialect", string(built.Dialect)).
		Strs("tools", built.ToolServer.Tools()).
		Msg("backendmcp starting")

	var httpServer *http.Server
	httpErr := make(chan error, 1)
	if cfg.HTTPAddr != "" {
		httpServer = &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: built.API.Router(),
		}
		go func() {
			logger.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				httpErr <- err
			}
		}()
	}

	var runErr error
	if flagNoStdio {
		select {
		case <-ctx.Done():
		case runErr = <-httpErr:
		}
	} else {
		stdioErr := make(chan error, 1)
		go func() { stdioErr <- built.ToolServer.ServeStdio(ctx, in, out) }()
		select {
		case <-ctx.Done():
		case runErr = <-httpErr:
		case err := <-stdioErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				runErr = err
			}
		}
	}
	stop()

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("graceful shutdown failed")
			_ = httpServer.Close()
		}
	}
	logShutdown(logger, runErr)
	return runErr
}

func logShutdown(logger zerolog.Logger, err error) {
	if err != nil {
		logger.Error().Err(err).Msg("backendmcp stopped with error")
		return
	}
	logger.Info().Msg("backendmcp stopped")
}
