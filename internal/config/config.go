package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the tool server.
type Config struct {
	ServerName    string
	ServerVersion string

	HTTPAddr         string
	SharedSecret     string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	LogLevel  string
	LogFormat string

	EnabledTools []string

	BearerToken    string
	ShellDialect   string
	CommandTimeout time.Duration

	LogFilePath      string
	LogMaxSizeMB     int
	NodeEntrypoint   string
	NodeLogFile      string
	NodeErrorLogFile string
	RestartPort      int
	KillCommand      string
	ShellTimeout     time.Duration

	TasksDBPath          string
	DatabaseURL          string
	NextSessionLock      bool
	EventSubscriberQueue int
}

// EnvConfigFile names the optional TOML file read before env overrides.
const EnvConfigFile = "APP_CONFIG_FILE"

// Defaults returns the built-in settings before any file or env override.
func Defaults() Config {
	return Config{
		ServerName:           "backend-mcp-server",
		ServerVersion:        "1.0.0",
		ShutdownTimeout:      15 * time.Second,
		MetricsNamespace:     "backendmcp",
		LogLevel:             "info",
		LogFormat:            "console",
		ShellDialect:         "auto",
		CommandTimeout:       30 * time.Second,
		LogFilePath:          "app.log",
		LogMaxSizeMB:         100,
		NodeEntrypoint:       "server.js",
		NodeLogFile:          "node.log",
		NodeErrorLogFile:     "node-error.log",
		RestartPort:          3000,
		KillCommand:          "npx kill-port {port}",
		ShellTimeout:         30 * time.Second,
		TasksDBPath:          "tasks.db",
		EventSubscriberQueue: 64,
	}
}

// Load applies the optional TOML file named by APP_CONFIG_FILE, then
// environment variables, then validates.
func Load() (Config, error) {
	return LoadFile(envTrimmed(EnvConfigFile))
}

// LoadFile is Load with an explicit config file path; empty means none.
func LoadFile(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.ServerName = envOrDefault("MCP_SERVER_NAME", cfg.ServerName)
	cfg.ServerVersion = envOrDefault("MCP_SERVER_VERSION", cfg.ServerVersion)
	cfg.HTTPAddr = envOrDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.SharedSecret = envOrDefault("APP_SHARED_SECRET", cfg.SharedSecret)
	cfg.MetricsNamespace = envOrDefault("APP_METRICS_NAMESPACE", cfg.MetricsNamespace)
	cfg.LogLevel = envOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envOrDefault("LOG_FORMAT", cfg.LogFormat)
	if raw := envTrimmed("ENABLED_TOOLS"); raw != "" {
		cfg.EnabledTools = splitList(raw)
	}
	cfg.BearerToken = envOrDefault("CURL_BEARER_TOKEN", cfg.BearerToken)
	cfg.ShellDialect = envOrDefault("SHELL_DIALECT", cfg.ShellDialect)
	cfg.LogFilePath = envOrDefault("LOG_FILE_PATH", cfg.LogFilePath)
	cfg.NodeEntrypoint = envOrDefault("NODE_ENTRYPOINT", cfg.NodeEntrypoint)
	cfg.NodeLogFile = envOrDefault("NODE_LOG_FILE", cfg.NodeLogFile)
	cfg.NodeErrorLogFile = envOrDefault("NODE_ERROR_LOG_FILE", cfg.NodeErrorLogFile)
	cfg.KillCommand = envOrDefault("RESTART_KILL_COMMAND", cfg.KillCommand)
	cfg.TasksDBPath = envOrDefault("TASKS_DB_PATH", cfg.TasksDBPath)
	cfg.DatabaseURL = envOrDefault("DATABASE_URL", cfg.DatabaseURL)

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return err
	}
	cfg.CommandTimeout, err = durationFromEnv("CURL_TIMEOUT", cfg.CommandTimeout)
	if err != nil {
		return err
	}
	cfg.ShellTimeout, err = durationFromEnv("SHELL_TIMEOUT", cfg.ShellTimeout)
	if err != nil {
		return err
	}
	cfg.LogMaxSizeMB, err = intFromEnv("LOG_MAX_SIZE_MB", cfg.LogMaxSizeMB)
	if err != nil {
		return err
	}
	cfg.RestartPort, err = intFromEnv("RESTART_PORT", cfg.RestartPort)
	if err != nil {
		return err
	}
	cfg.EventSubscriberQueue, err = intFromEnv("TASKS_EVENT_QUEUE", cfg.EventSubscriberQueue)
	if err != nil {
		return err
	}
	cfg.NextSessionLock, err = boolFromEnv("TASKS_NEXT_SESSION_LOCK", cfg.NextSessionLock)
	if err != nil {
		return err
	}
	return nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("CURL_TIMEOUT must be positive")
	}
	if c.ShellTimeout <= 0 {
		return fmt.Errorf("SHELL_TIMEOUT must be positive")
	}
	if c.LogMaxSizeMB <= 0 {
		return fmt.Errorf("LOG_MAX_SIZE_MB must be positive")
	}
	if c.RestartPort <= 0 || c.RestartPort > 65535 {
		return fmt.Errorf("RESTART_PORT must be a valid TCP port")
	}
	if c.EventSubscriberQueue <= 0 {
		return fmt.Errorf("TASKS_EVENT_QUEUE must be positive")
	}
	switch strings.ToLower(strings.TrimSpace(c.ShellDialect)) {
	case "auto", "posix", "powershell":
	default:
		return fmt.Errorf("invalid SHELL_DIALECT: %q (expected auto|posix|powershell)", c.ShellDialect)
	}
	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "console", "json":
	default:
		return fmt.Errorf("invalid LOG_FORMAT: %q (expected console|json)", c.LogFormat)
	}
	if strings.TrimSpace(c.TasksDBPath) == "" && strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("one of TASKS_DB_PATH or DATABASE_URL is required")
	}
	return nil
}

// ToolEnabled reports whether the named tool should be registered.
// An empty list enables every tool.
func (c Config) ToolEnabled(name string) bool {
	if len(c.EnabledTools) == 0 {
		return true
	}
	for _, t := range c.EnabledTools {
		if strings.EqualFold(t, name) {
			return true
		}
	}
	return false
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envOrDefault(key, fallback string) string {
	v := envTrimmed(key)
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(envTrimmed(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
