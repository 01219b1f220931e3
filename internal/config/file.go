package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// config.toml key mapping to runtime settings. Durations are Go duration strings.
type fileConfig struct {
	ServerName       string   `toml:"server_name"`
	ServerVersion    string   `toml:"server_version"`
	HTTPAddr         string   `toml:"http_addr"`
	SharedSecret     string   `toml:"shared_secret"`
	ShutdownTimeout  string   `toml:"shutdown_timeout"`
	MetricsNamespace string   `toml:"metrics_namespace"`
	LogLevel         string   `toml:"log_level"`
	LogFormat        string   `toml:"log_format"`
	EnabledTools     []string `toml:"enabled_tools"`

	Curl struct {
		BearerToken string `toml:"bearer_token"`
		Dialect     string `toml:"dialect"`
		Timeout     string `toml:"timeout"`
	} `toml:"curl"`

	Logs struct {
		Path      string `toml:"path"`
		MaxSizeMB int    `toml:"max_size_mb"`
	} `toml:"logs"`

	Restart struct {
		Entrypoint   string `toml:"entrypoint"`
		LogFile      string `toml:"log_file"`
		ErrorLogFile string `toml:"error_log_file"`
		Port         int    `toml:"port"`
		KillCommand  string `toml:"kill_command"`
		ShellTimeout string `toml:"shell_timeout"`
	} `toml:"restart"`

	Tasks struct {
		DBPath          string `toml:"db_path"`
		DatabaseURL     string `toml:"database_url"`
		NextSessionLock bool   `toml:"next_session_lock"`
		EventQueue      int    `toml:"event_queue"`
	} `toml:"tasks"`
}

func applyFile(cfg *Config, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config file: %w", err)
	}

	setString := func(key string, dst *string, v string) {
		if meta.IsDefined(strings.Split(key, ".")...) {
			*dst = strings.TrimSpace(v)
		}
	}
	setDuration := func(key string, dst *time.Duration, v string) error {
		if !meta.IsDefined(strings.Split(key, ".")...) {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	setString("server_name", &cfg.ServerName, raw.ServerName)
	setString("server_version", &cfg.ServerVersion, raw.ServerVersion)
	setString("http_addr", &cfg.HTTPAddr, raw.HTTPAddr)
	setString("shared_secret", &cfg.SharedSecret, raw.SharedSecret)
	setString("metrics_namespace", &cfg.MetricsNamespace, raw.MetricsNamespace)
	setString("log_level", &cfg.LogLevel, raw.LogLevel)
	setString("log_format", &cfg.LogFormat, raw.LogFormat)
	if meta.IsDefined("enabled_tools") {
		cfg.EnabledTools = splitList(strings.Join(raw.EnabledTools, ","))
	}
	if err := setDuration("shutdown_timeout", &cfg.ShutdownTimeout, raw.ShutdownTimeout); err != nil {
		return err
	}

	setString("curl.bearer_token", &cfg.BearerToken, raw.Curl.BearerToken)
	setString("curl.dialect", &cfg.ShellDialect, raw.Curl.Dialect)
	if err := setDuration("curl.timeout", &cfg.CommandTimeout, raw.Curl.Timeout); err != nil {
		return err
	}

	setString("logs.path", &cfg.LogFilePath, raw.Logs.Path)
	if meta.IsDefined("logs", "max_size_mb") {
		cfg.LogMaxSizeMB = raw.Logs.MaxSizeMB
	}

	setString("restart.entrypoint", &cfg.NodeEntrypoint, raw.Restart.Entrypoint)
	setString("restart.log_file", &cfg.NodeLogFile, raw.Restart.LogFile)
	setString("restart.error_log_file", &cfg.NodeErrorLogFile, raw.Restart.ErrorLogFile)
	setString("restart.kill_command", &cfg.KillCommand, raw.Restart.KillCommand)
	if meta.IsDefined("restart", "port") {
		cfg.RestartPort = raw.Restart.Port
	}
	if err := setDuration("restart.shell_timeout", &cfg.ShellTimeout, raw.Restart.ShellTimeout); err != nil {
		return err
	}

	setString("tasks.db_path", &cfg.TasksDBPath, raw.Tasks.DBPath)
	setString("tasks.database_url", &cfg.DatabaseURL, raw.Tasks.DatabaseURL)
	if meta.IsDefined("tasks", "next_session_lock") {
		cfg.NextSessionLock = raw.Tasks.NextSessionLock
	}
	if meta.IsDefined("tasks", "event_queue") {
		cfg.EventSubscriberQueue = raw.Tasks.EventQueue
	}
	return nil
}
