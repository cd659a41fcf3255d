// Package config loads sprintboard settings from defaults, an optional config
// file, SPRINTBOARD_* environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// Keys shared by viper, the config file and the flags bound to them.
const (
	KeyAddr        = "addr"
	KeyDBPath      = "db_path"
	KeyLogLevel    = "log_level"
	KeyLogFormat   = "log_format"
	KeyAuditBuffer = "audit_buffer"
)

// EnvPrefix prefixes every environment variable, e.g. SPRINTBOARD_DB_PATH.
const EnvPrefix = "SPRINTBOARD"

// Config is the resolved runtime configuration.
type Config struct {
	Addr        string
	DBPath      string
	LogLevel    string
	LogFormat   string
	AuditBuffer int
}

// New returns a viper instance with defaults and environment binding set.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyAddr, ":8080")
	v.SetDefault(KeyDBPath, "data/sprintboard.db")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyAuditBuffer, 256)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file, if any, and resolves the final values. An
// explicit cfgFile must exist; otherwise sprintboard.{yaml,toml,json} is
// looked up in the working directory and $HOME/.sprintboard.
func Load(v *viper.Viper, cfgFile string) (Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		v.SetConfigName("sprintboard")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.sprintboard")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		Addr:        strings.TrimSpace(v.GetString(KeyAddr)),
		DBPath:      strings.TrimSpace(v.GetString(KeyDBPath)),
		LogLevel:    strings.ToLower(strings.TrimSpace(v.GetString(KeyLogLevel))),
		LogFormat:   strings.ToLower(strings.TrimSpace(v.GetString(KeyLogFormat))),
		AuditBuffer: v.GetInt(KeyAuditBuffer),
	}
	return cfg, cfg.Validate()
}

// Validate rejects values the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr must not be empty"))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path must not be empty"))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	if c.AuditBuffer <= 0 {
		errs = append(errs, fmt.Errorf("audit_buffer must be positive, got %d", c.AuditBuffer))
	}
	return errors.Join(errs...)
}

// Logger builds the slog logger described by the config.
func (c Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log_level %q", s)
}
