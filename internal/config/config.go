// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftboard Contributors

// Package config loads runtime configuration. Precedence, lowest to highest:
// flag defaults, YAML config file, environment, explicit flags.
package config

import (
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Config is the full runtime configuration.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Session       SessionConfig
	SMTP          SMTPConfig
	Observability ObservabilityConfig
	Log           LogConfig
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	// Addr is the listen address, host:port.
	Addr string

	// BaseURL is the public origin, used to build reset links in mail.
	BaseURL string

	// CookieSecure marks the session cookie Secure. Disable only for local
	// development over plain HTTP.
	CookieSecure bool
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	URL string
}

// SessionConfig configures session issuance.
type SessionConfig struct {
	Lifetime time.Duration
}

// SMTPConfig configures outbound mail. An empty Host selects the logging
// mailer, which prints instead of sending.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// ObservabilityConfig configures the metrics/health listener.
type ObservabilityConfig struct {
	Addr string
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string
	Format string
}

// RegisterFlags declares every config flag with its default value on the
// given flag set. Flag names are the dotted config keys, so posflag can merge
// them without a mapping table.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("server.addr", ":8080", "HTTP listen address")
	flags.String("server.base_url", "http://localhost:8080", "public origin for links in mail")
	flags.Bool("server.cookie_secure", true, "mark the session cookie Secure")
	flags.String("database.url", "", "PostgreSQL connection URL")
	flags.Duration("session.lifetime", 30*24*time.Hour, "session validity window")
	flags.String("smtp.host", "", "SMTP host (empty logs mail instead of sending)")
	flags.Int("smtp.port", 587, "SMTP port")
	flags.String("smtp.username", "", "SMTP username")
	flags.String("smtp.password", "", "SMTP password")
	flags.String("smtp.from", "no-reply@driftboard.local", "From address for outbound mail")
	flags.String("observability.addr", "127.0.0.1:9100", "metrics and health listen address")
	flags.String("log.level", "info", "log level (debug, info, warn, error)")
	flags.String("log.format", "json", "log format (json, text)")
}

// Load builds a Config from the flag set and an optional YAML file.
// DATABASE_URL in the environment overrides the file but not an explicit
// --database.url flag.
func Load(flags *pflag.FlagSet, configFile string) (*Config, error) {
	k := koanf.New(".")

	if configFile != "" {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE_FAILED").
				With("operation", "load config file").
				With("path", configFile).
				Wrap(err)
		}
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		if err := k.Set("database.url", dbURL); err != nil {
			return nil, oops.Code("CONFIG_ENV_FAILED").
				With("operation", "apply DATABASE_URL").
				Wrap(err)
		}
	}

	// posflag fills defaults for keys nothing else set, and explicit flags
	// override everything.
	if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
		return nil, oops.Code("CONFIG_FLAGS_FAILED").
			With("operation", "merge flags").
			Wrap(err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Addr:         k.String("server.addr"),
			BaseURL:      k.String("server.base_url"),
			CookieSecure: k.Bool("server.cookie_secure"),
		},
		Database: DatabaseConfig{
			URL: k.String("database.url"),
		},
		Session: SessionConfig{
			Lifetime: k.Duration("session.lifetime"),
		},
		SMTP: SMTPConfig{
			Host:     k.String("smtp.host"),
			Port:     k.Int("smtp.port"),
			Username: k.String("smtp.username"),
			Password: k.String("smtp.password"),
			From:     k.String("smtp.from"),
		},
		Observability: ObservabilityConfig{
			Addr: k.String("observability.addr"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	if cfg.Database.URL == "" {
		return nil, oops.Code("CONFIG_INVALID").
			Errorf("database.url is required (flag --database.url, config file, or DATABASE_URL)")
	}

	return cfg, nil
}
