// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package appconfig holds the gate binary's own process configuration —
// log level, audit database path, approval bridge and turn-idle overrides.
// This is distinct from, and does not replace, internal/policy's
// declarative security policy document: appconfig is how the binary is
// configured; policy is the rule set it enforces.
package appconfig

import (
	"strings"
	"time"

	gateerr "github.com/openclaw-dev/openclaw-gate/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the gate process's own configuration.
type Config struct {
	LogLevel        string        `mapstructure:"log_level"`
	PolicyPath      string        `mapstructure:"policy_path"`
	AuditDBPath     string        `mapstructure:"audit_db_path"`
	ApprovalTimeout time.Duration `mapstructure:"approval_timeout"`
	TurnIdleMs      int           `mapstructure:"turn_idle_ms"`
}

// Load reads configuration from path (optional) with OPENCLAW_-prefixed
// environment overrides, falling back to built-in defaults for anything
// unset. A missing path is not an error — a fresh install runs on defaults
// alone, same as the policy store.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("log_level", "info")
	v.SetDefault("policy_path", "~/.openclaw/policy.json")
	v.SetDefault("audit_db_path", "~/.openclaw/audit.db")
	v.SetDefault("approval_timeout", "30s")
	v.SetDefault("turn_idle_ms", 15000)

	v.SetEnvPrefix("OPENCLAW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, gateerr.Wrap(err, gateerr.CodeConfigLoadReadFailure, "reading appconfig file "+path)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, gateerr.Wrap(err, gateerr.CodeConfigValidateInvalidValue, "unmarshalling appconfig")
	}

	if cfg.ApprovalTimeout <= 0 {
		cfg.ApprovalTimeout = 30 * time.Second
	}
	if cfg.TurnIdleMs <= 0 {
		cfg.TurnIdleMs = 15000
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, gateerr.Errorf(gateerr.CodeConfigValidateInvalidValue, "validating appconfig: %v", errs)
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors, collecting all
// issues found rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, gateerr.Errorf(gateerr.CodeConfigValidateInvalidValue,
			"appconfig: log_level must be one of [debug, info, warn, error], got %q", c.LogLevel))
	}

	if c.TurnIdleMs <= 0 {
		errs = append(errs, gateerr.Errorf(gateerr.CodeConfigValidateInvalidValue,
			"appconfig: turn_idle_ms must be greater than 0, got %d", c.TurnIdleMs))
	}

	return errs
}

// ParseLogLevel maps the configured log level string to slog's level type,
// used by cmd/openclaw-gate's root command to configure the default logger.
func ParseLogLevel(level string) (int, error) {
	switch strings.ToLower(level) {
	case "debug":
		return -4, nil
	case "info":
		return 0, nil
	case "warn":
		return 4, nil
	case "error":
		return 8, nil
	default:
		return 0, gateerr.Errorf(gateerr.CodeConfigValidateInvalidValue, "unrecognized log level %q", level)
	}
}
