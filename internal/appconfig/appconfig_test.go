// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package appconfig_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openclaw-dev/openclaw-gate/internal/appconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsOnMissingFile(t *testing.T) {
	cfg, err := appconfig.Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.ApprovalTimeout)
	assert.Equal(t, 15000, cfg.TurnIdleMs)
}

func TestLoad_ReadsFileValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\nturn_idle_ms: 5000\n"), 0o600))

	cfg, err := appconfig.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5000, cfg.TurnIdleMs)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\n"), 0o600))
	t.Setenv("OPENCLAW_LOG_LEVEL", "error")

	cfg, err := appconfig.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestLoad_RejectsInvalidLogLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: verbose\n"), 0o600))

	_, err := appconfig.Load(path)
	assert.Error(t, err)
}

func TestParseLogLevel(t *testing.T) {
	_, err := appconfig.ParseLogLevel("debug")
	require.NoError(t, err)
	_, err = appconfig.ParseLogLevel("nonsense")
	assert.Error(t, err)
}
