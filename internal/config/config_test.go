package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "local", cfg.Server.Env)
	assert.Equal(t, "memory", cfg.Broker.Mode)
	assert.True(t, cfg.Privacy.PrivacyMode)
	assert.True(t, cfg.Privacy.MonitorUnknown)
	assert.InDelta(t, 0.90, cfg.Defense.AutoQuarantineThreshold, 1e-9)
	assert.Equal(t, 100, cfg.Alerts.WindowSize)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
  env: production
broker:
  mode: redis
  redis_addr: redis.internal:6379
alerts:
  window_size: 250
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "production", cfg.Server.Env)
	assert.Equal(t, "redis", cfg.Broker.Mode)
	assert.Equal(t, "redis.internal:6379", cfg.Broker.RedisAddr)
	assert.Equal(t, 250, cfg.Alerts.WindowSize)
	// Untouched sections keep their defaults.
	assert.True(t, cfg.Privacy.PrivacyMode)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SH_PORT", "7070")
	t.Setenv("SH_BROKER_MODE", "PubSub")
	t.Setenv("SH_PRIVACY_MODE", "false")
	t.Setenv("SH_AUDIT_LEDGER_PATH", "/var/log/audit.jsonl")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "pubsub", cfg.Broker.Mode)
	assert.False(t, cfg.Privacy.PrivacyMode)
	assert.Equal(t, "/var/log/audit.jsonl", cfg.Audit.LedgerPath)
}
