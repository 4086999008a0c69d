package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5000, cfg.RateLimit.Capacity)
	assert.Equal(t, 300*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, []string{"email", "personal", "daily", "heartrate", "spo2"}, cfg.OAuth.ScopeList())
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr())
	assert.False(t, cfg.UsesRedis())
}

func TestLoad_FileThenEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "twinsync.yaml")
	yamlBody := `
server:
  port: "9090"
storage:
  backend: sqlite
rate_limit:
  capacity: 10
  window: 1m
fetch:
  default_range_days: 7
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o600))

	t.Setenv("TWINSYNC_CONFIG", "")
	t.Setenv("PORT", "7070")
	t.Setenv("TWINSYNC_RATE_LIMIT_CAPACITY", "25")
	t.Setenv("OURA_CLIENT_ID", "abc")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port, "env beats file")
	assert.Equal(t, "sqlite", cfg.Storage.Backend, "file beats default")
	assert.Equal(t, 25, cfg.RateLimit.Capacity)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 7, cfg.Fetch.DefaultRangeDays)
	assert.Equal(t, "abc", cfg.OAuth.ClientID)
	assert.Equal(t, DefaultTokenURL, cfg.OAuth.TokenURL, "untouched default survives")
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600))
	t.Setenv("TWINSYNC_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidEnvValueFallsBack(t *testing.T) {
	t.Setenv("TWINSYNC_CONFIG", "")
	t.Setenv("TWINSYNC_RATE_LIMIT_WINDOW", "soon")
	t.Setenv("REDIS_DB", "x")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultRateLimitWindow, cfg.RateLimit.Window)
	assert.Equal(t, 0, cfg.Redis.DB)
}

func TestValidate_RejectsUnknownValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"storage", func(c *Config) { c.Storage.Backend = "etcd" }},
		{"limiter backend", func(c *Config) { c.RateLimit.Backend = "memcached" }},
		{"capacity", func(c *Config) { c.RateLimit.Capacity = 0 }},
		{"window", func(c *Config) { c.RateLimit.Window = 0 }},
		{"state mode", func(c *Config) { c.OAuth.StateMode = "random" }},
		{"state store", func(c *Config) { c.OAuth.StateStore = "disk" }},
		{"timeout", func(c *Config) { c.Fetch.Timeout = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestUsesRedis(t *testing.T) {
	cfg := Default()
	cfg.OAuth.StateMode = "nonce"
	assert.False(t, cfg.UsesRedis(), "nonce with memory store")

	cfg.OAuth.StateStore = "redis"
	assert.True(t, cfg.UsesRedis())

	cfg = Default()
	cfg.RateLimit.Backend = "redis"
	assert.True(t, cfg.UsesRedis())
}

func TestStateOutlivesProcess(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.StateOutlivesProcess(), "deterministic state")

	cfg.OAuth.StateMode = "nonce"
	assert.False(t, cfg.StateOutlivesProcess(), "nonce with memory store")

	cfg.OAuth.StateStore = "redis"
	assert.True(t, cfg.StateOutlivesProcess())
}
