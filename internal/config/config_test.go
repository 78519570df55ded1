package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8090, cfg.HTTP.Port)
	assert.Equal(t, "./sensorhub.db", cfg.Database.Path)
	assert.Equal(t, 10*time.Second, cfg.Sync.SweepInterval)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing http", func(c *Config) { c.HTTP = nil }},
		{"empty host", func(c *Config) { c.HTTP.Host = "" }},
		{"bad port", func(c *Config) { c.HTTP.Port = 70000 }},
		{"zero read timeout", func(c *Config) { c.HTTP.ReadTimeout = 0 }},
		{"missing database", func(c *Config) { c.Database = nil }},
		{"empty db path", func(c *Config) { c.Database.Path = "" }},
		{"missing websocket", func(c *Config) { c.WebSocket = nil }},
		{"zero ping interval", func(c *Config) { c.WebSocket.PingInterval = 0 }},
		{"zero buffer", func(c *Config) { c.WebSocket.BufferSize = 0 }},
		{"missing sync", func(c *Config) { c.Sync = nil }},
		{"zero sweep interval", func(c *Config) { c.Sync.SweepInterval = 0 }},
		{"zero issue history", func(c *Config) { c.Sync.IssueHistoryLimit = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("SENSORHUB_HTTP_PORT", "9999")
	t.Setenv("SENSORHUB_DATABASE_PATH", "/tmp/test.db")
	t.Setenv("SENSORHUB_SYNC_SWEEP_INTERVAL", "5s")
	t.Setenv("SENSORHUB_WEBSOCKET_BUFFER_SIZE", "42")

	cfg := LoadFromEnv()
	assert.Equal(t, 9999, cfg.HTTP.Port)
	assert.Equal(t, "/tmp/test.db", cfg.Database.Path)
	assert.Equal(t, 5*time.Second, cfg.Sync.SweepInterval)
	assert.Equal(t, 42, cfg.WebSocket.BufferSize)
}

func TestLoadFromEnvIgnoresGarbage(t *testing.T) {
	t.Setenv("SENSORHUB_HTTP_PORT", "not-a-port")
	t.Setenv("SENSORHUB_SYNC_SWEEP_INTERVAL", "soon")

	cfg := LoadFromEnv()
	assert.Equal(t, 8090, cfg.HTTP.Port)
	assert.Equal(t, 10*time.Second, cfg.Sync.SweepInterval)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"http": {"port": 7070, "read_timeout": "15s"},
		"database": {"path": "/data/hub.db"},
		"sync": {"sweep_interval": "2s", "issue_history_limit": 10}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.HTTP.Port)
	assert.Equal(t, 15*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, "/data/hub.db", cfg.Database.Path)
	assert.Equal(t, 2*time.Second, cfg.Sync.SweepInterval)
	assert.Equal(t, 10, cfg.Sync.IssueHistoryLimit)
	// Untouched sections keep defaults.
	assert.Equal(t, 30*time.Second, cfg.WebSocket.PingInterval)
}

func TestLoadFromFileErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err = LoadFromFile(path)
	assert.Error(t, err)
}

func TestLoadPrecedence(t *testing.T) {
	t.Setenv("SENSORHUB_HTTP_PORT", "9999")

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"http": {"port": 7070}}`), 0o600))

	// File wins over environment.
	cfg := Load(path)
	assert.Equal(t, 7070, cfg.HTTP.Port)

	// Missing file falls back to environment.
	cfg = Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Equal(t, 9999, cfg.HTTP.Port)

	// No file argument uses environment over defaults.
	cfg = Load("")
	assert.Equal(t, 9999, cfg.HTTP.Port)
}

func TestFileLayersOverEnvironment(t *testing.T) {
	t.Setenv("SENSORHUB_HTTP_PORT", "9999")
	t.Setenv("SENSORHUB_DATABASE_PATH", "/env/hub.db")
	t.Setenv("SENSORHUB_SYNC_EVENT_BUFFER_SIZE", "512")

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"http": {"port": 7070}}`), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	// The file overrides only what it names.
	assert.Equal(t, 7070, cfg.HTTP.Port)

	// Environment values the file is silent on survive.
	assert.Equal(t, "/env/hub.db", cfg.Database.Path)
	assert.Equal(t, 512, cfg.Sync.EventBufferSize)
}
