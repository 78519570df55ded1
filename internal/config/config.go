package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the runtime configuration for the coordinator process.
type Config struct {
	HTTP      *HTTPConfig      `json:"http"`
	Database  *DatabaseConfig  `json:"database"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Sync      *SyncConfig      `json:"sync"`
}

type HTTPConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

type DatabaseConfig struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

type SyncConfig struct {
	SweepInterval     time.Duration `json:"sweep_interval"`
	IssueHistoryLimit int           `json:"issue_history_limit"`
	EventBufferSize   int           `json:"event_buffer_size"`
}

// DefaultConfig returns values tuned for a lab-network deployment with a
// handful of capture nodes.
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8090,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: &DatabaseConfig{
			Path:    "./sensorhub.db",
			Timeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Sync: &SyncConfig{
			SweepInterval:     10 * time.Second,
			IssueHistoryLimit: 50,
			EventBufferSize:   256,
		},
	}
}

// Validate rejects configurations that would fail at runtime.
func (c *Config) Validate() error {
	if c.HTTP == nil {
		return fmt.Errorf("http configuration is required")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("http host cannot be empty")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("http timeouts must be positive")
	}
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}
	if c.WebSocket == nil {
		return fmt.Errorf("websocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.ReadTimeout <= 0 || c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("websocket intervals must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("websocket buffer size must be positive")
	}
	if c.Sync == nil {
		return fmt.Errorf("sync configuration is required")
	}
	if c.Sync.SweepInterval <= 0 {
		return fmt.Errorf("sync sweep interval must be positive")
	}
	if c.Sync.IssueHistoryLimit <= 0 {
		return fmt.Errorf("issue history limit must be positive")
	}
	if c.Sync.EventBufferSize <= 0 {
		return fmt.Errorf("event buffer size must be positive")
	}
	return nil
}

// LoadFromEnv overlays SENSORHUB_* environment variables on the defaults.
func LoadFromEnv() *Config {
	cfg := DefaultConfig()

	if host := os.Getenv("SENSORHUB_HTTP_HOST"); host != "" {
		cfg.HTTP.Host = host
	}
	if port := os.Getenv("SENSORHUB_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.HTTP.Port = p
		}
	}
	if d := os.Getenv("SENSORHUB_HTTP_READ_TIMEOUT"); d != "" {
		if v, err := time.ParseDuration(d); err == nil {
			cfg.HTTP.ReadTimeout = v
		}
	}
	if d := os.Getenv("SENSORHUB_HTTP_WRITE_TIMEOUT"); d != "" {
		if v, err := time.ParseDuration(d); err == nil {
			cfg.HTTP.WriteTimeout = v
		}
	}
	if path := os.Getenv("SENSORHUB_DATABASE_PATH"); path != "" {
		cfg.Database.Path = path
	}
	if d := os.Getenv("SENSORHUB_DATABASE_TIMEOUT"); d != "" {
		if v, err := time.ParseDuration(d); err == nil {
			cfg.Database.Timeout = v
		}
	}
	if d := os.Getenv("SENSORHUB_WEBSOCKET_PING_INTERVAL"); d != "" {
		if v, err := time.ParseDuration(d); err == nil {
			cfg.WebSocket.PingInterval = v
		}
	}
	if d := os.Getenv("SENSORHUB_WEBSOCKET_READ_TIMEOUT"); d != "" {
		if v, err := time.ParseDuration(d); err == nil {
			cfg.WebSocket.ReadTimeout = v
		}
	}
	if d := os.Getenv("SENSORHUB_WEBSOCKET_WRITE_TIMEOUT"); d != "" {
		if v, err := time.ParseDuration(d); err == nil {
			cfg.WebSocket.WriteTimeout = v
		}
	}
	if size := os.Getenv("SENSORHUB_WEBSOCKET_BUFFER_SIZE"); size != "" {
		if v, err := strconv.Atoi(size); err == nil {
			cfg.WebSocket.BufferSize = v
		}
	}
	if d := os.Getenv("SENSORHUB_SYNC_SWEEP_INTERVAL"); d != "" {
		if v, err := time.ParseDuration(d); err == nil {
			cfg.Sync.SweepInterval = v
		}
	}
	if limit := os.Getenv("SENSORHUB_SYNC_ISSUE_HISTORY_LIMIT"); limit != "" {
		if v, err := strconv.Atoi(limit); err == nil {
			cfg.Sync.IssueHistoryLimit = v
		}
	}
	if size := os.Getenv("SENSORHUB_SYNC_EVENT_BUFFER_SIZE"); size != "" {
		if v, err := strconv.Atoi(size); err == nil {
			cfg.Sync.EventBufferSize = v
		}
	}

	return cfg
}

// fileConfig mirrors Config with string durations for human-editable JSON.
type fileConfig struct {
	HTTP *struct {
		Host         string `json:"host"`
		Port         int    `json:"port"`
		ReadTimeout  string `json:"read_timeout"`
		WriteTimeout string `json:"write_timeout"`
	} `json:"http"`
	Database *struct {
		Path    string `json:"path"`
		Timeout string `json:"timeout"`
	} `json:"database"`
	WebSocket *struct {
		PingInterval string `json:"ping_interval"`
		ReadTimeout  string `json:"read_timeout"`
		WriteTimeout string `json:"write_timeout"`
		BufferSize   int    `json:"buffer_size"`
	} `json:"websocket"`
	Sync *struct {
		SweepInterval     string `json:"sweep_interval"`
		IssueHistoryLimit int    `json:"issue_history_limit"`
		EventBufferSize   int    `json:"event_buffer_size"`
	} `json:"sync"`
}

// LoadFromFile overlays a JSON configuration file on the environment layer,
// so a file sets only the values it names and SENSORHUB_* variables still
// cover the rest.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg := LoadFromEnv()
	if fc.HTTP != nil {
		if fc.HTTP.Host != "" {
			cfg.HTTP.Host = fc.HTTP.Host
		}
		if fc.HTTP.Port > 0 {
			cfg.HTTP.Port = fc.HTTP.Port
		}
		setDuration(&cfg.HTTP.ReadTimeout, fc.HTTP.ReadTimeout)
		setDuration(&cfg.HTTP.WriteTimeout, fc.HTTP.WriteTimeout)
	}
	if fc.Database != nil {
		if fc.Database.Path != "" {
			cfg.Database.Path = fc.Database.Path
		}
		setDuration(&cfg.Database.Timeout, fc.Database.Timeout)
	}
	if fc.WebSocket != nil {
		setDuration(&cfg.WebSocket.PingInterval, fc.WebSocket.PingInterval)
		setDuration(&cfg.WebSocket.ReadTimeout, fc.WebSocket.ReadTimeout)
		setDuration(&cfg.WebSocket.WriteTimeout, fc.WebSocket.WriteTimeout)
		if fc.WebSocket.BufferSize > 0 {
			cfg.WebSocket.BufferSize = fc.WebSocket.BufferSize
		}
	}
	if fc.Sync != nil {
		setDuration(&cfg.Sync.SweepInterval, fc.Sync.SweepInterval)
		if fc.Sync.IssueHistoryLimit > 0 {
			cfg.Sync.IssueHistoryLimit = fc.Sync.IssueHistoryLimit
		}
		if fc.Sync.EventBufferSize > 0 {
			cfg.Sync.EventBufferSize = fc.Sync.EventBufferSize
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}

// Load resolves configuration with precedence file > environment > defaults,
// each layer overriding only the values it sets. A missing or unreadable file
// falls back silently to the environment layer.
func Load(path string) *Config {
	cfg := LoadFromEnv()
	if path != "" {
		if fileCfg, err := LoadFromFile(path); err == nil {
			cfg = fileCfg
		}
	}
	return cfg
}

func setDuration(dst *time.Duration, raw string) {
	if raw == "" {
		return
	}
	if v, err := time.ParseDuration(raw); err == nil {
		*dst = v
	}
}
