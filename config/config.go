package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ipv6-provision-backend/internal/logger"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Provider   ProviderConfig   `yaml:"provider"`
	Callbacks  CallbackConfig   `yaml:"callbacks"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Retry      RetryConfig      `yaml:"retry"`
	Log        logger.Config    `yaml:"log"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	PublicBaseURL   string  `yaml:"public_base_url"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// ProviderConfig describes the external KEA provisioning service.
type ProviderConfig struct {
	BaseURL        string        `yaml:"base_url"`
	BindingPath    string        `yaml:"binding_path"`
	ConfigPath     string        `yaml:"config_path"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	Timeout        time.Duration `yaml:"-"`
	UserAgent      string        `yaml:"user_agent"`
	HTTPProxy      string        `yaml:"http_proxy"`
}

// CallbackConfig holds the inbound webhook paths the provider calls back on.
type CallbackConfig struct {
	BindingPath string `yaml:"binding_path"`
	OfflinePath string `yaml:"offline_path"`
	ConfigPath  string `yaml:"config_path"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are configured.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// RetryConfig controls the manual retry batch.
type RetryConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills every unset field with its default value.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 5
	}

	if cfg.Provider.TimeoutSeconds <= 0 {
		cfg.Provider.TimeoutSeconds = 10
	}
	cfg.Provider.Timeout = time.Duration(cfg.Provider.TimeoutSeconds) * time.Second
	if cfg.Provider.BindingPath == "" {
		cfg.Provider.BindingPath = "/webhook/kea"
	}
	if cfg.Provider.ConfigPath == "" {
		cfg.Provider.ConfigPath = "/webhook/kea-add"
	}
	if cfg.Provider.UserAgent == "" {
		cfg.Provider.UserAgent = "IoT-IPv6-Management-System/1.0"
	}

	if cfg.Callbacks.BindingPath == "" {
		cfg.Callbacks.BindingPath = "/api/kea/callback/"
	}
	if cfg.Callbacks.OfflinePath == "" {
		cfg.Callbacks.OfflinePath = "/api/device/offline/callback/"
	}
	if cfg.Callbacks.ConfigPath == "" {
		cfg.Callbacks.ConfigPath = "/api/ipv6/config/callback/"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		cfg.WorkerPool.Size = 1
	}
	if cfg.Retry.Concurrency <= 0 {
		cfg.Retry.Concurrency = 4
	}
}

// CallbackURL joins the public base URL with a callback path.
func (cfg *Config) CallbackURL(path string) string {
	return strings.TrimRight(cfg.Server.PublicBaseURL, "/") + path
}
