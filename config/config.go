package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" envPrefix:"SERVER_"`
	Database   DatabaseConfig   `yaml:"database" envPrefix:"DATABASE_"`
	Push       PushConfig       `yaml:"push" envPrefix:"PUSH_"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool" envPrefix:"WORKER_POOL_"`
	Directory  DirectoryConfig  `yaml:"directory" envPrefix:"DIRECTORY_"`
	Realtime   RealtimeConfig   `yaml:"realtime" envPrefix:"REALTIME_"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" envPrefix:"TELEMETRY_"`
	Logging    LoggingConfig    `yaml:"logging" envPrefix:"LOGGING_"`
}

// WorkerPoolConfig holds the configuration for the push notification worker pool.
type WorkerPoolConfig struct {
	Size      int `yaml:"size" env:"SIZE"`
	QueueSize int `yaml:"queue_size" env:"QUEUE_SIZE"`
}

// PushConfig holds the VAPID keys for resident web push notifications.
// Push is optional; with no keys configured the worker pool is not started.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key" env:"VAPID_PUBLIC_KEY"`
	PrivateKey string `yaml:"vapid_private_key" env:"VAPID_PRIVATE_KEY"`
	Subject    string `yaml:"subject" env:"SUBJECT"`
	TTL        int    `yaml:"ttl" env:"TTL"`
}

// Enabled reports whether both VAPID keys are present.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int           `yaml:"port" env:"PORT"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec" env:"RATE_LIMIT_PER_SEC"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	CacheTTLSeconds int           `yaml:"cache_ttl_seconds" env:"CACHE_TTL_SECONDS"`
	CacheTTL        time.Duration `yaml:"-"`
	HistoryLimit    int           `yaml:"history_limit" env:"HISTORY_LIMIT"`
	ShutdownSeconds int           `yaml:"shutdown_seconds" env:"SHUTDOWN_SECONDS"`
	ActorIDHeader   string        `yaml:"actor_id_header" env:"ACTOR_ID_HEADER"`
	ActorRoleHeader string        `yaml:"actor_role_header" env:"ACTOR_ROLE_HEADER"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver" env:"DRIVER"` // "postgres" or "sqlite"
	DSN                    string `yaml:"dsn" env:"DSN"`
	MaxOpenConns           int    `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns           int    `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes" env:"CONN_MAX_LIFETIME_MINUTES"`
	EnableConstraints      bool   `yaml:"enable_constraints" env:"ENABLE_CONSTRAINTS"`
	LogLevel               string `yaml:"log_level" env:"LOG_LEVEL"`
}

// DirectoryConfig describes the upstream resident directory that is mirrored locally.
type DirectoryConfig struct {
	Enabled         bool              `yaml:"enabled" env:"ENABLED"`
	URL             string            `yaml:"url" env:"URL"`
	Headers         map[string]string `yaml:"headers"`
	PageSize        int               `yaml:"page_size" env:"PAGE_SIZE"`
	IntervalSeconds int               `yaml:"interval_seconds" env:"INTERVAL_SECONDS"`
	Interval        time.Duration     `yaml:"-"`
	HTTPProxy       string            `yaml:"http_proxy" env:"HTTP_PROXY"`
	CacheTTLSeconds int               `yaml:"cache_ttl_seconds" env:"CACHE_TTL_SECONDS"`
	CacheTTL        time.Duration     `yaml:"-"`
}

// RealtimeConfig configures the SockJS fanout endpoint.
type RealtimeConfig struct {
	Prefix           string `yaml:"prefix" env:"PREFIX"`
	ClientBuffer     int    `yaml:"client_buffer" env:"CLIENT_BUFFER"`
	HeartbeatSeconds int    `yaml:"heartbeat_seconds" env:"HEARTBEAT_SECONDS"`
}

// TelemetryConfig configures OTLP trace export. An empty endpoint disables tracing.
type TelemetryConfig struct {
	ServiceName  string `yaml:"service_name" env:"SERVICE_NAME"`
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	Insecure     bool   `yaml:"insecure" env:"INSECURE"`
}

// LoggingConfig selects the log format.
type LoggingConfig struct {
	Dev bool `yaml:"dev" env:"DEV"`
}

// Load reads the configuration from the given path and applies GATE_* environment overrides.
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

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "GATE_"}); err != nil {
		return nil, fmt.Errorf("parse environment overrides: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 60
	}
	cfg.Server.CacheTTL = time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	if cfg.Server.HistoryLimit <= 0 {
		cfg.Server.HistoryLimit = 10
	}
	if cfg.Server.ShutdownSeconds <= 0 {
		cfg.Server.ShutdownSeconds = 5
	}
	if cfg.Server.ActorIDHeader == "" {
		cfg.Server.ActorIDHeader = "X-Actor-ID"
	}
	if cfg.Server.ActorRoleHeader == "" {
		cfg.Server.ActorRoleHeader = "X-Actor-Role"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		slog.Warn("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
	if cfg.WorkerPool.QueueSize <= 0 {
		cfg.WorkerPool.QueueSize = 64
	}

	if cfg.Directory.PageSize <= 0 {
		cfg.Directory.PageSize = 100
	}
	if cfg.Directory.IntervalSeconds <= 0 {
		cfg.Directory.IntervalSeconds = 300
	}
	cfg.Directory.Interval = time.Duration(cfg.Directory.IntervalSeconds) * time.Second
	if cfg.Directory.CacheTTLSeconds <= 0 {
		cfg.Directory.CacheTTLSeconds = 120
	}
	cfg.Directory.CacheTTL = time.Duration(cfg.Directory.CacheTTLSeconds) * time.Second

	if cfg.Realtime.Prefix == "" {
		cfg.Realtime.Prefix = "/realtime"
	}
	if cfg.Realtime.ClientBuffer <= 0 {
		cfg.Realtime.ClientBuffer = 16
	}
	if cfg.Realtime.HeartbeatSeconds <= 0 {
		cfg.Realtime.HeartbeatSeconds = 25
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "society-gate"
	}
}
