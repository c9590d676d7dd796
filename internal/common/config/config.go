package config

import (
	"time"
)

type (
	// Config is the top-level agenthub configuration
	Config struct {
		Server   ServerConfig   `yaml:"server"`
		Logger   LoggerConfig   `yaml:"logger"`
		Database DatabaseConfig `yaml:"database"`
		Bus      BusConfig      `yaml:"bus"`
		Gate     GateConfig     `yaml:"gate"`
		Auth     AuthConfig     `yaml:"auth"`
		Metrics  MetricsConfig  `yaml:"metrics"`
		Tracing  TracingConfig  `yaml:"tracing"`
	}

	// ServerConfig represents the HTTP server configuration
	ServerConfig struct {
		Port int `yaml:"port"`
	}

	// LoggerConfig represents the logger configuration
	LoggerConfig struct {
		Level      string `yaml:"level"`       // debug, info, warn, error
		Format     string `yaml:"format"`      // json, console
		Output     string `yaml:"output"`      // stdout, file
		FilePath   string `yaml:"file_path"`   // path to log file when output is file
		MaxSize    int    `yaml:"max_size"`    // max size of log file in MB
		MaxBackups int    `yaml:"max_backups"` // max number of backup files
		MaxAge     int    `yaml:"max_age"`     // max age of backup files in days
		Compress   bool   `yaml:"compress"`    // whether to compress backup files
		Color      bool   `yaml:"color"`       // whether to use color in console output
		Stacktrace bool   `yaml:"stacktrace"`  // whether to include stacktrace in error logs
	}

	// DatabaseConfig represents the session persistence configuration
	DatabaseConfig struct {
		Type     string `yaml:"type"` // sqlite, mysql, postgres
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		DBName   string `yaml:"dbname"` // file path for sqlite
		SSLMode  string `yaml:"sslmode"`
	}

	// BusConfig represents the event bus configuration
	BusConfig struct {
		Type      string         `yaml:"type"`       // "memory" or "redis"
		QueueSize int            `yaml:"queue_size"` // per-subscriber queue capacity
		Redis     BusRedisConfig `yaml:"redis"`
	}

	// BusRedisConfig represents the Redis configuration for the distributed bus
	BusRedisConfig struct {
		Addr     string `yaml:"addr"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Topic    string `yaml:"topic"`
	}

	// GateConfig represents the operation submission gate configuration
	GateConfig struct {
		QueueSize  int           `yaml:"queue_size"`  // per-session pending operation capacity
		DrainGrace time.Duration `yaml:"drain_grace"` // shutdown grace period before forced interrupt
	}

	// AuthConfig represents the optional JWT authentication configuration
	AuthConfig struct {
		Enabled bool      `yaml:"enabled"`
		JWT     JWTConfig `yaml:"jwt"`
	}

	// JWTConfig represents the JWT validation configuration
	JWTConfig struct {
		SecretKey string        `yaml:"secret_key"`
		Duration  time.Duration `yaml:"duration"`
	}

	// MetricsConfig represents the Prometheus metrics configuration
	MetricsConfig struct {
		Enabled   bool      `yaml:"enabled"`
		Namespace string    `yaml:"namespace"`
		Buckets   []float64 `yaml:"buckets"`
	}

	// TracingConfig represents the OpenTelemetry tracing configuration
	TracingConfig struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name"`
		Endpoint    string  `yaml:"endpoint"` // e.g. localhost:4317 or http://localhost:4318
		Protocol    string  `yaml:"protocol"` // grpc or http
		Insecure    bool    `yaml:"insecure"`
		SamplerRate float64 `yaml:"sampler_rate"` // 0.0~1.0
		Environment string  `yaml:"environment"`
	}
)

// SetDefaults fills in zero-valued fields with working defaults.
func (c *Config) SetDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 5320
	}
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.DBName == "" {
		c.Database.DBName = "data/agenthub.db"
	}
	if c.Bus.Type == "" {
		c.Bus.Type = "memory"
	}
	if c.Bus.QueueSize <= 0 {
		c.Bus.QueueSize = 100
	}
	if c.Bus.Redis.Topic == "" {
		c.Bus.Redis.Topic = "agenthub:events"
	}
	if c.Gate.QueueSize <= 0 {
		c.Gate.QueueSize = 64
	}
	if c.Gate.DrainGrace <= 0 {
		c.Gate.DrainGrace = 10 * time.Second
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "agenthub"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "agenthub"
	}
}
