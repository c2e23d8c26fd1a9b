// Package config loads YAML configuration with environment overrides
// for secrets and deployment-specific values.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the broadcast engine.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Transport TransportConfig `yaml:"transport"`
	Storage   StorageConfig   `yaml:"storage"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds optional Redis settings used for distributed
// locking. An empty Addr disables Redis and falls back to PG advisory
// locks.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// TransportConfig selects and configures the email transport adapter.
type TransportConfig struct {
	// Provider is "http" (generic JSON provider API) or "ses".
	Provider       string            `yaml:"provider"`
	FromAddress    string            `yaml:"from_address"`
	FromName       string            `yaml:"from_name"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	HTTP           HTTPProviderConfig `yaml:"http"`
	SES            SESConfig         `yaml:"ses"`
}

// HTTPProviderConfig holds settings for the generic HTTP email provider.
type HTTPProviderConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// SESConfig holds AWS SES v2 credentials.
type SESConfig struct {
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// StorageConfig holds S3 settings for externalized images.
type StorageConfig struct {
	Region               string `yaml:"region"`
	Bucket               string `yaml:"bucket"`
	AccessKey            string `yaml:"access_key"`
	SecretKey            string `yaml:"secret_key"`
	PublicBaseURL        string `yaml:"public_base_url"`
	UploadTimeoutSeconds int    `yaml:"upload_timeout_seconds"`
}

// SchedulerConfig holds poller and reconciler settings.
type SchedulerConfig struct {
	// CronSecret is the static bearer token required by the HTTP
	// trigger endpoint.
	CronSecret          string `yaml:"cron_secret"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	// StuckGraceMinutes is how long a broadcast may sit in 'sending'
	// before the reconciler fails it.
	StuckGraceMinutes int `yaml:"stuck_grace_minutes"`
	MaxBatch          int `yaml:"max_batch"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// PollInterval returns the poll interval as a duration.
func (s SchedulerConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalSeconds) * time.Second
}

// StuckGrace returns the stuck-sending grace period as a duration.
func (s SchedulerConfig) StuckGrace() time.Duration {
	return time.Duration(s.StuckGraceMinutes) * time.Minute
}

// TransportTimeout returns the transport call timeout as a duration.
func (t TransportConfig) TransportTimeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

// UploadTimeout returns the per-upload timeout as a duration.
func (s StorageConfig) UploadTimeout() time.Duration {
	return time.Duration(s.UploadTimeoutSeconds) * time.Second
}

// Load reads and parses the YAML config at path, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Transport.Provider == "" {
		cfg.Transport.Provider = "http"
	}
	if cfg.Transport.TimeoutSeconds == 0 {
		cfg.Transport.TimeoutSeconds = 30
	}
	if cfg.Transport.SES.Region == "" {
		cfg.Transport.SES.Region = "us-east-1"
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.UploadTimeoutSeconds == 0 {
		cfg.Storage.UploadTimeoutSeconds = 20
	}
	if cfg.Scheduler.PollIntervalSeconds == 0 {
		cfg.Scheduler.PollIntervalSeconds = 60
	}
	if cfg.Scheduler.StuckGraceMinutes == 0 {
		cfg.Scheduler.StuckGraceMinutes = 15
	}
	if cfg.Scheduler.MaxBatch == 0 {
		cfg.Scheduler.MaxBatch = 50
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	return &cfg, nil
}

// LoadFromEnv loads the YAML config and then applies environment
// variable overrides. A .env file is loaded first if present.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("TRANSPORT_API_KEY"); v != "" {
		cfg.Transport.HTTP.APIKey = v
	}
	if v := os.Getenv("TRANSPORT_BASE_URL"); v != "" {
		cfg.Transport.HTTP.BaseURL = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.Transport.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.Transport.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.Transport.SES.Region = v
	}
	if v := os.Getenv("STORAGE_S3_BUCKET"); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := os.Getenv("STORAGE_S3_REGION"); v != "" {
		cfg.Storage.Region = v
	}
	if v := os.Getenv("STORAGE_ACCESS_KEY"); v != "" {
		cfg.Storage.AccessKey = v
	}
	if v := os.Getenv("STORAGE_SECRET_KEY"); v != "" {
		cfg.Storage.SecretKey = v
	}
	if v := os.Getenv("CRON_SECRET"); v != "" {
		cfg.Scheduler.CronSecret = v
	}

	return cfg, nil
}
