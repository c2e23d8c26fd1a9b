package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090
  host: "0.0.0.0"

database:
  url: "postgres://localhost:5432/broadcasts?sslmode=disable"
  max_open_conns: 10

transport:
  provider: "http"
  from_address: "news@example.com"
  from_name: "Example News"
  timeout_seconds: 45
  http:
    base_url: "https://api.provider.test/v1"
    api_key: "test-api-key"

storage:
  bucket: "broadcast-images"
  region: "eu-west-1"
  public_base_url: "https://img.example.com"

scheduler:
  cron_secret: "shhh"
  poll_interval_seconds: 120
  stuck_grace_minutes: 30
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)

	assert.Equal(t, "http", cfg.Transport.Provider)
	assert.Equal(t, "news@example.com", cfg.Transport.FromAddress)
	assert.Equal(t, 45*time.Second, cfg.Transport.TransportTimeout())
	assert.Equal(t, "test-api-key", cfg.Transport.HTTP.APIKey)

	assert.Equal(t, "broadcast-images", cfg.Storage.Bucket)
	assert.Equal(t, "eu-west-1", cfg.Storage.Region)

	assert.Equal(t, "shhh", cfg.Scheduler.CronSecret)
	assert.Equal(t, 2*time.Minute, cfg.Scheduler.PollInterval())
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.StuckGrace())
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  port: 0\n"), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "http", cfg.Transport.Provider)
	assert.Equal(t, 30*time.Second, cfg.Transport.TransportTimeout())
	assert.Equal(t, 60*time.Second, cfg.Scheduler.PollInterval())
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.StuckGrace())
	assert.Equal(t, 50, cfg.Scheduler.MaxBatch)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("scheduler:\n  cron_secret: from-file\n"), 0644))

	t.Setenv("CRON_SECRET", "from-env")
	t.Setenv("DATABASE_URL", "postgres://env-host/db")

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Scheduler.CronSecret)
	assert.Equal(t, "postgres://env-host/db", cfg.Database.URL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}
