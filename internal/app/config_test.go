package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "info", cfg.Server.LogLevel)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, 15*time.Minute, cfg.Auth.JWT.TTL)
	require.Equal(t, 30*24*time.Hour, cfg.Auth.Session.RefreshTTL)
	require.Equal(t, 5, cfg.Auth.Local.LockoutThreshold)
	require.Equal(t, int64(10<<20), cfg.Storage.MaxUploadBytes)
	require.Equal(t, 7*24*time.Hour, cfg.Invitations.Expiry)
	require.Equal(t, 90, cfg.Audit.RetentionDays)
	require.True(t, cfg.Monitoring.Prometheus.Enabled)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	contents := []byte(`
server:
  port: 9001
  log_level: debug
database:
  driver: postgres
  postgres:
    enabled: true
    host: db.internal
    database: everkeep
invitations:
  expiry: 24h
  base_url: https://everkeep.example.com
storage:
  max_upload_bytes: 1048576
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), contents, 0o600))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	require.Equal(t, 9001, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "db.internal", cfg.Database.Postgres.Host)
	require.Equal(t, 24*time.Hour, cfg.Invitations.Expiry)
	require.Equal(t, "https://everkeep.example.com", cfg.Invitations.BaseURL)
	require.Equal(t, int64(1<<20), cfg.Storage.MaxUploadBytes)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("EVERKEEP_SERVER_PORT", "9100")
	t.Setenv("EVERKEEP_AUTH_JWT_SECRET", "env-secret")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 9100, cfg.Server.Port)
	require.Equal(t, "env-secret", cfg.Auth.JWT.Secret)
}
