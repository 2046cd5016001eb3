package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeFile(t, "database:\n  dsn: postgres://localhost/gate\n"))
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Server.HistoryLimit)
	assert.Equal(t, time.Minute, cfg.Server.CacheTTL)
	assert.Equal(t, "X-Actor-ID", cfg.Server.ActorIDHeader)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
	assert.Equal(t, 5*time.Minute, cfg.Directory.Interval)
	assert.Equal(t, 2*time.Minute, cfg.Directory.CacheTTL)
	assert.Equal(t, "/realtime", cfg.Realtime.Prefix)
	assert.Equal(t, "society-gate", cfg.Telemetry.ServiceName)
	assert.False(t, cfg.Push.Enabled())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GATE_DATABASE_DSN", "file:override.db")
	t.Setenv("GATE_DATABASE_DRIVER", "sqlite")
	t.Setenv("GATE_SERVER_PORT", "8088")
	t.Setenv("GATE_PUSH_VAPID_PUBLIC_KEY", "pub")
	t.Setenv("GATE_PUSH_VAPID_PRIVATE_KEY", "priv")

	cfg, err := Load(writeFile(t, `
server:
  port: 5000
  history_limit: 25
database:
  driver: postgres
  dsn: postgres://localhost/gate
directory:
  enabled: true
  headers:
    Authorization: Bearer token
`))
	require.NoError(t, err)

	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, 25, cfg.Server.HistoryLimit)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "file:override.db", cfg.Database.DSN)
	assert.True(t, cfg.Push.Enabled())
	assert.True(t, cfg.Directory.Enabled)
	assert.Equal(t, "Bearer token", cfg.Directory.Headers["Authorization"])
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "server: [not, a, map]\n"))
	assert.Error(t, err)

	t.Setenv("GATE_SERVER_PORT", "not-a-number")
	_, err = Load(writeFile(t, "server:\n  port: 1\n"))
	assert.Error(t, err)
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := Load("config.example.yaml")
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.True(t, cfg.Database.EnableConstraints)
}
