package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
server:
  public_base_url: "http://10.0.0.5:8000/"
provider:
  base_url: "http://222.204.3.179:3003"
database:
  dsn: "file::memory:"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Provider.Timeout)
	assert.Equal(t, "/webhook/kea", cfg.Provider.BindingPath)
	assert.Equal(t, "/webhook/kea-add", cfg.Provider.ConfigPath)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
	assert.Equal(t, 4, cfg.Retry.Concurrency)
	assert.False(t, cfg.Push.Enabled())
	assert.Equal(t, "http://10.0.0.5:8000/api/kea/callback/", cfg.CallbackURL(cfg.Callbacks.BindingPath))
}

func TestLoad_Overrides(t *testing.T) {
	path := writeConfig(t, `
provider:
  base_url: "http://provider.local"
  timeout_seconds: 3
  binding_path: "/hooks/bind"
database:
  driver: sqlite
log:
  level: debug
retry:
  concurrency: 2
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.Provider.Timeout)
	assert.Equal(t, "/hooks/bind", cfg.Provider.BindingPath)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 2, cfg.Retry.Concurrency)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_Example(t *testing.T) {
	cfg, err := Load("config.example.yaml")
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 2, cfg.WorkerPool.Size)
	assert.Equal(t, "http://provision.example.edu.cn:8000/api/device/offline/callback/", cfg.CallbackURL(cfg.Callbacks.OfflinePath))
	assert.Equal(t, "info", cfg.Log.Level)
}
