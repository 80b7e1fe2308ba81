package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const validYAML = `
version: "1"
server:
  host: 127.0.0.1
  http_port: 9100
provider:
  base_url: https://connectapi.example.com
  exchange_url: https://diauth.example.com/di-oauth2-service/oauth/exchange/user/2.0
  consumer_key: ck
  consumer_secret: cs
sync:
  interval: 10m
  days: 2
api:
  auth:
    secret: hunter2
`

func TestParseValidConfig(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	require.NoError(t, err)
	require.Equal(t, 9100, cfg.Server.HTTPPort)
	require.Equal(t, 10*time.Minute, cfg.Sync.Interval)
	require.Equal(t, 2, cfg.Sync.Days)
	require.Equal(t, "hunter2", cfg.API.Auth.Secret)
}

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
provider:
  base_url: https://connectapi.example.com
  exchange_url: https://diauth.example.com/exchange
  consumer_key: ck
  consumer_secret: cs
`))
	require.NoError(t, err)
	require.Equal(t, 8419, cfg.Server.HTTPPort)
	require.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	require.Equal(t, "info", cfg.Server.LogLevel)
	require.Equal(t, 15*time.Minute, cfg.Sync.Interval)
	require.Equal(t, 1, cfg.Sync.Days)
	require.Equal(t, 50, cfg.Sync.BatchSize)
	require.Equal(t, 20*time.Second, cfg.Provider.Timeout)
}

func TestParseRejectsMissingProvider(t *testing.T) {
	_, err := Parse([]byte(`server: {http_port: 8080}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "provider.base_url")
}

func TestParseRejectsBadLogLevel(t *testing.T) {
	_, err := Parse([]byte(`
server:
  log_level: loud
provider:
  base_url: https://x
  exchange_url: https://y
  consumer_key: ck
  consumer_secret: cs
`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "log_level")
}

func TestParseRejectsTelegramWithoutToken(t *testing.T) {
	_, err := Parse([]byte(`
provider:
  base_url: https://x
  exchange_url: https://y
  consumer_key: ck
  consumer_secret: cs
telegram:
  enabled: true
`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "bot_token")
}

func TestLoaderLoadAndGet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o600))

	loader := NewLoader(path)
	cfg, err := loader.Load()
	require.NoError(t, err)
	require.Same(t, cfg, loader.Get())
}

func TestLoaderMissingFile(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := loader.Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
}

func TestLoaderEnvSubstitution(t *testing.T) {
	t.Setenv("BIOSYNC_TEST_SECRET", "from-env")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
provider:
  base_url: https://x
  exchange_url: https://y
  consumer_key: ck
  consumer_secret: cs
api:
  auth:
    secret: ${BIOSYNC_TEST_SECRET}
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.API.Auth.Secret)
}
