package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/otadl/downloads", cfg.Download.RootDir)
	assert.Equal(t, 5, cfg.Download.MaxRetries)
	assert.True(t, cfg.Download.VerifyChecksum)
	assert.Equal(t, "127.0.0.1:8080", cfg.HTTP.BindAddr)
	assert.Equal(t, 7*24*time.Hour, cfg.Maintenance.GetRetention())
	assert.Equal(t, 500*time.Millisecond, cfg.Queue.GetProgressNotifyInterval())
	assert.Equal(t, 4096, cfg.Download.GetBufferSize())
	assert.True(t, cfg.Telemetry.Enabled)
	assert.False(t, cfg.DatabaseInsideRoot())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
download:
  root_dir: /data/ota
  max_retries: 3
network:
  wifi_only: true
  mobile_max_bytes: 104857600
  wifi_interfaces: ["wlan0"]
queue:
  idle_timeout: 5s
maintenance:
  retention: 0s
database:
  path: /data/ota/state.db
logging:
  level: debug
  format: text
  file: /var/log/otadl/otadl.log
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/ota", cfg.Download.RootDir)
	assert.Equal(t, 3, cfg.Download.MaxRetries)
	assert.Equal(t, 5, cfg.Download.MaxRedirects)
	assert.True(t, cfg.Network.WifiOnly)
	assert.Equal(t, int64(104857600), cfg.Network.MobileMaxBytes)
	assert.Equal(t, []string{"wlan0"}, cfg.Network.WifiInterfaces)
	assert.Equal(t, 5*time.Second, cfg.Queue.GetIdleTimeout())
	assert.Zero(t, cfg.Maintenance.GetRetention())
	assert.Equal(t, "/var/log/otadl/otadl.log", cfg.Logging.File)
	assert.True(t, cfg.DatabaseInsideRoot())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("OTADL_HTTP_BIND_ADDR", "0.0.0.0:9090")
	t.Setenv("OTADL_NETWORK_WIFI_ONLY", "true")
	t.Setenv("OTADL_QUEUE_IDLE_TIMEOUT", "2m")

	path := writeConfig(t, "http:\n  bind_addr: 127.0.0.1:1234\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.HTTP.BindAddr)
	assert.True(t, cfg.Network.WifiOnly)
	assert.Equal(t, 2*time.Minute, cfg.Queue.GetIdleTimeout())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"no root", func(c *Config) { c.Download.RootDir = "" }, "download.root_dir"},
		{"zero retries", func(c *Config) { c.Download.MaxRetries = 0 }, "download.max_retries"},
		{"inverted backoff", func(c *Config) { c.Download.RetryMaxSeconds = 10 }, "retry_min_seconds"},
		{"negative cap", func(c *Config) { c.Network.MobileMaxBytes = -1 }, "mobile_max_bytes"},
		{"bad duration", func(c *Config) { c.Queue.IdleTimeout = "soon" }, "queue.idle_timeout"},
		{"negative duration", func(c *Config) { c.HTTP.ReadTimeout = "-1s" }, "http.read_timeout"},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDurationHelpersFallBack(t *testing.T) {
	var c Config
	assert.Equal(t, 10*time.Second, c.Network.GetPollInterval())
	assert.Equal(t, time.Hour, c.Maintenance.GetPruneInterval())
	assert.Equal(t, 30*time.Second, c.HTTP.GetReadTimeout())
	assert.Equal(t, time.Second, c.Download.GetReadRetryDelay())
	assert.Zero(t, c.Maintenance.GetRetention())
}
