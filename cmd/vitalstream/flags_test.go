package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags_Defaults(t *testing.T) {
	cfg, err := parseFlags(nil)
	require.NoError(t, err)

	assert.Equal(t, "", cfg.ConfigPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, -1, cfg.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.NoError(t, validateFlags(cfg))
}

func TestParseFlags_EnvFallback(t *testing.T) {
	t.Setenv("VITALSTREAM_LOG_FORMAT", "text")
	t.Setenv("VITALSTREAM_SHUTDOWN_TIMEOUT", "5s")
	t.Setenv("VITALSTREAM_METRICS_PORT", "not-a-port")

	cfg, err := parseFlags([]string{"--debug", "--device-id", "bed-4"})
	require.NoError(t, err)

	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, -1, cfg.MetricsPort, "unparseable env falls back to the default")
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "bed-4", cfg.DeviceID)
}

func TestValidateFlags(t *testing.T) {
	base := func() *CLIConfig {
		cfg, err := parseFlags(nil)
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.ConfigPath = filepath.Join(t.TempDir(), "missing.yaml")
	assert.Error(t, validateFlags(cfg))

	cfg = base()
	cfg.LogLevel = "trace"
	assert.Error(t, validateFlags(cfg))

	cfg = base()
	cfg.LogFormat = "xml"
	assert.Error(t, validateFlags(cfg))

	cfg = base()
	cfg.MetricsPort = 70000
	assert.Error(t, validateFlags(cfg))

	cfg = base()
	cfg.ShowVersion = true
	cfg.LogLevel = "trace"
	assert.NoError(t, validateFlags(cfg), "version skips validation")
}

func TestLoadConfig_CLIOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vitalstream.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
device_id: from-file
transport:
  type: file
  file:
    directory: /tmp/vitalstream-test-spool
`), 0o600))

	cfg, err := loadConfig(&CLIConfig{ConfigPath: path, DeviceID: "from-flag", MetricsPort: 0})
	require.NoError(t, err)
	assert.Equal(t, "from-flag", cfg.DeviceID)
	assert.Equal(t, 0, cfg.Metrics.Port)

	cfg, err = loadConfig(&CLIConfig{ConfigPath: path, MetricsPort: -1})
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.DeviceID)
	assert.Equal(t, 9090, cfg.Metrics.Port)
}

func TestSetupLogger_RotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vitalstream.log")
	logger, closer := setupLogger("info", "json", path)
	logger.Info("hello from test")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from test")
	assert.Contains(t, string(data), `"service":"vitalstream"`)
}
