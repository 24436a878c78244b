package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/vitalstream/config"
	"github.com/c360/vitalstream/health"
	"github.com/c360/vitalstream/metric"
)

func fileTransportConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.SharedMemory.SocketPath = filepath.Join(t.TempDir(), "absent.sock")
	cfg.Control.StartupTimeout = config.Duration(100 * time.Millisecond)
	cfg.Control.MaxAttempts = 1
	cfg.Transport.Type = config.TransportFile
	cfg.Transport.File.Directory = t.TempDir()
	cfg.Batch.Interval = config.Duration(time.Hour)
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestPipeline_RunsWithoutProducer(t *testing.T) {
	cfg := fileTransportConfig(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	p, err := buildPipeline(context.Background(), cfg, metric.NewMetricsRegistry(), logger)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.group.Start(context.Background(), time.Second), "a missing producer must not stop the daemon")

	monitor := health.NewMonitor()
	monitor.Collect(p.components()...)

	reader, ok := monitor.Get(p.reader.Meta().Name)
	require.True(t, ok)
	assert.True(t, reader.IsUnhealthy())
	assert.Contains(t, reader.Message, "producer disconnected")

	for _, name := range []string{p.compiler.Meta().Name, p.governor.Meta().Name} {
		st, ok := monitor.Get(name)
		require.True(t, ok, name)
		assert.True(t, st.IsHealthy(), name)
	}

	rec := httptest.NewRecorder()
	health.Handler(monitor, appName).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "producer disconnected")

	// The compiler and governor still accept and deliver work
	require.NoError(t, p.compiler.EnqueueJSON(map[string]int{"hr": 72}))
	require.NoError(t, p.group.Stop(2*time.Second))

	entries, err := os.ReadDir(cfg.Transport.File.Directory)
	require.NoError(t, err)
	assert.NotEmpty(t, entries, "the shutdown flush reaches the file transport")
}
