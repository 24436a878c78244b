package sensor

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/vitalstream/errors"
	"github.com/c360/vitalstream/frame"
	"github.com/c360/vitalstream/metric"
)

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.FrameSize = frame.MinFrameSize - 1
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.SocketPath = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.PollInterval = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	assert.Equal(t, uint64(frame.SegmentSize(2048, 512)), cfg.ExpectedSize())
	cfg.SlotCount = 0
	assert.Zero(t, cfg.ExpectedSize())
}

func TestNewReader_RequiresSink(t *testing.T) {
	_, err := NewReader(Deps{Config: DefaultConfig()})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestReader_StartFailsWithoutProducer(t *testing.T) {
	events := make(chan Event, 8)
	cfg := testConfig("/tmp/vitalstream-missing-producer.sock", 0, 0)
	cfg.StartupTimeout = 100 * time.Millisecond

	r, err := NewReader(Deps{Config: cfg, Events: events})
	require.NoError(t, err)

	start := time.Now()
	err = r.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrHandshakeFailed)
	assert.Less(t, time.Since(start), time.Second)

	assert.Equal(t, StateDisconnected, r.State())
	ev := nextEvent(t, events, EventStatus)
	assert.Equal(t, StateDisconnected, ev.State)
	assert.False(t, r.Health().Healthy)
	assert.NotEmpty(t, r.Health().LastError)

	assert.NoError(t, r.Stop(time.Second), "stop without start is a no-op")
}

func TestReader_DeliversFrames(t *testing.T) {
	p := startProducer(t, 64, frame.MinFrameSize)
	events := make(chan Event, 64)

	r, err := NewReader(Deps{Config: testConfig(p.path, 64, frame.MinFrameSize), Events: events})
	require.NoError(t, err)
	require.NoError(t, r.Initialize())
	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Start(context.Background()), "start is idempotent")

	ev := nextEvent(t, events, EventStatus)
	assert.Equal(t, StateConnected, ev.State)
	assert.Equal(t, StateConnected, r.State())
	assert.True(t, r.Health().Healthy)

	_, err = p.writer.WriteVitals(1000, frame.VitalsPayload{HeartRate: 72, SpO2: 97, RespRate: 16, SampleTimestamp: 999})
	require.NoError(t, err)

	wf := &frame.WaveformPayload{Channel: frame.ChannelECG, SampleRate: 250, StartTimestamp: 1000, Count: 2}
	wf.Samples[0], wf.Samples[1] = 0.5, -0.5
	_, err = p.writer.WriteWaveform(1001, wf)
	require.NoError(t, err)

	_, err = p.writer.Write(frame.TypeHeartbeat, 1002, nil)
	require.NoError(t, err)

	vitals := nextEvent(t, events, EventVitals)
	assert.Equal(t, uint64(0), vitals.Sequence)
	assert.Equal(t, uint64(1000), vitals.Timestamp)
	assert.Equal(t, float32(72), vitals.Vitals.HeartRate)
	assert.Equal(t, int64(999), vitals.Vitals.SampleTimestamp)

	wave := nextEvent(t, events, EventWaveform)
	assert.Equal(t, uint64(1), wave.Sequence)
	assert.Equal(t, *wf, wave.Waveform)

	require.Eventually(t, func() bool { return r.Stats().Frames == 3 }, time.Second, 5*time.Millisecond)
	assert.Greater(t, r.DataFlow().MessagesPerSecond, 0.0)
	assert.False(t, r.DataFlow().LastActivity.IsZero())

	require.NoError(t, r.Stop(time.Second))
	require.NoError(t, r.Stop(time.Second), "stop is idempotent")
	assert.Equal(t, StateDisconnected, r.State())
	assert.Equal(t, uint64(3), r.Stats().Frames, "stats survive stop")
}

func TestReader_UnknownFrameTypeCounted(t *testing.T) {
	p := startProducer(t, 16, frame.MinFrameSize)
	events := make(chan Event, 16)

	r, err := NewReader(Deps{Config: testConfig(p.path, 16, frame.MinFrameSize), Events: events})
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop(time.Second)

	_, err = p.writer.Write(frame.Type(0x7F), 1, []byte{1, 2, 3})
	require.NoError(t, err)
	_, err = p.writer.Write(frame.TypeVitals, 2, []byte{1, 2, 3})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return r.decodeErrors.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestReader_HeartbeatStallAndRecovery(t *testing.T) {
	p := startProducer(t, 16, frame.MinFrameSize)
	events := make(chan Event, 64)

	r, err := NewReader(Deps{Config: testConfig(p.path, 16, frame.MinFrameSize), Events: events})
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop(time.Second)

	assert.Equal(t, StateConnected, nextEvent(t, events, EventStatus).State)

	// no heartbeat runs, so the producer stalls after HeartbeatTimeout
	stalled := nextEvent(t, events, EventStatus)
	assert.Equal(t, StateStalled, stalled.State)
	assert.Contains(t, stalled.Detail, "heartbeat")
	assert.Equal(t, StateStalled, r.State())

	h := r.Health()
	assert.False(t, h.Healthy)
	assert.True(t, h.Degraded)

	p.writer.Beat()
	recovered := nextEvent(t, events, EventStatus)
	assert.Equal(t, StateConnected, recovered.State)
	assert.True(t, r.Health().Healthy)
}

func TestReader_FullSinkNeverBlocks(t *testing.T) {
	p := startProducer(t, 64, frame.MinFrameSize)
	events := make(chan Event, 1)
	var logs bytes.Buffer

	r, err := NewReader(Deps{
		Config: testConfig(p.path, 64, frame.MinFrameSize),
		Events: events,
		Logger: slog.New(slog.NewTextHandler(&logs, nil)),
	})
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))

	// the connected status event already fills the sink
	for i := 0; i < 20; i++ {
		_, err := p.writer.WriteVitals(uint64(i), frame.VitalsPayload{HeartRate: 60})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return r.Stats().Frames == 20 }, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, r.SinkDropped(), int64(20))

	require.NoError(t, r.Stop(time.Second))
	warnings := strings.Count(logs.String(), "Event sink full")
	assert.GreaterOrEqual(t, warnings, 1)
	assert.LessOrEqual(t, warnings, 3, "drop warnings are rate limited")
}

func TestReader_SizeMismatchFailsStart(t *testing.T) {
	p := startProducer(t, 16, frame.MinFrameSize)
	events := make(chan Event, 8)

	cfg := testConfig(p.path, 32, frame.MinFrameSize)
	cfg.Handshake.MaxAttempts = 2
	r, err := NewReader(Deps{Config: cfg, Events: events})
	require.NoError(t, err)

	err = r.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateDisconnected, r.State())
}

func TestReader_Metrics(t *testing.T) {
	p := startProducer(t, 16, frame.MinFrameSize)
	events := make(chan Event, 64)
	registry := metric.NewMetricsRegistry()

	r, err := NewReader(Deps{
		Config:          testConfig(p.path, 16, frame.MinFrameSize),
		Events:          events,
		MetricsRegistry: registry,
	})
	require.NoError(t, err)
	require.NotNil(t, r.metrics)
	assert.Equal(t, 0.0, testutil.ToFloat64(r.metrics.state))

	require.NoError(t, r.Start(context.Background()))
	defer r.Stop(time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.metrics.state))
	assert.Equal(t, 1.0, testutil.ToFloat64(registry.CoreMetrics().ProducerConnected))

	for i := 0; i < 3; i++ {
		_, err := p.writer.WriteVitals(uint64(i), frame.VitalsPayload{HeartRate: 60})
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(r.metrics.frames.WithLabelValues("vitals")) == 3
	}, time.Second, 5*time.Millisecond)

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	byName := make(map[string]*dto.MetricFamily)
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}
	framesFamily := byName["vitalstream_sensor_frames_total"]
	require.NotNil(t, framesFamily, "frames counter should be registered")
	assert.Equal(t, dto.MetricType_COUNTER, framesFamily.GetType())
	require.Len(t, framesFamily.GetMetric(), 1)
	assert.Equal(t, "vitals", framesFamily.GetMetric()[0].GetLabel()[0].GetValue())
	assert.Equal(t, 3.0, framesFamily.GetMetric()[0].GetCounter().GetValue())

	// no heartbeat runs, so the reader stalls
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(r.metrics.state) == float64(StateStalled)
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(registry.CoreMetrics().ProducerConnected))

	p.writer.Beat()
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(registry.CoreMetrics().ProducerReconnects) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestReader_StopCancelsOnContext(t *testing.T) {
	p := startProducer(t, 16, frame.MinFrameSize)
	events := make(chan Event, 16)

	r, err := NewReader(Deps{Config: testConfig(p.path, 16, frame.MinFrameSize), Events: events})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, r.Start(ctx))
	cancel()

	require.NoError(t, r.Stop(time.Second))
}
