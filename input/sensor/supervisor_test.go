package sensor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/vitalstream/frame"
	"github.com/c360/vitalstream/pkg/retry"
)

func newSupervisedReader(t *testing.T, path string) (*Supervisor, *Reader, chan Event) {
	t.Helper()

	cfg := testConfig(path, 64, frame.MinFrameSize)
	cfg.StartupTimeout = 100 * time.Millisecond
	cfg.Handshake = retry.Config{MaxAttempts: 1}
	cfg.Reconnect = retry.Config{InitialDelay: 20 * time.Millisecond, MaxDelay: 50 * time.Millisecond, Multiplier: 2}

	events := make(chan Event, 256)
	r, err := NewReader(Deps{Config: cfg, Events: events})
	require.NoError(t, err)

	s := NewSupervisor(r)
	require.NoError(t, s.Initialize())
	return s, r, events
}

func TestSupervisor_StartsWithoutProducer(t *testing.T) {
	path := socketPath(t)
	s, r, events := newSupervisedReader(t, path)

	require.NoError(t, s.Start(context.Background()), "a missing producer is not fatal")
	t.Cleanup(func() { _ = s.Stop(time.Second) })

	assert.Equal(t, StateDisconnected, r.State())
	assert.False(t, s.Health().Healthy)
	assert.True(t, strings.HasPrefix(s.Health().LastError, "producer disconnected"))
	assert.Equal(t, StateDisconnected, nextEvent(t, events, EventStatus).State)

	startProducerAt(t, path, 64, frame.MinFrameSize)

	require.Eventually(t, func() bool {
		return r.State() == StateConnected
	}, 3*time.Second, 10*time.Millisecond, "background retries should reach the producer")
	assert.True(t, s.Health().Healthy)

	require.NoError(t, s.Stop(time.Second))
	assert.Equal(t, StateDisconnected, r.State())
}

func TestSupervisor_ConnectsImmediatelyWhenProducerUp(t *testing.T) {
	p := startProducer(t, 64, frame.MinFrameSize)
	s, r, _ := newSupervisedReader(t, p.path)

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, StateConnected, r.State())
	assert.Same(t, r, s.Reader())
	assert.Equal(t, r.Meta().Name, s.Meta().Name)

	require.NoError(t, s.Stop(time.Second))
}

func TestSupervisor_StopEndsRetries(t *testing.T) {
	s, r, _ := newSupervisedReader(t, socketPath(t))

	require.NoError(t, s.Start(context.Background()))

	start := time.Now()
	require.NoError(t, s.Stop(time.Second))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StateDisconnected, r.State())

	assert.NoError(t, s.Stop(time.Second), "second stop is a no-op")
}

func TestSupervisor_InvalidConfigStillFails(t *testing.T) {
	events := make(chan Event, 1)
	r, err := NewReader(Deps{Config: testConfig(socketPath(t), 64, frame.MinFrameSize), Events: events})
	require.NoError(t, err)

	r.config.PollInterval = 0
	assert.Error(t, NewSupervisor(r).Initialize())
}
