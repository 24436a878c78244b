package sensor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/vitalstream/frame"
	"github.com/c360/vitalstream/pkg/timestamp"
	"github.com/c360/vitalstream/shm"
)

// Producer at 60 Hz for 2 s with the default ring geometry. The reader must
// see nearly every frame with no corruption and no overruns.
func TestEndToEnd_SixtyHertz(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping timing test in short mode")
	}

	p := startProducer(t, frame.DefaultSlotCount, frame.DefaultFrameSize)

	hbCtx, hbCancel := context.WithCancel(context.Background())
	defer hbCancel()
	go p.writer.RunHeartbeat(hbCtx, shm.DefaultHeartbeatInterval)

	events := make(chan Event, 4096)
	cfg := testConfig(p.path, frame.DefaultSlotCount, frame.DefaultFrameSize)
	cfg.HeartbeatTimeout = 250 * time.Millisecond

	r, err := NewReader(Deps{Config: cfg, Events: events})
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))

	const total = 120
	ticker := time.NewTicker(time.Second / 60)
	for i := 0; i < total; i++ {
		<-ticker.C
		_, err := p.writer.WriteVitals(timestamp.NowUint64(), frame.VitalsPayload{
			HeartRate:       float32(60 + i%20),
			SpO2:            98,
			RespRate:        14,
			SampleTimestamp: timestamp.Now(),
		})
		require.NoError(t, err)
	}
	ticker.Stop()

	require.Eventually(t, func() bool { return r.Stats().Frames >= total }, time.Second, 10*time.Millisecond)
	require.NoError(t, r.Stop(time.Second))

	vitals := 0
	stalled := false
	for len(events) > 0 {
		ev := <-events
		switch ev.Kind {
		case EventVitals:
			vitals++
		case EventStatus:
			if ev.State == StateStalled {
				stalled = true
			}
		}
	}

	stats := r.Stats()
	assert.GreaterOrEqual(t, vitals, 115)
	assert.Zero(t, stats.Corrupted)
	assert.Zero(t, stats.Overruns)
	assert.Zero(t, stats.Missed)
	assert.Equal(t, uint64(total-1), stats.LastSequence)
	assert.False(t, stalled, "heartbeat kept the producer alive")
	assert.Zero(t, r.SinkDropped())
}
