package sensor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/c360/vitalstream/controlchannel"
	"github.com/c360/vitalstream/frame"
	"github.com/c360/vitalstream/pkg/retry"
	"github.com/c360/vitalstream/shm"
)

// testProducer is an in-process stand-in for the sensor simulator
type testProducer struct {
	path   string
	seg    *shm.Segment
	writer *shm.Writer
	server *controlchannel.Server
}

func startProducer(t *testing.T, slots, frameSize uint32) *testProducer {
	t.Helper()
	return startProducerAt(t, socketPath(t), slots, frameSize)
}

// socketPath returns a control socket path in a fresh short temp dir
func socketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "vssensor")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return filepath.Join(dir, "ctl.sock")
}

func startProducerAt(t *testing.T, path string, slots, frameSize uint32) *testProducer {
	t.Helper()

	size := frame.SegmentSize(slots, frameSize)
	seg, err := shm.Create(size)
	require.NoError(t, err)

	w, err := shm.NewWriter(seg.Data, slots, frameSize)
	require.NoError(t, err)

	srv, err := controlchannel.NewServer(path, seg.Fd(), uint64(size), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
		_ = srv.Close()
		_ = seg.Close()
	})

	return &testProducer{path: path, seg: seg, writer: w, server: srv}
}

func testConfig(path string, slots, frameSize uint32) Config {
	cfg := DefaultConfig()
	cfg.SocketPath = path
	cfg.SlotCount = slots
	cfg.FrameSize = frameSize
	cfg.StartupTimeout = time.Second
	cfg.HeartbeatTimeout = 100 * time.Millisecond
	cfg.Handshake = retry.Config{MaxAttempts: 5, InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond, Multiplier: 2}
	return cfg
}

// nextEvent waits for the next event of the given kind, skipping others
func nextEvent(t *testing.T, events <-chan Event, kind EventKind) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", kind)
			return Event{}
		}
	}
}
