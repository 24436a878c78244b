package sensor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/vitalstream/component"
	"github.com/c360/vitalstream/controlchannel"
	"github.com/c360/vitalstream/errors"
	"github.com/c360/vitalstream/frame"
	"github.com/c360/vitalstream/metric"
	"github.com/c360/vitalstream/pkg/timestamp"
	"github.com/c360/vitalstream/shm"
)

// Deps holds runtime dependencies for the sensor reader
type Deps struct {
	Name            string                  // Instance name
	Config          Config                  // Reader configuration
	Events          chan<- Event            // Sink for decoded frames and state changes
	MetricsRegistry *metric.MetricsRegistry // Optional
	Logger          *slog.Logger            // Optional
}

// Reader consumes frames from the producer's ring and forwards them as events
type Reader struct {
	name    string
	config  Config
	events  chan<- Event
	logger  *slog.Logger
	metrics *Metrics

	// Lifecycle management
	shutdown  chan struct{}
	done      chan struct{}
	running   atomic.Bool
	startTime time.Time
	mu        sync.RWMutex
	wg        sync.WaitGroup

	handshake *controlchannel.Handshake
	ring      *shm.Reader
	state     atomic.Int32
	lastStats shm.ReaderStats

	// warnings for per-frame conditions are capped at one per second
	warnLimiter *rate.Limiter

	frames       atomic.Int64
	bytes        atomic.Int64
	errors       atomic.Int64
	sinkDropped  atomic.Int64
	decodeErrors atomic.Int64
	lastActivity atomic.Value // time.Time
	lastError    atomic.Value // string
}

var _ component.LifecycleComponent = (*Reader)(nil)

// NewReader creates a sensor reader. The event channel is required.
func NewReader(deps Deps) (*Reader, error) {
	if deps.Events == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("nil event channel"), "sensor-reader", "NewReader", "sink check")
	}
	if err := deps.Config.Validate(); err != nil {
		return nil, err
	}

	name := deps.Name
	if name == "" {
		name = "sensor-reader"
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", name)
	}

	r := &Reader{
		name:      name,
		config:    deps.Config,
		events:    deps.Events,
		logger:    logger,
		metrics:   newMetrics(deps.MetricsRegistry, name),
		startTime: time.Now(),

		warnLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
	r.lastActivity.Store(time.Time{})
	r.lastError.Store("")
	r.metrics.recordState(StateDisconnected)
	return r, nil
}

// Meta returns the component metadata
func (r *Reader) Meta() component.Metadata {
	return component.Metadata{
		Name:        r.name,
		Type:        "input",
		Description: fmt.Sprintf("Shared-memory sensor reader on %s", r.config.SocketPath),
		Version:     "1.0.0",
	}
}

// State returns the producer connection state
func (r *Reader) State() State {
	return State(r.state.Load())
}

// Stats returns the ring counters, zero before the first handshake
func (r *Reader) Stats() shm.ReaderStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.ring == nil {
		return shm.ReaderStats{}
	}
	return r.ring.Stats()
}

// SinkDropped returns the number of events dropped on a full sink
func (r *Reader) SinkDropped() int64 {
	return r.sinkDropped.Load()
}

// Health returns the current health status of the component
func (r *Reader) Health() component.HealthStatus {
	state := r.State()
	lastErr, _ := r.lastError.Load().(string)

	return component.HealthStatus{
		Healthy:    r.running.Load() && state == StateConnected,
		Degraded:   state == StateStalled,
		LastCheck:  time.Now(),
		ErrorCount: int(r.errors.Load()),
		LastError:  lastErr,
		Uptime:     time.Since(r.startTime),
	}
}

// DataFlow returns the current data flow metrics
func (r *Reader) DataFlow() component.FlowMetrics {
	frames := r.frames.Load()
	bytes := r.bytes.Load()
	errorCount := r.errors.Load()
	lastActivity, _ := r.lastActivity.Load().(time.Time)

	var messagesPerSecond, bytesPerSecond, errorRate float64
	if uptime := time.Since(r.startTime).Seconds(); uptime > 0 {
		messagesPerSecond = float64(frames) / uptime
		bytesPerSecond = float64(bytes) / uptime
	}
	if frames > 0 {
		errorRate = float64(errorCount) / float64(frames)
	}

	return component.FlowMetrics{
		MessagesPerSecond: messagesPerSecond,
		BytesPerSecond:    bytesPerSecond,
		ErrorRate:         errorRate,
		LastActivity:      lastActivity,
	}
}

// Initialize validates the configuration
func (r *Reader) Initialize() error {
	return r.config.Validate()
}

// Start performs the handshake and begins polling. It is idempotent.
func (r *Reader) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running.Load() {
		return nil
	}

	hctx, cancel := context.WithTimeout(ctx, r.config.StartupTimeout)
	defer cancel()

	hs, err := controlchannel.Dial(hctx, r.config.SocketPath, r.config.ExpectedSize(), r.config.Handshake, r.logger)
	if err != nil {
		r.recordError(err)
		r.setState(StateDisconnected, err.Error())
		return errors.WrapTransient(err, r.name, "Start", "control channel handshake")
	}

	ring, err := shm.NewReader(hs.Segment.Data, shm.ReaderConfig{
		MaxFramesPerPoll: r.config.MaxFramesPerPoll,
		HeartbeatTimeout: r.config.HeartbeatTimeout,
		Logger:           r.logger,
	})
	if err != nil {
		_ = hs.Close()
		r.recordError(err)
		r.setState(StateDisconnected, err.Error())
		return errors.Wrap(err, r.name, "Start", "ring attach")
	}

	r.handshake = hs
	r.ring = ring
	r.lastStats = ring.Stats()
	r.shutdown = make(chan struct{})
	r.done = make(chan struct{})
	r.startTime = time.Now()
	r.running.Store(true)
	r.setState(StateConnected, "handshake complete")

	r.wg.Add(1)
	go func(done chan struct{}) {
		defer r.wg.Done()
		defer close(done)
		r.pollLoop(ctx, ring)
	}(r.done)

	return nil
}

// Stop halts polling, waits for the loop to exit and unmaps the segment.
// Safe to call multiple times.
func (r *Reader) Stop(timeout time.Duration) error {
	r.mu.Lock()
	if !r.running.Load() {
		r.mu.Unlock()
		return nil
	}
	r.running.Store(false)
	close(r.shutdown)
	done := r.done
	r.mu.Unlock()

	select {
	case <-done:
	case <-time.After(timeout):
		// The loop may still touch the mapping, so it stays mapped
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			r.name, "Stop", "graceful shutdown")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	if r.handshake != nil {
		err = r.handshake.Close()
		r.handshake = nil
	}
	if r.ring != nil {
		r.lastStats = r.ring.Stats()
	}
	r.setState(StateDisconnected, "stopped")

	if err != nil {
		return errors.Wrap(err, r.name, "Stop", "unmap segment")
	}
	return nil
}

func (r *Reader) pollLoop(ctx context.Context, ring *shm.Reader) {
	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.shutdown:
			return
		case <-ticker.C:
		}

		ring.Poll(r.handleFrame)
		r.checkLiveness(ring)
		r.syncStats(ring)
	}
}

func (r *Reader) handleFrame(f frame.Frame) {
	r.frames.Add(1)
	r.bytes.Add(int64(frame.FrameHeaderSize + len(f.Payload)))
	r.lastActivity.Store(time.Now())
	if r.metrics != nil {
		r.metrics.frames.WithLabelValues(f.Type.String()).Inc()
	}

	ev := Event{Sequence: f.Sequence, Timestamp: f.Timestamp}
	var err error

	switch f.Type {
	case frame.TypeVitals:
		ev.Kind = EventVitals
		err = ev.Vitals.UnmarshalBinary(f.Payload)
	case frame.TypeWaveform:
		ev.Kind = EventWaveform
		err = ev.Waveform.UnmarshalBinary(f.Payload)
	case frame.TypeHeartbeat:
		return
	default:
		err = fmt.Errorf("unknown frame type %s", f.Type)
	}

	if err != nil {
		r.decodeErrors.Add(1)
		r.errors.Add(1)
		if r.metrics != nil {
			r.metrics.decodeErrors.Inc()
		}
		r.logger.Debug("Dropping undecodable frame", "sequence", f.Sequence, "type", f.Type, "error", err)
		return
	}

	r.emit(ev)
}

func (r *Reader) checkLiveness(ring *shm.Reader) {
	switch ring.CheckLiveness() {
	case shm.LivenessStalled:
		age := ring.HeartbeatAge()
		r.logger.Warn("Producer heartbeat stalled", "age", age)
		r.recordError(errors.ErrProducerStalled)
		r.setState(StateStalled, fmt.Sprintf("heartbeat unchanged for %v", age.Round(time.Millisecond)))
	case shm.LivenessRecovered:
		r.logger.Info("Producer heartbeat resumed")
		r.setState(StateConnected, "heartbeat resumed")
		if r.metrics != nil {
			r.metrics.recordReconnect()
		}
	}

	if r.metrics != nil {
		r.metrics.heartbeatAge.Set(ring.HeartbeatAge().Seconds())
	}
}

// syncStats forwards counter deltas from the ring to Prometheus
func (r *Reader) syncStats(ring *shm.Reader) {
	stats := ring.Stats()
	prev := r.lastStats
	r.lastStats = stats

	if stats.Overruns > prev.Overruns || stats.Corrupted > prev.Corrupted {
		r.errors.Add(int64(stats.Overruns - prev.Overruns + stats.Corrupted - prev.Corrupted))
		if r.warnLimiter.Allow() {
			r.logger.Warn("Ring integrity loss",
				"overruns", stats.Overruns,
				"corrupted", stats.Corrupted,
				"missed", stats.Missed)
		}
	}

	if r.metrics == nil {
		return
	}
	r.metrics.corrupted.Add(float64(stats.Corrupted - prev.Corrupted))
	r.metrics.overruns.Add(float64(stats.Overruns - prev.Overruns))
	r.metrics.missed.Add(float64(stats.Missed - prev.Missed))
}

// emit never blocks the poll loop
func (r *Reader) emit(ev Event) {
	select {
	case r.events <- ev:
	default:
		dropped := r.sinkDropped.Add(1)
		if r.metrics != nil {
			r.metrics.sinkDropped.Inc()
		}
		if r.warnLimiter.Allow() {
			r.logger.Warn("Event sink full, dropping", "kind", ev.Kind, "dropped_total", dropped)
		}
	}
}

func (r *Reader) setState(s State, detail string) {
	prev := State(r.state.Swap(int32(s)))
	if prev == s && s != StateDisconnected {
		return
	}

	r.metrics.recordState(s)
	if prev != s {
		r.logger.Info("Producer state changed", "from", prev, "to", s, "detail", detail)
	}
	r.emit(Event{
		Kind:      EventStatus,
		Timestamp: timestamp.NowUint64(),
		State:     s,
		Detail:    detail,
	})
}

func (r *Reader) recordError(err error) {
	r.errors.Add(1)
	r.lastError.Store(err.Error())
}
