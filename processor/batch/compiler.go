package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/c360/vitalstream/component"
	"github.com/c360/vitalstream/errors"
	"github.com/c360/vitalstream/input/sensor"
	"github.com/c360/vitalstream/metric"
	"github.com/c360/vitalstream/telemetry"
)

// Seal triggers
const (
	TriggerInterval = "interval"
	TriggerSize     = "size"
	TriggerManual   = "manual"
	TriggerShutdown = "shutdown"
)

// Submitter accepts sealed batches. Submit must not block.
type Submitter interface {
	Submit(b telemetry.Batch) error
}

// Deps holds runtime dependencies for the compiler
type Deps struct {
	Name            string
	Config          Config
	Submitter       Submitter
	Events          <-chan sensor.Event // Optional record source
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
	Clock           func() time.Time
}

// Compiler buffers NDJSON records and seals them into compressed batches
type Compiler struct {
	name      string
	config    Config
	submitter Submitter
	events    <-chan sensor.Event
	logger    *slog.Logger
	metrics   *compilerMetrics
	clock     func() time.Time

	// mu guards the open buffer
	mu      sync.Mutex
	buf     []byte
	records int
	stopped bool

	// flushMu serializes seals and owns the gzip writer
	flushMu sync.Mutex
	gz      *gzip.Writer

	sizeFlush chan struct{}
	shutdown  chan struct{}
	done      chan struct{}
	running   atomic.Bool
	lifecycle sync.Mutex
	wg        sync.WaitGroup
	startTime time.Time

	accepted     atomic.Int64
	rejected     atomic.Int64
	sealed       atomic.Int64
	sealedBytes  atomic.Int64
	submitErrors atomic.Int64
	lastActivity atomic.Value // time.Time
	lastError    atomic.Value // string
}

var _ component.LifecycleComponent = (*Compiler)(nil)

// NewCompiler creates a batch compiler
func NewCompiler(deps Deps) (*Compiler, error) {
	if deps.Submitter == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("nil submitter"), "batch-compiler", "NewCompiler", "submitter check")
	}
	if err := deps.Config.Validate(); err != nil {
		return nil, err
	}

	name := deps.Name
	if name == "" {
		name = "batch-compiler"
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", name)
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	gz, err := gzip.NewWriterLevel(nil, deps.Config.CompressionLevel)
	if err != nil {
		return nil, errors.WrapInvalid(err, name, "NewCompiler", "gzip writer")
	}

	c := &Compiler{
		name:      name,
		config:    deps.Config,
		submitter: deps.Submitter,
		events:    deps.Events,
		logger:    logger,
		metrics:   newCompilerMetrics(deps.MetricsRegistry, name),
		clock:     clock,
		buf:       make([]byte, 0, deps.Config.MaxBatchBytes),
		gz:        gz,
		sizeFlush: make(chan struct{}, 1),
		startTime: clock(),
	}
	c.lastActivity.Store(time.Time{})
	c.lastError.Store("")
	return c, nil
}

// Enqueue appends one record. Records must be a single line.
func (c *Compiler) Enqueue(record []byte) error {
	if len(record) == 0 || bytes.IndexByte(record, '\n') >= 0 {
		c.rejected.Add(1)
		if c.metrics != nil {
			c.metrics.rejected.Inc()
		}
		return errors.WrapInvalid(
			fmt.Errorf("%w: record must be a single non-empty line", errors.ErrInvalidData),
			c.name, "Enqueue", "record check")
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return errors.WrapFatal(errors.ErrShuttingDown, c.name, "Enqueue", "state check")
	}
	c.buf = append(c.buf, record...)
	c.buf = append(c.buf, '\n')
	c.records++
	buffered := len(c.buf)
	c.mu.Unlock()

	c.accepted.Add(1)
	c.lastActivity.Store(c.clock())
	if c.metrics != nil {
		c.metrics.records.Inc()
		c.metrics.bufferedBytes.Set(float64(buffered))
	}

	if buffered >= c.config.MaxBatchBytes {
		select {
		case c.sizeFlush <- struct{}{}:
		default:
		}
	}
	return nil
}

// EnqueueJSON marshals v and enqueues it
func (c *Compiler) EnqueueJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		c.rejected.Add(1)
		if c.metrics != nil {
			c.metrics.rejected.Inc()
		}
		return errors.WrapInvalid(err, c.name, "EnqueueJSON", "marshal record")
	}
	return c.Enqueue(data)
}

// Buffered returns the pending record count and uncompressed bytes
func (c *Compiler) Buffered() (records, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.records, len(c.buf)
}

// Flush seals the buffer now. An empty buffer is not an error.
func (c *Compiler) Flush() error {
	return c.flush(TriggerManual)
}

func (c *Compiler) flush(trigger string) error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	c.mu.Lock()
	if c.records == 0 {
		c.mu.Unlock()
		return nil
	}
	raw, records := c.buf, c.records
	c.buf = make([]byte, 0, c.config.MaxBatchBytes)
	c.records = 0
	c.mu.Unlock()

	start := time.Now()
	b, err := c.seal(raw, records)
	if err != nil {
		c.recordError(err)
		return err
	}

	if err := c.submitter.Submit(b); err != nil {
		c.submitErrors.Add(1)
		c.recordError(err)
		if c.metrics != nil {
			c.metrics.submitErrors.Inc()
		}
		c.logger.Warn("Batch not accepted for upload", "batch_id", b.ID, "records", records, "error", err)
		return errors.Wrap(err, c.name, "flush", "submit batch")
	}

	c.sealed.Add(1)
	c.sealedBytes.Add(int64(b.Size()))
	if c.metrics != nil {
		c.metrics.batches.WithLabelValues(trigger).Inc()
		c.metrics.rawBytes.Observe(float64(b.RawBytes))
		c.metrics.compressedBytes.Observe(float64(b.Size()))
		c.metrics.sealDuration.Observe(time.Since(start).Seconds())
		c.metrics.bufferedBytes.Set(0)
	}
	c.logger.Debug("Batch sealed",
		"batch_id", b.ID,
		"trigger", trigger,
		"records", records,
		"raw_bytes", b.RawBytes,
		"compressed_bytes", b.Size())
	return nil
}

// seal compresses raw into an immutable batch. Caller holds flushMu.
func (c *Compiler) seal(raw []byte, records int) (telemetry.Batch, error) {
	var out bytes.Buffer
	out.Grow(len(raw) / 4)
	c.gz.Reset(&out)

	if _, err := c.gz.Write(raw); err != nil {
		return telemetry.Batch{}, errors.WrapFatal(err, c.name, "seal", "gzip write")
	}
	if err := c.gz.Close(); err != nil {
		return telemetry.Batch{}, errors.WrapFatal(err, c.name, "seal", "gzip close")
	}

	return telemetry.Batch{
		ID:        uuid.NewString(),
		DeviceID:  c.config.DeviceID,
		CreatedAt: c.clock().UTC(),
		Records:   records,
		RawBytes:  len(raw),
		Encoding:  telemetry.EncodingGzip,
		Payload:   out.Bytes(),
	}, nil
}

// Meta returns the component metadata
func (c *Compiler) Meta() component.Metadata {
	return component.Metadata{
		Name:        c.name,
		Type:        "processor",
		Description: fmt.Sprintf("NDJSON batch compiler sealing every %v or %d bytes", c.config.Interval, c.config.MaxBatchBytes),
		Version:     "1.0.0",
	}
}

// Health returns the current health status of the component
func (c *Compiler) Health() component.HealthStatus {
	lastErr, _ := c.lastError.Load().(string)
	return component.HealthStatus{
		Healthy:    c.running.Load(),
		LastCheck:  time.Now(),
		ErrorCount: int(c.rejected.Load() + c.submitErrors.Load()),
		LastError:  lastErr,
		Uptime:     time.Since(c.startTime),
	}
}

// DataFlow returns the current data flow metrics
func (c *Compiler) DataFlow() component.FlowMetrics {
	accepted := c.accepted.Load()
	errorCount := c.rejected.Load() + c.submitErrors.Load()
	lastActivity, _ := c.lastActivity.Load().(time.Time)

	var messagesPerSecond, bytesPerSecond, errorRate float64
	if uptime := time.Since(c.startTime).Seconds(); uptime > 0 {
		messagesPerSecond = float64(accepted) / uptime
		bytesPerSecond = float64(c.sealedBytes.Load()) / uptime
	}
	if total := accepted + c.rejected.Load(); total > 0 {
		errorRate = float64(errorCount) / float64(total)
	}

	return component.FlowMetrics{
		MessagesPerSecond: messagesPerSecond,
		BytesPerSecond:    bytesPerSecond,
		ErrorRate:         errorRate,
		LastActivity:      lastActivity,
	}
}

// Initialize validates the configuration
func (c *Compiler) Initialize() error {
	return c.config.Validate()
}

// Start runs the interval and size triggers, and the event consumer when configured
func (c *Compiler) Start(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.running.Load() {
		return nil
	}

	c.mu.Lock()
	stopped := c.stopped
	c.mu.Unlock()
	if stopped {
		return errors.WrapFatal(errors.ErrShuttingDown, c.name, "Start", "state check")
	}

	c.shutdown = make(chan struct{})
	c.done = make(chan struct{})
	c.startTime = c.clock()
	c.running.Store(true)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.flushLoop(ctx)
	}()

	if c.events != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.consumeLoop(ctx)
		}()
	}

	go func(done chan struct{}) {
		c.wg.Wait()
		close(done)
	}(c.done)

	return nil
}

// Stop ends the triggers, drains queued events and seals the remaining
// buffer exactly once. Later Enqueue calls fail.
func (c *Compiler) Stop(timeout time.Duration) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if c.running.Load() {
		c.running.Store(false)
		close(c.shutdown)

		select {
		case <-c.done:
		case <-time.After(timeout):
			return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
				c.name, "Stop", "graceful shutdown")
		}
	}

	// The loops may have exited on ctx before the producer's last events
	// (the reader's final status among them) were queued.
	if c.events != nil {
		c.drainEvents()
	}

	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()

	return c.flush(TriggerShutdown)
}

func (c *Compiler) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case <-ticker.C:
			_ = c.flush(TriggerInterval)
		case <-c.sizeFlush:
			c.mu.Lock()
			full := len(c.buf) >= c.config.MaxBatchBytes
			c.mu.Unlock()
			if full {
				_ = c.flush(TriggerSize)
			}
		}
	}
}

func (c *Compiler) consumeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.drainEvents()
			return
		case <-c.shutdown:
			c.drainEvents()
			return
		case ev, ok := <-c.events:
			if !ok {
				return
			}
			c.enqueueEvent(ev)
		}
	}
}

// drainEvents enqueues what is already waiting without blocking for more
func (c *Compiler) drainEvents() {
	for {
		select {
		case ev, ok := <-c.events:
			if !ok {
				return
			}
			c.enqueueEvent(ev)
		default:
			return
		}
	}
}

func (c *Compiler) enqueueEvent(ev sensor.Event) {
	rec, ok := recordFor(c.config.DeviceID, ev)
	if !ok {
		return
	}
	if err := c.EnqueueJSON(rec); err != nil {
		c.logger.Debug("Dropping event", "kind", ev.Kind, "sequence", ev.Sequence, "error", err)
	}
}

func (c *Compiler) recordError(err error) {
	c.lastError.Store(err.Error())
}
