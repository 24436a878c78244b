package governor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/vitalstream/component"
	"github.com/c360/vitalstream/errors"
	"github.com/c360/vitalstream/metric"
	"github.com/c360/vitalstream/pkg/breaker"
	"github.com/c360/vitalstream/pkg/worker"
	"github.com/c360/vitalstream/telemetry"
)

const deadLetterTimeout = 10 * time.Second

// Deps holds runtime dependencies for the governor
type Deps struct {
	Name            string
	Config          Config
	Uploader        Uploader
	DeadLetter      Uploader       // Optional spool for abandoned and rejected batches
	Outcomes        chan<- Outcome // Optional
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
	Clock           func() time.Time // Optional, drives the breaker cool-down
}

// Governor serializes uploads behind retry and a circuit breaker
type Governor struct {
	name       string
	config     Config
	uploader   Uploader
	deadLetter Uploader
	outcomes   chan<- Outcome
	logger     *slog.Logger
	metrics    *governorMetrics
	breaker    *breaker.Breaker
	pool       *worker.Pool[telemetry.Batch]

	mu        sync.Mutex
	running   atomic.Bool
	stopped   bool
	cancel    context.CancelFunc
	spoolWG   sync.WaitGroup
	startTime time.Time

	succeeded     atomic.Int64
	abandoned     atomic.Int64
	rejected      atomic.Int64
	uploadedBytes atomic.Int64
	failures      atomic.Int64
	lastActivity  atomic.Value // time.Time
	lastError     atomic.Value // string
}

var _ component.LifecycleComponent = (*Governor)(nil)

// New creates a governor. The uploader is required.
func New(deps Deps) (*Governor, error) {
	if deps.Uploader == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("nil uploader"), "upload-governor", "New", "uploader check")
	}
	if err := deps.Config.Validate(); err != nil {
		return nil, err
	}

	name := deps.Name
	if name == "" {
		name = "upload-governor"
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", name)
	}

	g := &Governor{
		name:       name,
		config:     deps.Config,
		uploader:   deps.Uploader,
		deadLetter: deps.DeadLetter,
		outcomes:   deps.Outcomes,
		logger:     logger,
		metrics:    newGovernorMetrics(deps.MetricsRegistry, name),
		startTime:  time.Now(),
	}
	g.lastActivity.Store(time.Time{})
	g.lastError.Store("")

	opts := []breaker.Option{breaker.WithStateChange(g.onBreakerChange)}
	if deps.Clock != nil {
		opts = append(opts, breaker.WithClock(deps.Clock))
	}
	g.breaker = breaker.New(deps.Config.Breaker, opts...)
	g.metrics.recordBreaker(breaker.StateClosed)

	var poolOpts []worker.Option[telemetry.Batch]
	if deps.MetricsRegistry != nil {
		poolOpts = append(poolOpts, worker.WithMetricsRegistry[telemetry.Batch](deps.MetricsRegistry, "upload_queue"))
	}
	g.pool = worker.NewPool(1, deps.Config.QueueSize, g.process, poolOpts...)

	return g, nil
}

// BreakerState returns the circuit breaker position
func (g *Governor) BreakerState() breaker.State {
	return g.breaker.State()
}

// Submit enqueues a batch without blocking. A full or stopped queue abandons
// the batch and returns the reason.
func (g *Governor) Submit(b telemetry.Batch) error {
	err := g.pool.Submit(b)
	if err == nil {
		return nil
	}

	var cause error
	switch {
	case errors.Is(err, worker.ErrQueueFull):
		cause = errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrQueueFull, err), g.name, "Submit", "enqueue batch")
	case errors.Is(err, worker.ErrPoolStopped):
		cause = errors.WrapFatal(errors.ErrShuttingDown, g.name, "Submit", "enqueue batch")
	default:
		cause = errors.WrapFatal(fmt.Errorf("%w: %w", errors.ErrNotStarted, err), g.name, "Submit", "enqueue batch")
	}

	g.spoolWG.Add(1)
	go func() {
		defer g.spoolWG.Done()
		g.finish(b, StateAbandoned, 0, cause, 0)
	}()
	return cause
}

// process runs on the single pool worker
func (g *Governor) process(ctx context.Context, b telemetry.Batch) error {
	start := time.Now()
	attempts := g.config.Retry.Attempts()
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := g.config.Retry.Wait(ctx, attempt); err != nil {
			return g.finish(b, StateAbandoned, attempt-1, g.shutdownErr(lastErr), time.Since(start))
		}

		if err := g.breaker.Allow(); err != nil {
			rejectErr := errors.WrapTransient(err, g.name, "process", "breaker check")
			if attempt > 1 {
				return g.finish(b, StateAbandoned, attempt-1, rejectErr, time.Since(start))
			}
			return g.finish(b, StateRejected, 0, rejectErr, time.Since(start))
		}

		err := g.attempt(ctx, b)
		if err == nil {
			g.breaker.RecordSuccess()
			g.succeeded.Add(1)
			g.uploadedBytes.Add(int64(b.Size()))
			g.lastActivity.Store(time.Now())
			return g.finish(b, StateSucceeded, attempt, nil, time.Since(start))
		}

		g.breaker.RecordFailure()
		g.failures.Add(1)
		lastErr = err
		g.logger.Warn("Upload attempt failed",
			"batch_id", b.ID,
			"attempt", attempt,
			"max_attempts", attempts,
			"breaker", g.breaker.State(),
			"error", err)

		switch {
		case ctx.Err() != nil:
			return g.finish(b, StateAbandoned, attempt, g.shutdownErr(err), time.Since(start))
		case g.breaker.State() == breaker.StateOpen:
			// remaining attempts would all be rejected
			return g.finish(b, StateAbandoned, attempt,
				errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrCircuitOpen, err), g.name, "process", "upload"),
				time.Since(start))
		}
	}

	return g.finish(b, StateAbandoned, attempts,
		errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrMaxRetriesExceeded, lastErr), g.name, "process", "upload"),
		time.Since(start))
}

func (g *Governor) attempt(ctx context.Context, b telemetry.Batch) error {
	actx, cancel := context.WithTimeout(ctx, g.config.UploadTimeout)
	defer cancel()

	start := time.Now()
	err := g.uploader.Upload(actx, b)
	if err != nil && actx.Err() == context.DeadlineExceeded && ctx.Err() == nil && !errors.Is(err, errors.ErrUploadTimeout) {
		err = errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrUploadTimeout, err), g.name, "attempt", "upload")
	}

	if g.metrics != nil {
		result := "success"
		if err != nil {
			result = "error"
		}
		g.metrics.uploadDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	}
	return err
}

func (g *Governor) shutdownErr(cause error) error {
	if cause == nil {
		return errors.WrapFatal(errors.ErrShuttingDown, g.name, "process", "upload")
	}
	return errors.WrapFatal(fmt.Errorf("%w: %w", errors.ErrShuttingDown, cause), g.name, "process", "upload")
}

// finish publishes the terminal outcome and spools lost batches
func (g *Governor) finish(b telemetry.Batch, state BatchState, attempts int, err error, d time.Duration) error {
	o := Outcome{BatchID: b.ID, State: state, Attempts: attempts, Err: err, Duration: d}

	switch state {
	case StateSucceeded:
		g.logger.Debug("Batch uploaded", "batch_id", b.ID, "attempts", attempts, "bytes", b.Size())
	case StateRejected:
		g.rejected.Add(1)
		g.lastError.Store(err.Error())
		g.logger.Warn("Batch rejected, circuit open", "batch_id", b.ID, "records", b.Records)
		g.spool(b)
	default:
		g.abandoned.Add(1)
		g.lastError.Store(err.Error())
		g.logger.Error("Batch abandoned", "batch_id", b.ID, "records", b.Records, "attempts", attempts, "error", err)
		g.spool(b)
	}

	g.metrics.recordOutcome(o)
	if g.outcomes != nil {
		select {
		case g.outcomes <- o:
		default:
		}
	}

	if state == StateSucceeded {
		return nil
	}
	return errors.Wrap(errors.ErrBatchAbandoned, g.name, "process", state.String())
}

func (g *Governor) spool(b telemetry.Batch) {
	if g.deadLetter == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), deadLetterTimeout)
	defer cancel()

	result := "success"
	if err := g.deadLetter.Upload(ctx, b); err != nil {
		result = "error"
		g.logger.Error("Dead-letter spool failed, batch lost", "batch_id", b.ID, "error", err)
	}
	if g.metrics != nil {
		g.metrics.deadLettered.WithLabelValues(result).Inc()
	}
}

func (g *Governor) onBreakerChange(from, to breaker.State) {
	g.metrics.recordBreaker(to)
	switch to {
	case breaker.StateOpen:
		g.logger.Warn("Upload circuit opened", "from", from, "reset_timeout", g.config.Breaker.ResetTimeout)
	case breaker.StateHalfOpen:
		g.logger.Info("Upload circuit half-open, probing")
	case breaker.StateClosed:
		g.logger.Info("Upload circuit closed", "from", from)
	}
}

// Meta returns the component metadata
func (g *Governor) Meta() component.Metadata {
	return component.Metadata{
		Name:        g.name,
		Type:        "output",
		Description: fmt.Sprintf("Upload governor, %d attempts, breaker threshold %d", g.config.Retry.Attempts(), g.config.Breaker.FailureThreshold),
		Version:     "1.0.0",
	}
}

// Health reports degraded while the breaker is not closed
func (g *Governor) Health() component.HealthStatus {
	running := g.running.Load()
	closed := g.breaker.State() == breaker.StateClosed
	lastErr, _ := g.lastError.Load().(string)

	return component.HealthStatus{
		Healthy:    running && closed,
		Degraded:   running && !closed,
		LastCheck:  time.Now(),
		ErrorCount: int(g.abandoned.Load() + g.rejected.Load()),
		LastError:  lastErr,
		Uptime:     time.Since(g.startTime),
	}
}

// DataFlow returns upload throughput
func (g *Governor) DataFlow() component.FlowMetrics {
	succeeded := g.succeeded.Load()
	lost := g.abandoned.Load() + g.rejected.Load()
	lastActivity, _ := g.lastActivity.Load().(time.Time)

	var messagesPerSecond, bytesPerSecond, errorRate float64
	if uptime := time.Since(g.startTime).Seconds(); uptime > 0 {
		messagesPerSecond = float64(succeeded) / uptime
		bytesPerSecond = float64(g.uploadedBytes.Load()) / uptime
	}
	if total := succeeded + lost; total > 0 {
		errorRate = float64(lost) / float64(total)
	}

	return component.FlowMetrics{
		MessagesPerSecond: messagesPerSecond,
		BytesPerSecond:    bytesPerSecond,
		ErrorRate:         errorRate,
		LastActivity:      lastActivity,
	}
}

// Stats returns the worker queue statistics
func (g *Governor) Stats() worker.PoolStats {
	return g.pool.Stats()
}

// Initialize validates the configuration
func (g *Governor) Initialize() error {
	return g.config.Validate()
}

// Start launches the upload worker. Uploads outlive cancellation of ctx
// until Stop is called.
func (g *Governor) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running.Load() {
		return nil
	}
	if g.stopped {
		return errors.WrapFatal(errors.ErrShuttingDown, g.name, "Start", "state check")
	}

	workCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if err := g.pool.Start(workCtx); err != nil {
		cancel()
		return errors.WrapFatal(err, g.name, "Start", "start worker")
	}

	g.cancel = cancel
	g.startTime = time.Now()
	g.running.Store(true)
	return nil
}

// Stop drains queued batches within timeout, then cancels and abandons the rest
func (g *Governor) Stop(timeout time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.running.Load() {
		return nil
	}
	g.running.Store(false)
	g.stopped = true

	err := g.pool.Stop(timeout)
	if errors.Is(err, worker.ErrStopTimeout) {
		g.logger.Warn("Upload queue not drained before timeout, abandoning remaining batches", "timeout", timeout)
		g.cancel()
		g.pool.Wait()
		for _, b := range g.pool.Drain() {
			g.finish(b, StateAbandoned, 0, g.shutdownErr(nil), 0)
		}
		err = nil
	}
	g.cancel()
	g.spoolWG.Wait()

	if err != nil {
		return errors.Wrap(err, g.name, "Stop", "stop worker")
	}
	return nil
}
