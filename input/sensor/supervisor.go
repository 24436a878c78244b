package sensor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/vitalstream/component"
	"github.com/c360/vitalstream/errors"
	"github.com/c360/vitalstream/pkg/retry"
)

// Supervisor keeps the pipeline up while the producer is absent. A failed
// handshake leaves the reader disconnected and is retried in the background
// until it succeeds or Stop is called.
type Supervisor struct {
	reader  *Reader
	backoff retry.Config
	logger  *slog.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	loopDone chan struct{}
}

var _ component.LifecycleComponent = (*Supervisor)(nil)

// NewSupervisor wraps r. The reader's Reconnect schedule paces the retries.
func NewSupervisor(r *Reader) *Supervisor {
	backoff := r.config.Reconnect
	if backoff.InitialDelay <= 0 {
		backoff = DefaultConfig().Reconnect
	}
	return &Supervisor{
		reader:  r,
		backoff: backoff,
		logger:  r.logger,
	}
}

// Reader returns the supervised reader
func (s *Supervisor) Reader() *Reader { return s.reader }

// Meta returns the reader's metadata
func (s *Supervisor) Meta() component.Metadata { return s.reader.Meta() }

// Health returns the reader's health with the producer state in LastError
// whenever the producer is not connected
func (s *Supervisor) Health() component.HealthStatus {
	h := s.reader.Health()
	if st := s.reader.State(); st != StateConnected {
		detail := "producer " + st.String()
		if h.LastError != "" {
			detail += ": " + h.LastError
		}
		h.LastError = detail
	}
	return h
}

// DataFlow returns the reader's flow metrics
func (s *Supervisor) DataFlow() component.FlowMetrics { return s.reader.DataFlow() }

// Initialize validates the reader configuration
func (s *Supervisor) Initialize() error { return s.reader.Initialize() }

// Start tries the handshake once. On failure it returns nil and keeps
// retrying in the background.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loopDone != nil {
		return nil
	}

	err := s.reader.Start(ctx)
	if err == nil {
		return nil
	}
	if errors.IsInvalid(err) {
		return err
	}

	s.logger.Warn("Producer unavailable, retrying in background",
		"socket", s.reader.config.SocketPath, "error", err)

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.loopDone = make(chan struct{})
	go s.reconnectLoop(loopCtx, s.loopDone)
	return nil
}

func (s *Supervisor) reconnectLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for attempt := 2; ; attempt++ {
		if err := s.backoff.Wait(ctx, attempt); err != nil {
			return
		}
		err := s.reader.Start(ctx)
		if err == nil {
			s.logger.Info("Producer connected", "attempts", attempt)
			return
		}
		if ctx.Err() != nil {
			return
		}
		s.logger.Debug("Reconnect attempt failed", "attempt", attempt, "error", err)
	}
}

// Stop ends any background retries, then stops the reader
func (s *Supervisor) Stop(timeout time.Duration) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.loopDone
	s.cancel, s.loopDone = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-time.After(timeout):
			return errors.WrapTransient(errors.New("reconnect loop did not exit"),
				s.reader.name, "Stop", "cancel reconnect")
		}
	}
	return s.reader.Stop(timeout)
}
