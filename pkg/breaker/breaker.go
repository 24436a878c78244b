// Package breaker provides a consecutive-failure circuit breaker shared by all
// uploads to one endpoint.
package breaker

import (
	"sync"
	"time"

	"github.com/c360/vitalstream/errors"
)

// State is the breaker position
type State int

// Breaker states
const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds breaker thresholds
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold"`
	// ResetTimeout is how long the breaker stays open before one probe is allowed.
	// Zero keeps it open until RecordSuccess is called.
	ResetTimeout time.Duration `json:"reset_timeout" yaml:"reset_timeout"`
}

// DefaultConfig returns threshold 3 with a 30s cool-down
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 3,
		ResetTimeout:     30 * time.Second,
	}
}

// Option configures a Breaker
type Option func(*Breaker)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		b.now = now
	}
}

// WithStateChange registers a callback invoked on every transition.
// It runs with the breaker lock released.
func WithStateChange(fn func(from, to State)) Option {
	return func(b *Breaker) {
		b.onChange = fn
	}
}

// Breaker counts consecutive failures across callers
type Breaker struct {
	mu       sync.Mutex
	cfg      Config
	state    State
	failures int
	openedAt time.Time
	probing  bool

	now      func() time.Time
	onChange func(from, to State)
}

// New creates a closed breaker
func New(cfg Config, opts ...Option) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}

	b := &Breaker{
		cfg: cfg,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Allow reports whether an attempt may go on the wire. It returns
// errors.ErrCircuitOpen when the attempt must be rejected.
func (b *Breaker) Allow() error {
	b.mu.Lock()

	switch b.state {
	case StateClosed:
		b.mu.Unlock()
		return nil
	case StateOpen:
		if b.cfg.ResetTimeout > 0 && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
			b.probing = true
			b.transitionLocked(StateHalfOpen)
			return nil
		}
	case StateHalfOpen:
		if !b.probing {
			b.probing = true
			b.mu.Unlock()
			return nil
		}
	}

	b.mu.Unlock()
	return errors.ErrCircuitOpen
}

// RecordSuccess closes the breaker and resets the failure counter
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	b.failures = 0
	b.probing = false
	if b.state == StateClosed {
		b.mu.Unlock()
		return
	}
	b.transitionLocked(StateClosed)
}

// RecordFailure counts a failed attempt and opens the breaker at the threshold.
// A failed half-open probe re-opens it immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	b.failures++
	b.probing = false

	switch {
	case b.state == StateHalfOpen,
		b.state == StateClosed && b.failures >= b.cfg.FailureThreshold:
		b.openedAt = b.now()
		b.transitionLocked(StateOpen)
	case b.state == StateOpen:
		b.openedAt = b.now()
		b.mu.Unlock()
	default:
		b.mu.Unlock()
	}
}

// State returns the current position
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the consecutive failure count
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// transitionLocked changes state and releases the lock before notifying
func (b *Breaker) transitionLocked(to State) {
	from := b.state
	b.state = to
	fn := b.onChange
	b.mu.Unlock()

	if fn != nil && from != to {
		fn(from, to)
	}
}
