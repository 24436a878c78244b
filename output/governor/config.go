package governor

import (
	"fmt"
	"time"

	"github.com/c360/vitalstream/errors"
	"github.com/c360/vitalstream/pkg/breaker"
	"github.com/c360/vitalstream/pkg/retry"
)

// Config holds governor settings
type Config struct {
	Retry         retry.Config
	Breaker       breaker.Config
	QueueSize     int
	UploadTimeout time.Duration // per attempt, on top of any adapter timeout
}

// DefaultConfig returns 3 attempts (waits of 1s then 2s, so attempts at
// t=0, 1s and 3s), breaker threshold 3 and a 64-batch queue
func DefaultConfig() Config {
	return Config{
		Retry: retry.Config{
			MaxAttempts:  3,
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
		Breaker:       breaker.DefaultConfig(),
		QueueSize:     64,
		UploadTimeout: 30 * time.Second,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if err := c.Retry.Validate(); err != nil {
		return errors.WrapInvalid(err, "governor.Config", "Validate", "retry check")
	}
	if c.Retry.MaxAttempts < 1 {
		return errors.WrapInvalid(fmt.Errorf("%w: max_attempts must be at least 1", errors.ErrInvalidConfig),
			"governor.Config", "Validate", "retry check")
	}
	if c.Breaker.FailureThreshold < 1 {
		return errors.WrapInvalid(fmt.Errorf("%w: failure_threshold must be at least 1", errors.ErrInvalidConfig),
			"governor.Config", "Validate", "breaker check")
	}
	if c.QueueSize < 1 {
		return errors.WrapInvalid(fmt.Errorf("%w: queue_size must be at least 1", errors.ErrInvalidConfig),
			"governor.Config", "Validate", "queue check")
	}
	if c.UploadTimeout <= 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: upload timeout must be positive", errors.ErrInvalidConfig),
			"governor.Config", "Validate", "timeout check")
	}
	return nil
}
