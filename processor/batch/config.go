package batch

import (
	"fmt"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/c360/vitalstream/errors"
)

// Config holds compiler settings
type Config struct {
	Interval         time.Duration `json:"interval" yaml:"interval"`
	MaxBatchBytes    int           `json:"max_batch_bytes" yaml:"max_batch_bytes"`
	CompressionLevel int           `json:"compression_level" yaml:"compression_level"`
	DeviceID         string        `json:"device_id" yaml:"device_id"`
}

// DefaultConfig returns the compiler defaults
func DefaultConfig() Config {
	return Config{
		Interval:         10 * time.Second,
		MaxBatchBytes:    64 * 1024,
		CompressionLevel: gzip.DefaultCompression,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: interval must be positive", errors.ErrInvalidConfig),
			"batch.Config", "Validate", "interval check")
	}
	if c.MaxBatchBytes <= 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: max_batch_bytes must be positive", errors.ErrInvalidConfig),
			"batch.Config", "Validate", "size limit check")
	}
	if c.CompressionLevel < gzip.HuffmanOnly || c.CompressionLevel > gzip.BestCompression {
		return errors.WrapInvalid(fmt.Errorf("%w: compression level %d", errors.ErrInvalidConfig, c.CompressionLevel),
			"batch.Config", "Validate", "compression level check")
	}
	return nil
}
