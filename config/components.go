package config

import (
	"github.com/c360/vitalstream/input/sensor"
	"github.com/c360/vitalstream/output/fileupload"
	"github.com/c360/vitalstream/output/governor"
	"github.com/c360/vitalstream/output/httpupload"
	"github.com/c360/vitalstream/output/natsupload"
	"github.com/c360/vitalstream/pkg/breaker"
	"github.com/c360/vitalstream/pkg/retry"
	"github.com/c360/vitalstream/processor/batch"
)

// SensorConfig returns the reader configuration
func (c *Config) SensorConfig() sensor.Config {
	cfg := sensor.DefaultConfig()
	cfg.SocketPath = c.SharedMemory.SocketPath
	cfg.SlotCount = c.SharedMemory.SlotCount
	cfg.FrameSize = c.SharedMemory.FrameSize
	cfg.StartupTimeout = c.Control.StartupTimeout.Std()
	cfg.PollInterval = c.Reader.PollInterval.Std()
	cfg.HeartbeatTimeout = c.Reader.HeartbeatTimeout.Std()
	cfg.MaxFramesPerPoll = c.Reader.MaxFramesPerPoll
	cfg.Handshake = retry.Config{
		MaxAttempts:  c.Control.MaxAttempts,
		InitialDelay: c.Control.InitialDelay.Std(),
		MaxDelay:     c.Control.MaxDelay.Std(),
		Multiplier:   1.5,
		AddJitter:    true,
	}
	return cfg
}

// BatchConfig returns the compiler configuration
func (c *Config) BatchConfig() batch.Config {
	return batch.Config{
		Interval:         c.Batch.Interval.Std(),
		MaxBatchBytes:    c.Batch.MaxBatchBytes,
		CompressionLevel: c.Batch.CompressionLevel,
		DeviceID:         c.DeviceID,
	}
}

// GovernorConfig returns the upload governor configuration
func (c *Config) GovernorConfig() governor.Config {
	g := c.Governor
	return governor.Config{
		Retry: retry.Config{
			MaxAttempts:  g.MaxAttempts,
			InitialDelay: g.InitialDelay.Std(),
			MaxDelay:     g.MaxDelay.Std(),
			Multiplier:   g.Multiplier,
			AddJitter:    g.Jitter,
		},
		Breaker: breaker.Config{
			FailureThreshold: g.FailureThreshold,
			ResetTimeout:     g.ResetTimeout.Std(),
		},
		QueueSize:     g.QueueSize,
		UploadTimeout: g.UploadTimeout.Std(),
	}
}

// HTTPConfig returns the HTTP adapter configuration
func (c *Config) HTTPConfig() httpupload.Config {
	cfg := httpupload.DefaultConfig()
	cfg.URL = c.Transport.HTTP.URL
	if c.Transport.HTTP.Timeout > 0 {
		cfg.Timeout = c.Transport.HTTP.Timeout.Std()
	}
	for k, v := range c.Transport.HTTP.Headers {
		cfg.Headers[k] = v
	}
	cfg.SigningKey = c.Transport.HTTP.SigningKey
	cfg.AllowInsecure = c.Transport.HTTP.AllowInsecure
	cfg.TLS = c.Security.TLS.Client
	if cfg.TLS.MinVersion == "" {
		cfg.TLS.MinVersion = "1.2"
	}
	return cfg
}

// FileConfig returns the file adapter configuration
func (c *Config) FileConfig() fileupload.Config {
	return fileupload.Config{
		Directory: c.Transport.File.Directory,
		Prefix:    orDefault(c.Transport.File.Prefix, "batch"),
	}
}

// NATSConfig returns the JetStream adapter configuration
func (c *Config) NATSConfig() natsupload.Config {
	cfg := natsupload.DefaultConfig()
	n := c.Transport.NATS
	cfg.URL = n.URL
	cfg.Subject = n.Subject
	cfg.Stream = n.Stream
	cfg.Username = n.Username
	cfg.Password = n.Password
	cfg.Token = n.Token
	cfg.TLS = c.Security.TLS.Client
	return cfg
}

// DeadLetterSpoolConfig returns the dead-letter file adapter configuration
func (c *Config) DeadLetterSpoolConfig() fileupload.Config {
	return fileupload.Config{
		Directory: c.DeadLetter.Directory,
		Prefix:    orDefault(c.DeadLetter.Prefix, "dead"),
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
