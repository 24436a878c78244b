package component

import (
	"log/slog"

	"github.com/c360/vitalstream/metric"
	"github.com/c360/vitalstream/pkg/security"
)

// Dependencies carries the process-wide services handed to every component
type Dependencies struct {
	MetricsRegistry *metric.MetricsRegistry // Metrics registry for Prometheus (can be nil)
	Logger          *slog.Logger            // Structured logger (can be nil, defaults to slog.Default())
	Security        security.Config         // TLS settings for servers and upload clients
	DeviceID        string                  // Identity stamped on batches and uploads
}

// GetLogger returns the configured logger or a default logger if none is provided
func (d *Dependencies) GetLogger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// GetLoggerWithComponent returns a logger configured with component context
func (d *Dependencies) GetLoggerWithComponent(componentName string) *slog.Logger {
	return d.GetLogger().With("component", componentName)
}
