package batch

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/vitalstream/metric"
)

// compilerMetrics holds Prometheus metrics for the batch compiler
type compilerMetrics struct {
	batches         *prometheus.CounterVec // by trigger
	records         prometheus.Counter
	rejected        prometheus.Counter
	submitErrors    prometheus.Counter
	bufferedBytes   prometheus.Gauge
	rawBytes        prometheus.Histogram
	compressedBytes prometheus.Histogram
	sealDuration    prometheus.Histogram
}

// newCompilerMetrics creates and registers compiler metrics. A nil registry disables them.
func newCompilerMetrics(registry *metric.MetricsRegistry, serviceName string) *compilerMetrics {
	if registry == nil {
		return nil
	}

	sizeBuckets := prometheus.ExponentialBuckets(512, 2, 10) // 512B .. 256KiB

	m := &compilerMetrics{
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "batch",
			Name:      "sealed_total",
			Help:      "Batches sealed, by trigger (interval, size, manual, shutdown)",
		}, []string{"trigger"}),
		records: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "batch",
			Name:      "records_total",
			Help:      "Records accepted into batches",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "batch",
			Name:      "rejected_records_total",
			Help:      "Records rejected as malformed",
		}),
		submitErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "batch",
			Name:      "submit_errors_total",
			Help:      "Sealed batches the governor refused",
		}),
		bufferedBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "batch",
			Name:      "buffered_bytes",
			Help:      "Uncompressed bytes waiting for the next seal",
		}),
		rawBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "batch",
			Name:      "raw_bytes",
			Help:      "Uncompressed size of sealed batches",
			Buckets:   sizeBuckets,
		}),
		compressedBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "batch",
			Name:      "compressed_bytes",
			Help:      "Compressed size of sealed batches",
			Buckets:   sizeBuckets,
		}),
		sealDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "batch",
			Name:      "seal_duration_seconds",
			Help:      "Time to compress and hand off a batch",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
	}

	registry.RegisterCounterVec(serviceName, "sealed", m.batches)
	registry.RegisterCounter(serviceName, "records", m.records)
	registry.RegisterCounter(serviceName, "rejected", m.rejected)
	registry.RegisterCounter(serviceName, "submit_errors", m.submitErrors)
	registry.RegisterGauge(serviceName, "buffered_bytes", m.bufferedBytes)
	registry.RegisterHistogram(serviceName, "raw_bytes", m.rawBytes)
	registry.RegisterHistogram(serviceName, "compressed_bytes", m.compressedBytes)
	registry.RegisterHistogram(serviceName, "seal_duration", m.sealDuration)

	return m
}
