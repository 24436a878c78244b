package sensor

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/vitalstream/metric"
)

// Metrics holds Prometheus metrics for the sensor reader
type Metrics struct {
	frames       *prometheus.CounterVec
	corrupted    prometheus.Counter
	overruns     prometheus.Counter
	missed       prometheus.Counter
	sinkDropped  prometheus.Counter
	decodeErrors prometheus.Counter
	state        prometheus.Gauge
	heartbeatAge prometheus.Gauge

	core *metric.Metrics
}

// newMetrics creates and registers reader metrics. A nil registry disables them.
func newMetrics(registry *metric.MetricsRegistry, serviceName string) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "sensor",
			Name:      "frames_total",
			Help:      "Valid frames read from the ring",
		}, []string{"type"}),
		corrupted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "sensor",
			Name:      "corrupted_frames_total",
			Help:      "Frames dropped on checksum mismatch",
		}),
		overruns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "sensor",
			Name:      "overruns_total",
			Help:      "Times the producer lapped the reader",
		}),
		missed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "sensor",
			Name:      "missed_frames_total",
			Help:      "Frames missing from the sequence",
		}),
		sinkDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "sensor",
			Name:      "sink_dropped_total",
			Help:      "Events dropped because the consumer channel was full",
		}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "sensor",
			Name:      "decode_errors_total",
			Help:      "Frames with a valid checksum but an undecodable payload",
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "sensor",
			Name:      "state",
			Help:      "Producer connection state (0=disconnected, 1=connected, 2=stalled)",
		}),
		heartbeatAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "sensor",
			Name:      "heartbeat_age_seconds",
			Help:      "Time since the producer heartbeat last changed",
		}),
		core: registry.CoreMetrics(),
	}

	registry.RegisterCounterVec(serviceName, "frames", m.frames)
	registry.RegisterCounter(serviceName, "corrupted", m.corrupted)
	registry.RegisterCounter(serviceName, "overruns", m.overruns)
	registry.RegisterCounter(serviceName, "missed", m.missed)
	registry.RegisterCounter(serviceName, "sink_dropped", m.sinkDropped)
	registry.RegisterCounter(serviceName, "decode_errors", m.decodeErrors)
	registry.RegisterGauge(serviceName, "state", m.state)
	registry.RegisterGauge(serviceName, "heartbeat_age", m.heartbeatAge)

	return m
}

func (m *Metrics) recordState(s State) {
	if m == nil {
		return
	}
	m.state.Set(float64(s))
	if m.core != nil {
		m.core.RecordProducerStatus(s == StateConnected)
	}
}

func (m *Metrics) recordReconnect() {
	if m == nil || m.core == nil {
		return
	}
	m.core.RecordProducerReconnect()
}
