package governor

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/vitalstream/metric"
	"github.com/c360/vitalstream/pkg/breaker"
)

type governorMetrics struct {
	outcomes       *prometheus.CounterVec // by state
	attempts       prometheus.Histogram
	uploadDuration *prometheus.HistogramVec // by result
	breakerState   prometheus.Gauge
	deadLettered   *prometheus.CounterVec // by result

	core *metric.Metrics
}

// newGovernorMetrics creates and registers governor metrics. A nil registry disables them.
func newGovernorMetrics(registry *metric.MetricsRegistry, serviceName string) *governorMetrics {
	if registry == nil {
		return nil
	}

	m := &governorMetrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "upload",
			Name:      "outcomes_total",
			Help:      "Terminal batch outcomes by state",
		}, []string{"state"}),
		attempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "upload",
			Name:      "attempts",
			Help:      "Upload attempts per terminal batch",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 8},
		}),
		uploadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "upload",
			Name:      "attempt_duration_seconds",
			Help:      "Duration of single upload attempts",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
		breakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "upload",
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half_open)",
		}),
		deadLettered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "upload",
			Name:      "dead_letter_total",
			Help:      "Batches handed to the dead-letter spool",
		}, []string{"result"}),
		core: registry.CoreMetrics(),
	}

	registry.RegisterCounterVec(serviceName, "outcomes", m.outcomes)
	registry.RegisterHistogram(serviceName, "attempts", m.attempts)
	registry.RegisterHistogramVec(serviceName, "attempt_duration", m.uploadDuration)
	registry.RegisterGauge(serviceName, "breaker_state", m.breakerState)
	registry.RegisterCounterVec(serviceName, "dead_letter", m.deadLettered)

	return m
}

func (m *governorMetrics) recordBreaker(s breaker.State) {
	if m == nil {
		return
	}
	m.breakerState.Set(float64(s))
	if m.core != nil {
		m.core.RecordCircuitBreakerState(int(s))
	}
}

func (m *governorMetrics) recordOutcome(o Outcome) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(o.State.String()).Inc()
	m.attempts.Observe(float64(o.Attempts))
}
