// internal/monitoring/metrics.go
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus instrumentation for the pipeline. All methods
// are nil-safe so instrumentation stays optional.
type Metrics struct {
	registry *prometheus.Registry

	stageDuration *prometheus.HistogramVec
	stageErrors   *prometheus.CounterVec
	unitsStarted  prometheus.Counter
	outcomes      *prometheus.CounterVec
	retries       prometheus.Counter
}

// NewMetrics creates a metrics set on its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "boomscraper"
	}

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		stageErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_errors_total",
			Help:      "Stage failures by stage name",
		}, []string{"stage"}),
		unitsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "units_started_total",
			Help:      "Units of work started",
		}),
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "outcomes_total",
			Help:      "Terminal delivery outcomes by state",
		}, []string{"state"}),
		retries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "retries_total",
			Help:      "Delivery retry attempts performed",
		}),
	}
}

// Registry exposes the underlying registry for the HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// UnitStarted records the start of one unit of work.
func (m *Metrics) UnitStarted() {
	if m == nil {
		return
	}
	m.unitsStarted.Inc()
}

// ObserveStage records the duration and success of one stage execution.
func (m *Metrics) ObserveStage(stage string, elapsed time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	if failed {
		m.stageErrors.WithLabelValues(stage).Inc()
	}
}

// RecordOutcome records a terminal delivery outcome and its retries.
func (m *Metrics) RecordOutcome(state string, retries int) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(state).Inc()
	m.retries.Add(float64(retries))
}
