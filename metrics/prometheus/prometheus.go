// Package prometheus provides a Prometheus implementation of the metrics interface.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/imrishuroy/go-idempotency/metrics"
)

// PrometheusMetrics implements the Metrics interface using Prometheus.
type PrometheusMetrics struct {
	attemptsTotal           prometheus.Counter
	replaysTotal            *prometheus.CounterVec
	conflictsTotal          prometheus.Counter
	validationFailuresTotal prometheus.Counter
	successesTotal          prometheus.Counter
	failuresTotal           prometheus.Counter
	executionDuration       *prometheus.HistogramVec
}

var _ metrics.Metrics = (*PrometheusMetrics)(nil)

// Config holds configuration for PrometheusMetrics.
type Config struct {
	// Namespace is the prefix for all metrics (e.g., "idempotency")
	Namespace string
	// Subsystem is an optional subsystem name
	Subsystem string
	// Registry is the Prometheus registry to use. If nil, the default registry is used.
	Registry prometheus.Registerer
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Namespace: "idempotency",
		Subsystem: "",
		Registry:  prometheus.DefaultRegisterer,
	}
}

// New creates a new PrometheusMetrics instance with the given configuration.
func New(cfg Config) *PrometheusMetrics {
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(cfg.Registry)

	return &PrometheusMetrics{
		attemptsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "attempts_total",
			Help:      "Total number of attempts begun",
		}),

		replaysTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "replays_total",
			Help:      "Total number of attempts served a stored response, by source",
		}, []string{"source"}),

		conflictsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "conflicts_total",
			Help:      "Total number of attempts rejected because one was in progress",
		}),

		validationFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "validation_failures_total",
			Help:      "Total number of payload fingerprint mismatches",
		}),

		successesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "successes_total",
			Help:      "Total number of completed records written",
		}),

		failuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "failures_total",
			Help:      "Total number of records deleted after failed executions",
		}),

		executionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "execution_duration_seconds",
			Help:      "Wall time of wrapped executions, by outcome",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
}

// AttemptStarted increments the attempts counter.
func (p *PrometheusMetrics) AttemptStarted() {
	p.attemptsTotal.Inc()
}

// AttemptReplayed increments the replays counter for the given source.
func (p *PrometheusMetrics) AttemptReplayed(source string) {
	p.replaysTotal.WithLabelValues(source).Inc()
}

// AttemptConflicted increments the conflicts counter.
func (p *PrometheusMetrics) AttemptConflicted() {
	p.conflictsTotal.Inc()
}

// ValidationFailed increments the validation failures counter.
func (p *PrometheusMetrics) ValidationFailed() {
	p.validationFailuresTotal.Inc()
}

// SuccessRecorded increments the successes counter.
func (p *PrometheusMetrics) SuccessRecorded() {
	p.successesTotal.Inc()
}

// FailureRecorded increments the failures counter.
func (p *PrometheusMetrics) FailureRecorded() {
	p.failuresTotal.Inc()
}

// ExecutionObserved records the execution duration for the given outcome.
func (p *PrometheusMetrics) ExecutionObserved(duration time.Duration, outcome string) {
	p.executionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}
