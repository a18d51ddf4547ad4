// Package metrics exposes Prometheus collectors for the validation pipeline.
// A Collector implements validator.Observer so stage timings flow in without
// the pipeline knowing about Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Validation outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// Config names the metrics and sets histogram buckets.
type Config struct {
	Namespace string
	Subsystem string
	// Buckets in seconds. Default: 1ms to 10s.
	Buckets []float64
}

// Collector records validation metrics into its own registry.
type Collector struct {
	registry *prometheus.Registry

	validations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	stages      *prometheus.HistogramVec
	findings    prometheus.Counter
	cachePurges prometheus.Counter
}

// NewCollector registers the collectors on registry, or on a fresh registry
// when nil.
func NewCollector(cfg Config, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "formvalidate"
	}
	if len(cfg.Buckets) == 0 {
		cfg.Buckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	}

	c := &Collector{
		registry: registry,
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "validations_total",
			Help:      "Submissions validated, by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "validation_duration_seconds",
			Help:      "End to end validation latency.",
			Buckets:   cfg.Buckets,
		}, []string{"outcome"}),
		stages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage latency.",
			Buckets:   cfg.Buckets,
		}, []string{"stage", "status"}),
		findings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "findings_total",
			Help:      "Validation findings reported to callers.",
		}),
		cachePurges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "form_cache_purged_total",
			Help:      "Form cache entries dropped by scheduled purges.",
		}),
	}
	registry.MustRegister(c.validations, c.duration, c.stages, c.findings, c.cachePurges)
	return c
}

// ObserveStage implements validator.Observer.
func (c *Collector) ObserveStage(stage string, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.stages.WithLabelValues(stage, status).Observe(elapsed.Seconds())
}

// ObserveValidation records one completed ValidateSubmission call.
func (c *Collector) ObserveValidation(outcome string, elapsed time.Duration, findings int) {
	c.validations.WithLabelValues(outcome).Inc()
	c.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	if findings > 0 {
		c.findings.Add(float64(findings))
	}
}

// ObserveCachePurge records entries dropped from the form cache.
func (c *Collector) ObserveCachePurge(entries int) {
	if entries > 0 {
		c.cachePurges.Add(float64(entries))
	}
}

// Registry returns the backing registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
