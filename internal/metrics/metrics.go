// Package metrics provides Prometheus metrics for bundle registration,
// activation and store reloads.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric name.
const Namespace = "bulkhead"

// Activation results.
const (
	ResultActivated = "activated"
	ResultSkipped   = "skipped"
	ResultFailed    = "failed"
)

// Collector holds all Prometheus metrics. A nil *Collector records nothing.
type Collector struct {
	BundlesRegistered  *prometheus.CounterVec
	MergeFailures      prometheus.Counter
	Activations        *prometheus.CounterVec
	ActivationDuration prometheus.Histogram
	Reloads            *prometheus.CounterVec
	MaterializedModels prometheus.Gauge
}

// New creates a collector and registers it with reg. A nil reg uses a
// private registry so tests and repeated hosts never clash.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	c := &Collector{
		BundlesRegistered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "bundles_registered_total",
				Help:      "Total number of bundle registrations",
			},
			[]string{"namespace"},
		),
		MergeFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "merge_failures_total",
				Help:      "Total number of bundle merges aborted by a scan failure",
			},
		),
		Activations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "activations_total",
				Help:      "Total number of activation attempts by result",
			},
			[]string{"result"},
		),
		ActivationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "activation_duration_seconds",
				Help:      "Duration of activation handshakes that reached the subsystem",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),
		Reloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "store_reloads_total",
				Help:      "Total number of materialization reloads by result",
			},
			[]string{"result"},
		),
		MaterializedModels: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "materialized_models",
				Help:      "Number of models materialized by the last successful reload",
			},
		),
	}

	reg.MustRegister(
		c.BundlesRegistered,
		c.MergeFailures,
		c.Activations,
		c.ActivationDuration,
		c.Reloads,
		c.MaterializedModels,
	)
	return c
}

// BundleRegistered counts a successful registration.
func (c *Collector) BundleRegistered(namespace string) {
	if c == nil {
		return
	}
	c.BundlesRegistered.WithLabelValues(namespace).Inc()
}

// MergeFailed counts an aborted merge.
func (c *Collector) MergeFailed() {
	if c == nil {
		return
	}
	c.MergeFailures.Inc()
}

// ActivationFinished records the outcome of one activation call.
func (c *Collector) ActivationFinished(result string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.Activations.WithLabelValues(result).Inc()
	if result != ResultSkipped {
		c.ActivationDuration.Observe(elapsed.Seconds())
	}
}

// ReloadFinished records a store reload.
func (c *Collector) ReloadFinished(err error, models int) {
	if c == nil {
		return
	}
	if err != nil {
		c.Reloads.WithLabelValues(ResultFailed).Inc()
		return
	}
	c.Reloads.WithLabelValues("ok").Inc()
	c.MaterializedModels.Set(float64(models))
}
