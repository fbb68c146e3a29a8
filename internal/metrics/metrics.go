// Package metrics exposes Prometheus collectors for generation runs.
// All recording methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "architect"

type Metrics struct {
	Registry *prometheus.Registry

	providerCalls   *prometheus.CounterVec
	providerRetries *prometheus.CounterVec
	runs            *prometheus.CounterVec
	sectionDuration prometheus.Histogram
	runDuration     prometheus.Histogram
}

// New creates collectors on a fresh registry, so several instances can
// coexist in tests.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Model provider calls by phase (plan, section) and outcome (ok, transient, permanent).",
		}, []string{"phase", "outcome"}),
		providerRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_retries_total",
			Help:      "Retries scheduled after a transient provider failure.",
		}, []string{"phase"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished runs by outcome (done, failed).",
		}, []string{"outcome"}),
		sectionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "section_duration_seconds",
			Help:      "Time to generate one section, retries included.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a whole run from planning to assembly.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
	reg.MustRegister(
		m.providerCalls,
		m.providerRetries,
		m.runs,
		m.sectionDuration,
		m.runDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ProviderCall(phase, outcome string) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(phase, outcome).Inc()
}

func (m *Metrics) ProviderRetry(phase string) {
	if m == nil {
		return
	}
	m.providerRetries.WithLabelValues(phase).Inc()
}

func (m *Metrics) SectionGenerated(d time.Duration) {
	if m == nil {
		return
	}
	m.sectionDuration.Observe(d.Seconds())
}

func (m *Metrics) RunFinished(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
