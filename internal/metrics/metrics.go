package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by the enrichment counters.
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
	OutcomeFailed   = "failed"
)

// Metrics holds the pipeline counters on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry         *prometheus.Registry
	captures         *prometheus.CounterVec
	metadataFetches  *prometheus.CounterVec
	classifications  *prometheus.CounterVec
	sessionRefreshes *prometheus.CounterVec
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "laterai",
			Name:      "captures_total",
			Help:      "Capture attempts by result.",
		}, []string{"result"}),
		metadataFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "laterai",
			Name:      "metadata_fetches_total",
			Help:      "Metadata fetches by outcome.",
		}, []string{"outcome"}),
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "laterai",
			Name:      "classifications_total",
			Help:      "Classification calls by outcome.",
		}, []string{"outcome"}),
		sessionRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "laterai",
			Name:      "session_refreshes_total",
			Help:      "Session refresh calls by outcome.",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(m.captures, m.metadataFetches, m.classifications, m.sessionRefreshes)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Capture(result string) {
	if m == nil {
		return
	}
	m.captures.WithLabelValues(result).Inc()
}

func (m *Metrics) MetadataFetch(outcome string) {
	if m == nil {
		return
	}
	m.metadataFetches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Classification(outcome string) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SessionRefresh(outcome string) {
	if m == nil {
		return
	}
	m.sessionRefreshes.WithLabelValues(outcome).Inc()
}
