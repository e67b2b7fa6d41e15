// Package metrics exposes Prometheus counters for access decisions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ppiankov/usageguard/internal/access"
	"github.com/ppiankov/usageguard/internal/model"
)

const namespace = "usageguard"

// Metrics holds the counters for one process. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry         *prometheus.Registry
	resolutions      *prometheus.CounterVec
	providerFailures *prometheus.CounterVec
	checks           *prometheus.CounterVec
	reloads          *prometheus.CounterVec
}

// New creates the counters on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Caller resolutions by resulting access level and deciding rule.",
		}, []string{"level", "rule"}),
		providerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_failures_total",
			Help:      "Identity facts that could not be established and were taken as not granted.",
		}, []string{"fact"}),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_checks_total",
			Help:      "Per-uid visibility checks by caller level and outcome.",
		}, []string{"level", "result"}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "facts_reloads_total",
			Help:      "Identity facts reloads by outcome.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(m.resolutions, m.providerFailures, m.checks, m.reloads)
	return m
}

// Registry returns the registry the counters are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveResolution counts one resolution and any failed facts in it.
func (m *Metrics) ObserveResolution(res access.Resolution) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(res.Level.String(), res.Rule).Inc()
	if res.Facts == nil {
		return
	}
	for _, f := range res.Facts.Failed {
		m.providerFailures.WithLabelValues(string(f)).Inc()
	}
}

// ObserveCheck counts one visibility check.
func (m *Metrics) ObserveCheck(level model.AccessLevel, allowed bool) {
	if m == nil {
		return
	}
	result := "denied"
	if allowed {
		result = "allowed"
	}
	m.checks.WithLabelValues(level.String(), result).Inc()
}

// ObserveReload counts one facts reload.
func (m *Metrics) ObserveReload(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.reloads.WithLabelValues(result).Inc()
}
