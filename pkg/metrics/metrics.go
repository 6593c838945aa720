// Package metrics holds the Prometheus collectors of the ping service.
// All methods are safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ping_service"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeHit     = "hit"
)

// Metrics groups the service collectors.
type Metrics struct {
	registry *prometheus.Registry

	probeResults   *prometheus.CounterVec
	probeLatency   *prometheus.HistogramVec
	probesInFlight prometheus.Gauge
	keySetFetches  *prometheus.CounterVec
	credentials    *prometheus.CounterVec
	authFailures   *prometheus.CounterVec
	streams        prometheus.Gauge
}

// New creates the collectors and registers them on a fresh registry that
// also carries the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		probeResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_results_total",
			Help:      "Probe results by provider and outcome.",
		}, []string{"provider", "outcome"}),
		probeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Wall time of outbound probe calls.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"provider"}),
		probesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "probes_in_flight",
			Help:      "Outbound probe calls currently running.",
		}),
		keySetFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keyset_lookups_total",
			Help:      "Key set lookups by outcome (hit, success, error).",
		}, []string{"outcome"}),
		credentials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_acquisitions_total",
			Help:      "Outbound credential acquisitions by outcome.",
		}, []string{"outcome"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Rejected callers by reason.",
		}, []string{"reason"}),
		streams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_open",
			Help:      "Result streams currently open.",
		}),
	}

	m.registry.MustRegister(
		m.probeResults,
		m.probeLatency,
		m.probesInFlight,
		m.keySetFetches,
		m.credentials,
		m.authFailures,
		m.streams,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ProbeStarted marks an outbound call as in flight.
func (m *Metrics) ProbeStarted() {
	if m == nil {
		return
	}
	m.probesInFlight.Inc()
}

// ProbeFinished records the outcome of an outbound call started with
// ProbeStarted.
func (m *Metrics) ProbeFinished(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.probesInFlight.Dec()
	m.probeResults.WithLabelValues(provider, outcome).Inc()
	m.probeLatency.WithLabelValues(provider).Observe(d.Seconds())
}

// KeySetLookup records a key set cache lookup.
func (m *Metrics) KeySetLookup(outcome string) {
	if m == nil {
		return
	}
	m.keySetFetches.WithLabelValues(outcome).Inc()
}

// CredentialAcquisition records a broker call.
func (m *Metrics) CredentialAcquisition(outcome string) {
	if m == nil {
		return
	}
	m.credentials.WithLabelValues(outcome).Inc()
}

// AuthFailure records a rejected caller.
func (m *Metrics) AuthFailure(reason string) {
	if m == nil {
		return
	}
	m.authFailures.WithLabelValues(reason).Inc()
}

// StreamOpened and StreamClosed track open result streams.
func (m *Metrics) StreamOpened() {
	if m == nil {
		return
	}
	m.streams.Inc()
}

func (m *Metrics) StreamClosed() {
	if m == nil {
		return
	}
	m.streams.Dec()
}
