package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "graylogic_tuya"

// Metrics holds the pairing counters.
//
// Each Metrics owns its registry, so several instances (one per test) never
// collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	pollAttempts          *prometheus.CounterVec
	authorizations        *prometheus.CounterVec
	discoveredDevices     *prometheus.CounterVec
	supplementaryFailures *prometheus.CounterVec
	activeSessions        prometheus.Gauge
}

// New creates the counters and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pollAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_attempts_total",
			Help:      "Token poll attempts by outcome.",
		}, []string{"driver", "result"}),
		authorizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authorizations_total",
			Help:      "Completed QR logins.",
		}, []string{"driver"}),
		discoveredDevices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovered_devices_total",
			Help:      "Candidate devices returned by device listings.",
		}, []string{"driver"}),
		supplementaryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "supplementary_failures_total",
			Help:      "Failed specification or data point fetches.",
		}, []string{"driver", "kind"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Open pairing sessions.",
		}),
	}

	m.registry.MustRegister(
		m.pollAttempts,
		m.authorizations,
		m.discoveredDevices,
		m.supplementaryFailures,
		m.activeSessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// PollAttempt counts one token poll.
func (m *Metrics) PollAttempt(driver, result string) {
	m.pollAttempts.WithLabelValues(driver, result).Inc()
}

// Authorized counts one completed QR login.
func (m *Metrics) Authorized(driver string) {
	m.authorizations.WithLabelValues(driver).Inc()
}

// Discovered adds the size of one device listing.
func (m *Metrics) Discovered(driver string, devices int) {
	m.discoveredDevices.WithLabelValues(driver).Add(float64(devices))
}

// SupplementaryFailed counts one failed per-device fetch.
func (m *Metrics) SupplementaryFailed(driver, kind string) {
	m.supplementaryFailures.WithLabelValues(driver, kind).Inc()
}

// SessionOpened and SessionClosed track the open session gauge.
func (m *Metrics) SessionOpened() { m.activeSessions.Inc() }

func (m *Metrics) SessionClosed() { m.activeSessions.Dec() }
