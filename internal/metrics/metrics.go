// Package metrics collects Prometheus counters for the pipeline and exposes
// them on the daemon's /metrics endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the pipeline's Prometheus instruments. Each daemon builds
// its own collector with a private registry so tests never fight over the
// global one.
type Collector struct {
	registry *prometheus.Registry

	jobsCreated   prometheus.Counter
	jobsByState   *prometheus.GaugeVec
	transitions   *prometheus.CounterVec
	staleEscalate prometheus.Counter
	certsIssued   prometheus.Counter
	certsRevoked  prometheus.Counter
	httpRequests  *prometheus.CounterVec
	httpLatency   prometheus.Histogram
}

// NewCollector builds and registers the pipeline instruments.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		jobsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qline_jobs_created_total",
			Help: "Jobs minted at intake.",
		}),
		jobsByState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "qline_jobs",
			Help: "Jobs currently in each state.",
		}, []string{"state"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qline_transitions_total",
			Help: "Accepted lifecycle transitions by action.",
		}, []string{"action"}),
		staleEscalate: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qline_stale_escalations_total",
			Help: "Jobs escalated by the stale sweep.",
		}),
		certsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qline_certifications_issued_total",
			Help: "Certifications minted.",
		}),
		certsRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qline_certifications_revoked_total",
			Help: "Certifications revoked.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qline_http_requests_total",
			Help: "HTTP requests by status class.",
		}, []string{"code"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "qline_http_request_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	c.registry.MustRegister(
		c.jobsCreated,
		c.jobsByState,
		c.transitions,
		c.staleEscalate,
		c.certsIssued,
		c.certsRevoked,
		c.httpRequests,
		c.httpLatency,
	)
	return c
}

// Handler returns the scrape endpoint for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// SetJobsByState replaces the jobs-by-state gauge with a fresh snapshot.
func (c *Collector) SetJobsByState(counts map[string]int) {
	c.jobsByState.Reset()
	for state, count := range counts {
		c.jobsByState.WithLabelValues(state).Set(float64(count))
	}
}

// JobCreated records one intake.
func (c *Collector) JobCreated() {
	c.jobsCreated.Inc()
}

// TransitionApplied records one accepted lifecycle action.
func (c *Collector) TransitionApplied(action string) {
	c.transitions.WithLabelValues(action).Inc()
}

// StaleEscalated records one sweep-driven escalation.
func (c *Collector) StaleEscalated() {
	c.staleEscalate.Inc()
}

// CertificationIssued records one minted certification.
func (c *Collector) CertificationIssued() {
	c.certsIssued.Inc()
}

// CertificationRevoked records one revocation.
func (c *Collector) CertificationRevoked() {
	c.certsRevoked.Inc()
}

// HTTPRequest records one served request.
func (c *Collector) HTTPRequest(code int, seconds float64) {
	c.httpRequests.WithLabelValues(statusClass(code)).Inc()
	c.httpLatency.Observe(seconds)
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
