package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the agent-level Prometheus metrics. Domain packages keep
// their own metric structs; this covers cross-cutting counters.
type Metrics struct {
	SignedRequests  prometheus.Counter
	SigningFailures prometheus.Counter
	ManifestFetches prometheus.Counter
	ManifestErrors  prometheus.Counter
}

// New creates and registers all agent-level Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		SignedRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marquee_signed_requests_total",
			Help: "Total number of outgoing requests carrying signed headers",
		}),
		SigningFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marquee_signing_failures_total",
			Help: "Total number of signing attempts that failed",
		}),
		ManifestFetches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marquee_manifest_fetches_total",
			Help: "Total number of manifest fetches attempted",
		}),
		ManifestErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marquee_manifest_fetch_errors_total",
			Help: "Total number of manifest fetches that failed",
		}),
	}
}
