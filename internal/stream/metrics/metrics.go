package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the stream client's Prometheus metrics.
type Metrics struct {
	Reconnects prometheus.Counter
	Events     *prometheus.CounterVec
	Connected  prometheus.Gauge
}

// New creates and registers all stream metrics.
func New() *Metrics {
	return &Metrics{
		Reconnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marquee_stream_reconnects_total",
			Help: "Total number of stream reconnect attempts scheduled",
		}),
		Events: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "marquee_stream_events_total",
			Help: "Total number of server push events received, by event type",
		}, []string{"type"}),
		Connected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "marquee_stream_connected",
			Help: "1 while the push stream is connected, 0 otherwise",
		}),
	}
}

// ObserveReconnect counts one scheduled reconnect.
func (m *Metrics) ObserveReconnect() {
	if m == nil {
		return
	}
	m.Reconnects.Inc()
}

// ObserveEvent counts one received event by type.
func (m *Metrics) ObserveEvent(eventType string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(eventType).Inc()
}

// SetConnected records the connected gauge.
func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.Connected.Set(1)
	} else {
		m.Connected.Set(0)
	}
}
