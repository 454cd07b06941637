// Package metrics holds the Prometheus collectors shared by the broker and
// the transport.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "browsermcp"

// Connection events recorded by RecordConnection.
const (
	EventAccepted = "accepted"
	EventReplaced = "replaced"
	EventLost     = "lost"
)

var (
	registerOnce sync.Once

	callsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "calls_total",
			Help:      "Settled broker calls by message type and outcome.",
		},
		[]string{"type", "outcome"},
	)
	callDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "call_duration_seconds",
			Help:      "Time from send to settlement in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"type"},
	)
	pendingRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "pending_requests",
			Help:      "Calls currently awaiting a reply.",
		},
	)
	malformedFrames = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "malformed_frames_total",
			Help:      "Inbound frames discarded because they could not be correlated.",
		},
	)
	connectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "connections_total",
			Help:      "Executor connection lifecycle events.",
		},
		[]string{"event"},
	)
	generation = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "generation",
			Help:      "Generation of the current executor connection.",
		},
	)
)

// RegisterMetrics registers every collector with the default registry. It is
// safe to call more than once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			callsTotal,
			callDuration,
			pendingRequests,
			malformedFrames,
			connectionsTotal,
			generation,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}

func RecordCall(msgType, outcome string, duration time.Duration) {
	RegisterMetrics()
	callsTotal.WithLabelValues(msgType, outcome).Inc()
	callDuration.WithLabelValues(msgType).Observe(duration.Seconds())
}

func SetPending(n int) {
	RegisterMetrics()
	pendingRequests.Set(float64(n))
}

func RecordMalformedFrame() {
	RegisterMetrics()
	malformedFrames.Inc()
}

func RecordConnection(event string, gen uint64) {
	RegisterMetrics()
	connectionsTotal.WithLabelValues(event).Inc()
	generation.Set(float64(gen))
}
