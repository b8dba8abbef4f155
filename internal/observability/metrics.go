package observability

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ratlink",
			Subsystem: "link",
			Name:      "frames_total",
			Help:      "Frames moved across a channel.",
		},
		[]string{"transport", "direction"},
	)
	bytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ratlink",
			Subsystem: "link",
			Name:      "bytes_total",
			Help:      "Frame bytes moved across a channel.",
		},
		[]string{"transport", "direction"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ratlink",
			Subsystem: "link",
			Name:      "state_transitions_total",
			Help:      "Channel state transitions.",
		},
		[]string{"transport", "state"},
	)
	monitorExpirations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ratlink",
			Subsystem: "link",
			Name:      "inactivity_expirations_total",
			Help:      "Channels failed by the inactivity monitor.",
		},
		[]string{"transport"},
	)
	decodeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ratlink",
			Subsystem: "codec",
			Name:      "decode_failures_total",
			Help:      "Inbound frames dropped because they did not decode.",
		},
		[]string{"reason"},
	)
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ratlink",
			Subsystem: "codec",
			Name:      "events_total",
			Help:      "Decoded inbound events by tag name.",
		},
		[]string{"event"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(framesTotal, bytesTotal, stateTransitions, monitorExpirations, decodeFailures, eventsTotal)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}

func RecordFrame(transport, direction string, size int) {
	RegisterMetrics()
	framesTotal.WithLabelValues(transport, direction).Inc()
	bytesTotal.WithLabelValues(transport, direction).Add(float64(size))
}

func RecordStateTransition(transport, state string) {
	RegisterMetrics()
	stateTransitions.WithLabelValues(transport, state).Inc()
}

func RecordInactivityExpiration(transport string) {
	RegisterMetrics()
	monitorExpirations.WithLabelValues(transport).Inc()
}

func RecordDecodeFailure(reason string) {
	RegisterMetrics()
	decodeFailures.WithLabelValues(reason).Inc()
}

func RecordEvent(name string) {
	RegisterMetrics()
	eventsTotal.WithLabelValues(name).Inc()
}
