package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	backendRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roadmap",
		Name:      "backend_requests_total",
		Help:      "Outbound backend calls by backend, path and outcome.",
	}, []string{"backend", "path", "outcome"})

	backendLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "roadmap",
		Name:      "backend_request_duration_seconds",
		Help:      "Outbound backend call latency.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"backend", "path"})

	sessionTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roadmap",
		Name:      "session_transitions_total",
		Help:      "Session state machine transitions by event and resulting status.",
	}, []string{"event", "status"})

	commandFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roadmap",
		Name:      "session_command_failures_total",
		Help:      "Failed generate/update commands by command and failure kind.",
	}, []string{"command", "kind"})

	staleSearches = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "roadmap",
		Name:      "panel_stale_searches_total",
		Help:      "Search responses discarded because a newer search superseded them.",
	})

	purgedSessions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "roadmap",
		Name:      "sessions_purged_total",
		Help:      "Idle sessions removed by the retention job.",
	})
)

func init() {
	prometheus.MustRegister(backendRequests, backendLatency, sessionTransitions, commandFailures, staleSearches, purgedSessions)
}

// ObserveBackendCall 记录一次后端调用
func ObserveBackendCall(backend, path, outcome string, elapsed time.Duration) {
	backendRequests.WithLabelValues(backend, path, outcome).Inc()
	backendLatency.WithLabelValues(backend, path).Observe(elapsed.Seconds())
}

func ObserveTransition(event, status string) {
	sessionTransitions.WithLabelValues(event, status).Inc()
}

func ObserveCommandFailure(command, kind string) {
	commandFailures.WithLabelValues(command, kind).Inc()
}

func ObserveStaleSearch() {
	staleSearches.Inc()
}

func ObservePurged(n int64) {
	purgedSessions.Add(float64(n))
}

