// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// TurnsTotal counts settled turns by the command or rule that produced the reply.
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialogue_turns_total",
			Help: "Dialogue turns by deciding rule",
		},
		[]string{"rule"},
	)

	// StaleTurnsTotal counts turns discarded because the session was reset meanwhile.
	StaleTurnsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dialogue_stale_turns_total",
			Help: "Turns discarded after a start over",
		},
	)

	// BusyRejectionsTotal counts submissions rejected while an itinerary was loading.
	BusyRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dialogue_busy_rejections_total",
			Help: "Submissions rejected while a session was loading",
		},
	)

	// ItineraryDuration tracks itinerary service latency.
	ItineraryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "itinerary_request_duration_seconds",
			Help:    "Itinerary service request duration",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"status"},
	)

	// ItineraryRequestsTotal counts itinerary requests by outcome.
	ItineraryRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "itinerary_requests_total",
			Help: "Itinerary service requests",
		},
		[]string{"status"},
	)

	// SessionsActive tracks sessions held by the in-memory store.
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Sessions currently held in memory",
		},
	)

	// SessionsCreatedTotal counts sessions created per transport.
	SessionsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessions_created_total",
			Help: "Total sessions created",
		},
		[]string{"transport"},
	)

	// MessagesTotal tracks total messages appended.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages appended",
		},
		[]string{"role", "kind"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// WebsocketConnectionsActive tracks active websocket connections.
	WebsocketConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Number of active websocket connections",
		},
	)

	// EventsPublishedTotal counts session events per sink and outcome.
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_events_published_total",
			Help: "Session events published",
		},
		[]string{"sink", "status"},
	)

	// TelegramUpdatesTotal counts Telegram updates handled.
	TelegramUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_updates_total",
			Help: "Telegram updates handled",
		},
		[]string{"type"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordItinerary records metrics for one itinerary service call.
func RecordItinerary(status string, duration float64) {
	ItineraryDuration.WithLabelValues(status).Observe(duration)
	ItineraryRequestsTotal.WithLabelValues(status).Inc()
}

// RecordTurn records the rule that decided a turn.
func RecordTurn(rule string) {
	TurnsTotal.WithLabelValues(rule).Inc()
}

// RecordMessage records an appended message.
func RecordMessage(role, kind string) {
	MessagesTotal.WithLabelValues(role, kind).Inc()
}

// RecordPublish records the outcome of publishing an event to a sink.
func RecordPublish(sink string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	EventsPublishedTotal.WithLabelValues(sink, status).Inc()
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
