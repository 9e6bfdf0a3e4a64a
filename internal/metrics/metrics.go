package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Realtime metrics
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_active_connections",
			Help: "Open WebSocket connections",
		},
	)

	ActiveSubscriptions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chat_ws_active_subscriptions",
			Help: "Active subscriptions",
		},
		[]string{"channel"}, // "room" or "personal"
	)

	RejectedFrames = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ws_rejected_frames_total",
			Help: "Inbound frames rejected by the interceptor chain",
		},
		[]string{"reason"},
	)

	SlowConsumersDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_ws_slow_consumers_dropped_total",
			Help: "Connections closed because their send buffer was full",
		},
	)

	// Business metrics
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Total messages committed",
		},
		[]string{"type"},
	)

	SendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_send_duration_seconds",
			Help:    "Time from validation to commit of a message",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	RoomsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_rooms_created_total",
			Help: "Total rooms created",
		},
		[]string{"room_type"},
	)

	// PostCommitFailures counts side effects that failed after a message or
	// read position was already committed.
	PostCommitFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_post_commit_failures_total",
			Help: "Failed post-commit side effects",
		},
		[]string{"step"}, // "preview", "read_advance", "fanout", "event", "purge", "system_message"
	)
)

// Handler returns an http.Handler for Prometheus scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
