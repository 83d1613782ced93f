package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "messaging_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Gateway metrics
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "messaging_active_connections",
			Help: "Websocket connections currently attached to the hub",
		},
	)

	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_auth_attempts_total",
			Help: "Connection authentication attempts",
		},
		[]string{"result"}, // "ok" or "invalid"
	)

	RoomJoins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_room_joins_total",
			Help: "Case room join requests",
		},
		[]string{"result"},
	)

	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_messages_sent_total",
			Help: "Message send requests by outcome",
		},
		[]string{"result"},
	)

	SendLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "messaging_send_duration_seconds",
			Help:    "Time from send request to fan-out completion",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	// Fan-out metrics
	FanoutDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_fanout_deliveries_total",
			Help: "Events queued to live connections",
		},
		[]string{"kind"},
	)

	FanoutDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_fanout_drops_total",
			Help: "Events dropped because a connection could not take them",
		},
		[]string{"kind"},
	)

	// Event bus metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_events_published_total",
			Help: "Events published to the outbound bus",
		},
		[]string{"type", "result"},
	)

	EventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_events_consumed_total",
			Help: "Events consumed from the inbound bus",
		},
		[]string{"type"},
	)
)

// FanoutRecorder feeds fan-out counts into the fan-out metrics.
type FanoutRecorder struct{}

func (FanoutRecorder) Delivered(kind string, n int) {
	if n > 0 {
		FanoutDeliveries.WithLabelValues(kind).Add(float64(n))
	}
}

func (FanoutRecorder) Dropped(kind string, n int) {
	if n > 0 {
		FanoutDrops.WithLabelValues(kind).Add(float64(n))
	}
}

// Outcome turns an operation error into a low-cardinality label.
func Outcome(code string) string {
	if code == "" {
		return "ok"
	}
	return code
}
