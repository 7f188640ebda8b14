package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "petadopt_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "petadopt_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Messaging metrics
	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "petadopt_messages_sent_total",
			Help: "Total messages sent",
		},
	)

	ConversationsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "petadopt_conversations_created_total",
			Help: "Total conversations created",
		},
	)

	ReadReceiptsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "petadopt_read_receipts_written_total",
			Help: "Total read receipts written",
		},
	)

	UnreadFallbackScans = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "petadopt_unread_fallback_scans_total",
			Help: "Conversations whose unread count had to be computed by scanning messages",
		},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "petadopt_store_errors_total",
			Help: "Document store failures by operation",
		},
		[]string{"op"},
	)

	ListenerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "petadopt_listener_errors_total",
			Help: "Live query failures by subscription kind",
		},
		[]string{"kind"},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "petadopt_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"action"},
	)

	// Session metrics
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "petadopt_active_sessions",
			Help: "Messaging sessions currently open",
		},
	)
)
