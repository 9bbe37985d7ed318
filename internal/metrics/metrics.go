package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agora_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agora_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Session metrics
	SessionsRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agora_sessions_registered_total",
			Help: "Total successful registrations",
		},
	)

	SessionsEnded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agora_sessions_ended_total",
			Help: "Total sessions ended",
		},
		[]string{"reason"}, // "disconnect", "expired" or "superseded"
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agora_active_sessions",
			Help: "Sessions currently valid",
		},
	)

	AuthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agora_auth_failures_total",
			Help: "Rejected registrations and bearer tokens",
		},
		[]string{"kind"},
	)

	// Mailbox metrics
	EnvelopesRouted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agora_envelopes_routed_total",
			Help: "Total envelopes appended to mailboxes",
		},
	)

	EnvelopesDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agora_envelopes_delivered_total",
			Help: "Total envelopes returned by polls",
		},
	)

	EnvelopesPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agora_envelopes_purged_total",
			Help: "Total envelopes removed by retention",
		},
	)

	PayloadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agora_payload_bytes",
			Help:    "Size of routed payloads",
			Buckets: prometheus.ExponentialBuckets(64, 4, 7),
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agora_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agora_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)

	// Infrastructure metrics
	MailboxLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agora_mailbox_latency_seconds",
			Help:    "Mailbox backend operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
		[]string{"op"},
	)
)
