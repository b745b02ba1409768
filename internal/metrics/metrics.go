package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IngestedMessages counts records sequenced by the hub.
	IngestedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quake_ingested_messages_total",
		Help: "Total number of records sequenced by the hub",
	}, []string{"channel"})

	// CachedEvents tracks the number of EVENT records held for replay.
	CachedEvents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quake_cached_events",
		Help: "Current number of EVENT records in the replay cache",
	})

	// DroppedMessages counts inbound messages rejected before reaching the hub.
	DroppedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quake_dropped_messages_total",
		Help: "Total number of inbound messages dropped at the ingestion boundary",
	}, []string{"reason"})

	// ActiveConnections tracks open streaming connections.
	ActiveConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "quake_stream_connections",
		Help: "Current number of open streaming connections",
	}, []string{"transport"})

	// DroppedFrames counts frames that never reached a streaming client.
	DroppedFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quake_stream_dropped_frames_total",
		Help: "Total number of frames dropped for streaming clients",
	}, []string{"transport", "reason"})

	// EnrichmentResults counts place lookups by outcome.
	EnrichmentResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quake_enrichment_results_total",
		Help: "Total number of place lookups by outcome",
	}, []string{"outcome"})

	// EnrichmentDuration tracks place lookup latency.
	EnrichmentDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quake_enrichment_duration_seconds",
		Help:    "Duration of place lookups",
		Buckets: prometheus.DefBuckets,
	})

	// Notifications counts push dispatch decisions.
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quake_notifications_total",
		Help: "Total number of notification dispatch decisions by status",
	}, []string{"status"})

	// PushResults counts individual push deliveries by outcome.
	PushResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quake_push_results_total",
		Help: "Total number of push deliveries by outcome",
	}, []string{"result"})

	// PrunedSubscriptions counts subscriptions removed after a permanent failure.
	PrunedSubscriptions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quake_pruned_subscriptions_total",
		Help: "Total number of push subscriptions removed after a permanent failure",
	})
)

var (
	// CircuitBreakerState tracks breaker state per dependency (0=closed, 1=half-open, 2=open).
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "quake_circuit_breaker_state",
		Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"name"})

	// CircuitBreakerTransitions counts breaker state changes.
	CircuitBreakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quake_circuit_breaker_transitions_total",
		Help: "Total number of circuit breaker state transitions",
	}, []string{"name", "from", "to"})
)
