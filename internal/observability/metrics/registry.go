// Package metrics provides centralized Prometheus metrics for the application.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Poll metrics track provider polling
var (
	// PollsTotal counts polls by provider, function and outcome
	PollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_polls_total",
			Help: "Total number of provider polls by outcome",
		},
		[]string{"subscription_type", "function", "outcome"},
	)

	// PollDuration measures end-to-end poll duration (fetch + parse)
	PollDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scout_poll_duration_seconds",
			Help:    "Provider poll duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"subscription_type", "function"},
	)

	// CacheLookupsTotal counts search cache lookups
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_cache_lookups_total",
			Help: "Total number of provider cache lookups",
		},
		[]string{"subscription_type", "result"},
	)

	// SeenItemsTotal counts items newly marked as seen during checks
	SeenItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_seen_items_total",
			Help: "Total number of newly seen items",
		},
		[]string{"subscription_type"},
	)

	// SuppressedItemsTotal counts new items that were not delivered
	SuppressedItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_suppressed_items_total",
			Help: "Total number of new items withheld from delivery",
		},
		[]string{"subscription_type", "reason"},
	)
)

// Delivery metrics track the delivery queue and dispatcher
var (
	// DeliveriesScheduledTotal counts queued deliveries
	DeliveriesScheduledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_deliveries_scheduled_total",
			Help: "Total number of deliveries queued",
		},
		[]string{"mechanism", "frequency"},
	)

	// ReceiptsTotal counts messages sent and receipted
	ReceiptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_receipts_total",
			Help: "Total number of messages sent",
		},
		[]string{"mechanism", "frequency"},
	)

	// DeliveriesSentTotal counts deliveries consolidated into sent messages
	DeliveriesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_deliveries_sent_total",
			Help: "Total number of deliveries dispatched",
		},
		[]string{"mechanism", "frequency"},
	)

	// SendFailuresTotal counts transport failures
	SendFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_send_failures_total",
			Help: "Total number of failed sends",
		},
		[]string{"mechanism"},
	)

	// FloodTripsTotal counts aborted dispatch runs
	FloodTripsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_flood_trips_total",
			Help: "Total number of dispatch runs aborted by the flood guard",
		},
		[]string{"mechanism", "frequency"},
	)

	// SMSTruncationsTotal counts SMS bodies that had to be shortened
	SMSTruncationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_sms_truncations_total",
			Help: "Total number of SMS truncations by result",
		},
		[]string{"result"},
	)
)

// Database metrics track database performance
var (
	// DBQueryDuration measures database query duration
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"operation"},
	)

	// DBConnectionsActive tracks active database connections
	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	// DBConnectionsIdle tracks idle database connections
	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)

// RecordOperationDuration records the duration of a named operation
func RecordOperationDuration(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
