package report

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for operator report dispatching
var (
	// reportsTotal counts reports by status
	reportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_reports_total",
			Help: "Total number of operator reports",
		},
		[]string{"status"},
	)

	// reportSentTotal tracks channel post results
	reportSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_report_sent_total",
			Help: "Total number of operator reports posted to channels",
		},
		[]string{"channel", "result"}, // result: success|failure
	)

	// reportDuration tracks channel post duration
	reportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scout_report_duration_seconds",
			Help:    "Report post duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"channel"},
	)

	// reportDroppedTotal tracks reports not posted to a channel
	reportDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_report_dropped_total",
			Help: "Total number of reports not posted to a channel",
		},
		[]string{"channel", "reason"}, // reason: pool_full|circuit_open|below_threshold
	)

	// activeReports tracks in-flight report goroutines
	activeReports = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scout_report_active_goroutines",
			Help: "Number of active report goroutines",
		},
	)

	// channelsEnabled tracks number of enabled channels
	channelsEnabled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scout_report_channels_enabled",
			Help: "Number of enabled report channels",
		},
	)
)

// RecordReport counts a report by status.
func RecordReport(status string) {
	reportsTotal.WithLabelValues(status).Inc()
}

// RecordSuccess records a successful channel post.
func RecordSuccess(channel string, duration time.Duration) {
	reportSentTotal.WithLabelValues(channel, "success").Inc()
	reportDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordFailure records a failed channel post.
func RecordFailure(channel string, duration time.Duration) {
	reportSentTotal.WithLabelValues(channel, "failure").Inc()
	reportDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordDropped records a report not posted to a channel.
//
// Parameters:
//   - channel: The name of the channel
//   - reason: pool_full, circuit_open or below_threshold
func RecordDropped(channel, reason string) {
	reportDroppedTotal.WithLabelValues(channel, reason).Inc()
}

// IncrementActiveGoroutines increments the active goroutines gauge by 1.
func IncrementActiveGoroutines() {
	activeReports.Inc()
}

// DecrementActiveGoroutines decrements the active goroutines gauge by 1.
func DecrementActiveGoroutines() {
	activeReports.Dec()
}

// SetChannelsEnabled sets the number of enabled report channels.
func SetChannelsEnabled(count float64) {
	channelsEnabled.Set(count)
}
