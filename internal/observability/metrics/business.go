package metrics

import (
	"time"
)

// Poll outcomes.
const (
	OutcomeSuccess    = "success"
	OutcomeNetwork    = "network"
	OutcomeMalformed  = "malformed"
	OutcomeUnexpected = "unexpected"
	OutcomeCacheMiss  = "cache_miss"
)

// Suppression reasons.
const (
	ReasonBackfill    = "backfill"
	ReasonDoubleCheck = "double_check"
	ReasonEmptyID     = "empty_id"
)

// RecordPoll records the outcome and duration of one provider poll.
func RecordPoll(subscriptionType, function, outcome string, duration time.Duration) {
	PollsTotal.WithLabelValues(subscriptionType, function, outcome).Inc()
	PollDuration.WithLabelValues(subscriptionType, function).Observe(duration.Seconds())
}

// RecordCacheLookup records a hit or miss of the search cache.
func RecordCacheLookup(subscriptionType string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookupsTotal.WithLabelValues(subscriptionType, result).Inc()
}

// RecordSeenItems records items newly marked as seen by a check.
func RecordSeenItems(subscriptionType string, count int) {
	if count <= 0 {
		return
	}
	SeenItemsTotal.WithLabelValues(subscriptionType).Add(float64(count))
}

// RecordSuppressed records new items that were withheld from delivery.
// Reason is one of ReasonBackfill, ReasonDoubleCheck or ReasonEmptyID.
func RecordSuppressed(subscriptionType, reason string, count int) {
	if count <= 0 {
		return
	}
	SuppressedItemsTotal.WithLabelValues(subscriptionType, reason).Add(float64(count))
}

// RecordDeliveryScheduled records one queued delivery.
func RecordDeliveryScheduled(mechanism, frequency string) {
	DeliveriesScheduledTotal.WithLabelValues(mechanism, frequency).Inc()
}

// RecordReceipt records one sent message consolidating the given number of deliveries.
func RecordReceipt(mechanism, frequency string, deliveries int) {
	ReceiptsTotal.WithLabelValues(mechanism, frequency).Inc()
	DeliveriesSentTotal.WithLabelValues(mechanism, frequency).Add(float64(deliveries))
}

// RecordSendFailure records a transport failure.
func RecordSendFailure(mechanism string) {
	SendFailuresTotal.WithLabelValues(mechanism).Inc()
}

// RecordFloodTrip records a dispatch run aborted by the flood guard.
func RecordFloodTrip(mechanism, frequency string) {
	FloodTripsTotal.WithLabelValues(mechanism, frequency).Inc()
}

// RecordSMSTruncation records an SMS that exceeded the length budget.
// dropped is true when it could not be shortened enough and was not sent.
func RecordSMSTruncation(dropped bool) {
	result := "truncated"
	if dropped {
		result = "dropped"
	}
	SMSTruncationsTotal.WithLabelValues(result).Inc()
}

// RecordDBQuery records the duration of a database query operation.
func RecordDBQuery(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateDBConnectionStats updates database connection pool statistics.
func UpdateDBConnectionStats(active, idle int) {
	DBConnectionsActive.Set(float64(active))
	DBConnectionsIdle.Set(float64(idle))
}
