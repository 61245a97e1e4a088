// Package metrics provides Prometheus metrics registry and recording utilities.
//
// This package centralizes all application metrics including:
//   - Poll metrics (outcome, duration, cache hits, newly seen items)
//   - Delivery metrics (queued, sent, failed, flood trips, SMS truncation)
//   - Database metrics
//
// All metrics are automatically registered with the Prometheus default registry
// and exposed via the worker's /metrics endpoint.
//
// Example usage:
//
//	import "scout-alerts/internal/observability/metrics"
//
//	start := time.Now()
//	result := poller.Poll(ctx, sub, poll.FuncCheck, poll.Options{})
//	metrics.RecordPoll(sub.SubscriptionType, poll.FuncCheck, metrics.OutcomeSuccess, time.Since(start))
package metrics
