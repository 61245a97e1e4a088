// Package observability groups the worker's logging, metrics and tracing.
//
// Subpackages:
//   - logging: slog JSON logger, run IDs carried in context, URL redaction
//   - metrics: Prometheus collectors for polls, seen items, deliveries and receipts
//   - tracing: the OpenTelemetry tracer used for poll and dispatch spans
//
// Example usage:
//
//	logger := logging.NewLogger()
//	slog.SetDefault(logger)
//
//	metrics.RecordPoll("federal_bills", "check", "ok", time.Since(start))
package observability
