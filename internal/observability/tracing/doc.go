// Package tracing exposes the OpenTelemetry tracer for the worker.
//
// The poller opens one span per poll and per subscription check; the
// dispatcher opens one per delivery run. Without a configured provider the
// global no-op tracer is used, so spans cost nothing in tests.
//
//	ctx, span := tracing.Start(ctx, "poll.Check", attribute.Int64("subscription.id", sub.ID))
//	defer span.End()
package tracing
