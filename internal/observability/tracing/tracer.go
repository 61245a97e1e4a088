package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentation = "scout-alerts"

// GetTracer returns the pipeline tracer. It resolves the global provider on
// every call so a provider installed after startup (or in tests) is honored.
func GetTracer() trace.Tracer {
	return otel.Tracer(instrumentation)
}

// Start opens a span carrying attrs.
//
//	ctx, span := tracing.Start(ctx, "poll.Check", attribute.Int64("subscription.id", sub.ID))
//	defer span.End()
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// Fail records err on span and marks it failed. A nil err is a no-op.
func Fail(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
