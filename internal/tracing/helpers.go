package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope used by every helper in this package.
const TracerName = "marketplace"

// Attribute keys set on ranking spans.
const (
	AttrRankOperation = attribute.Key("ranking.operation")
	AttrRankCount     = attribute.Key("ranking.listings")
	AttrCacheHit      = attribute.Key("ranking.cache_hit")
)

// StartSpan creates a new span for a general operation.
// Returns the new context and a function to end the span.
//
//	ctx, endSpan := tracing.StartSpan(ctx, "listing.feature")
//	defer func() { endSpan(err) }()
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := otel.Tracer(TracerName).Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, endFunc(span)
}

// StartRankSpan creates a span around one ranking query.
// The span is named "rank <operation>".
func StartRankSpan(ctx context.Context, operation string) (context.Context, func(error)) {
	ctx, span := otel.Tracer(TracerName).Start(ctx, "rank "+operation,
		trace.WithAttributes(AttrRankOperation.String(operation)),
	)
	return ctx, endFunc(span)
}

// StartCacheSpan creates a client span for a Redis cache call.
func StartCacheSpan(ctx context.Context, command, key string) (context.Context, func(error)) {
	ctx, span := otel.Tracer(TracerName).Start(ctx, "cache "+command,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("db.operation", command),
		),
	)
	if key != "" {
		span.SetAttributes(attribute.String("cache.key", key))
	}
	return ctx, endFunc(span)
}

func endFunc(span trace.Span) func(error) {
	return func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// AddEvent adds an event to the current span.
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// SetAttributes sets attributes on the current span.
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}
