package fsm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/amp-labs/amp-fsm/fsm"

// startSpan starts a span carrying the entity attributes. The caller ends it.
//
//nolint:spancheck
func startSpan(ctx context.Context, name string, entity Entity, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name)
	span.SetAttributes(
		attribute.String("fsm.entity_type", entity.EntityType()),
		attribute.String("fsm.entity_id", entity.EntityID()),
	)
	span.SetAttributes(attrs...)

	return ctx, span
}

// endSpan records the outcome of err and ends span.
func endSpan(span trace.Span, err error) {
	span.SetAttributes(attribute.String("fsm.outcome", outcomeOf(err)))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}
