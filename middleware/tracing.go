package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/outcall/operation"
)

// tracerName is the instrumentation scope name for outcall tracing.
const tracerName = "github.com/xraph/outcall"

// Tracing returns middleware that wraps each attempt in an OpenTelemetry span.
// If no TracerProvider is configured globally, the default noop tracer is used
// and this middleware becomes a pass-through with zero overhead.
//
// Span attributes include: outcall.operation.id, outcall.operation.key,
// outcall.attempt, outcall.task_id. On error, the span status is set to
// codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, op *operation.Operation, next Handler) error {
		ctx, span := tracer.Start(ctx, "outcall.attempt.execute",
			trace.WithAttributes(
				attribute.String("outcall.operation.id", op.ID.String()),
				attribute.String("outcall.operation.key", op.Key),
				attribute.Int("outcall.attempt", op.Attempt),
				attribute.String("outcall.task_id", op.TaskID),
			),
			trace.WithSpanKind(trace.SpanKindClient),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
