package webhooks

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/goliatone/go-marketplace-hooks/core"
	"github.com/goliatone/go-marketplace-hooks/inbound"
)

const WebhookSpanName = "hooks.webhook"

type TracingStep struct {
	tracer trace.Tracer
}

// Tracing runs the rest of the chain inside a hooks.webhook span.
func Tracing(tracer trace.Tracer) *TracingStep {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	return &TracingStep{tracer: tracer}
}

func (s *TracingStep) HandleWebhook(ctx context.Context, req core.WebhookRequest, next inbound.Next) error {
	ctx, span := s.tracer.Start(ctx, WebhookSpanName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("hooks.signature_serial", req.SignatureSerial),
			attribute.String("hooks.signature_algorithm", req.SignatureAlgorithm),
			attribute.Int("hooks.body_bytes", len(req.RawBody)),
		),
	)
	defer span.End()

	err := next(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, core.ErrorMessage(err))
		if code := core.TextCode(err); code != "" {
			span.SetAttributes(attribute.String("hooks.error_code", code))
		}
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}
