package observability

import (
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const TracerName = "github.com/goliatone/go-marketplace-hooks"

// NewTracer returns the hooks tracer from the global provider.
func NewTracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// NewTracerFromProvider returns the hooks tracer from provider, falling back
// to the global provider when it is nil.
func NewTracerFromProvider(provider trace.TracerProvider) trace.Tracer {
	if provider == nil {
		return NewTracer()
	}
	return provider.Tracer(TracerName)
}

// NewTracerProvider builds an SDK provider that batches spans to exporter.
// Without an exporter spans are sampled but dropped.
func NewTracerProvider(exporter sdktrace.SpanExporter, opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	providerOpts := make([]sdktrace.TracerProviderOption, 0, len(opts)+1)
	if exporter != nil {
		providerOpts = append(providerOpts, sdktrace.WithBatcher(exporter))
	}
	providerOpts = append(providerOpts, opts...)
	return sdktrace.NewTracerProvider(providerOpts...)
}
