package monitor

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// TracerConfig configures span export
type TracerConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	JaegerEndpoint string
	SamplingRate   float64
	Enabled        bool
}

// Tracer wraps an OpenTelemetry tracer. A nil or disabled Tracer hands back
// the span already in the context, so callers never branch on it.
type Tracer struct {
	config   *TracerConfig
	provider *trace.TracerProvider
	tracer   oteltrace.Tracer
}

// NewTracer creates a tracer exporting to Jaeger when enabled
func NewTracer(config *TracerConfig) (*Tracer, error) {
	if !config.Enabled {
		return &Tracer{
			config: config,
			tracer: otel.Tracer(config.ServiceName),
		}, nil
	}

	exporter, err := jaeger.New(
		jaeger.WithCollectorEndpoint(
			jaeger.WithEndpoint(config.JaegerEndpoint),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create jaeger exporter: %w", err)
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(config.SamplingRate))),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Tracer{
		config:   config,
		provider: provider,
		tracer:   provider.Tracer(config.ServiceName),
	}, nil
}

func (t *Tracer) enabled() bool {
	return t != nil && t.config != nil && t.config.Enabled
}

// StartSpan starts a span named operationName
func (t *Tracer) StartSpan(ctx context.Context, operationName string, opts ...oteltrace.SpanStartOption) (context.Context, oteltrace.Span) {
	if !t.enabled() {
		return ctx, oteltrace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, operationName, opts...)
}

// StartPublishSpan starts a producer span for a bus publish
func (t *Tracer) StartPublishSpan(ctx context.Context, channel, event string) (context.Context, oteltrace.Span) {
	return t.StartSpan(ctx, "publish "+channel,
		oteltrace.WithSpanKind(oteltrace.SpanKindProducer),
		oteltrace.WithAttributes(
			attribute.String("messaging.destination", channel),
			attribute.String("event.name", event),
		),
	)
}

// StartHandleSpan starts a consumer span for one listener invocation
func (t *Tracer) StartHandleSpan(ctx context.Context, channel, topic, eventID string, attempt int) (context.Context, oteltrace.Span) {
	return t.StartSpan(ctx, "handle "+channel+"/"+topic,
		oteltrace.WithSpanKind(oteltrace.SpanKindConsumer),
		oteltrace.WithAttributes(
			attribute.String("messaging.destination", channel),
			attribute.String("messaging.consumer_group", topic),
			attribute.String("messaging.message_id", eventID),
			attribute.Int("messaging.attempt", attempt),
		),
	)
}

// StartSettlementSpan starts a span around one settlement attempt
func (t *Tracer) StartSettlementSpan(ctx context.Context, kind string, buyerID, targetID uint64) (context.Context, oteltrace.Span) {
	return t.StartSpan(ctx, "settle "+kind,
		oteltrace.WithAttributes(
			attribute.String("settlement.kind", kind),
			attribute.Int64("settlement.buyer_id", int64(buyerID)),
			attribute.Int64("settlement.target_id", int64(targetID)),
		),
	)
}

// StartJobSpan starts a span around a scheduled job run
func (t *Tracer) StartJobSpan(ctx context.Context, job string) (context.Context, oteltrace.Span) {
	return t.StartSpan(ctx, "job "+job, oteltrace.WithAttributes(attribute.String("job.name", job)))
}

// StartHTTPSpan starts a server span, continuing any trace in the headers
func (t *Tracer) StartHTTPSpan(ctx context.Context, r *http.Request, route string) (context.Context, oteltrace.Span) {
	if !t.enabled() {
		return ctx, oteltrace.SpanFromContext(ctx)
	}

	ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(r.Header))
	return t.tracer.Start(ctx, fmt.Sprintf("%s %s", r.Method, route),
		oteltrace.WithSpanKind(oteltrace.SpanKindServer),
		oteltrace.WithAttributes(
			semconv.HTTPMethodKey.String(r.Method),
			semconv.HTTPTargetKey.String(r.URL.Path),
			semconv.HTTPRouteKey.String(route),
			semconv.HTTPUserAgentKey.String(r.UserAgent()),
		),
	)
}

// RecordError marks the span failed
func (t *Tracer) RecordError(span oteltrace.Span, err error) {
	if !t.enabled() || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Shutdown flushes pending spans
func (t *Tracer) Shutdown(ctx context.Context) error {
	if !t.enabled() || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// TraceID returns the trace id of the span in ctx, or ""
func (t *Tracer) TraceID(ctx context.Context) string {
	sc := oteltrace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
