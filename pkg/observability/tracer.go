package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// TracerConfig configures span export.
type TracerConfig struct {
	Enabled bool

	// Exporter is "otlp" (gRPC) or "stdout".
	Exporter string

	// Endpoint is the OTLP collector endpoint, e.g. "localhost:4317".
	Endpoint string

	// SamplingRate is the fraction of traces sampled, 0.0 to 1.0.
	SamplingRate float64

	Insecure bool
	Timeout  time.Duration
}

// Tracer wraps the OpenTelemetry tracer. The zero value is a no-op, so
// callers never guard their span calls.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracer builds the span pipeline. When disabled it returns a no-op
// instance.
func InitTracer(ctx context.Context, cfg TracerConfig) (*Tracer, error) {
	if !cfg.Enabled {
		return &Tracer{}, nil
	}

	exporter, err := newSpanExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create span exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName("upchain"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplingRate)),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(provider)

	return &Tracer{
		provider: provider,
		tracer:   provider.Tracer("upchain"),
	}, nil
}

func newSpanExporter(ctx context.Context, cfg TracerConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "otlp":
		return newOTLPExporter(ctx, cfg)
	case "stdout":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %q", cfg.Exporter)
	}
}

func newOTLPExporter(ctx context.Context, cfg TracerConfig) (*otlptrace.Exporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, otlptracegrpc.WithTimeout(cfg.Timeout))
	}
	if cfg.Insecure {
		opts = append(opts,
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
			otlptracegrpc.WithInsecure())
	}
	return otlptracegrpc.New(ctx, opts...)
}

// Start begins a span. Safe on a nil or disabled tracer.
func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if t == nil || t.tracer == nil {
		return noop.NewTracerProvider().Tracer("upchain").Start(ctx, name)
	}
	return t.tracer.Start(ctx, name, opts...)
}

// StartRun begins the span covering one full requirement run.
func (t *Tracer) StartRun(ctx context.Context, depth int) (context.Context, trace.Span) {
	return t.Start(ctx, "upchain.run",
		trace.WithAttributes(attribute.Int("upchain.depth", depth)))
}

// StartStage begins a span for one workflow stage execution.
func (t *Tracer) StartStage(ctx context.Context, stage string) (context.Context, trace.Span) {
	return t.Start(ctx, "upchain.stage",
		trace.WithAttributes(attribute.String("upchain.stage", stage)))
}

// StartOracleCall begins a span for one oracle invocation.
func (t *Tracer) StartOracleCall(ctx context.Context, provider, schema string) (context.Context, trace.Span) {
	return t.Start(ctx, "upchain.oracle_call",
		trace.WithAttributes(
			attribute.String("upchain.oracle_provider", provider),
			attribute.String("upchain.schema", schema)))
}

// Shutdown flushes buffered spans.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// EndSpan records the error, if any, and ends the span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

var (
	globalTracer = &Tracer{}
	tracerMu     sync.RWMutex
)

// SetGlobalTracer installs the process-wide tracer.
func SetGlobalTracer(t *Tracer) {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	globalTracer = t
}

// GetGlobalTracer returns the process-wide tracer, never nil.
func GetGlobalTracer() *Tracer {
	tracerMu.RLock()
	defer tracerMu.RUnlock()
	return globalTracer
}
