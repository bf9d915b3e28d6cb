package telemetry

import (
	"context"
	"fmt"
	"sync"

	"github.com/whizrun/whiz/internal/core/ports"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelTracer implements ports.Tracer on top of the global OTel
// TracerProvider. It is safe to construct before that provider has been
// configured: otel.Tracer resolves the no-op tracer lazily until
// otel.SetTracerProvider installs a real one, so SetupProvider can be
// called after NewOTelTracer.
type OTelTracer struct {
	tracer   trace.Tracer
	mu       sync.RWMutex
	renderer ports.Renderer
}

// NewOTelTracer creates an OTelTracer that identifies its spans under the
// given instrumentation name (typically the binary name).
func NewOTelTracer(name string) *OTelTracer {
	return &OTelTracer{tracer: otel.Tracer(name)}
}

// WithRenderer attaches a Renderer that per-span Write calls stream their
// output to, returning the tracer for chaining at construction time.
func (t *OTelTracer) WithRenderer(r ports.Renderer) *OTelTracer {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.renderer = r
	return t
}

// Start begins a span named name, wiring its Write calls (if a renderer is
// attached) to stream batched output to that span's ID.
func (t *OTelTracer) Start(ctx context.Context, name string, opts ...ports.SpanOption) (context.Context, ports.Span) {
	cfg := &ports.SpanConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	ctx, span := t.tracer.Start(ctx, name)

	t.mu.RLock()
	renderer := t.renderer
	t.mu.RUnlock()

	var batcher *lineBatcher
	if renderer != nil {
		spanID := span.SpanContext().SpanID().String()
		batcher = newLineBatcher(0, 0, func(data []byte) {
			renderer.OnTaskLog(spanID, data)
		})
	}
	return ctx, &otelSpan{span: span, batcher: batcher}
}

// EmitPlan records the planned task graph as an event on ctx's current
// span (if any) and forwards it to the attached renderer directly, since
// plan emission happens once per run, outside of any per-task span.
func (t *OTelTracer) EmitPlan(ctx context.Context, taskNames []string, dependencies map[string][]string, targets []string) {
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.AddEvent("plan_emitted", trace.WithAttributes(
			attribute.StringSlice("tasks", taskNames),
			attribute.StringSlice("targets", targets),
		))
	}

	t.mu.RLock()
	renderer := t.renderer
	t.mu.RUnlock()
	if renderer != nil {
		renderer.OnPlanEmit(taskNames, dependencies, targets)
	}
}

// otelSpan implements ports.Span over an OTel trace.Span.
type otelSpan struct {
	span    trace.Span
	batcher *lineBatcher
}

func (s *otelSpan) End() {
	if s.batcher != nil {
		_ = s.batcher.Close()
	}
	s.span.End()
}

func (s *otelSpan) RecordError(err error) {
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func (s *otelSpan) SetAttribute(key string, value any) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	case []string:
		s.span.SetAttributes(attribute.StringSlice(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

// Write satisfies io.Writer: with a renderer attached, output is batched
// and streamed as OnTaskLog calls; otherwise it is recorded as a span
// event, which is enough to inspect via an exporter without a renderer.
func (s *otelSpan) Write(p []byte) (int, error) {
	if s.batcher != nil {
		return s.batcher.Write(p)
	}
	s.span.AddEvent("log", trace.WithAttributes(attribute.String("data", string(p))))
	return len(p), nil
}

var _ ports.Tracer = (*OTelTracer)(nil)
var _ ports.Span = (*otelSpan)(nil)
