package ports

import (
	"context"
	"io"
)

// SpanConfig holds configuration collected from SpanOptions passed to
// Tracer.Start. It carries no fields yet; it exists so call sites can start
// adding span options without changing Tracer's signature.
type SpanConfig struct{}

// SpanOption configures a SpanConfig.
type SpanOption func(*SpanConfig)

// Span represents one task execution's trace span. Writing to it records
// the task's output as span events; End and RecordError close it out.
type Span interface {
	io.Writer

	// End completes the span.
	End()

	// RecordError marks the span as failed with err.
	RecordError(err error)

	// SetAttribute attaches a key-value pair to the span.
	SetAttribute(key string, value any)
}

// Tracer creates spans for the scheduler's task executions and emits the
// planned graph once per run. It decouples span creation from how spans
// are ultimately recorded (rendered to a TUI, printed linearly, or
// discarded), the same way Renderer decouples presentation from the
// scheduler's control flow.
type Tracer interface {
	// Start begins a span named name, returning a derived context and the
	// new Span.
	Start(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span)

	// EmitPlan signals that taskNames (with dependencies and the requested
	// targets) have been planned for execution.
	EmitPlan(ctx context.Context, taskNames []string, dependencies map[string][]string, targets []string)
}
