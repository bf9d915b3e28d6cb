package telemetry

import (
	"context"
	"errors"

	"github.com/whizrun/whiz/internal/core/ports"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Bridge implements sdktrace.SpanProcessor, forwarding every span's start
// and end into a Renderer. Installing it as the only processor on a
// TracerProvider (SetupProvider does this) makes the renderer a pure
// function of the span stream: nothing in the scheduler calls it directly.
type Bridge struct {
	renderer ports.Renderer
}

// NewBridge returns a Bridge that forwards spans to renderer. renderer may
// be nil, in which case the bridge discards every span (used in tests that
// only care about the resulting trace, not rendering).
func NewBridge(renderer ports.Renderer) *Bridge {
	return &Bridge{renderer: renderer}
}

// OnStart forwards a span's start as OnTaskStart.
func (b *Bridge) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	if b.renderer == nil {
		return
	}
	sc := s.SpanContext()
	if !sc.IsValid() {
		return
	}

	var parentID string
	if ps := trace.SpanFromContext(parent); ps.SpanContext().IsValid() {
		parentID = ps.SpanContext().SpanID().String()
	}

	b.renderer.OnTaskStart(sc.SpanID().String(), parentID, s.Name(), s.StartTime())
}

// OnEnd forwards a span's completion as OnTaskComplete, reconstructing an
// error from the span's status when it ended in codes.Error.
func (b *Bridge) OnEnd(s sdktrace.ReadOnlySpan) {
	if b.renderer == nil {
		return
	}
	sc := s.SpanContext()
	if !sc.IsValid() {
		return
	}

	var err error
	if s.Status().Code == codes.Error {
		desc := s.Status().Description
		if desc == "" {
			desc = "task failed"
		}
		err = errors.New(desc)
	}

	b.renderer.OnTaskComplete(sc.SpanID().String(), s.EndTime(), err)
}

// ForceFlush satisfies sdktrace.SpanProcessor; the bridge has nothing to
// buffer itself (batching happens per-span in otelSpan).
func (b *Bridge) ForceFlush(_ context.Context) error { return nil }

// Shutdown satisfies sdktrace.SpanProcessor.
func (b *Bridge) Shutdown(_ context.Context) error { return nil }

var _ sdktrace.SpanProcessor = (*Bridge)(nil)

// SetupProvider installs a TracerProvider that routes every span through
// bridge, and returns a shutdown func the caller must invoke (flushing any
// remaining spans) before the process exits.
func SetupProvider(bridge *Bridge) func(context.Context) error {
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(bridge))
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}
