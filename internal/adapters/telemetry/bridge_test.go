package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/whizrun/whiz/internal/adapters/telemetry"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type recordedComplete struct {
	spanID string
	end    time.Time
	err    error
}

type fakeRenderer struct {
	starts    []string
	logs      []string
	completes []recordedComplete
}

func (r *fakeRenderer) OnPlanEmit(_ []string, _ map[string][]string, _ []string) {}
func (r *fakeRenderer) OnTaskStart(spanID, _, _ string, _ time.Time) {
	r.starts = append(r.starts, spanID)
}
func (r *fakeRenderer) OnTaskLog(_ string, data []byte) {
	r.logs = append(r.logs, string(data))
}
func (r *fakeRenderer) OnTaskComplete(spanID string, end time.Time, err error) {
	r.completes = append(r.completes, recordedComplete{spanID: spanID, end: end, err: err})
}

func TestBridge_OnStart_ForwardsToRenderer(t *testing.T) {
	renderer := &fakeRenderer{}
	bridge := telemetry.NewBridge(renderer)

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "task-a")
	defer span.End()

	rw, ok := span.(sdktrace.ReadWriteSpan)
	require.True(t, ok)
	bridge.OnStart(ctx, rw)

	require.Len(t, renderer.starts, 1)
	assert.NotEmpty(t, renderer.starts[0])
}

func TestBridge_OnStart_NilRendererIsNoop(t *testing.T) {
	bridge := telemetry.NewBridge(nil)

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "task-a")
	defer span.End()

	rw, ok := span.(sdktrace.ReadWriteSpan)
	require.True(t, ok)
	bridge.OnStart(ctx, rw) // must not panic
}

func TestBridge_OnEnd_SuccessHasNoError(t *testing.T) {
	renderer := &fakeRenderer{}
	bridge := telemetry.NewBridge(renderer)

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	_, span := tp.Tracer("test").Start(context.Background(), "task-a")
	span.End()

	ro, ok := span.(sdktrace.ReadOnlySpan)
	require.True(t, ok)
	bridge.OnEnd(ro)

	require.Len(t, renderer.completes, 1)
	assert.NoError(t, renderer.completes[0].err)
}

func TestBridge_OnEnd_ErrorStatusBecomesError(t *testing.T) {
	renderer := &fakeRenderer{}
	bridge := telemetry.NewBridge(renderer)

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	_, span := tp.Tracer("test").Start(context.Background(), "task-a")
	span.SetStatus(codes.Error, "boom")
	span.End()

	ro, ok := span.(sdktrace.ReadOnlySpan)
	require.True(t, ok)
	bridge.OnEnd(ro)

	require.Len(t, renderer.completes, 1)
	require.Error(t, renderer.completes[0].err)
	assert.Contains(t, renderer.completes[0].err.Error(), "boom")
}
