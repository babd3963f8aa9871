package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useMockTracer(t *testing.T) *mocktracer.MockTracer {
	t.Helper()
	prev := opentracing.GlobalTracer()
	tracer := mocktracer.New()
	opentracing.SetGlobalTracer(tracer)
	t.Cleanup(func() { opentracing.SetGlobalTracer(prev) })
	return tracer
}

func TestStartRenderSpan(t *testing.T) {
	tracer := useMockTracer(t)

	span, ctx := StartRenderSpan(context.Background(), "render.job", "job-1", "webm")
	child, _ := StartSpan(ctx, "render.encode")
	SetTag(child, "frames", 150)
	LogEvent(child, "first_frame", "t", 0.0)
	FinishSpan(child)
	LogError(span, errors.New("encoder exited"))
	FinishSpan(span)

	finished := tracer.FinishedSpans()
	require.Len(t, finished, 2)

	encode, job := finished[0], finished[1]
	assert.Equal(t, "render.encode", encode.OperationName)
	assert.Equal(t, 150, encode.Tag("frames"))
	assert.Equal(t, job.SpanContext.SpanID, encode.ParentID)

	assert.Equal(t, "job-1", job.Tag("render.job_id"))
	assert.Equal(t, "webm", job.Tag("render.format"))
	assert.Equal(t, true, job.Tag("error"))
	require.Len(t, job.Logs(), 1)
}

func TestNilSpanHelpers(t *testing.T) {
	assert.NotPanics(t, func() {
		FinishSpan(nil)
		LogError(nil, errors.New("x"))
		LogEvent(nil, "x")
		SetTag(nil, "k", "v")
	})
}

func TestInitDisabled(t *testing.T) {
	prev := opentracing.GlobalTracer()
	t.Cleanup(func() { opentracing.SetGlobalTracer(prev) })

	tracer, closer, err := Init(false, "vedit", "")
	require.NoError(t, err)
	assert.IsType(t, opentracing.NoopTracer{}, tracer)
	assert.NoError(t, closer.Close())
}
