package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChildSpansInheritTraceID(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "ingestion.run", "run-1")
	_, first := StartChildSpan(ctx, "vocabulary")
	first.End()
	childCtx, second := StartChildSpan(ctx, "batches")
	_, nested := StartChildSpan(childCtx, "batch")
	nested.End()
	second.End()
	root.End()

	assert.Equal(t, "run-1", second.TraceID)
	assert.Equal(t, "run-1", nested.TraceID)
	assert.Same(t, second, SpanFromContext(childCtx))

	timings := root.Timings()
	require.Len(t, timings, 2)
	assert.Equal(t, "vocabulary", timings[0].Phase)
	assert.Equal(t, "batches", timings[1].Phase)
}

func TestOrphanSpanIsStandalone(t *testing.T) {
	_, span := StartChildSpan(context.Background(), "flush")
	span.End()
	assert.Empty(t, span.TraceID)
	assert.Nil(t, SpanFromContext(context.Background()))
}

func TestLogWritesEverySpan(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx, root := StartSpan(context.Background(), "ingestion.run", "run-2")
	_, child := StartChildSpan(ctx, "persist")
	child.SetAttr("terms", 3)
	child.End()
	root.End()
	root.Log(log)

	out := buf.String()
	assert.Contains(t, out, "span=ingestion.run")
	assert.Contains(t, out, "span=persist")
	assert.Contains(t, out, "terms=3")
	assert.Contains(t, out, "depth=1")
}
