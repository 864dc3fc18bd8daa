package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/indexedrb/pkg/observability"
	"github.com/Sumatoshi-tech/indexedrb/pkg/rbtree"
	"github.com/Sumatoshi-tech/indexedrb/pkg/version"
)

func decodeRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	var record map[string]any

	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

	return record
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := observability.DefaultConfig()

	assert.Equal(t, "indexedrb", cfg.ServiceName)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.False(t, cfg.LogJSON)
	assert.Empty(t, cfg.Environment)
	assert.Nil(t, cfg.Output)
}

func TestTracingHandler_InjectsTraceContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := observability.NewLogger(observability.Config{
		ServiceName: "test-svc",
		Environment: "test",
		LogLevel:    slog.LevelDebug,
		LogJSON:     true,
		Output:      &buf,
	})

	traceID, err := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	require.NoError(t, err)

	spanID, err := trace.SpanIDFromHex("0102030405060708")
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})

	logger.InfoContext(trace.ContextWithSpanContext(context.Background(), sc), "test message")

	record := decodeRecord(t, &buf)
	assert.Equal(t, "0102030405060708090a0b0c0d0e0f10", record["trace_id"])
	assert.Equal(t, "0102030405060708", record["span_id"])
	assert.Equal(t, "test-svc", record["service"])
	assert.Equal(t, "test", record["env"])
	assert.Equal(t, version.String(), record["version"])
	assert.Equal(t, version.GitHash, record["commit"])
}

func TestTracingHandler_NoTraceContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(observability.NewTracingHandler(inner, "indexedrb", ""))

	logger.InfoContext(context.Background(), "no span")

	record := decodeRecord(t, &buf)

	_, hasTraceID := record["trace_id"]
	assert.False(t, hasTraceID)

	_, hasEnv := record["env"]
	assert.False(t, hasEnv)
	assert.Equal(t, "indexedrb", record["service"])
}

func TestTracingHandler_WithGroup(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(observability.NewTracingHandler(inner, "indexedrb", ""))

	logger.WithGroup("tree").InfoContext(context.Background(), "rebalanced", slog.Int("rotations", 3))

	record := decodeRecord(t, &buf)
	assert.Equal(t, "indexedrb", record["service"])

	group, ok := record["tree"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 3, group["rotations"], 0)
}

func TestNewLogger_LevelFiltersAllocatorDebug(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	alloc := rbtree.NewAllocator[int]()
	alloc.Logger = observability.NewLogger(observability.Config{
		ServiceName: "indexedrb",
		LogLevel:    slog.LevelInfo,
		Output:      &buf,
	})

	tree := rbtree.NewWithAllocator(alloc)
	require.NoError(t, tree.PushBack(1, 1))

	alloc.Hibernate()
	alloc.Boot()
	assert.Empty(t, buf.String())

	alloc.Logger = observability.NewLogger(observability.Config{
		ServiceName: "indexedrb",
		LogLevel:    slog.LevelDebug,
		Output:      &buf,
	})

	alloc.Hibernate()
	alloc.Boot()
	assert.Contains(t, buf.String(), "rbtree: allocator hibernated")
	assert.Contains(t, buf.String(), "service=indexedrb")
}
