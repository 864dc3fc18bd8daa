package observability_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/indexedrb/pkg/observability"
	"github.com/Sumatoshi-tech/indexedrb/pkg/rbtree"
)

func setupTestMeter(t *testing.T) (*observability.TreeMetrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := observability.NewTreeMetrics(mp.Meter("test"))
	require.NoError(t, err)

	return metrics, reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics

	err := reader.Collect(context.Background(), &rm)
	require.NoError(t, err)

	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for idx := range rm.ScopeMetrics {
		for midx := range rm.ScopeMetrics[idx].Metrics {
			if rm.ScopeMetrics[idx].Metrics[midx].Name == name {
				return &rm.ScopeMetrics[idx].Metrics[midx]
			}
		}
	}

	return nil
}

// sumFor returns the counter value of the data point whose op attribute equals op.
func sumFor(t *testing.T, metric *metricdata.Metrics, op string) int64 {
	t.Helper()

	require.NotNil(t, metric)

	sum, ok := metric.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	total := int64(0)

	for _, dp := range sum.DataPoints {
		value, found := dp.Attributes.Value(attribute.Key("op"))
		if found && value.AsString() == op {
			total += dp.Value
		}
	}

	return total
}

func TestTreeMetrics_RecordOp(t *testing.T) {
	t.Parallel()

	metrics, reader := setupTestMeter(t)
	ctx := context.Background()

	metrics.RecordOp(ctx, rbtree.OpStats{Op: rbtree.OpInsert, Duration: time.Microsecond, Rotations: 2})
	metrics.RecordOp(ctx, rbtree.OpStats{Op: rbtree.OpInsert, Duration: time.Microsecond})
	metrics.RecordOp(ctx, rbtree.OpStats{Op: rbtree.OpLookup, Err: errors.New("boom"), Duration: time.Microsecond})

	rm := collectMetrics(t, reader)

	assert.Equal(t, int64(2), sumFor(t, findMetric(rm, "indexedrb.tree.ops.total"), rbtree.OpInsert))
	assert.Equal(t, int64(1), sumFor(t, findMetric(rm, "indexedrb.tree.ops.total"), rbtree.OpLookup))
	assert.Equal(t, int64(1), sumFor(t, findMetric(rm, "indexedrb.tree.errors.total"), rbtree.OpLookup))
	assert.Equal(t, int64(2), sumFor(t, findMetric(rm, "indexedrb.tree.rotations.total"), rbtree.OpInsert))

	duration := findMetric(rm, "indexedrb.tree.op.duration.seconds")
	require.NotNil(t, duration)

	histogram, ok := duration.Data.(metricdata.Histogram[float64])
	require.True(t, ok)

	count := uint64(0)
	for _, dp := range histogram.DataPoints {
		count += dp.Count
	}

	assert.Equal(t, uint64(3), count)
}

func TestTreeMetrics_NilSafe(t *testing.T) {
	t.Parallel()

	var metrics *observability.TreeMetrics

	assert.NotPanics(t, func() {
		metrics.RecordOp(context.Background(), rbtree.OpStats{Op: rbtree.OpClear})
	})
}

func TestTreeMetrics_WithLocked(t *testing.T) {
	t.Parallel()

	metrics, reader := setupTestMeter(t)
	locked := rbtree.NewLocked(rbtree.New[int](), rbtree.WithRecorder(metrics))

	for idx := range 100 {
		require.NoError(t, locked.InsertAt(idx, idx, 1))
	}

	_, err := locked.DeleteAt(1000)
	require.Error(t, err)

	rm := collectMetrics(t, reader)

	assert.Equal(t, int64(100), sumFor(t, findMetric(rm, "indexedrb.tree.ops.total"), rbtree.OpInsertAt))
	assert.Equal(t, int64(1), sumFor(t, findMetric(rm, "indexedrb.tree.errors.total"), rbtree.OpDeleteAt))
	assert.Positive(t, sumFor(t, findMetric(rm, "indexedrb.tree.rotations.total"), rbtree.OpInsertAt))
}
