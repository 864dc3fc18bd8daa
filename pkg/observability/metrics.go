package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Sumatoshi-tech/indexedrb/pkg/rbtree"
	"github.com/Sumatoshi-tech/indexedrb/pkg/safeconv"
)

const (
	metricOpsTotal       = "indexedrb.tree.ops.total"
	metricOpDuration     = "indexedrb.tree.op.duration.seconds"
	metricErrorsTotal    = "indexedrb.tree.errors.total"
	metricRotationsTotal = "indexedrb.tree.rotations.total"

	attrOp     = "op"
	attrStatus = "status"

	statusOK    = "ok"
	statusError = "error"
)

// durationBucketBoundaries covers 100ns to 100ms: single tree operations are
// logarithmic, batches under Locked.Update take longer.
var durationBucketBoundaries = []float64{1e-7, 5e-7, 1e-6, 5e-6, 1e-5, 5e-5, 1e-4, 1e-3, 1e-2, 1e-1}

// TreeMetrics holds the OTel instruments for tree operations. It implements
// rbtree.Recorder. A nil *TreeMetrics records nothing.
type TreeMetrics struct {
	opsTotal       metric.Int64Counter
	opDuration     metric.Float64Histogram
	errorsTotal    metric.Int64Counter
	rotationsTotal metric.Int64Counter
}

var _ rbtree.Recorder = (*TreeMetrics)(nil)

// NewTreeMetrics creates tree metric instruments from the given meter.
func NewTreeMetrics(mt metric.Meter) (*TreeMetrics, error) {
	opsTotal, err := mt.Int64Counter(metricOpsTotal,
		metric.WithDescription("Total number of tree operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricOpsTotal, err)
	}

	opDuration, err := mt.Float64Histogram(metricOpDuration,
		metric.WithDescription("Tree operation duration in seconds, including lock wait"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricOpDuration, err)
	}

	errorsTotal, err := mt.Int64Counter(metricErrorsTotal,
		metric.WithDescription("Total number of failed tree operations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricErrorsTotal, err)
	}

	rotationsTotal, err := mt.Int64Counter(metricRotationsTotal,
		metric.WithDescription("Total number of rebalancing rotations"),
		metric.WithUnit("{rotation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRotationsTotal, err)
	}

	return &TreeMetrics{
		opsTotal:       opsTotal,
		opDuration:     opDuration,
		errorsTotal:    errorsTotal,
		rotationsTotal: rotationsTotal,
	}, nil
}

// RecordOp records one completed tree operation.
func (tm *TreeMetrics) RecordOp(ctx context.Context, stats rbtree.OpStats) {
	if tm == nil {
		return
	}

	status := statusOK
	if stats.Err != nil {
		status = statusError
	}

	attrs := metric.WithAttributes(
		attribute.String(attrOp, stats.Op),
		attribute.String(attrStatus, status),
	)

	tm.opsTotal.Add(ctx, 1, attrs)
	tm.opDuration.Record(ctx, stats.Duration.Seconds(), attrs)

	if stats.Err != nil {
		tm.errorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrOp, stats.Op)))
	}

	if stats.Rotations > 0 {
		tm.rotationsTotal.Add(ctx, safeconv.MustUint64ToInt64(stats.Rotations),
			metric.WithAttributes(attribute.String(attrOp, stats.Op)))
	}
}
