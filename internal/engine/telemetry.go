package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("github.com/san-kum/composim/internal/engine")
var meter = otel.Meter("github.com/san-kum/composim/internal/engine")

// processIDKey labels every record with the process id.
const processIDKey = "process"

var (
	// updateDuration measures the wall time of one Process.Update call.
	updateDuration metric.Float64Histogram
	// updateFailures counts Process.Update calls that returned an error,
	// skipped ones included.
	updateFailures metric.Int64Counter
)

func init() {
	var err error
	updateDuration, err = meter.Float64Histogram(
		"process.update.duration",
		metric.WithDescription("The wall time of a single process update."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		panic("engine: failed to init 'process.update.duration' instrument")
	}

	updateFailures, err = meter.Int64Counter(
		"process.update.failures",
		metric.WithDescription("The number of process updates that returned an error."),
	)
	if err != nil {
		panic("engine: failed to init 'process.update.failures' instrument")
	}
}

// measureUpdate records a successful update's duration or counts a failure.
func measureUpdate(ctx context.Context, id string, succeeded bool, d time.Duration) {
	attrs := attribute.NewSet(attribute.String(processIDKey, id))
	if succeeded {
		updateDuration.Record(ctx, float64(d)/float64(time.Millisecond), metric.WithAttributeSet(attrs))
		return
	}
	updateFailures.Add(ctx, 1, metric.WithAttributeSet(attrs))
}
