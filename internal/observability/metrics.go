package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	initOnce sync.Once

	oracleCalls     metric.Int64Counter
	oracleFailures  metric.Int64Counter
	oracleLatencyMS metric.Float64Histogram
)

func initInstruments() {
	meter := otel.GetMeterProvider().Meter("biopath/oracle")
	oracleCalls, _ = meter.Int64Counter("oracle.calls",
		metric.WithDescription("Classification oracle calls"))
	oracleFailures, _ = meter.Int64Counter("oracle.failures",
		metric.WithDescription("Classification oracle calls that failed after retries"))
	oracleLatencyMS, _ = meter.Float64Histogram("oracle.latency_ms",
		metric.WithDescription("Classification oracle call latency"),
		metric.WithUnit("ms"))
}

// RecordOracleCall records one completed oracle call for a pipeline stage.
func RecordOracleCall(ctx context.Context, stage string, dur time.Duration, failed bool) {
	initOnce.Do(initInstruments)
	attrs := metric.WithAttributes(attribute.String("stage", stage))
	if oracleCalls != nil {
		oracleCalls.Add(ctx, 1, attrs)
	}
	if failed && oracleFailures != nil {
		oracleFailures.Add(ctx, 1, attrs)
	}
	if oracleLatencyMS != nil {
		oracleLatencyMS.Record(ctx, float64(dur.Milliseconds()), attrs)
	}
}
