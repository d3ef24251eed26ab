package store

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = tracerName

// Load and save outcomes reported in the "result" attribute.
const (
	resultLoaded = "loaded"
	resultNew    = "new"
	resultSaved  = "saved"
	resultError  = "error"
)

// instruments holds the store's OpenTelemetry metrics.
type instruments struct {
	loads        metric.Int64Counter
	saves        metric.Int64Counter
	saveDuration metric.Float64Histogram
	cached       metric.Int64UpDownCounter
}

func newInstruments(mp metric.MeterProvider) (*instruments, error) {
	m := mp.Meter(meterName)
	in := &instruments{}

	var err error
	in.loads, err = m.Int64Counter("tapedeck.tape.loads",
		metric.WithDescription("Tape loads from the backend"),
		metric.WithUnit("{load}"),
	)
	if err != nil {
		return nil, err
	}
	in.saves, err = m.Int64Counter("tapedeck.tape.saves",
		metric.WithDescription("Tape writes to the backend"),
		metric.WithUnit("{save}"),
	)
	if err != nil {
		return nil, err
	}
	in.saveDuration, err = m.Float64Histogram("tapedeck.tape.save.duration",
		metric.WithDescription("Time spent writing a tape"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5),
	)
	if err != nil {
		return nil, err
	}
	in.cached, err = m.Int64UpDownCounter("tapedeck.tapes.cached",
		metric.WithDescription("Tapes currently held by the store"),
		metric.WithUnit("{tape}"),
	)
	if err != nil {
		return nil, err
	}
	return in, nil
}

func (in *instruments) load(ctx context.Context, result string) {
	in.loads.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (in *instruments) save(ctx context.Context, result string, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("result", result))
	in.saves.Add(ctx, 1, attrs)
	in.saveDuration.Record(ctx, elapsed.Seconds(), attrs)
}
