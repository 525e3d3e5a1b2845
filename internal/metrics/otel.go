// Package metrics wraps OpenTelemetry metric instruments behind a
// narrow counter/histogram interface the pipeline reports through. It
// is a no-op unless Config.Enabled is set.
package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Config controls whether metrics are exported at all.
type Config struct {
	Enabled     bool
	Endpoint    string
	Insecure    bool
	ServiceName string
}

// Recorder reports pipeline counters and durations. Instruments are
// created lazily and cached by name.
type Recorder struct {
	meter metric.Meter

	mu         sync.Mutex
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
}

// Setup builds a Recorder. When cfg.Enabled is false, the returned
// Recorder uses the no-op meter provider and every call is a cheap
// no-op — the ambient observability path never blocks the pipeline on
// a missing collector.
func Setup(ctx context.Context, cfg Config) (*Recorder, func(context.Context) error, error) {
	if !cfg.Enabled {
		return newRecorder(noop.NewMeterProvider().Meter("vectoringest")), func(context.Context) error { return nil }, nil
	}

	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("metrics: build otlp exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))),
	)

	shutdown := func(ctx context.Context) error { return provider.Shutdown(ctx) }
	return newRecorder(provider.Meter(cfg.ServiceName)), shutdown, nil
}

func newRecorder(m metric.Meter) *Recorder {
	return &Recorder{
		meter:      m,
		counters:   make(map[string]metric.Int64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

// IncCounter increments the named counter by delta.
func (r *Recorder) IncCounter(ctx context.Context, name string, delta int64) {
	r.mu.Lock()
	c, ok := r.counters[name]
	if !ok {
		var err error
		c, err = r.meter.Int64Counter(name)
		if err != nil {
			r.mu.Unlock()
			return
		}
		r.counters[name] = c
	}
	r.mu.Unlock()
	c.Add(ctx, delta)
}

// ObserveHistogram records value against the named histogram.
func (r *Recorder) ObserveHistogram(ctx context.Context, name string, value float64) {
	r.mu.Lock()
	h, ok := r.histograms[name]
	if !ok {
		var err error
		h, err = r.meter.Float64Histogram(name)
		if err != nil {
			r.mu.Unlock()
			return
		}
		r.histograms[name] = h
	}
	r.mu.Unlock()
	h.Record(ctx, value)
}
