package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Observability records collection runs through an OpenTelemetry meter
// exported on the default Prometheus registry.
type Observability struct {
	meterProvider   *metric.MeterProvider
	runCounter      otelmetric.Int64Counter
	runDuration     otelmetric.Float64Histogram
	approvedCounter otelmetric.Int64Counter
}

// New never fails; without an exporter every Record call is a no-op.
func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	meter := provider.Meter(serviceName)

	runCounter, _ := meter.Int64Counter(
		"collection.runs",
		otelmetric.WithDescription("Number of item collection runs"),
	)
	runDuration, _ := meter.Float64Histogram(
		"collection.duration",
		otelmetric.WithDescription("Item collection run duration"),
		otelmetric.WithUnit("ms"),
	)
	approvedCounter, _ := meter.Int64Counter(
		"collection.approved_images",
		otelmetric.WithDescription("Images approved during collection runs"),
	)

	return &Observability{
		meterProvider:   provider,
		runCounter:      runCounter,
		runDuration:     runDuration,
		approvedCounter: approvedCounter,
	}
}

// RecordRun records one finished collection run for category with the
// resulting item status.
func (o *Observability) RecordRun(ctx context.Context, category, status string, duration time.Duration, approved int) {
	if o == nil || o.runCounter == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("category", category),
		attribute.String("status", status),
	)
	o.runCounter.Add(ctx, 1, attrs)
	o.runDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	if approved > 0 {
		o.approvedCounter.Add(ctx, int64(approved), otelmetric.WithAttributes(attribute.String("category", category)))
	}
}

func (o *Observability) Shutdown() {
	if o == nil || o.meterProvider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = o.meterProvider.Shutdown(ctx)
}
