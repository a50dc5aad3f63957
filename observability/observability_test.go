package observability

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/kbukum/gridstore/component"
)

func TestDefaultTracerConfig(t *testing.T) {
	cfg := DefaultTracerConfig("gridstore")

	if cfg.ServiceName != "gridstore" {
		t.Errorf("expected ServiceName 'gridstore', got %s", cfg.ServiceName)
	}
	if cfg.Endpoint != "localhost:4318" {
		t.Errorf("expected Endpoint 'localhost:4318', got %s", cfg.Endpoint)
	}
	if cfg.SampleRate != 1.0 {
		t.Errorf("expected SampleRate 1.0, got %f", cfg.SampleRate)
	}
	if !cfg.Insecure {
		t.Error("expected Insecure to be true")
	}
}

func TestDefaultMeterConfig(t *testing.T) {
	cfg := DefaultMeterConfig("gridstore")
	if cfg.Interval != 15*time.Second {
		t.Errorf("expected Interval 15s, got %v", cfg.Interval)
	}
}

func TestNewMetrics_Noop(t *testing.T) {
	metrics, err := NewMetrics(noop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("unexpected error creating metrics: %v", err)
	}

	ctx := context.Background()
	metrics.RecordUploadStart(ctx)
	metrics.RecordUploadEnd(ctx, "fs", StatusOK, 10, time.Millisecond)
	metrics.RecordConnection(ctx, "url", StatusOK)
	metrics.RecordRemove(ctx, "fs", StatusOK)
}

// collect returns the sums of int64 counters keyed by instrument name.
func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					out[m.Name] += dp.Value
				}
			}
		}
	}
	return out
}

func TestUploadOperation_RecordsMetricsAndSpan(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer tp.Shutdown(context.Background())
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	metrics, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	op := StartUpload(context.Background(), metrics, "fs")
	op.SetBucket("avatars")
	op.SetFile("abc", "a.png", 1024)
	op.SetState("streaming")
	op.SetBytes(42)
	op.End(StatusOK, nil)

	failed := StartUpload(context.Background(), metrics, "fs")
	failed.End(StatusStreamError, fmt.Errorf("duplicate key"))

	sums := collect(t, reader)
	if sums["gridfs.upload.total"] != 2 {
		t.Errorf("upload.total = %d, want 2", sums["gridfs.upload.total"])
	}
	if sums["gridfs.upload.bytes"] != 42 {
		t.Errorf("upload.bytes = %d, want 42", sums["gridfs.upload.bytes"])
	}
	if sums["gridfs.upload.active"] != 0 {
		t.Errorf("upload.active = %d, want 0", sums["gridfs.upload.active"])
	}

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name != SpanUpload {
		t.Errorf("span name = %q, want %q", spans[0].Name, SpanUpload)
	}
	if len(spans[1].Events) == 0 {
		t.Error("expected the failed span to record the error event")
	}
}

func TestUploadOperation_NilMetrics(t *testing.T) {
	op := StartUpload(context.Background(), nil, "fs")
	if op.Context() == nil {
		t.Fatal("expected context")
	}
	op.End(StatusFailed, fmt.Errorf("boom"))
	if op.Duration() < 0 {
		t.Error("duration should be non-negative")
	}
}

func TestServiceHealth_AddComponent(t *testing.T) {
	sh := NewServiceHealth("gridstore", "1.0.0")
	if !sh.IsUp() {
		t.Fatal("new service health should be up")
	}

	sh.AddComponent(component.Health{Name: "gridfs", Status: component.StatusHealthy})
	if sh.Status != HealthStatusUp {
		t.Errorf("expected up, got %s", sh.Status)
	}

	sh.AddComponent(component.Health{Name: "http", Status: component.StatusDegraded})
	if sh.Status != HealthStatusDegraded || !sh.IsUp() {
		t.Errorf("expected degraded and up, got %s", sh.Status)
	}

	sh.AddComponents([]component.Health{{Name: "gridfs", Status: component.StatusUnhealthy}})
	if sh.Status != HealthStatusDown || sh.IsUp() {
		t.Errorf("expected down, got %s", sh.Status)
	}

	sh.AddComponent(component.Health{Name: "x", Status: component.StatusDegraded})
	if sh.Status != HealthStatusDown {
		t.Errorf("degraded must not override down, got %s", sh.Status)
	}
	if len(sh.Components) != 4 {
		t.Errorf("expected 4 components, got %d", len(sh.Components))
	}
}

func TestStartSpanAndAttributes(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer tp.Shutdown(context.Background())
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	ctx, span := StartSpan(context.Background(), SpanConnect)
	SetSpanAttribute(ctx, "string-key", "value")
	SetSpanAttribute(ctx, "int-key", 42)
	SetSpanAttribute(ctx, "int32-key", int32(7))
	SetSpanAttribute(ctx, "int64-key", int64(100))
	SetSpanAttribute(ctx, "float-key", 3.14)
	SetSpanAttribute(ctx, "bool-key", true)
	SetSpanAttribute(ctx, "slice-key", []string{"a", "b"})
	SetSpanAttribute(ctx, "unsupported-key", struct{}{})
	SetSpanError(ctx, fmt.Errorf("test error"))
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if got := len(spans[0].Attributes); got != 7 {
		t.Errorf("expected 7 attributes, got %d", got)
	}
}

func TestSpanHelpersWithoutSpan(t *testing.T) {
	ctx := context.Background()
	SetSpanAttribute(ctx, "key", "value")
	SetSpanError(ctx, fmt.Errorf("no span"))
	if SpanFromContext(ctx) == nil {
		t.Fatal("expected non-nil noop span")
	}
}

func TestConfig_DefaultsAndValidate(t *testing.T) {
	c := Config{}
	c.ApplyDefaults()
	if c.Endpoint != "localhost:4318" || c.SampleRate != 1.0 || c.MetricInterval != 15*time.Second {
		t.Errorf("unexpected defaults %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("disabled config should validate, got %v", err)
	}

	c.Enabled = true
	if err := c.Validate(); err == nil {
		t.Error("expected error for missing service name")
	}
	c.ServiceName = "gridstore"
	c.SampleRate = 2
	if err := c.Validate(); err == nil {
		t.Error("expected error for sample rate out of range")
	}
}

func TestInit_Disabled(t *testing.T) {
	shutdown, err := Init(context.Background(), &Config{})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestInitTracerAndMeter(t *testing.T) {
	prevTP := otel.GetTracerProvider()
	prevMP := otel.GetMeterProvider()
	defer func() {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
	}()

	shutdown, err := Init(context.Background(), &Config{
		Enabled:        true,
		ServiceName:    "gridstore",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		SampleRate:     0.5,
		MetricInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	// Nothing listens on the endpoint, so the final flush may fail.
	_ = shutdown(ctx)
}

func TestSampler(t *testing.T) {
	if sampler(1).Description() != sdktrace.AlwaysSample().Description() {
		t.Error("rate 1 should always sample")
	}
	if sampler(0).Description() != sdktrace.NeverSample().Description() {
		t.Error("rate 0 should never sample")
	}
	if sampler(0.25).Description() != sdktrace.TraceIDRatioBased(0.25).Description() {
		t.Error("fractional rate should be ratio based")
	}
}
