package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/gridstore/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	// ServiceName is the name of the service.
	ServiceName string
	// ServiceVersion is the version of the service.
	ServiceVersion string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	// Insecure allows insecure connections (for development).
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// DefaultMeterConfig returns sensible defaults for development.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: "dev",
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// InitMeter initializes the OpenTelemetry meter provider.
// Returns a MeterProvider that should be shut down on application exit.
func InitMeter(ctx context.Context, config *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))

	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Upload outcome labels.
const (
	StatusOK          = "ok"
	StatusStreamError = "stream_error"
	StatusFailed      = "failed"
)

// Metrics holds the instruments recorded by the storage engine.
type Metrics struct {
	uploadTotal    metric.Int64Counter
	uploadBytes    metric.Int64Counter
	uploadDuration metric.Float64Histogram
	uploadActive   metric.Int64UpDownCounter
	connections    metric.Int64Counter
	removals       metric.Int64Counter
}

// NewMetrics creates metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	uploadTotal, err := meter.Int64Counter("gridfs.upload.total",
		metric.WithDescription("Total number of uploads by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating gridfs.upload.total counter: %w", err)
	}

	uploadBytes, err := meter.Int64Counter("gridfs.upload.bytes",
		metric.WithDescription("Bytes written into the object store"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating gridfs.upload.bytes counter: %w", err)
	}

	uploadDuration, err := meter.Float64Histogram("gridfs.upload.duration",
		metric.WithDescription("Duration of uploads in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating gridfs.upload.duration histogram: %w", err)
	}

	uploadActive, err := meter.Int64UpDownCounter("gridfs.upload.active",
		metric.WithDescription("Number of uploads in flight"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating gridfs.upload.active gauge: %w", err)
	}

	connections, err := meter.Int64Counter("gridfs.connection.total",
		metric.WithDescription("Connection attempts by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating gridfs.connection.total counter: %w", err)
	}

	removals, err := meter.Int64Counter("gridfs.remove.total",
		metric.WithDescription("File removals by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating gridfs.remove.total counter: %w", err)
	}

	return &Metrics{
		uploadTotal:    uploadTotal,
		uploadBytes:    uploadBytes,
		uploadDuration: uploadDuration,
		uploadActive:   uploadActive,
		connections:    connections,
		removals:       removals,
	}, nil
}

// RecordUploadStart increments the in-flight upload count.
func (m *Metrics) RecordUploadStart(ctx context.Context) {
	m.uploadActive.Add(ctx, 1)
}

// RecordUploadEnd decrements in-flight uploads and records the outcome.
func (m *Metrics) RecordUploadEnd(ctx context.Context, bucket, status string, bytes int64, duration time.Duration) {
	m.uploadActive.Add(ctx, -1)
	m.uploadTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("bucket", bucket),
		attribute.String("status", status),
	))
	if bytes > 0 {
		m.uploadBytes.Add(ctx, bytes, metric.WithAttributes(attribute.String("bucket", bucket)))
	}
	m.uploadDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("bucket", bucket),
	))
}

// RecordConnection records a connection attempt outcome for a mode
// ("url", "handle" or "pending").
func (m *Metrics) RecordConnection(ctx context.Context, mode, status string) {
	m.connections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("status", status),
	))
}

// RecordRemove records a file removal outcome.
func (m *Metrics) RecordRemove(ctx context.Context, bucket, status string) {
	m.removals.Add(ctx, 1, metric.WithAttributes(
		attribute.String("bucket", bucket),
		attribute.String("status", status),
	))
}
