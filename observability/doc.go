// Package observability wires OpenTelemetry tracing and metrics for
// gridstore and defines the instruments recorded for every upload.
//
// Tracing and metrics export over OTLP/HTTP:
//
//	shutdown, err := observability.Init(ctx, &cfg.Telemetry)
//	defer shutdown(ctx)
//
// Each stored file is tracked by an UploadOperation, which opens the
// gridfs.upload span and records gridfs.upload.total, gridfs.upload.bytes
// and gridfs.upload.duration when it ends:
//
//	op := observability.StartUpload(ctx, metrics, "fs")
//	defer op.End(observability.StatusOK, nil)
//
// Health:
//
//	health := observability.NewServiceHealth("gridstore", version.GetVersionInfo().Version)
//	health.AddComponents(registry.HealthAll(ctx))
package observability
