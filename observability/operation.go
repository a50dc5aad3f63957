package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// UploadOperation tracks one file from arrival to its outcome.
type UploadOperation struct {
	Bucket    string
	StartTime time.Time
	Metrics   *Metrics

	ctx   context.Context
	span  trace.Span
	bytes int64
}

// StartUpload opens the upload span and records the start metric.
// If metrics is nil, metric recording is silently skipped.
func StartUpload(ctx context.Context, metrics *Metrics, bucket string) *UploadOperation {
	ctx, span := StartSpan(ctx, SpanUpload, trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(attribute.String(AttrBucket, bucket))
	if metrics != nil {
		metrics.RecordUploadStart(ctx)
	}
	return &UploadOperation{
		Bucket:    bucket,
		StartTime: time.Now(),
		Metrics:   metrics,
		ctx:       ctx,
		span:      span,
	}
}

// Context returns the context carrying the upload span.
func (op *UploadOperation) Context() context.Context {
	return op.ctx
}

// SetBucket updates the bucket once metadata is resolved.
func (op *UploadOperation) SetBucket(bucket string) {
	op.Bucket = bucket
	op.span.SetAttributes(attribute.String(AttrBucket, bucket))
}

// SetFile annotates the span with the stored file identity.
func (op *UploadOperation) SetFile(id, filename string, chunkSize int32) {
	op.span.SetAttributes(
		attribute.String(AttrFileID, id),
		attribute.String(AttrFilename, filename),
		attribute.Int(AttrChunkSize, int(chunkSize)),
	)
}

// SetState records a state transition as a span event.
func (op *UploadOperation) SetState(state string) {
	op.span.AddEvent("state", trace.WithAttributes(attribute.String(AttrFileState, state)))
}

// SetBytes records the number of bytes written.
func (op *UploadOperation) SetBytes(n int64) {
	op.bytes = n
}

// End closes the span and records the outcome.
func (op *UploadOperation) End(status string, err error) {
	duration := time.Since(op.StartTime)

	if err != nil {
		op.span.RecordError(err)
		op.span.SetStatus(codes.Error, err.Error())
		op.span.SetAttributes(attribute.String(AttrErrorMessage, err.Error()))
	}
	op.span.SetAttributes(
		attribute.String(AttrStatus, status),
		attribute.Int64(AttrSize, op.bytes),
		attribute.Int64(AttrDurationMs, duration.Milliseconds()),
	)
	op.span.End()

	if op.Metrics != nil {
		op.Metrics.RecordUploadEnd(op.ctx, op.Bucket, status, op.bytes, duration)
	}
}

// Duration returns the elapsed time since the upload started.
func (op *UploadOperation) Duration() time.Duration {
	return time.Since(op.StartTime)
}
