// Package errors provides the structured error type used at gridstore's
// outer surfaces (HTTP responses, logs).
//
// AppError carries a machine-readable code, an HTTP status and a retryable
// flag. Storage-internal errors stay plain Go errors; translation into an
// AppError happens at the edge (see gridfs.ToAppError).
package errors
