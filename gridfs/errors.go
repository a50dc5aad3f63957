package gridfs

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/kbukum/gridstore/errors"
)

var (
	// ErrConnectionNotOpen is matched by every connection failure.
	ErrConnectionNotOpen = errors.New("The database connection must be open to store files")
	// ErrInvalidConfig is wrapped by configuration and file-setting errors.
	ErrInvalidConfig = errors.New("gridfs: invalid configuration")
	// ErrClosed is the cause recorded when the storage is closed.
	ErrClosed = errors.New("gridfs: storage closed")
	// ErrNoDriver is returned when no driver is registered for a URL scheme.
	ErrNoDriver = errors.New("gridfs: no driver for url scheme")
)

// ConnectionError reports that the database handle is not usable.
// Its message is always the ErrConnectionNotOpen text; the underlying
// connect error, rejection or close reason is available through Unwrap.
type ConnectionError struct {
	Cause error
}

func (e *ConnectionError) Error() string {
	return ErrConnectionNotOpen.Error()
}

// Is matches ErrConnectionNotOpen.
func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnectionNotOpen
}

func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

func connectionError(cause error) *ConnectionError {
	var ce *ConnectionError
	if errors.As(cause, &ce) {
		return ce
	}
	return &ConnectionError{Cause: cause}
}

// DuplicateKeyError is returned by drivers when a unique index rejects a
// file, for example when content uniqueness is enforced.
type DuplicateKeyError struct {
	Collection string
	Index      string
	Key        string
	Cause      error
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("E11000 duplicate key error collection: %s index: %s dup key: %s",
		e.Collection, e.Index, e.Key)
}

func (e *DuplicateKeyError) Unwrap() error { return e.Cause }

// IsDuplicateKey reports whether err is or wraps a DuplicateKeyError.
func IsDuplicateKey(err error) bool {
	var de *DuplicateKeyError
	return errors.As(err, &de)
}

// StoreError is returned by drivers for store-side write failures other
// than duplicate keys.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("gridfs %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func invalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// ToAppError converts a storage error to an AppError for HTTP responses.
func ToAppError(err error) *apperrors.AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := apperrors.AsAppError(err); ok {
		return appErr
	}

	var storeErr *StoreError
	switch {
	case errors.Is(err, ErrConnectionNotOpen), errors.Is(err, ErrClosed):
		return apperrors.ConnectionFailed("database").WithCause(err)
	case IsDuplicateKey(err):
		return apperrors.AlreadyExists("file").WithCause(err)
	case errors.Is(err, ErrInvalidConfig):
		return apperrors.InvalidInput("", err.Error()).WithCause(err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Timeout("upload").WithCause(err)
	case errors.As(err, &storeErr):
		return apperrors.StorageError(err)
	default:
		return apperrors.Internal(err)
	}
}
