package async

import (
	"fmt"
	"runtime/debug"
)

// PanicError carries a recovered panic value that was not itself an error.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// FromPanic converts a value returned by recover into an error.
// Error values are returned unchanged so callers can match on identity.
// It returns nil when v is nil.
func FromPanic(v any) error {
	if v == nil {
		return nil
	}
	if err, ok := v.(error); ok {
		return err
	}
	return &PanicError{Value: v, Stack: debug.Stack()}
}

// Capture runs fn and returns its error, or the recovered panic converted
// with FromPanic.
func Capture(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = FromPanic(r)
		}
	}()
	return fn()
}
