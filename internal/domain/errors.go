package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated means there is no usable credential. It is never retried automatically.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrNotFound means the owner has no row with the given id.
	ErrNotFound = errors.New("not found")

	// ErrInvalidCapture means a capture request violates its invariant.
	ErrInvalidCapture = errors.New("invalid capture")
)

// PersistenceError reports a rejected write to the store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsPersistence reports whether err is, or wraps, a PersistenceError.
func IsPersistence(err error) bool {
	var pErr *PersistenceError
	return errors.As(err, &pErr)
}
