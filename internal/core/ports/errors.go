package ports

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicate is returned when a unique key (card tag identifier) already exists.
	ErrDuplicate = errors.New("duplicate record")
	// ErrConflict is returned when a compare-and-set balance update lost.
	ErrConflict = errors.New("concurrent modification")
	// ErrNotFound is returned by mutations that target a missing record.
	ErrNotFound = errors.New("record not found")
)

// StoreError is a classified backing-store failure (unreachable, timeout,
// driver error). Operations reporting it had no effect unless stated otherwise.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsStoreError reports whether err is a classified store failure.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
