package internalerr

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrStorage           = errors.New("storage error")
	ErrDataInconsistency = errors.New("data inconsistency")
	ErrInvalidConfig     = errors.New("invalid configuration")
)

// Storage wraps a persistence failure so that callers can test for both
// ErrStorage and the driver's own error.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorage) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
