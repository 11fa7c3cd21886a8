package pricing

import (
	"errors"
	"fmt"
)

var (
	// ErrConcurrencyConflict is returned when a concurrent writer holds or
	// invalidated the row being recalculated. Callers should retry.
	ErrConcurrencyConflict = errors.New("pricing: concurrency conflict")
	// ErrInvariantViolation signals inconsistent input data. It aborts the
	// enclosing transaction and is never recovered.
	ErrInvariantViolation = errors.New("pricing: invariant violation")
	// ErrNotFound is returned when the document does not exist.
	ErrNotFound = errors.New("pricing: not found")
)

func invariantf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariantViolation, fmt.Sprintf(format, args...))
}
