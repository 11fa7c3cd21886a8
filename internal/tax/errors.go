package tax

import (
	"errors"
	"fmt"
)

// ErrProvider is the sentinel matched by every tax provider failure.
var ErrProvider = errors.New("tax provider error")

// Error describes a failed interaction with a tax provider. It is recovered
// by the pricing pipeline and never surfaced to callers.
type Error struct {
	Op  string
	Err error
}

// NewError wraps err as a tax provider failure raised by op.
func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("tax: %s failed", e.Op)
	}
	return fmt.Sprintf("tax: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes every *Error match ErrProvider.
func (e *Error) Is(target error) bool { return target == ErrProvider }

// Result carries either a value or a provider error.
type Result[T any] struct {
	Value T
	Err   error
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] { return Result[T]{Value: v} }

// Fail wraps a provider failure.
func Fail[T any](err error) Result[T] { return Result[T]{Err: err} }

// IsOk reports whether the result carries a value.
func (r Result[T]) IsOk() bool { return r.Err == nil }

// Unpack returns the value and the error.
func (r Result[T]) Unpack() (T, error) { return r.Value, r.Err }
