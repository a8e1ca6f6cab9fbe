package batch

import "github.com/kailas-cloud/kvecd/internal/domain"

// ItemStatus is the processing outcome of a single batch slot.
type ItemStatus string

// Batch slot status values.
const (
	StatusOK        ItemStatus = "ok"
	StatusError     ItemStatus = "error"
	StatusCancelled ItemStatus = "cancelled"
)

// Result is the outcome of one slot in a batch operation. Slots are
// correlated by input index, never by completion order.
type Result[T any] struct {
	index  int
	status ItemStatus
	value  T
	err    error
}

// NewOK creates a successful slot result.
func NewOK[T any](index int, value T) Result[T] {
	return Result[T]{index: index, status: StatusOK, value: value}
}

// NewError creates a failed slot result.
func NewError[T any](index int, err error) Result[T] {
	return Result[T]{index: index, status: StatusError, err: err}
}

// NewCancelled marks a slot whose sub-operation never started. Its Err
// is always domain.ErrCancelled.
func NewCancelled[T any](index int) Result[T] {
	return Result[T]{index: index, status: StatusCancelled, err: domain.ErrCancelled}
}

// Index returns the slot's position in the request.
func (r Result[T]) Index() int { return r.index }

// Status returns the processing outcome.
func (r Result[T]) Status() ItemStatus { return r.status }

// Value returns the successful payload, zero unless Status is ok.
func (r Result[T]) Value() T { return r.value }

// Err returns the error, if any.
func (r Result[T]) Err() error { return r.err }
