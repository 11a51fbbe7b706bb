package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput marks malformed requests, unsupported strategy types,
	// bad parameters, and empty historical windows.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidTransition is returned when a lifecycle update would move an
	// entity backwards or out of a terminal state.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// StoreError wraps a failure reported by the metadata or time-series store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError wraps err with the failed operation name. A nil err yields nil.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
