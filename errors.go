package outcall

import "errors"

var (
	// Single-flight errors.
	ErrAlreadyInProgress = errors.New("outcall: operation already in progress for key")

	// Terminal operation errors.
	ErrRetriesExhausted = errors.New("outcall: all retry attempts exhausted")
	ErrOperationTimeout = errors.New("outcall: outer deadline exceeded")

	// Correlation errors.
	ErrWaiterExists  = errors.New("outcall: waiter already registered for task")
	ErrWaiterTimeout = errors.New("outcall: waiter deadline elapsed before completion signal")

	// Cache errors.
	ErrEntryNotFound = errors.New("outcall: cache entry not found")
	ErrStoreClosed   = errors.New("outcall: cache store closed")

	// Input errors.
	ErrInvalidInput = errors.New("outcall: invalid input")
)
