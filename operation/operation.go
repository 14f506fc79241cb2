// Package operation defines the retryable operation model shared by the
// orchestrator and the attempt middleware chain. It sits below both so that
// middleware can reference operations without importing the orchestrator.
package operation

import (
	"time"

	"github.com/xraph/outcall/id"
)

// State represents the lifecycle state of a retryable operation.
type State string

const (
	// StateRunning means attempts are being made.
	StateRunning State = "running"
	// StateSucceeded means an attempt produced a result.
	StateSucceeded State = "succeeded"
	// StateFailed means all attempts were consumed without success.
	StateFailed State = "failed"
	// StateTimedOut means the outer deadline elapsed before the loop finished.
	StateTimedOut State = "timed_out"
)

// Operation is one logical job being driven through bounded retries.
// The orchestrator guarantees at most one Operation exists per Key at any
// time; the final state transition removes the key from the active set.
type Operation struct {
	// ID is minted by the core for logging and tracing.
	ID id.OperationID `json:"id"`

	// Key identifies the logical job (subject + category) for single-flight.
	Key string `json:"key"`

	// TaskID is the provider-assigned identifier for the currently
	// dispatched unit of work, if the provider is asynchronous.
	TaskID string `json:"task_id,omitempty"`

	// Attempt is the 0-based attempt counter, bounded by MaxRetries.
	Attempt int `json:"attempt"`

	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int `json:"max_retries"`

	// PerAttemptTimeout bounds a single provider call.
	PerAttemptTimeout time.Duration `json:"per_attempt_timeout"`

	// OuterTimeout bounds the whole operation.
	OuterTimeout time.Duration `json:"outer_timeout"`

	// State is the current lifecycle state.
	State State `json:"state"`

	// StartedAt is when the operation was dispatched.
	StartedAt time.Time `json:"started_at"`

	// LastError holds the most recent attempt failure, for logs.
	LastError string `json:"last_error,omitempty"`
}

// Terminal reports whether the operation has reached a final state.
func (o *Operation) Terminal() bool {
	return o.State == StateSucceeded || o.State == StateFailed || o.State == StateTimedOut
}
