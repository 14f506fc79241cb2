package orchestrate

import "context"

// ResetNotifier clears the externally visible "in progress" flag for a
// logical job. The orchestrator calls it exactly once on every failure
// terminal and awaits the result; a stuck flag would block all future
// attempts at the same key.
type ResetNotifier interface {
	ResetInProgress(ctx context.Context, operationKey string) error
}

// ResetNotifierFunc adapts a function to the ResetNotifier interface.
type ResetNotifierFunc func(ctx context.Context, operationKey string) error

// ResetInProgress calls f.
func (f ResetNotifierFunc) ResetInProgress(ctx context.Context, operationKey string) error {
	return f(ctx, operationKey)
}

// noopNotifier is the default when no external state exists to reset.
type noopNotifier struct{}

func (noopNotifier) ResetInProgress(context.Context, string) error { return nil }
