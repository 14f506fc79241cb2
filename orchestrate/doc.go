// Package orchestrate drives a generation request through bounded retries,
// deadlines, caching, and callback correlation. It is the top of the stack:
// callers submit a request and receive exactly one of four outcomes —
// success with an artifact, retries exhausted, outer timeout, or immediate
// rejection because the same logical job is already in flight.
//
// The orchestrator guarantees:
//
//   - Single-flight per operation key: a second Submit for a running key is
//     rejected with outcall.ErrAlreadyInProgress, never queued.
//   - Bounded attempts: at most MaxRetries+1 provider invocations, paced by
//     the backoff schedule, all inside one outer deadline.
//   - Content-addressed caching: an unchanged input is served from the
//     cache without touching the provider.
//   - Mandatory cleanup: every failure terminal triggers the reset
//     notifier exactly once, awaited, so no external "in progress" flag
//     outlives the operation.
//
// Asynchronous providers are bridged through the correlate package: the
// orchestrator dispatches, registers a waiter under the provider's task ID,
// and blocks the attempt on the waiter. The provider's out-of-band
// completion callback is fed back in via HandleCompletion or HandleFailure.
package orchestrate
