// Package correlate matches asynchronous provider callbacks to the in-flight
// operations waiting for them.
//
// An operation that dispatches work to an asynchronous provider registers a
// waiter under the provider-assigned task ID, then blocks on it. When the
// provider's completion or failure callback arrives, the manager resolves
// the waiter and the operation resumes. Each task ID has at most one waiter;
// a waiter is resolved exactly once, by whichever of callback, deadline, or
// cancellation happens first.
//
// Deadlines are armed per waiter via the injected Clock, so tests drive
// expiry deterministically. A periodic sweep backstops the timers: any
// waiter found past its deadline plus a grace window is expired even if its
// timer never fired.
package correlate
