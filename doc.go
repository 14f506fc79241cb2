// Package outcall provides an orchestration core for slow, expensive calls
// to external generation providers (video rendering, voice-model training,
// and similar long-running third-party work).
//
// Outcall is designed as a library, not a service. Import it, wire a provider
// client and a cache store into an orchestrate.Orchestrator, and submit jobs.
// The orchestrator drives each logical job through bounded retries with
// exponential backoff, wraps every attempt in its own deadline, enforces a
// hard outer deadline for the whole operation, and guarantees that at most
// one attempt is in flight per job key (single-flight).
//
// # Quick Start
//
//	orc, err := orchestrate.New(client,
//	    orchestrate.WithCache(c),
//	    orchestrate.WithResetNotifier(notifier),
//	)
//	res, err := orc.Submit(ctx, &provider.Request{
//	    Subject:  "story-42",
//	    Category: "video",
//	    Content:  script,
//	})
//
// # Architecture
//
// Four subsystems, bottom-up: contenthash digests a request's semantically
// relevant fields into a stable cache key; cache provides get-or-compute
// semantics over a durable store with an in-memory fallback; correlate
// bridges a provider's asynchronous completion signal back to the pending
// caller that is blocked awaiting it; orchestrate drives the whole operation
// and owns cleanup on every exit path.
//
// The cache follows a composable store pattern: cache.Store is a narrow
// interface with redis, bun (PostgreSQL), pgx, and in-memory backends.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package outcall
