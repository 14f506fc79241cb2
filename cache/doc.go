// Package cache provides the content-addressed result cache: get-or-compute
// semantics keyed by content digest, with TTL expiry and a durable-then-
// ephemeral two-tier fallback.
//
// The cache exists to avoid re-paying generation providers for work already
// done. A key is a pure function of the semantically relevant request content
// (see the contenthash package), so identical inputs always resolve to the
// same entry.
//
// Concurrent callers requesting the same missing key share a single compute:
// the first caller runs the compute function, the rest wait for it to settle.
// A failure in the durable tier degrades the operation to the ephemeral tier
// or to a plain passthrough; a cache write failure is logged and never fails
// the caller.
//
// Backends implement the narrow Store interface; redis, bun (PostgreSQL),
// pgx, and in-memory implementations live in subpackages.
package cache
