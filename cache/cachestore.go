package cache

import (
	"context"
	"time"

	"github.com/opencontainers/go-digest"
)

// Store is the narrow persistence contract a cache backend must satisfy.
// Implementations return outcall.ErrEntryNotFound from Get when no entry
// exists for the key.
type Store interface {
	// Get retrieves the entry for a key. Expiry is the Cache's concern;
	// stores may additionally drop expired entries on their own (Redis
	// does, via server-side TTL).
	Get(ctx context.Context, key digest.Digest) (*Entry, error)

	// Put writes an entry, replacing any existing entry for the same key
	// (last-writer-wins).
	Put(ctx context.Context, e *Entry) error

	// Delete removes the entry for a key. Deleting a missing key is not
	// an error.
	Delete(ctx context.Context, key digest.Digest) error

	// PurgeExpired removes entries whose expiry is before the given
	// instant and returns how many were removed.
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
