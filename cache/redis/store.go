// Package redis implements cache.Store using Redis. Entries are stored as
// msgpack blobs under a configurable key prefix, and TTL enforcement is
// delegated to Redis itself: every write carries a PX matching the entry's
// expiry, so expired entries vanish server-side and PurgeExpired has nothing
// to do.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opencontainers/go-digest"
	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/xraph/outcall"
	"github.com/xraph/outcall/cache"
)

// DefaultKeyPrefix namespaces cache entries in a shared Redis.
const DefaultKeyPrefix = "outcall:artifact:"

var _ cache.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithKeyPrefix overrides the key namespace.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// Store implements cache.Store backed by Redis.
type Store struct {
	client goredis.Cmdable
	prefix string
	logger *slog.Logger
}

// New creates a Redis-backed cache store. The caller owns the Redis client
// lifecycle.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: DefaultKeyPrefix,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.Cmdable { return s.client }

func (s *Store) key(key digest.Digest) string {
	return s.prefix + key.String()
}

// Get retrieves and decodes the entry for key.
func (s *Store) Get(ctx context.Context, key digest.Digest) (*cache.Entry, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, outcall.ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("outcall/redis: get entry: %w", err)
	}

	var e cache.Entry
	if err := msgpack.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("outcall/redis: decode entry: %w", err)
	}
	return &e, nil
}

// Put encodes and stores the entry. The Redis TTL mirrors the entry's
// ExpiresAt; an entry without an expiry is stored without one.
func (s *Store) Put(ctx context.Context, e *cache.Entry) error {
	raw, err := msgpack.Marshal(e)
	if err != nil {
		return fmt.Errorf("outcall/redis: encode entry: %w", err)
	}

	var ttl time.Duration
	if !e.ExpiresAt.IsZero() {
		ttl = time.Until(e.ExpiresAt)
		if ttl <= 0 {
			// Already expired; storing it would be a pointless write.
			return nil
		}
	}
	if err := s.client.Set(ctx, s.key(e.Key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("outcall/redis: put entry: %w", err)
	}
	return nil
}

// Delete removes the entry for key.
func (s *Store) Delete(ctx context.Context, key digest.Digest) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("outcall/redis: delete entry: %w", err)
	}
	return nil
}

// PurgeExpired is a no-op: Redis evicts expired entries server-side.
func (s *Store) PurgeExpired(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op; the caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }
