package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/singleflight"

	"github.com/xraph/outcall"
)

// ComputeFunc produces the entry for a cache miss. The function fills Value
// and Meta; the cache owns Key, ExpiresAt and the access counters.
type ComputeFunc func(ctx context.Context) (*Entry, error)

// Cache is the content-addressed result cache. It layers get-or-compute and
// single-flight deduplication over one or two Store tiers: a durable tier
// (database, Redis) and an ephemeral fallback used when the durable tier is
// unavailable.
type Cache struct {
	durable  Store // may be nil
	fallback Store // may be nil
	group    singleflight.Group
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// New builds a Cache over a durable tier and an ephemeral fallback tier.
// Either tier may be nil; with both nil the cache degrades to a pure
// passthrough and every lookup computes.
func New(durable, fallback Store, opts ...Option) *Cache {
	c := &Cache{
		durable:  durable,
		fallback: fallback,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type flightResult struct {
	entry *Entry
	hit   bool
}

// GetOrCompute returns the entry for key, computing it via fn on a miss.
// Concurrent callers for the same key share one compute: exactly one fn
// invocation runs and every caller receives its result. hit reports whether
// the value came from a cache tier; callers that share a fresh compute see
// hit false, the same as the caller that ran it.
//
// A caller whose ctx ends while it waits on a shared flight returns its ctx
// error; the flight itself keeps running and its result is still cached.
//
// Tier failures degrade rather than fail: a durable-tier read error falls
// back to the ephemeral tier, and a write error on either tier is logged
// and swallowed. Only fn's own error (or ctx cancellation) reaches the
// caller.
func (c *Cache) GetOrCompute(ctx context.Context, key digest.Digest, ttl time.Duration, fn ComputeFunc) (*Entry, bool, error) {
	ch := c.group.DoChan(key.String(), func() (any, error) {
		if e := c.lookup(ctx, key); e != nil {
			c.recordHit(ctx, e)
			return &flightResult{entry: e, hit: true}, nil
		}

		e, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		if e == nil {
			return nil, outcall.ErrInvalidInput
		}
		e.Key = key
		if e.Meta.ComputedAt.IsZero() {
			e.Meta.ComputedAt = c.now()
		}
		if ttl > 0 {
			e.ExpiresAt = c.now().Add(ttl)
		}
		c.write(ctx, e)
		return &flightResult{entry: e}, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		fr := res.Val.(*flightResult)
		return fr.entry, fr.hit, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Get returns the entry for key without computing on a miss. It reports
// outcall.ErrEntryNotFound when no live entry exists in any tier.
func (c *Cache) Get(ctx context.Context, key digest.Digest) (*Entry, error) {
	if e := c.lookup(ctx, key); e != nil {
		c.recordHit(ctx, e)
		return e, nil
	}
	return nil, outcall.ErrEntryNotFound
}

// Invalidate removes the entry for key from every tier. Used when the
// upstream source is known to have changed: the changed source hashes to a
// new key, and the entry under the prior key is dropped explicitly rather
// than left to age out.
func (c *Cache) Invalidate(ctx context.Context, key digest.Digest) error {
	var errs []error
	for _, s := range c.tiers() {
		if err := s.Delete(ctx, key); err != nil {
			c.logger.WarnContext(ctx, "cache delete failed",
				slog.String("key", key.String()),
				slog.Any("error", err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PurgeExpired drops expired entries from every tier and returns the total
// number removed.
func (c *Cache) PurgeExpired(ctx context.Context) (int64, error) {
	var (
		total int64
		errs  []error
	)
	for _, s := range c.tiers() {
		n, err := s.PurgeExpired(ctx, c.now())
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

// Close closes every tier.
func (c *Cache) Close() error {
	var errs []error
	for _, s := range c.tiers() {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Cache) tiers() []Store {
	tiers := make([]Store, 0, 2)
	if c.durable != nil {
		tiers = append(tiers, c.durable)
	}
	if c.fallback != nil {
		tiers = append(tiers, c.fallback)
	}
	return tiers
}

// lookup finds a live entry, preferring the durable tier. A read error in
// the durable tier degrades to the fallback; an expired entry is treated as
// a miss and deleted best-effort.
func (c *Cache) lookup(ctx context.Context, key digest.Digest) *Entry {
	for _, s := range c.tiers() {
		e, err := s.Get(ctx, key)
		if err != nil {
			if !errors.Is(err, outcall.ErrEntryNotFound) {
				c.logger.WarnContext(ctx, "cache read failed, trying next tier",
					slog.String("key", key.String()),
					slog.Any("error", err))
			}
			continue
		}
		if e.Expired(c.now()) {
			if derr := s.Delete(ctx, key); derr != nil {
				c.logger.DebugContext(ctx, "expired entry delete failed",
					slog.String("key", key.String()),
					slog.Any("error", derr))
			}
			continue
		}
		return e
	}
	return nil
}

// write stores the entry in the durable tier and, when that fails or no
// durable tier exists, in the fallback. Failures never propagate; a compute
// that cannot be cached is still a successful compute.
func (c *Cache) write(ctx context.Context, e *Entry) {
	if c.durable != nil {
		err := c.durable.Put(ctx, e)
		if err == nil {
			return
		}
		c.logger.WarnContext(ctx, "durable cache write failed",
			slog.String("key", e.Key.String()),
			slog.Any("error", err))
	}
	if c.fallback != nil {
		if err := c.fallback.Put(ctx, e); err != nil {
			c.logger.WarnContext(ctx, "fallback cache write failed",
				slog.String("key", e.Key.String()),
				slog.Any("error", err))
		}
	}
}

// recordHit bumps the observability counters on the entry and writes the
// update back best-effort. The singleflight critical section makes the
// read-modify-write safe for a given key.
func (c *Cache) recordHit(ctx context.Context, e *Entry) {
	e.HitCount++
	e.LastAccessed = c.now()
	c.write(ctx, e)
}
