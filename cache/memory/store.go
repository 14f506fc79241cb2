// Package memory provides an in-process cache store backed by a mutex-guarded
// map. It is the default ephemeral fallback tier and the store of choice for
// tests and single-process deployments. Entries do not survive a restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/xraph/outcall"
	"github.com/xraph/outcall/cache"
)

// Store is an in-memory cache.Store.
type Store struct {
	mu      sync.RWMutex
	entries map[digest.Digest]*cache.Entry
	closed  bool
}

var _ cache.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{entries: make(map[digest.Digest]*cache.Entry)}
}

// Get returns a copy of the entry for key.
func (s *Store) Get(_ context.Context, key digest.Digest) (*cache.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, outcall.ErrStoreClosed
	}
	e, ok := s.entries[key]
	if !ok {
		return nil, outcall.ErrEntryNotFound
	}
	cp := *e
	return &cp, nil
}

// Put stores a copy of the entry, replacing any existing entry for its key.
func (s *Store) Put(_ context.Context, e *cache.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return outcall.ErrStoreClosed
	}
	cp := *e
	s.entries[e.Key] = &cp
	return nil
}

// Delete removes the entry for key, if present.
func (s *Store) Delete(_ context.Context, key digest.Digest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return outcall.ErrStoreClosed
	}
	delete(s.entries, key)
	return nil
}

// PurgeExpired drops entries whose expiry precedes the given instant.
func (s *Store) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, outcall.ErrStoreClosed
	}
	var n int64
	for key, e := range s.entries {
		if !e.ExpiresAt.IsZero() && e.ExpiresAt.Before(before) {
			delete(s.entries, key)
			n++
		}
	}
	return n, nil
}

// Ping reports whether the store is usable.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return outcall.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed and drops all entries.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.entries = nil
	return nil
}

// Len returns the number of stored entries, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
