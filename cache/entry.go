package cache

import (
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/xraph/outcall/id"
)

// Meta describes the provenance of a cached artifact.
type Meta struct {
	// ArtifactID is the core-minted identifier for the artifact.
	ArtifactID id.ArtifactID `json:"artifact_id" msgpack:"artifact_id"`

	// Provider names the client that produced the artifact.
	Provider string `json:"provider,omitempty" msgpack:"provider"`

	// ContentType describes the artifact payload, e.g. "video/mp4".
	ContentType string `json:"content_type,omitempty" msgpack:"content_type"`

	// TaskID is the provider-assigned task that produced the artifact,
	// if the provider is asynchronous.
	TaskID string `json:"task_id,omitempty" msgpack:"task_id"`

	// ComputedAt is when the artifact was produced.
	ComputedAt time.Time `json:"computed_at" msgpack:"computed_at"`
}

// Entry is a computed artifact keyed by content digest.
type Entry struct {
	// Key is the content digest of the normalized input.
	Key digest.Digest `json:"key" msgpack:"key"`

	// Value is the artifact payload, opaque to the cache.
	Value []byte `json:"value" msgpack:"value"`

	// Meta is provenance metadata.
	Meta Meta `json:"meta" msgpack:"meta"`

	// ExpiresAt is the TTL-based expiry instant.
	ExpiresAt time.Time `json:"expires_at" msgpack:"expires_at"`

	// HitCount and LastAccessed exist for observability only, not
	// correctness.
	HitCount     int64     `json:"hit_count" msgpack:"hit_count"`
	LastAccessed time.Time `json:"last_accessed,omitzero" msgpack:"last_accessed"`
}

// Expired reports whether the entry's TTL has elapsed at the given instant.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}
