package bunstore

import (
	"fmt"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/uptrace/bun"

	"github.com/xraph/outcall/cache"
	"github.com/xraph/outcall/id"
)

type artifactModel struct {
	bun.BaseModel `bun:"table:outcall_artifacts"`

	Key          string     `bun:"key,pk"`
	Value        []byte     `bun:"value,notnull,type:bytea"`
	ArtifactID   string     `bun:"artifact_id,notnull"`
	Provider     string     `bun:"provider"`
	ContentType  string     `bun:"content_type"`
	TaskID       string     `bun:"task_id"`
	ComputedAt   time.Time  `bun:"computed_at,notnull"`
	ExpiresAt    *time.Time `bun:"expires_at"`
	HitCount     int64      `bun:"hit_count,notnull,default:0"`
	LastAccessed *time.Time `bun:"last_accessed"`
	CreatedAt    time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

func toArtifactModel(e *cache.Entry) *artifactModel {
	m := &artifactModel{
		Key:          e.Key.String(),
		Value:        e.Value,
		ArtifactID:   e.Meta.ArtifactID.String(),
		Provider:     e.Meta.Provider,
		ContentType:  e.Meta.ContentType,
		TaskID:       e.Meta.TaskID,
		ComputedAt:   e.Meta.ComputedAt,
		HitCount:     e.HitCount,
	}
	if !e.ExpiresAt.IsZero() {
		t := e.ExpiresAt
		m.ExpiresAt = &t
	}
	if !e.LastAccessed.IsZero() {
		t := e.LastAccessed
		m.LastAccessed = &t
	}
	return m
}

func fromArtifactModel(m *artifactModel) (*cache.Entry, error) {
	key, err := digest.Parse(m.Key)
	if err != nil {
		return nil, fmt.Errorf("outcall/bun: parse key %q: %w", m.Key, err)
	}

	e := &cache.Entry{
		Key:   key,
		Value: m.Value,
		Meta: cache.Meta{
			Provider:    m.Provider,
			ContentType: m.ContentType,
			TaskID:      m.TaskID,
			ComputedAt:  m.ComputedAt,
		},
		HitCount: m.HitCount,
	}
	if m.ArtifactID != "" {
		aid, err := id.ParseWithPrefix(m.ArtifactID, id.PrefixArtifact)
		if err != nil {
			return nil, fmt.Errorf("outcall/bun: parse artifact id %q: %w", m.ArtifactID, err)
		}
		e.Meta.ArtifactID = aid
	}
	if m.ExpiresAt != nil {
		e.ExpiresAt = *m.ExpiresAt
	}
	if m.LastAccessed != nil {
		e.LastAccessed = *m.LastAccessed
	}
	return e, nil
}
