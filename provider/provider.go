// Package provider defines the contract between the orchestration core and
// external generation providers (video rendering, voice-model training, and
// similar long-running third-party work).
//
// The wire protocol used to reach any given provider is the provider's own
// business: implementations adapt whatever SDK or transport they need behind
// Client. The core only assumes "accepts a request, eventually produces a
// result or an error".
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/outcall"
	"github.com/xraph/outcall/id"
)

// Request describes one unit of generation work. Subject and Category
// together identify the logical job; Content and Params are the semantically
// relevant inputs that determine the output (and therefore the cache key).
type Request struct {
	// Subject is the logical owner of the work, e.g. "story-42".
	Subject string `json:"subject"`

	// Category names the kind of artifact requested, e.g. "video" or
	// "voice-model".
	Category string `json:"category"`

	// Content is the free-text source the provider works from (script,
	// narration text, training transcript).
	Content string `json:"content"`

	// Params are provider parameters that affect the output.
	Params map[string]any `json:"params,omitempty"`

	// Overrides are user-supplied settings that also affect the output
	// and therefore participate in the cache key.
	Overrides map[string]any `json:"overrides,omitempty"`
}

// Validate checks that the request carries enough to identify and execute
// the work.
func (r *Request) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil request", outcall.ErrInvalidInput)
	}
	if r.Subject == "" {
		return fmt.Errorf("%w: empty subject", outcall.ErrInvalidInput)
	}
	if r.Category == "" {
		return fmt.Errorf("%w: empty category", outcall.ErrInvalidInput)
	}
	if r.Content == "" {
		return fmt.Errorf("%w: empty content", outcall.ErrInvalidInput)
	}
	return nil
}

// Key returns the logical job key used for single-flight: one active
// operation per subject and category.
func (r *Request) Key() string {
	return r.Subject + "/" + r.Category
}

// Result is a completed generation artifact plus provenance metadata.
type Result struct {
	// ArtifactID is minted by the core when the result is first produced.
	ArtifactID id.ArtifactID `json:"artifact_id"`

	// TaskID is the provider-assigned identifier for the unit of work
	// that produced this result. Empty for synchronous providers.
	TaskID string `json:"task_id,omitempty"`

	// Data is the artifact payload (or a reference to it, provider's
	// choice — the core treats it as opaque).
	Data []byte `json:"data"`

	// ContentType describes Data, e.g. "video/mp4".
	ContentType string `json:"content_type,omitempty"`

	// Provider names the client that produced the artifact.
	Provider string `json:"provider,omitempty"`

	// Cached reports whether the result was served from the cache rather
	// than freshly computed.
	Cached bool `json:"cached,omitempty"`

	// CompletedAt is when the provider finished the work.
	CompletedAt time.Time `json:"completed_at"`
}

// Client is the narrow contract a generation provider must satisfy.
type Client interface {
	// Name identifies the provider in logs and provenance metadata.
	Name() string

	// Generate performs the work and blocks until a result or error is
	// available. Implementations must honor ctx cancellation.
	Generate(ctx context.Context, req *Request) (*Result, error)
}

// AsyncClient is implemented by providers that acknowledge a dispatch
// immediately and deliver completion out-of-band, correlated only by the
// task ID returned here. The orchestrator registers a waiter for that task
// ID and settles it when the provider's signal arrives.
type AsyncClient interface {
	Client

	// Dispatch submits the work and returns the provider-assigned task ID
	// without waiting for completion.
	Dispatch(ctx context.Context, req *Request) (string, error)
}
