// Package contenthash produces stable, collision-resistant digests of a
// request's semantically relevant fields. The digest doubles as the
// content-addressed cache key and as a change detector: re-hash the current
// source and compare against the digest stored at cache-write time.
//
// Parameters are serialized through RFC 8785 JSON canonicalization before
// hashing, so map ordering and incidental JSON formatting never change the
// digest. Whitespace normalization of free text is opt-in: by default raw
// content is hashed so that distinct inputs are never silently merged.
package contenthash

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
	"github.com/opencontainers/go-digest"

	"github.com/xraph/outcall"
)

// Hasher computes content digests. The zero value is not usable; create one
// with New. Hashers are stateless and safe for concurrent use.
type Hasher struct {
	algorithm     digest.Algorithm
	normalizeText bool
}

// Option configures a Hasher.
type Option func(*Hasher)

// WithAlgorithm selects the digest algorithm. Default is SHA-256.
func WithAlgorithm(alg digest.Algorithm) Option {
	return func(h *Hasher) { h.algorithm = alg }
}

// WithNormalizedText collapses runs of whitespace in free-text content to a
// single space before hashing. Enable this only when the caller's contract
// defines such variation as insignificant.
func WithNormalizedText() Option {
	return func(h *Hasher) { h.normalizeText = true }
}

// New creates a Hasher.
func New(opts ...Option) *Hasher {
	h := &Hasher{algorithm: digest.SHA256}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Hash digests content plus params into a stable identifier.
// params may be nil; otherwise it must be JSON-encodable.
func (h *Hasher) Hash(content string, params any) (digest.Digest, error) {
	if content == "" {
		return "", fmt.Errorf("%w: empty content", outcall.ErrInvalidInput)
	}

	if h.normalizeText {
		content = normalizeWhitespace(content)
	}

	canonical, err := canonicalParams(params)
	if err != nil {
		return "", err
	}

	// Length-prefix both segments so (content, params) boundaries can never
	// collide across different splits of the same byte stream.
	payload := fmt.Sprintf("%d:%s\n%d:%s", len(content), content, len(canonical), canonical)

	return h.algorithm.FromString(payload), nil
}

// canonicalParams returns the RFC 8785 canonical JSON encoding of params,
// or an empty string for nil.
func canonicalParams(params any) (string, error) {
	if params == nil {
		return "", nil
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("%w: params not JSON-encodable: %v", outcall.ErrInvalidInput, err)
	}

	canonical, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("%w: canonicalize params: %v", outcall.ErrInvalidInput, err)
	}

	return string(canonical), nil
}

// normalizeWhitespace collapses all whitespace runs to single spaces and
// trims the ends.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
