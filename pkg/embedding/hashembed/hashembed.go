// Package hashembed provides a deterministic, dependency-free embedding
// provider used by the quality gate (spec.md §4.M): tokens are hashed and
// projected into a fixed dimension, then L2-normalized, so the same text
// always yields the same vector without calling out to any real model.
package hashembed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"github.com/docleaai/doclea/pkg/embedding"
)

var _ embedding.Provider = (*Provider)(nil)

// Provider is a deterministic hash-projection embedding provider.
type Provider struct {
	dimensions int
	model      string
}

// New constructs a Provider producing vectors of the given dimension.
func New(dimensions int) *Provider {
	if dimensions <= 0 {
		dimensions = 64
	}
	return &Provider{dimensions: dimensions, model: "hash-projection-v1"}
}

// Embed implements embedding.Provider.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	return project(text, p.dimensions), nil
}

// EmbedBatch implements embedding.Provider.
func (p *Provider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = project(t, p.dimensions)
	}
	return out, nil
}

// Dimensions implements embedding.Provider.
func (p *Provider) Dimensions() int { return p.dimensions }

// ModelID implements embedding.Provider.
func (p *Provider) ModelID() string { return p.model }

// Name implements embedding.Provider.
func (p *Provider) Name() string { return "hash-projection" }

// project maps text into a fixed-dimension vector via token hashing,
// accumulating each token's hash into the dimension it maps to and
// L2-normalizing the result.
func project(text string, dims int) []float32 {
	v := make([]float64, dims)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(dims))
		sign := 1.0
		if sum&1 == 1 {
			sign = -1.0
		}
		v[idx] += sign
	}

	var norm float64
	for _, f := range v {
		norm += f * f
	}
	norm = math.Sqrt(norm)

	out := make([]float32, dims)
	if norm == 0 {
		return out
	}
	for i, f := range v {
		out[i] = float32(f / norm)
	}
	return out
}
