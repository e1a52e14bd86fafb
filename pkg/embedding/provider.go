// Package embedding defines the Provider interface for vector embedding
// backends and a content-hash cache wrapper shared by every concrete
// adapter (openai, ollama, nomic, voyage, localtei, transformers).
//
// Implementations must be safe for concurrent use.
package embedding

import (
	"context"
	"fmt"
	"math"
)

// Provider is the abstraction over any text-embedding backend.
//
// All embedding vectors returned by a single Provider instance must share
// the same dimensionality (returned by Dimensions). Callers must not mix
// vectors from different Provider instances in the same similarity
// computation unless they have verified that both use the same model and
// space.
type Provider interface {
	// Embed computes the embedding vector for a single text string. Returns
	// a float32 slice of length Dimensions() or an [EmbedFailure] if the
	// request fails or ctx is cancelled.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes embedding vectors for a slice of text strings.
	// A provider with no native batch endpoint may emulate it with
	// sequential calls; the ollama adapter sends every input in one
	// /api/embed request. The returned slice has the same length as texts and
	// the i-th element corresponds to texts[i]. On error the entire slice
	// is nil.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every embedding vector
	// produced by this provider.
	Dimensions() int

	// ModelID returns the provider-specific model identifier.
	ModelID() string

	// Name returns the provider's short name (e.g. "openai", "ollama"),
	// used in [EmbedFailure] and metrics attributes.
	Name() string
}

// EmbedPhase identifies which call shape failed.
type EmbedPhase string

const (
	PhaseSingle EmbedPhase = "single"
	PhaseBatch  EmbedPhase = "batch"
)

// EmbedFailure is the typed error surfaced by every provider on failure, per
// the error taxonomy's EmbedFailure{provider, status, phase} case.
type EmbedFailure struct {
	Provider string
	Status   string
	Phase    EmbedPhase
	Err      error
}

func (e *EmbedFailure) Error() string {
	return fmt.Sprintf("embedding[%s] %s failed: %s", e.Provider, e.Phase, e.Status)
}

func (e *EmbedFailure) Unwrap() error { return e.Err }

// ValidateVector checks a returned embedding is non-empty, finite, and
// matches the provider's declared dimension. Mismatches are fatal per
// spec: callers should treat a validation error as unrecoverable for that
// call.
func ValidateVector(v []float32, wantDims int) error {
	if len(v) == 0 {
		return fmt.Errorf("embedding: empty vector")
	}
	if wantDims > 0 && len(v) != wantDims {
		return fmt.Errorf("embedding: vector length %d does not match declared dimension %d", len(v), wantDims)
	}
	for i, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return fmt.Errorf("embedding: non-finite value at index %d", i)
		}
	}
	return nil
}
