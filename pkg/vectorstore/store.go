// Package vectorstore defines the vector-index abstraction used to back
// RAG similarity search, with an embedded sqlite-vec backend and a remote
// Weaviate backend implementing the same [Store] interface — the same
// "swap the index, keep the interface" split the relational layer this was
// adapted from uses for its own pgvector-backed semantic index.
package vectorstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a vector id has no entry.
var ErrNotFound = errors.New("vectorstore: not found")

// OwnerKind distinguishes which relational row a vector belongs to, so a
// single index can back memories, chunks, and GraphRAG entities/reports
// without four separate physical indexes.
type OwnerKind string

const (
	OwnerMemory    OwnerKind = "memory"
	OwnerChunk     OwnerKind = "chunk"
	OwnerEntity    OwnerKind = "entity"
	OwnerReport    OwnerKind = "report"
)

// Record is one vector entry, bound 1:1 to a relational row via OwnerID.
type Record struct {
	ID        string // vector id, distinct from OwnerID
	OwnerKind OwnerKind
	OwnerID   string
	Embedding []float32
}

// SearchFilter narrows a [Store.Search] call. Zero value matches everything.
type SearchFilter struct {
	OwnerKinds []OwnerKind
}

// SearchResult pairs a [Record] with its similarity to the query vector,
// higher is more similar (1 - cosine distance).
type SearchResult struct {
	Record     Record
	Similarity float64
}

// Info describes the index's configured dimensionality and backend name,
// used to fail fast on a provider/model mismatch (spec.md §7
// VectorDimensionMismatch).
type Info struct {
	Backend    string
	Dimensions int
}

// Store is a vector index keyed by an opaque vector id, bound 1:1 to a
// relational row. Implementations must be safe for concurrent use.
type Store interface {
	// Upsert writes or replaces a vector. Embedding length must equal
	// [Store.Info]'s Dimensions.
	Upsert(ctx context.Context, rec Record) error

	// Search returns the topK most similar records to embedding, most
	// similar first.
	Search(ctx context.Context, embedding []float32, topK int, filter SearchFilter) ([]SearchResult, error)

	// DeleteByOwner removes the vector bound to (ownerKind, ownerID), if any.
	DeleteByOwner(ctx context.Context, ownerKind OwnerKind, ownerID string) error

	// Info reports the index's backend name and dimensionality.
	Info(ctx context.Context) (Info, error)
}
