package resilience

import (
	"context"

	"github.com/docleaai/doclea/pkg/vectorstore"
)

// VectorStoreFallback implements [vectorstore.Store] with automatic failover
// across multiple vector index backends. Each backend has its own circuit
// breaker; when the primary fails or its breaker is open, the next healthy
// fallback is tried.
type VectorStoreFallback struct {
	group *FallbackGroup[vectorstore.Store]
}

// Compile-time interface assertion.
var _ vectorstore.Store = (*VectorStoreFallback)(nil)

// NewVectorStoreFallback creates a [VectorStoreFallback] with primary as the
// preferred backend.
func NewVectorStoreFallback(primary vectorstore.Store, primaryName string, cfg FallbackConfig) *VectorStoreFallback {
	return &VectorStoreFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional vector store as a fallback.
func (f *VectorStoreFallback) AddFallback(name string, store vectorstore.Store) {
	f.group.AddFallback(name, store)
}

// Upsert sends the request to the first healthy store. If the primary
// fails, subsequent fallbacks are tried.
func (f *VectorStoreFallback) Upsert(ctx context.Context, rec vectorstore.Record) error {
	return f.group.Execute(func(s vectorstore.Store) error {
		return s.Upsert(ctx, rec)
	})
}

// Search sends the request to the first healthy store.
func (f *VectorStoreFallback) Search(ctx context.Context, emb []float32, topK int, filter vectorstore.SearchFilter) ([]vectorstore.SearchResult, error) {
	return ExecuteWithResult(f.group, func(s vectorstore.Store) ([]vectorstore.SearchResult, error) {
		return s.Search(ctx, emb, topK, filter)
	})
}

// DeleteByOwner sends the request to the first healthy store.
func (f *VectorStoreFallback) DeleteByOwner(ctx context.Context, ownerKind vectorstore.OwnerKind, ownerID string) error {
	return f.group.Execute(func(s vectorstore.Store) error {
		return s.DeleteByOwner(ctx, ownerKind, ownerID)
	})
}

// Info reports the first healthy store's backend/dimensionality.
func (f *VectorStoreFallback) Info(ctx context.Context) (vectorstore.Info, error) {
	return ExecuteWithResult(f.group, func(s vectorstore.Store) (vectorstore.Info, error) {
		return s.Info(ctx)
	})
}
