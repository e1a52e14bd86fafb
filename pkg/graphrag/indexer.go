package graphrag

import (
	"context"
	"fmt"

	"github.com/docleaai/doclea/pkg/embedding"
	"github.com/docleaai/doclea/pkg/memory"
	"github.com/docleaai/doclea/pkg/vectorstore"
)

// Indexer embeds and upserts entity vectors for GraphRAG local search. It is
// meant to run as a background job after entity extraction/upsert, not
// inline with a search request.
type Indexer struct {
	store    memory.GraphRAGStore
	vectors  vectorstore.Store
	embedder embedding.Provider
}

// NewIndexer returns an [Indexer] wired to the given backends.
func NewIndexer(store memory.GraphRAGStore, vectors vectorstore.Store, embedder embedding.Provider) *Indexer {
	return &Indexer{store: store, vectors: vectors, embedder: embedder}
}

// IndexEntity embeds the entity's canonical name, type, and description, and
// upserts the resulting vector bound to the entity's ID. Callers are
// responsible for persisting the returned vector ID on the entity row.
func (idx *Indexer) IndexEntity(ctx context.Context, e memory.GraphEntity) (vectorID string, err error) {
	text := fmt.Sprintf("%s (%s): %s", e.Name, e.Type, e.Description)
	vec, err := idx.embedder.Embed(ctx, text)
	if err != nil {
		return "", err
	}
	vectorID = e.ID
	if err := idx.vectors.Upsert(ctx, vectorstore.Record{
		ID:        vectorID,
		OwnerKind: vectorstore.OwnerEntity,
		OwnerID:   e.ID,
		Embedding: vec,
	}); err != nil {
		return "", err
	}
	return vectorID, nil
}

// IndexReport embeds a community report's title and summary, and upserts
// the resulting vector bound to the report's ID, for global search.
func (idx *Indexer) IndexReport(ctx context.Context, r memory.GraphReport) (vectorID string, err error) {
	text := fmt.Sprintf("%s: %s", r.Title, r.Summary)
	vec, err := idx.embedder.Embed(ctx, text)
	if err != nil {
		return "", err
	}
	vectorID = r.ID
	if err := idx.vectors.Upsert(ctx, vectorstore.Record{
		ID:        vectorID,
		OwnerKind: vectorstore.OwnerReport,
		OwnerID:   r.ID,
		Embedding: vec,
	}); err != nil {
		return "", err
	}
	return vectorID, nil
}
