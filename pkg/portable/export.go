// Package portable implements the full-state export/import round trip and
// the retrieval quality gate described in spec.md §4.M: a versioned JSON
// snapshot of the logical store, an import path with a configurable
// conflict strategy, and a golden-query evaluation harness over the
// context-building pipeline with deterministic hash-projected embeddings.
package portable

import (
	"context"
	"sort"
	"time"

	"github.com/docleaai/doclea/pkg/embedding"
	"github.com/docleaai/doclea/pkg/memory"
)

// SchemaVersion is the export document format version this package reads
// and writes (spec.md §4.M, §6: "version 1.0.0").
const SchemaVersion = "1.0.0"

// Data is the logical state captured by an export.
type Data struct {
	Memories            []memory.Memory             `json:"memories"`
	Documents           []memory.Document            `json:"documents"`
	Chunks              []memory.Chunk               `json:"chunks"`
	MemoryRelations     []memory.MemoryRelation      `json:"memoryRelations"`
	CrossLayerRelations []memory.CrossLayerRelation  `json:"crossLayerRelations"`
	PendingMemories     []memory.RelationSuggestion  `json:"pendingMemories"`
}

// Metadata describes the conditions the export was taken under, used by
// Import to decide whether imported vectors are still valid.
type Metadata struct {
	TotalMemories     int    `json:"totalMemories"`
	EmbeddingProvider string `json:"embeddingProvider"`
	EmbeddingModel    string `json:"embeddingModel"`
}

// Document is the versioned portable export document (spec.md §4.M).
type Document struct {
	Version       string    `json:"version"`
	ExportedAt    time.Time `json:"exportedAt"`
	BackendType   string    `json:"backendType"`
	StorageMode   string    `json:"storageMode"`
	SchemaVersion string    `json:"schemaVersion"`
	Data          Data      `json:"data"`
	Metadata      Metadata  `json:"metadata"`
}

// Stores bundles the storage backends an export/import reads from or
// writes to. CodeGraph is optional: cross-layer relations are skipped on
// both sides when it is nil.
type Stores struct {
	Memories  memory.MemoryStore
	Documents memory.DocumentStore
	CodeGraph memory.CodeGraphStore
}

// Export serializes the full logical state reachable through stores into a
// portable [Document]. backendType and storageMode are caller-supplied
// labels (e.g. "sqlite"/"embedded") recorded for the reader's information
// only; Import does not interpret them.
func Export(ctx context.Context, stores Stores, embedder embedding.Provider, backendType, storageMode string, exportedAt time.Time) (*Document, error) {
	memories, err := stores.Memories.ListMemories(ctx, memory.MemoryFilter{})
	if err != nil {
		return nil, err
	}

	relations, err := collectRelations(ctx, stores.Memories, memories)
	if err != nil {
		return nil, err
	}

	pending, err := stores.Memories.ListSuggestions(ctx, "")
	if err != nil {
		return nil, err
	}

	docs, chunks, err := collectDocuments(ctx, stores.Documents)
	if err != nil {
		return nil, err
	}

	var crossLayer []memory.CrossLayerRelation
	if stores.CodeGraph != nil {
		crossLayer, err = collectCrossLayer(ctx, stores.CodeGraph, memories)
		if err != nil {
			return nil, err
		}
	}

	doc := &Document{
		Version:       SchemaVersion,
		ExportedAt:    exportedAt,
		BackendType:   backendType,
		StorageMode:   storageMode,
		SchemaVersion: SchemaVersion,
		Data: Data{
			Memories:            memories,
			Documents:           docs,
			Chunks:              chunks,
			MemoryRelations:     relations,
			CrossLayerRelations: crossLayer,
			PendingMemories:     pending,
		},
		Metadata: Metadata{
			TotalMemories:     len(memories),
			EmbeddingProvider: embedder.Name(),
			EmbeddingModel:    embedder.ModelID(),
		},
	}
	return doc, nil
}

// collectRelations gathers every relation touching any memory in the set.
// [memory.MemoryStore] has no "list all relations" method — only per-id
// [memory.MemoryStore.GetRelations] — so this walks every memory and
// dedupes by relation id.
func collectRelations(ctx context.Context, store memory.MemoryStore, memories []memory.Memory) ([]memory.MemoryRelation, error) {
	seen := make(map[string]memory.MemoryRelation)
	for _, m := range memories {
		rels, err := store.GetRelations(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		for _, r := range rels {
			seen[r.ID] = r
		}
	}
	out := make([]memory.MemoryRelation, 0, len(seen))
	for _, r := range seen {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// collectDocuments fetches every document and its chunks in one pass.
func collectDocuments(ctx context.Context, store memory.DocumentStore) ([]memory.Document, []memory.Chunk, error) {
	docs, err := store.ListDocuments(ctx)
	if err != nil {
		return nil, nil, err
	}
	var chunks []memory.Chunk
	for _, d := range docs {
		cs, err := store.GetChunks(ctx, d.ID)
		if err != nil {
			return nil, nil, err
		}
		chunks = append(chunks, cs...)
	}
	return docs, chunks, nil
}

// collectCrossLayer gathers every approved cross-layer relation touching
// any memory in the set, deduped by relation id the same way
// collectRelations handles memory-memory relations.
func collectCrossLayer(ctx context.Context, store memory.CodeGraphStore, memories []memory.Memory) ([]memory.CrossLayerRelation, error) {
	seen := make(map[string]memory.CrossLayerRelation)
	for _, m := range memories {
		rels, err := store.ListCrossLayerRelations(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		for _, r := range rels {
			seen[r.ID] = r
		}
	}
	out := make([]memory.CrossLayerRelation, 0, len(seen))
	for _, r := range seen {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
