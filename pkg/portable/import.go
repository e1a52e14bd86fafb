package portable

import (
	"context"
	"errors"
	"fmt"

	"github.com/docleaai/doclea/pkg/embedding"
	"github.com/docleaai/doclea/pkg/memory"
	"github.com/docleaai/doclea/pkg/vectorstore"
)

// ConflictStrategy selects how Import handles a row whose id already
// exists in the target store.
type ConflictStrategy string

const (
	ConflictSkip      ConflictStrategy = "skip"
	ConflictOverwrite ConflictStrategy = "overwrite"
	ConflictError     ConflictStrategy = "error"
)

// Options configures an Import run.
type Options struct {
	Conflict ConflictStrategy

	// Reembed regenerates every imported memory's vector with the
	// currently configured embedding provider instead of trusting the
	// export's VectorID, which belongs to a vector space this process may
	// not share.
	Reembed bool

	// ImportRelations and ImportPending gate the two optional sub-imports
	// spec.md §4.M calls out ("relations and pending items are optional
	// imports").
	ImportRelations bool
	ImportPending   bool
}

// Result reports what Import did.
type Result struct {
	MemoriesImported    int
	MemoriesSkipped     int
	RelationsImported   int
	RelationsSkipped    int
	CrossLayerImported  int
	PendingImported     int
	ReembeddingRequired bool
}

// Import applies doc to stores per opts. A memory id collision is resolved
// per opts.Conflict: skip leaves the existing row untouched, overwrite
// deletes and recreates it, error aborts the run. vectors/embedder are
// only used for re-embedding when opts.Reembed is set; either may be nil
// otherwise. A non-nil embedder is also compared with the document's
// embedding metadata to set Result.ReembeddingRequired.
func Import(ctx context.Context, stores Stores, vectors vectorstore.Store, embedder embedding.Provider, doc *Document, opts Options) (*Result, error) {
	result := &Result{}

	embeddingChanged := embedder != nil &&
		(doc.Metadata.EmbeddingProvider != embedder.Name() || doc.Metadata.EmbeddingModel != embedder.ModelID())

	for _, m := range doc.Data.Memories {
		m := m
		imported, err := importMemory(ctx, stores.Memories, &m, opts.Conflict)
		if err != nil {
			return result, err
		}
		if !imported {
			result.MemoriesSkipped++
			continue
		}
		result.MemoriesImported++

		if opts.Reembed {
			if err := reembedMemory(ctx, stores.Memories, vectors, embedder, m); err != nil {
				return result, err
			}
		} else if m.VectorID != "" && embeddingChanged {
			result.ReembeddingRequired = true
		}
	}

	if opts.ImportRelations {
		imported, skipped, err := importRelations(ctx, stores.Memories, doc.Data.MemoryRelations, opts.Conflict)
		if err != nil {
			return result, err
		}
		result.RelationsImported = imported
		result.RelationsSkipped = skipped

		if stores.CodeGraph != nil {
			n, err := importCrossLayer(ctx, stores.CodeGraph, doc.Data.CrossLayerRelations)
			if err != nil {
				return result, err
			}
			result.CrossLayerImported = n
		}
	}

	if opts.ImportPending {
		n, err := importPending(ctx, stores.Memories, doc.Data.PendingMemories)
		if err != nil {
			return result, err
		}
		result.PendingImported = n
	}

	return result, nil
}

// importMemory returns (true, nil) if m was written, (false, nil) if it was
// skipped per a "skip" conflict strategy.
func importMemory(ctx context.Context, store memory.MemoryStore, m *memory.Memory, conflict ConflictStrategy) (bool, error) {
	_, err := store.GetMemory(ctx, m.ID)
	exists := err == nil
	if !errors.Is(err, memory.ErrNotFound) && err != nil {
		return false, err
	}

	if exists {
		switch conflict {
		case ConflictSkip:
			return false, nil
		case ConflictError:
			return false, fmt.Errorf("portable: import memory %s: %w", m.ID, memory.ErrConflict)
		case ConflictOverwrite:
			if err := store.DeleteMemory(ctx, m.ID); err != nil {
				return false, fmt.Errorf("portable: overwrite memory %s: %w", m.ID, err)
			}
		default:
			return false, fmt.Errorf("portable: unknown conflict strategy %q", conflict)
		}
	}

	if _, err := store.CreateMemory(ctx, m); err != nil {
		return false, fmt.Errorf("portable: import memory %s: %w", m.ID, err)
	}
	return true, nil
}

// reembedMemory regenerates m's vector with embedder and rebinds it,
// allocating a fresh vector id (the export's VectorID belongs to a vector
// space this process has no guarantee of sharing).
func reembedMemory(ctx context.Context, store memory.MemoryStore, vectors vectorstore.Store, embedder embedding.Provider, m memory.Memory) error {
	vec, err := embedder.Embed(ctx, m.Content)
	if err != nil {
		return fmt.Errorf("portable: reembed memory %s: %w", m.ID, err)
	}
	vectorID := m.ID + ":" + embedder.ModelID()
	if err := vectors.Upsert(ctx, vectorstore.Record{ID: vectorID, OwnerKind: vectorstore.OwnerMemory, OwnerID: m.ID, Embedding: vec}); err != nil {
		return fmt.Errorf("portable: reembed memory %s: %w", m.ID, err)
	}
	if err := store.UpdateMemory(ctx, m.ID, &memory.MemoryPatch{VectorID: &vectorID}); err != nil {
		return fmt.Errorf("portable: rebind vector for memory %s: %w", m.ID, err)
	}
	return nil
}

// importRelations materializes each relation not already present.
// [memory.MemoryStore] has no relation-update operation, so "overwrite"
// for a relation degenerates to "create if absent" — there is nothing to
// overwrite in a uniqueness-keyed edge beyond its own identity.
func importRelations(ctx context.Context, store memory.MemoryStore, relations []memory.MemoryRelation, conflict ConflictStrategy) (imported, skipped int, err error) {
	for _, r := range relations {
		r := r
		exists, err := store.RelationExists(ctx, r.SourceID, r.TargetID)
		if err != nil {
			return imported, skipped, err
		}
		if exists {
			if conflict == ConflictError {
				return imported, skipped, fmt.Errorf("portable: import relation %s: %w", r.ID, memory.ErrConflict)
			}
			skipped++
			continue
		}
		if _, err := store.CreateRelation(ctx, &r); err != nil {
			if errors.Is(err, memory.ErrConflict) {
				skipped++
				continue
			}
			return imported, skipped, fmt.Errorf("portable: import relation %s: %w", r.ID, err)
		}
		imported++
	}
	return imported, skipped, nil
}

func importCrossLayer(ctx context.Context, store memory.CodeGraphStore, relations []memory.CrossLayerRelation) (int, error) {
	n := 0
	for _, r := range relations {
		r := r
		exists, err := store.CrossLayerRelationExists(ctx, r.MemoryID, r.CodeNodeID, r.Type)
		if err != nil {
			return n, err
		}
		if exists {
			continue
		}
		if _, err := store.CreateCrossLayerRelation(ctx, &r); err != nil {
			if errors.Is(err, memory.ErrConflict) {
				continue
			}
			return n, fmt.Errorf("portable: import cross-layer relation %s: %w", r.ID, err)
		}
		n++
	}
	return n, nil
}

func importPending(ctx context.Context, store memory.MemoryStore, suggestions []memory.RelationSuggestion) (int, error) {
	n := 0
	for _, s := range suggestions {
		s := s
		if _, err := store.CreateSuggestion(ctx, &s); err != nil {
			if errors.Is(err, memory.ErrConflict) {
				continue
			}
			return n, fmt.Errorf("portable: import suggestion %s: %w", s.ID, err)
		}
		n++
	}
	return n, nil
}
