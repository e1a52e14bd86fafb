package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/docleaai/doclea/pkg/memory"
	"github.com/docleaai/doclea/pkg/relstore/sqlite"
)

func openTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	dir := t.TempDir()
	db, _, err := sqlite.Open(context.Background(), dir+"/doclea.db", dir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlite.New(db)
}

func TestCreateAndGetMemory(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	m := &memory.Memory{
		Type:    memory.MemoryTypeDecision,
		Title:   "use errgroup for fan-out",
		Content: "chose errgroup over raw goroutines for the detector candidate sources",
		Tags:    []string{"concurrency", "detector"},
	}

	id, err := store.CreateMemory(ctx, m)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := store.GetMemory(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "use errgroup for fan-out", got.Title)
	require.Equal(t, []string{"concurrency", "detector"}, got.Tags)
	require.Equal(t, int64(0), got.AccessCount)
}

func TestGetMemoryNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.GetMemory(context.Background(), "missing")
	require.ErrorIs(t, err, memory.ErrNotFound)
}

func TestUpdateMemoryPatch(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.CreateMemory(ctx, &memory.Memory{Type: memory.MemoryTypeNote, Title: "draft", Content: "x"})
	require.NoError(t, err)

	newTitle := "final"
	newImportance := 0.8
	err = store.UpdateMemory(ctx, id, &memory.MemoryPatch{Title: &newTitle, Importance: &newImportance})
	require.NoError(t, err)

	got, err := store.GetMemory(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "final", got.Title)
	require.Equal(t, 0.8, got.Importance)
}

func TestTouchAccessIsMonotonic(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.CreateMemory(ctx, &memory.Memory{Type: memory.MemoryTypeNote, Title: "t", Content: "c"})
	require.NoError(t, err)

	now := time.Now().Add(time.Hour)
	require.NoError(t, store.TouchAccess(ctx, id, now))
	require.NoError(t, store.TouchAccess(ctx, id, now.Add(-time.Minute))) // older timestamp ignored

	got, err := store.GetMemory(ctx, id)
	require.NoError(t, err)
	require.Equal(t, int64(2), got.AccessCount)
	require.WithinDuration(t, now, got.AccessedAt, time.Second)
}

func TestCreateRelationConflict(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	a, err := store.CreateMemory(ctx, &memory.Memory{Type: memory.MemoryTypeNote, Title: "a", Content: "a"})
	require.NoError(t, err)
	b, err := store.CreateMemory(ctx, &memory.Memory{Type: memory.MemoryTypeNote, Title: "b", Content: "b"})
	require.NoError(t, err)

	_, err = store.CreateRelation(ctx, &memory.MemoryRelation{SourceID: a, TargetID: b, Type: memory.RelationReferences, Weight: 1})
	require.NoError(t, err)

	_, err = store.CreateRelation(ctx, &memory.MemoryRelation{SourceID: a, TargetID: b, Type: memory.RelationReferences, Weight: 1})
	require.ErrorIs(t, err, memory.ErrConflict)
}

func TestTraverseBFS(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	a, _ := store.CreateMemory(ctx, &memory.Memory{Type: memory.MemoryTypeNote, Title: "a", Content: "a"})
	b, _ := store.CreateMemory(ctx, &memory.Memory{Type: memory.MemoryTypeNote, Title: "b", Content: "b"})
	c, _ := store.CreateMemory(ctx, &memory.Memory{Type: memory.MemoryTypeNote, Title: "c", Content: "c"})

	_, err := store.CreateRelation(ctx, &memory.MemoryRelation{SourceID: a, TargetID: b, Type: memory.RelationRelatedTo, Weight: 1})
	require.NoError(t, err)
	_, err = store.CreateRelation(ctx, &memory.MemoryRelation{SourceID: b, TargetID: c, Type: memory.RelationRelatedTo, Weight: 1})
	require.NoError(t, err)

	reached, err := store.Traverse(ctx, a, memory.TraverseMaxNodes(10))
	require.NoError(t, err)
	require.Len(t, reached, 2)
}

func TestReviewSuggestionMaterializesRelation(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	a, _ := store.CreateMemory(ctx, &memory.Memory{Type: memory.MemoryTypeNote, Title: "a", Content: "a"})
	b, _ := store.CreateMemory(ctx, &memory.Memory{Type: memory.MemoryTypeNote, Title: "b", Content: "b"})

	sid, err := store.CreateSuggestion(ctx, &memory.RelationSuggestion{
		SourceID: a, TargetID: b, SuggestedType: "causes", Confidence: 0.9, DetectionMethod: "semantic",
	})
	require.NoError(t, err)

	require.NoError(t, store.ReviewSuggestion(ctx, sid, true, time.Now()))

	rels, err := store.GetRelations(ctx, a, memory.WithOutgoing())
	require.NoError(t, err)
	require.Len(t, rels, 1)
	require.Equal(t, memory.RelationReferences, rels[0].Type) // causes collapses to references
}

func TestEmbeddingCacheRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	vec := []float32{0.1, 0.2, 0.3}
	err := store.PutEmbeddingCache(ctx, &memory.EmbeddingCacheEntry{ContentHash: "hash1", Model: "m1", Embedding: vec})
	require.NoError(t, err)

	got, err := store.GetEmbeddingCache(ctx, "hash1", "m1")
	require.NoError(t, err)
	require.Equal(t, vec, got.Embedding)

	_, err = store.GetEmbeddingCache(ctx, "hash1", "m2")
	require.ErrorIs(t, err, memory.ErrNotFound)
}

func TestDocumentAndChunks(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	chunks := []memory.Chunk{
		{Content: "first chunk", StartOffset: 0, EndOffset: 10},
		{Content: "second chunk", StartOffset: 10, EndOffset: 22},
	}
	id, err := store.CreateDocument(ctx, &memory.Document{Title: "doc", Content: "first chunksecond chunk"}, chunks)
	require.NoError(t, err)

	got, err := store.GetChunks(ctx, id)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "first chunk", got[0].Content)

	require.NoError(t, store.DeleteDocument(ctx, id))
	remaining, err := store.GetChunks(ctx, id)
	require.NoError(t, err)
	require.Empty(t, remaining)
}

func TestCrossLayerRelationUniqueness(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	memID, _ := store.CreateMemory(ctx, &memory.Memory{Type: memory.MemoryTypeSolution, Title: "m", Content: "c"})
	require.NoError(t, store.UpsertCodeNodes(ctx, []memory.CodeNode{{ID: "node1", Type: memory.CodeNodeFunction, Name: "Foo", FilePath: "foo.go"}}))

	_, err := store.CreateCrossLayerRelation(ctx, &memory.CrossLayerRelation{
		MemoryID: memID, CodeNodeID: "node1", Type: memory.CrossLayerDocuments, Direction: memory.DirectionMemoryToCode, Confidence: 0.7,
	})
	require.NoError(t, err)

	_, err = store.CreateCrossLayerRelation(ctx, &memory.CrossLayerRelation{
		MemoryID: memID, CodeNodeID: "node1", Type: memory.CrossLayerDocuments, Direction: memory.DirectionMemoryToCode, Confidence: 0.7,
	})
	require.ErrorIs(t, err, memory.ErrConflict)
}

func TestGraphRAGEntitiesAndReports(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertEntity(ctx, &memory.GraphEntity{ID: "e1", Name: "Config", Type: "component"}))
	require.NoError(t, store.UpsertEntity(ctx, &memory.GraphEntity{ID: "e2", Name: "Loader", Type: "component"}))
	require.NoError(t, store.UpsertRelationship(ctx, &memory.GraphRelationship{SourceID: "e1", TargetID: "e2", Type: "uses", Strength: 5}))

	rels, err := store.RelationshipsFrom(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, rels, 1)

	require.NoError(t, store.UpsertCommunity(ctx, &memory.GraphCommunity{ID: "c1", Level: 0, EntityIDs: []string{"e1", "e2"}}))
	require.NoError(t, store.UpsertReport(ctx, &memory.GraphReport{ID: "r1", CommunityID: "c1", Title: "config subsystem", Level: 0}))

	reports, err := store.ReportsByLevel(ctx, 0)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.Equal(t, "config subsystem", reports[0].Title)
}
