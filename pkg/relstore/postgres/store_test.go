package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/docleaai/doclea/pkg/memory"
	"github.com/docleaai/doclea/pkg/relstore/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if DOCLEA_TEST_POSTGRES_DSN is not set — these tests exercise a real
// Postgres+pgvector instance and are not run by default.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("DOCLEA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DOCLEA_TEST_POSTGRES_DSN not set — skipping Postgres integration tests")
	}
	return dsn
}

func openTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	db, _, err := postgres.Open(ctx, dsn, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return postgres.New(db)
}

func TestCreateAndGetMemory(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	m := &memory.Memory{
		Type:    memory.MemoryTypeDecision,
		Title:   "use pgx stdlib driver for the Postgres backend",
		Content: "reused database/sql + pgx/v5/stdlib so the shared Migrator works unchanged",
		Tags:    []string{"storage", "postgres"},
	}

	id, err := store.CreateMemory(ctx, m)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := store.GetMemory(ctx, id)
	require.NoError(t, err)
	require.Equal(t, m.Title, got.Title)
	require.ElementsMatch(t, m.Tags, got.Tags)
}

func TestEmbeddingCacheRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	entry := &memory.EmbeddingCacheEntry{
		ContentHash: "deadbeef",
		Model:       "local-tei",
		Embedding:   []float32{0.1, 0.2, 0.3, 0.4},
	}
	require.NoError(t, store.PutEmbeddingCache(ctx, entry))

	got, err := store.GetEmbeddingCache(ctx, "deadbeef", "local-tei")
	require.NoError(t, err)
	require.Equal(t, entry.Embedding, got.Embedding)
}

func TestCreateRelationConflict(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	a, err := store.CreateMemory(ctx, &memory.Memory{Type: memory.MemoryTypeNote, Title: "a", Content: "a"})
	require.NoError(t, err)
	b, err := store.CreateMemory(ctx, &memory.Memory{Type: memory.MemoryTypeNote, Title: "b", Content: "b"})
	require.NoError(t, err)

	rel := &memory.MemoryRelation{SourceID: a, TargetID: b, Type: memory.RelationRelatedTo, Weight: 1}
	_, err = store.CreateRelation(ctx, rel)
	require.NoError(t, err)

	_, err = store.CreateRelation(ctx, &memory.MemoryRelation{SourceID: a, TargetID: b, Type: memory.RelationRelatedTo, Weight: 1})
	require.ErrorIs(t, err, memory.ErrConflict)
}
