package portable

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docleaai/doclea/internal/config"
	dcontext "github.com/docleaai/doclea/pkg/context"
	"github.com/docleaai/doclea/pkg/embedding/hashembed"
	"github.com/docleaai/doclea/pkg/graphrag"
	"github.com/docleaai/doclea/pkg/memory"
	"github.com/docleaai/doclea/pkg/memory/mock"
	"github.com/docleaai/doclea/pkg/vectorstore"
)

// fakeVectorStore mirrors the brute-force fake used across pkg/relate,
// pkg/context, and here: no real index, just a slice scanned linearly.
type fakeVectorStore struct {
	records []vectorstore.Record
}

func (f *fakeVectorStore) Upsert(_ context.Context, rec vectorstore.Record) error {
	for i, r := range f.records {
		if r.OwnerKind == rec.OwnerKind && r.OwnerID == rec.OwnerID {
			f.records[i] = rec
			return nil
		}
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeVectorStore) Search(_ context.Context, embedding []float32, topK int, filter vectorstore.SearchFilter) ([]vectorstore.SearchResult, error) {
	var out []vectorstore.SearchResult
	for _, r := range f.records {
		if len(filter.OwnerKinds) > 0 {
			match := false
			for _, k := range filter.OwnerKinds {
				if k == r.OwnerKind {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, vectorstore.SearchResult{Record: r, Similarity: cosine(embedding, r.Embedding)})
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Similarity > out[i].Similarity {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (f *fakeVectorStore) DeleteByOwner(_ context.Context, ownerKind vectorstore.OwnerKind, ownerID string) error {
	return nil
}

func (f *fakeVectorStore) Info(_ context.Context) (vectorstore.Info, error) {
	return vectorstore.Info{Backend: "fake", Dimensions: 64}, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (sqrtApprox(na) * sqrtApprox(nb))
}

func sqrtApprox(v float64) float64 {
	if v == 0 {
		return 0
	}
	x, prev := v, 0.0
	for i := 0; i < 40; i++ {
		prev = x
		x = (x + v/x) / 2
		if prev == x {
			break
		}
	}
	return x
}

func TestExportImport_RoundTrip(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	embedder := hashembed.New(64)

	src := mock.New()
	_, err := src.CreateMemory(ctx, &memory.Memory{ID: "m1", Type: memory.MemoryTypeDecision, Title: "Use PostgreSQL", Content: "chose postgres for ACID", CreatedAt: now, AccessedAt: now})
	require.NoError(t, err)
	_, err = src.CreateMemory(ctx, &memory.Memory{ID: "m2", Type: memory.MemoryTypeNote, Title: "Follow-up", Content: "revisit indexing strategy", CreatedAt: now, AccessedAt: now})
	require.NoError(t, err)
	_, err = src.CreateRelation(ctx, &memory.MemoryRelation{SourceID: "m1", TargetID: "m2", Type: memory.RelationRelatedTo, Weight: 0.5})
	require.NoError(t, err)

	doc, err := Export(ctx, Stores{Memories: src, Documents: src, CodeGraph: src}, embedder, "sqlite", "embedded", now)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, doc.SchemaVersion)
	assert.Equal(t, 2, doc.Metadata.TotalMemories)
	assert.Len(t, doc.Data.Memories, 2)
	assert.Len(t, doc.Data.MemoryRelations, 1)

	var buf strings.Builder
	require.NoError(t, Encode(&buf, doc))

	loaded, err := Load(strings.NewReader(buf.String()))
	require.NoError(t, err)
	assert.Equal(t, doc.Metadata, loaded.Metadata)
	assert.Len(t, loaded.Data.Memories, 2)

	dst := mock.New()
	result, err := Import(ctx, Stores{Memories: dst, Documents: dst, CodeGraph: dst}, nil, embedder, loaded, Options{Conflict: ConflictSkip, ImportRelations: true})
	require.NoError(t, err)
	assert.Equal(t, 2, result.MemoriesImported)
	assert.Equal(t, 1, result.RelationsImported)

	got, err := dst.GetMemory(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "Use PostgreSQL", got.Title)
}

func TestImport_SkipConflictLeavesExistingRowUntouched(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	embedder := hashembed.New(64)

	dst := mock.New()
	_, err := dst.CreateMemory(ctx, &memory.Memory{ID: "m1", Title: "Original", Content: "original content", CreatedAt: now})
	require.NoError(t, err)

	doc := &Document{
		SchemaVersion: SchemaVersion,
		Data: Data{
			Memories: []memory.Memory{{ID: "m1", Title: "Imported", Content: "imported content", CreatedAt: now}},
		},
	}

	result, err := Import(ctx, Stores{Memories: dst}, nil, embedder, doc, Options{Conflict: ConflictSkip})
	require.NoError(t, err)
	assert.Equal(t, 0, result.MemoriesImported)
	assert.Equal(t, 1, result.MemoriesSkipped)

	got, err := dst.GetMemory(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "Original", got.Title)
}

func TestImport_OverwriteConflictReplacesExistingRow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	embedder := hashembed.New(64)

	dst := mock.New()
	_, err := dst.CreateMemory(ctx, &memory.Memory{ID: "m1", Title: "Original", Content: "original content", CreatedAt: now})
	require.NoError(t, err)

	doc := &Document{
		SchemaVersion: SchemaVersion,
		Data: Data{
			Memories: []memory.Memory{{ID: "m1", Title: "Imported", Content: "imported content", CreatedAt: now}},
		},
	}

	result, err := Import(ctx, Stores{Memories: dst}, nil, embedder, doc, Options{Conflict: ConflictOverwrite})
	require.NoError(t, err)
	assert.Equal(t, 1, result.MemoriesImported)

	got, err := dst.GetMemory(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "Imported", got.Title)

	// Idempotence: importing the same document again with overwrite must
	// be a no-op on the resulting state (spec.md §8).
	result2, err := Import(ctx, Stores{Memories: dst}, nil, embedder, doc, Options{Conflict: ConflictOverwrite})
	require.NoError(t, err)
	assert.Equal(t, 1, result2.MemoriesImported)
	got2, err := dst.GetMemory(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, got.Content, got2.Content)
}

func TestImport_ErrorConflictStopsOnCollision(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	embedder := hashembed.New(64)

	dst := mock.New()
	_, err := dst.CreateMemory(ctx, &memory.Memory{ID: "m1", Title: "Original", Content: "x", CreatedAt: now})
	require.NoError(t, err)

	doc := &Document{
		SchemaVersion: SchemaVersion,
		Data: Data{
			Memories: []memory.Memory{{ID: "m1", Title: "Imported", Content: "y", CreatedAt: now}},
		},
	}

	_, err = Import(ctx, Stores{Memories: dst}, nil, embedder, doc, Options{Conflict: ConflictError})
	assert.Error(t, err)
}

func TestImport_ReembedFlagsRequirementWhenProviderDiffers(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	embedder := hashembed.New(64)

	dst := mock.New()
	doc := &Document{
		SchemaVersion: SchemaVersion,
		Metadata:      Metadata{EmbeddingProvider: "openai", EmbeddingModel: "text-embedding-3-small"},
		Data: Data{
			Memories: []memory.Memory{{ID: "m1", Title: "A", Content: "x", CreatedAt: now, VectorID: "v-old"}},
		},
	}

	result, err := Import(ctx, Stores{Memories: dst}, nil, embedder, doc, Options{Conflict: ConflictSkip})
	require.NoError(t, err)
	assert.True(t, result.ReembeddingRequired)
}

func TestLoad_RejectsMissingRequiredField(t *testing.T) {
	_, err := Load(strings.NewReader(`{"version":"1.0.0"}`))
	assert.Error(t, err)
}

func TestEvaluate_QualityGatePassesOnSeededFixture(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	embedder := hashembed.New(64)
	store := mock.New()
	vectors := &fakeVectorStore{}

	seed := func(id, title, content string) {
		m := memory.Memory{ID: id, Type: memory.MemoryTypeDecision, Title: title, Content: content, CreatedAt: now, AccessedAt: now, Importance: 0.8}
		_, err := store.CreateMemory(ctx, &m)
		require.NoError(t, err)
		vec, err := embedder.Embed(ctx, content)
		require.NoError(t, err)
		require.NoError(t, vectors.Upsert(ctx, vectorstore.Record{ID: "v-" + id, OwnerKind: vectorstore.OwnerMemory, OwnerID: id, Embedding: vec}))
	}
	seed("m1", "Use PostgreSQL", "decided on postgres for ACID compliance database architecture")
	seed("m2", "Unrelated note", "the cafeteria menu changed on friday")

	cfg := config.ScoringConfig{
		Weights:                config.ScoringWeights{Semantic: 0.7, Recency: 0.1, Confidence: 0.1, Frequency: 0.1},
		RecencyDecay:           config.RecencyExponential,
		HalfLifeDays:           30,
		FrequencyNormalization: config.FrequencyLog,
		FrequencyMaxCount:      100,
		ColdStartScore:         0.3,
		SearchOverfetch:        3,
	}
	builder := dcontext.New(store, vectors, embedder, cfg, config.ContextCacheConfig{}, dcontext.WithClock(func() time.Time { return now }))

	fixture := &Fixture{
		Queries: []GoldenQuery{
			{Query: "postgres choice for ACID compliance database", ExpectedMemoryIDs: []string{"m1"}, RecallK: 3},
		},
		MinMemoryRecall: 1.0,
		MinPrecisionAtK: 0.3,
	}

	report, err := Evaluate(ctx, builder, fixture)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 1)
	assert.True(t, report.Pass, "expected outcome: %+v", report.Outcomes[0])
}

func TestEvaluate_QualityGateReportsDiffOnMiss(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	embedder := hashembed.New(64)
	store := mock.New()
	vectors := &fakeVectorStore{}

	cfg := config.ScoringConfig{
		Weights:                config.ScoringWeights{Semantic: 0.7, Recency: 0.1, Confidence: 0.1, Frequency: 0.1},
		RecencyDecay:           config.RecencyExponential,
		HalfLifeDays:           30,
		FrequencyNormalization: config.FrequencyLog,
		FrequencyMaxCount:      100,
		ColdStartScore:         0.3,
		SearchOverfetch:        3,
	}
	builder := dcontext.New(store, vectors, embedder, cfg, config.ContextCacheConfig{}, dcontext.WithClock(func() time.Time { return now }))

	fixture := &Fixture{
		Queries:         []GoldenQuery{{Query: "anything", ExpectedMemoryIDs: []string{"missing"}, RecallK: 3}},
		MinMemoryRecall: 1.0,
	}

	report, err := Evaluate(ctx, builder, fixture)
	require.NoError(t, err)
	require.False(t, report.Pass)
	assert.Contains(t, report.Outcomes[0].Diff, "missing")
}
