package context

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docleaai/doclea/internal/config"
	"github.com/docleaai/doclea/pkg/embedding/hashembed"
	"github.com/docleaai/doclea/pkg/graphrag"
	"github.com/docleaai/doclea/pkg/memory"
	"github.com/docleaai/doclea/pkg/memory/mock"
	"github.com/docleaai/doclea/pkg/vectorstore"
)

// fakeVectorStore is the same brute-force fake pkg/relate's tests use.
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

func baseScoringConfig() config.ScoringConfig {
	return config.ScoringConfig{
		Weights: config.ScoringWeights{
			Semantic: 0.5, Recency: 0.2, Confidence: 0.2, Frequency: 0.1,
		},
		RecencyDecay:           config.RecencyExponential,
		HalfLifeDays:           14,
		FrequencyNormalization: config.FrequencyLog,
		FrequencyMaxCount:      100,
		ColdStartScore:         0.3,
		SearchOverfetch:        3,
	}
}

func seedMemory(t *testing.T, ctx context.Context, store *mock.Store, vectors *fakeVectorStore, embedder *hashembed.Provider, m memory.Memory) string {
	t.Helper()
	id, err := store.CreateMemory(ctx, &m)
	require.NoError(t, err)
	vec, err := embedder.Embed(ctx, m.Content)
	require.NoError(t, err)
	require.NoError(t, vectors.Upsert(ctx, vectorstore.Record{ID: "v-" + id, OwnerKind: vectorstore.OwnerMemory, OwnerID: id, Embedding: vec}))
	return id
}

func TestFingerprint_StableAndOrderIndependent(t *testing.T) {
	req1 := Request{
		Query:       "retry backoff",
		TokenBudget: 500,
		Filters:     memory.MemoryFilter{Tags: []string{"Alpha", "beta"}, TagsMatch: "any"},
	}
	req2 := Request{
		Query:       "retry backoff",
		TokenBudget: 500,
		Filters:     memory.MemoryFilter{Tags: []string{"beta", "alpha"}, TagsMatch: "any"},
	}
	assert.Equal(t, Fingerprint(req1), Fingerprint(req2), "tag order must not affect the fingerprint")
}

func TestFingerprint_SensitiveToQueryAndBudget(t *testing.T) {
	base := Request{Query: "retry backoff", TokenBudget: 500}
	diffQuery := base
	diffQuery.Query = "something else"
	diffBudget := base
	diffBudget.TokenBudget = 1000

	fp := Fingerprint(base)
	assert.NotEqual(t, fp, Fingerprint(diffQuery))
	assert.NotEqual(t, fp, Fingerprint(diffBudget))
}

func TestFingerprint_ExcludesNothingButNow(t *testing.T) {
	// Two requests with identical shape must fingerprint identically
	// regardless of when Fingerprint is called — there is no "now" field to
	// vary in the first place, which is the point: a cached Result must
	// stay valid for its full TTL independent of wall-clock drift.
	req := Request{Query: "x", TokenBudget: 10}
	assert.Equal(t, Fingerprint(req), Fingerprint(req))
}

func TestCache_HitMissAndTTLExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := now
	c := NewCache(config.ContextCacheConfig{MaxEntries: 10, TTLSeconds: 60})
	c.now = func() time.Time { return clock }

	_, ok := c.Get("k1")
	assert.False(t, ok)

	c.Put("k1", &Result{Context: "hello"})
	got, ok := c.Get("k1")
	require.True(t, ok)
	assert.Equal(t, "hello", got.Context)

	clock = clock.Add(61 * time.Second)
	_, ok = c.Get("k1")
	assert.False(t, ok, "entry must expire after its TTL")
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(config.ContextCacheConfig{MaxEntries: 2, TTLSeconds: 3600})
	c.Put("a", &Result{Context: "a"})
	c.Put("b", &Result{Context: "b"})
	c.Get("a") // a is now most recently used
	c.Put("c", &Result{Context: "c"})

	_, aOK := c.Get("a")
	_, bOK := c.Get("b")
	_, cOK := c.Get("c")
	assert.True(t, aOK)
	assert.False(t, bOK, "b should have been evicted as least recently used")
	assert.True(t, cOK)
}

func TestBuild_ZeroTokenBudgetReturnsEmptyResult(t *testing.T) {
	ctx := context.Background()
	store := mock.New()
	vectors := &fakeVectorStore{}
	embedder := hashembed.New(64)
	b := New(store, vectors, embedder, baseScoringConfig(), config.ContextCacheConfig{})

	res, err := b.Build(ctx, Request{Query: "anything", TokenBudget: 0})
	require.NoError(t, err)
	assert.Equal(t, "", res.Context)
	assert.Zero(t, res.SectionsIncluded)
}

func TestBuild_RAGLegPacksHighestScoringFirst(t *testing.T) {
	ctx := context.Background()
	store := mock.New()
	vectors := &fakeVectorStore{}
	embedder := hashembed.New(64)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seedMemory(t, ctx, store, vectors, embedder, memory.Memory{
		Type: memory.MemoryTypeDecision, Title: "Use exponential backoff", Content: "retry queue uses exponential backoff with jitter",
		CreatedAt: now, AccessedAt: now, Importance: 0.9,
	})
	seedMemory(t, ctx, store, vectors, embedder, memory.Memory{
		Type: memory.MemoryTypeNote, Title: "Unrelated note", Content: "the cafeteria menu changed on friday",
		CreatedAt: now.Add(-90 * 24 * time.Hour), AccessedAt: now.Add(-90 * 24 * time.Hour), Importance: 0.2,
	})

	b := New(store, vectors, embedder, baseScoringConfig(), config.ContextCacheConfig{}, WithClock(func() time.Time { return now }))

	res, err := b.Build(ctx, Request{Query: "retry queue exponential backoff jitter", TokenBudget: 2000})
	require.NoError(t, err)
	require.NotEmpty(t, res.RAGSections)
	assert.Contains(t, res.Context, "Use exponential backoff")
}

func TestBuild_CacheHitOnSecondCall(t *testing.T) {
	ctx := context.Background()
	store := mock.New()
	vectors := &fakeVectorStore{}
	embedder := hashembed.New(64)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seedMemory(t, ctx, store, vectors, embedder, memory.Memory{
		Type: memory.MemoryTypeDecision, Title: "Decision A", Content: "some decision content", CreatedAt: now, AccessedAt: now,
	})

	b := New(store, vectors, embedder, baseScoringConfig(), config.ContextCacheConfig{MaxEntries: 10, TTLSeconds: 60}, WithClock(func() time.Time { return now }))
	req := Request{Query: "some decision content", TokenBudget: 1000}

	res1, err := b.Build(ctx, req)
	require.NoError(t, err)
	assert.False(t, res1.FromCache)

	res2, err := b.Build(ctx, req)
	require.NoError(t, err)
	assert.True(t, res2.FromCache)
	assert.Equal(t, res1.Context, res2.Context)
}

func TestBuild_DegradedKAGLegDoesNotFailWholeBuild(t *testing.T) {
	ctx := context.Background()
	store := mock.New()
	vectors := &fakeVectorStore{}
	embedder := hashembed.New(64)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seedMemory(t, ctx, store, vectors, embedder, memory.Memory{
		Type: memory.MemoryTypeDecision, Title: "Decision A", Content: "some decision content", CreatedAt: now, AccessedAt: now,
	})

	b := New(store, vectors, embedder, baseScoringConfig(), config.ContextCacheConfig{},
		WithCodeGraph(failingCodeGraphStore{}),
		WithClock(func() time.Time { return now }),
	)

	res, err := b.Build(ctx, Request{Query: "some decision content", TokenBudget: 1000, IncludeCodeGraph: true})
	require.NoError(t, err)
	require.NotNil(t, res.LegErrors)
	assert.Contains(t, res.LegErrors, LegKAG)
	assert.NotEmpty(t, res.RAGSections, "RAG leg must still succeed despite KAG failing")
}

// failingCodeGraphStore implements [memory.CodeGraphStore] minimally,
// failing every lookup the KAG leg calls.
type failingCodeGraphStore struct{ memory.CodeGraphStore }

func (failingCodeGraphStore) FindCodeNodesByName(_ context.Context, _ string) ([]memory.CodeNode, error) {
	return nil, assertError{}
}

func (failingCodeGraphStore) FindCodeNodesByFile(_ context.Context, _ string) ([]memory.CodeNode, error) {
	return nil, assertError{}
}

type assertError struct{}

func (assertError) Error() string { return "boom" }

func TestBuild_GraphRAGLegIncludesCommunityReports(t *testing.T) {
	ctx := context.Background()
	store := mock.New()
	vectors := &fakeVectorStore{}
	embedder := hashembed.New(64)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.UpsertEntity(ctx, &memory.GraphEntity{ID: "e1", Name: "RetryQueue", Type: "component"}))
	require.NoError(t, store.UpsertCommunity(ctx, &memory.GraphCommunity{ID: "c1", Level: 0, EntityIDs: []string{"e1"}}))
	report := memory.GraphReport{ID: "r1", CommunityID: "c1", Title: "Retry subsystem", Summary: "Handles retries and backoff.", Level: 0}
	require.NoError(t, store.UpsertReport(ctx, &report))

	vec, err := embedder.Embed(ctx, "retry backoff jitter")
	require.NoError(t, err)
	require.NoError(t, vectors.Upsert(ctx, vectorstore.Record{ID: "vr1", OwnerKind: vectorstore.OwnerReport, OwnerID: "r1", Embedding: vec}))

	engine := graphrag.New(store, store, vectors, embedder)
	b := New(store, vectors, embedder, baseScoringConfig(), config.ContextCacheConfig{},
		WithGraphRAG(engine),
		WithClock(func() time.Time { return now }),
	)

	res, err := b.Build(ctx, Request{Query: "retry backoff jitter", TokenBudget: 2000, IncludeGraphRAG: true, IncludeEvidence: true})
	require.NoError(t, err)
	require.NotEmpty(t, res.GraphRAGSections)
	assert.Contains(t, res.Context, "Retry subsystem")
}
