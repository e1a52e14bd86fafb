package relate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docleaai/doclea/internal/config"
	"github.com/docleaai/doclea/pkg/embedding/hashembed"
	"github.com/docleaai/doclea/pkg/memory"
	"github.com/docleaai/doclea/pkg/memory/mock"
	"github.com/docleaai/doclea/pkg/vectorstore"
)

// fakeVectorStore is a minimal brute-force [vectorstore.Store] used only to
// exercise the semantic candidate source without a real index.
type fakeVectorStore struct {
	records []vectorstore.Record
}

func (f *fakeVectorStore) Upsert(_ context.Context, rec vectorstore.Record) error {
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
	return dot / (sqrt(na) * sqrt(nb))
}

func sqrt(v float64) float64 {
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

func detectionConfig() config.DetectionConfig {
	return config.DetectionConfig{
		SemanticThreshold:     0.9,
		SuggestionThreshold:   0.5,
		AutoApproveThreshold:  0.85,
		TemporalWindowDays:    7,
		QueueCapacity:         100,
	}
}

func TestDetect_KeywordOverlapProducesSuggestion(t *testing.T) {
	ctx := context.Background()
	store := mock.New()
	vectors := &fakeVectorStore{}
	embedder := hashembed.New(64)
	cfg := detectionConfig()
	cfg.SemanticThreshold = 2 // disable semantic source entirely
	cfg.TemporalWindowDays = 0

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	target := memory.Memory{Type: memory.MemoryTypeSolution, Content: "retry queue backoff jitter implementation details", CreatedAt: now.Add(-48 * time.Hour)}
	targetID, err := store.CreateMemory(ctx, &target)
	require.NoError(t, err)

	source := memory.Memory{
		ID:        "src1",
		Type:      memory.MemoryTypeDecision,
		Content:   "decided on retry queue backoff jitter approach",
		CreatedAt: now,
	}
	_, err = store.CreateMemory(ctx, &source)
	require.NoError(t, err)

	d := New(store, vectors, embedder, cfg)
	res, err := d.Detect(ctx, source, now)
	require.NoError(t, err)

	found := false
	for _, s := range res.Suggested {
		if s.TargetID == targetID {
			found = true
			assert.Equal(t, "keyword", s.DetectionMethod)
		}
	}
	for _, r := range res.AutoApproved {
		if r.TargetID == targetID {
			found = true
		}
	}
	assert.True(t, found, "expected a relation or suggestion linking the keyword-overlapping memory")
}

func TestDetect_SkipsAlreadyLinkedTargets(t *testing.T) {
	ctx := context.Background()
	store := mock.New()
	vectors := &fakeVectorStore{}
	embedder := hashembed.New(64)
	cfg := detectionConfig()
	cfg.SemanticThreshold = 2
	cfg.TemporalWindowDays = 0

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	target := memory.Memory{Type: memory.MemoryTypeSolution, Content: "retry queue backoff jitter implementation details"}
	targetID, err := store.CreateMemory(ctx, &target)
	require.NoError(t, err)

	source := memory.Memory{ID: "src1", Type: memory.MemoryTypeDecision, Content: "decided on retry queue backoff jitter approach", CreatedAt: now}
	_, err = store.CreateMemory(ctx, &source)
	require.NoError(t, err)

	_, err = store.CreateRelation(ctx, &memory.MemoryRelation{SourceID: source.ID, TargetID: targetID, Type: memory.RelationRelatedTo, CreatedAt: now})
	require.NoError(t, err)

	d := New(store, vectors, embedder, cfg)
	res, err := d.Detect(ctx, source, now)
	require.NoError(t, err)

	for _, s := range res.Suggested {
		assert.NotEqual(t, targetID, s.TargetID)
	}
	for _, r := range res.AutoApproved {
		assert.NotEqual(t, targetID, r.TargetID)
	}
}

func TestInferRelationType(t *testing.T) {
	assert.Equal(t, memory.RelationImplements, inferRelationType(memory.MemoryTypeDecision, memory.MemoryTypeSolution))
	assert.Equal(t, memory.RelationReferences, inferRelationType(memory.MemoryTypePattern, memory.MemoryTypeSolution))
	assert.Equal(t, memory.RelationRequires, inferRelationType(memory.MemoryTypeArchitecture, memory.MemoryTypeDecision))
	assert.Equal(t, memory.RelationRelatedTo, inferRelationType(memory.MemoryTypeNote, memory.MemoryTypeNote))
}

func TestJaccard_ExactOverlapAndEmptySet(t *testing.T) {
	a := map[string]struct{}{"backoff": {}, "retry": {}}
	b := map[string]struct{}{"backoff": {}, "jitter": {}}
	assert.InDelta(t, 1.0/3.0, jaccard(a, b), 0.01)

	assert.Equal(t, float64(0), jaccard(map[string]struct{}{}, b))
}

func TestDedupeByTarget_MergesAndKeepsMaxConfidence(t *testing.T) {
	cands := []candidate{
		{targetID: "a", confidence: 0.4, reason: "shared keywords/tags", method: "keyword"},
		{targetID: "a", confidence: 0.7, reason: "overlapping related files", method: "file_overlap"},
		{targetID: "b", confidence: 0.2, reason: "created within the same time window", method: "temporal"},
	}
	out := dedupeByTarget(cands)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].targetID)
	assert.Equal(t, 0.7, out[0].confidence)
	assert.Contains(t, out[0].reason, "shared keywords/tags")
	assert.Contains(t, out[0].reason, "overlapping related files")
}
