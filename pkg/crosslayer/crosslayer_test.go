package crosslayer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docleaai/doclea/internal/config"
	"github.com/docleaai/doclea/pkg/memory"
	"github.com/docleaai/doclea/pkg/memory/mock"
)

func detectionConfig() config.DetectionConfig {
	return config.DetectionConfig{
		SuggestionThreshold:  0.5,
		AutoApproveThreshold: 0.85,
	}
}

func TestDetectFromMemory_BacktickIdentifierAutoApproves(t *testing.T) {
	ctx := context.Background()
	store := mock.New()
	now := time.Now()

	require.NoError(t, store.UpsertCodeNodes(ctx, []memory.CodeNode{
		{ID: "n1", Type: memory.CodeNodeFunction, Name: "ProcessOrder", FilePath: "pkg/orders/orders.go"},
	}))

	m := memory.Memory{ID: "m1", Content: "Fixed a race in `ProcessOrder` under load."}
	d := New(store, store, detectionConfig())

	res, err := d.DetectFromMemory(ctx, m, now)
	require.NoError(t, err)
	require.Len(t, res.AutoApproved, 1)
	assert.Equal(t, memory.CrossLayerDocuments, res.AutoApproved[0].Type)
	assert.Equal(t, "n1", res.AutoApproved[0].CodeNodeID)
	assert.Equal(t, memory.DirectionMemoryToCode, res.AutoApproved[0].Direction)
}

func TestDetectFromMemory_RelatedFileSkipsModuleNodes(t *testing.T) {
	ctx := context.Background()
	store := mock.New()
	now := time.Now()

	require.NoError(t, store.UpsertCodeNodes(ctx, []memory.CodeNode{
		{ID: "pkg-mod", Type: memory.CodeNodeModule, Name: "orders", FilePath: "pkg/orders/orders.go"},
		{ID: "fn1", Type: memory.CodeNodeFunction, Name: "Validate", FilePath: "pkg/orders/orders.go"},
	}))

	m := memory.Memory{ID: "m1", Content: "notes", RelatedFiles: []string{"pkg/orders/orders.go"}}
	d := New(store, store, detectionConfig())

	res, err := d.DetectFromMemory(ctx, m, now)
	require.NoError(t, err)

	var sawModule bool
	for _, r := range append(res.AutoApproved, suggestedRelations(res.Suggested)...) {
		if r.CodeNodeID == "pkg-mod" {
			sawModule = true
		}
	}
	assert.False(t, sawModule)
}

func suggestedRelations(s []memory.CrossLayerSuggestion) []memory.CrossLayerRelation {
	out := make([]memory.CrossLayerRelation, len(s))
	for i, v := range s {
		out[i] = v.CrossLayerRelation
	}
	return out
}

func TestDetectFromCode_AddressesRequiresOverlapThreshold(t *testing.T) {
	ctx := context.Background()
	store := mock.New()
	now := time.Now()

	decisionID, err := store.CreateMemory(ctx, &memory.Memory{
		Type: memory.MemoryTypeDecision, Content: "decided to use exponential backoff retry queue jitter",
		RelatedFiles: []string{"pkg/retry/retry.go"},
	})
	require.NoError(t, err)

	node := memory.CodeNode{ID: "n1", Type: memory.CodeNodeFunction, Name: "Retry", FilePath: "pkg/retry/retry.go", Signature: "backoff retry queue jitter"}

	d := New(store, store, detectionConfig())
	res, err := d.DetectFromCode(ctx, node, now)
	require.NoError(t, err)

	var found bool
	for _, s := range res.Suggested {
		if s.MemoryID == decisionID {
			found = true
			assert.Equal(t, memory.CrossLayerAddresses, s.Type)
			assert.LessOrEqual(t, s.Confidence, 0.75)
		}
	}
	for _, r := range res.AutoApproved {
		if r.MemoryID == decisionID {
			found = true
		}
	}
	assert.True(t, found)
}

func TestDetectFromCode_ExemplifiesByNameReference(t *testing.T) {
	ctx := context.Background()
	store := mock.New()
	now := time.Now()

	patternID, err := store.CreateMemory(ctx, &memory.Memory{
		Type: memory.MemoryTypePattern, Content: "Use the Retry helper whenever calling flaky downstreams.",
	})
	require.NoError(t, err)

	node := memory.CodeNode{ID: "n1", Type: memory.CodeNodeFunction, Name: "Retry", FilePath: "pkg/retry/retry.go"}

	d := New(store, store, detectionConfig())
	res, err := d.DetectFromCode(ctx, node, now)
	require.NoError(t, err)

	require.Len(t, res.AutoApproved, 1)
	assert.Equal(t, patternID, res.AutoApproved[0].MemoryID)
	assert.Equal(t, memory.CrossLayerExemplifies, res.AutoApproved[0].Type)
	assert.Equal(t, 0.85, res.AutoApproved[0].Confidence)
}

func TestDedupe_KeepsMaxConfidencePerEndpoint(t *testing.T) {
	cands := []candidate{
		{endpointID: "n1", typ: memory.CrossLayerDocuments, confidence: 0.75},
		{endpointID: "n1", typ: memory.CrossLayerDocuments, confidence: 0.9},
	}
	out := dedupe(cands)
	require.Len(t, out, 1)
	assert.Equal(t, 0.9, out[0].confidence)
}
