package staleness

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

func cfg() config.StalenessConfig {
	return config.StalenessConfig{
		TimeDecayWeight:        0.5,
		TimeDecayThresholdDays: 90,
		ContradictionsWeight:   0.3,
		ContradictionPatterns:  []string{`no longer`, `deprecated`, `instead of`},
		RelatedUpdatesWeight:   0.4,
		MaxTraversalDepth:      3,
		FreshThreshold:         0.3,
		StaleThreshold:         0.7,
	}
}

func TestAssess_FreshMemoryHasNoSignals(t *testing.T) {
	ctx := context.Background()
	store := mock.New()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	m := memory.Memory{ID: "m1", Title: "recent decision", CreatedAt: now.Add(-2 * 24 * time.Hour), AccessedAt: now.Add(-2 * 24 * time.Hour)}

	e := New(store, cfg())
	res, err := e.Assess(ctx, m, nil, now)
	require.NoError(t, err)
	assert.Equal(t, StatusFresh, res.Status)
	assert.Empty(t, res.Signals)
}

func TestAssess_TimeDecayPushesTowardObsolete(t *testing.T) {
	ctx := context.Background()
	store := mock.New()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	m := memory.Memory{ID: "m1", Title: "old decision", CreatedAt: now.Add(-180 * 24 * time.Hour), AccessedAt: now.Add(-180 * 24 * time.Hour)}

	e := New(store, cfg())
	res, err := e.Assess(ctx, m, nil, now)
	require.NoError(t, err)
	require.Len(t, res.Signals, 1)
	assert.Equal(t, "time_decay", res.Signals[0].Name)
	assert.Equal(t, StatusObsolete, res.Status)
}

func TestAssess_ContradictionsFlagsNewerOpposingMemory(t *testing.T) {
	ctx := context.Background()
	store := mock.New()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	m := memory.Memory{ID: "m1", Title: "use polling for sync", Content: "we use polling for sync", CreatedAt: now.Add(-10 * 24 * time.Hour)}
	others := []memory.Memory{
		{ID: "m2", Title: "switch to websockets", Content: "polling is deprecated, use websockets instead", CreatedAt: now.Add(-1 * 24 * time.Hour)},
	}

	e := New(store, cfg())
	res, err := e.Assess(ctx, m, others, now)
	require.NoError(t, err)

	var found bool
	for _, s := range res.Signals {
		if s.Name == "contradictions" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestAssess_RelatedUpdatesFromFresherNeighbor(t *testing.T) {
	ctx := context.Background()
	store := mock.New()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	oldID, err := store.CreateMemory(ctx, &memory.Memory{Title: "old", CreatedAt: now.Add(-30 * 24 * time.Hour)})
	require.NoError(t, err)
	newID, err := store.CreateMemory(ctx, &memory.Memory{Title: "newer related decision", CreatedAt: now})
	require.NoError(t, err)
	_, err = store.CreateRelation(ctx, &memory.MemoryRelation{SourceID: oldID, TargetID: newID, Type: memory.RelationSupersedes, CreatedAt: now})
	require.NoError(t, err)

	m, err := store.GetMemory(ctx, oldID)
	require.NoError(t, err)

	e := New(store, cfg())
	res, err := e.Assess(ctx, *m, nil, now)
	require.NoError(t, err)

	var found bool
	for _, s := range res.Signals {
		if s.Name == "related_updates" {
			found = true
			assert.Equal(t, float64(1), s.Score)
		}
	}
	assert.True(t, found)
}

func TestAggregate_WeightedMeanOfPresentSignals(t *testing.T) {
	signals := []Signal{
		{Name: "a", Score: 1.0, Weight: 0.5},
		{Name: "b", Score: 0.0, Weight: 0.5},
	}
	assert.Equal(t, 0.5, aggregate(signals))
	assert.Equal(t, float64(0), aggregate(nil))
}

func TestBucket_RespectsConfiguredThresholds(t *testing.T) {
	e := New(nil, config.StalenessConfig{FreshThreshold: 0.3, StaleThreshold: 0.7})
	assert.Equal(t, StatusFresh, e.bucket(0.1))
	assert.Equal(t, StatusStale, e.bucket(0.5))
	assert.Equal(t, StatusObsolete, e.bucket(0.9))
}
