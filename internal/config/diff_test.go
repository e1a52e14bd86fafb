package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/docleaai/doclea/internal/config"
)

func baseConfig() config.Config {
	return config.Config{
		Embedding: config.EmbeddingConfig{Provider: "openai"},
		Scoring: config.ScoringConfig{
			Weights: config.ScoringWeights{Semantic: 0.5, Recency: 0.2, Confidence: 0.2, Frequency: 0.1},
		},
		Staleness: config.StalenessConfig{FreshThreshold: 0.3, StaleThreshold: 0.7},
		Detection: config.DetectionConfig{SuggestionThreshold: 0.6, AutoApproveThreshold: 0.9},
	}
}

func TestDiffConfigs_NoChange(t *testing.T) {
	a := baseConfig()
	b := baseConfig()
	d := config.DiffConfigs(&a, &b)
	assert.False(t, d.Changed())
}

func TestDiffConfigs_ScoringChanged(t *testing.T) {
	a := baseConfig()
	b := baseConfig()
	b.Scoring.Weights.Semantic = 0.9
	d := config.DiffConfigs(&a, &b)
	assert.True(t, d.ScoringChanged)
	assert.False(t, d.StalenessChanged)
	assert.True(t, d.Changed())
}

func TestDiffConfigs_StalenessChanged(t *testing.T) {
	a := baseConfig()
	b := baseConfig()
	b.Staleness.FreshThreshold = 0.1
	d := config.DiffConfigs(&a, &b)
	assert.True(t, d.StalenessChanged)
	assert.False(t, d.ScoringChanged)
}

func TestDiffConfigs_DetectionChanged(t *testing.T) {
	a := baseConfig()
	b := baseConfig()
	b.Detection.AutoApproveThreshold = 0.95
	d := config.DiffConfigs(&a, &b)
	assert.True(t, d.DetectionChanged)
}

func TestDiffConfigs_CacheChanged(t *testing.T) {
	a := baseConfig()
	b := baseConfig()
	b.ContextCache.MaxEntries = 500
	d := config.DiffConfigs(&a, &b)
	assert.True(t, d.CacheChanged)
}

func TestDiffConfigs_StorageChangeNotTracked(t *testing.T) {
	a := baseConfig()
	b := baseConfig()
	b.Storage.DBPath = "/elsewhere/doclea.db"
	d := config.DiffConfigs(&a, &b)
	assert.False(t, d.Changed(), "storage changes are not hot-reloadable and must not be reported")
}
