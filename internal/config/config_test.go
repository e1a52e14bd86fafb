package config_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docleaai/doclea/internal/config"
)

func TestConfig_JSONRoundTrip(t *testing.T) {
	original := config.Config{
		Storage: config.StorageConfig{DBPath: "/tmp/doclea.db"},
		Vector: config.VectorConfig{
			Provider:       config.VectorProviderRemote,
			URL:            "https://vectors.internal",
			CollectionName: "doclea-memories",
			VectorSize:     768,
		},
		Embedding: config.EmbeddingConfig{
			Provider: "voyage",
			Model:    "voyage-3",
		},
		Scoring: config.ScoringConfig{
			Weights:         config.ScoringWeights{Semantic: 0.6, Recency: 0.2, Confidence: 0.15, Frequency: 0.05},
			RecencyDecay:    config.RecencyStep,
			SearchOverfetch: 4,
			BoostRules: []config.BoostRule{
				{Condition: config.BoostTags, Factor: 1.2, Tags: []string{"architecture"}, Match: "any"},
			},
		},
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded config.Config
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original, decoded)
}

func TestBoostRule_ConditionKinds(t *testing.T) {
	kinds := []config.BoostCondition{
		config.BoostRecency, config.BoostImportance, config.BoostFrequency,
		config.BoostStaleness, config.BoostMemoryType, config.BoostTags,
	}
	seen := map[config.BoostCondition]bool{}
	for _, k := range kinds {
		assert.NotEmpty(t, string(k))
		assert.False(t, seen[k], "duplicate condition kind %q", k)
		seen[k] = true
	}
}
