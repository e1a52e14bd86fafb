package config_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docleaai/doclea/internal/config"
)

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(`{"embedding":{"provider":"openai"}}`))
	require.NoError(t, err)
	assert.Equal(t, ".doclea/doclea.db", cfg.Storage.DBPath)
	assert.Equal(t, config.VectorProviderEmbedded, cfg.Vector.Provider)
	assert.Equal(t, config.RecencyExponential, cfg.Scoring.RecencyDecay)
	assert.Equal(t, 0.5, cfg.Scoring.Weights.Semantic)
	assert.Less(t, cfg.Detection.SuggestionThreshold, cfg.Detection.AutoApproveThreshold)
	assert.Less(t, cfg.Staleness.FreshThreshold, cfg.Staleness.StaleThreshold)
}

func TestLoadFromReader_EnvInterpolation(t *testing.T) {
	t.Setenv("DOCLEA_TEST_KEY", "sk-interpolated")
	cfg, err := config.LoadFromReader(strings.NewReader(
		`{"embedding":{"provider":"openai","apiKey":"${DOCLEA_TEST_KEY}"}}`))
	require.NoError(t, err)
	assert.Equal(t, "sk-interpolated", cfg.Embedding.APIKey)
}

func TestLoadFromReader_UnsetEnvVarInterpolatesEmpty(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(
		`{"embedding":{"provider":"openai","apiKey":"${DOCLEA_DEFINITELY_UNSET}"}}`))
	require.NoError(t, err)
	assert.Equal(t, "", cfg.Embedding.APIKey)
}

func TestLoadFromReader_RejectsUnknownField(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader(`{"bogusSection":{}}`))
	require.Error(t, err)
}

func TestValidate_RemoteVectorRequiresURL(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader(
		`{"vector":{"provider":"remote"},"embedding":{"provider":"openai"}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vector.url")
}

func TestValidate_WeightOutOfRange(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader(
		`{"embedding":{"provider":"openai"},"scoring":{"weights":{"semantic":1.5}}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scoring.weights.semantic")
}

func TestValidate_DetectionThresholdOrdering(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader(
		`{"embedding":{"provider":"openai"},"detection":{"suggestionThreshold":0.9,"autoApproveThreshold":0.5}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "detection.suggestionThreshold")
}

func TestValidate_StalenessThresholdOrdering(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader(
		`{"embedding":{"provider":"openai"},"staleness":{"freshThreshold":0.8,"staleThreshold":0.2}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "staleness.freshThreshold")
}

func TestValidate_MultipleErrorsJoined(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader(
		`{"embedding":{"provider":"openai"},"scoring":{"weights":{"semantic":2},"searchOverfetch":-1}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scoring.weights.semantic")
	assert.Contains(t, err.Error(), "scoring.searchOverfetch")
}

func TestValidate_EmbeddingProviderRequired(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding.provider")
}
