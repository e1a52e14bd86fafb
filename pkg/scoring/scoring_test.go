package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docleaai/doclea/internal/config"
	"github.com/docleaai/doclea/pkg/memory"
)

func baseConfig() config.ScoringConfig {
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

func TestRecencyScore_ExponentialHalvesAtHalfLife(t *testing.T) {
	cfg := baseConfig()
	now := time.Unix(1_700_000_000, 0)
	accessed := now.Add(-14 * 24 * time.Hour).Unix()
	got := RecencyScore(cfg, accessed, now.Unix())
	assert.InDelta(t, 0.5, got, 0.01)
}

func TestRecencyScore_LinearFloorsAtZero(t *testing.T) {
	cfg := baseConfig()
	cfg.RecencyDecay = config.RecencyLinear
	cfg.FullDecayDays = 10
	now := time.Unix(1_700_000_000, 0)
	accessed := now.Add(-100 * 24 * time.Hour).Unix()
	got := RecencyScore(cfg, accessed, now.Unix())
	assert.Zero(t, got)
}

func TestRecencyScore_StepPicksLargestThresholdBelowAge(t *testing.T) {
	cfg := baseConfig()
	cfg.RecencyDecay = config.RecencyStep
	cfg.RecencySteps = []config.StepThreshold{
		{Days: 7, Score: 0.8},
		{Days: 30, Score: 0.4},
	}
	now := time.Unix(1_700_000_000, 0)

	// Age 3 days: below the first threshold, defaults to 1.
	assert.Equal(t, 1.0, RecencyScore(cfg, now.Add(-3*24*time.Hour).Unix(), now.Unix()))
	// Age 10 days: past the 7-day threshold, below 30.
	assert.Equal(t, 0.8, RecencyScore(cfg, now.Add(-10*24*time.Hour).Unix(), now.Unix()))
	// Age 40 days: past both.
	assert.Equal(t, 0.4, RecencyScore(cfg, now.Add(-40*24*time.Hour).Unix(), now.Unix()))
}

func TestFrequencyScore_ColdStart(t *testing.T) {
	cfg := baseConfig()
	assert.Equal(t, cfg.ColdStartScore, FrequencyScore(cfg, 0))
}

func TestFrequencyScore_Linear(t *testing.T) {
	cfg := baseConfig()
	cfg.FrequencyNormalization = config.FrequencyLinear
	cfg.FrequencyMaxCount = 10
	assert.Equal(t, 0.5, FrequencyScore(cfg, 5))
	assert.Equal(t, 1.0, FrequencyScore(cfg, 20))
}

func TestFrequencyScore_Sigmoid_MidpointIsHalf(t *testing.T) {
	cfg := baseConfig()
	cfg.FrequencyNormalization = config.FrequencySigmoid
	cfg.FrequencyMaxCount = 100
	got := FrequencyScore(cfg, 50)
	assert.InDelta(t, 0.5, got, 0.01)
}

func TestConfidenceScore_RawImportanceWhenDecayDisabled(t *testing.T) {
	cfg := baseConfig()
	cfg.DecayEnabled = false
	m := memory.Memory{Importance: 0.7}
	assert.Equal(t, 0.7, ConfidenceScore(cfg, m, time.Now().Unix()))
}

func TestScore_IsClippedAndDeterministic(t *testing.T) {
	cfg := baseConfig()
	now := time.Now()
	m := memory.Memory{
		Importance:  0.9,
		AccessedAt:  now,
		AccessCount: 5,
	}
	c := Candidate{Memory: m, SemanticScore: 1.5} // out-of-range input

	got1 := Score(cfg, c, now.Unix())
	got2 := Score(cfg, c, now.Unix())

	require.Equal(t, got1, got2)
	assert.LessOrEqual(t, got1.Score, 1.0)
	assert.GreaterOrEqual(t, got1.Score, 0.0)
	assert.Equal(t, 1.0, got1.Semantic)
}

func TestBoostFactor_TagsAnyVsAll(t *testing.T) {
	cfg := baseConfig()
	cfg.BoostRules = []config.BoostRule{
		{Condition: config.BoostTags, Factor: 1.5, Tags: []string{"security", "perf"}, Match: "all"},
	}
	now := time.Now()
	m := memory.Memory{Tags: []string{"security"}, AccessedAt: now}
	assert.Equal(t, 1.0, boostFactor(cfg.BoostRules, m, now.Unix()))

	m.Tags = []string{"security", "perf"}
	assert.Equal(t, 1.5, boostFactor(cfg.BoostRules, m, now.Unix()))
}

func TestRankAndLimit_SortsDescendingAndTruncates(t *testing.T) {
	cfg := baseConfig()
	now := time.Now()
	candidates := []Candidate{
		{Memory: memory.Memory{ID: "low", AccessedAt: now}, SemanticScore: 0.1},
		{Memory: memory.Memory{ID: "high", AccessedAt: now}, SemanticScore: 0.9},
		{Memory: memory.Memory{ID: "mid", AccessedAt: now}, SemanticScore: 0.5},
	}

	got := RankAndLimit(cfg, candidates, now.Unix(), 2)
	require.Len(t, got, 2)
	assert.Equal(t, "high", got[0].Memory.ID)
	assert.Equal(t, "mid", got[1].Memory.ID)
}
