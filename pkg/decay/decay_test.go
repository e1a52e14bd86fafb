package decay

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/docleaai/doclea/internal/config"
	"github.com/docleaai/doclea/pkg/memory"
)

func baseConfig() config.ScoringConfig {
	return config.ScoringConfig{
		DefaultDecayFunction:   "exponential",
		DefaultDecayRate:       0.05,
		DefaultConfidenceFloor: 0.1,
	}
}

func TestEffectiveConfidence_PinnedWhenRateZero(t *testing.T) {
	cfg := baseConfig()
	zero := 0.0
	m := memory.Memory{
		Importance: 0.8,
		CreatedAt:  time.Now().Add(-365 * 24 * time.Hour),
		AccessedAt: time.Now().Add(-365 * 24 * time.Hour),
		DecayRate:  &zero,
	}
	assert.Equal(t, 0.8, EffectiveConfidence(cfg, m, time.Now().Unix()))
}

func TestEffectiveConfidence_FloorsAtConfidenceFloor(t *testing.T) {
	cfg := baseConfig()
	cfg.DefaultConfidenceFloor = 0.2
	old := time.Now().Add(-365 * 24 * time.Hour)
	m := memory.Memory{Importance: 0.9, CreatedAt: old, AccessedAt: old}
	got := EffectiveConfidence(cfg, m, time.Now().Unix())
	assert.GreaterOrEqual(t, got, 0.2)
}

func TestEffectiveConfidence_AnchorPrefersLastRefreshed(t *testing.T) {
	cfg := baseConfig()
	now := time.Now()
	old := now.Add(-365 * 24 * time.Hour)
	recent := now.Add(-1 * time.Hour)
	m := memory.Memory{
		Importance:      0.9,
		CreatedAt:       old,
		AccessedAt:      old,
		LastRefreshedAt: &recent,
	}
	got := EffectiveConfidence(cfg, m, now.Unix())
	assert.InDelta(t, 0.9, got, 0.01)
}

func TestEffectiveConfidence_OverrideBeatsConfigDefault(t *testing.T) {
	cfg := baseConfig()
	now := time.Now()
	rate := 0.0 // per-memory pin overriding a nonzero config default
	m := memory.Memory{
		Importance: 0.5,
		CreatedAt:  now.Add(-1000 * 24 * time.Hour),
		AccessedAt: now.Add(-1000 * 24 * time.Hour),
		DecayRate:  &rate,
	}
	assert.Equal(t, 0.5, EffectiveConfidence(cfg, m, now.Unix()))
}

// TestEffectiveConfidence_HalfLifeScenario reproduces spec.md §8 scenario 4:
// exponential decay, halfLifeDays=30, importance=0.8, accessedAt=now-30d
// must yield confidence 0.4 (one half-life elapsed).
func TestEffectiveConfidence_HalfLifeScenario(t *testing.T) {
	cfg := config.ScoringConfig{
		DefaultDecayFunction:   "exponential",
		DefaultDecayRate:       math.Ln2 / 30,
		DefaultConfidenceFloor: 0,
	}
	now := time.Now()
	accessed := now.Add(-30 * 24 * time.Hour)
	m := memory.Memory{Importance: 0.8, CreatedAt: accessed, AccessedAt: accessed}

	got := EffectiveConfidence(cfg, m, now.Unix())
	assert.InDelta(t, 0.4, got, 1e-9)
}

func TestRefresh_UpdatesAnchorAndImportance(t *testing.T) {
	cfg := baseConfig()
	now := time.Now()
	old := now.Add(-365 * 24 * time.Hour)
	m := memory.Memory{Importance: 0.4, CreatedAt: old, AccessedAt: old}

	newImportance := 0.9
	res := Refresh(cfg, &m, now, &newImportance)

	assert.Less(t, res.Before, res.After)
	assert.Equal(t, 0.9, m.Importance)
	assert.NotNil(t, m.LastRefreshedAt)
	assert.WithinDuration(t, now, *m.LastRefreshedAt, time.Second)
}
