// Package decay implements the confidence-decay engine described in
// spec.md §4.G: per-memory overrides fall back to scoring config defaults,
// pinning is expressed as a zero decay rate, and the decayed confidence is
// floored and clipped deterministically given only a memory and "now".
package decay

import (
	"math"
	"sort"
	"time"

	"github.com/docleaai/doclea/internal/config"
	"github.com/docleaai/doclea/pkg/memory"
)

// resolved holds the per-memory decay parameters after applying config
// fallback.
type resolved struct {
	rate          float64
	floor         float64
	fn            memory.DecayFunction
	anchor        time.Time
}

func resolve(cfg config.ScoringConfig, m memory.Memory) resolved {
	r := resolved{
		rate:  cfg.DefaultDecayRate,
		floor: cfg.DefaultConfidenceFloor,
		fn:    memory.DecayFunction(cfg.DefaultDecayFunction),
	}
	if r.fn == "" {
		r.fn = memory.DecayExponential
	}
	if m.DecayRate != nil {
		r.rate = *m.DecayRate
	}
	if m.ConfidenceFloor != nil {
		r.floor = *m.ConfidenceFloor
	}
	if m.DecayFunction != "" {
		r.fn = m.DecayFunction
	}

	// Anchor priority: LastRefreshedAt else max(AccessedAt, CreatedAt).
	switch {
	case m.LastRefreshedAt != nil:
		r.anchor = *m.LastRefreshedAt
	case m.AccessedAt.After(m.CreatedAt):
		r.anchor = m.AccessedAt
	default:
		r.anchor = m.CreatedAt
	}

	return r
}

// EffectiveConfidence computes m's decayed confidence at unix time now.
// Pinning (DecayRate == 0, whether via override or config default) always
// returns the raw importance.
func EffectiveConfidence(cfg config.ScoringConfig, m memory.Memory, now int64) float64 {
	r := resolve(cfg, m)
	if r.rate == 0 || r.fn == memory.DecayNone {
		return m.Importance
	}

	ageDays := float64(now-r.anchor.Unix()) / 86400
	if ageDays < 0 {
		ageDays = 0
	}

	var decayed float64
	switch r.fn {
	case memory.DecayLinear:
		fullDecay := 1 / r.rate
		decayed = m.Importance * math.Max(0, 1-ageDays/fullDecay)
	case memory.DecayStep:
		decayed = m.Importance * stepMultiplier(cfg.RecencySteps, ageDays)
	default: // exponential
		halfLife := math.Ln2 / r.rate
		decayed = m.Importance * math.Pow(0.5, ageDays/halfLife)
	}

	return math.Max(r.floor, decayed)
}

func stepMultiplier(steps []config.StepThreshold, age float64) float64 {
	if len(steps) == 0 {
		return 1
	}
	sorted := append([]config.StepThreshold(nil), steps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Days < sorted[j].Days })

	mult := 1.0
	for _, s := range sorted {
		if s.Days <= age {
			mult = s.Score
		}
	}
	return mult
}

// RefreshResult reports the effect of a [Refresh] call.
type RefreshResult struct {
	Before float64
	After  float64
}

// Refresh sets m.LastRefreshedAt to now and, when newImportance is non-nil,
// updates m.Importance, then returns the effective confidence before and
// after the change.
func Refresh(cfg config.ScoringConfig, m *memory.Memory, now time.Time, newImportance *float64) RefreshResult {
	before := EffectiveConfidence(cfg, *m, now.Unix())

	m.LastRefreshedAt = &now
	if newImportance != nil {
		m.Importance = *newImportance
	}

	after := EffectiveConfidence(cfg, *m, now.Unix())
	return RefreshResult{Before: before, After: after}
}
