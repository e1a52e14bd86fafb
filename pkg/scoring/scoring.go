// Package scoring implements the multi-factor retrieval scoring engine
// described in spec.md §4.F: a deterministic, pure function of a memory, the
// caller-supplied "now", and the scoring configuration. No wall-clock time or
// I/O is touched here so the engine produces identical output for identical
// input, which the quality gate (pkg/portable) and the context builder
// (pkg/context) both rely on.
package scoring

import (
	"math"
	"sort"
	"strings"

	"github.com/docleaai/doclea/internal/config"
	"github.com/docleaai/doclea/pkg/decay"
	"github.com/docleaai/doclea/pkg/memory"
)

// Candidate is one scoring input: a memory plus the raw semantic similarity
// the vector store returned for it.
type Candidate struct {
	Memory         memory.Memory
	SemanticScore  float64 // already in [0,1], e.g. cosine similarity
}

// Scored pairs a Candidate with its computed final score and the individual
// factor scores that produced it, useful for debugging and the quality gate.
type Scored struct {
	Memory     memory.Memory
	Score      float64
	Semantic   float64
	Recency    float64
	Confidence float64
	Frequency  float64
	Boost      float64
}

// clip01 clamps v to [0,1].
func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// RecencyScore computes the recency factor for a memory accessed at
// accessedAt, evaluated at now, per spec.md §4.F.
func RecencyScore(cfg config.ScoringConfig, accessedAt, now int64) float64 {
	ageDays := float64(now-accessedAt) / 86400
	if ageDays < 0 {
		ageDays = 0
	}

	switch cfg.RecencyDecay {
	case config.RecencyLinear:
		fullDecay := cfg.FullDecayDays
		if fullDecay <= 0 {
			fullDecay = 90
		}
		v := 1 - ageDays/fullDecay
		if v < 0 {
			v = 0
		}
		return v
	case config.RecencyStep:
		return stepScore(cfg.RecencySteps, ageDays)
	default: // exponential
		halfLife := cfg.HalfLifeDays
		if halfLife <= 0 {
			halfLife = 14
		}
		return math.Pow(0.5, ageDays/halfLife)
	}
}

// stepScore implements the piecewise step recency curve (pkg/decay has its
// own stepMultiplier): take the score of the largest threshold whose Days
// is <= age, defaulting to 1 below the first threshold.
func stepScore(steps []config.StepThreshold, age float64) float64 {
	if len(steps) == 0 {
		return 1
	}
	sorted := append([]config.StepThreshold(nil), steps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Days < sorted[j].Days })

	score := 1.0
	for _, s := range sorted {
		if s.Days <= age {
			score = s.Score
		}
	}
	return score
}

// FrequencyScore computes the frequency factor for an access count, per
// spec.md §4.F.
func FrequencyScore(cfg config.ScoringConfig, count int64) float64 {
	if count == 0 {
		return cfg.ColdStartScore
	}
	maxCount := cfg.FrequencyMaxCount
	if maxCount <= 0 {
		maxCount = 1
	}
	switch cfg.FrequencyNormalization {
	case config.FrequencyLinear:
		return math.Min(1, float64(count)/float64(maxCount))
	case config.FrequencySigmoid:
		const k = 0.1
		return 1 / (1 + math.Exp(-k*(float64(count)-float64(maxCount)/2)))
	default: // log
		return math.Log1p(float64(count)) / math.Log1p(float64(maxCount))
	}
}

// ConfidenceScore computes the confidence factor for m. When decay is
// disabled, the raw importance is used; otherwise the confidence-decay
// engine (pkg/decay) supplies the effective confidence.
func ConfidenceScore(cfg config.ScoringConfig, m memory.Memory, now int64) float64 {
	if !cfg.DecayEnabled {
		return clip01(m.Importance)
	}
	return decay.EffectiveConfidence(cfg, m, now)
}

// Score computes the final clipped score for one Candidate at time now.
func Score(cfg config.ScoringConfig, c Candidate, now int64) Scored {
	recency := RecencyScore(cfg, c.Memory.AccessedAt.Unix(), now)
	confidence := ConfidenceScore(cfg, c.Memory, now)
	frequency := FrequencyScore(cfg, c.Memory.AccessCount)
	semantic := clip01(c.SemanticScore)

	base := semantic*cfg.Weights.Semantic +
		recency*cfg.Weights.Recency +
		confidence*cfg.Weights.Confidence +
		frequency*cfg.Weights.Frequency

	boost := boostFactor(cfg.BoostRules, c.Memory, now)

	return Scored{
		Memory:     c.Memory,
		Score:      clip01(base * boost),
		Semantic:   semantic,
		Recency:    recency,
		Confidence: confidence,
		Frequency:  frequency,
		Boost:      boost,
	}
}

// RankAndLimit scores every candidate, sorts descending by score, and
// truncates to limit (0 or negative means unbounded).
func RankAndLimit(cfg config.ScoringConfig, candidates []Candidate, now int64, limit int) []Scored {
	scored := make([]Scored, len(candidates))
	for i, c := range candidates {
		scored[i] = Score(cfg, c, now)
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

// boostFactor multiplies together the factors of every matching boost rule.
func boostFactor(rules []config.BoostRule, m memory.Memory, now int64) float64 {
	factor := 1.0
	for _, r := range rules {
		if boostMatches(r, m, now) {
			factor *= r.Factor
		}
	}
	return factor
}

func boostMatches(r config.BoostRule, m memory.Memory, now int64) bool {
	switch r.Condition {
	case config.BoostRecency:
		ageDays := float64(now-m.AccessedAt.Unix()) / 86400
		return ageDays <= r.MaxDays
	case config.BoostImportance:
		return m.Importance >= r.MinValue
	case config.BoostFrequency:
		return m.AccessCount >= r.MinAccessCount
	case config.BoostStaleness:
		anchor := m.AccessedAt
		if m.LastRefreshedAt != nil {
			anchor = *m.LastRefreshedAt
		} else if m.CreatedAt.After(anchor) {
			anchor = m.CreatedAt
		}
		ageDays := float64(now-anchor.Unix()) / 86400
		return ageDays >= r.MinDays
	case config.BoostMemoryType:
		for _, t := range r.Types {
			if string(m.Type) == t {
				return true
			}
		}
		return false
	case config.BoostTags:
		return tagsMatch(r.Tags, m.Tags, r.Match)
	default:
		return false
	}
}

func tagsMatch(want, have []string, match string) bool {
	if len(want) == 0 {
		return true
	}
	haveSet := make(map[string]struct{}, len(have))
	for _, t := range have {
		haveSet[strings.ToLower(t)] = struct{}{}
	}
	if match == "all" {
		for _, t := range want {
			if _, ok := haveSet[strings.ToLower(t)]; !ok {
				return false
			}
		}
		return true
	}
	for _, t := range want {
		if _, ok := haveSet[strings.ToLower(t)]; ok {
			return true
		}
	}
	return false
}
