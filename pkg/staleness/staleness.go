// Package staleness implements the staleness-detection engine described in
// spec.md §4.J: three independent signals (time decay, contradictions,
// related updates) are aggregated into a weighted-mean score and mapped to
// a fresh/stale/obsolete status bucket.
package staleness

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/docleaai/doclea/internal/config"
	"github.com/docleaai/doclea/pkg/memory"
)

// Status is the staleness bucket a memory's aggregated score falls into.
type Status string

const (
	StatusFresh    Status = "fresh"
	StatusStale    Status = "stale"
	StatusObsolete Status = "obsolete"
)

// Signal reports one contributing factor to an assessment.
type Signal struct {
	Name     string
	Score    float64
	Weight   float64
	Reason   string
	Metadata map[string]string
}

// Assessment is the aggregated staleness result for a single memory.
type Assessment struct {
	Score    float64
	Status   Status
	Signals  []Signal
	Action   string
}

// Engine evaluates staleness assessments against a memory store.
type Engine struct {
	store memory.MemoryStore
	cfg   config.StalenessConfig
}

// New returns an [Engine] wired to store with the given configuration.
func New(store memory.MemoryStore, cfg config.StalenessConfig) *Engine {
	return &Engine{store: store, cfg: cfg}
}

// Assess evaluates all three signals for m and aggregates them.
func (e *Engine) Assess(ctx context.Context, m memory.Memory, allMemories []memory.Memory, now time.Time) (Assessment, error) {
	var signals []Signal

	if s := e.timeDecaySignal(m, now); s != nil {
		signals = append(signals, *s)
	}
	if s := e.contradictionsSignal(m, allMemories); s != nil {
		signals = append(signals, *s)
	}
	s, err := e.relatedUpdatesSignal(ctx, m, now)
	if err != nil {
		return Assessment{}, err
	}
	if s != nil {
		signals = append(signals, *s)
	}

	score := aggregate(signals)
	return Assessment{
		Score:   score,
		Status:  e.bucket(score),
		Signals: signals,
		Action:  action(e.bucket(score)),
	}, nil
}

// anchor is the reference instant a memory's age is measured from:
// LastRefreshedAt if set, else the later of AccessedAt/CreatedAt.
func anchor(m memory.Memory) time.Time {
	if m.LastRefreshedAt != nil {
		return *m.LastRefreshedAt
	}
	if m.AccessedAt.After(m.CreatedAt) {
		return m.AccessedAt
	}
	return m.CreatedAt
}

// timeDecaySignal scores age against the configured threshold. Ages under a
// week, or scores under 0.1, are not reported (spec.md §4.J).
func (e *Engine) timeDecaySignal(m memory.Memory, now time.Time) *Signal {
	ageDays := now.Sub(anchor(m)).Hours() / 24
	if ageDays < 7 {
		return nil
	}
	threshold := e.cfg.TimeDecayThresholdDays
	if threshold <= 0 {
		threshold = 90
	}
	score := ageDays / threshold
	if score > 1 {
		score = 1
	}
	if score < 0.1 {
		return nil
	}
	return &Signal{
		Name: "time_decay", Score: score, Weight: weightOrDefault(e.cfg.TimeDecayWeight, 0.5),
		Reason:   "memory has not been refreshed recently",
		Metadata: map[string]string{"ageDays": trimFloat(ageDays)},
	}
}

// contradictionsSignal flags newer memories whose content matches one of
// the configured lexical contradiction patterns alongside terms from m.
func (e *Engine) contradictionsSignal(m memory.Memory, allMemories []memory.Memory) *Signal {
	if len(e.cfg.ContradictionPatterns) == 0 {
		return nil
	}
	patterns := make([]*regexp.Regexp, 0, len(e.cfg.ContradictionPatterns))
	for _, p := range e.cfg.ContradictionPatterns {
		if re, err := regexp.Compile("(?i)" + p); err == nil {
			patterns = append(patterns, re)
		}
	}
	if len(patterns) == 0 {
		return nil
	}

	mTokens := significantTokens(m.Content)
	var contradicting []string
	for _, other := range allMemories {
		if other.ID == m.ID || !other.CreatedAt.After(m.CreatedAt) {
			continue
		}
		matchesPattern := false
		for _, re := range patterns {
			if re.MatchString(other.Content) {
				matchesPattern = true
				break
			}
		}
		if !matchesPattern {
			continue
		}
		if sharesToken(mTokens, other.Content) {
			contradicting = append(contradicting, other.Title)
		}
	}
	if len(contradicting) == 0 {
		return nil
	}

	score := float64(len(contradicting)) / float64(len(contradicting)+2)
	if score > 1 {
		score = 1
	}
	return &Signal{
		Name: "contradictions", Score: score, Weight: weightOrDefault(e.cfg.ContradictionsWeight, 0.3),
		Reason:   "newer memories appear to contradict this one",
		Metadata: map[string]string{"contradictingTitles": strings.Join(contradicting, "; ")},
	}
}

// relatedUpdatesSignal BFS-walks the relation graph, contributing for every
// related memory fresher than m. MaxTraversalDepth bounds the store's
// traversal fan-out (store.Traverse performs the BFS itself).
func (e *Engine) relatedUpdatesSignal(ctx context.Context, m memory.Memory, now time.Time) (*Signal, error) {
	maxNodes := e.cfg.MaxTraversalDepth * 20
	if maxNodes <= 0 {
		maxNodes = 100
	}

	related, err := e.store.Traverse(ctx, m.ID, memory.TraverseMaxNodes(maxNodes))
	if err != nil {
		return nil, err
	}
	if len(related) == 0 {
		return nil, nil
	}

	var fresher []string
	var reasons []string
	for _, r := range related {
		if r.CreatedAt.After(anchor(m)) {
			fresher = append(fresher, r.Title)
			reasons = append(reasons, r.Title+" ("+string(r.Type)+")")
		}
	}
	if len(fresher) == 0 {
		return nil, nil
	}

	score := float64(len(fresher)) / float64(len(related))
	return &Signal{
		Name: "related_updates", Score: score, Weight: weightOrDefault(e.cfg.RelatedUpdatesWeight, 0.4),
		Reason:   "related memories have been updated more recently",
		Metadata: map[string]string{"fresherTitles": strings.Join(reasons, "; ")},
	}, nil
}

func aggregate(signals []Signal) float64 {
	if len(signals) == 0 {
		return 0
	}
	var weighted, totalWeight float64
	for _, s := range signals {
		weighted += s.Score * s.Weight
		totalWeight += s.Weight
	}
	if totalWeight == 0 {
		return 0
	}
	return weighted / totalWeight
}

func (e *Engine) bucket(score float64) Status {
	fresh := e.cfg.FreshThreshold
	if fresh <= 0 {
		fresh = 0.3
	}
	stale := e.cfg.StaleThreshold
	if stale <= 0 {
		stale = 0.7
	}
	switch {
	case score < fresh:
		return StatusFresh
	case score < stale:
		return StatusStale
	default:
		return StatusObsolete
	}
}

func action(status Status) string {
	switch status {
	case StatusFresh:
		return "none"
	case StatusStale:
		return "review"
	default:
		return "refresh_or_archive"
	}
}

func weightOrDefault(w, def float64) float64 {
	if w <= 0 {
		return def
	}
	return w
}

func significantTokens(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, f := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	}) {
		if len(f) >= 4 {
			set[f] = struct{}{}
		}
	}
	return set
}

func sharesToken(tokens map[string]struct{}, text string) bool {
	for tok := range significantTokens(text) {
		if _, ok := tokens[tok]; ok {
			return true
		}
	}
	return false
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
