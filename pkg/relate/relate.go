// Package relate implements the memory-memory relation detector described
// in spec.md §4.H: four independent candidate sources run concurrently, are
// merged and deduplicated, classified into a relation type, and partitioned
// by confidence into auto-approved relations, pending suggestions, or
// discarded candidates.
package relate

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/docleaai/doclea/internal/config"
	"github.com/docleaai/doclea/pkg/embedding"
	"github.com/docleaai/doclea/pkg/memory"
	"github.com/docleaai/doclea/pkg/vectorstore"
)

// candidate is one proposed relation before deduplication.
type candidate struct {
	targetID   string
	confidence float64
	reason     string
	method     string
}

// Result reports what a [Detector.Detect] run did with a single source
// memory.
type Result struct {
	AutoApproved []memory.MemoryRelation
	Suggested    []memory.RelationSuggestion
	Discarded    int
}

// Detector runs the four candidate sources and materializes their output.
type Detector struct {
	store    memory.MemoryStore
	vectors  vectorstore.Store
	embedder embedding.Provider
	cfg      config.DetectionConfig
}

// New returns a [Detector] wired to the given backends and detection
// thresholds.
func New(store memory.MemoryStore, vectors vectorstore.Store, embedder embedding.Provider, cfg config.DetectionConfig) *Detector {
	return &Detector{store: store, vectors: vectors, embedder: embedder, cfg: cfg}
}

// semanticTopK bounds how many nearest neighbours the semantic candidate
// source considers before thresholding.
const semanticTopK = 20

// Detect runs all four candidate sources against source, merges and
// classifies the survivors, and materializes relations/suggestions. now is
// the caller-supplied evaluation instant so the pipeline stays deterministic
// given identical inputs.
func (d *Detector) Detect(ctx context.Context, source memory.Memory, now time.Time) (Result, error) {
	others, err := d.store.ListMemories(ctx, memory.MemoryFilter{})
	if err != nil {
		return Result{}, err
	}

	var mu sync.Mutex
	var all []candidate

	var wg sync.WaitGroup
	run := func(fn func() []candidate) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Isolated failure: a panicking or erroring source must never
			// abort the other three.
			defer func() { _ = recover() }()
			cs := fn()
			mu.Lock()
			all = append(all, cs...)
			mu.Unlock()
		}()
	}

	run(func() []candidate { return d.semanticCandidates(ctx, source) })
	run(func() []candidate { return d.keywordCandidates(source, others) })
	run(func() []candidate { return d.fileOverlapCandidates(source, others) })
	run(func() []candidate { return d.temporalCandidates(source, others) })
	wg.Wait()

	merged := dedupeByTarget(all)

	var res Result
	for _, c := range merged {
		if c.targetID == source.ID {
			continue
		}
		linked, err := d.store.RelationExists(ctx, source.ID, c.targetID)
		if err != nil {
			return res, err
		}
		if linked {
			continue
		}

		target, err := d.store.GetMemory(ctx, c.targetID)
		if err != nil {
			continue
		}
		relType := inferRelationType(source.Type, target.Type)

		switch {
		case c.confidence >= d.cfg.AutoApproveThreshold:
			rel := memory.MemoryRelation{
				SourceID:  source.ID,
				TargetID:  c.targetID,
				Type:      relType,
				Weight:    c.confidence,
				Metadata:  map[string]string{"reason": c.reason, "method": c.method},
				CreatedAt: now,
			}
			if _, err := d.store.CreateRelation(ctx, &rel); err != nil {
				return res, err
			}
			res.AutoApproved = append(res.AutoApproved, rel)
		case c.confidence >= d.cfg.SuggestionThreshold:
			sugg := memory.RelationSuggestion{
				SourceID:        source.ID,
				TargetID:        c.targetID,
				SuggestedType:   string(relType),
				Confidence:      c.confidence,
				Reason:          c.reason,
				DetectionMethod: c.method,
				Status:          memory.SuggestionPending,
				CreatedAt:       now,
			}
			if _, err := d.store.CreateSuggestion(ctx, &sugg); err != nil {
				return res, err
			}
			res.Suggested = append(res.Suggested, sugg)
		default:
			res.Discarded++
		}
	}

	return res, nil
}

// semanticCandidates embeds source and runs a KNN search over the vector
// store, keeping hits scoring at or above the configured semantic
// threshold.
func (d *Detector) semanticCandidates(ctx context.Context, source memory.Memory) []candidate {
	vec, err := d.embedder.Embed(ctx, source.Content)
	if err != nil {
		return nil
	}
	hits, err := d.vectors.Search(ctx, vec, semanticTopK, vectorstore.SearchFilter{
		OwnerKinds: []vectorstore.OwnerKind{vectorstore.OwnerMemory},
	})
	if err != nil {
		return nil
	}

	var out []candidate
	for _, h := range hits {
		if h.Record.OwnerID == source.ID || h.Similarity < d.cfg.SemanticThreshold {
			continue
		}
		out = append(out, candidate{
			targetID:   h.Record.OwnerID,
			confidence: clip01(h.Similarity),
			reason:     "semantic similarity",
			method:     "semantic",
		})
	}
	return out
}

// extractKeywords lowercases and tokenizes content, dropping short stop
// words, then unions the result with the memory's own tags.
func extractKeywords(m memory.Memory) map[string]struct{} {
	set := make(map[string]struct{})
	for _, field := range strings.FieldsFunc(strings.ToLower(m.Content), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	}) {
		if len(field) < 4 || stopWords[field] {
			continue
		}
		set[field] = struct{}{}
	}
	for _, tag := range m.Tags {
		set[strings.ToLower(tag)] = struct{}{}
	}
	return set
}

var stopWords = map[string]bool{
	"this": true, "that": true, "with": true, "from": true, "have": true,
	"were": true, "will": true, "what": true, "when": true, "where": true,
	"which": true, "there": true, "their": true, "about": true,
}

// jaccard computes set overlap, with a fuzzy bonus: tokens that do not
// match exactly but score above a high Jaro-Winkler similarity still count
// as a shared token, catching near-duplicate phrasing across memories.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	union := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		union[k] = struct{}{}
	}
	for k := range b {
		union[k] = struct{}{}
	}

	intersect := 0
	for ka := range a {
		if _, ok := b[ka]; ok {
			intersect++
			continue
		}
		for kb := range b {
			if matchr.JaroWinkler(ka, kb, true) >= 0.92 {
				intersect++
				break
			}
		}
	}
	return float64(intersect) / float64(len(union))
}

func (d *Detector) keywordCandidates(source memory.Memory, others []memory.Memory) []candidate {
	sourceKeywords := extractKeywords(source)
	var out []candidate
	for _, other := range others {
		if other.ID == source.ID {
			continue
		}
		overlap := jaccard(sourceKeywords, extractKeywords(other))
		confidence := clip01(overlap * 1.2)
		if confidence < d.cfg.SuggestionThreshold {
			continue
		}
		out = append(out, candidate{
			targetID:   other.ID,
			confidence: confidence,
			reason:     "shared keywords/tags",
			method:     "keyword",
		})
	}
	return out
}

func setOf(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}

func (d *Detector) fileOverlapCandidates(source memory.Memory, others []memory.Memory) []candidate {
	if len(source.RelatedFiles) == 0 {
		return nil
	}
	sourceFiles := setOf(source.RelatedFiles)

	var out []candidate
	for _, other := range others {
		if other.ID == source.ID || len(other.RelatedFiles) == 0 {
			continue
		}
		overlap := jaccard(sourceFiles, setOf(other.RelatedFiles))
		confidence := clip01(overlap * 1.1)
		if confidence < d.cfg.SuggestionThreshold {
			continue
		}
		out = append(out, candidate{
			targetID:   other.ID,
			confidence: confidence,
			reason:     "overlapping related files",
			method:     "file_overlap",
		})
	}
	return out
}

func (d *Detector) temporalCandidates(source memory.Memory, others []memory.Memory) []candidate {
	window := d.cfg.TemporalWindowDays
	if window <= 0 {
		return nil
	}

	var out []candidate
	for _, other := range others {
		if other.ID == source.ID {
			continue
		}
		dayDiff := math.Abs(other.CreatedAt.Sub(source.CreatedAt).Hours() / 24)
		if dayDiff > window {
			continue
		}
		base := 1 - dayDiff/window
		confidence := clip01(base * 0.8)
		if confidence <= d.cfg.SuggestionThreshold+0.1 {
			continue
		}
		out = append(out, candidate{
			targetID:   other.ID,
			confidence: confidence,
			reason:     "created within the same time window",
			method:     "temporal",
		})
	}
	return out
}

// dedupeByTarget merges candidates naming the same target, keeping the
// maximum confidence and concatenating distinct reasons.
func dedupeByTarget(cands []candidate) []candidate {
	byTarget := make(map[string]*candidate)
	var order []string
	for _, c := range cands {
		existing, ok := byTarget[c.targetID]
		if !ok {
			cc := c
			byTarget[c.targetID] = &cc
			order = append(order, c.targetID)
			continue
		}
		if c.confidence > existing.confidence {
			existing.confidence = c.confidence
			existing.method = c.method
		}
		if !strings.Contains(existing.reason, c.reason) {
			existing.reason += "; " + c.reason
		}
	}

	out := make([]candidate, 0, len(order))
	for _, id := range order {
		out = append(out, *byTarget[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].confidence > out[j].confidence })
	return out
}

// inferRelationType applies the pair-of-types heuristics from spec.md §4.H.
// It returns only base relation types; type pairs not listed below map to
// [memory.RelationRelatedTo].
func inferRelationType(sourceType, targetType memory.MemoryType) memory.RelationType {
	switch {
	case sourceType == memory.MemoryTypeDecision && targetType == memory.MemoryTypeSolution:
		return memory.RelationImplements
	case sourceType == memory.MemoryTypeSolution && targetType == memory.MemoryTypeDecision:
		return memory.RelationImplements
	case sourceType == memory.MemoryTypePattern && targetType == memory.MemoryTypeSolution:
		return memory.RelationReferences
	case sourceType == memory.MemoryTypeArchitecture && targetType == memory.MemoryTypeDecision:
		return memory.RelationRequires
	case sourceType == targetType:
		return memory.RelationRelatedTo
	default:
		return memory.RelationRelatedTo
	}
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
