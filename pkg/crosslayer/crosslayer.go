// Package crosslayer implements the memory-code relation detector described
// in spec.md §4.I: backtick-quoted identifiers and related-file paths tie a
// memory to code-graph nodes in one direction; keyword overlap against a
// code node's name/signature/summary ties code back to memories in the
// other. Candidates are deduped by opposite endpoint and partitioned by the
// same auto-approve/suggestion thresholds as [pkg/relate].
package crosslayer

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/docleaai/doclea/internal/config"
	"github.com/docleaai/doclea/pkg/memory"
)

// Detector runs the memory<->code candidate sources and materializes their
// output.
type Detector struct {
	memories memory.MemoryStore
	code     memory.CodeGraphStore
	cfg      config.DetectionConfig
}

// New returns a [Detector] wired to the given backends and detection
// thresholds.
func New(memories memory.MemoryStore, code memory.CodeGraphStore, cfg config.DetectionConfig) *Detector {
	return &Detector{memories: memories, code: code, cfg: cfg}
}

// Result reports what a detection run did with a single endpoint.
type Result struct {
	AutoApproved []memory.CrossLayerRelation
	Suggested    []memory.CrossLayerSuggestion
	Discarded    int
}

// candidate is one proposed cross-layer relation before deduplication.
// endpointID holds whichever ID is NOT the detection's starting point: a
// code node ID for memory→code candidates, a memory ID for code→memory
// candidates.
type candidate struct {
	endpointID string
	typ        memory.CrossLayerRelationType
	direction  memory.CrossLayerDirection
	confidence float64
	reason     string
}

var backtickIdentifier = regexp.MustCompile("`([^`\\s]+)`")

// filePathPattern loosely matches repository-relative file paths embedded in
// free text: a run of path segments ending in a file extension.
var filePathPattern = regexp.MustCompile(`[\w./-]+\.[A-Za-z0-9]{1,8}\b`)

// DetectFromMemory runs the memory→code candidate sources for m: backtick
// identifier matches against the code graph, and related-file membership
// against non-module nodes in the same files.
func (d *Detector) DetectFromMemory(ctx context.Context, m memory.Memory, now time.Time) (Result, error) {
	var cands []candidate

	for _, ident := range backtickIdentifiers(m.Content) {
		nodes, err := d.code.FindCodeNodesByName(ctx, ident)
		if err != nil {
			continue
		}
		for _, n := range nodes {
			cands = append(cands, candidate{
				endpointID: n.ID,
				typ:        memory.CrossLayerDocuments,
				direction:  memory.DirectionMemoryToCode,
				confidence: 0.9,
				reason:     "backtick identifier match: " + ident,
			})
		}
	}

	files := fileSet(m.RelatedFiles, m.Content)
	for file := range files {
		nodes, err := d.code.FindCodeNodesByFile(ctx, file)
		if err != nil {
			continue
		}
		for _, n := range nodes {
			if n.Type == memory.CodeNodeModule || n.Type == memory.CodeNodePackage {
				continue
			}
			cands = append(cands, candidate{
				endpointID: n.ID,
				typ:        memory.CrossLayerDocuments,
				direction:  memory.DirectionMemoryToCode,
				confidence: 0.75,
				reason:     "related file: " + file,
			})
		}
	}

	return d.materialize(ctx, cands, func(c candidate) (bool, error) {
		return d.code.CrossLayerRelationExists(ctx, m.ID, c.endpointID, c.typ)
	}, func(c candidate, confidence float64, reason string, now time.Time) memory.CrossLayerRelation {
		return memory.CrossLayerRelation{
			MemoryID: m.ID, CodeNodeID: c.endpointID, Type: c.typ,
			Direction: c.direction, Confidence: confidence,
			Metadata: map[string]string{"reason": reason}, CreatedAt: now,
		}
	}, now)
}

// DetectFromCode runs the code→memory candidate sources for node: addresses
// candidates (decision/architecture memories referencing the node's file,
// ranked by keyword overlap) and exemplifies candidates (pattern memories
// referencing the node's name or sharing keyword overlap).
func (d *Detector) DetectFromCode(ctx context.Context, node memory.CodeNode, now time.Time) (Result, error) {
	candidates, err := d.memories.ListMemories(ctx, memory.MemoryFilter{RelatedFile: node.FilePath})
	if err != nil {
		return Result{}, err
	}
	allPatterns, err := d.memories.ListMemories(ctx, memory.MemoryFilter{Types: []memory.MemoryType{memory.MemoryTypePattern}})
	if err != nil {
		return Result{}, err
	}

	nodeKeywords := keywordSet(node.Name + " " + node.Signature + " " + node.Summary)

	var cands []candidate
	for _, m := range candidates {
		if m.Type != memory.MemoryTypeDecision && m.Type != memory.MemoryTypeArchitecture {
			continue
		}
		overlap := jaccard(nodeKeywords, keywordSet(m.Content))
		if overlap < 0.2 {
			continue
		}
		confidence := clip01(0.6 + 0.15*overlap)
		if confidence > 0.75 {
			confidence = 0.75
		}
		cands = append(cands, candidate{
			endpointID: m.ID,
			typ:        memory.CrossLayerAddresses,
			direction:  memory.DirectionCodeToMemory,
			confidence: confidence,
			reason:     "addresses: keyword overlap with referencing memory",
		})
	}

	for _, m := range allPatterns {
		referencesName := strings.Contains(m.Content, node.Name)
		overlap := jaccard(nodeKeywords, keywordSet(m.Content))

		switch {
		case referencesName:
			cands = append(cands, candidate{
				endpointID: m.ID, typ: memory.CrossLayerExemplifies, direction: memory.DirectionCodeToMemory,
				confidence: 0.85, reason: "exemplifies: pattern memory references node name",
			})
		case overlap >= 0.4:
			confidence := clip01(0.65 + 0.15*overlap)
			if confidence > 0.8 {
				confidence = 0.8
			}
			cands = append(cands, candidate{
				endpointID: m.ID, typ: memory.CrossLayerExemplifies, direction: memory.DirectionCodeToMemory,
				confidence: confidence, reason: "exemplifies: keyword overlap with pattern memory",
			})
		}
	}

	return d.materialize(ctx, cands, func(c candidate) (bool, error) {
		return d.code.CrossLayerRelationExists(ctx, c.endpointID, node.ID, c.typ)
	}, func(c candidate, confidence float64, reason string, now time.Time) memory.CrossLayerRelation {
		return memory.CrossLayerRelation{
			MemoryID: c.endpointID, CodeNodeID: node.ID, Type: c.typ,
			Direction: c.direction, Confidence: confidence,
			Metadata: map[string]string{"reason": reason}, CreatedAt: now,
		}
	}, now)
}

// materialize dedupes candidates by opposite endpoint (keeping max
// confidence), filters out existing relations, and partitions survivors by
// the configured auto-approve/suggestion thresholds.
func (d *Detector) materialize(
	ctx context.Context,
	cands []candidate,
	exists func(candidate) (bool, error),
	toRelation func(candidate, float64, string, time.Time) memory.CrossLayerRelation,
	now time.Time,
) (Result, error) {
	merged := dedupe(cands)

	var res Result
	for _, c := range merged {
		already, err := exists(c)
		if err != nil {
			return res, err
		}
		if already {
			continue
		}

		switch {
		case c.confidence >= d.cfg.AutoApproveThreshold:
			rel := toRelation(c, c.confidence, c.reason, now)
			if _, err := d.code.CreateCrossLayerRelation(ctx, &rel); err != nil {
				return res, err
			}
			res.AutoApproved = append(res.AutoApproved, rel)
		case c.confidence >= d.cfg.SuggestionThreshold:
			rel := toRelation(c, c.confidence, c.reason, now)
			sugg := memory.CrossLayerSuggestion{CrossLayerRelation: rel, Status: memory.SuggestionPending}
			if _, err := d.code.CreateCrossLayerSuggestion(ctx, &sugg); err != nil {
				return res, err
			}
			res.Suggested = append(res.Suggested, sugg)
		default:
			res.Discarded++
		}
	}
	return res, nil
}

// dedupe merges candidates sharing the same opposite endpoint (endpointID)
// and relation type, keeping the maximum confidence.
func dedupe(cands []candidate) []candidate {
	byTarget := make(map[string]*candidate)
	var order []string
	for _, c := range cands {
		key := c.endpointID + "\x00" + string(c.typ)
		existing, ok := byTarget[key]
		if !ok {
			cc := c
			byTarget[key] = &cc
			order = append(order, key)
			continue
		}
		if c.confidence > existing.confidence {
			existing.confidence = c.confidence
			existing.reason = c.reason
		}
	}
	out := make([]candidate, 0, len(order))
	for _, k := range order {
		out = append(out, *byTarget[k])
	}
	return out
}

func backtickIdentifiers(content string) []string {
	matches := backtickIdentifier.FindAllStringSubmatch(content, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

func fileSet(relatedFiles []string, content string) map[string]struct{} {
	set := make(map[string]struct{}, len(relatedFiles))
	for _, f := range relatedFiles {
		set[f] = struct{}{}
	}
	for _, f := range filePathPattern.FindAllString(content, -1) {
		set[f] = struct{}{}
	}
	return set
}

var stopWords = map[string]bool{
	"this": true, "that": true, "with": true, "from": true, "have": true,
	"were": true, "will": true, "what": true, "when": true, "where": true,
	"which": true, "there": true, "their": true, "about": true,
}

func keywordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, field := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	}) {
		if len(field) < 4 || stopWords[field] {
			continue
		}
		set[field] = struct{}{}
	}
	return set
}

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
	for k := range a {
		if _, ok := b[k]; ok {
			intersect++
		}
	}
	return float64(intersect) / float64(len(union))
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
