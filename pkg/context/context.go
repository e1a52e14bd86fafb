// Package context implements the token-budgeted context builder described
// in spec.md §4.L: a hybrid retrieval pipeline (RAG over memories, KAG over
// the code graph, GraphRAG over entity/community reports) assembled under a
// caller-supplied token budget, fronted by a fingerprinted cache that
// guarantees at-most-one concurrent build per request shape.
package context

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/docleaai/doclea/pkg/memory"
)

// Template selects the formatting applied to packed sections.
type Template string

const (
	TemplateDefault  Template = "default"
	TemplateCompact  Template = "compact"
	TemplateDetailed Template = "detailed"
)

// Request is a context-build request.
type Request struct {
	Query            string
	TokenBudget      int
	IncludeCodeGraph bool
	IncludeGraphRAG  bool
	IncludeEvidence  bool
	Template         Template
	Filters          memory.MemoryFilter

	// GraphRAG-only knobs, ignored unless IncludeGraphRAG is set.
	CommunityLevel int
	MaxIterations  int
	MaxDepth       int
}

// Leg identifies which retrieval leg produced a [Section].
type Leg string

const (
	LegRAG      Leg = "rag"
	LegKAG      Leg = "kag"
	LegGraphRAG Leg = "graphrag"
)

// Section is one candidate piece of context text before or after packing.
type Section struct {
	Leg     Leg
	ID      string // memory id (RAG/GraphRAG) or code node id (KAG)
	Title   string
	Content string
	Tokens  int
	Score   float64
}

// EvidenceItem is one piece of supporting evidence behind a packed section,
// surfaced when [Request.IncludeEvidence] is set.
type EvidenceItem struct {
	Leg    Leg
	ID     string
	Title  string
	Score  float64
	Reason string
}

// Result is the outcome of a [Builder.Build] call.
type Result struct {
	Context          string
	SectionsIncluded int
	RAGSections      []Section
	KAGSections      []Section
	GraphRAGSections []Section
	Tokens           int
	Evidence         []EvidenceItem `json:"evidence,omitempty"`

	// LegErrors records which legs degraded and why, keyed by [Leg]. A
	// failed leg never fails the whole build (spec.md §5: "a failing leg
	// demotes that leg").
	LegErrors map[Leg]string `json:"legErrors,omitempty"`

	// FromCache reports whether this Result was served from the cache
	// rather than freshly built.
	FromCache bool `json:"-"`
}

// fingerprintView is the canonical, order-independent view of a [Request]
// hashed to produce its cache key. "now" is deliberately excluded: a cache
// hit must return byte-identical output for the remainder of the entry's
// TTL regardless of wall-clock drift.
type fingerprintView struct {
	Query            string   `json:"query"`
	TokenBudget      int      `json:"tokenBudget"`
	IncludeCodeGraph bool     `json:"includeCodeGraph"`
	IncludeGraphRAG  bool     `json:"includeGraphRAG"`
	IncludeEvidence  bool     `json:"includeEvidence"`
	Template         string   `json:"template"`
	Types            []string `json:"types"`
	Tags             []string `json:"tags"`
	TagsMatch        string   `json:"tagsMatch"`
	RelatedFile      string   `json:"relatedFile"`
	MinImportance    float64  `json:"minImportance"`
	NeedsReview      string   `json:"needsReview"` // "unset" | "true" | "false"
	Limit            int      `json:"limit"`
	CommunityLevel   int      `json:"communityLevel"`
	MaxIterations    int      `json:"maxIterations"`
	MaxDepth         int      `json:"maxDepth"`
}

// Fingerprint computes the stable cache key for req: a sha256 hash of its
// canonicalized fields (sorted filter slices, tri-state boolean flags).
func Fingerprint(req Request) string {
	types := make([]string, len(req.Filters.Types))
	for i, t := range req.Filters.Types {
		types[i] = string(t)
	}
	sort.Strings(types)

	tags := append([]string(nil), req.Filters.Tags...)
	for i := range tags {
		tags[i] = strings.ToLower(tags[i])
	}
	sort.Strings(tags)

	needsReview := "unset"
	if req.Filters.NeedsReview != nil {
		if *req.Filters.NeedsReview {
			needsReview = "true"
		} else {
			needsReview = "false"
		}
	}

	template := req.Template
	if template == "" {
		template = TemplateDefault
	}

	view := fingerprintView{
		Query:            strings.TrimSpace(req.Query),
		TokenBudget:      req.TokenBudget,
		IncludeCodeGraph: req.IncludeCodeGraph,
		IncludeGraphRAG:  req.IncludeGraphRAG,
		IncludeEvidence:  req.IncludeEvidence,
		Template:         string(template),
		Types:            types,
		Tags:             tags,
		TagsMatch:        req.Filters.TagsMatch,
		RelatedFile:      req.Filters.RelatedFile,
		MinImportance:    req.Filters.MinImportance,
		NeedsReview:      needsReview,
		Limit:            req.Filters.Limit,
		CommunityLevel:   req.CommunityLevel,
		MaxIterations:    req.MaxIterations,
		MaxDepth:         req.MaxDepth,
	}

	// json.Marshal on a struct with fixed field order is itself
	// deterministic; only the slice fields needed sorting above.
	raw, err := json.Marshal(view)
	if err != nil {
		// view contains only marshalable primitives and string slices; a
		// failure here would be a programming error, not a runtime one.
		panic("pkg/context: fingerprint view failed to marshal: " + err.Error())
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
