package context

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/docleaai/doclea/internal/config"
	"github.com/docleaai/doclea/internal/observe"
	"github.com/docleaai/doclea/pkg/chunk"
	"github.com/docleaai/doclea/pkg/embedding"
	"github.com/docleaai/doclea/pkg/graphrag"
	"github.com/docleaai/doclea/pkg/memory"
	"github.com/docleaai/doclea/pkg/scoring"
	"github.com/docleaai/doclea/pkg/vectorstore"
)

// localEvidenceScore is the fixed relevance assigned to a GraphRAG local-mode
// evidence memory. Local search has no per-memory similarity to report (it
// walks relationship edges, not a ranked vector search), so evidence is
// packed after any scored RAG/KAG/global-GraphRAG section scoring above
// this value and before any scoring below it.
const localEvidenceScore = 0.35

// Builder assembles a [Result] for a [Request] by fanning out across the
// RAG, KAG, and GraphRAG legs described in spec.md §4.L, packing the
// surviving sections under the request's token budget, and caching the
// outcome by [Fingerprint].
//
// The zero value is not usable; construct with [New].
type Builder struct {
	memories memory.MemoryStore
	code     memory.CodeGraphStore
	graphrag *graphrag.Engine
	vectors  vectorstore.Store
	embedder embedding.Provider
	scoring  config.ScoringConfig

	cache *Cache
	sf    singleflight.Group

	metrics *observe.Metrics
	clock   func() time.Time
}

// Option configures optional Builder dependencies.
type Option func(*Builder)

// WithCodeGraph enables the KAG leg against store. Without this option, or
// with a nil store, KAG stays disabled regardless of [Request.IncludeCodeGraph].
func WithCodeGraph(store memory.CodeGraphStore) Option {
	return func(b *Builder) { b.code = store }
}

// WithGraphRAG enables the GraphRAG leg against engine.
func WithGraphRAG(engine *graphrag.Engine) Option {
	return func(b *Builder) { b.graphrag = engine }
}

// WithMetrics wires m so cache lookups and GraphRAG leg timings are
// recorded. Omitting this option leaves metrics unrecorded, not broken.
func WithMetrics(m *observe.Metrics) Option {
	return func(b *Builder) { b.metrics = m }
}

// WithClock overrides the Builder's notion of "now", for deterministic
// tests.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.clock = now }
}

// New returns a Builder wired to the given memory store, vector store, and
// embedding provider, with a cache sized per cacheCfg. KAG and GraphRAG are
// disabled until [WithCodeGraph] / [WithGraphRAG] are supplied.
func New(memories memory.MemoryStore, vectors vectorstore.Store, embedder embedding.Provider, scoringCfg config.ScoringConfig, cacheCfg config.ContextCacheConfig, opts ...Option) *Builder {
	b := &Builder{
		memories: memories,
		vectors:  vectors,
		embedder: embedder,
		scoring:  scoringCfg,
		cache:    NewCache(cacheCfg),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build returns the assembled context for req, serving from cache when a
// fresh, unexpired entry exists for its [Fingerprint]. Concurrent calls for
// the same fingerprint share a single underlying build (via singleflight);
// a build run under a context that is cancelled before it completes is
// never written to the cache.
func (b *Builder) Build(ctx context.Context, req Request) (*Result, error) {
	fp := Fingerprint(req)

	if cached, ok := b.cache.Get(fp); ok {
		b.recordCacheLookup(ctx, true)
		out := *cached
		out.FromCache = true
		return &out, nil
	}
	b.recordCacheLookup(ctx, false)

	v, err, _ := b.sf.Do(fp, func() (any, error) {
		return b.buildUncached(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	result := v.(*Result)

	if ctx.Err() == nil {
		before := b.cache.Len()
		b.cache.Put(fp, result)
		b.recordCacheSizeDelta(b.cache.Len() - before)
	}

	out := *result
	return &out, nil
}

func (b *Builder) recordCacheLookup(ctx context.Context, hit bool) {
	if b.metrics == nil {
		return
	}
	b.metrics.RecordContextCacheLookup(ctx, hit)
}

func (b *Builder) recordCacheSizeDelta(delta int) {
	if b.metrics == nil || b.metrics.ContextCacheSize == nil || delta == 0 {
		return
	}
	b.metrics.ContextCacheSize.Add(context.Background(), int64(delta))
}

// buildUncached runs the three retrieval legs concurrently, isolating each
// from the others' panics/errors (the same pattern [pkg/relate] uses: a
// WaitGroup and mutex, never errgroup's abort mode,
// because a single failing leg must demote to a degraded result, not fail
// the whole build), then packs the survivors under the token budget.
func (b *Builder) buildUncached(ctx context.Context, req Request) (*Result, error) {
	result := &Result{}
	if req.TokenBudget <= 0 {
		return result, nil
	}

	legErrors := make(map[Leg]string)
	var mu sync.Mutex
	var allSections []Section
	var allEvidence []EvidenceItem

	var wg sync.WaitGroup
	run := func(leg Leg, fn func() ([]Section, []EvidenceItem, error)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					legErrors[leg] = fmt.Sprintf("panic: %v", r)
					mu.Unlock()
				}
			}()
			secs, ev, err := fn()
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				legErrors[leg] = err.Error()
			}
			allSections = append(allSections, secs...)
			allEvidence = append(allEvidence, ev...)
		}()
	}

	run(LegRAG, func() ([]Section, []EvidenceItem, error) { return b.ragLeg(ctx, req) })
	if req.IncludeCodeGraph && b.code != nil {
		run(LegKAG, func() ([]Section, []EvidenceItem, error) { return b.kagLeg(ctx, req) })
	}
	if req.IncludeGraphRAG && b.graphrag != nil {
		run(LegGraphRAG, func() ([]Section, []EvidenceItem, error) { return b.graphragLeg(ctx, req) })
	}
	wg.Wait()

	included, tokens := pack(allSections, req.TokenBudget)

	template := req.Template
	if template == "" {
		template = TemplateDefault
	}

	var text strings.Builder
	for i, sec := range included {
		if i > 0 {
			text.WriteString("\n")
		}
		text.WriteString(formatSection(sec, template))
	}

	result.Context = strings.TrimSpace(text.String())
	result.SectionsIncluded = len(included)
	result.Tokens = tokens
	for _, sec := range included {
		switch sec.Leg {
		case LegRAG:
			result.RAGSections = append(result.RAGSections, sec)
		case LegKAG:
			result.KAGSections = append(result.KAGSections, sec)
		case LegGraphRAG:
			result.GraphRAGSections = append(result.GraphRAGSections, sec)
		}
	}
	if req.IncludeEvidence {
		result.Evidence = filterEvidence(allEvidence, included)
	}
	if len(legErrors) > 0 {
		result.LegErrors = legErrors
	}

	return result, nil
}

// pack greedily selects the highest-scoring sections that fit within budget
// tokens, considering every remaining candidate even after the first one
// too large to fit — a smaller, lower-scoring section later in the list may
// still close the gap (resolved Open Question, see DESIGN.md).
func pack(sections []Section, budget int) ([]Section, int) {
	ordered := append([]Section(nil), sections...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Score > ordered[j].Score })

	var included []Section
	used := 0
	for _, sec := range ordered {
		if used+sec.Tokens > budget {
			continue
		}
		included = append(included, sec)
		used += sec.Tokens
	}
	return included, used
}

func filterEvidence(all []EvidenceItem, included []Section) []EvidenceItem {
	keep := make(map[string]bool, len(included))
	for _, sec := range included {
		keep[string(sec.Leg)+"/"+sec.ID] = true
	}
	var out []EvidenceItem
	for _, ev := range all {
		if keep[string(ev.Leg)+"/"+ev.ID] {
			out = append(out, ev)
		}
	}
	return out
}

// ragLeg embeds the query, searches the memory-owned vector index, applies
// [memory.MatchesFilter] to the hits the vector store cannot filter itself
// (it only predicates on [vectorstore.OwnerKind]), then ranks survivors with
// the same [scoring.RankAndLimit] engine every other retrieval surface uses.
func (b *Builder) ragLeg(ctx context.Context, req Request) ([]Section, []EvidenceItem, error) {
	vec, err := b.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, nil, fmt.Errorf("context: rag embed: %w", err)
	}

	limit := req.Filters.Limit
	if limit <= 0 {
		limit = 10
	}
	overfetch := b.scoring.SearchOverfetch
	if overfetch <= 0 {
		overfetch = 3
	}
	topK := int(float64(limit) * overfetch)
	if topK < limit {
		topK = limit
	}

	hits, err := b.vectors.Search(ctx, vec, topK, vectorstore.SearchFilter{OwnerKinds: []vectorstore.OwnerKind{vectorstore.OwnerMemory}})
	if err != nil {
		return nil, nil, fmt.Errorf("context: rag search: %w", err)
	}

	candidates := make([]scoring.Candidate, 0, len(hits))
	for _, h := range hits {
		m, err := b.memories.GetMemory(ctx, h.Record.OwnerID)
		if err != nil {
			continue
		}
		if !memory.MatchesFilter(*m, req.Filters) {
			continue
		}
		candidates = append(candidates, scoring.Candidate{Memory: *m, SemanticScore: h.Similarity})
	}

	scored := scoring.RankAndLimit(b.scoring, candidates, b.clock().Unix(), limit)

	sections := make([]Section, 0, len(scored))
	evidence := make([]EvidenceItem, 0, len(scored))
	for _, s := range scored {
		content := formatMemory(s.Memory)
		sections = append(sections, Section{
			Leg:     LegRAG,
			ID:      s.Memory.ID,
			Title:   fmt.Sprintf("[%s] %s", s.Memory.Type, s.Memory.Title),
			Content: content,
			Tokens:  chunk.EstimateTokens(content),
			Score:   s.Score,
		})
		evidence = append(evidence, EvidenceItem{Leg: LegRAG, ID: s.Memory.ID, Title: s.Memory.Title, Score: s.Score, Reason: "semantic match"})
	}
	return sections, evidence, nil
}

// queryTokenPattern splits a query into lowercase word-ish tokens.
var queryTokenPattern = regexp.MustCompile(`[A-Za-z0-9_]+`)

// filePathPattern picks out query substrings that look like a relative file
// path (contain a slash or a recognized source extension).
var filePathPattern = regexp.MustCompile(`[\w./-]+\.(go|py|ts|tsx|js|jsx|rs|java|rb|md)\b|[\w-]+/[\w./-]+`)

var kagStopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "from": true, "how": true, "what": true, "why": true,
	"does": true, "when": true, "where": true,
}

func queryTokens(query string) []string {
	raw := queryTokenPattern.FindAllString(query, -1)
	seen := make(map[string]bool, len(raw))
	var out []string
	for _, t := range raw {
		t = strings.ToLower(t)
		if len(t) < 3 || kagStopWords[t] || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// kagLeg resolves the query to code nodes. [memory.CodeGraphStore] exposes
// only exact-match lookups (by symbol name or by file path) — there is no
// free-text index over code nodes — so this extracts keyword tokens and
// file-path-shaped substrings from the query and probes each one directly,
// then packs each hit together with its immediate edge neighborhood so the
// context includes what the symbol calls/implements/extends.
func (b *Builder) kagLeg(ctx context.Context, req Request) ([]Section, []EvidenceItem, error) {
	type hit struct {
		node  memory.CodeNode
		score float64
	}

	seen := make(map[string]bool)
	var hits []hit

	for _, tok := range queryTokens(req.Query) {
		nodes, err := b.code.FindCodeNodesByName(ctx, tok)
		if err != nil {
			return nil, nil, fmt.Errorf("context: kag find by name: %w", err)
		}
		for _, n := range nodes {
			if seen[n.ID] {
				continue
			}
			seen[n.ID] = true
			hits = append(hits, hit{node: n, score: 0.9})
		}
	}

	for _, path := range filePathPattern.FindAllString(req.Query, -1) {
		nodes, err := b.code.FindCodeNodesByFile(ctx, path)
		if err != nil {
			return nil, nil, fmt.Errorf("context: kag find by file: %w", err)
		}
		for _, n := range nodes {
			if seen[n.ID] {
				continue
			}
			seen[n.ID] = true
			hits = append(hits, hit{node: n, score: 0.7})
		}
	}

	sections := make([]Section, 0, len(hits))
	evidence := make([]EvidenceItem, 0, len(hits))
	for _, h := range hits {
		content, err := b.formatCodeNode(ctx, h.node)
		if err != nil {
			return nil, nil, fmt.Errorf("context: kag neighborhood: %w", err)
		}
		sections = append(sections, Section{
			Leg:     LegKAG,
			ID:      h.node.ID,
			Title:   fmt.Sprintf("%s %s", h.node.Type, h.node.Name),
			Content: content,
			Tokens:  chunk.EstimateTokens(content),
			Score:   h.score,
		})
		evidence = append(evidence, EvidenceItem{Leg: LegKAG, ID: h.node.ID, Title: h.node.Name, Score: h.score, Reason: "code graph match"})
	}
	return sections, evidence, nil
}

func (b *Builder) formatCodeNode(ctx context.Context, n memory.CodeNode) (string, error) {
	var buf strings.Builder
	fmt.Fprintf(&buf, "### %s %s\n\n", n.Type, n.Name)
	if n.Signature != "" {
		fmt.Fprintf(&buf, "`%s`\n\n", n.Signature)
	}
	if n.Summary != "" {
		fmt.Fprintf(&buf, "%s\n\n", n.Summary)
	}
	if n.StartLine > 0 {
		fmt.Fprintf(&buf, "%s:%d\n", n.FilePath, n.StartLine)
	} else {
		fmt.Fprintf(&buf, "%s\n", n.FilePath)
	}

	edges, err := b.code.GetCodeEdges(ctx, n.ID)
	if err != nil {
		return "", err
	}
	if len(edges) > 0 {
		buf.WriteString("\nNeighborhood:\n")
		for _, e := range edges {
			if e.FromNode == n.ID {
				fmt.Fprintf(&buf, "- -> %s %s\n", e.Type, e.ToNode)
			} else {
				fmt.Fprintf(&buf, "- <- %s %s\n", e.Type, e.FromNode)
			}
		}
	}
	return buf.String(), nil
}

// graphragLeg runs both GraphRAG modes: global search surfaces community
// reports relevant to the query, local search walks the entity graph and
// returns the memories it touches as supporting evidence. Either failing
// demotes the whole leg — section granularity within GraphRAG isn't exposed
// to the caller, so there is nothing useful to return partially.
func (b *Builder) graphragLeg(ctx context.Context, req Request) ([]Section, []EvidenceItem, error) {
	limit := req.Filters.Limit
	if limit <= 0 {
		limit = 10
	}

	start := b.clock()
	globalRes, err := b.graphrag.Search(ctx, graphrag.Query{
		Text:           req.Query,
		Scope:          graphrag.ScopeGlobal,
		Limit:          limit,
		CommunityLevel: req.CommunityLevel,
	})
	b.recordGraphRAGDuration(ctx, b.clock().Sub(start))
	if err != nil {
		return nil, nil, fmt.Errorf("context: graphrag global: %w", err)
	}

	start = b.clock()
	localRes, err := b.graphrag.Search(ctx, graphrag.Query{
		Text:          req.Query,
		Scope:         graphrag.ScopeLocal,
		Limit:         limit,
		MaxIterations: req.MaxIterations,
		MaxDepth:      req.MaxDepth,
	})
	b.recordGraphRAGDuration(ctx, b.clock().Sub(start))
	if err != nil {
		return nil, nil, fmt.Errorf("context: graphrag local: %w", err)
	}

	var sections []Section
	var evidence []EvidenceItem

	for _, ch := range globalRes.SourceCommunities {
		content := formatReport(ch.Report)
		sections = append(sections, Section{
			Leg:     LegGraphRAG,
			ID:      ch.Report.ID,
			Title:   ch.Report.Title,
			Content: content,
			Tokens:  chunk.EstimateTokens(content),
			Score:   ch.Score,
		})
		evidence = append(evidence, EvidenceItem{Leg: LegGraphRAG, ID: ch.Report.ID, Title: ch.Report.Title, Score: ch.Score, Reason: "community report"})
	}

	for _, m := range localRes.Evidence {
		content := formatMemory(m)
		sections = append(sections, Section{
			Leg:     LegGraphRAG,
			ID:      m.ID,
			Title:   fmt.Sprintf("[%s] %s", m.Type, m.Title),
			Content: content,
			Tokens:  chunk.EstimateTokens(content),
			Score:   localEvidenceScore,
		})
		evidence = append(evidence, EvidenceItem{Leg: LegGraphRAG, ID: m.ID, Title: m.Title, Score: localEvidenceScore, Reason: "entity graph evidence"})
	}

	return sections, evidence, nil
}

func (b *Builder) recordGraphRAGDuration(ctx context.Context, d time.Duration) {
	if b.metrics == nil || b.metrics.GraphRAGSearchDuration == nil {
		return
	}
	b.metrics.GraphRAGSearchDuration.Record(ctx, d.Seconds())
}

func formatMemory(m memory.Memory) string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "### [%s] %s\n\n", m.Type, m.Title)
	if m.Summary != "" {
		fmt.Fprintf(&buf, "%s\n\n", m.Summary)
	} else {
		fmt.Fprintf(&buf, "%s\n\n", m.Content)
	}
	if len(m.Tags) > 0 {
		fmt.Fprintf(&buf, "Tags: %s\n", strings.Join(m.Tags, ", "))
	}
	return buf.String()
}

func formatReport(r memory.GraphReport) string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "### %s\n\n", r.Title)
	if r.Summary != "" {
		fmt.Fprintf(&buf, "%s\n\n", r.Summary)
	}
	if r.FullContent != "" {
		buf.WriteString(r.FullContent)
	}
	return buf.String()
}

func formatSection(sec Section, template Template) string {
	switch template {
	case TemplateCompact:
		return fmt.Sprintf("- %s: %s", sec.Title, oneLine(sec.Content))
	case TemplateDetailed:
		return fmt.Sprintf("## %s _(leg: %s, score: %.2f)_\n\n%s", sec.Title, sec.Leg, sec.Score, strings.TrimSpace(sec.Content))
	default:
		return fmt.Sprintf("## %s\n\n%s", sec.Title, strings.TrimSpace(sec.Content))
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
