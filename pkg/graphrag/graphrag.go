// Package graphrag implements the two GraphRAG search modes described in
// spec.md §4.K over the entity/community/report graph: global search
// resolves community reports by vector similarity, local search expands
// outward from matched entities across [memory.GraphRelationship] edges and
// collects evidence memories along the way.
package graphrag

import (
	"context"
	"sort"
	"strings"

	"github.com/docleaai/doclea/pkg/embedding"
	"github.com/docleaai/doclea/pkg/memory"
	"github.com/docleaai/doclea/pkg/vectorstore"
)

// Scope selects a GraphRAG search mode.
type Scope string

const (
	ScopeLocal  Scope = "local"
	ScopeGlobal Scope = "global"
)

// Query is the GraphRAG search request.
type Query struct {
	Text           string
	Scope          Scope
	Limit          int
	CommunityLevel int
	MaxIterations  int
	MaxDepth       int
}

// CommunityHit pairs a [memory.GraphCommunity] report with the score its
// vector matched the query at.
type CommunityHit struct {
	Community memory.GraphCommunity
	Report    memory.GraphReport
	Score     float64
}

// EvidenceEdge records the relationship traversed to reach an evidence
// memory during a local search.
type EvidenceEdge struct {
	RelationType string
	Strength     float64
	FromEntity   string
	ToEntity     string
}

// Result is the outcome of a [Engine.Search] call.
type Result struct {
	Scope             Scope
	SourceCommunities []CommunityHit
	Entities          []memory.GraphEntity
	Evidence          []memory.Memory
	Edges             []EvidenceEdge
}

// Engine runs GraphRAG searches against a graph store, vector index, and
// embedding provider.
type Engine struct {
	store    memory.GraphRAGStore
	memories memory.MemoryStore
	vectors  vectorstore.Store
	embedder embedding.Provider
}

// New returns an [Engine] wired to the given backends.
func New(store memory.GraphRAGStore, memories memory.MemoryStore, vectors vectorstore.Store, embedder embedding.Provider) *Engine {
	return &Engine{store: store, memories: memories, vectors: vectors, embedder: embedder}
}

func defaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Search dispatches to Engine.global or Engine.local per q.Scope.
func (e *Engine) Search(ctx context.Context, q Query) (Result, error) {
	switch q.Scope {
	case ScopeGlobal:
		return e.global(ctx, q)
	default:
		return e.local(ctx, q)
	}
}

// global embeds the query, searches report vectors at the requested
// community level, and resolves hits back to their communities.
func (e *Engine) global(ctx context.Context, q Query) (Result, error) {
	limit := defaultInt(q.Limit, 10)

	vec, err := e.embedder.Embed(ctx, q.Text)
	if err != nil {
		return Result{}, err
	}
	hits, err := e.vectors.Search(ctx, vec, limit*2, vectorstore.SearchFilter{OwnerKinds: []vectorstore.OwnerKind{vectorstore.OwnerReport}})
	if err != nil {
		return Result{}, err
	}

	var out []CommunityHit
	for _, h := range hits {
		report, err := e.store.GetReport(ctx, h.Record.OwnerID)
		if err != nil {
			continue
		}
		if q.CommunityLevel > 0 && report.Level != q.CommunityLevel {
			continue
		}
		out = append(out, CommunityHit{
			Community: memory.GraphCommunity{ID: report.CommunityID, Level: report.Level},
			Report:    *report,
			Score:     h.Similarity,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}

	return Result{Scope: ScopeGlobal, SourceCommunities: out}, nil
}

// local embeds the query, searches entity vectors, then expands outward
// across relationship edges up to MaxDepth, merging evidence across up to
// MaxIterations rounds without duplicates.
func (e *Engine) local(ctx context.Context, q Query) (Result, error) {
	limit := defaultInt(q.Limit, 10)
	maxDepth := defaultInt(q.MaxDepth, 2)
	maxIterations := defaultInt(q.MaxIterations, 1)

	vec, err := e.embedder.Embed(ctx, q.Text)
	if err != nil {
		return Result{}, err
	}
	hits, err := e.vectors.Search(ctx, vec, limit, vectorstore.SearchFilter{OwnerKinds: []vectorstore.OwnerKind{vectorstore.OwnerEntity}})
	if err != nil {
		return Result{}, err
	}

	seenEntities := make(map[string]bool)
	var entities []memory.GraphEntity
	var edges []EvidenceEdge

	frontier := make([]string, 0, len(hits))
	for _, h := range hits {
		frontier = append(frontier, h.Record.OwnerID)
	}

	for iter := 0; iter < maxIterations; iter++ {
		var nextFrontier []string
		for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
			var expanded []string
			for _, id := range frontier {
				if seenEntities[id] {
					continue
				}
				seenEntities[id] = true
				ent, err := e.store.GetEntity(ctx, id)
				if err != nil {
					continue
				}
				entities = append(entities, *ent)

				rels, err := e.store.RelationshipsFrom(ctx, id)
				if err != nil {
					continue
				}
				for _, r := range rels {
					other := r.TargetID
					if other == id {
						other = r.SourceID
					}
					edges = append(edges, EvidenceEdge{RelationType: r.Type, Strength: r.Strength, FromEntity: r.SourceID, ToEntity: r.TargetID})
					if !seenEntities[other] {
						expanded = append(expanded, other)
					}
				}
			}
			frontier = expanded
		}
		nextFrontier = frontier
		if len(nextFrontier) == 0 {
			break
		}
		frontier = nextFrontier
	}

	evidence, err := e.evidenceMemories(ctx, entities)
	if err != nil {
		return Result{}, err
	}

	return Result{Scope: ScopeLocal, Entities: entities, Edges: edges, Evidence: evidence}, nil
}

// evidenceMemories approximates entity→memory links: the schema has no
// dedicated join table, so a memory counts as evidence for an entity when
// its content mentions the entity's canonical name.
func (e *Engine) evidenceMemories(ctx context.Context, entities []memory.GraphEntity) ([]memory.Memory, error) {
	if len(entities) == 0 {
		return nil, nil
	}
	all, err := e.memories.ListMemories(ctx, memory.MemoryFilter{})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []memory.Memory
	for _, m := range all {
		if seen[m.ID] {
			continue
		}
		for _, ent := range entities {
			if ent.Name == "" {
				continue
			}
			if strings.Contains(strings.ToLower(m.Content), strings.ToLower(ent.Name)) {
				out = append(out, m)
				seen[m.ID] = true
				break
			}
		}
	}
	return out, nil
}
