package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/docleaai/doclea/internal/mcptool"
	"github.com/docleaai/doclea/pkg/crosslayer"
	"github.com/docleaai/doclea/pkg/decay"
	"github.com/docleaai/doclea/pkg/graphrag"
	"github.com/docleaai/doclea/pkg/memory"
	"github.com/docleaai/doclea/pkg/portable"
	"github.com/docleaai/doclea/pkg/relate"
	"github.com/docleaai/doclea/pkg/relstore"
	"github.com/docleaai/doclea/pkg/scoring"
	"github.com/docleaai/doclea/pkg/vectorstore"
)

// toolHandlers binds every memory operation named in spec.md §6 to a
// [mcptool.Handler] closure over a. It is the one place the CLI connects
// the abstract Catalog() shapes to concrete backends.
func (a *app) toolHandlers() map[string]mcptool.Handler {
	return map[string]mcptool.Handler{
		mcptool.OpStore:                    a.handleStore,
		mcptool.OpSearch:                   a.handleSearch,
		mcptool.OpGet:                      a.handleGet,
		mcptool.OpUpdate:                   a.handleUpdate,
		mcptool.OpDelete:                   a.handleDelete,
		mcptool.OpInit:                     a.handleInit,
		mcptool.OpDetectRelations:          a.handleDetectRelations,
		mcptool.OpGetSuggestions:           a.handleGetSuggestions,
		mcptool.OpReviewSuggestion:         a.handleReviewSuggestion,
		mcptool.OpBulkReview:               a.handleBulkReview,
		mcptool.OpSuggestRelations:         a.handleSuggestRelations,
		mcptool.OpSuggestCrossLayer:        a.handleSuggestCrossLayer,
		mcptool.OpGetCrossLayerSuggestions: a.handleGetCrossLayerSuggestions,
		mcptool.OpReviewCrossLayer:         a.handleReviewCrossLayer,
		mcptool.OpBulkReviewCrossLayer:     a.handleBulkReviewCrossLayer,
		mcptool.OpRefreshConfidence:        a.handleRefreshConfidence,
		mcptool.OpGraphRAGSearch:           a.handleGraphRAGSearch,
		mcptool.OpExport:                   a.handleExport,
		mcptool.OpImport:                   a.handleImport,
	}
}

// jsonResult marshals v and wraps it in a successful [mcptool.ToolResult].
func jsonResult(v any) (mcptool.ToolResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return mcptool.ToolResult{}, fmt.Errorf("marshal result: %w", err)
	}
	return mcptool.ToolResult{Content: string(raw)}, nil
}

// errResult reports an application-level failure as a tool result rather
// than a transport error, per spec.md §7: leaf components fail fast with
// typed errors, but a single failed operation must not take down a server
// handling other concurrent tool calls.
func errResult(err error) (mcptool.ToolResult, error) {
	return mcptool.ToolResult{Content: err.Error(), IsError: true}, nil
}

type storeArgs struct {
	Type         memory.MemoryType `json:"type"`
	Title        string            `json:"title"`
	Content      string            `json:"content"`
	Summary      string            `json:"summary"`
	Tags         []string          `json:"tags"`
	RelatedFiles []string          `json:"relatedFiles"`
	Importance   float64           `json:"importance"`
	GitCommit    string            `json:"gitCommit"`
	SourcePR     string            `json:"sourcePr"`
	Experts      []string          `json:"experts"`
}

func (a *app) handleStore(ctx context.Context, raw string) (mcptool.ToolResult, error) {
	var in storeArgs
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return errResult(fmt.Errorf("store: decode args: %w", err))
	}
	now := time.Now()
	m := &memory.Memory{
		Type:         in.Type,
		Title:        in.Title,
		Content:      in.Content,
		Summary:      in.Summary,
		Importance:   in.Importance,
		Tags:         in.Tags,
		RelatedFiles: in.RelatedFiles,
		GitCommit:    in.GitCommit,
		SourcePR:     in.SourcePR,
		Experts:      in.Experts,
		CreatedAt:    now,
		AccessedAt:   now,
	}
	id, err := a.relDB.CreateMemory(ctx, m)
	if err != nil {
		return errResult(fmt.Errorf("store: create memory: %w", err))
	}
	m.ID = id

	vec, err := a.embedder.Embed(ctx, in.Content)
	if err != nil {
		// The row is already durable; embedding failure degrades search
		// for this memory but is not itself fatal to the store call.
		return jsonResult(map[string]any{"id": id, "embedFailed": err.Error()})
	}
	if err := a.vectors.Upsert(ctx, vectorstore.Record{ID: id, OwnerKind: vectorstore.OwnerMemory, OwnerID: id, Embedding: vec}); err != nil {
		return jsonResult(map[string]any{"id": id, "embedFailed": err.Error()})
	}
	if err := a.relDB.UpdateMemory(ctx, id, &memory.MemoryPatch{VectorID: &id}); err != nil {
		return jsonResult(map[string]any{"id": id, "embedFailed": err.Error()})
	}
	return jsonResult(map[string]any{"id": id})
}

type searchArgs struct {
	Query       string   `json:"query"`
	TopK        int      `json:"topK"`
	Types       []string `json:"types"`
	Tags        []string `json:"tags"`
	MinScore    float64  `json:"minScore"`
	RelatedFile string   `json:"relatedFile"`
}

func (a *app) handleSearch(ctx context.Context, raw string) (mcptool.ToolResult, error) {
	var in searchArgs
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return errResult(fmt.Errorf("search: decode args: %w", err))
	}
	limit := in.TopK
	if limit <= 0 {
		limit = 10
	}

	vec, err := a.embedder.Embed(ctx, in.Query)
	if err != nil {
		return errResult(fmt.Errorf("search: embed query: %w", err))
	}

	overfetch := a.cfg.Scoring.SearchOverfetch
	if overfetch <= 0 {
		overfetch = 3
	}
	topK := int(float64(limit) * overfetch)
	if topK < limit {
		topK = limit
	}
	hits, err := a.vectors.Search(ctx, vec, topK, vectorstore.SearchFilter{OwnerKinds: []vectorstore.OwnerKind{vectorstore.OwnerMemory}})
	if err != nil {
		return errResult(fmt.Errorf("search: vector search: %w", err))
	}

	filter := memory.MemoryFilter{Tags: in.Tags, RelatedFile: in.RelatedFile}
	for _, t := range in.Types {
		filter.Types = append(filter.Types, memory.MemoryType(t))
	}

	candidates := make([]scoring.Candidate, 0, len(hits))
	for _, h := range hits {
		m, err := a.relDB.GetMemory(ctx, h.Record.OwnerID)
		if err != nil {
			continue
		}
		if !memory.MatchesFilter(*m, filter) {
			continue
		}
		candidates = append(candidates, scoring.Candidate{Memory: *m, SemanticScore: h.Similarity})
	}

	scored := scoring.RankAndLimit(a.cfg.Scoring, candidates, time.Now().Unix(), limit)

	type hit struct {
		ID      string   `json:"id"`
		Type    string   `json:"type"`
		Title   string   `json:"title"`
		Content string   `json:"content"`
		Tags    []string `json:"tags"`
		Score   float64  `json:"score"`
	}
	out := make([]hit, 0, len(scored))
	for _, s := range scored {
		if s.Score < in.MinScore {
			continue
		}
		out = append(out, hit{ID: s.Memory.ID, Type: string(s.Memory.Type), Title: s.Memory.Title, Content: s.Memory.Content, Tags: s.Memory.Tags, Score: s.Score})
		_ = a.relDB.TouchAccess(ctx, s.Memory.ID, time.Now())
	}
	return jsonResult(map[string]any{"results": out})
}

func (a *app) handleGet(ctx context.Context, raw string) (mcptool.ToolResult, error) {
	var in struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return errResult(fmt.Errorf("get: decode args: %w", err))
	}
	m, err := a.relDB.GetMemory(ctx, in.ID)
	if err != nil {
		return errResult(fmt.Errorf("get: %w", err))
	}
	if err := a.relDB.TouchAccess(ctx, in.ID, time.Now()); err != nil {
		return errResult(fmt.Errorf("get: touch access: %w", err))
	}
	return jsonResult(m)
}

type updateArgs struct {
	ID           string    `json:"id"`
	Content      *string   `json:"content"`
	Title        *string   `json:"title"`
	Summary      *string   `json:"summary"`
	Importance   *float64  `json:"importance"`
	Tags         []string  `json:"tags"`
	RelatedFiles []string  `json:"relatedFiles"`
	NeedsReview  *bool     `json:"needsReview"`
}

func (a *app) handleUpdate(ctx context.Context, raw string) (mcptool.ToolResult, error) {
	var in updateArgs
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return errResult(fmt.Errorf("update: decode args: %w", err))
	}
	patch := &memory.MemoryPatch{
		Title:        in.Title,
		Content:      in.Content,
		Summary:      in.Summary,
		Importance:   in.Importance,
		Tags:         in.Tags,
		RelatedFiles: in.RelatedFiles,
		NeedsReview:  in.NeedsReview,
	}
	if in.Content != nil {
		vec, err := a.embedder.Embed(ctx, *in.Content)
		if err == nil {
			id := in.ID
			if err := a.vectors.Upsert(ctx, vectorstore.Record{ID: id, OwnerKind: vectorstore.OwnerMemory, OwnerID: id, Embedding: vec}); err == nil {
				patch.VectorID = &id
			}
		}
	}
	if err := a.relDB.UpdateMemory(ctx, in.ID, patch); err != nil {
		return errResult(fmt.Errorf("update: %w", err))
	}
	return jsonResult(map[string]any{"id": in.ID, "updated": true})
}

func (a *app) handleDelete(ctx context.Context, raw string) (mcptool.ToolResult, error) {
	var in struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return errResult(fmt.Errorf("delete: decode args: %w", err))
	}
	if err := a.relDB.DeleteMemory(ctx, in.ID); err != nil {
		return errResult(fmt.Errorf("delete: %w", err))
	}
	_ = a.vectors.DeleteByOwner(ctx, vectorstore.OwnerMemory, in.ID)
	return jsonResult(map[string]any{"id": in.ID, "deleted": true})
}

func (a *app) handleInit(ctx context.Context, raw string) (mcptool.ToolResult, error) {
	var in struct {
		DryRun bool `json:"dryRun"`
	}
	_ = json.Unmarshal([]byte(raw), &in)
	target := a.cfg.Migrations.TargetVersion
	var (
		res *relstore.PlanResult
		err error
	)
	if in.DryRun {
		res, err = a.migrator.Plan(ctx, target)
	} else {
		res, err = a.migrator.Apply(ctx, target)
	}
	if err != nil {
		return errResult(fmt.Errorf("init: %w", err))
	}
	return jsonResult(res)
}

type detectRelationsArgs struct {
	MemoryIDs []string `json:"memoryIds"`
}

func (a *app) handleDetectRelations(ctx context.Context, raw string) (mcptool.ToolResult, error) {
	var in detectRelationsArgs
	_ = json.Unmarshal([]byte(raw), &in)

	sources, err := a.memoriesForDetection(ctx, in.MemoryIDs)
	if err != nil {
		return errResult(fmt.Errorf("detect_relations: %w", err))
	}

	det := relate.New(a.relDB, a.vectors, a.embedder, a.cfg.Detection)
	now := time.Now()
	var autoApproved, suggested, discarded int
	for _, m := range sources {
		res, err := det.Detect(ctx, m, now)
		if err != nil {
			continue
		}
		autoApproved += len(res.AutoApproved)
		suggested += len(res.Suggested)
		discarded += res.Discarded
	}
	return jsonResult(map[string]any{"autoApproved": autoApproved, "suggested": suggested, "discarded": discarded})
}

func (a *app) memoriesForDetection(ctx context.Context, ids []string) ([]memory.Memory, error) {
	if len(ids) == 0 {
		return a.relDB.ListMemories(ctx, memory.MemoryFilter{})
	}
	out := make([]memory.Memory, 0, len(ids))
	for _, id := range ids {
		m, err := a.relDB.GetMemory(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, *m)
	}
	return out, nil
}

func (a *app) handleGetSuggestions(ctx context.Context, raw string) (mcptool.ToolResult, error) {
	suggestions, err := a.relDB.ListSuggestions(ctx, memory.SuggestionPending)
	if err != nil {
		return errResult(fmt.Errorf("get_suggestions: %w", err))
	}
	var in struct {
		Limit int `json:"limit"`
	}
	_ = json.Unmarshal([]byte(raw), &in)
	if in.Limit > 0 && in.Limit < len(suggestions) {
		suggestions = suggestions[:in.Limit]
	}
	return jsonResult(suggestions)
}

func (a *app) handleReviewSuggestion(ctx context.Context, raw string) (mcptool.ToolResult, error) {
	var in struct {
		ID       string `json:"id"`
		Decision string `json:"decision"`
	}
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return errResult(fmt.Errorf("review_suggestion: decode args: %w", err))
	}
	if err := a.relDB.ReviewSuggestion(ctx, in.ID, in.Decision == "approved", time.Now()); err != nil {
		return errResult(fmt.Errorf("review_suggestion: %w", err))
	}
	return jsonResult(map[string]any{"id": in.ID, "decision": in.Decision})
}

func (a *app) handleBulkReview(ctx context.Context, raw string) (mcptool.ToolResult, error) {
	var in struct {
		IDs      []string `json:"ids"`
		Decision string   `json:"decision"`
	}
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return errResult(fmt.Errorf("bulk_review: decode args: %w", err))
	}
	now := time.Now()
	var applied, failed int
	for _, id := range in.IDs {
		if err := a.relDB.ReviewSuggestion(ctx, id, in.Decision == "approved", now); err != nil {
			failed++
			continue
		}
		applied++
	}
	return jsonResult(map[string]any{"applied": applied, "failed": failed})
}

func (a *app) handleSuggestRelations(ctx context.Context, raw string) (mcptool.ToolResult, error) {
	var in struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return errResult(fmt.Errorf("suggest_relations: decode args: %w", err))
	}
	m, err := a.relDB.GetMemory(ctx, in.ID)
	if err != nil {
		return errResult(fmt.Errorf("suggest_relations: %w", err))
	}
	det := relate.New(a.relDB, a.vectors, a.embedder, a.cfg.Detection)
	res, err := det.Detect(ctx, *m, time.Now())
	if err != nil {
		return errResult(fmt.Errorf("suggest_relations: %w", err))
	}
	return jsonResult(res)
}

func (a *app) handleSuggestCrossLayer(ctx context.Context, raw string) (mcptool.ToolResult, error) {
	var in struct {
		MemoryID string `json:"memoryId"`
	}
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return errResult(fmt.Errorf("suggest_crosslayer: decode args: %w", err))
	}
	m, err := a.relDB.GetMemory(ctx, in.MemoryID)
	if err != nil {
		return errResult(fmt.Errorf("suggest_crosslayer: %w", err))
	}
	det := crosslayer.New(a.relDB, a.relDB, a.cfg.Detection)
	res, err := det.DetectFromMemory(ctx, *m, time.Now())
	if err != nil {
		return errResult(fmt.Errorf("suggest_crosslayer: %w", err))
	}
	return jsonResult(res)
}

func (a *app) handleGetCrossLayerSuggestions(ctx context.Context, raw string) (mcptool.ToolResult, error) {
	suggestions, err := a.relDB.ListCrossLayerSuggestions(ctx, memory.SuggestionPending)
	if err != nil {
		return errResult(fmt.Errorf("get_crosslayer_suggestions: %w", err))
	}
	var in struct {
		Limit int `json:"limit"`
	}
	_ = json.Unmarshal([]byte(raw), &in)
	if in.Limit > 0 && in.Limit < len(suggestions) {
		suggestions = suggestions[:in.Limit]
	}
	return jsonResult(suggestions)
}

func (a *app) handleReviewCrossLayer(ctx context.Context, raw string) (mcptool.ToolResult, error) {
	var in struct {
		ID       string `json:"id"`
		Decision string `json:"decision"`
	}
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return errResult(fmt.Errorf("review_crosslayer: decode args: %w", err))
	}
	if err := a.relDB.ReviewCrossLayerSuggestion(ctx, in.ID, in.Decision == "approved", time.Now()); err != nil {
		return errResult(fmt.Errorf("review_crosslayer: %w", err))
	}
	return jsonResult(map[string]any{"id": in.ID, "decision": in.Decision})
}

func (a *app) handleBulkReviewCrossLayer(ctx context.Context, raw string) (mcptool.ToolResult, error) {
	var in struct {
		IDs      []string `json:"ids"`
		Decision string   `json:"decision"`
	}
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return errResult(fmt.Errorf("bulk_review_crosslayer: decode args: %w", err))
	}
	now := time.Now()
	var applied, failed int
	for _, id := range in.IDs {
		if err := a.relDB.ReviewCrossLayerSuggestion(ctx, id, in.Decision == "approved", now); err != nil {
			failed++
			continue
		}
		applied++
	}
	return jsonResult(map[string]any{"applied": applied, "failed": failed})
}

func (a *app) handleRefreshConfidence(ctx context.Context, raw string) (mcptool.ToolResult, error) {
	memories, err := a.relDB.ListMemories(ctx, memory.MemoryFilter{})
	if err != nil {
		return errResult(fmt.Errorf("refresh_confidence: %w", err))
	}
	now := time.Now()
	type refreshed struct {
		ID     string  `json:"id"`
		Before float64 `json:"before"`
		After  float64 `json:"after"`
	}
	out := make([]refreshed, 0, len(memories))
	for _, m := range memories {
		res := decay.Refresh(a.cfg.Scoring, &m, now, nil)
		patch := &memory.MemoryPatch{LastRefreshedAt: m.LastRefreshedAt}
		if err := a.relDB.UpdateMemory(ctx, m.ID, patch); err != nil {
			continue
		}
		out = append(out, refreshed{ID: m.ID, Before: res.Before, After: res.After})
	}
	return jsonResult(out)
}

func (a *app) handleGraphRAGSearch(ctx context.Context, raw string) (mcptool.ToolResult, error) {
	var in struct {
		Query string `json:"query"`
		Scope string `json:"scope"`
	}
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return errResult(fmt.Errorf("graphrag_search: decode args: %w", err))
	}
	scope := graphrag.ScopeLocal
	if in.Scope == string(graphrag.ScopeGlobal) {
		scope = graphrag.ScopeGlobal
	}
	res, err := a.graphrag.Search(ctx, graphrag.Query{Text: in.Query, Scope: scope, Limit: 10, CommunityLevel: 0, MaxIterations: 2, MaxDepth: 2})
	if err != nil {
		return errResult(fmt.Errorf("graphrag_search: %w", err))
	}
	return jsonResult(res)
}

func (a *app) handleExport(ctx context.Context, raw string) (mcptool.ToolResult, error) {
	doc, err := portable.Export(ctx, portable.Stores{Memories: a.relDB, Documents: a.relDB, CodeGraph: a.relDB}, a.embedder, string(a.cfg.Storage.Backend), string(a.cfg.Vector.Provider), time.Now())
	if err != nil {
		return errResult(fmt.Errorf("export: %w", err))
	}
	return jsonResult(doc)
}

func (a *app) handleImport(ctx context.Context, raw string) (mcptool.ToolResult, error) {
	var in struct {
		Document       json.RawMessage `json:"document"`
		ConflictPolicy string          `json:"conflictPolicy"`
	}
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return errResult(fmt.Errorf("import: decode args: %w", err))
	}
	var doc portable.Document
	if err := json.Unmarshal(in.Document, &doc); err != nil {
		return errResult(fmt.Errorf("import: decode document: %w", err))
	}
	strategy := portable.ConflictSkip
	switch in.ConflictPolicy {
	case string(portable.ConflictOverwrite):
		strategy = portable.ConflictOverwrite
	case string(portable.ConflictError):
		strategy = portable.ConflictError
	}
	res, err := portable.Import(ctx, portable.Stores{Memories: a.relDB, Documents: a.relDB, CodeGraph: a.relDB}, a.vectors, a.embedder, &doc, portable.Options{
		Conflict:        strategy,
		ImportRelations: true,
		ImportPending:   true,
	})
	if err != nil {
		return errResult(fmt.Errorf("import: %w", err))
	}
	return jsonResult(res)
}
