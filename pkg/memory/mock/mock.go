// Package mock provides an in-memory test double implementing every storage
// interface in [memory]: [memory.MemoryStore], [memory.DocumentStore],
// [memory.CodeGraphStore], and [memory.GraphRAGStore].
//
// Unlike a call-recording mock, Store is a small working implementation
// backed by plain Go maps behind a mutex — downstream packages (relate,
// crosslayer, staleness, graphrag, context, portable) exercise real
// store semantics in their tests without a SQLite file on disk.
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docleaai/doclea/pkg/memory"
)

var (
	_ memory.MemoryStore    = (*Store)(nil)
	_ memory.DocumentStore  = (*Store)(nil)
	_ memory.CodeGraphStore = (*Store)(nil)
	_ memory.GraphRAGStore  = (*Store)(nil)
)

// Store is an in-memory implementation of every storage interface in
// [memory]. The zero value is not usable (its maps are nil); construct
// with [New].
type Store struct {
	mu sync.Mutex

	memories       map[string]memory.Memory
	relations      map[string]memory.MemoryRelation
	suggestions    map[string]memory.RelationSuggestion
	documents      map[string]memory.Document
	chunks         map[string][]memory.Chunk
	embeddingCache map[string]memory.EmbeddingCacheEntry
	codeNodes      map[string]memory.CodeNode
	codeEdges      map[string]memory.CodeEdge
	crossLayer     map[string]memory.CrossLayerRelation
	crossSugg      map[string]memory.CrossLayerSuggestion
	entities       map[string]memory.GraphEntity
	relationships  []memory.GraphRelationship
	communities    map[string]memory.GraphCommunity
	reports        map[string]memory.GraphReport
}

// New returns a ready-to-use Store.
func New() *Store {
	return &Store{
		memories:       make(map[string]memory.Memory),
		relations:      make(map[string]memory.MemoryRelation),
		suggestions:    make(map[string]memory.RelationSuggestion),
		documents:      make(map[string]memory.Document),
		chunks:         make(map[string][]memory.Chunk),
		embeddingCache: make(map[string]memory.EmbeddingCacheEntry),
		codeNodes:      make(map[string]memory.CodeNode),
		codeEdges:      make(map[string]memory.CodeEdge),
		crossLayer:     make(map[string]memory.CrossLayerRelation),
		crossSugg:      make(map[string]memory.CrossLayerSuggestion),
		entities:       make(map[string]memory.GraphEntity),
		communities:    make(map[string]memory.GraphCommunity),
		reports:        make(map[string]memory.GraphReport),
	}
}

func newID() string { return uuid.NewString() }

// ── MemoryStore ─────────────────────────────────────────────────────────

func (s *Store) CreateMemory(_ context.Context, m *memory.Memory) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = newID()
	}
	s.memories[m.ID] = *m
	return m.ID, nil
}

func (s *Store) GetMemory(_ context.Context, id string) (*memory.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memories[id]
	if !ok {
		return nil, memory.ErrNotFound
	}
	return &m, nil
}

func (s *Store) UpdateMemory(_ context.Context, id string, patch *memory.MemoryPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memories[id]
	if !ok {
		return memory.ErrNotFound
	}
	if patch.Title != nil {
		m.Title = *patch.Title
	}
	if patch.Content != nil {
		m.Content = *patch.Content
	}
	if patch.Summary != nil {
		m.Summary = *patch.Summary
	}
	if patch.Importance != nil {
		m.Importance = *patch.Importance
	}
	if patch.Tags != nil {
		m.Tags = patch.Tags
	}
	if patch.RelatedFiles != nil {
		m.RelatedFiles = patch.RelatedFiles
	}
	if patch.NeedsReview != nil {
		m.NeedsReview = *patch.NeedsReview
	}
	if patch.VectorID != nil {
		m.VectorID = *patch.VectorID
	}
	if patch.DecayRate != nil {
		m.DecayRate = patch.DecayRate
	}
	if patch.LastRefreshedAt != nil {
		m.LastRefreshedAt = patch.LastRefreshedAt
	}
	if patch.ConfidenceFloor != nil {
		m.ConfidenceFloor = patch.ConfidenceFloor
	}
	if patch.DecayFunction != nil {
		m.DecayFunction = *patch.DecayFunction
	}
	s.memories[id] = m
	return nil
}

func (s *Store) DeleteMemory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.memories, id)
	return nil
}

func (s *Store) ListMemories(_ context.Context, filter memory.MemoryFilter) ([]memory.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []memory.Memory
	for _, m := range s.memories {
		if !memory.MatchesFilter(m, filter) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccessedAt.After(out[j].AccessedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) TouchAccess(_ context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memories[id]
	if !ok {
		return memory.ErrNotFound
	}
	m.AccessCount++
	m.AccessedAt = now
	s.memories[id] = m
	return nil
}

func (s *Store) CreateRelation(_ context.Context, r *memory.MemoryRelation) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.relations {
		if existing.SourceID == r.SourceID && existing.TargetID == r.TargetID && existing.Type == r.Type {
			return "", memory.ErrConflict
		}
	}
	if r.ID == "" {
		r.ID = newID()
	}
	s.relations[r.ID] = *r
	return r.ID, nil
}

func (s *Store) GetRelations(_ context.Context, id string, opts ...memory.RelQueryOpt) ([]memory.MemoryRelation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	relTypes, dirIn, dirOut, limit := memory.ApplyRelQueryOpts(opts)

	typeSet := make(map[string]bool, len(relTypes))
	for _, t := range relTypes {
		typeSet[t] = true
	}

	var out []memory.MemoryRelation
	for _, r := range s.relations {
		if dirOut && r.SourceID == id || dirIn && r.TargetID == id {
			if len(typeSet) > 0 && !typeSet[string(r.Type)] {
				continue
			}
			out = append(out, r)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) RelationExists(_ context.Context, sourceID, targetID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.relations {
		if (r.SourceID == sourceID && r.TargetID == targetID) || (r.SourceID == targetID && r.TargetID == sourceID) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) Traverse(_ context.Context, id string, opts ...memory.TraversalOpt) ([]memory.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	relTypes, nodeTypes, maxNodes := memory.ApplyTraversalOpts(opts)
	typeSet := make(map[string]bool, len(relTypes))
	for _, t := range relTypes {
		typeSet[t] = true
	}
	nodeTypeSet := make(map[string]bool, len(nodeTypes))
	for _, t := range nodeTypes {
		nodeTypeSet[t] = true
	}

	visited := map[string]bool{id: true}
	queue := []string{id}
	var out []memory.Memory

	for len(queue) > 0 && len(out) < maxNodes {
		cur := queue[0]
		queue = queue[1:]
		for _, r := range s.relations {
			if len(typeSet) > 0 && !typeSet[string(r.Type)] {
				continue
			}
			var next string
			switch cur {
			case r.SourceID:
				next = r.TargetID
			case r.TargetID:
				next = r.SourceID
			default:
				continue
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			if m, ok := s.memories[next]; ok {
				if len(nodeTypeSet) == 0 || nodeTypeSet[string(m.Type)] {
					out = append(out, m)
				}
			}
			queue = append(queue, next)
			if len(out) >= maxNodes {
				break
			}
		}
	}
	return out, nil
}

func (s *Store) CreateSuggestion(_ context.Context, sugg *memory.RelationSuggestion) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sugg.ID == "" {
		sugg.ID = newID()
	}
	s.suggestions[sugg.ID] = *sugg
	return sugg.ID, nil
}

func (s *Store) ListSuggestions(_ context.Context, status memory.SuggestionStatus) ([]memory.RelationSuggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []memory.RelationSuggestion
	for _, sugg := range s.suggestions {
		if status != "" && sugg.Status != status {
			continue
		}
		out = append(out, sugg)
	}
	return out, nil
}

func (s *Store) ReviewSuggestion(_ context.Context, id string, approve bool, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sugg, ok := s.suggestions[id]
	if !ok {
		return memory.ErrNotFound
	}
	sugg.ReviewedAt = &now
	if approve {
		sugg.Status = memory.SuggestionApproved
		relType := memory.RelationType(sugg.SuggestedType)
		if relType == "causes" || relType == "solves" {
			relType = memory.RelationReferences
		}
		s.relations[newID()] = memory.MemoryRelation{
			SourceID: sugg.SourceID, TargetID: sugg.TargetID, Type: relType,
			Weight: sugg.Confidence, CreatedAt: now,
		}
	} else {
		sugg.Status = memory.SuggestionRejected
	}
	s.suggestions[id] = sugg
	return nil
}

// ── DocumentStore ───────────────────────────────────────────────────────

func (s *Store) CreateDocument(_ context.Context, d *memory.Document, chunks []memory.Chunk) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == "" {
		d.ID = newID()
	}
	s.documents[d.ID] = *d
	for i := range chunks {
		if chunks[i].ID == "" {
			chunks[i].ID = newID()
		}
		chunks[i].DocumentID = d.ID
	}
	s.chunks[d.ID] = chunks
	return d.ID, nil
}

func (s *Store) GetDocument(_ context.Context, id string) (*memory.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[id]
	if !ok {
		return nil, memory.ErrNotFound
	}
	return &d, nil
}

func (s *Store) GetChunks(_ context.Context, documentID string) ([]memory.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunks[documentID], nil
}

func (s *Store) ListDocuments(_ context.Context) ([]memory.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]memory.Document, 0, len(s.documents))
	for _, d := range s.documents {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.documents, id)
	delete(s.chunks, id)
	return nil
}

func (s *Store) GetEmbeddingCache(_ context.Context, contentHash, model string) (*memory.EmbeddingCacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.embeddingCache[contentHash+"\x00"+model]
	if !ok {
		return nil, memory.ErrNotFound
	}
	return &e, nil
}

func (s *Store) PutEmbeddingCache(_ context.Context, e *memory.EmbeddingCacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddingCache[e.ContentHash+"\x00"+e.Model] = *e
	return nil
}

// ── CodeGraphStore ──────────────────────────────────────────────────────

func (s *Store) UpsertCodeNodes(_ context.Context, nodes []memory.CodeNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range nodes {
		s.codeNodes[n.ID] = n
	}
	return nil
}

func (s *Store) UpsertCodeEdges(_ context.Context, edges []memory.CodeEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range edges {
		if e.ID == "" {
			e.ID = newID()
		}
		s.codeEdges[e.ID] = e
	}
	return nil
}

func (s *Store) GetCodeNode(_ context.Context, id string) (*memory.CodeNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.codeNodes[id]
	if !ok {
		return nil, memory.ErrNotFound
	}
	return &n, nil
}

func (s *Store) FindCodeNodesByName(_ context.Context, name string) ([]memory.CodeNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []memory.CodeNode
	for _, n := range s.codeNodes {
		if n.Name == name {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *Store) FindCodeNodesByFile(_ context.Context, filePath string) ([]memory.CodeNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []memory.CodeNode
	for _, n := range s.codeNodes {
		if n.FilePath == filePath {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *Store) GetCodeEdges(_ context.Context, nodeID string) ([]memory.CodeEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []memory.CodeEdge
	for _, e := range s.codeEdges {
		if e.FromNode == nodeID || e.ToNode == nodeID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) CreateCrossLayerRelation(_ context.Context, r *memory.CrossLayerRelation) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = newID()
	}
	s.crossLayer[r.ID] = *r
	return r.ID, nil
}

func (s *Store) ListCrossLayerRelations(_ context.Context, memoryID string) ([]memory.CrossLayerRelation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []memory.CrossLayerRelation
	for _, r := range s.crossLayer {
		if r.MemoryID == memoryID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) CrossLayerRelationExists(_ context.Context, memoryID, codeNodeID string, typ memory.CrossLayerRelationType) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.crossLayer {
		if r.MemoryID == memoryID && r.CodeNodeID == codeNodeID && r.Type == typ {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CreateCrossLayerSuggestion(_ context.Context, sugg *memory.CrossLayerSuggestion) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sugg.ID == "" {
		sugg.ID = newID()
	}
	s.crossSugg[sugg.ID] = *sugg
	return sugg.ID, nil
}

func (s *Store) ListCrossLayerSuggestions(_ context.Context, status memory.SuggestionStatus) ([]memory.CrossLayerSuggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []memory.CrossLayerSuggestion
	for _, sugg := range s.crossSugg {
		if status != "" && sugg.Status != status {
			continue
		}
		out = append(out, sugg)
	}
	return out, nil
}

func (s *Store) ReviewCrossLayerSuggestion(_ context.Context, id string, approve bool, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sugg, ok := s.crossSugg[id]
	if !ok {
		return memory.ErrNotFound
	}
	sugg.ReviewedAt = &now
	if approve {
		sugg.Status = memory.SuggestionApproved
		sugg.CrossLayerRelation.ID = newID()
		s.crossLayer[sugg.CrossLayerRelation.ID] = sugg.CrossLayerRelation
	} else {
		sugg.Status = memory.SuggestionRejected
	}
	s.crossSugg[id] = sugg
	return nil
}

// ── GraphRAGStore ───────────────────────────────────────────────────────

func (s *Store) UpsertEntity(_ context.Context, e *memory.GraphEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = newID()
	}
	s.entities[e.ID] = *e
	return nil
}

func (s *Store) GetEntity(_ context.Context, id string) (*memory.GraphEntity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return nil, memory.ErrNotFound
	}
	return &e, nil
}

func (s *Store) UpsertRelationship(_ context.Context, r *memory.GraphRelationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = newID()
	}
	s.relationships = append(s.relationships, *r)
	return nil
}

func (s *Store) RelationshipsFrom(_ context.Context, entityID string) ([]memory.GraphRelationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []memory.GraphRelationship
	for _, r := range s.relationships {
		if r.SourceID == entityID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) UpsertCommunity(_ context.Context, c *memory.GraphCommunity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = newID()
	}
	s.communities[c.ID] = *c
	return nil
}

func (s *Store) UpsertReport(_ context.Context, r *memory.GraphReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = newID()
	}
	s.reports[r.ID] = *r
	return nil
}

func (s *Store) GetReport(_ context.Context, id string) (*memory.GraphReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, memory.ErrNotFound
	}
	return &r, nil
}

func (s *Store) ReportsByLevel(_ context.Context, level int) ([]memory.GraphReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []memory.GraphReport
	for _, r := range s.reports {
		if r.Level == level {
			out = append(out, r)
		}
	}
	return out, nil
}
