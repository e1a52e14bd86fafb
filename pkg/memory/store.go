package memory

import (
	"context"
	"time"
)

// MemoryFilter narrows a memory listing or search. All non-zero fields are
// applied as AND conditions.
type MemoryFilter struct {
	// Types restricts results to the given memory types. Empty matches all.
	Types []MemoryType

	// Tags restricts results to memories carrying at least one (Match=any)
	// or all (Match=all) of the given tags.
	Tags      []string
	TagsMatch string // "any" or "all"; defaults to "any"

	// RelatedFile restricts results to memories whose RelatedFiles contains
	// this path.
	RelatedFile string

	// MinImportance filters out memories below this importance.
	MinImportance float64

	// NeedsReview, when non-nil, filters on the NeedsReview flag.
	NeedsReview *bool

	Limit int
}

// MemorySearchResult pairs a Memory with the score it was retrieved at.
type MemorySearchResult struct {
	Memory Memory
	Score  float64
}

// MemoryStore persists [Memory] rows and the relation graph between them.
type MemoryStore interface {
	// CreateMemory inserts a new memory and returns its assigned ID.
	CreateMemory(ctx context.Context, m *Memory) (string, error)

	// GetMemory returns the memory with the given id, or [ErrNotFound].
	GetMemory(ctx context.Context, id string) (*Memory, error)

	// UpdateMemory applies a partial update. Only non-nil fields in patch
	// are applied.
	UpdateMemory(ctx context.Context, id string, patch *MemoryPatch) error

	// DeleteMemory removes a memory and its owned relations/vector binding.
	DeleteMemory(ctx context.Context, id string) error

	// ListMemories returns memories matching filter, most recently accessed
	// first.
	ListMemories(ctx context.Context, filter MemoryFilter) ([]Memory, error)

	// TouchAccess increments AccessCount and sets AccessedAt to now for the
	// given memory. AccessCount is monotonic; AccessedAt is non-decreasing.
	TouchAccess(ctx context.Context, id string, now time.Time) error

	// CreateRelation inserts a directed relation. Returns [ErrConflict] if
	// (SourceID, TargetID, Type) already exists.
	CreateRelation(ctx context.Context, r *MemoryRelation) (string, error)

	// GetRelations returns relations touching id, filtered by opts.
	GetRelations(ctx context.Context, id string, opts ...RelQueryOpt) ([]MemoryRelation, error)

	// RelationExists reports whether any relation already links source and
	// target, in either direction.
	RelationExists(ctx context.Context, sourceID, targetID string) (bool, error)

	// Traverse performs a bounded BFS over the relation graph starting from
	// id, returning the memories reached (not including id itself).
	Traverse(ctx context.Context, id string, opts ...TraversalOpt) ([]Memory, error)

	// CreateSuggestion inserts a pending relation suggestion.
	CreateSuggestion(ctx context.Context, s *RelationSuggestion) (string, error)

	// ListSuggestions returns suggestions with the given status (empty
	// matches all).
	ListSuggestions(ctx context.Context, status SuggestionStatus) ([]RelationSuggestion, error)

	// ReviewSuggestion marks a suggestion approved or rejected. Approving
	// materializes a [MemoryRelation] (collapsing causes/solves to
	// references).
	ReviewSuggestion(ctx context.Context, id string, approve bool, now time.Time) error
}

// MemoryPatch carries the subset of [Memory] fields an update may change.
type MemoryPatch struct {
	Title           *string
	Content         *string
	Summary         *string
	Importance      *float64
	Tags            []string
	RelatedFiles    []string
	NeedsReview     *bool
	VectorID        *string
	DecayRate       *float64
	LastRefreshedAt *time.Time
	ConfidenceFloor *float64
	DecayFunction   *DecayFunction
}

// relQueryOptions holds the resolved parameters of a [RelQueryOpt] chain.
type relQueryOptions struct {
	relTypes    []string
	directionIn bool
	directionOut bool
	limit       int
}

// RelQueryOpt configures [MemoryStore.GetRelations].
type RelQueryOpt func(*relQueryOptions)

// WithRelTypes restricts results to the given relation type names.
func WithRelTypes(types ...string) RelQueryOpt {
	return func(o *relQueryOptions) { o.relTypes = types }
}

// WithIncoming includes relations where id is the target.
func WithIncoming() RelQueryOpt {
	return func(o *relQueryOptions) { o.directionIn = true }
}

// WithOutgoing includes relations where id is the source.
func WithOutgoing() RelQueryOpt {
	return func(o *relQueryOptions) { o.directionOut = true }
}

// WithRelLimit caps the number of relations returned.
func WithRelLimit(n int) RelQueryOpt {
	return func(o *relQueryOptions) { o.limit = n }
}

// ApplyRelQueryOpts resolves a slice of [RelQueryOpt] for storage backends
// that cannot see the unexported [relQueryOptions] type directly. When
// neither WithIncoming nor WithOutgoing is given, both directions apply.
func ApplyRelQueryOpts(opts []RelQueryOpt) (relTypes []string, dirIn bool, dirOut bool, limit int) {
	o := &relQueryOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if !o.directionIn && !o.directionOut {
		o.directionIn, o.directionOut = true, true
	}
	return o.relTypes, o.directionIn, o.directionOut, o.limit
}

// traversalOptions holds the resolved parameters of a [TraversalOpt] chain.
type traversalOptions struct {
	relTypes  []string
	nodeTypes []string
	maxNodes  int
}

// TraversalOpt configures [MemoryStore.Traverse].
type TraversalOpt func(*traversalOptions)

// TraverseRelTypes restricts traversal to the given relation type names.
func TraverseRelTypes(types ...string) TraversalOpt {
	return func(o *traversalOptions) { o.relTypes = types }
}

// TraverseNodeTypes restricts visited memories to the given types.
func TraverseNodeTypes(types ...string) TraversalOpt {
	return func(o *traversalOptions) { o.nodeTypes = types }
}

// TraverseMaxNodes bounds the number of memories visited.
func TraverseMaxNodes(n int) TraversalOpt {
	return func(o *traversalOptions) { o.maxNodes = n }
}

// ApplyTraversalOpts resolves a slice of [TraversalOpt].
func ApplyTraversalOpts(opts []TraversalOpt) (relTypes []string, nodeTypes []string, maxNodes int) {
	o := &traversalOptions{maxNodes: 100}
	for _, opt := range opts {
		opt(o)
	}
	return o.relTypes, o.nodeTypes, o.maxNodes
}

// DocumentStore persists [Document]s and their [Chunk]s.
type DocumentStore interface {
	CreateDocument(ctx context.Context, d *Document, chunks []Chunk) (string, error)
	GetDocument(ctx context.Context, id string) (*Document, error)
	GetChunks(ctx context.Context, documentID string) ([]Chunk, error)
	DeleteDocument(ctx context.Context, id string) error

	// ListDocuments returns every document, most recently created first.
	// Used by the portable export path, which needs the full document set
	// rather than one lookup at a time.
	ListDocuments(ctx context.Context) ([]Document, error)

	// GetEmbeddingCache looks up a cached embedding by content hash/model.
	GetEmbeddingCache(ctx context.Context, contentHash, model string) (*EmbeddingCacheEntry, error)
	// PutEmbeddingCache upserts a cached embedding ("last writer wins").
	PutEmbeddingCache(ctx context.Context, e *EmbeddingCacheEntry) error
}

// CodeGraphStore persists the code symbol graph and cross-layer relations.
type CodeGraphStore interface {
	UpsertCodeNodes(ctx context.Context, nodes []CodeNode) error
	UpsertCodeEdges(ctx context.Context, edges []CodeEdge) error
	GetCodeNode(ctx context.Context, id string) (*CodeNode, error)
	FindCodeNodesByName(ctx context.Context, name string) ([]CodeNode, error)
	FindCodeNodesByFile(ctx context.Context, filePath string) ([]CodeNode, error)
	GetCodeEdges(ctx context.Context, nodeID string) ([]CodeEdge, error)

	CreateCrossLayerRelation(ctx context.Context, r *CrossLayerRelation) (string, error)
	ListCrossLayerRelations(ctx context.Context, memoryID string) ([]CrossLayerRelation, error)
	CrossLayerRelationExists(ctx context.Context, memoryID, codeNodeID string, typ CrossLayerRelationType) (bool, error)

	CreateCrossLayerSuggestion(ctx context.Context, s *CrossLayerSuggestion) (string, error)
	ListCrossLayerSuggestions(ctx context.Context, status SuggestionStatus) ([]CrossLayerSuggestion, error)
	ReviewCrossLayerSuggestion(ctx context.Context, id string, approve bool, now time.Time) error
}

// GraphRAGStore persists the entity/community/report graph used by GraphRAG
// search.
type GraphRAGStore interface {
	UpsertEntity(ctx context.Context, e *GraphEntity) error
	GetEntity(ctx context.Context, id string) (*GraphEntity, error)
	UpsertRelationship(ctx context.Context, r *GraphRelationship) error
	RelationshipsFrom(ctx context.Context, entityID string) ([]GraphRelationship, error)

	UpsertCommunity(ctx context.Context, c *GraphCommunity) error
	UpsertReport(ctx context.Context, r *GraphReport) error
	GetReport(ctx context.Context, id string) (*GraphReport, error)
	ReportsByLevel(ctx context.Context, level int) ([]GraphReport, error)
}
