// Package memory defines doclea's core domain types and the storage-facing
// interfaces that back them.
//
// The package is organised the same way the architecture it was adapted
// from splits responsibilities across layers of increasing abstraction:
//
//   - [MemoryStore]: the memory row itself — decisions, solutions, patterns,
//     architecture notes, free-form notes — plus the relation graph between
//     them ([MemoryRelation], [RelationSuggestion]).
//   - [DocumentStore]: larger source documents and their ordered [Chunk]s.
//   - [CodeGraphStore]: the code symbol graph ([CodeNode]/[CodeEdge]) and the
//     cross-layer links between memories and code ([CrossLayerRelation]).
//   - [GraphRAGStore]: the entity/community/report graph used by GraphRAG
//     search.
//
// All interfaces are public so storage backends (embedded SQLite, Postgres,
// in-memory fakes for tests) can be swapped without depending on doclea
// internals. Every implementation must be safe for concurrent use.
package memory

import "time"

// MemoryType enumerates the recognized kinds of persisted knowledge.
type MemoryType string

const (
	MemoryTypeDecision     MemoryType = "decision"
	MemoryTypeSolution     MemoryType = "solution"
	MemoryTypePattern      MemoryType = "pattern"
	MemoryTypeArchitecture MemoryType = "architecture"
	MemoryTypeNote         MemoryType = "note"
)

// DecayFunction selects how a memory's effective confidence decays over time.
type DecayFunction string

const (
	DecayExponential DecayFunction = "exponential"
	DecayLinear      DecayFunction = "linear"
	DecayStep        DecayFunction = "step"
	DecayNone        DecayFunction = "none"
)

// Memory is a persisted unit of project knowledge.
//
// Lifecycle: created on explicit store; mutated by update/refresh/access;
// deleted explicitly. VectorID rebinds whenever the memory is re-embedded.
type Memory struct {
	ID       string
	Type     MemoryType
	Title    string
	Content  string
	Summary  string
	Importance float64

	Tags         []string
	RelatedFiles []string
	GitCommit    string
	SourcePR     string
	Experts      []string

	CreatedAt   time.Time
	AccessedAt  time.Time
	AccessCount int64
	NeedsReview bool

	VectorID string

	DecayRate       *float64
	LastRefreshedAt *time.Time
	ConfidenceFloor *float64
	DecayFunction   DecayFunction
}

// Document is a larger text split into ordered [Chunk]s. Chunks are owned by
// their document; deleting the document cascades to its chunks.
type Document struct {
	ID        string
	Title     string
	Content   string
	CreatedAt time.Time
}

// Chunk is one ordered segment of a [Document].
type Chunk struct {
	ID          string
	DocumentID  string
	Content     string
	VectorID    string
	StartOffset int
	EndOffset   int
}

// EmbeddingCacheEntry is a persisted embedding keyed by content hash and
// model identifier, so repeated embedding requests for identical content
// under the same model never re-call the provider.
type EmbeddingCacheEntry struct {
	ContentHash string
	Embedding   []float32
	Model       string
	CreatedAt   time.Time
}

// RelationType enumerates the directed relation kinds between two memories.
type RelationType string

const (
	RelationReferences RelationType = "references"
	RelationImplements RelationType = "implements"
	RelationExtends    RelationType = "extends"
	RelationRelatedTo  RelationType = "related_to"
	RelationSupersedes RelationType = "supersedes"
	RelationRequires   RelationType = "requires"
)

// MemoryRelation is a directed edge between two memories. Unique on
// (SourceID, TargetID, Type).
type MemoryRelation struct {
	ID        string
	SourceID  string
	TargetID  string
	Type      RelationType
	Weight    float64
	Metadata  map[string]string
	CreatedAt time.Time
}

// SuggestionStatus tracks the review state of a [RelationSuggestion] or
// cross-layer suggestion.
type SuggestionStatus string

const (
	SuggestionPending  SuggestionStatus = "pending"
	SuggestionApproved SuggestionStatus = "approved"
	SuggestionRejected SuggestionStatus = "rejected"
)

// RelationSuggestion is a candidate memory-memory relation awaiting human
// review. SuggestedType may carry the richer pre-collapse label (e.g.
// "causes"/"solves") even though a materialized [MemoryRelation] always
// collapses those to [RelationReferences].
type RelationSuggestion struct {
	ID              string
	SourceID        string
	TargetID        string
	SuggestedType   string
	Confidence      float64
	Reason          string
	DetectionMethod string
	Status          SuggestionStatus
	CreatedAt       time.Time
	ReviewedAt      *time.Time
}

// CodeNodeType enumerates the recognized code symbol kinds.
type CodeNodeType string

const (
	CodeNodeFunction  CodeNodeType = "function"
	CodeNodeClass     CodeNodeType = "class"
	CodeNodeInterface CodeNodeType = "interface"
	CodeNodeTypeKind  CodeNodeType = "type"
	CodeNodeModule    CodeNodeType = "module"
	CodeNodePackage   CodeNodeType = "package"
)

// CodeNode is a symbol emitted from code-graph ingestion.
type CodeNode struct {
	ID          string
	Type        CodeNodeType
	Name        string
	FilePath    string
	StartLine   int
	EndLine     int
	Signature   string
	Summary     string
	Metadata    map[string]string
}

// CodeEdgeType enumerates the recognized code-graph edge kinds.
type CodeEdgeType string

const (
	CodeEdgeCalls      CodeEdgeType = "calls"
	CodeEdgeImports    CodeEdgeType = "imports"
	CodeEdgeImplements CodeEdgeType = "implements"
	CodeEdgeExtends    CodeEdgeType = "extends"
	CodeEdgeReferences CodeEdgeType = "references"
	CodeEdgeDependsOn  CodeEdgeType = "depends_on"
)

// CodeEdge is a directed edge in the code symbol graph.
type CodeEdge struct {
	ID        string
	FromNode  string
	ToNode    string
	Type      CodeEdgeType
	Metadata  map[string]string
	CreatedAt time.Time
}

// CrossLayerDirection records which side of a [CrossLayerRelation] was the
// detection's starting point.
type CrossLayerDirection string

const (
	DirectionMemoryToCode CrossLayerDirection = "memory_to_code"
	DirectionCodeToMemory CrossLayerDirection = "code_to_memory"
)

// CrossLayerRelationType enumerates the recognized memory<->code edge kinds.
type CrossLayerRelationType string

const (
	CrossLayerDocuments   CrossLayerRelationType = "documents"
	CrossLayerAddresses   CrossLayerRelationType = "addresses"
	CrossLayerExemplifies CrossLayerRelationType = "exemplifies"
)

// CrossLayerRelation links a Memory to a CodeNode. Unique on
// (MemoryID, CodeNodeID, Type). Suggestions mirror this shape with an added
// [SuggestionStatus].
type CrossLayerRelation struct {
	ID         string
	MemoryID   string
	CodeNodeID string
	Type       CrossLayerRelationType
	Direction  CrossLayerDirection
	Confidence float64
	Metadata   map[string]string
	CreatedAt  time.Time
}

// CrossLayerSuggestion is a pending or reviewed [CrossLayerRelation]
// candidate.
type CrossLayerSuggestion struct {
	CrossLayerRelation
	Status     SuggestionStatus
	ReviewedAt *time.Time
}

// GraphEntity is a node in the GraphRAG entity graph, identified by the
// combination of canonical name and type.
type GraphEntity struct {
	ID          string
	Name        string
	Type        string
	Description string
	VectorID    string
	CreatedAt   time.Time
}

// GraphRelationship is a typed, strength-weighted edge between two
// [GraphEntity] nodes. Strength ranges over [1,10].
type GraphRelationship struct {
	ID          string
	SourceID    string
	TargetID    string
	Type        string
	Description string
	Strength    float64
	CreatedAt   time.Time
}

// GraphCommunity groups entities at a detection level.
type GraphCommunity struct {
	ID        string
	Level     int
	EntityIDs []string
	CreatedAt time.Time
}

// GraphReport summarizes a [GraphCommunity].
type GraphReport struct {
	ID          string
	CommunityID string
	Title       string
	Summary     string
	FullContent string
	Level       int
	VectorID    string
	CreatedAt   time.Time
}
