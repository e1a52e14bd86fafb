// Package config provides the configuration schema, loader, and hot-reload
// watcher for doclea.
//
// Configuration lives at <project>/.doclea/config.json (spec.md §6) and is
// decoded strictly: any field the schema below does not declare is
// rejected. This is stricter than the export document in pkg/portable,
// which tolerates unknown fields.
package config

// Config is the root configuration document, unmarshalled from
// <project>/.doclea/config.json.
type Config struct {
	Storage      StorageConfig      `json:"storage"`
	Vector       VectorConfig       `json:"vector"`
	Embedding    EmbeddingConfig    `json:"embedding"`
	Scoring      ScoringConfig      `json:"scoring"`
	Staleness    StalenessConfig    `json:"staleness"`
	Detection    DetectionConfig    `json:"detection"`
	ContextCache ContextCacheConfig `json:"contextCache"`
	Migrations   MigrationsConfig   `json:"migrations"`
}

// StorageBackendKind selects the relational store implementation.
type StorageBackendKind string

const (
	StorageBackendSQLite   StorageBackendKind = "sqlite"
	StorageBackendPostgres StorageBackendKind = "postgres"
)

// StorageConfig configures the relational store.
type StorageConfig struct {
	// Backend selects sqlite or postgres. Defaults to sqlite.
	Backend StorageBackendKind `json:"backend,omitempty"`
	// DBPath is relative to the project root unless absolute. Defaults to
	// ".doclea/doclea.db". Only used when Backend is sqlite.
	DBPath string `json:"dbPath"`
	// DSN is the Postgres connection string. Required when Backend is
	// postgres, ignored otherwise.
	DSN string `json:"dsn,omitempty"`
}

// VectorProviderKind selects an embedded or remote vector-store backend.
type VectorProviderKind string

const (
	VectorProviderEmbedded VectorProviderKind = "embedded"
	VectorProviderRemote   VectorProviderKind = "remote"
)

// VectorConfig configures the vector store.
type VectorConfig struct {
	Provider       VectorProviderKind `json:"provider"`
	DBPath         string             `json:"dbPath,omitempty"`
	URL            string             `json:"url,omitempty"`
	APIKey         string             `json:"apiKey,omitempty"`
	CollectionName string             `json:"collectionName,omitempty"`
	VectorSize     int                `json:"vectorSize,omitempty"`
}

// EmbeddingConfig configures the embedding provider adapter.
type EmbeddingConfig struct {
	// Provider selects the adapter: local-tei, openai, nomic, voyage,
	// ollama, transformers.
	Provider   string `json:"provider"`
	Endpoint   string `json:"endpoint,omitempty"`
	Model      string `json:"model,omitempty"`
	APIKey     string `json:"apiKey,omitempty"`
	CacheDir   string `json:"cacheDir,omitempty"`
	Dimensions int    `json:"dimensions,omitempty"`
}

// RecencyDecayVariant selects the recency-score formula (spec.md §4.F).
type RecencyDecayVariant string

const (
	RecencyExponential RecencyDecayVariant = "exponential"
	RecencyLinear      RecencyDecayVariant = "linear"
	RecencyStep        RecencyDecayVariant = "step"
)

// FrequencyNormalization selects the frequency-score formula (spec.md §4.F).
type FrequencyNormalization string

const (
	FrequencyLog     FrequencyNormalization = "log"
	FrequencyLinear  FrequencyNormalization = "linear"
	FrequencySigmoid FrequencyNormalization = "sigmoid"
)

// ScoringWeights weights the four scoring factors. Each should lie in
// [0,1]; the engine does not require them to sum to 1.
type ScoringWeights struct {
	Semantic   float64 `json:"semantic"`
	Recency    float64 `json:"recency"`
	Confidence float64 `json:"confidence"`
	Frequency  float64 `json:"frequency"`
}

// StepThreshold is one piecewise point of a step recency/frequency curve.
type StepThreshold struct {
	Days  float64 `json:"days"`
	Score float64 `json:"score"`
}

// BoostCondition enumerates the recognized boost-rule condition kinds.
type BoostCondition string

const (
	BoostRecency    BoostCondition = "recency"
	BoostImportance BoostCondition = "importance"
	BoostFrequency  BoostCondition = "frequency"
	BoostStaleness  BoostCondition = "staleness"
	BoostMemoryType BoostCondition = "memoryType"
	BoostTags       BoostCondition = "tags"
)

// BoostRule multiplies the final score by Factor when Condition matches.
type BoostRule struct {
	Condition BoostCondition `json:"condition"`
	Factor    float64        `json:"factor"`

	// Parameters, interpreted per Condition.
	MaxDays        float64  `json:"maxDays,omitempty"`
	MinValue       float64  `json:"minValue,omitempty"`
	MinAccessCount int64    `json:"minAccessCount,omitempty"`
	MinDays        float64  `json:"minDays,omitempty"`
	Types          []string `json:"types,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	Match          string   `json:"match,omitempty"` // "any" or "all"
}

// ScoringConfig configures the multi-factor scoring engine (spec.md §4.F).
type ScoringConfig struct {
	Weights                ScoringWeights         `json:"weights"`
	RecencyDecay           RecencyDecayVariant    `json:"recencyDecay"`
	HalfLifeDays           float64                `json:"halfLifeDays,omitempty"`
	FullDecayDays          float64                `json:"fullDecayDays,omitempty"`
	RecencySteps           []StepThreshold        `json:"recencySteps,omitempty"`
	FrequencyNormalization FrequencyNormalization `json:"frequencyNormalization"`
	FrequencyMaxCount      int64                  `json:"frequencyMaxCount,omitempty"`
	ColdStartScore         float64                `json:"coldStartScore,omitempty"`
	BoostRules             []BoostRule            `json:"boostRules,omitempty"`
	SearchOverfetch        float64                `json:"searchOverfetch"`
	DecayEnabled           bool                   `json:"decayEnabled"`
	DefaultDecayFunction   string                 `json:"defaultDecayFunction,omitempty"`
	DefaultDecayRate       float64                `json:"defaultDecayRate,omitempty"`
	DefaultConfidenceFloor float64                `json:"defaultConfidenceFloor,omitempty"`
}

// StalenessConfig configures the staleness-detection engine (spec.md §4.J).
type StalenessConfig struct {
	TimeDecayWeight        float64  `json:"timeDecayWeight"`
	TimeDecayThresholdDays float64  `json:"timeDecayThresholdDays"`
	ContradictionsWeight   float64  `json:"contradictionsWeight"`
	ContradictionPatterns  []string `json:"contradictionPatterns,omitempty"`
	RelatedUpdatesWeight   float64  `json:"relatedUpdatesWeight"`
	MaxTraversalDepth      int      `json:"maxTraversalDepth"`
	FreshThreshold         float64  `json:"freshThreshold"`
	StaleThreshold         float64  `json:"staleThreshold"`
}

// DetectionConfig configures the memory-memory and cross-layer relation
// detectors (spec.md §4.H/§4.I).
type DetectionConfig struct {
	SemanticThreshold    float64 `json:"semanticThreshold"`
	SuggestionThreshold  float64 `json:"suggestionThreshold"`
	AutoApproveThreshold float64 `json:"autoApproveThreshold"`
	TemporalWindowDays   float64 `json:"temporalWindowDays"`
	QueueCapacity        int     `json:"queueCapacity"`
}

// ContextCacheConfig configures the context builder's cache (spec.md §4.L).
type ContextCacheConfig struct {
	MaxEntries int   `json:"maxEntries"`
	TTLSeconds int64 `json:"ttlSeconds"`
}

// MigrationsConfig configures the relational migrator (spec.md §4.C).
type MigrationsConfig struct {
	BackupDir     string `json:"backupDir,omitempty"`
	TargetVersion string `json:"targetVersion,omitempty"`
}
