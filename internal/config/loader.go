package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// envVarPattern matches ${NAME} placeholders for environment interpolation.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads the JSON configuration file at path, interpolates
// environment variables, and returns a validated [Config].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a JSON config from r, after interpolating
// ${NAME} environment placeholders, and validates the result. Unknown
// fields are rejected so typos in required sections surface immediately;
// this mirrors spec.md §6's "reject unknown required fields" contract for
// the portable export document, applied here to the config document too.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	interpolated := interpolateEnv(string(raw))

	cfg := &Config{}
	dec := json.NewDecoder(strings.NewReader(interpolated))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode json: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// interpolateEnv replaces every ${NAME} occurrence with the value of the
// environment variable NAME. An unset variable interpolates to the empty
// string; it is not an error, matching spec.md §6's terse description of
// the substitution.
func interpolateEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}

// applyDefaults fills in zero-value fields with doclea's documented
// defaults so a mostly-empty config.json is still usable.
func applyDefaults(cfg *Config) {
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = StorageBackendSQLite
	}
	if cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = ".doclea/doclea.db"
	}
	if cfg.Vector.Provider == "" {
		cfg.Vector.Provider = VectorProviderEmbedded
	}
	if cfg.Vector.DBPath == "" && cfg.Vector.Provider == VectorProviderEmbedded {
		cfg.Vector.DBPath = ".doclea/vectors.db"
	}
	if cfg.Vector.CollectionName == "" {
		cfg.Vector.CollectionName = "doclea"
	}
	if cfg.Vector.VectorSize == 0 {
		cfg.Vector.VectorSize = 1536
	}
	w := &cfg.Scoring.Weights
	if w.Semantic == 0 && w.Recency == 0 && w.Confidence == 0 && w.Frequency == 0 {
		w.Semantic, w.Recency, w.Confidence, w.Frequency = 0.5, 0.2, 0.2, 0.1
	}
	if cfg.Scoring.RecencyDecay == "" {
		cfg.Scoring.RecencyDecay = RecencyExponential
	}
	if cfg.Scoring.HalfLifeDays == 0 {
		cfg.Scoring.HalfLifeDays = 30
	}
	if cfg.Scoring.FullDecayDays == 0 {
		cfg.Scoring.FullDecayDays = 90
	}
	if cfg.Scoring.FrequencyNormalization == "" {
		cfg.Scoring.FrequencyNormalization = FrequencyLog
	}
	if cfg.Scoring.FrequencyMaxCount == 0 {
		cfg.Scoring.FrequencyMaxCount = 100
	}
	if cfg.Scoring.SearchOverfetch == 0 {
		cfg.Scoring.SearchOverfetch = 3
	}
	if cfg.Scoring.DefaultDecayFunction == "" {
		cfg.Scoring.DefaultDecayFunction = "none"
	}
	if cfg.Staleness.TimeDecayWeight == 0 {
		cfg.Staleness.TimeDecayWeight = 0.5
	}
	if cfg.Staleness.TimeDecayThresholdDays == 0 {
		cfg.Staleness.TimeDecayThresholdDays = 90
	}
	if cfg.Staleness.RelatedUpdatesWeight == 0 {
		cfg.Staleness.RelatedUpdatesWeight = 0.4
	}
	if cfg.Staleness.MaxTraversalDepth == 0 {
		cfg.Staleness.MaxTraversalDepth = 2
	}
	if cfg.Staleness.FreshThreshold == 0 {
		cfg.Staleness.FreshThreshold = 0.3
	}
	if cfg.Staleness.StaleThreshold == 0 {
		cfg.Staleness.StaleThreshold = 0.7
	}
	if cfg.Detection.SemanticThreshold == 0 {
		cfg.Detection.SemanticThreshold = 0.75
	}
	if cfg.Detection.SuggestionThreshold == 0 {
		cfg.Detection.SuggestionThreshold = 0.6
	}
	if cfg.Detection.AutoApproveThreshold == 0 {
		cfg.Detection.AutoApproveThreshold = 0.9
	}
	if cfg.Detection.TemporalWindowDays == 0 {
		cfg.Detection.TemporalWindowDays = 14
	}
	if cfg.Detection.QueueCapacity == 0 {
		cfg.Detection.QueueCapacity = 256
	}
	if cfg.ContextCache.MaxEntries == 0 {
		cfg.ContextCache.MaxEntries = 200
	}
	if cfg.ContextCache.TTLSeconds == 0 {
		cfg.ContextCache.TTLSeconds = 300
	}
}

// Validate checks that cfg contains a coherent set of values, returning a
// joined error listing every failure found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Storage.Backend != StorageBackendSQLite && cfg.Storage.Backend != StorageBackendPostgres {
		errs = append(errs, fmt.Errorf("storage.backend %q is invalid; valid values: sqlite, postgres", cfg.Storage.Backend))
	}
	if cfg.Storage.Backend == StorageBackendPostgres && cfg.Storage.DSN == "" {
		errs = append(errs, errors.New("storage.dsn is required when storage.backend is postgres"))
	}

	if cfg.Vector.Provider != VectorProviderEmbedded && cfg.Vector.Provider != VectorProviderRemote {
		errs = append(errs, fmt.Errorf("vector.provider %q is invalid; valid values: embedded, remote", cfg.Vector.Provider))
	}
	if cfg.Vector.Provider == VectorProviderRemote && cfg.Vector.URL == "" {
		errs = append(errs, errors.New("vector.url is required when vector.provider is remote"))
	}
	if cfg.Vector.VectorSize < 0 {
		errs = append(errs, fmt.Errorf("vector.vectorSize %d must be non-negative", cfg.Vector.VectorSize))
	}

	if cfg.Embedding.Provider == "" {
		errs = append(errs, errors.New("embedding.provider is required"))
	} else if !validEmbeddingProvider(cfg.Embedding.Provider) {
		slog.Warn("unrecognized embedding provider — may be a typo or a new adapter",
			"provider", cfg.Embedding.Provider)
	}

	for name, w := range map[string]float64{
		"scoring.weights.semantic":   cfg.Scoring.Weights.Semantic,
		"scoring.weights.recency":    cfg.Scoring.Weights.Recency,
		"scoring.weights.confidence": cfg.Scoring.Weights.Confidence,
		"scoring.weights.frequency":  cfg.Scoring.Weights.Frequency,
	} {
		if w < 0 || w > 1 {
			errs = append(errs, fmt.Errorf("%s %.3f is out of range [0,1]", name, w))
		}
	}
	switch cfg.Scoring.RecencyDecay {
	case RecencyExponential, RecencyLinear, RecencyStep:
	default:
		errs = append(errs, fmt.Errorf("scoring.recencyDecay %q is invalid; valid values: exponential, linear, step", cfg.Scoring.RecencyDecay))
	}
	switch cfg.Scoring.FrequencyNormalization {
	case FrequencyLog, FrequencyLinear, FrequencySigmoid:
	default:
		errs = append(errs, fmt.Errorf("scoring.frequencyNormalization %q is invalid; valid values: log, linear, sigmoid", cfg.Scoring.FrequencyNormalization))
	}
	for i, rule := range cfg.Scoring.BoostRules {
		if rule.Factor <= 0 {
			errs = append(errs, fmt.Errorf("scoring.boostRules[%d].factor %.3f must be > 0", i, rule.Factor))
		}
	}
	if cfg.Scoring.SearchOverfetch <= 0 {
		errs = append(errs, fmt.Errorf("scoring.searchOverfetch %.3f must be > 0", cfg.Scoring.SearchOverfetch))
	}

	if cfg.Staleness.FreshThreshold >= cfg.Staleness.StaleThreshold {
		errs = append(errs, fmt.Errorf("staleness.freshThreshold (%.3f) must be < staleness.staleThreshold (%.3f)",
			cfg.Staleness.FreshThreshold, cfg.Staleness.StaleThreshold))
	}

	if cfg.Detection.SuggestionThreshold >= cfg.Detection.AutoApproveThreshold {
		errs = append(errs, fmt.Errorf("detection.suggestionThreshold (%.3f) must be < detection.autoApproveThreshold (%.3f)",
			cfg.Detection.SuggestionThreshold, cfg.Detection.AutoApproveThreshold))
	}
	if cfg.Detection.QueueCapacity < 0 {
		errs = append(errs, fmt.Errorf("detection.queueCapacity %d must be non-negative", cfg.Detection.QueueCapacity))
	}

	if cfg.ContextCache.MaxEntries < 0 {
		errs = append(errs, fmt.Errorf("contextCache.maxEntries %d must be non-negative", cfg.ContextCache.MaxEntries))
	}

	return errors.Join(errs...)
}

var knownEmbeddingProviders = []string{"local-tei", "openai", "nomic", "voyage", "ollama", "transformers"}

func validEmbeddingProvider(name string) bool {
	for _, p := range knownEmbeddingProviders {
		if p == name {
			return true
		}
	}
	return false
}
