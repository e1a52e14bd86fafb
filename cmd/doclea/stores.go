package main

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/docleaai/doclea/internal/config"
	"github.com/docleaai/doclea/internal/resilience"
	"github.com/docleaai/doclea/pkg/embedding"
	"github.com/docleaai/doclea/pkg/embedding/localtei"
	"github.com/docleaai/doclea/pkg/embedding/nomic"
	"github.com/docleaai/doclea/pkg/embedding/ollama"
	"github.com/docleaai/doclea/pkg/embedding/openai"
	"github.com/docleaai/doclea/pkg/embedding/transformers"
	"github.com/docleaai/doclea/pkg/embedding/voyage"
	"github.com/docleaai/doclea/pkg/graphrag"
	"github.com/docleaai/doclea/pkg/memory"
	"github.com/docleaai/doclea/pkg/relstore"
	"github.com/docleaai/doclea/pkg/relstore/postgres"
	"github.com/docleaai/doclea/pkg/relstore/sqlite"
	"github.com/docleaai/doclea/pkg/vectorstore"
	"github.com/docleaai/doclea/pkg/vectorstore/embedded"
	"github.com/docleaai/doclea/pkg/vectorstore/weaviate"
)

// relationalStore is the union of store interfaces a single relational
// handle must satisfy, whichever backend config.StorageConfig.Backend
// selects. Both *sqlite.Store and *postgres.Store implement it.
type relationalStore interface {
	memory.MemoryStore
	memory.DocumentStore
	memory.CodeGraphStore
	memory.GraphRAGStore
}

// app bundles every backend the CLI subcommands need, built once from a
// loaded [config.Config]. Stores.Memories/.Documents/.CodeGraph are all the
// same relationalStore: one relational handle backs every logical store the
// spec separates, the same single-connection-pool shape
// pkg/relstore/sqlite/schema.go's Open documents for its WAL writer.
type app struct {
	cfg        *config.Config
	relDB      relationalStore
	migrator   *relstore.Migrator
	vectors    vectorstore.Store
	embedder   embedding.Provider
	graphrag   *graphrag.Engine
	closeFns   []func() error
	projectDir string
}

func (a *app) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		_ = a.closeFns[i]()
	}
}

// openApp wires every backend named in cfg against projectDir, running
// pending relational migrations as part of startup (spec.md §4.C: schema
// migration happens before any other store access).
func openApp(ctx context.Context, projectDir string, cfg *config.Config) (*app, error) {
	dataDir := filepath.Join(projectDir, ".doclea")

	relDB, migrator, closeDB, err := openRelationalStore(ctx, projectDir, dataDir, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open relational store: %w", err)
	}

	a := &app{cfg: cfg, relDB: relDB, migrator: migrator, projectDir: projectDir}
	a.closeFns = append(a.closeFns, closeDB)

	vectors, closeVectors, err := openVectorStore(ctx, dataDir, cfg.Vector)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	if closeVectors != nil {
		a.closeFns = append(a.closeFns, closeVectors)
	}
	// Wrap the vector store in a circuit breaker so a flapping backend (a
	// remote Weaviate instance in particular) trips open instead of
	// blocking every RAG/KAG/GraphRAG leg on a hung connection, per
	// spec.md §5 ("each external-service call has an independent
	// timeout") and §7's StoreUnavailable handling.
	a.vectors = resilience.NewVectorStoreFallback(vectors, string(cfg.Vector.Provider)+":vectorstore", resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{Name: "vectorstore:" + string(cfg.Vector.Provider)},
	})

	embedder, err := openEmbeddingProvider(cfg.Embedding, embeddingCacheAdapter{relDB})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build embedding provider: %w", err)
	}
	// Same treatment for the embedding provider: a remote embedding
	// backend (openai/nomic/voyage/local-tei) that starts timing out or
	// returning 5xx trips its breaker rather than stalling every store/
	// search call, surfacing as embedding.EmbedFailure per spec.md §7.
	a.embedder = resilience.NewEmbeddingFallback(embedder, cfg.Embedding.Provider, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{Name: "embedding:" + cfg.Embedding.Provider},
	})

	a.graphrag = graphrag.New(relDB, relDB, a.vectors, a.embedder)

	return a, nil
}

// openRelationalStore opens the backend named by cfg.Backend, returning a
// relationalStore wrapping either *sqlite.Store or *postgres.Store behind
// the same interface so callers never branch on the backend again.
func openRelationalStore(ctx context.Context, projectDir, dataDir string, cfg config.StorageConfig) (relationalStore, *relstore.Migrator, func() error, error) {
	switch cfg.Backend {
	case config.StorageBackendPostgres:
		db, migrator, err := postgres.Open(ctx, cfg.DSN, dataDir)
		if err != nil {
			return nil, nil, nil, err
		}
		return postgres.New(db), migrator, db.Close, nil
	case config.StorageBackendSQLite, "":
		dbPath := cfg.DBPath
		if dbPath == "" {
			dbPath = filepath.Join(dataDir, "doclea.db")
		} else if !filepath.IsAbs(dbPath) {
			dbPath = filepath.Join(projectDir, dbPath)
		}
		db, migrator, err := sqlite.Open(ctx, dbPath, dataDir)
		if err != nil {
			return nil, nil, nil, err
		}
		return sqlite.New(db), migrator, db.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("storage.backend %q is not recognized", cfg.Backend)
	}
}

func openVectorStore(ctx context.Context, dataDir string, cfg config.VectorConfig) (vectorstore.Store, func() error, error) {
	dims := cfg.VectorSize
	if dims <= 0 {
		dims = 64
	}

	switch cfg.Provider {
	case config.VectorProviderRemote:
		u, err := url.Parse(cfg.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("vector.url %q: %w", cfg.URL, err)
		}
		class := cfg.CollectionName
		if class == "" {
			class = "DocleaMemory"
		}
		store, err := weaviate.Open(ctx, u.Scheme, u.Host, class, dims)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	case config.VectorProviderEmbedded, "":
		path := cfg.DBPath
		if path == "" {
			path = filepath.Join(dataDir, "vectors.db")
		}
		store, err := embedded.Open(ctx, path, dims)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("vector.provider %q is not recognized", cfg.Provider)
	}
}

// openEmbeddingProvider builds the configured adapter and wraps it in
// [embedding.NewCachedProvider] backed by the relational store's
// content-hash cache table — every adapter shares that cache, the same way
// pkg/relstore/sqlite/documents.go's embedding_cache table is schema'd for
// any (contentHash, model) pair regardless of provider.
func openEmbeddingProvider(cfg config.EmbeddingConfig, cache embedding.CacheStore) (embedding.Provider, error) {
	var (
		p   embedding.Provider
		err error
	)
	switch cfg.Provider {
	case "openai":
		p, err = openai.New(cfg.APIKey, cfg.Model)
	case "ollama":
		p, err = ollama.New(cfg.Endpoint, cfg.Model)
	case "nomic":
		p, err = nomic.New(cfg.APIKey, cfg.Endpoint, cfg.Model)
	case "voyage":
		p, err = voyage.New(cfg.APIKey, cfg.Endpoint, cfg.Model)
	case "local-tei":
		p, err = localtei.New(cfg.Endpoint, cfg.Model)
	case "transformers":
		p, err = transformers.New(cfg.Endpoint, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("embedding.provider %q is not recognized", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return embedding.NewCachedProvider(p, cache), nil
}

// embeddingCacheAdapter satisfies [embedding.CacheStore] over
// [memory.DocumentStore]'s embedding-cache methods: the two interfaces
// describe the same table with independently-named entry types
// (pkg/embedding avoids importing pkg/memory to keep its dependency
// surface shallow), so this is a field-for-field translation, not new
// behavior.
type embeddingCacheAdapter struct {
	store memory.DocumentStore
}

func (a embeddingCacheAdapter) GetEmbeddingCache(ctx context.Context, contentHash, model string) (*embedding.CacheEntry, error) {
	e, err := a.store.GetEmbeddingCache(ctx, contentHash, model)
	if err != nil || e == nil {
		return nil, err
	}
	return &embedding.CacheEntry{ContentHash: e.ContentHash, Embedding: e.Embedding, Model: e.Model, CreatedAt: e.CreatedAt}, nil
}

func (a embeddingCacheAdapter) PutEmbeddingCache(ctx context.Context, e *embedding.CacheEntry) error {
	return a.store.PutEmbeddingCache(ctx, &memory.EmbeddingCacheEntry{
		ContentHash: e.ContentHash,
		Embedding:   e.Embedding,
		Model:       e.Model,
		CreatedAt:   e.CreatedAt,
	})
}
