package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// CacheStore is the persistence surface a [CachedProvider] needs. pkg/relstore's
// embedding-cache table satisfies it through an adapter in cmd/doclea that
// translates between [CacheEntry] and memory.EmbeddingCacheEntry.
type CacheStore interface {
	GetEmbeddingCache(ctx context.Context, contentHash, model string) (*CacheEntry, error)
	PutEmbeddingCache(ctx context.Context, e *CacheEntry) error
}

// CacheEntry mirrors memory.EmbeddingCacheEntry without importing pkg/memory,
// keeping this package's dependency surface shallow.
type CacheEntry struct {
	ContentHash string
	Embedding   []float32
	Model       string
	CreatedAt   time.Time
}

// CachedProvider wraps any [Provider] with a keyed cache on
// (contentHash, model), persisted via [CacheStore]. It never changes the
// wrapped provider's declared Dimensions/ModelID/Name.
type CachedProvider struct {
	inner Provider
	store CacheStore
	now   func() time.Time
}

var _ Provider = (*CachedProvider)(nil)

// NewCachedProvider wraps inner with a content-hash cache backed by store.
func NewCachedProvider(inner Provider, store CacheStore) *CachedProvider {
	return &CachedProvider{inner: inner, store: store, now: time.Now}
}

// ContentHash returns the content half of the cache key for a piece of
// text; the model ID is the other half. Exported so callers constructing cache entries directly (e.g.
// import/reembed flows) use the exact same hash.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func (c *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	model := c.inner.ModelID()
	hash := ContentHash(text)
	if entry, err := c.store.GetEmbeddingCache(ctx, hash, model); err == nil && entry != nil {
		return entry.Embedding, nil
	}
	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	_ = c.store.PutEmbeddingCache(ctx, &CacheEntry{
		ContentHash: hash,
		Embedding:   v,
		Model:       model,
		CreatedAt:   c.now(),
	})
	return v, nil
}

func (c *CachedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	model := c.inner.ModelID()
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, t := range texts {
		hash := ContentHash(t)
		entry, err := c.store.GetEmbeddingCache(ctx, hash, model)
		if err == nil && entry != nil {
			out[i] = entry.Embedding
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("embedding: cache: expected %d embeddings, got %d", len(missTexts), len(vecs))
	}
	for j, idx := range missIdx {
		out[idx] = vecs[j]
		_ = c.store.PutEmbeddingCache(ctx, &CacheEntry{
			ContentHash: ContentHash(missTexts[j]),
			Embedding:   vecs[j],
			Model:       model,
			CreatedAt:   c.now(),
		})
	}
	return out, nil
}

func (c *CachedProvider) Dimensions() int { return c.inner.Dimensions() }
func (c *CachedProvider) ModelID() string { return c.inner.ModelID() }
func (c *CachedProvider) Name() string    { return c.inner.Name() }
