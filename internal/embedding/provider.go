// Package embedding defines the pluggable text-embedding provider used by
// dedup.semantic (spec.md §4.E), with OpenAI and Gemini implementations
// selected by ZI_EMBEDDING_PROVIDER, mirroring the reference engine's
// multi-backend LLM client selection in internal/llm.
package embedding

import "context"

// Provider embeds a batch of texts into fixed-dimension vectors.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Cache is the optional text->vector lookup layer (qdrantcache.Cache or an
// in-process map) consulted before calling a Provider.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Put(ctx context.Context, key string, vector []float32) error
}

// CachedProvider wraps a Provider with a Cache, embedding only the texts
// that miss.
type CachedProvider struct {
	Provider Provider
	Cache    Cache
}

func (c CachedProvider) Dimension() int { return c.Provider.Dimension() }

func (c CachedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if c.Cache == nil {
		return c.Provider.Embed(ctx, texts)
	}

	out := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int
	for i, t := range texts {
		v, ok, err := c.Cache.Get(ctx, t)
		if err != nil {
			return nil, err
		}
		if ok {
			out[i] = v
			continue
		}
		missTexts = append(missTexts, t)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.Provider.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for i, v := range vecs {
		idx := missIdx[i]
		out[idx] = v
		if err := c.Cache.Put(ctx, missTexts[i], v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// MapCache is the in-process fallback used when no external cache backend
// is configured.
type MapCache struct {
	m map[string][]float32
}

func NewMapCache() *MapCache {
	return &MapCache{m: map[string][]float32{}}
}

func (c *MapCache) Get(_ context.Context, key string) ([]float32, bool, error) {
	v, ok := c.m[key]
	return v, ok, nil
}

func (c *MapCache) Put(_ context.Context, key string, vector []float32) error {
	c.m[key] = vector
	return nil
}
