package dedup

import (
	"context"
	"math"
	"strconv"

	"github.com/dunimd/zi/internal/embedding"
	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
)

type semanticConfig struct {
	Path       string  `json:"path"`
	Threshold  float64 `json:"threshold"`
	DetailsKey string  `json:"details_key"`
	MaxMatches int     `json:"max_matches"`

	Provider  string `json:"provider"` // "openai" | "gemini" | "" (falls back to tfidf)
	APIKey    string `json:"api_key"`
	Model     string `json:"model"`
	Dimension int    `json:"dimension"`
}

// newSemanticFactory builds dedup.semantic: cosine similarity over
// embedding-provider vectors when a provider is configured, falling back to
// TF-IDF vectors (the same comparison loop runVectorDedup shares with
// dedup.tfidf) when it is not, per spec.md §4.E.
func newSemanticFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg semanticConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		path, err := pathFrom(cfg.Path)
		if err != nil {
			return nil, err
		}
		if cfg.MaxMatches <= 0 {
			cfg.MaxMatches = 5
		}

		var provider embedding.Provider
		switch cfg.Provider {
		case "openai":
			dim := cfg.Dimension
			if dim <= 0 {
				dim = 1536
			}
			provider = embedding.NewOpenAIProvider(cfg.APIKey, cfg.Model, dim)
		case "gemini":
			dim := cfg.Dimension
			if dim <= 0 {
				dim = 768
			}
			p, err := embedding.NewGeminiProvider(context.Background(), cfg.APIKey, cfg.Model, dim)
			if err != nil {
				return nil, err
			}
			provider = p
		}

		return semanticOperator{path: path, cfg: cfg, provider: provider}, nil
	}
}

type semanticOperator struct {
	path     record.FieldPath
	cfg      semanticConfig
	provider embedding.Provider
}

func (semanticOperator) Name() string { return "dedup.semantic" }

func (o semanticOperator) Apply(batch record.Batch) (record.Batch, error) {
	if o.provider == nil {
		return runVectorDedup(batch, o.path, o.cfg.Threshold, o.cfg.DetailsKey, o.cfg.MaxMatches, buildTFIDFVectors)
	}
	provider := o.provider
	build := func(texts []string) []sparseVector {
		if len(texts) == 0 {
			return nil
		}
		vecs, err := provider.Embed(context.Background(), texts)
		if err != nil {
			// Embedding failure degrades to TF-IDF for this batch rather
			// than failing the whole pipeline run.
			return buildTFIDFVectors(texts)
		}
		out := make([]sparseVector, len(vecs))
		for i, v := range vecs {
			out[i] = denseToSparse(v)
		}
		return out
	}
	return runVectorDedup(batch, o.path, o.cfg.Threshold, o.cfg.DetailsKey, o.cfg.MaxMatches, build)
}

// denseToSparse adapts a dense embedding vector to the sparseVector shape
// runVectorDedup's cosine comparison expects, keyed by dimension index.
func denseToSparse(v []float32) sparseVector {
	weights := make(map[string]float64, len(v))
	var sumSq float64
	for i, f := range v {
		w := float64(f)
		weights[strconv.Itoa(i)] = w
		sumSq += w * w
	}
	return sparseVector{weights: weights, norm: math.Sqrt(sumSq)}
}
