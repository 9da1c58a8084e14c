// Package token implements spec.md §4.M's token.* operator family: counting,
// distribution statistics, range filtering, and bucketed histograms over the
// shared internal/tokencount tokenizer dispatch.
package token

import (
	"strconv"

	"github.com/dunimd/zi/internal/metrics"
	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
	"github.com/dunimd/zi/internal/tokencount"
	"github.com/dunimd/zi/internal/zierr"
)

// Register adds every token.* operator factory to r.
func Register(r *registry.Registry) {
	r.Register("token.count", newCountFactory())
	r.Register("token.stats", newStatsFactory())
	r.Register("token.filter", newFilterFactory())
	r.Register("token.histogram", newHistogramFactory())
}

type tokenizerConfig struct {
	Path   string `json:"path"`
	Kind   string `json:"kind"`
	Model  string `json:"model"`
	Target string `json:"target"`
}

func resolveTokenizerConfig(cfg tokenizerConfig, defaultTarget string) (record.FieldPath, record.FieldPath, tokencount.Tokenizer, error) {
	if cfg.Path == "" {
		return record.FieldPath{}, record.FieldPath{}, nil, zierr.Validation("token operator requires a path")
	}
	path, err := record.ParseFieldPath(cfg.Path)
	if err != nil {
		return record.FieldPath{}, record.FieldPath{}, nil, err
	}
	target := cfg.Target
	if target == "" {
		target = defaultTarget
	}
	targetPath, err := record.ParseFieldPath(target)
	if err != nil {
		return record.FieldPath{}, record.FieldPath{}, nil, err
	}
	kind := tokencount.Kind(cfg.Kind)
	tok := tokencount.ForKind(kind, cfg.Model)
	return path, targetPath, tok, nil
}

func textOf(path record.FieldPath, r record.Record) (string, bool) {
	v, ok := path.Resolve(r)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// --- token.count ---

type countConfig struct {
	tokenizerConfig
}

func newCountFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg countConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		path, target, tok, err := resolveTokenizerConfig(cfg.tokenizerConfig, "metadata.token_count")
		if err != nil {
			return nil, err
		}
		return countOperator{path: path, target: target, tok: tok}, nil
	}
}

type countOperator struct {
	path   record.FieldPath
	target record.FieldPath
	tok    tokencount.Tokenizer
}

func (countOperator) Name() string { return "token.count" }

func (o countOperator) Apply(batch record.Batch) (record.Batch, error) {
	out := make(record.Batch, len(batch))
	for i, r := range batch {
		text, _ := textOf(o.path, r)
		count := o.tok.Count(text)
		o.target.SetValue(&r, count)
		out[i] = r
	}
	return out, nil
}

// --- token.stats ---

type statsConfig struct {
	tokenizerConfig
}

func newStatsFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg statsConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		path, target, tok, err := resolveTokenizerConfig(cfg.tokenizerConfig, "metadata.token_stats")
		if err != nil {
			return nil, err
		}
		return statsOperator{path: path, target: target, tok: tok}, nil
	}
}

type statsOperator struct {
	path   record.FieldPath
	target record.FieldPath
	tok    tokencount.Tokenizer
}

func (statsOperator) Name() string { return "token.stats" }

func (o statsOperator) Apply(batch record.Batch) (record.Batch, error) {
	if len(batch) == 0 {
		return batch, nil
	}
	counts := make([]float64, len(batch))
	var total float64
	for i, r := range batch {
		text, _ := textOf(o.path, r)
		c := o.tok.Count(text)
		counts[i] = float64(c)
		total += float64(c)
	}
	summary := metrics.FromSlice(counts)

	out := make(record.Batch, len(batch))
	copy(out, batch)
	stats := map[string]any{
		"total":  total,
		"min":    summary.Min,
		"max":    summary.Max,
		"mean":   summary.Mean,
		"median": summary.Median,
		"p25":    summary.P25,
		"p75":    summary.P75,
		"p95":    summary.P95,
		"p99":    summary.P99,
	}
	o.target.SetValue(&out[0], stats)
	return out, nil
}

// --- token.filter ---

type filterConfig struct {
	tokenizerConfig
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
}

func newFilterFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg filterConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.Min == nil && cfg.Max == nil {
			return nil, zierr.Validation("token.filter requires min or max")
		}
		path, _, tok, err := resolveTokenizerConfig(cfg.tokenizerConfig, "metadata.token_count")
		if err != nil {
			return nil, err
		}
		return filterOperator{path: path, tok: tok, min: cfg.Min, max: cfg.Max}, nil
	}
}

type filterOperator struct {
	path record.FieldPath
	tok  tokencount.Tokenizer
	min  *float64
	max  *float64
}

func (filterOperator) Name() string { return "token.filter" }

func (o filterOperator) Apply(batch record.Batch) (record.Batch, error) {
	out := make(record.Batch, 0, len(batch))
	for _, r := range batch {
		text, _ := textOf(o.path, r)
		count := float64(o.tok.Count(text))
		if o.min != nil && count < *o.min {
			continue
		}
		if o.max != nil && count > *o.max {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// --- token.histogram ---

type histogramConfig struct {
	tokenizerConfig
	BucketSize int `json:"bucket_size"`
}

func newHistogramFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg histogramConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.BucketSize <= 0 {
			cfg.BucketSize = 10
		}
		path, target, tok, err := resolveTokenizerConfig(cfg.tokenizerConfig, "metadata.token_histogram")
		if err != nil {
			return nil, err
		}
		return histogramOperator{path: path, target: target, tok: tok, bucketSize: cfg.BucketSize}, nil
	}
}

type histogramOperator struct {
	path       record.FieldPath
	target     record.FieldPath
	tok        tokencount.Tokenizer
	bucketSize int
}

func (histogramOperator) Name() string { return "token.histogram" }

func (o histogramOperator) Apply(batch record.Batch) (record.Batch, error) {
	if len(batch) == 0 {
		return batch, nil
	}
	histogram := map[string]int{}
	for _, r := range batch {
		text, _ := textOf(o.path, r)
		count := o.tok.Count(text)
		bucket := count / o.bucketSize
		key := bucketKey(bucket)
		histogram[key]++
	}

	out := make(record.Batch, len(batch))
	copy(out, batch)
	hist := make(map[string]any, len(histogram))
	for k, v := range histogram {
		hist[k] = v
	}
	o.target.SetValue(&out[0], hist)
	return out, nil
}

func bucketKey(bucket int) string {
	return strconv.Itoa(bucket)
}
