package sample

import (
	"sort"

	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
	"github.com/dunimd/zi/internal/zierr"
)

type topConfig struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// newTopFactory builds sample.top: keeps the Count records with the
// highest numeric metadata[Key], descending, stable on ties.
func newTopFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg topConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.Key == "" {
			return nil, zierr.Validation("sample.top requires a key")
		}
		path, err := record.ParseFieldPath("metadata." + cfg.Key)
		if err != nil {
			return nil, err
		}
		return topOperator{path: path, count: cfg.Count}, nil
	}
}

type topOperator struct {
	path  record.FieldPath
	count int
}

func (topOperator) Name() string { return "sample.top" }

func (o topOperator) Apply(batch record.Batch) (record.Batch, error) {
	type scored struct {
		idx   int
		value float64
	}
	scores := make([]scored, len(batch))
	for i, r := range batch {
		v := 0.0
		if raw, ok := o.path.Resolve(r); ok {
			if n, ok := asNumber(raw); ok {
				v = n
			}
		}
		scores[i] = scored{idx: i, value: v}
	}
	sort.SliceStable(scores, func(a, b int) bool { return scores[a].value > scores[b].value })
	n := o.count
	if n > len(scores) {
		n = len(scores)
	}
	out := make(record.Batch, n)
	for i := 0; i < n; i++ {
		out[i] = batch[scores[i].idx]
	}
	return out, nil
}
