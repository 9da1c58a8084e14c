package sample

import (
	"sort"

	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
	"github.com/dunimd/zi/internal/zierr"
)

type balancedConfig struct {
	Path     string `json:"path"`
	Strategy string `json:"strategy"` // undersample | oversample | hybrid
	Seed     uint64 `json:"seed"`
}

// newBalancedFactory builds sample.balanced: equalizes class counts
// extracted from path by undersampling majority classes, oversampling
// minority classes (duplicating records), or a hybrid (equalize toward the
// median class size).
func newBalancedFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg balancedConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.Path == "" {
			return nil, zierr.Validation("sample.balanced requires a path")
		}
		path, err := record.ParseFieldPath(cfg.Path)
		if err != nil {
			return nil, err
		}
		strategy := cfg.Strategy
		if strategy == "" {
			strategy = "undersample"
		}
		switch strategy {
		case "undersample", "oversample", "hybrid":
		default:
			return nil, zierr.Validation("sample.balanced: unknown strategy %q", strategy)
		}
		return balancedOperator{path: path, strategy: strategy, seed: cfg.Seed}, nil
	}
}

type balancedOperator struct {
	path     record.FieldPath
	strategy string
	seed     uint64
}

func (balancedOperator) Name() string { return "sample.balanced" }

func (o balancedOperator) Apply(batch record.Batch) (record.Batch, error) {
	groups := map[string][]int{}
	var keys []string
	for i, r := range batch {
		key := "<missing>"
		if v, ok := o.path.Resolve(r); ok {
			key = groupKeyString(v)
		}
		if _, seen := groups[key]; !seen {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], i)
	}
	if len(groups) == 0 {
		return batch, nil
	}
	sort.Strings(keys)

	sizes := make([]int, 0, len(groups))
	for _, k := range keys {
		sizes = append(sizes, len(groups[k]))
	}
	sort.Ints(sizes)

	var target int
	switch o.strategy {
	case "undersample":
		target = sizes[0]
	case "oversample":
		target = sizes[len(sizes)-1]
	default: // hybrid: equalize toward the median
		target = sizes[len(sizes)/2]
	}

	var out record.Batch
	for _, k := range keys {
		idxs := groups[k]
		sort.Slice(idxs, func(a, b int) bool {
			return stableRecordHash(o.seed, idxs[a]) > stableRecordHash(o.seed, idxs[b])
		})
		if len(idxs) >= target {
			for i := 0; i < target; i++ {
				out = append(out, batch[idxs[i]])
			}
			continue
		}
		// Oversample by cycling through the group's records.
		for i := 0; i < target; i++ {
			out = append(out, batch[idxs[i%len(idxs)]])
		}
	}
	return out, nil
}
