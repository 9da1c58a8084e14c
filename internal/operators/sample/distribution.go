package sample

import (
	"sort"

	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
	"github.com/dunimd/zi/internal/zierr"
)

type byDistributionConfig struct {
	Path         string             `json:"path"`
	TotalCount   int                `json:"total_count"`
	Distribution map[string]float64 `json:"distribution"`
	Seed         uint64             `json:"seed"`
}

// newByDistributionFactory builds sample.by_distribution: allocates
// total_count across groups matching a target distribution (normalized to
// sum 1), then deterministically samples each group's share.
func newByDistributionFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg byDistributionConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.Path == "" {
			return nil, zierr.Validation("sample.by_distribution requires a path")
		}
		if len(cfg.Distribution) == 0 {
			return nil, zierr.Validation("sample.by_distribution requires a non-empty distribution")
		}
		path, err := record.ParseFieldPath(cfg.Path)
		if err != nil {
			return nil, err
		}
		return byDistributionOperator{path: path, cfg: cfg}, nil
	}
}

type byDistributionOperator struct {
	path record.FieldPath
	cfg  byDistributionConfig
}

func (byDistributionOperator) Name() string { return "sample.by_distribution" }

func (o byDistributionOperator) Apply(batch record.Batch) (record.Batch, error) {
	groups := map[string][]int{}
	for i, r := range batch {
		key := "<missing>"
		if v, ok := o.path.Resolve(r); ok {
			key = groupKeyString(v)
		}
		groups[key] = append(groups[key], i)
	}

	var total float64
	for _, w := range o.cfg.Distribution {
		total += w
	}
	if total <= 0 {
		return record.Batch{}, nil
	}

	keys := make([]string, 0, len(o.cfg.Distribution))
	for k := range o.cfg.Distribution {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out record.Batch
	for _, k := range keys {
		share := o.cfg.Distribution[k] / total
		n := int(float64(o.cfg.TotalCount) * share)
		idxs := groups[k]
		if n > len(idxs) {
			n = len(idxs)
		}
		sort.Slice(idxs, func(a, b int) bool {
			return stableRecordHash(o.cfg.Seed, idxs[a]) > stableRecordHash(o.cfg.Seed, idxs[b])
		})
		for i := 0; i < n; i++ {
			out = append(out, batch[idxs[i]])
		}
	}
	return out, nil
}

type byLengthConfig struct {
	Path  string `json:"path"`
	Min   *int   `json:"min"`
	Max   *int   `json:"max"`
	Count int    `json:"count"`
}

// newByLengthFactory builds sample.by_length: filters records by payload
// character length then caps to count.
func newByLengthFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg byLengthConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.Path == "" {
			return nil, zierr.Validation("sample.by_length requires a path")
		}
		path, err := record.ParseFieldPath(cfg.Path)
		if err != nil {
			return nil, err
		}
		return byLengthOperator{path: path, cfg: cfg}, nil
	}
}

type byLengthOperator struct {
	path record.FieldPath
	cfg  byLengthConfig
}

func (byLengthOperator) Name() string { return "sample.by_length" }

func (o byLengthOperator) Apply(batch record.Batch) (record.Batch, error) {
	var out record.Batch
	for _, r := range batch {
		v, ok := o.path.Resolve(r)
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		n := len([]rune(s))
		if o.cfg.Min != nil && n < *o.cfg.Min {
			continue
		}
		if o.cfg.Max != nil && n > *o.cfg.Max {
			continue
		}
		out = append(out, r)
		if o.cfg.Count > 0 && len(out) >= o.cfg.Count {
			break
		}
	}
	return out, nil
}

type stratifiedConfig struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
	Seed  uint64 `json:"seed"`
}

// newStratifiedFactory builds sample.stratified: allocates count
// proportionally across groups by their share of the input batch.
func newStratifiedFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg stratifiedConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.Path == "" {
			return nil, zierr.Validation("sample.stratified requires a path")
		}
		path, err := record.ParseFieldPath(cfg.Path)
		if err != nil {
			return nil, err
		}
		return stratifiedOperator{path: path, cfg: cfg}, nil
	}
}

type stratifiedOperator struct {
	path record.FieldPath
	cfg  stratifiedConfig
}

func (stratifiedOperator) Name() string { return "sample.stratified" }

func (o stratifiedOperator) Apply(batch record.Batch) (record.Batch, error) {
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
	sort.Strings(keys)

	total := len(batch)
	if total == 0 {
		return batch, nil
	}

	var out record.Batch
	for _, k := range keys {
		idxs := groups[k]
		share := float64(len(idxs)) / float64(total)
		n := int(float64(o.cfg.Count) * share)
		if n > len(idxs) {
			n = len(idxs)
		}
		sort.Slice(idxs, func(a, b int) bool {
			return stableRecordHash(o.cfg.Seed, idxs[a]) > stableRecordHash(o.cfg.Seed, idxs[b])
		})
		for i := 0; i < n; i++ {
			out = append(out, batch[idxs[i]])
		}
	}
	return out, nil
}
