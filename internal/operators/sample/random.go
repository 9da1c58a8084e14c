package sample

import (
	"math"
	"sort"

	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
	"github.com/dunimd/zi/internal/zierr"
)

type randomConfig struct {
	Ratio       *float64 `json:"ratio"`
	Count       *int     `json:"count"`
	Seed        uint64   `json:"seed"`
	WeightKey   string   `json:"weight_key"`
	GroupKey    string   `json:"group_key"`
	MinPerGroup int      `json:"min_per_group"`
}

// newRandomFactory builds sample.random: ratio- or count-based sampling
// with an optional weighted reservoir over weight_key, and an optional
// group_key stratification floor (min_per_group). Per spec.md's open
// question, when both ratio and count are supplied the larger target wins.
func newRandomFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg randomConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.Ratio == nil && cfg.Count == nil {
			return nil, zierr.Validation("sample.random requires ratio or count")
		}
		return randomOperator{cfg: cfg}, nil
	}
}

type randomOperator struct {
	cfg randomConfig
}

func (randomOperator) Name() string { return "sample.random" }

func (o randomOperator) Apply(batch record.Batch) (record.Batch, error) {
	n := len(batch)
	if n == 0 {
		return batch, nil
	}

	target := 0
	if o.cfg.Ratio != nil {
		target = int(float64(n) * (*o.cfg.Ratio))
	}
	if o.cfg.Count != nil && *o.cfg.Count > target {
		target = *o.cfg.Count
	}
	if target >= n {
		return batch, nil
	}
	if target <= 0 {
		return record.Batch{}, nil
	}

	if o.cfg.GroupKey != "" {
		return o.sampleWithGroups(batch, target)
	}

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, n)
	for i, r := range batch {
		w := 1.0
		if o.cfg.WeightKey != "" {
			if path, err := record.ParseFieldPath("metadata." + o.cfg.WeightKey); err == nil {
				if v, ok := path.Resolve(r); ok {
					if wv, ok := asNumber(v); ok && wv > 0 {
						w = wv
					}
				}
			}
		}
		h := stableRecordHash(o.cfg.Seed, i)
		// Key-raising weighted reservoir: key = u^(1/w); larger keys win.
		key := keyRaise(h, w)
		scores[i] = scored{idx: i, score: key}
	}
	sort.Slice(scores, func(a, b int) bool { return scores[a].score > scores[b].score })
	selected := make(map[int]bool, target)
	for i := 0; i < target; i++ {
		selected[scores[i].idx] = true
	}

	out := make(record.Batch, 0, target)
	for i, r := range batch {
		if selected[i] {
			out = append(out, r)
		}
	}
	return out, nil
}

// sampleWithGroups applies a per-group minimum floor (min_per_group) before
// filling the remaining budget with the regular weighted-reservoir pass
// over whatever records were not already taken for their group's floor.
func (o randomOperator) sampleWithGroups(batch record.Batch, target int) (record.Batch, error) {
	groupPath, err := record.ParseFieldPath("metadata." + o.cfg.GroupKey)
	if err != nil {
		return nil, err
	}

	groups := map[string][]int{}
	for i, r := range batch {
		key := "<ungrouped>"
		if v, ok := groupPath.Resolve(r); ok {
			key = groupKeyString(v)
		}
		groups[key] = append(groups[key], i)
	}

	taken := map[int]bool{}
	if o.cfg.MinPerGroup > 0 {
		keys := make([]string, 0, len(groups))
		for k := range groups {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			idxs := groups[k]
			sort.Slice(idxs, func(a, b int) bool {
				return stableRecordHash(o.cfg.Seed, idxs[a]) > stableRecordHash(o.cfg.Seed, idxs[b])
			})
			floor := o.cfg.MinPerGroup
			if floor > len(idxs) {
				floor = len(idxs)
			}
			for i := 0; i < floor && len(taken) < target; i++ {
				taken[idxs[i]] = true
			}
		}
	}

	type scored struct {
		idx   int
		score float64
	}
	var remaining []scored
	for i := range batch {
		if taken[i] {
			continue
		}
		w := 1.0
		if o.cfg.WeightKey != "" {
			if path, err := record.ParseFieldPath("metadata." + o.cfg.WeightKey); err == nil {
				if v, ok := path.Resolve(batch[i]); ok {
					if wv, ok := asNumber(v); ok && wv > 0 {
						w = wv
					}
				}
			}
		}
		remaining = append(remaining, scored{idx: i, score: keyRaise(stableRecordHash(o.cfg.Seed, i), w)})
	}
	sort.Slice(remaining, func(a, b int) bool { return remaining[a].score > remaining[b].score })
	for _, s := range remaining {
		if len(taken) >= target {
			break
		}
		taken[s.idx] = true
	}

	out := make(record.Batch, 0, target)
	for i, r := range batch {
		if taken[i] {
			out = append(out, r)
		}
	}
	return out, nil
}

// keyRaise implements the key-raising weighted reservoir transform:
// key = u^(1/w); a larger weight pushes the key closer to 1, biasing
// selection toward heavier records while staying deterministic given u.
func keyRaise(u, w float64) float64 {
	if u <= 0 {
		u = 1e-12
	}
	if w <= 0 {
		w = 1e-6
	}
	return math.Pow(u, 1.0/w)
}
