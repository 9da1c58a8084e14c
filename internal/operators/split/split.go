// Package split implements the split operator family (spec.md §4.D):
// random/sequential/stratified train-test-style splitting, k-fold
// annotation, and fixed-size chunk annotation.
package split

import (
	"math"
	"math/rand"
	"sort"

	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
	"github.com/dunimd/zi/internal/zierr"
)

// Register adds every split.* operator factory to r.
func Register(r *registry.Registry) {
	r.Register("split.random", newRatioFactory("random"))
	r.Register("split.sequential", newRatioFactory("sequential"))
	r.Register("split.stratified", newStratifiedFactory())
	r.Register("split.kfold", newKFoldFactory())
	r.Register("split.chunk", newChunkFactory())
}

func validateRatios(ratios []float64, names []string) error {
	if len(ratios) != len(names) {
		return zierr.Validation("split: ratios and names must have the same length")
	}
	if len(ratios) == 0 {
		return zierr.Validation("split: requires at least one ratio")
	}
	var sum float64
	for _, r := range ratios {
		if r < 0 {
			return zierr.Validation("split: ratios must be non-negative")
		}
		sum += r
	}
	if math.Abs(sum-1.0) > 0.001 {
		return zierr.Validation("split: ratios must sum to 1.0 (+/- 0.001), got %f", sum)
	}
	return nil
}

type ratioConfig struct {
	Ratios []float64 `json:"ratios"`
	Names  []string  `json:"names"`
	Seed   *uint64   `json:"seed"`
}

// newRatioFactory builds split.random and split.sequential: both partition
// the batch into len(ratios) contiguous shares by count, tagging each
// record with metadata.split=name; random additionally shuffles (seeded)
// before partitioning.
func newRatioFactory(mode string) registry.Factory {
	name := "split." + mode
	return func(config any) (registry.Operator, error) {
		var cfg ratioConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if err := validateRatios(cfg.Ratios, cfg.Names); err != nil {
			return nil, err
		}
		return ratioOperator{name: name, mode: mode, cfg: cfg}, nil
	}
}

type ratioOperator struct {
	name string
	mode string
	cfg  ratioConfig
}

func (o ratioOperator) Name() string { return o.name }

func splitTarget() record.FieldPath {
	return record.MustParseFieldPath("metadata.split")
}

func (o ratioOperator) Apply(batch record.Batch) (record.Batch, error) {
	order := make([]int, len(batch))
	for i := range order {
		order[i] = i
	}
	if o.mode == "random" {
		seed := int64(0)
		if o.cfg.Seed != nil {
			seed = int64(*o.cfg.Seed)
		}
		rng := rand.New(rand.NewSource(seed))
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	counts := allocateCounts(len(batch), o.cfg.Ratios)
	target := splitTarget()

	out := make(record.Batch, len(batch))
	pos := 0
	for gi, count := range counts {
		for i := 0; i < count; i++ {
			r := batch[order[pos]]
			target.SetValue(&r, o.cfg.Names[gi])
			out[order[pos]] = r
			pos++
		}
	}
	return out, nil
}

// allocateCounts converts ratios to integer counts summing exactly to
// total, giving any rounding remainder to the largest-ratio group.
func allocateCounts(total int, ratios []float64) []int {
	counts := make([]int, len(ratios))
	assigned := 0
	for i, r := range ratios {
		counts[i] = int(float64(total) * r)
		assigned += counts[i]
	}
	remainder := total - assigned
	if remainder > 0 {
		biggest := 0
		for i, r := range ratios {
			if r > ratios[biggest] {
				biggest = i
			}
		}
		counts[biggest] += remainder
	}
	return counts
}

type stratifiedSplitConfig struct {
	Path   string    `json:"path"`
	Ratios []float64 `json:"ratios"`
	Names  []string  `json:"names"`
	Seed   *uint64   `json:"seed"`
}

// newStratifiedFactory builds split.stratified: applies the ratio
// partition independently within each class group so class proportions
// are preserved per split.
func newStratifiedFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg stratifiedSplitConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.Path == "" {
			return nil, zierr.Validation("split.stratified requires a path")
		}
		if err := validateRatios(cfg.Ratios, cfg.Names); err != nil {
			return nil, err
		}
		path, err := record.ParseFieldPath(cfg.Path)
		if err != nil {
			return nil, err
		}
		return stratifiedSplitOperator{path: path, cfg: cfg}, nil
	}
}

type stratifiedSplitOperator struct {
	path record.FieldPath
	cfg  stratifiedSplitConfig
}

func (stratifiedSplitOperator) Name() string { return "split.stratified" }

func (o stratifiedSplitOperator) Apply(batch record.Batch) (record.Batch, error) {
	groups := map[string][]int{}
	var keys []string
	for i, r := range batch {
		key := "<missing>"
		if v, ok := o.path.Resolve(r); ok {
			key = toGroupKey(v)
		}
		if _, seen := groups[key]; !seen {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], i)
	}
	sort.Strings(keys)

	seed := int64(0)
	if o.cfg.Seed != nil {
		seed = int64(*o.cfg.Seed)
	}
	rng := rand.New(rand.NewSource(seed))
	target := splitTarget()

	out := make(record.Batch, len(batch))
	for _, k := range keys {
		idxs := groups[k]
		rng.Shuffle(len(idxs), func(i, j int) { idxs[i], idxs[j] = idxs[j], idxs[i] })
		counts := allocateCounts(len(idxs), o.cfg.Ratios)
		pos := 0
		for gi, count := range counts {
			for i := 0; i < count; i++ {
				r := batch[idxs[pos]]
				target.SetValue(&r, o.cfg.Names[gi])
				out[idxs[pos]] = r
				pos++
			}
		}
	}
	return out, nil
}

func toGroupKey(v any) string {
	switch vv := v.(type) {
	case string:
		return vv
	default:
		return ""
	}
}

type kfoldConfig struct {
	K    int     `json:"k"`
	Seed *uint64 `json:"seed"`
}

// newKFoldFactory builds split.kfold: annotates each record with
// metadata.fold in [0, k).
func newKFoldFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg kfoldConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.K <= 0 {
			return nil, zierr.Validation("split.kfold requires a positive k")
		}
		return kfoldOperator{cfg: cfg}, nil
	}
}

type kfoldOperator struct {
	cfg kfoldConfig
}

func (kfoldOperator) Name() string { return "split.kfold" }

func (o kfoldOperator) Apply(batch record.Batch) (record.Batch, error) {
	order := make([]int, len(batch))
	for i := range order {
		order[i] = i
	}
	seed := int64(0)
	if o.cfg.Seed != nil {
		seed = int64(*o.cfg.Seed)
		rng := rand.New(rand.NewSource(seed))
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	fold := record.MustParseFieldPath("metadata.fold")
	out := make(record.Batch, len(batch))
	for pos, idx := range order {
		r := batch[idx]
		fold.SetValue(&r, pos%o.cfg.K)
		out[idx] = r
	}
	return out, nil
}

type chunkConfig struct {
	ChunkSize int `json:"chunk_size"`
}

// newChunkFactory builds split.chunk: annotates each record with
// metadata.chunk (its chunk index) and metadata.total_chunks.
func newChunkFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg chunkConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.ChunkSize <= 0 {
			return nil, zierr.Validation("split.chunk requires a positive chunk_size")
		}
		return chunkOperator{cfg: cfg}, nil
	}
}

type chunkOperator struct {
	cfg chunkConfig
}

func (chunkOperator) Name() string { return "split.chunk" }

func (o chunkOperator) Apply(batch record.Batch) (record.Batch, error) {
	totalChunks := (len(batch) + o.cfg.ChunkSize - 1) / o.cfg.ChunkSize
	if totalChunks == 0 {
		totalChunks = 0
	}
	chunkPath := record.MustParseFieldPath("metadata.chunk")
	totalPath := record.MustParseFieldPath("metadata.total_chunks")

	out := make(record.Batch, len(batch))
	for i, r := range batch {
		chunkPath.SetValue(&r, i/o.cfg.ChunkSize)
		totalPath.SetValue(&r, totalChunks)
		out[i] = r
	}
	return out, nil
}
