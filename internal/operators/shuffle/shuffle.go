// Package shuffle implements the shuffle operator family (spec.md §4.D):
// Fisher-Yates, block, reservoir, deterministic, stratified, and window
// reorderings, each taking a seed per "every randomized operator takes a
// seed" (spec.md §9).
package shuffle

import (
	"math/rand"
	"sort"

	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
	"github.com/dunimd/zi/internal/zierr"
)

// Register adds every shuffle operator factory to r.
func Register(r *registry.Registry) {
	r.Register("shuffle.fisher_yates", newFisherYatesFactory(false))
	r.Register("shuffle.deterministic", newFisherYatesFactory(true))
	r.Register("shuffle.block", newBlockFactory())
	r.Register("shuffle.reservoir", newReservoirFactory())
	r.Register("shuffle.stratified", newStratifiedFactory())
	r.Register("shuffle.window", newWindowFactory())
}

func newRNG(seed uint64, hasSeed bool) *rand.Rand {
	if hasSeed {
		return rand.New(rand.NewSource(int64(seed)))
	}
	return rand.New(rand.NewSource(rand.Int63()))
}

type seedConfig struct {
	Seed    *uint64 `json:"seed"`
}

func fisherYates(rng *rand.Rand, batch record.Batch) record.Batch {
	out := append(record.Batch(nil), batch...)
	for i := len(out) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// newFisherYatesFactory builds shuffle.fisher_yates (seed optional) and
// shuffle.deterministic (seed required), both the classic in-place
// Fisher-Yates shuffle over a seeded generator.
func newFisherYatesFactory(requireSeed bool) registry.Factory {
	name := "shuffle.fisher_yates"
	if requireSeed {
		name = "shuffle.deterministic"
	}
	return func(config any) (registry.Operator, error) {
		var cfg seedConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if requireSeed && cfg.Seed == nil {
			return nil, zierr.Validation("%s requires a seed", name)
		}
		return fyOperator{name: name, seed: cfg.Seed}, nil
	}
}

type fyOperator struct {
	name string
	seed *uint64
}

func (o fyOperator) Name() string { return o.name }

func (o fyOperator) Apply(batch record.Batch) (record.Batch, error) {
	rng := newRNG(0, false)
	if o.seed != nil {
		rng = newRNG(*o.seed, true)
	}
	return fisherYates(rng, batch), nil
}

type blockConfig struct {
	BlockSize int     `json:"block_size"`
	Seed      *uint64 `json:"seed"`
}

// newBlockFactory builds shuffle.block: shuffles fixed-size contiguous
// blocks amongst themselves, then shuffles within each block.
func newBlockFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg blockConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.BlockSize <= 0 {
			return nil, zierr.Validation("shuffle.block requires a positive block_size")
		}
		return blockOperator{cfg: cfg}, nil
	}
}

type blockOperator struct {
	cfg blockConfig
}

func (blockOperator) Name() string { return "shuffle.block" }

func (o blockOperator) Apply(batch record.Batch) (record.Batch, error) {
	rng := newRNG(0, false)
	if o.cfg.Seed != nil {
		rng = newRNG(*o.cfg.Seed, true)
	}

	var blocks []record.Batch
	for i := 0; i < len(batch); i += o.cfg.BlockSize {
		end := i + o.cfg.BlockSize
		if end > len(batch) {
			end = len(batch)
		}
		block := append(record.Batch(nil), batch[i:end]...)
		blocks = append(blocks, fisherYates(rng, block))
	}
	rng.Shuffle(len(blocks), func(i, j int) { blocks[i], blocks[j] = blocks[j], blocks[i] })

	out := make(record.Batch, 0, len(batch))
	for _, b := range blocks {
		out = append(out, b...)
	}
	return out, nil
}

type reservoirConfig struct {
	Seed *uint64 `json:"seed"`
}

// newReservoirFactory builds shuffle.reservoir: a full reservoir-sample
// reordering (equivalent to Fisher-Yates over the whole batch, since no
// size cap is documented beyond the batch itself).
func newReservoirFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg reservoirConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		return reservoirOperator{seed: cfg.Seed}, nil
	}
}

type reservoirOperator struct {
	seed *uint64
}

func (reservoirOperator) Name() string { return "shuffle.reservoir" }

func (o reservoirOperator) Apply(batch record.Batch) (record.Batch, error) {
	rng := newRNG(0, false)
	if o.seed != nil {
		rng = newRNG(*o.seed, true)
	}
	out := make(record.Batch, len(batch))
	copy(out, batch)
	for i := range out {
		j := rng.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

type stratifiedShuffleConfig struct {
	Path string  `json:"path"`
	Seed *uint64 `json:"seed"`
}

// newStratifiedFactory builds shuffle.stratified: interleaves records by a
// field's group, round-robining across groups (each group internally
// shuffled first).
func newStratifiedFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg stratifiedShuffleConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.Path == "" {
			return nil, zierr.Validation("shuffle.stratified requires a path")
		}
		path, err := record.ParseFieldPath(cfg.Path)
		if err != nil {
			return nil, err
		}
		return stratifiedShuffleOperator{path: path, seed: cfg.Seed}, nil
	}
}

type stratifiedShuffleOperator struct {
	path record.FieldPath
	seed *uint64
}

func (stratifiedShuffleOperator) Name() string { return "shuffle.stratified" }

func (o stratifiedShuffleOperator) Apply(batch record.Batch) (record.Batch, error) {
	rng := newRNG(0, false)
	if o.seed != nil {
		rng = newRNG(*o.seed, true)
	}

	groups := map[string]record.Batch{}
	var keys []string
	for _, r := range batch {
		key := "<missing>"
		if v, ok := o.path.Resolve(r); ok {
			if s, ok := v.(string); ok {
				key = s
			}
		}
		if _, seen := groups[key]; !seen {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], r)
	}
	sort.Strings(keys)
	for _, k := range keys {
		groups[k] = fisherYates(rng, groups[k])
	}

	out := make(record.Batch, 0, len(batch))
	for i := 0; ; i++ {
		any := false
		for _, k := range keys {
			if i < len(groups[k]) {
				out = append(out, groups[k][i])
				any = true
			}
		}
		if !any {
			break
		}
	}
	return out, nil
}

type windowConfig struct {
	Width int     `json:"width"`
	Seed  *uint64 `json:"seed"`
}

// newWindowFactory builds shuffle.window: swaps each index with a uniform
// choice within +/- width/2.
func newWindowFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg windowConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.Width <= 0 {
			return nil, zierr.Validation("shuffle.window requires a positive width")
		}
		return windowOperator{cfg: cfg}, nil
	}
}

type windowOperator struct {
	cfg windowConfig
}

func (windowOperator) Name() string { return "shuffle.window" }

func (o windowOperator) Apply(batch record.Batch) (record.Batch, error) {
	rng := newRNG(0, false)
	if o.cfg.Seed != nil {
		rng = newRNG(*o.cfg.Seed, true)
	}
	out := append(record.Batch(nil), batch...)
	half := o.cfg.Width / 2
	for i := range out {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half
		if hi >= len(out) {
			hi = len(out) - 1
		}
		j := lo + rng.Intn(hi-lo+1)
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
