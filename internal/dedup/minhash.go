package dedup

import (
	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
	"github.com/dunimd/zi/internal/textutil"
	"github.com/dunimd/zi/internal/zierr"
)

const minhashSaltConst uint64 = 0x9E3779B185EBCA87

// minhashSignature computes a k-element MinHash signature: for each hash
// function i, mix a per-function salt (i + the golden-ratio constant) with
// each token's hash and keep the minimum over all tokens.
func minhashSignature(tokens []string, k int) []uint64 {
	sig := make([]uint64, k)
	for i := range sig {
		sig[i] = ^uint64(0)
	}
	for _, t := range tokens {
		h := fnvHash64(t)
		for i := 0; i < k; i++ {
			salt := uint64(i) + minhashSaltConst
			mixed := mix64(h ^ salt)
			if mixed < sig[i] {
				sig[i] = mixed
			}
		}
	}
	return sig
}

// mix64 is a cheap avalanche mix (splitmix64-style finalizer) applied
// after XOR-ing a token hash with a per-function salt.
func mix64(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

// bandKey computes a rolling mix over a band's row signatures, used as the
// LSH bucket key for that band.
func bandKey(sig []uint64, start, rows int) uint64 {
	var h uint64 = 1469598103934665603
	for i := start; i < start+rows && i < len(sig); i++ {
		h ^= sig[i]
		h *= 1099511628211
	}
	return h
}

type minhashConfig struct {
	Path      string  `json:"path"`
	Threshold float64 `json:"threshold"`
	K         int     `json:"k"`
	Bands     int     `json:"bands"`
}

// newMinhashFactory builds dedup.minhash: MinHash signatures banded into
// LSH buckets for candidate generation, with a true-Jaccard confirmation
// pass over candidates.
func newMinhashFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg minhashConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		path, err := pathFrom(cfg.Path)
		if err != nil {
			return nil, err
		}
		if cfg.K <= 0 {
			return nil, zierr.Validation("dedup.minhash requires k > 0")
		}
		if cfg.Bands <= 0 {
			return nil, zierr.Validation("dedup.minhash requires bands > 0")
		}
		return minhashOperator{path: path, cfg: cfg}, nil
	}
}

type minhashOperator struct {
	path record.FieldPath
	cfg  minhashConfig
}

func (minhashOperator) Name() string { return "dedup.minhash" }

type minhashEntry struct {
	sig    []uint64
	tokens map[string]bool
}

func (o minhashOperator) Apply(batch record.Batch) (record.Batch, error) {
	rowsPerBand := (o.cfg.K + o.cfg.Bands - 1) / o.cfg.Bands
	buckets := make([]map[uint64][]int, o.cfg.Bands)
	for i := range buckets {
		buckets[i] = map[uint64][]int{}
	}

	var kept []minhashEntry
	out := make(record.Batch, 0, len(batch))
	for _, r := range batch {
		text, ok := resolveText(o.path, r)
		if !ok {
			out = append(out, r)
			continue
		}
		tokens := textutil.Tokenize(text)
		sig := minhashSignature(tokens, o.cfg.K)
		set := map[string]bool{}
		for _, t := range tokens {
			set[t] = true
		}

		candidates := map[int]bool{}
		for b := 0; b < o.cfg.Bands; b++ {
			key := bandKey(sig, b*rowsPerBand, rowsPerBand)
			for _, idx := range buckets[b][key] {
				candidates[idx] = true
			}
		}

		isDup := false
		for idx := range candidates {
			if jaccard(set, kept[idx].tokens) >= o.cfg.Threshold {
				isDup = true
				break
			}
		}
		if isDup {
			continue
		}

		newIdx := len(kept)
		kept = append(kept, minhashEntry{sig: sig, tokens: set})
		for b := 0; b < o.cfg.Bands; b++ {
			key := bandKey(sig, b*rowsPerBand, rowsPerBand)
			buckets[b][key] = append(buckets[b][key], newIdx)
		}
		out = append(out, r)
	}
	return out, nil
}
