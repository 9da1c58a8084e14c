package dedup

import (
	"math/bits"

	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
	"github.com/dunimd/zi/internal/textutil"
)

// fnvHash64 is the FNV-1a 64-bit hash, the per-token hash SimHash and
// MinHash both build on.
func fnvHash64(s string) uint64 {
	const (
		offset uint64 = 14695981039346656037
		prime  uint64 = 1099511628211
	)
	h := offset
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}
	return h
}

// simhashSignature computes a 64-bit SimHash signature: per token, hash to
// 64 bits and accumulate +1/-1 per bit position by whether that bit is set;
// the signature's bits are the sign of each accumulator.
func simhashSignature(text string) uint64 {
	tokens := textutil.Tokenize(text)
	var acc [64]int
	for _, t := range tokens {
		h := fnvHash64(t)
		for b := 0; b < 64; b++ {
			if h&(1<<uint(b)) != 0 {
				acc[b]++
			} else {
				acc[b]--
			}
		}
	}
	var sig uint64
	for b := 0; b < 64; b++ {
		if acc[b] > 0 {
			sig |= 1 << uint(b)
		}
	}
	return sig
}

func simhashSimilarity(a, b uint64) float64 {
	dist := bits.OnesCount64(a ^ b)
	return 1.0 - float64(dist)/64.0
}

type simhashConfig struct {
	Path      string  `json:"path"`
	Threshold float64 `json:"threshold"`
}

// newSimhashFactory builds dedup.simhash: drops a record if its signature
// is within threshold similarity of any previously kept signature.
func newSimhashFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg simhashConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		path, err := pathFrom(cfg.Path)
		if err != nil {
			return nil, err
		}
		return simhashOperator{path: path, threshold: cfg.Threshold}, nil
	}
}

type simhashOperator struct {
	path      record.FieldPath
	threshold float64
}

func (simhashOperator) Name() string { return "dedup.simhash" }

func (o simhashOperator) Apply(batch record.Batch) (record.Batch, error) {
	var kept []uint64
	out := make(record.Batch, 0, len(batch))
	for _, r := range batch {
		text, ok := resolveText(o.path, r)
		if !ok {
			out = append(out, r)
			continue
		}
		sig := simhashSignature(text)
		isDup := false
		for _, k := range kept {
			if simhashSimilarity(sig, k) >= o.threshold {
				isDup = true
				break
			}
		}
		if isDup {
			continue
		}
		kept = append(kept, sig)
		out = append(out, r)
	}
	return out, nil
}
