// Package sample implements the sample.* operator family (spec.md §4.D):
// seeded random/weighted/stratified sampling, top-k selection, class
// balancing, distribution-targeted allocation, and length-based sampling.
package sample

import (
	"fmt"
	"math/rand"

	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
	"github.com/dunimd/zi/internal/zierr"
)

// Register adds every sample.* operator factory to r.
func Register(r *registry.Registry) {
	r.Register("sample.random", newRandomFactory())
	r.Register("sample.top", newTopFactory())
	r.Register("sample.balanced", newBalancedFactory())
	r.Register("sample.by_distribution", newByDistributionFactory())
	r.Register("sample.by_length", newByLengthFactory())
	r.Register("sample.stratified", newStratifiedFactory())
}

// stableRecordHash derives a deterministic per-record pseudo-random value
// from a seed and the record's index, used wherever sampling must be
// reproducible given the same seed without depending on map iteration
// order.
func stableRecordHash(seed uint64, index int) float64 {
	src := rand.NewSource(int64(seed) + int64(index)*2654435761)
	return rand.New(src).Float64()
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func groupKeyString(v any) string {
	if v == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%v", v)
}
