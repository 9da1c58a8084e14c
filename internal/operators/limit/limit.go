// Package limit implements the limit operator (spec.md §4.D): truncates a
// batch to its first N records.
package limit

import (
	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
	"github.com/dunimd/zi/internal/zierr"
)

// Register adds the limit operator factory to r.
func Register(r *registry.Registry) {
	r.Register("limit", newLimitFactory())
}

type limitConfig struct {
	Count int `json:"count"`
}

// newLimitFactory builds limit: keeps at most the first Count records.
func newLimitFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg limitConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.Count < 0 {
			return nil, zierr.Validation("limit requires a non-negative count")
		}
		return limitOperator{count: cfg.Count}, nil
	}
}

type limitOperator struct {
	count int
}

func (limitOperator) Name() string { return "limit" }

func (o limitOperator) Apply(batch record.Batch) (record.Batch, error) {
	if len(batch) <= o.count {
		return batch, nil
	}
	return batch[:o.count], nil
}
