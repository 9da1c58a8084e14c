package filter

import (
	"encoding/json"

	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
	"github.com/dunimd/zi/internal/zierr"
)

type equalsConfig struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// newEqualsFactory builds filter.equals (negate=false) and
// filter.not_equals (negate=true). A missing path counts as "does not
// equal": filter.equals drops the record and filter.not_equals keeps it.
func newEqualsFactory(negate bool) registry.Factory {
	name := "filter.equals"
	if negate {
		name = "filter.not_equals"
	}
	return func(config any) (registry.Operator, error) {
		var cfg equalsConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		path, err := record.ParseFieldPath(cfg.Path)
		if err != nil {
			return nil, err
		}
		return predicateOperator{
			name: name,
			predicate: func(r record.Record) bool {
				v, ok := path.Resolve(r)
				if !ok {
					return negate
				}
				eq := deepEqual(v, cfg.Value)
				if negate {
					return !eq
				}
				return eq
			},
		}, nil
	}
}

type anyConfig struct {
	Paths []string `json:"paths"`
	Value any      `json:"value"`
}

// newAnyFactory builds filter.any: keeps a record if ANY of several paths
// equals the configured value. Requires a non-empty paths array.
func newAnyFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg anyConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if len(cfg.Paths) == 0 {
			return nil, zierr.Validation("filter.any requires a non-empty paths array")
		}
		paths := make([]record.FieldPath, len(cfg.Paths))
		for i, p := range cfg.Paths {
			fp, err := record.ParseFieldPath(p)
			if err != nil {
				return nil, err
			}
			paths[i] = fp
		}
		return predicateOperator{
			name: "filter.any",
			predicate: func(r record.Record) bool {
				for _, p := range paths {
					if v, ok := p.Resolve(r); ok && deepEqual(v, cfg.Value) {
						return true
					}
				}
				return false
			},
		}, nil
	}
}

func deepEqual(a, b any) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ab) == string(bb)
}
