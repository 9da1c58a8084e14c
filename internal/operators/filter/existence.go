package filter

import (
	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
	"github.com/dunimd/zi/internal/zierr"
)

type pathConfig struct {
	Path string `json:"path"`
}

// newExistsFactory builds filter.exists (want=true) and filter.not_exists
// (want=false).
func newExistsFactory(want bool) registry.Factory {
	name := "filter.exists"
	if !want {
		name = "filter.not_exists"
	}
	return func(config any) (registry.Operator, error) {
		var cfg pathConfig
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
				_, ok := path.Resolve(r)
				return ok == want
			},
		}, nil
	}
}

type isNullConfig struct {
	Path           string `json:"path"`
	IncludeMissing bool   `json:"include_missing"`
}

// newIsNullFactory builds filter.is_null: explicit JSON null resolves to
// true; a missing path resolves to include_missing; any other type is
// false.
func newIsNullFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg isNullConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		path, err := record.ParseFieldPath(cfg.Path)
		if err != nil {
			return nil, err
		}
		return predicateOperator{
			name: "filter.is_null",
			predicate: func(r record.Record) bool {
				v, ok := path.Resolve(r)
				if !ok {
					return cfg.IncludeMissing
				}
				return v == nil
			},
		}, nil
	}
}

type inConfig struct {
	Path   string `json:"path"`
	Values []any  `json:"values"`
}

// newInFactory builds filter.in (want=true) and filter.not_in (want=false).
func newInFactory(want bool) registry.Factory {
	name := "filter.in"
	if !want {
		name = "filter.not_in"
	}
	return func(config any) (registry.Operator, error) {
		var cfg inConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if len(cfg.Values) == 0 {
			return nil, zierr.Validation("%s requires a non-empty values array", name)
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
					return !want
				}
				for _, candidate := range cfg.Values {
					if deepEqual(v, candidate) {
						return want
					}
				}
				return !want
			},
		}, nil
	}
}
