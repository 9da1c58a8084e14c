package filter

import (
	"strings"

	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
	"github.com/dunimd/zi/internal/zierr"
)

type arrayContainsConfig struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// newArrayContainsFactory builds filter.array_contains: keeps a record
// whose array-typed field contains an element equal to value.
func newArrayContainsFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg arrayContainsConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		path, err := record.ParseFieldPath(cfg.Path)
		if err != nil {
			return nil, err
		}
		return predicateOperator{
			name: "filter.array_contains",
			predicate: func(r record.Record) bool {
				v, ok := path.Resolve(r)
				if !ok {
					return false
				}
				arr, ok := v.([]any)
				if !ok {
					return false
				}
				for _, el := range arr {
					if deepEqual(el, cfg.Value) {
						return true
					}
				}
				return false
			},
		}, nil
	}
}

type lengthRangeConfig struct {
	Path string `json:"path"`
	Min  *int   `json:"min"`
	Max  *int   `json:"max"`
}

// newLengthRangeFactory builds filter.length_range: character-count range
// over a string field.
func newLengthRangeFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg lengthRangeConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.Min == nil && cfg.Max == nil {
			return nil, zierr.Validation("filter.length_range requires at least one of min/max")
		}
		path, err := record.ParseFieldPath(cfg.Path)
		if err != nil {
			return nil, err
		}
		return predicateOperator{
			name: "filter.length_range",
			predicate: func(r record.Record) bool {
				v, ok := path.Resolve(r)
				if !ok {
					return false
				}
				s, ok := v.(string)
				if !ok {
					return false
				}
				n := len([]rune(s))
				if cfg.Min != nil && n < *cfg.Min {
					return false
				}
				if cfg.Max != nil && n > *cfg.Max {
					return false
				}
				return true
			},
		}, nil
	}
}

type tokenRangeConfig struct {
	Path string `json:"path"`
	Min  *int   `json:"min"`
	Max  *int   `json:"max"`
}

// newTokenRangeFactory builds filter.token_range: whitespace-token-count
// range over a string field.
func newTokenRangeFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg tokenRangeConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.Min == nil && cfg.Max == nil {
			return nil, zierr.Validation("filter.token_range requires at least one of min/max")
		}
		path, err := record.ParseFieldPath(cfg.Path)
		if err != nil {
			return nil, err
		}
		return predicateOperator{
			name: "filter.token_range",
			predicate: func(r record.Record) bool {
				v, ok := path.Resolve(r)
				if !ok {
					return false
				}
				s, ok := v.(string)
				if !ok {
					return false
				}
				n := len(strings.Fields(s))
				if cfg.Min != nil && n < *cfg.Min {
					return false
				}
				if cfg.Max != nil && n > *cfg.Max {
					return false
				}
				return true
			},
		}, nil
	}
}
