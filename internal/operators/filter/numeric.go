package filter

import (
	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
	"github.com/dunimd/zi/internal/zierr"
)

type betweenConfig struct {
	Path string  `json:"path"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// newBetweenFactory builds filter.between: inclusive min<=x<=max over
// Number values only. Validates min<=max at factory time.
func newBetweenFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg betweenConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.Min > cfg.Max {
			return nil, zierr.Validation("filter.between requires min <= max")
		}
		path, err := record.ParseFieldPath(cfg.Path)
		if err != nil {
			return nil, err
		}
		return predicateOperator{
			name: "filter.between",
			predicate: func(r record.Record) bool {
				n, ok := asNumber(path, r)
				return ok && n >= cfg.Min && n <= cfg.Max
			},
		}, nil
	}
}

type comparisonConfig struct {
	Path  string  `json:"path"`
	Value float64 `json:"value"`
}

func lessThan(n, v float64) bool    { return n < v }
func greaterThan(n, v float64) bool { return n > v }

// newComparisonFactory builds filter.less_than / filter.greater_than:
// strict numeric comparison; non-numeric or missing values never match.
func newComparisonFactory(cmp func(n, v float64) bool) registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg comparisonConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		path, err := record.ParseFieldPath(cfg.Path)
		if err != nil {
			return nil, err
		}
		return predicateOperator{
			name: "filter.comparison",
			predicate: func(r record.Record) bool {
				n, ok := asNumber(path, r)
				return ok && cmp(n, cfg.Value)
			},
		}, nil
	}
}

type rangeConfig struct {
	Path string   `json:"path"`
	Min  *float64 `json:"min"`
	Max  *float64 `json:"max"`
}

// newRangeFactory builds filter.range: an open-ended numeric range where
// either bound may be omitted, but at least one must be present.
func newRangeFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg rangeConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.Min == nil && cfg.Max == nil {
			return nil, zierr.Validation("filter.range requires at least one of min/max")
		}
		path, err := record.ParseFieldPath(cfg.Path)
		if err != nil {
			return nil, err
		}
		return predicateOperator{
			name: "filter.range",
			predicate: func(r record.Record) bool {
				n, ok := asNumber(path, r)
				if !ok {
					return false
				}
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

func asNumber(path record.FieldPath, r record.Record) (float64, bool) {
	v, ok := path.Resolve(r)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
