// Package transform implements the transform.* operator family (spec.md
// §4.D): text normalization over a configured field path.
package transform

import (
	"strings"

	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
	"github.com/dunimd/zi/internal/zierr"
)

// Register adds every transform.* operator factory to r.
func Register(r *registry.Registry) {
	r.Register("transform.normalize", newNormalizeFactory())
}

type normalizeConfig struct {
	Path               string `json:"path"`
	Trim               bool   `json:"trim"`
	CollapseWhitespace bool   `json:"collapse_whitespace"`
	Lowercase          bool   `json:"lowercase"`
}

// newNormalizeFactory builds transform.normalize: trims, collapses
// interior whitespace runs, and optionally lowercases a string field,
// leaving non-string values untouched. Trimming and collapsing are on
// unless trim / collapse_whitespace is set to false.
func newNormalizeFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		cfg := normalizeConfig{Trim: true, CollapseWhitespace: true}
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.Path == "" {
			return nil, zierr.Validation("transform.normalize requires a path")
		}
		path, err := record.ParseFieldPath(cfg.Path)
		if err != nil {
			return nil, err
		}
		return normalizeOperator{path: path, cfg: cfg}, nil
	}
}

type normalizeOperator struct {
	path record.FieldPath
	cfg  normalizeConfig
}

func (normalizeOperator) Name() string { return "transform.normalize" }

func (o normalizeOperator) Apply(batch record.Batch) (record.Batch, error) {
	out := make(record.Batch, len(batch))
	for i, r := range batch {
		v, ok := o.path.Resolve(r)
		if !ok {
			out[i] = r
			continue
		}
		s, ok := v.(string)
		if !ok {
			out[i] = r
			continue
		}
		if o.cfg.CollapseWhitespace {
			s = strings.Join(strings.Fields(s), " ")
		}
		if o.cfg.Trim {
			s = strings.TrimSpace(s)
		}
		if o.cfg.Lowercase {
			s = strings.ToLower(s)
		}
		o.path.SetValue(&r, s)
		out[i] = r
	}
	return out, nil
}
