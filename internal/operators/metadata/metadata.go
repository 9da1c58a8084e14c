// Package metadata implements the metadata.* operator family (spec.md
// §4.D): enrich/remove/keep/rename/copy/require/extract over a record's
// metadata bag.
package metadata

import (
	"regexp"

	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
	"github.com/dunimd/zi/internal/zierr"
)

// Register adds every metadata.* operator factory to r.
func Register(r *registry.Registry) {
	r.Register("metadata.enrich", newEnrichFactory())
	r.Register("metadata.remove", newRemoveFactory())
	r.Register("metadata.keep", newKeepFactory())
	r.Register("metadata.rename", newRenameFactory())
	r.Register("metadata.copy", newCopyFactory())
	r.Register("metadata.require", newRequireFactory())
	r.Register("metadata.extract", newExtractFactory())
}

type recordOperator struct {
	name string
	fn   func(r record.Record) (record.Record, error)
}

func (o recordOperator) Name() string { return o.name }

func (o recordOperator) Apply(batch record.Batch) (record.Batch, error) {
	out := make(record.Batch, 0, len(batch))
	for _, r := range batch {
		nr, err := o.fn(r)
		if err != nil {
			return nil, err
		}
		out = append(out, nr)
	}
	return out, nil
}

type enrichConfig struct {
	Entries map[string]any `json:"entries"`
}

// newEnrichFactory builds metadata.enrich: merges entries into the
// record's metadata, creating it if absent.
func newEnrichFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg enrichConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if len(cfg.Entries) == 0 {
			return nil, zierr.Validation("metadata.enrich requires a non-empty entries object")
		}
		return recordOperator{
			name: "metadata.enrich",
			fn: func(r record.Record) (record.Record, error) {
				m := r.MetadataMut()
				for k, v := range cfg.Entries {
					m[k] = v
				}
				return r, nil
			},
		}, nil
	}
}

type keysConfig struct {
	Keys []string `json:"keys"`
}

// newRemoveFactory builds metadata.remove: deletes the named keys,
// clearing metadata back to absent if it becomes empty.
func newRemoveFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg keysConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		return recordOperator{
			name: "metadata.remove",
			fn: func(r record.Record) (record.Record, error) {
				if r.Metadata == nil {
					return r, nil
				}
				for _, k := range cfg.Keys {
					delete(r.Metadata, k)
				}
				clearIfEmpty(&r)
				return r, nil
			},
		}, nil
	}
}

// newKeepFactory builds metadata.keep: retains only the named keys.
func newKeepFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg keysConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		want := make(map[string]bool, len(cfg.Keys))
		for _, k := range cfg.Keys {
			want[k] = true
		}
		return recordOperator{
			name: "metadata.keep",
			fn: func(r record.Record) (record.Record, error) {
				if r.Metadata == nil {
					return r, nil
				}
				kept := record.Metadata{}
				for k, v := range r.Metadata {
					if want[k] {
						kept[k] = v
					}
				}
				r.Metadata = kept
				clearIfEmpty(&r)
				return r, nil
			},
		}, nil
	}
}

type renameConfig struct {
	Mapping map[string]string `json:"mapping"`
}

// newRenameFactory builds metadata.rename.
func newRenameFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg renameConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if len(cfg.Mapping) == 0 {
			return nil, zierr.Validation("metadata.rename requires a non-empty mapping")
		}
		return recordOperator{
			name: "metadata.rename",
			fn: func(r record.Record) (record.Record, error) {
				if r.Metadata == nil {
					return r, nil
				}
				out := record.Metadata{}
				for k, v := range r.Metadata {
					if to, ok := cfg.Mapping[k]; ok {
						out[to] = v
					} else {
						out[k] = v
					}
				}
				r.Metadata = out
				return r, nil
			},
		}, nil
	}
}

type copyConfig struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// newCopyFactory builds metadata.copy: copies a value between
// payload/metadata paths, same semantics as field.copy but kept here for
// the documented metadata.* naming the operator library enumerates.
func newCopyFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg copyConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		from, err := record.ParseFieldPath(cfg.Source)
		if err != nil {
			return nil, err
		}
		to, err := record.ParseFieldPath(cfg.Target)
		if err != nil {
			return nil, err
		}
		return recordOperator{
			name: "metadata.copy",
			fn: func(r record.Record) (record.Record, error) {
				if v, ok := from.Resolve(r); ok {
					to.SetValue(&r, v)
				}
				return r, nil
			},
		}, nil
	}
}

// newRequireFactory builds metadata.require: errors (rather than
// filtering) if any named key is missing from metadata.
func newRequireFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg keysConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if len(cfg.Keys) == 0 {
			return nil, zierr.Validation("metadata.require requires a non-empty keys array")
		}
		return recordOperator{
			name: "metadata.require",
			fn: func(r record.Record) (record.Record, error) {
				for _, k := range cfg.Keys {
					if r.Metadata == nil {
						return r, zierr.Validation("metadata.require: missing key %q", k)
					}
					if _, ok := r.Metadata[k]; !ok {
						return r, zierr.Validation("metadata.require: missing key %q", k)
					}
				}
				return r, nil
			},
		}, nil
	}
}

type extractConfig struct {
	Path         string `json:"path"`
	Key          string `json:"key"`
	Pattern      string `json:"pattern"`
	CaptureGroup int    `json:"capture_group"`
	Default      any    `json:"default"`
	HasDefault   bool   `json:"-"`
	Optional     bool   `json:"optional"`
}

// newExtractFactory builds metadata.extract: copies a payload path's value
// into a metadata key, optionally applying a regex capture group, an
// optional default when absent, with `optional` suppressing the
// missing-value error.
func newExtractFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var raw map[string]any
		if m, ok := config.(map[string]any); ok {
			raw = m
		}
		var cfg extractConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if _, ok := raw["default"]; ok {
			cfg.HasDefault = true
		}
		if cfg.Path == "" || cfg.Key == "" {
			return nil, zierr.Validation("metadata.extract requires path and key")
		}
		path, err := record.ParseFieldPath(cfg.Path)
		if err != nil {
			return nil, err
		}
		var re *regexp.Regexp
		if cfg.Pattern != "" {
			re, err = regexp.Compile(cfg.Pattern)
			if err != nil {
				return nil, zierr.Validation("metadata.extract: invalid pattern: %s", err)
			}
		}
		targetPath, err := record.ParseFieldPath("metadata." + cfg.Key)
		if err != nil {
			return nil, err
		}
		return recordOperator{
			name: "metadata.extract",
			fn: func(r record.Record) (record.Record, error) {
				v, ok := path.Resolve(r)
				if !ok {
					if cfg.HasDefault {
						targetPath.SetValue(&r, cfg.Default)
						return r, nil
					}
					if cfg.Optional {
						return r, nil
					}
					return r, zierr.Validation("metadata.extract: path %q not found", cfg.Path)
				}
				if re != nil {
					s, ok := v.(string)
					if !ok {
						if cfg.Optional {
							return r, nil
						}
						return r, zierr.Validation("metadata.extract: path %q is not a string", cfg.Path)
					}
					m := re.FindStringSubmatch(s)
					group := cfg.CaptureGroup
					if group == 0 && len(m) > 1 {
						group = 1
					}
					if m == nil || group >= len(m) {
						if cfg.HasDefault {
							targetPath.SetValue(&r, cfg.Default)
							return r, nil
						}
						if cfg.Optional {
							return r, nil
						}
						return r, zierr.Validation("metadata.extract: pattern did not match path %q", cfg.Path)
					}
					targetPath.SetValue(&r, m[group])
					return r, nil
				}
				targetPath.SetValue(&r, v)
				return r, nil
			},
		}, nil
	}
}

func clearIfEmpty(r *record.Record) {
	if r.Metadata != nil && len(r.Metadata) == 0 {
		r.Metadata = nil
	}
}
