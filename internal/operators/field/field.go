// Package field implements the field.* operator family (spec.md §4.D):
// structural transforms over a record's payload/metadata shape — selecting,
// renaming, copying, moving, flattening, defaulting, and requiring keys.
package field

import (
	"strings"

	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
	"github.com/dunimd/zi/internal/zierr"
)

// Register adds every field.* operator factory to r.
func Register(r *registry.Registry) {
	r.Register("field.select", newSelectFactory())
	r.Register("field.rename", newRenameFactory())
	r.Register("field.drop", newDropFactory())
	r.Register("field.copy", newCopyFactory())
	r.Register("field.move", newMoveFactory())
	r.Register("field.flatten", newFlattenFactory())
	r.Register("field.default", newDefaultFactory())
	r.Register("field.require", newRequireFactory())
}

// mapOperator applies a pure function over each record's payload map. It's
// the shared shape for select/rename/drop/flatten, which all operate on
// the top-level payload object.
type mapOperator struct {
	name string
	fn   func(payload map[string]any) map[string]any
}

func (o mapOperator) Name() string { return o.name }

func (o mapOperator) Apply(batch record.Batch) (record.Batch, error) {
	out := make(record.Batch, len(batch))
	for i, r := range batch {
		m, ok := r.Payload.(map[string]any)
		if !ok {
			out[i] = r
			continue
		}
		r.Payload = o.fn(m)
		out[i] = r
	}
	return out, nil
}

type selectConfig struct {
	Keys    []string `json:"keys"`
	Exclude bool     `json:"exclude"`
}

// newSelectFactory builds field.select: keeps (or, with exclude, drops)
// only the named top-level payload keys.
func newSelectFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg selectConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if len(cfg.Keys) == 0 {
			return nil, zierr.Validation("field.select requires a non-empty keys array")
		}
		want := make(map[string]bool, len(cfg.Keys))
		for _, k := range cfg.Keys {
			want[k] = true
		}
		return mapOperator{
			name: "field.select",
			fn: func(payload map[string]any) map[string]any {
				out := make(map[string]any, len(payload))
				for k, v := range payload {
					if want[k] != cfg.Exclude {
						out[k] = v
					}
				}
				return out
			},
		}, nil
	}
}

type renameConfig struct {
	Mapping map[string]string `json:"mapping"`
}

// newRenameFactory builds field.rename: renames top-level payload keys
// per a from->to mapping, leaving unmapped keys untouched.
func newRenameFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg renameConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if len(cfg.Mapping) == 0 {
			return nil, zierr.Validation("field.rename requires a non-empty mapping")
		}
		return mapOperator{
			name: "field.rename",
			fn: func(payload map[string]any) map[string]any {
				out := make(map[string]any, len(payload))
				for k, v := range payload {
					if to, ok := cfg.Mapping[k]; ok {
						out[to] = v
					} else {
						out[k] = v
					}
				}
				return out
			},
		}, nil
	}
}

type dropConfig struct {
	Keys []string `json:"keys"`
}

// newDropFactory builds field.drop: removes the named top-level payload
// keys.
func newDropFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg dropConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		drop := make(map[string]bool, len(cfg.Keys))
		for _, k := range cfg.Keys {
			drop[k] = true
		}
		return mapOperator{
			name: "field.drop",
			fn: func(payload map[string]any) map[string]any {
				out := make(map[string]any, len(payload))
				for k, v := range payload {
					if !drop[k] {
						out[k] = v
					}
				}
				return out
			},
		}, nil
	}
}

type pathPairOperator struct {
	name  string
	from  record.FieldPath
	to    record.FieldPath
	apply func(r record.Record, from, to record.FieldPath) record.Record
}

func (o pathPairOperator) Name() string { return o.name }

func (o pathPairOperator) Apply(batch record.Batch) (record.Batch, error) {
	out := make(record.Batch, len(batch))
	for i, r := range batch {
		out[i] = o.apply(r, o.from, o.to)
	}
	return out, nil
}

type pathPairConfig struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// newCopyFactory builds field.copy: copies a value from source to target,
// across payload/metadata boundaries, leaving the source untouched.
func newCopyFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg pathPairConfig
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
		return pathPairOperator{
			name: "field.copy",
			from: from,
			to:   to,
			apply: func(r record.Record, from, to record.FieldPath) record.Record {
				if v, ok := from.Resolve(r); ok {
					to.SetValue(&r, v)
				}
				return r
			},
		}, nil
	}
}

// newMoveFactory builds field.move: copies a value from source to target
// and then removes it from source.
func newMoveFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg pathPairConfig
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
		return pathPairOperator{
			name: "field.move",
			from: from,
			to:   to,
			apply: func(r record.Record, from, to record.FieldPath) record.Record {
				if v, ok := from.Resolve(r); ok {
					to.SetValue(&r, v)
					removePath(&r, from)
				}
				return r
			},
		}, nil
	}
}

// removePath deletes the value at a path's leaf key, best-effort, used by
// field.move to clear the source after copying.
func removePath(r *record.Record, p record.FieldPath) {
	s := p.String()
	segs := strings.Split(s, ".")
	if len(segs) < 2 {
		return
	}
	root := segs[0]
	keys := segs[1:]
	var container map[string]any
	switch root {
	case "payload":
		m, ok := r.Payload.(map[string]any)
		if !ok {
			return
		}
		container = m
	case "metadata":
		if r.Metadata == nil {
			return
		}
		container = map[string]any(r.Metadata)
	default:
		return
	}
	for i, k := range keys {
		if i == len(keys)-1 {
			delete(container, k)
			return
		}
		next, ok := container[k]
		if !ok {
			return
		}
		nm, ok := next.(map[string]any)
		if !ok {
			return
		}
		container = nm
	}
}

type flattenConfig struct {
	Key       string `json:"key"`
	Separator string `json:"separator"`
}

// newFlattenFactory builds field.flatten: flattens one level of a named
// sub-object into the top-level payload, joining keys with separator
// (default "_").
func newFlattenFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg flattenConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.Key == "" {
			return nil, zierr.Validation("field.flatten requires a key")
		}
		sep := cfg.Separator
		if sep == "" {
			sep = "_"
		}
		return mapOperator{
			name: "field.flatten",
			fn: func(payload map[string]any) map[string]any {
				sub, ok := payload[cfg.Key].(map[string]any)
				if !ok {
					return payload
				}
				out := make(map[string]any, len(payload)+len(sub))
				for k, v := range payload {
					if k != cfg.Key {
						out[k] = v
					}
				}
				for k, v := range sub {
					out[cfg.Key+sep+k] = v
				}
				return out
			},
		}, nil
	}
}

type defaultConfig struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// newDefaultFactory builds field.default: inserts value at path only when
// nothing currently resolves there.
func newDefaultFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg defaultConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		path, err := record.ParseFieldPath(cfg.Path)
		if err != nil {
			return nil, err
		}
		return pathPairOperator{
			name: "field.default",
			from: path,
			to:   path,
			apply: func(r record.Record, from, to record.FieldPath) record.Record {
				if _, ok := from.Resolve(r); !ok {
					to.SetValue(&r, cfg.Value)
				}
				return r
			},
		}, nil
	}
}

type requireConfig struct {
	Paths []string `json:"paths"`
}

// newRequireFactory builds field.require: drops records missing any of the
// named paths.
func newRequireFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg requireConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if len(cfg.Paths) == 0 {
			return nil, zierr.Validation("field.require requires a non-empty paths array")
		}
		paths := make([]record.FieldPath, len(cfg.Paths))
		for i, p := range cfg.Paths {
			fp, err := record.ParseFieldPath(p)
			if err != nil {
				return nil, err
			}
			paths[i] = fp
		}
		return filterAllPresentOperator{paths: paths}, nil
	}
}

type filterAllPresentOperator struct {
	paths []record.FieldPath
}

func (filterAllPresentOperator) Name() string { return "field.require" }

func (o filterAllPresentOperator) Apply(batch record.Batch) (record.Batch, error) {
	out := make(record.Batch, 0, len(batch))
	for _, r := range batch {
		keep := true
		for _, p := range o.paths {
			if _, ok := p.Resolve(r); !ok {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, r)
		}
	}
	return out, nil
}
