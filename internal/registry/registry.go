// Package registry implements the name-to-factory operator registry
// (spec.md §4.C), following the same lowercase-keyed map-of-factories
// pattern and "unknown name" Validation error the reference engine's
// evaluator registry uses.
package registry

import (
	"encoding/json"
	"strings"

	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/zierr"
)

// Operator is the uniform transform contract every pipeline leaf implements.
type Operator interface {
	Name() string
	Apply(batch record.Batch) (record.Batch, error)
}

// Factory builds an Operator from a parsed JSON config value. It must
// validate the config eagerly and return a Validation error on any
// malformed field.
type Factory func(config any) (Operator, error)

// Registry is a name→factory map. Registration overwrites; lookup of an
// unknown name is a Validation error.
type Registry struct {
	factories map[string]Factory
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or overwrites the factory for name. Names are matched
// case-insensitively by lowercasing at registration and lookup.
func (r *Registry) Register(name string, factory Factory) {
	r.factories[strings.ToLower(name)] = factory
}

// Instantiate looks up name and builds an Operator from config.
func (r *Registry) Instantiate(name string, config any) (Operator, error) {
	factory, ok := r.factories[strings.ToLower(name)]
	if !ok {
		return nil, zierr.Validation("unknown operator %q", name)
	}
	return factory(config)
}

// Names returns every registered operator name.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// ApplyNamed wraps Operator.Apply, normalizing any returned error into an
// Operator-kind error attributed to op.Name(), per spec.md §4.C's execution
// wrapper contract.
func ApplyNamed(op Operator, batch record.Batch) (record.Batch, error) {
	out, err := op.Apply(batch)
	if err != nil {
		return nil, zierr.WrapOperator(op.Name(), err)
	}
	return out, nil
}

// DecodeConfig re-marshals a config value (typically a map[string]any
// decoded from JSON/YAML) into dst, the common first step of every operator
// factory.
func DecodeConfig(config any, dst any) error {
	if config == nil {
		return nil
	}
	buf, err := json.Marshal(config)
	if err != nil {
		return zierr.Validation("invalid operator config: %s", err)
	}
	if err := json.Unmarshal(buf, dst); err != nil {
		return zierr.Validation("invalid operator config: %s", err)
	}
	return nil
}
