// Package merge implements the merge operator family (spec.md §4.D):
// concatenation with field-alignment modes, id-grouped batch merging with
// conflict strategies, set operations, and field-wise zip/transpose.
//
// Unlike every other operator family, merge operators consume more than
// one input batch, so they are exposed through MultiOperator rather than
// registry.Operator; the pipeline executor's merge node runs each of its
// branches on a clone of the incoming batch and passes the branch outputs
// to MultiOperator.Merge.
package merge

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
	"github.com/dunimd/zi/internal/zierr"
)

// MultiOperator merges several batches into one. It's the multi-input
// analog of registry.Operator.
type MultiOperator interface {
	Name() string
	Merge(batches []record.Batch) (record.Batch, error)
}

// MultiFactory builds a MultiOperator from a parsed config value.
type MultiFactory func(config any) (MultiOperator, error)

// MultiRegistry is a name->factory map for merge operators, kept separate
// from the single-batch registry.Registry because merge factories build a
// different contract.
type MultiRegistry struct {
	factories map[string]MultiFactory
}

// NewMultiRegistry returns a merge-operator registry pre-populated with
// every merge.* operator.
func NewMultiRegistry() *MultiRegistry {
	m := &MultiRegistry{factories: make(map[string]MultiFactory)}
	m.Register("merge.concat", newConcatFactory())
	m.Register("merge.batch", newBatchFactory())
	m.Register("merge.union", newSetFactory("union"))
	m.Register("merge.intersect", newSetFactory("intersect"))
	m.Register("merge.difference", newSetFactory("difference"))
	m.Register("merge.zip", newZipFactory())
	return m
}

// Register adds or overwrites the factory for name.
func (m *MultiRegistry) Register(name string, factory MultiFactory) {
	m.factories[name] = factory
}

// Instantiate looks up name and builds a MultiOperator from config.
func (m *MultiRegistry) Instantiate(name string, config any) (MultiOperator, error) {
	factory, ok := m.factories[name]
	if !ok {
		return nil, zierr.Validation("unknown merge operator %q", name)
	}
	return factory(config)
}

// RegisterNoop registers merge.* names into the single-batch operator
// registry as a pass-through no-op, so a builder that only ever sees the
// single-input Sequence shape can still resolve the name during
// validation; the pipeline package replaces these with the real
// multi-input execution when merge nodes are present in a config.
func RegisterNoop(r *registry.Registry) {
	names := []string{"merge.concat", "merge.batch", "merge.union", "merge.intersect", "merge.difference", "merge.zip"}
	for _, n := range names {
		name := n
		r.Register(name, func(any) (registry.Operator, error) {
			return noopOperator{name: name}, nil
		})
	}
}

type noopOperator struct{ name string }

func (o noopOperator) Name() string { return o.name }
func (o noopOperator) Apply(batch record.Batch) (record.Batch, error) { return batch, nil }

// payloadHash derives a stable identity for a record lacking an id: a
// sha256 over its canonical-JSON payload.
func payloadHash(r record.Record) string {
	buf, err := record.CanonicalJSON(r.Payload)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

func recordKey(r record.Record) string {
	if r.ID != nil {
		return "id:" + *r.ID
	}
	return "hash:" + payloadHash(r)
}

type concatConfig struct {
	Alignment string `json:"alignment"` // align | strict | loose
}

// newConcatFactory builds merge.concat: concatenates batches in order,
// with a field-alignment mode over each record's payload keys.
func newConcatFactory() MultiFactory {
	return func(config any) (MultiOperator, error) {
		var cfg concatConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.Alignment == "" {
			cfg.Alignment = "loose"
		}
		switch cfg.Alignment {
		case "align", "strict", "loose":
		default:
			return nil, zierr.Validation("merge.concat: unknown alignment %q", cfg.Alignment)
		}
		return concatOperator{alignment: cfg.Alignment}, nil
	}
}

type concatOperator struct {
	alignment string
}

func (concatOperator) Name() string { return "merge.concat" }

func (o concatOperator) Merge(batches []record.Batch) (record.Batch, error) {
	if o.alignment == "loose" {
		var out record.Batch
		for _, b := range batches {
			out = append(out, b...)
		}
		return out, nil
	}

	keySets := make([]map[string]bool, 0, len(batches))
	union := map[string]bool{}
	for _, b := range batches {
		for _, r := range b {
			m, ok := r.Payload.(map[string]any)
			if !ok {
				continue
			}
			ks := map[string]bool{}
			for k := range m {
				ks[k] = true
				union[k] = true
			}
			keySets = append(keySets, ks)
		}
	}

	if o.alignment == "strict" {
		var first map[string]bool
		for _, ks := range keySets {
			if first == nil {
				first = ks
				continue
			}
			if !sameKeySet(first, ks) {
				return nil, zierr.Validation("merge.concat: strict alignment requires identical key sets across all records")
			}
		}
	}

	var out record.Batch
	for _, b := range batches {
		for _, r := range b {
			m, ok := r.Payload.(map[string]any)
			if !ok {
				out = append(out, r)
				continue
			}
			if o.alignment == "align" {
				filled := make(map[string]any, len(union))
				for k := range union {
					if v, ok := m[k]; ok {
						filled[k] = v
					} else {
						filled[k] = nil
					}
				}
				r.Payload = filled
			}
			out = append(out, r)
		}
	}
	return out, nil
}

func sameKeySet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

type batchConfig struct {
	ConflictStrategy string `json:"conflict_strategy"` // first | last | concat | error
}

// newBatchFactory builds merge.batch: groups records across batches by id
// (falling back to a payload hash), merging each group's payload fields
// per the configured conflict strategy.
func newBatchFactory() MultiFactory {
	return func(config any) (MultiOperator, error) {
		var cfg batchConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.ConflictStrategy == "" {
			cfg.ConflictStrategy = "last"
		}
		switch cfg.ConflictStrategy {
		case "first", "last", "concat", "error":
		default:
			return nil, zierr.Validation("merge.batch: unknown conflict_strategy %q", cfg.ConflictStrategy)
		}
		return batchOperator{strategy: cfg.ConflictStrategy}, nil
	}
}

type batchOperator struct {
	strategy string
}

func (batchOperator) Name() string { return "merge.batch" }

func (o batchOperator) Merge(batches []record.Batch) (record.Batch, error) {
	order := []string{}
	groups := map[string][]record.Record{}
	for _, b := range batches {
		for _, r := range b {
			k := recordKey(r)
			if _, ok := groups[k]; !ok {
				order = append(order, k)
			}
			groups[k] = append(groups[k], r)
		}
	}

	out := make(record.Batch, 0, len(order))
	for _, k := range order {
		merged, err := o.mergeGroup(groups[k])
		if err != nil {
			return nil, err
		}
		out = append(out, merged)
	}
	return out, nil
}

func (o batchOperator) mergeGroup(group []record.Record) (record.Record, error) {
	if len(group) == 1 {
		return group[0], nil
	}
	switch o.strategy {
	case "first":
		return group[0], nil
	case "last":
		return group[len(group)-1], nil
	case "error":
		return record.Record{}, zierr.Validation("merge.batch: conflicting records for the same key")
	}

	// concat
	result := group[0]
	resultMap, _ := result.Payload.(map[string]any)
	if resultMap == nil {
		resultMap = map[string]any{}
	} else {
		cloned := make(map[string]any, len(resultMap))
		for k, v := range resultMap {
			cloned[k] = v
		}
		resultMap = cloned
	}
	for _, r := range group[1:] {
		m, ok := r.Payload.(map[string]any)
		if !ok {
			continue
		}
		for k, v := range m {
			existing, ok := resultMap[k]
			if !ok {
				resultMap[k] = v
				continue
			}
			resultMap[k] = concatValue(existing, v)
		}
	}
	result.Payload = resultMap
	return result, nil
}

func concatValue(a, b any) any {
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.TrimSpace(as + " " + bs)
	}
	aArr, aok := a.([]any)
	bArr, bok := b.([]any)
	if aok && bok {
		return append(append([]any{}, aArr...), bArr...)
	}
	if aok {
		return append(append([]any{}, aArr...), b)
	}
	return b
}

// newSetFactory builds merge.union / merge.intersect / merge.difference:
// set operations over batches by whole-payload hash or, when key_field is
// set, by that field's hashed value.
func newSetFactory(kind string) MultiFactory {
	return func(config any) (MultiOperator, error) {
		var cfg struct {
			KeyField string `json:"key_field"`
		}
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		var keyPath *record.FieldPath
		if cfg.KeyField != "" {
			p, err := record.ParseFieldPath(cfg.KeyField)
			if err != nil {
				return nil, err
			}
			keyPath = &p
		}
		return setOperator{kind: kind, keyPath: keyPath}, nil
	}
}

type setOperator struct {
	kind    string
	keyPath *record.FieldPath
}

func (o setOperator) Name() string { return "merge." + o.kind }

func (o setOperator) keyOf(r record.Record) string {
	if o.keyPath != nil {
		if v, ok := o.keyPath.Resolve(r); ok {
			buf, _ := record.CanonicalJSON(v)
			sum := sha256.Sum256(buf)
			return hex.EncodeToString(sum[:])
		}
	}
	return payloadHash(r)
}

func (o setOperator) Merge(batches []record.Batch) (record.Batch, error) {
	if len(batches) == 0 {
		return record.Batch{}, nil
	}

	switch o.kind {
	case "union":
		seen := map[string]bool{}
		var out record.Batch
		for _, b := range batches {
			for _, r := range b {
				k := o.keyOf(r)
				if seen[k] {
					continue
				}
				seen[k] = true
				out = append(out, r)
			}
		}
		return out, nil
	case "intersect":
		presentInAll := map[string]int{}
		for _, b := range batches {
			seenHere := map[string]bool{}
			for _, r := range b {
				k := o.keyOf(r)
				if seenHere[k] {
					continue
				}
				seenHere[k] = true
				presentInAll[k]++
			}
		}
		seen := map[string]bool{}
		var out record.Batch
		for _, r := range batches[0] {
			k := o.keyOf(r)
			if seen[k] {
				continue
			}
			if presentInAll[k] == len(batches) {
				seen[k] = true
				out = append(out, r)
			}
		}
		return out, nil
	default: // difference: first batch minus every other batch
		exclude := map[string]bool{}
		for _, b := range batches[1:] {
			for _, r := range b {
				exclude[o.keyOf(r)] = true
			}
		}
		seen := map[string]bool{}
		var out record.Batch
		for _, r := range batches[0] {
			k := o.keyOf(r)
			if exclude[k] || seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, r)
		}
		return out, nil
	}
}

type zipConfig struct {
	Fields  []string `json:"fields"`
	Default any      `json:"default"`
}

// newZipFactory builds merge.zip: transposes named fields across batches
// into arrays per field, padding missing entries with a configured
// default (nil if unset).
func newZipFactory() MultiFactory {
	return func(config any) (MultiOperator, error) {
		var cfg zipConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if len(cfg.Fields) == 0 {
			return nil, zierr.Validation("merge.zip requires a non-empty fields array")
		}
		return zipOperator{cfg: cfg}, nil
	}
}

type zipOperator struct {
	cfg zipConfig
}

func (zipOperator) Name() string { return "merge.zip" }

func (o zipOperator) Merge(batches []record.Batch) (record.Batch, error) {
	maxLen := 0
	for _, b := range batches {
		if len(b) > maxLen {
			maxLen = len(b)
		}
	}

	payload := map[string]any{}
	for _, field := range o.cfg.Fields {
		path, err := record.ParseFieldPath(field)
		if err != nil {
			return nil, err
		}
		arr := make([]any, 0, maxLen*len(batches))
		for i := 0; i < maxLen; i++ {
			for _, b := range batches {
				value := o.cfg.Default
				if i < len(b) {
					if v, ok := path.Resolve(b[i]); ok {
						value = v
					}
				}
				arr = append(arr, value)
			}
		}
		payload[lastSegment(field)] = arr
	}

	return record.Batch{record.New(nil, payload)}, nil
}

func lastSegment(path string) string {
	parts := strings.Split(path, ".")
	return parts[len(parts)-1]
}
