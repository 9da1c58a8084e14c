// Package record defines the fundamental data unit Zi operators consume and
// produce: a record carrying a JSON payload and optional metadata, and the
// batch of records that flows between pipeline stages.
package record

import "encoding/json"

// Metadata is a generic attribute bag attached to a Record.
type Metadata map[string]any

// Record is the fundamental unit processed by Zi operators.
type Record struct {
	ID       *string  `json:"id,omitempty"`
	Payload  any      `json:"payload"`
	Metadata Metadata `json:"metadata,omitempty"`
}

// New constructs a record with the given payload and optional identifier.
func New(id *string, payload any) Record {
	return Record{ID: id, Payload: payload}
}

// WithMetadata attaches metadata to the record and returns it.
func (r Record) WithMetadata(m Metadata) Record {
	r.Metadata = m
	return r
}

// MetadataMut returns a mutable handle to the metadata map, lazily creating
// one if the record does not yet carry metadata.
func (r *Record) MetadataMut() Metadata {
	if r.Metadata == nil {
		r.Metadata = Metadata{}
	}
	return r.Metadata
}

// Clone returns a deep copy of the record, used when fanning a batch out to
// parallel branches that must not observe each other's mutations.
func (r Record) Clone() Record {
	out := Record{Payload: cloneValue(r.Payload)}
	if r.ID != nil {
		id := *r.ID
		out.ID = &id
	}
	if r.Metadata != nil {
		out.Metadata = cloneValue(r.Metadata).(Metadata)
	}
	return out
}

func cloneValue(v any) any {
	switch vv := v.(type) {
	case Metadata:
		out := make(Metadata, len(vv))
		for k, val := range vv {
			out[k] = cloneValue(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(vv))
		for k, val := range vv {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(vv))
		for i, val := range vv {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}

// Batch is an ordered sequence of records. Order is meaningful and must be
// preserved by every operator unless its contract explicitly reorders.
type Batch []Record

// CloneBatch deep-copies every record in the batch.
func CloneBatch(b Batch) Batch {
	out := make(Batch, len(b))
	for i, r := range b {
		out[i] = r.Clone()
	}
	return out
}

// CanonicalJSON renders v as JSON with map keys sorted, used for
// content-addressed hashing where byte-stable output matters.
func CanonicalJSON(v any) ([]byte, error) {
	return json.Marshal(canonicalize(v))
}

func canonicalize(v any) any {
	switch vv := v.(type) {
	case Metadata:
		return canonicalizeMap(vv)
	case map[string]any:
		return canonicalizeMap(vv)
	case []any:
		out := make([]any, len(vv))
		for i, e := range vv {
			out[i] = canonicalize(e)
		}
		return out
	default:
		return v
	}
}

func canonicalizeMap(m map[string]any) *orderedMap {
	om := &orderedMap{}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortStrings(keys)
	for _, k := range keys {
		om.keys = append(om.keys, k)
		om.values = append(om.values, canonicalize(m[k]))
	}
	return om
}

// orderedMap marshals as a JSON object with keys emitted in a fixed order,
// giving canonicalize a stable byte representation for hashing.
type orderedMap struct {
	keys   []string
	values []any
}

func (o *orderedMap) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, k := range o.keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(o.values[i])
		if err != nil {
			return nil, err
		}
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, vb...)
	}
	buf = append(buf, '}')
	return buf, nil
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
