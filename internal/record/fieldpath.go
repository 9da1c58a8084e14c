package record

import (
	"strings"

	"github.com/dunimd/zi/internal/zierr"
)

// FieldPath is a dot-delimited path rooted at "payload" or "metadata" used to
// read and write a value nested in a record.
type FieldPath struct {
	segments []string
}

// ParseFieldPath parses a dotted path string. It fails validation when the
// string is empty, when the first segment is neither "payload" nor
// "metadata", or when a metadata path names no key.
func ParseFieldPath(path string) (FieldPath, error) {
	var segments []string
	for _, seg := range strings.Split(path, ".") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		segments = append(segments, seg)
	}
	if len(segments) == 0 {
		return FieldPath{}, zierr.Validation("field path may not be empty")
	}
	switch segments[0] {
	case "payload":
	case "metadata":
		if len(segments) == 1 {
			return FieldPath{}, zierr.Validation("metadata paths must include at least one key")
		}
	default:
		return FieldPath{}, zierr.Validation("field path must start with 'payload' or 'metadata'")
	}
	return FieldPath{segments: segments}, nil
}

// MustParseFieldPath is a convenience for operator factories that have
// already validated the path string is well-formed.
func MustParseFieldPath(path string) FieldPath {
	fp, err := ParseFieldPath(path)
	if err != nil {
		panic(err)
	}
	return fp
}

// String renders the path back to its dotted form.
func (p FieldPath) String() string {
	return strings.Join(p.segments, ".")
}

// Resolve returns the JSON node referenced by the path, or (nil, false) when
// absent. It never panics on a type mismatch partway through the path.
func (p FieldPath) Resolve(r Record) (any, bool) {
	if len(p.segments) == 0 {
		return nil, false
	}
	switch p.segments[0] {
	case "payload":
		return walk(r.Payload, p.segments[1:])
	case "metadata":
		if r.Metadata == nil {
			return nil, false
		}
		v, ok := r.Metadata[p.segments[1]]
		if !ok {
			return nil, false
		}
		return walk(v, p.segments[2:])
	default:
		return nil, false
	}
}

func walk(current any, segments []string) (any, bool) {
	for _, seg := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			mm, ok2 := current.(Metadata)
			if !ok2 {
				return nil, false
			}
			m = map[string]any(mm)
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// SetValue walks payload/metadata, creating missing intermediate objects,
// and writes value at the path's leaf. It returns false if a non-object
// value blocks descent (replacing it is forbidden).
func (p FieldPath) SetValue(r *Record, value any) bool {
	if len(p.segments) == 0 {
		return false
	}
	if len(p.segments) == 1 && p.segments[0] == "payload" {
		// A bare "payload" path has no intermediate object to walk into;
		// Resolve returns r.Payload directly for it, so SetValue must
		// replace it directly too. ("metadata" alone is rejected by
		// ParseFieldPath, so this can't fire for that root.)
		r.Payload = value
		return true
	}
	switch p.segments[0] {
	case "payload":
		m, ok := r.Payload.(map[string]any)
		if !ok {
			if r.Payload == nil {
				m = map[string]any{}
				r.Payload = m
			} else {
				return false
			}
		}
		return setIn(m, p.segments[1:], value)
	case "metadata":
		if r.Metadata == nil {
			r.Metadata = Metadata{}
		}
		return setIn(map[string]any(r.Metadata), p.segments[1:], value)
	default:
		return false
	}
}

func setIn(m map[string]any, segments []string, value any) bool {
	if len(segments) == 0 {
		return false
	}
	if len(segments) == 1 {
		m[segments[0]] = value
		return true
	}
	seg := segments[0]
	next, ok := m[seg]
	if !ok {
		next = map[string]any{}
		m[seg] = next
	}
	nextMap, ok := next.(map[string]any)
	if !ok {
		return false
	}
	return setIn(nextMap, segments[1:], value)
}
