package version

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dunimd/zi/internal/metrics"
	"github.com/dunimd/zi/internal/zierr"
	"github.com/dunimd/zi/internal/zifs"
)

// Version is one entry in the append-only version DAG.
type Version struct {
	ID        string            `json:"id"`
	Parent    *string           `json:"parent,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Metadata  map[string]any    `json:"metadata"`
	Metrics   metrics.QualityMetrics `json:"metrics"`
	Digest    string            `json:"digest"`
	Triple    TripleHash        `json:"-"`
}

// MetricsDelta reports the change in five scalar metrics between two
// versions.
type MetricsDelta struct {
	TotalRecordsDelta        int     `json:"total_records_delta"`
	AveragePayloadCharsDelta float64 `json:"average_payload_chars_delta"`
	AveragePayloadTokensDelta float64 `json:"average_payload_tokens_delta"`
	ToxicityAverageDelta     float64 `json:"toxicity_average_delta"`
	ToxicityMaxDelta         float64 `json:"toxicity_max_delta"`
}

// Diff is the result of comparing two versions.
type Diff struct {
	MetadataAdded      map[string]any `json:"metadata_added"`
	MetadataRemoved    map[string]any `json:"metadata_removed"`
	MetadataChanged    map[string][2]any `json:"metadata_changed"`
	MetricsDelta       MetricsDelta   `json:"metrics_delta"`
	TripleHashChanged  bool           `json:"triple_hash_changed"`
	DataHashChanged    bool           `json:"data_hash_changed"`
	CodeHashChanged    bool           `json:"code_hash_changed"`
	EnvHashChanged     bool           `json:"env_hash_changed"`
}

// Store is an append-only, in-memory version DAG with file persistence.
type Store struct {
	mu       sync.RWMutex
	nextID   uint64
	versions map[string]Version
}

// NewStore returns an empty store whose first created version is
// "v0000000000000001" ("v" plus the counter as 16 hex digits).
func NewStore() *Store {
	return &Store{nextID: 1, versions: make(map[string]Version)}
}

func idFor(n uint64) string {
	return fmt.Sprintf("v%016x", n)
}

// Create validates that parent (if set) exists, assigns the next id, and
// stores the version.
func (s *Store) Create(parent *string, metadata map[string]any, m metrics.QualityMetrics, triple TripleHash) (Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if parent != nil {
		if _, ok := s.versions[*parent]; !ok {
			return Version{}, zierr.Validation("parent version %q does not exist", *parent)
		}
	}

	v := Version{
		ID:        idFor(s.nextID),
		Parent:    parent,
		CreatedAt: time.Now(),
		Metadata:  metadata,
		Metrics:   m,
		Triple:    triple,
		Digest:    triple.CompactString(),
	}
	s.nextID++
	s.versions[v.ID] = v
	return v, nil
}

// Get returns the version with the given id.
func (s *Store) Get(id string) (Version, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.versions[id]
	return v, ok
}

// List returns every version ordered by creation time ascending.
func (s *Store) List() []Version {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Version, 0, len(s.versions))
	for _, v := range s.versions {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Compare diffs two versions' metadata, metrics, and triple-hash components.
func Compare(left, right Version) Diff {
	d := Diff{
		MetadataAdded:   map[string]any{},
		MetadataRemoved: map[string]any{},
		MetadataChanged: map[string][2]any{},
	}
	for k, rv := range right.Metadata {
		lv, ok := left.Metadata[k]
		if !ok {
			d.MetadataAdded[k] = rv
		} else if !deepEqual(lv, rv) {
			d.MetadataChanged[k] = [2]any{lv, rv}
		}
	}
	for k, lv := range left.Metadata {
		if _, ok := right.Metadata[k]; !ok {
			d.MetadataRemoved[k] = lv
		}
	}

	d.MetricsDelta = MetricsDelta{
		TotalRecordsDelta:         right.Metrics.TotalRecords - left.Metrics.TotalRecords,
		AveragePayloadCharsDelta:  right.Metrics.AveragePayloadChars - left.Metrics.AveragePayloadChars,
		AveragePayloadTokensDelta: right.Metrics.AveragePayloadTokens - left.Metrics.AveragePayloadTokens,
		ToxicityAverageDelta:      right.Metrics.ToxicityAverage - left.Metrics.ToxicityAverage,
		ToxicityMaxDelta:          right.Metrics.ToxicityMax - left.Metrics.ToxicityMax,
	}

	d.DataHashChanged = left.Triple.Data != right.Triple.Data
	d.CodeHashChanged = left.Triple.Code != right.Triple.Code
	d.EnvHashChanged = left.Triple.Env != right.Triple.Env
	d.TripleHashChanged = !left.Triple.Equal(right.Triple)
	return d
}

func deepEqual(a, b any) bool {
	ab, _ := json.Marshal(a)
	bb, _ := json.Marshal(b)
	return string(ab) == string(bb)
}

// fileTriple and fileVersion are the serde shapes spec.md §6 mandates for
// the persisted version-store file.
type fileTriple struct {
	Data string `json:"data"`
	Code string `json:"code"`
	Env  string `json:"env"`
}

type fileVersion struct {
	ID              string                 `json:"id"`
	Parent          *string                `json:"parent,omitempty"`
	CreatedAtSecs   int64                  `json:"created_at_secs"`
	CreatedAtNanos  int64                  `json:"created_at_nanos"`
	Metadata        map[string]any         `json:"metadata"`
	Metrics         metrics.QualityMetrics `json:"metrics"`
	Digest          string                 `json:"digest"`
	TripleHash      fileTriple             `json:"triple_hash"`
}

type fileStore struct {
	NextID   uint64        `json:"next_id"`
	Versions []fileVersion `json:"versions"`
}

// SaveOptions controls how SaveToPath persists the store.
type SaveOptions struct {
	Pretty            bool
	Atomic            bool
	CreateDirectories bool
}

// SaveToPath serializes the store to path through fs. Atomic writes go
// through a temp-file-then-rename sequence; CreateDirectories creates
// missing parent directories first.
func (s *Store) SaveToPath(ctx context.Context, fs zifs.Filesystem, path string, opts SaveOptions) error {
	s.mu.RLock()
	fv := fileStore{NextID: s.nextID}
	for _, v := range s.versions {
		fv.Versions = append(fv.Versions, toFileVersion(v))
	}
	s.mu.RUnlock()

	sort.Slice(fv.Versions, func(i, j int) bool {
		return fv.Versions[i].CreatedAtSecs < fv.Versions[j].CreatedAtSecs ||
			(fv.Versions[i].CreatedAtSecs == fv.Versions[j].CreatedAtSecs && fv.Versions[i].CreatedAtNanos < fv.Versions[j].CreatedAtNanos)
	})

	var (
		buf []byte
		err error
	)
	if opts.Pretty {
		buf, err = json.MarshalIndent(fv, "", "  ")
	} else {
		buf, err = json.Marshal(fv)
	}
	if err != nil {
		return fmt.Errorf("marshal version store: %w", err)
	}

	if opts.CreateDirectories {
		if err := fs.MkdirAll(ctx, dirOf(path)); err != nil {
			return err
		}
	}
	if opts.Atomic {
		return fs.WriteFileAtomic(ctx, path, buf)
	}
	return fs.WriteFile(ctx, path, buf)
}

func toFileVersion(v Version) fileVersion {
	return fileVersion{
		ID:             v.ID,
		Parent:         v.Parent,
		CreatedAtSecs:  v.CreatedAt.Unix(),
		CreatedAtNanos: int64(v.CreatedAt.Nanosecond()),
		Metadata:       v.Metadata,
		Metrics:        v.Metrics,
		Digest:         v.Digest,
		TripleHash: fileTriple{
			Data: v.Triple.Data.Hex(),
			Code: v.Triple.Code.Hex(),
			Env:  v.Triple.Env.Hex(),
		},
	}
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

// LoadFromPath reads path through fs and rebuilds a Store. When validate is
// true, every parent must resolve to a known version, next_id must be
// strictly greater than the maximum numeric id present (only enforced when
// the file has at least one version), and a malformed hex triple-hash
// component is a Validation error — not silently replaced with zeros.
func LoadFromPath(ctx context.Context, fs zifs.Filesystem, path string, validate bool) (*Store, error) {
	buf, err := fs.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	var fv fileStore
	if err := json.Unmarshal(buf, &fv); err != nil {
		return nil, zierr.Schema("malformed version store file: %s", err)
	}

	s := NewStore()
	s.nextID = fv.NextID

	var maxNumericID uint64
	for _, rec := range fv.Versions {
		triple, err := ParseTripleHashHex(rec.TripleHash.Data + rec.TripleHash.Code + rec.TripleHash.Env)
		if err != nil {
			return nil, zierr.Validation("malformed triple hash in version %q: %s", rec.ID, err)
		}

		v := Version{
			ID:        rec.ID,
			Parent:    rec.Parent,
			CreatedAt: time.Unix(rec.CreatedAtSecs, rec.CreatedAtNanos),
			Metadata:  rec.Metadata,
			Metrics:   rec.Metrics,
			Digest:    rec.Digest,
			Triple:    triple,
		}
		s.versions[v.ID] = v

		if validate {
			if n, ok := parseNumericID(v.ID); ok && n > maxNumericID {
				maxNumericID = n
			}
		}
	}

	if validate {
		for _, rec := range fv.Versions {
			if rec.Parent != nil {
				if _, ok := s.versions[*rec.Parent]; !ok {
					return nil, zierr.Validation("version %q references missing parent %q", rec.ID, *rec.Parent)
				}
			}
		}
		if len(fv.Versions) > 0 && s.nextID <= maxNumericID {
			return nil, zierr.Validation("next_id %d must be greater than the maximum existing version id %d", s.nextID, maxNumericID)
		}
	}

	return s, nil
}

func parseNumericID(id string) (uint64, bool) {
	if len(id) < 2 || id[0] != 'v' {
		return 0, false
	}
	var n uint64
	for _, c := range id[1:] {
		var d uint64
		switch {
		case c >= '0' && c <= '9':
			d = uint64(c - '0')
		case c >= 'a' && c <= 'f':
			d = uint64(c-'a') + 10
		default:
			return 0, false
		}
		n = n*16 + d
	}
	return n, true
}
