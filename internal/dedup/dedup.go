// Package dedup implements spec.md §4.E's four deduplication engines:
// SimHash, MinHash+banded LSH, TF-IDF cosine, and a pluggable embedding
// cosine variant that falls back to TF-IDF. All four share the tokenizer
// in internal/textutil.
package dedup

import (
	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
	"github.com/dunimd/zi/internal/textutil"
	"github.com/dunimd/zi/internal/zierr"
)

// Register adds every dedup.* operator factory to r.
func Register(r *registry.Registry) {
	r.Register("dedup.simhash", newSimhashFactory())
	r.Register("dedup.minhash", newMinhashFactory())
	r.Register("dedup.tfidf", newTFIDFFactory())
	r.Register("dedup.semantic", newSemanticFactory())
}

// resolveText reads path from a record and returns its string value, or
// ("", false) when absent or non-string; per spec.md, non-string or
// missing values pass through the batch unchanged (kept, not compared).
func resolveText(path record.FieldPath, r record.Record) (string, bool) {
	v, ok := path.Resolve(r)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func pathFrom(cfgPath string) (record.FieldPath, error) {
	if cfgPath == "" {
		return record.FieldPath{}, zierr.Validation("dedup operator requires a path")
	}
	return record.ParseFieldPath(cfgPath)
}

func tokenSet(text string) map[string]bool {
	set := map[string]bool{}
	for _, t := range textutil.Tokenize(text) {
		set[t] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
