package dedup

import (
	"math"
	"sort"

	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
	"github.com/dunimd/zi/internal/textutil"
)

type sparseVector struct {
	weights map[string]float64
	norm    float64
}

func cosineSimilarity(a, b sparseVector) float64 {
	if a.norm == 0 || b.norm == 0 {
		return 0
	}
	small, big := a, b
	if len(a.weights) > len(b.weights) {
		small, big = b, a
	}
	var dot float64
	for term, w := range small.weights {
		if bw, ok := big.weights[term]; ok {
			dot += w * bw
		}
	}
	return dot / (a.norm * b.norm)
}

// buildTFIDFVectors runs the two-pass TF-IDF computation spec.md §4.E
// documents: per-document token lists and document frequency first, then
// each document's sparse weighted bag (TF*IDF) and its L2 norm.
func buildTFIDFVectors(texts []string) []sparseVector {
	docs := make([][]string, len(texts))
	df := map[string]int{}
	for i, t := range texts {
		tokens := textutil.Tokenize(t)
		docs[i] = tokens
		seen := map[string]bool{}
		for _, tok := range tokens {
			if !seen[tok] {
				seen[tok] = true
				df[tok]++
			}
		}
	}

	n := float64(len(texts))
	vectors := make([]sparseVector, len(texts))
	for i, tokens := range docs {
		tf := map[string]int{}
		for _, t := range tokens {
			tf[t]++
		}
		weights := make(map[string]float64, len(tf))
		var sumSq float64
		for term, count := range tf {
			idf := math.Log((n+1)/(float64(df[term])+1)) + 1
			w := float64(count) * idf
			weights[term] = w
			sumSq += w * w
		}
		vectors[i] = sparseVector{weights: weights, norm: math.Sqrt(sumSq)}
	}
	return vectors
}

type matchEntry struct {
	ID         *string `json:"id,omitempty"`
	Similarity float64 `json:"similarity"`
}

type tfidfConfig struct {
	Path       string  `json:"path"`
	Threshold  float64 `json:"threshold"`
	DetailsKey string  `json:"details_key"`
	MaxMatches int     `json:"max_matches"`
}

// newTFIDFFactory builds dedup.tfidf.
func newTFIDFFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg tfidfConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		path, err := pathFrom(cfg.Path)
		if err != nil {
			return nil, err
		}
		if cfg.MaxMatches <= 0 {
			cfg.MaxMatches = 5
		}
		return tfidfOperator{path: path, cfg: cfg}, nil
	}
}

type tfidfOperator struct {
	path record.FieldPath
	cfg  tfidfConfig
}

func (tfidfOperator) Name() string { return "dedup.tfidf" }

func (o tfidfOperator) Apply(batch record.Batch) (record.Batch, error) {
	return runVectorDedup(batch, o.path, o.cfg.Threshold, o.cfg.DetailsKey, o.cfg.MaxMatches, buildTFIDFVectors)
}

// runVectorDedup is the shared compare-to-all-kept-vectors loop used by
// both TF-IDF and semantic-embedding dedup: only the vector-building
// function differs between them.
func runVectorDedup(batch record.Batch, path record.FieldPath, threshold float64, detailsKey string, maxMatches int, build func([]string) []sparseVector) (record.Batch, error) {
	texts := make([]string, 0, len(batch))
	textIdx := make([]int, 0, len(batch))
	for i, r := range batch {
		if s, ok := resolveText(path, r); ok {
			texts = append(texts, s)
			textIdx = append(textIdx, i)
		}
	}
	vectors := build(texts)

	var detailsTarget *record.FieldPath
	if detailsKey != "" {
		t, err := record.ParseFieldPath("metadata." + detailsKey)
		if err != nil {
			return nil, err
		}
		detailsTarget = &t
	}

	out := make(record.Batch, 0, len(batch))
	var keptVecs []sparseVector
	var keptOutIndex []int

	vecAt := map[int]int{}
	for pos, idx := range textIdx {
		vecAt[idx] = pos
	}

	for i, r := range batch {
		vecPos, hasText := vecAt[i]
		if !hasText {
			out = append(out, r)
			continue
		}
		vec := vectors[vecPos]
		if vec.norm == 0 || len(vec.weights) == 0 {
			if detailsTarget != nil {
				detailsTarget.SetValue(&r, map[string]any{"duplicate": false})
			}
			keptVecs = append(keptVecs, vec)
			keptOutIndex = append(keptOutIndex, len(out))
			out = append(out, r)
			continue
		}

		// Break at the first kept vector whose cosine similarity clears the
		// threshold and attribute the match to that specific kept record,
		// matching the single-match-per-drop contract the original walks.
		matchedKi := -1
		matchedSim := 0.0
		for ki, kv := range keptVecs {
			sim := cosineSimilarity(vec, kv)
			if sim >= threshold {
				matchedKi = ki
				matchedSim = sim
				break
			}
		}

		if matchedKi >= 0 {
			if detailsTarget != nil {
				entry := matchEntry{Similarity: matchedSim, ID: r.ID}
				updateMatchOnKept(&out[keptOutIndex[matchedKi]], detailsTarget, matchedSim, entry, maxMatches)
			}
			continue
		}

		if detailsTarget != nil {
			detailsTarget.SetValue(&r, map[string]any{"duplicate": false})
		}
		keptVecs = append(keptVecs, vec)
		keptOutIndex = append(keptOutIndex, len(out))
		out = append(out, r)
	}
	return out, nil
}

// appendBoundedMatch keeps matches sorted descending by similarity,
// capped at maxMatches, evicting the lowest-similarity entry when a new
// one is larger.
func appendBoundedMatch(matches []matchEntry, entry matchEntry, maxMatches int) []matchEntry {
	matches = append(matches, entry)
	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if len(matches) > maxMatches {
		matches = matches[:maxMatches]
	}
	return matches
}

// updateMatchOnKept appends a single duplicate-match annotation to the kept
// record that triggered the drop, per spec.md's details_key contract:
// {duplicate: true, max_similarity, matches}. max_similarity tracks the
// running max across every drop attributed to this kept record; matches is
// capped at maxMatches, evicting the lowest-similarity entry.
func updateMatchOnKept(keptRecord *record.Record, detailsTarget *record.FieldPath, sim float64, entry matchEntry, maxMatches int) {
	existing, _ := detailsTarget.Resolve(*keptRecord)
	existingMap, _ := existing.(map[string]any)
	runningMax := sim
	var matches []matchEntry
	if existingMap != nil {
		if m, ok := existingMap["max_similarity"].(float64); ok && m > runningMax {
			runningMax = m
		}
		if raw, ok := existingMap["matches"].([]matchEntry); ok {
			matches = raw
		}
	}
	matches = appendBoundedMatch(matches, entry, maxMatches)
	detailsTarget.SetValue(keptRecord, map[string]any{
		"duplicate":      true,
		"max_similarity": runningMax,
		"matches":        matches,
	})
}
