// Package quality implements the quality.* operator family (spec.md §4.D):
// a composite quality score over ten normalized sub-features, a threshold
// filter over a previously-written score, and a lexicon-based toxicity
// scorer.
package quality

import (
	"math"
	"strings"
	"unicode"

	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
	"github.com/dunimd/zi/internal/textutil"
	"github.com/dunimd/zi/internal/zierr"
)

// Register adds every quality.* operator factory to r.
func Register(r *registry.Registry) {
	r.Register("quality.score", newScoreFactory())
	r.Register("quality.filter", newFilterFactory())
	r.Register("quality.toxicity", newToxicityFactory())
}

// featureOrder names the ten sub-features spec.md §4.D enumerates, and
// defaultWeights gives their default weights. Defaults sum to 1.0.
var featureOrder = []string{
	"ascii_ratio",
	"entropy",
	"readability",
	"unique_token_ratio",
	"non_printable_cleanliness",
	"repeated_bigram_cleanliness",
	"max_run_cleanliness",
	"word_length_balance",
	"punctuation_balance",
	"symbol_ratio_balance",
}

var defaultWeights = map[string]float64{
	"ascii_ratio":                  0.15,
	"entropy":                      0.10,
	"readability":                  0.10,
	"unique_token_ratio":           0.15,
	"non_printable_cleanliness":    0.10,
	"repeated_bigram_cleanliness":  0.10,
	"max_run_cleanliness":          0.10,
	"word_length_balance":          0.05,
	"punctuation_balance":          0.05,
	"symbol_ratio_balance":         0.10,
}

func computeFeatures(text string) map[string]float64 {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		out := make(map[string]float64, len(featureOrder))
		for _, f := range featureOrder {
			out[f] = 0
		}
		return out
	}

	asciiCount := 0
	nonPrintable := 0
	freq := map[rune]int{}
	for _, r := range runes {
		if r < 128 {
			asciiCount++
		}
		if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
			nonPrintable++
		}
		freq[r]++
	}

	entropy := 0.0
	for _, c := range freq {
		p := float64(c) / float64(n)
		entropy -= p * math.Log2(p)
	}
	maxEntropy := math.Log2(float64(len(freq)))
	normEntropy := 0.0
	if maxEntropy > 0 {
		normEntropy = entropy / maxEntropy
	}

	words := strings.Fields(text)
	sentences := splitSentences(text)
	avgSentenceLen := 0.0
	if len(sentences) > 0 {
		avgSentenceLen = float64(len(words)) / float64(len(sentences))
	}
	// Readability proxy: scores highest near a 12-20 word average sentence
	// length, falling off toward very short or very long sentences.
	readability := 1.0 - math.Min(1.0, math.Abs(avgSentenceLen-16)/20)
	if readability < 0 {
		readability = 0
	}

	tokens := textutil.Tokenize(text)
	uniqueRatio := 0.0
	if len(tokens) > 0 {
		seen := map[string]bool{}
		for _, t := range tokens {
			seen[t] = true
		}
		uniqueRatio = float64(len(seen)) / float64(len(tokens))
	}

	maxRun := longestRun(runes)
	maxRunClean := 1.0 - float64(maxRun)/float64(n)

	bigramRepeat := repeatedBigramRatio(tokens)

	avgWordLen := 0.0
	if len(words) > 0 {
		total := 0
		for _, w := range words {
			total += len([]rune(w))
		}
		avgWordLen = float64(total) / float64(len(words))
	}
	wordLenBalance := 1.0 - math.Min(1.0, math.Abs(avgWordLen-5)/10)
	if wordLenBalance < 0 {
		wordLenBalance = 0
	}

	punctBalance := punctuationBalance(text)

	symbolCount := 0
	for _, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) {
			symbolCount++
		}
	}
	symbolBalance := 1.0 - float64(symbolCount)/float64(n)

	return map[string]float64{
		"ascii_ratio":                 float64(asciiCount) / float64(n),
		"entropy":                     clamp01(normEntropy),
		"readability":                 clamp01(readability),
		"unique_token_ratio":          clamp01(uniqueRatio),
		"non_printable_cleanliness":   clamp01(1.0 - float64(nonPrintable)/float64(n)),
		"repeated_bigram_cleanliness": clamp01(1.0 - bigramRepeat),
		"max_run_cleanliness":         clamp01(maxRunClean),
		"word_length_balance":         clamp01(wordLenBalance),
		"punctuation_balance":         clamp01(punctBalance),
		"symbol_ratio_balance":        clamp01(symbolBalance),
	}
}

func splitSentences(text string) []string {
	var out []string
	var b strings.Builder
	for _, r := range text {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if strings.TrimSpace(b.String()) != "" {
				out = append(out, b.String())
			}
			b.Reset()
		}
	}
	if strings.TrimSpace(b.String()) != "" {
		out = append(out, b.String())
	}
	return out
}

func longestRun(runes []rune) int {
	if len(runes) == 0 {
		return 0
	}
	best, cur := 1, 1
	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			cur++
		} else {
			cur = 1
		}
		if cur > best {
			best = cur
		}
	}
	return best
}

func repeatedBigramRatio(tokens []string) float64 {
	if len(tokens) < 2 {
		return 0
	}
	counts := map[string]int{}
	for i := 0; i+2 <= len(tokens); i++ {
		counts[tokens[i]+" "+tokens[i+1]]++
	}
	total := len(tokens) - 1
	maxCount := 0
	for _, c := range counts {
		if c > maxCount {
			maxCount = c
		}
	}
	if total == 0 {
		return 0
	}
	return float64(maxCount) / float64(total)
}

func punctuationBalance(text string) float64 {
	pairs := map[rune]rune{'(': ')', '[': ']', '{': '}'}
	closers := map[rune]rune{}
	for o, c := range pairs {
		closers[c] = o
	}
	var stack []rune
	mismatches := 0
	total := 0
	quoteCount := 0
	for _, r := range text {
		if _, ok := pairs[r]; ok {
			stack = append(stack, r)
			total++
		} else if open, ok := closers[r]; ok {
			total++
			if len(stack) == 0 || stack[len(stack)-1] != open {
				mismatches++
			} else {
				stack = stack[:len(stack)-1]
			}
		} else if r == '"' || r == '\'' {
			quoteCount++
		}
	}
	mismatches += len(stack)
	if quoteCount%2 != 0 {
		mismatches++
		total++
	}
	if total == 0 {
		return 1
	}
	return 1.0 - float64(mismatches)/float64(total)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

type scoreConfig struct {
	Path       string             `json:"path"`
	TargetKey  string             `json:"target_key"`
	Weights    map[string]float64 `json:"weights"`
	DetailsKey string             `json:"details_key"`
}

// newScoreFactory builds quality.score.
func newScoreFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg scoreConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.Path == "" {
			return nil, zierr.Validation("quality.score requires a path")
		}
		path, err := record.ParseFieldPath(cfg.Path)
		if err != nil {
			return nil, err
		}
		targetKey := cfg.TargetKey
		if targetKey == "" {
			targetKey = "quality_score"
		}
		target, err := record.ParseFieldPath("metadata." + targetKey)
		if err != nil {
			return nil, err
		}
		weights := make(map[string]float64, len(featureOrder))
		for _, f := range featureOrder {
			weights[f] = defaultWeights[f]
		}
		for k, v := range cfg.Weights {
			if v < 0 {
				return nil, zierr.Validation("quality.score: weight for %q must be non-negative", k)
			}
			weights[k] = v
		}
		var detailsTarget *record.FieldPath
		if cfg.DetailsKey != "" {
			dt, err := record.ParseFieldPath("metadata." + cfg.DetailsKey)
			if err != nil {
				return nil, err
			}
			detailsTarget = &dt
		}
		return scoreOperator{
			path:          path,
			target:        target,
			weights:       weights,
			detailsTarget: detailsTarget,
		}, nil
	}
}

type scoreOperator struct {
	path          record.FieldPath
	target        record.FieldPath
	weights       map[string]float64
	detailsTarget *record.FieldPath
}

func (scoreOperator) Name() string { return "quality.score" }

func (o scoreOperator) Apply(batch record.Batch) (record.Batch, error) {
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
		features := computeFeatures(s)
		var sum, weightSum float64
		contributions := make(map[string]float64, len(featureOrder))
		for _, f := range featureOrder {
			w := o.weights[f]
			contribution := w * features[f]
			sum += contribution
			weightSum += w
			contributions[f] = contribution
		}
		score := clamp01(sum)
		o.target.SetValue(&r, score)
		if o.detailsTarget != nil {
			details := map[string]any{
				"components":   features,
				"weights":      o.weights,
				"contributions": contributions,
				"weight_sum":   weightSum,
			}
			o.detailsTarget.SetValue(&r, details)
		}
		out[i] = r
	}
	return out, nil
}

type filterConfig struct {
	Key string  `json:"key"`
	Min float64 `json:"min"`
}

// newFilterFactory builds quality.filter: keeps records whose metadata key
// resolves to a number >= min.
func newFilterFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg filterConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.Key == "" {
			return nil, zierr.Validation("quality.filter requires a key")
		}
		path, err := record.ParseFieldPath("metadata." + cfg.Key)
		if err != nil {
			return nil, err
		}
		return qualityFilterOperator{path: path, min: cfg.Min}, nil
	}
}

type qualityFilterOperator struct {
	path record.FieldPath
	min  float64
}

func (qualityFilterOperator) Name() string { return "quality.filter" }

func (o qualityFilterOperator) Apply(batch record.Batch) (record.Batch, error) {
	out := make(record.Batch, 0, len(batch))
	for _, r := range batch {
		v, ok := o.path.Resolve(r)
		if !ok {
			continue
		}
		n, ok := asNumber(v)
		if !ok || n < o.min {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
