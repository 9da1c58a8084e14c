// Package lang implements the lang.* operator family (spec.md §4.D):
// lightweight language identification via Unicode-script ratios combined
// with per-language trigram profiles, and a standalone confidence score.
package lang

import (
	"sort"
	"strings"
	"unicode"

	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
	"github.com/dunimd/zi/internal/zierr"
)

// Register adds every lang.* operator factory to r.
func Register(r *registry.Registry) {
	r.Register("lang.detect", newDetectFactory())
	r.Register("lang.confidence", newConfidenceFactory())
}

// scriptOf classifies a rune into one of the script buckets spec.md names,
// or "" when it belongs to none of them (whitespace, digits, punctuation).
func scriptOf(r rune) string {
	switch {
	case unicode.Is(unicode.Han, r):
		return "cjk"
	case unicode.Is(unicode.Hiragana, r), unicode.Is(unicode.Katakana, r):
		return "cjk"
	case unicode.Is(unicode.Hangul, r):
		return "cjk"
	case unicode.Is(unicode.Arabic, r):
		return "arabic"
	case unicode.Is(unicode.Cyrillic, r):
		return "cyrillic"
	case unicode.Is(unicode.Devanagari, r):
		return "devanagari"
	case unicode.Is(unicode.Latin, r):
		return "latin"
	default:
		return ""
	}
}

// scriptCounts tallies the five recognized scripts plus a running total of
// letter-class runes seen.
type scriptCounts struct {
	counts map[string]int
	total  int
}

func countScripts(text string) scriptCounts {
	sc := scriptCounts{counts: map[string]int{}}
	for _, r := range text {
		s := scriptOf(r)
		if s == "" {
			continue
		}
		sc.counts[s]++
		sc.total++
	}
	return sc
}

func (sc scriptCounts) dominant() (string, int) {
	best, bestCount := "", 0
	keys := make([]string, 0, len(sc.counts))
	for k := range sc.counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if sc.counts[k] > bestCount {
			best, bestCount = k, sc.counts[k]
		}
	}
	return best, bestCount
}

// latinTrigrams maps a handful of Latin-script languages to characteristic
// trigrams, used to disambiguate within the "latin" script bucket.
var latinTrigrams = map[string][]string{
	"en": {"the", "ing", "and", "ion", "tio"},
	"es": {"de ", "que", "ent", "ion", "ado"},
	"fr": {"les", "de ", "ent", "ion", "que"},
	"de": {"der", "die", "und", "ich", "sch"},
	"pt": {"de ", "que", "ção", "ent", "ado"},
	"it": {"di ", "che", "ent", "zio", "are"},
}

func scoreTrigrams(text string) (string, float64) {
	lower := strings.ToLower(text)
	runes := []rune(lower)
	if len(runes) < 3 {
		return "en", 0
	}
	counts := map[string]int{}
	for i := 0; i+3 <= len(runes); i++ {
		counts[string(runes[i:i+3])]++
	}
	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return "en", 0
	}

	best, bestScore := "en", -1.0
	langs := make([]string, 0, len(latinTrigrams))
	for l := range latinTrigrams {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	for _, l := range langs {
		grams := latinTrigrams[l]
		score := 0
		for _, g := range grams {
			score += counts[g]
		}
		norm := float64(score) / float64(total)
		if norm > bestScore {
			best, bestScore = l, norm
		}
	}
	return best, bestScore
}

var scriptLanguage = map[string]string{
	"cjk":        "zh",
	"arabic":     "ar",
	"cyrillic":   "ru",
	"devanagari": "hi",
	"latin":      "en",
}

// detectLanguage implements the lang.detect heuristic: script-ratio counts
// select the dominant script bucket; within the Latin bucket, trigram
// profiles disambiguate specific languages. A tie-break biases toward
// English when the ASCII ratio exceeds 0.9 and the winning score is close
// to the runner-up.
func detectLanguage(text string) string {
	if strings.TrimSpace(text) == "" {
		return "unknown"
	}
	sc := countScripts(text)
	if sc.total == 0 {
		return "unknown"
	}
	dominant, dominantCount := sc.dominant()

	asciiRatio := asciiRatioOf(text)

	if dominant != "latin" {
		// Bias to English when the text is overwhelmingly ASCII even if a
		// few non-Latin runes tipped the raw count, per the documented
		// tie-break.
		if asciiRatio > 0.9 {
			second := secondScript(sc, dominant)
			if second == "latin" && closeScores(sc, dominant, "latin") {
				return "en"
			}
		}
		return scriptLanguage[dominant]
	}

	lang, _ := scoreTrigrams(text)
	_ = dominantCount
	return lang
}

func secondScript(sc scriptCounts, exclude string) string {
	best, bestCount := "", -1
	keys := make([]string, 0, len(sc.counts))
	for k := range sc.counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == exclude {
			continue
		}
		if sc.counts[k] > bestCount {
			best, bestCount = k, sc.counts[k]
		}
	}
	return best
}

func closeScores(sc scriptCounts, a, b string) bool {
	ca, cb := sc.counts[a], sc.counts[b]
	if ca == 0 {
		return false
	}
	diff := ca - cb
	if diff < 0 {
		diff = -diff
	}
	return float64(diff)/float64(ca) < 0.2
}

func asciiRatioOf(text string) float64 {
	total := 0
	ascii := 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if r < 128 {
			ascii++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(ascii) / float64(total)
}

// confidenceOf is lang.confidence's standalone metric: the dominant
// script's share of total recognized-script characters, clamped to [0,1].
func confidenceOf(text string) float64 {
	sc := countScripts(text)
	if sc.total == 0 {
		return 0
	}
	_, count := sc.dominant()
	c := float64(count) / float64(sc.total)
	if c > 1 {
		c = 1
	}
	if c < 0 {
		c = 0
	}
	return c
}

type pathTargetConfig struct {
	Path      string `json:"path"`
	TargetKey string `json:"target_key"`
}

// newDetectFactory builds lang.detect: writes the detected ISO code to
// metadata.language by default.
func newDetectFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg pathTargetConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.Path == "" {
			return nil, zierr.Validation("lang.detect requires a path")
		}
		path, err := record.ParseFieldPath(cfg.Path)
		if err != nil {
			return nil, err
		}
		targetKey := cfg.TargetKey
		if targetKey == "" {
			targetKey = "language"
		}
		target, err := record.ParseFieldPath("metadata." + targetKey)
		if err != nil {
			return nil, err
		}
		return writeOperator{
			name: "lang.detect",
			path: path,
			fn:   func(s string) any { return detectLanguage(s) },
			target: target,
		}, nil
	}
}

// newConfidenceFactory builds lang.confidence: writes the dominant-script
// ratio to metadata.language_confidence by default.
func newConfidenceFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg pathTargetConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.Path == "" {
			return nil, zierr.Validation("lang.confidence requires a path")
		}
		path, err := record.ParseFieldPath(cfg.Path)
		if err != nil {
			return nil, err
		}
		targetKey := cfg.TargetKey
		if targetKey == "" {
			targetKey = "language_confidence"
		}
		target, err := record.ParseFieldPath("metadata." + targetKey)
		if err != nil {
			return nil, err
		}
		return writeOperator{
			name: "lang.confidence",
			path: path,
			fn:   func(s string) any { return confidenceOf(s) },
			target: target,
		}, nil
	}
}

type writeOperator struct {
	name   string
	path   record.FieldPath
	target record.FieldPath
	fn     func(string) any
}

func (o writeOperator) Name() string { return o.name }

func (o writeOperator) Apply(batch record.Batch) (record.Batch, error) {
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
		o.target.SetValue(&r, o.fn(s))
		out[i] = r
	}
	return out, nil
}
