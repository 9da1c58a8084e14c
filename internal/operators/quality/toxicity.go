package quality

import (
	"strings"
	"unicode"

	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
	"github.com/dunimd/zi/internal/zierr"
)

// toxicityLexicon is a small built-in weighted lexicon. Higher weight means
// a stronger signal. Real deployments would load a larger table via config;
// the built-in set keeps the operator self-contained and deterministic.
var toxicityLexicon = map[string]float64{
	"hate":    0.8,
	"stupid":  0.5,
	"idiot":   0.6,
	"dumb":    0.4,
	"kill":    0.7,
	"attack":  0.5,
	"trash":   0.4,
	"garbage": 0.4,
	"shut up": 0.5,
	"loser":   0.5,
}

var negationWords = map[string]bool{
	"not":   true,
	"never": true,
	"no":    true,
	"without": true,
	"ain't": true,
	"hardly": true,
}

// leetMap normalizes common leetspeak substitutions before lexicon
// matching so "h4te" still matches "hate".
var leetMap = map[rune]rune{
	'0': 'o',
	'1': 'i',
	'3': 'e',
	'4': 'a',
	'5': 's',
	'7': 't',
	'@': 'a',
	'$': 's',
}

func normalizeLeet(s string) string {
	var b strings.Builder
	for _, r := range s {
		if sub, ok := leetMap[r]; ok {
			b.WriteRune(sub)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// toxicityScore implements quality.toxicity's algorithm: leetspeak-tolerant
// lexicon matching with negation-window attenuation, combined with
// match-frequency and emphasis (uppercase ratio, exclamation count) into a
// score in [0,1].
func toxicityScore(text string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	normalized := normalizeLeet(strings.ToLower(text))
	words := strings.Fields(normalized)

	var weightedSum float64
	matchCount := 0
	for i, w := range words {
		clean := strings.Trim(w, ".,!?;:\"'")
		weight, ok := toxicityLexicon[clean]
		if !ok {
			continue
		}
		matchCount++
		multiplier := 1.0
		if i >= 1 && negationWords[strings.Trim(words[i-1], ".,!?;:\"'")] {
			multiplier = 0.4
		} else if i >= 2 && negationWords[strings.Trim(words[i-2], ".,!?;:\"'")] {
			multiplier = 0.7
		}
		weightedSum += weight * multiplier
	}

	frequency := 0.0
	if len(words) > 0 {
		frequency = float64(matchCount) / float64(len(words))
	}

	upper, total := 0, 0
	exclamations := 0
	for _, r := range text {
		if r == '!' {
			exclamations++
		}
		if unicode.IsLetter(r) {
			total++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	upperRatio := 0.0
	if total > 0 {
		upperRatio = float64(upper) / float64(total)
	}
	emphasis := clamp01(upperRatio + float64(exclamations)*0.05)

	score := clamp01(weightedSum*0.6 + frequency*0.25 + emphasis*0.15)
	return score
}

type toxicityConfig struct {
	Path      string `json:"path"`
	TargetKey string `json:"target_key"`
}

// newToxicityFactory builds quality.toxicity.
func newToxicityFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg toxicityConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.Path == "" {
			return nil, zierr.Validation("quality.toxicity requires a path")
		}
		path, err := record.ParseFieldPath(cfg.Path)
		if err != nil {
			return nil, err
		}
		targetKey := cfg.TargetKey
		if targetKey == "" {
			targetKey = "toxicity"
		}
		target, err := record.ParseFieldPath("metadata." + targetKey)
		if err != nil {
			return nil, err
		}
		return toxicityOperator{path: path, target: target}, nil
	}
}

type toxicityOperator struct {
	path   record.FieldPath
	target record.FieldPath
}

func (toxicityOperator) Name() string { return "quality.toxicity" }

func (o toxicityOperator) Apply(batch record.Batch) (record.Batch, error) {
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
		o.target.SetValue(&r, toxicityScore(s))
		out[i] = r
	}
	return out, nil
}
