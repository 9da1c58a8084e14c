// Package augment implements SPEC_FULL.md's augment.* operator family:
// seeded synonym substitution and seeded character-level noise injection,
// grounded on _examples/original_source/src/operators/augment.rs.
package augment

import (
	"math/rand"
	"strings"

	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
	"github.com/dunimd/zi/internal/zierr"
)

// Register adds every augment.* operator factory to r.
func Register(r *registry.Registry) {
	r.Register("augment.synonym", newSynonymFactory())
	r.Register("augment.noise", newNoiseFactory())
}

// --- augment.synonym ---

type synonymEntry struct {
	Word         string
	Replacements []string
}

type synonymConfig struct {
	Path     string `json:"path"`
	Synonyms []struct {
		Word         string   `json:"word"`
		Replacements []string `json:"replacements"`
	} `json:"synonyms"`
	Seed uint64 `json:"seed"`
}

const defaultSynonymSeed uint64 = 0x1badb002

func newSynonymFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg synonymConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.Path == "" {
			return nil, zierr.Validation("augment.synonym requires string 'path'")
		}
		if len(cfg.Synonyms) == 0 {
			return nil, zierr.Validation("augment.synonym 'synonyms' may not be empty")
		}
		path, err := record.ParseFieldPath(cfg.Path)
		if err != nil {
			return nil, err
		}
		entries := make([]synonymEntry, 0, len(cfg.Synonyms))
		for _, e := range cfg.Synonyms {
			if e.Word == "" {
				return nil, zierr.Validation("augment.synonym entry missing 'word'")
			}
			if len(e.Replacements) == 0 {
				return nil, zierr.Validation("augment.synonym 'replacements' may not be empty")
			}
			entries = append(entries, synonymEntry{Word: strings.ToLower(e.Word), Replacements: e.Replacements})
		}
		seed := cfg.Seed
		if seed == 0 {
			seed = defaultSynonymSeed
		}
		return synonymOperator{path: path, synonyms: entries, seed: seed}, nil
	}
}

type synonymOperator struct {
	path     record.FieldPath
	synonyms []synonymEntry
	seed     uint64
}

func (synonymOperator) Name() string { return "augment.synonym" }

func (o synonymOperator) Apply(batch record.Batch) (record.Batch, error) {
	rng := rand.New(rand.NewSource(int64(o.seed)))
	out := make(record.Batch, len(batch))
	for i, r := range batch {
		v, ok := o.path.Resolve(r)
		if !ok {
			out[i] = r
			continue
		}
		text, ok := v.(string)
		if !ok {
			out[i] = r
			continue
		}
		augmented := o.replace(text, rng)
		o.path.SetValue(&r, augmented)
		out[i] = r
	}
	return out, nil
}

func (o synonymOperator) replace(text string, rng *rand.Rand) string {
	if len(o.synonyms) == 0 {
		return text
	}
	words := strings.Fields(text)
	for _, entry := range o.synonyms {
		probability := 1.0 / (float64(len(entry.Replacements)) + 1.0)
		for i, word := range words {
			if strings.EqualFold(word, entry.Word) && rng.Float64() < probability {
				words[i] = entry.Replacements[rng.Intn(len(entry.Replacements))]
			}
		}
	}
	return strings.Join(words, " ")
}

// --- augment.noise ---

type noiseConfig struct {
	Path      string  `json:"path"`
	Intensity float64 `json:"intensity"`
	Seed      uint64  `json:"seed"`
}

const defaultNoiseSeed uint64 = 0xfeedf00d

func newNoiseFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		cfg := noiseConfig{Intensity: 0.1}
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.Path == "" {
			return nil, zierr.Validation("augment.noise requires string 'path'")
		}
		if cfg.Intensity < 0.0 || cfg.Intensity > 1.0 {
			return nil, zierr.Validation("augment.noise 'intensity' must be in [0,1]")
		}
		path, err := record.ParseFieldPath(cfg.Path)
		if err != nil {
			return nil, err
		}
		seed := cfg.Seed
		if seed == 0 {
			seed = defaultNoiseSeed
		}
		return noiseOperator{path: path, intensity: cfg.Intensity, seed: seed}, nil
	}
}

type noiseOperator struct {
	path      record.FieldPath
	intensity float64
	seed      uint64
}

func (noiseOperator) Name() string { return "augment.noise" }

func (o noiseOperator) Apply(batch record.Batch) (record.Batch, error) {
	rng := rand.New(rand.NewSource(int64(o.seed)))
	out := make(record.Batch, len(batch))
	for i, r := range batch {
		v, ok := o.path.Resolve(r)
		if !ok {
			out[i] = r
			continue
		}
		text, ok := v.(string)
		if !ok {
			out[i] = r
			continue
		}
		toggled := o.toggle(text, rng)
		o.path.SetValue(&r, toggled)
		out[i] = r
	}
	return out, nil
}

func (o noiseOperator) toggle(text string, rng *rand.Rand) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, ch := range text {
		switch {
		case isASCIILetter(ch) && rng.Float64() < o.intensity:
			b.WriteRune(swapCase(ch))
		case ch >= '0' && ch <= '9' && rng.Float64() < o.intensity:
			b.WriteRune(rune((ch-'0'+1)%10) + '0')
		default:
			b.WriteRune(ch)
		}
	}
	return b.String()
}

func isASCIILetter(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func swapCase(ch rune) rune {
	if ch >= 'a' && ch <= 'z' {
		return ch - ('a' - 'A')
	}
	return ch + ('a' - 'A')
}
