// Package pii implements the pii.redact operator (spec.md §4.D):
// regex-driven PII detection with placeholder/mask/hash redaction
// strategies, an allowlist, and optional match recording.
package pii

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
	"github.com/dunimd/zi/internal/zierr"
)

// Register adds the pii.redact operator factory to r.
func Register(r *registry.Registry) {
	r.Register("pii.redact", newRedactFactory())
}

var builtinPatterns = map[string]string{
	"email": `[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`,
	"phone": `(?:\+?\d{1,3}[\s.\-]?)?\(?\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}`,
	"card":  `\b(?:\d[ \-]?){13,16}\b`,
	"url":   `https?://[^\s"'<>]+`,
}

type ruleConfig struct {
	Name    string `json:"name"`
	Pattern string `json:"pattern"`
}

type redactConfig struct {
	Path            string       `json:"path"`
	Rules           []ruleConfig `json:"rules"`
	DisableBuiltins []string     `json:"disable_builtins"`
	Strategy        string       `json:"strategy"` // placeholder | mask | hash
	PrefixKeep      int          `json:"prefix_keep"`
	SuffixKeep      int          `json:"suffix_keep"`
	MaskChar        string       `json:"mask_char"`
	Salt            string       `json:"salt"`
	StoreKey        string       `json:"store_key"`
	StoreOriginal   bool         `json:"store_original"`
	ContextWindow   int          `json:"context_window"`
	Allowlist       []string     `json:"allowlist"`
}

type compiledRule struct {
	name string
	re   *regexp.Regexp
}

// newRedactFactory builds pii.redact.
func newRedactFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg redactConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.Path == "" {
			return nil, zierr.Validation("pii.redact requires a path")
		}
		path, err := record.ParseFieldPath(cfg.Path)
		if err != nil {
			return nil, err
		}

		disabled := make(map[string]bool, len(cfg.DisableBuiltins))
		for _, d := range cfg.DisableBuiltins {
			disabled[d] = true
		}

		var rules []compiledRule
		for name, pattern := range builtinPatterns {
			if disabled[name] {
				continue
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, zierr.Validation("pii.redact: invalid builtin pattern %q: %s", name, err)
			}
			rules = append(rules, compiledRule{name: name, re: re})
		}
		for _, rc := range cfg.Rules {
			if rc.Name == "" || rc.Pattern == "" {
				return nil, zierr.Validation("pii.redact: user rule requires name and pattern")
			}
			re, err := regexp.Compile(rc.Pattern)
			if err != nil {
				return nil, zierr.Validation("pii.redact: invalid rule %q: %s", rc.Name, err)
			}
			rules = append(rules, compiledRule{name: rc.Name, re: re})
		}

		strategy := cfg.Strategy
		if strategy == "" {
			strategy = "placeholder"
		}
		switch strategy {
		case "placeholder", "mask", "hash":
		default:
			return nil, zierr.Validation("pii.redact: unknown strategy %q", strategy)
		}

		maskChar := cfg.MaskChar
		if maskChar == "" {
			maskChar = "*"
		}

		allowlist := make(map[string]bool, len(cfg.Allowlist))
		for _, a := range cfg.Allowlist {
			allowlist[strings.ToLower(a)] = true
		}

		var storeTarget *record.FieldPath
		if cfg.StoreKey != "" {
			t, err := record.ParseFieldPath("metadata." + cfg.StoreKey)
			if err != nil {
				return nil, err
			}
			storeTarget = &t
		}

		return redactOperator{
			path:          path,
			rules:         rules,
			strategy:      strategy,
			prefixKeep:    cfg.PrefixKeep,
			suffixKeep:    cfg.SuffixKeep,
			maskChar:      maskChar,
			salt:          cfg.Salt,
			storeTarget:   storeTarget,
			storeOriginal: cfg.StoreOriginal,
			contextWindow: cfg.ContextWindow,
			allowlist:     allowlist,
		}, nil
	}
}

type redactOperator struct {
	path          record.FieldPath
	rules         []compiledRule
	strategy      string
	prefixKeep    int
	suffixKeep    int
	maskChar      string
	salt          string
	storeTarget   *record.FieldPath
	storeOriginal bool
	contextWindow int
	allowlist     map[string]bool
}

func (redactOperator) Name() string { return "pii.redact" }

type match struct {
	name  string
	start int
	end   int
	text  string
}

func (o redactOperator) Apply(batch record.Batch) (record.Batch, error) {
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

		var matches []match
		for _, rule := range o.rules {
			for _, loc := range rule.re.FindAllStringIndex(s, -1) {
				text := s[loc[0]:loc[1]]
				if o.allowlist[strings.ToLower(text)] {
					continue
				}
				matches = append(matches, match{name: rule.name, start: loc[0], end: loc[1], text: text})
			}
		}
		if len(matches) == 0 {
			out[i] = r
			continue
		}
		// Sort by start position so overlapping rule matches redact in
		// document order and the rebuild below never reorders text.
		for a := 1; a < len(matches); a++ {
			for b := a; b > 0 && matches[b-1].start > matches[b].start; b-- {
				matches[b-1], matches[b] = matches[b], matches[b-1]
			}
		}
		matches = dedupeOverlaps(matches)

		var b strings.Builder
		last := 0
		var records []map[string]any
		for _, m := range matches {
			if m.start < last {
				continue
			}
			b.WriteString(s[last:m.start])
			b.WriteString(o.redactedValue(m.text))
			last = m.end

			entry := map[string]any{"type": m.name}
			if o.storeOriginal {
				entry["original"] = m.text
			}
			if o.contextWindow > 0 {
				cs := m.start - o.contextWindow
				if cs < 0 {
					cs = 0
				}
				ce := m.end + o.contextWindow
				if ce > len(s) {
					ce = len(s)
				}
				entry["context"] = s[cs:ce]
			}
			records = append(records, entry)
		}
		b.WriteString(s[last:])
		o.path.SetValue(&r, b.String())

		if o.storeTarget != nil {
			existing, _ := o.storeTarget.Resolve(r)
			var arr []any
			if existingArr, ok := existing.([]any); ok {
				arr = existingArr
			}
			for _, e := range records {
				arr = append(arr, e)
			}
			o.storeTarget.SetValue(&r, arr)
		}

		out[i] = r
	}
	return out, nil
}

func dedupeOverlaps(matches []match) []match {
	var out []match
	last := -1
	for _, m := range matches {
		if m.start < last {
			continue
		}
		out = append(out, m)
		last = m.end
	}
	return out
}

func (o redactOperator) redactedValue(original string) string {
	switch o.strategy {
	case "mask":
		return maskValue(original, o.prefixKeep, o.suffixKeep, o.maskChar)
	case "hash":
		return hashValue(original, o.salt, o.prefixKeep, o.suffixKeep)
	default:
		return "[REDACTED]"
	}
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// maskValue keeps a configured prefix/suffix of alphanumeric characters and
// replaces the rest with maskChar, leaving non-alphanumeric boundary
// characters (like "@" or ".") untouched.
func maskValue(s string, prefixKeep, suffixKeep int, maskChar string) string {
	runes := []rune(s)
	n := len(runes)
	out := make([]rune, n)
	alnumIdx := 0
	alnumTotal := 0
	for _, r := range runes {
		if isAlnum(r) {
			alnumTotal++
		}
	}
	seen := 0
	for i, r := range runes {
		if !isAlnum(r) {
			out[i] = r
			continue
		}
		seen++
		alnumIdx = seen
		if alnumIdx <= prefixKeep || alnumTotal-alnumIdx < suffixKeep {
			out[i] = r
		} else {
			out[i] = []rune(maskChar)[0]
		}
	}
	return string(out)
}

// hashValue salts and hashes the match, preserving a prefix/suffix the way
// maskValue does, and keeping any leading and trailing non-alphanumeric
// characters of the match around the hashed core.
func hashValue(s, salt string, prefixKeep, suffixKeep int) string {
	sum := sha256.Sum256([]byte(salt + s))
	digest := hex.EncodeToString(sum[:])[:12]
	runes := []rune(s)
	prefix := ""
	suffix := ""
	alnum := []rune{}
	for _, r := range runes {
		if isAlnum(r) {
			alnum = append(alnum, r)
		}
	}
	if prefixKeep > 0 && prefixKeep <= len(alnum) {
		prefix = string(alnum[:prefixKeep])
	}
	if suffixKeep > 0 && suffixKeep <= len(alnum) {
		suffix = string(alnum[len(alnum)-suffixKeep:])
	}
	start, end := 0, len(runes)
	for start < end && !isAlnum(runes[start]) {
		start++
	}
	for end > start && !isAlnum(runes[end-1]) {
		end--
	}
	return string(runes[:start]) + prefix + "#" + digest + "#" + suffix + string(runes[end:])
}
