package filter

import (
	"regexp"
	"strings"

	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
	"github.com/dunimd/zi/internal/zierr"
)

type stringMatchConfig struct {
	Path            string `json:"path"`
	Value           string `json:"value"`
	CaseInsensitive bool   `json:"case_insensitive"`
}

func startsWith(s, v string) bool      { return strings.HasPrefix(s, v) }
func endsWith(s, v string) bool        { return strings.HasSuffix(s, v) }
func containsSubstr(s, v string) bool  { return strings.Contains(s, v) }

// newStringMatchFactory builds filter.starts_with / filter.ends_with /
// filter.contains: string-only comparisons that never match a non-string
// or missing value.
func newStringMatchFactory(match func(s, v string) bool) registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg stringMatchConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		path, err := record.ParseFieldPath(cfg.Path)
		if err != nil {
			return nil, err
		}
		want := cfg.Value
		if cfg.CaseInsensitive {
			want = strings.ToLower(want)
		}
		return predicateOperator{
			name: "filter.string_match",
			predicate: func(r record.Record) bool {
				v, ok := path.Resolve(r)
				if !ok {
					return false
				}
				s, ok := v.(string)
				if !ok {
					return false
				}
				if cfg.CaseInsensitive {
					s = strings.ToLower(s)
				}
				return match(s, want)
			},
		}, nil
	}
}

type regexConfig struct {
	Path            string `json:"path"`
	Pattern         string `json:"pattern"`
	CaseInsensitive bool   `json:"case_insensitive"`
}

// newRegexFactory builds filter.regex.
func newRegexFactory() registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg regexConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		pattern := cfg.Pattern
		if cfg.CaseInsensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, zierr.Validation("filter.regex: invalid pattern: %s", err)
		}
		path, err := record.ParseFieldPath(cfg.Path)
		if err != nil {
			return nil, err
		}
		return predicateOperator{
			name: "filter.regex",
			predicate: func(r record.Record) bool {
				v, ok := path.Resolve(r)
				if !ok {
					return false
				}
				s, ok := v.(string)
				if !ok {
					return false
				}
				return re.MatchString(s)
			},
		}, nil
	}
}

type containsSetConfig struct {
	Path            string   `json:"path"`
	Values          []string `json:"values"`
	CaseInsensitive bool     `json:"case_insensitive"`
}

func containsAll(s string, values []string) bool {
	for _, v := range values {
		if !strings.Contains(s, v) {
			return false
		}
	}
	return true
}

func containsAny(s string, values []string) bool {
	for _, v := range values {
		if strings.Contains(s, v) {
			return true
		}
	}
	return false
}

func containsNone(s string, values []string) bool {
	return !containsAny(s, values)
}

// newContainsSetFactory builds filter.contains_all / filter.contains_any /
// filter.contains_none over a string field against a set of substrings.
func newContainsSetFactory(match func(s string, values []string) bool) registry.Factory {
	return func(config any) (registry.Operator, error) {
		var cfg containsSetConfig
		if err := registry.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if len(cfg.Values) == 0 {
			return nil, zierr.Validation("filter.contains_* requires a non-empty values array")
		}
		path, err := record.ParseFieldPath(cfg.Path)
		if err != nil {
			return nil, err
		}
		values := cfg.Values
		if cfg.CaseInsensitive {
			values = make([]string, len(cfg.Values))
			for i, v := range cfg.Values {
				values[i] = strings.ToLower(v)
			}
		}
		return predicateOperator{
			name: "filter.contains_set",
			predicate: func(r record.Record) bool {
				v, ok := path.Resolve(r)
				if !ok {
					return false
				}
				s, ok := v.(string)
				if !ok {
					return false
				}
				if cfg.CaseInsensitive {
					s = strings.ToLower(s)
				}
				return match(s, values)
			},
		}, nil
	}
}
