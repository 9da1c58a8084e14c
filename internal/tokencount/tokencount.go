// Package tokencount implements spec.md §4.M's tokenizer dispatch: a small
// set of always-available counters (whitespace, character, word) plus
// lazily-initialized BPE counters for OpenAI-family model tags, following
// the Tokenizer-interface idiom the reference engine's text splitters use
// for pluggable tokenization.
package tokencount

import (
	"strings"
	"sync"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
)

// Kind selects which counting algorithm to use.
type Kind string

const (
	KindWhitespace Kind = "whitespace"
	KindCharacter  Kind = "character"
	KindWord       Kind = "word"
	KindBPE        Kind = "bpe"
)

// Tokenizer counts tokens in a string under one algorithm.
type Tokenizer interface {
	Count(text string) int
}

type whitespaceTokenizer struct{}

func (whitespaceTokenizer) Count(text string) int {
	return len(strings.Fields(text))
}

type characterTokenizer struct{}

func (characterTokenizer) Count(text string) int {
	return len([]rune(text))
}

// wordTokenizer counts whitespace tokens plus Han ideograph code points,
// since CJK text carries no whitespace word boundaries.
type wordTokenizer struct{}

func (wordTokenizer) Count(text string) int {
	count := len(strings.Fields(text))
	for _, r := range text {
		if unicode.Is(unicode.Han, r) {
			count++
		}
	}
	return count
}

type bpeTokenizer struct {
	enc *tiktoken.Tiktoken
}

func (b bpeTokenizer) Count(text string) int {
	return len(b.enc.Encode(text, nil, nil))
}

var (
	bpeMu    sync.Mutex
	bpeCache = map[string]Tokenizer{}
)

// ForModel returns the BPE tokenizer for an OpenAI-family model tag, lazily
// constructing and caching the underlying encoding. On initialization
// failure it falls back to whitespace counting, per spec.md §4.M.
func ForModel(model string) Tokenizer {
	bpeMu.Lock()
	defer bpeMu.Unlock()
	if t, ok := bpeCache[model]; ok {
		return t
	}
	enc, err := tiktoken.EncodingForModel(model)
	var t Tokenizer
	if err != nil {
		t = whitespaceTokenizer{}
	} else {
		t = bpeTokenizer{enc: enc}
	}
	bpeCache[model] = t
	return t
}

// ForKind returns the always-available tokenizer for kind, or the BPE
// tokenizer for model when kind is KindBPE.
func ForKind(kind Kind, model string) Tokenizer {
	switch kind {
	case KindCharacter:
		return characterTokenizer{}
	case KindWord:
		return wordTokenizer{}
	case KindBPE:
		return ForModel(model)
	default:
		return whitespaceTokenizer{}
	}
}
