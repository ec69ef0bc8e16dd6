// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

// Package analysis turns field text into the token streams that get indexed.
package analysis

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kljensen/snowball/english"
)

// Token is one term produced from a field's text.
// PosInc is the distance from the previous token's position, zero stacks the token on the previous one.
type Token struct {
	Text   string
	Start  int
	End    int
	PosInc int
}

// TokenStream is a sequence of tokens in position order.
type TokenStream []Token

// Tokenizer splits text into tokens.
type Tokenizer interface {
	Tokenize(text string) TokenStream
}

// TokenFilter transforms a token stream.
type TokenFilter interface {
	Filter(tokens TokenStream) TokenStream
}

// Analyzer produces the tokens indexed for a field value.
type Analyzer interface {
	Analyze(field, text string) TokenStream
}

// LetterDigitTokenizer splits text on everything that is not a letter or a digit.
// Offsets are byte offsets into the text.
type LetterDigitTokenizer struct{}

func (LetterDigitTokenizer) Tokenize(text string) TokenStream {
	var tokens TokenStream
	start := -1
	for i, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			tokens = append(tokens, Token{Text: text[start:i], Start: start, End: i, PosInc: 1})
			start = -1
		}
	}
	if start >= 0 {
		tokens = append(tokens, Token{Text: text[start:], Start: start, End: len(text), PosInc: 1})
	}
	return tokens
}

// KeywordTokenizer emits the whole text as a single token.
type KeywordTokenizer struct{}

func (KeywordTokenizer) Tokenize(text string) TokenStream {
	if text == "" {
		return nil
	}
	return TokenStream{{Text: text, Start: 0, End: len(text), PosInc: 1}}
}

type LowerCaseFilter struct{}

func (LowerCaseFilter) Filter(tokens TokenStream) TokenStream {
	for i := range tokens {
		tokens[i].Text = strings.ToLower(tokens[i].Text)
	}
	return tokens
}

// StopFilter removes stop words. The position increments of removed tokens are
// carried over to the next kept token, so phrase positions stay intact.
type StopFilter struct {
	words map[string]struct{}
}

func NewStopFilter(words []string) *StopFilter {
	f := &StopFilter{words: make(map[string]struct{}, len(words))}
	for _, w := range words {
		f.words[w] = struct{}{}
	}
	return f
}

func (f *StopFilter) Filter(tokens TokenStream) TokenStream {
	out := tokens[:0]
	skipped := 0
	for _, token := range tokens {
		if _, ok := f.words[token.Text]; ok {
			skipped += token.PosInc
			continue
		}
		token.PosInc += skipped
		skipped = 0
		out = append(out, token)
	}
	return out
}

// StemFilter reduces English words to their stems with the Snowball stemmer.
type StemFilter struct{}

func (StemFilter) Filter(tokens TokenStream) TokenStream {
	for i := range tokens {
		tokens[i].Text = english.Stem(tokens[i].Text, false)
	}
	return tokens
}

// LengthFilter drops tokens whose length in runes is outside of [Min, Max].
type LengthFilter struct {
	Min, Max int
}

func (f LengthFilter) Filter(tokens TokenStream) TokenStream {
	out := tokens[:0]
	skipped := 0
	for _, token := range tokens {
		n := utf8.RuneCountInString(token.Text)
		if n < f.Min || (f.Max > 0 && n > f.Max) {
			skipped += token.PosInc
			continue
		}
		token.PosInc += skipped
		skipped = 0
		out = append(out, token)
	}
	return out
}

// Chain is an analyzer built from a tokenizer and a list of filters.
type Chain struct {
	Tokenizer Tokenizer
	Filters   []TokenFilter
}

func (a *Chain) Analyze(field, text string) TokenStream {
	tokens := a.Tokenizer.Tokenize(text)
	for _, f := range a.Filters {
		tokens = f.Filter(tokens)
	}
	return tokens
}

// EnglishStopWords is the classic English stop word list.
var EnglishStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by",
	"for", "if", "in", "into", "is", "it",
	"no", "not", "of", "on", "or", "such",
	"that", "the", "their", "then", "there", "these",
	"they", "this", "to", "was", "will", "with",
}

// NewSimpleAnalyzer splits on non-alphanumeric characters and lower-cases the tokens.
func NewSimpleAnalyzer() Analyzer {
	return &Chain{Tokenizer: LetterDigitTokenizer{}, Filters: []TokenFilter{LowerCaseFilter{}}}
}

// NewStandardAnalyzer is the simple analyzer with stop words removed.
func NewStandardAnalyzer(stopWords []string) Analyzer {
	return &Chain{
		Tokenizer: LetterDigitTokenizer{},
		Filters:   []TokenFilter{LowerCaseFilter{}, NewStopFilter(stopWords)},
	}
}

// NewEnglishAnalyzer lower-cases, removes English stop words and stems.
func NewEnglishAnalyzer() Analyzer {
	return &Chain{
		Tokenizer: LetterDigitTokenizer{},
		Filters:   []TokenFilter{LowerCaseFilter{}, NewStopFilter(EnglishStopWords), StemFilter{}},
	}
}

// PerFieldAnalyzer selects an analyzer by field name.
type PerFieldAnalyzer struct {
	Default Analyzer
	Fields  map[string]Analyzer
}

func (a *PerFieldAnalyzer) Analyze(field, text string) TokenStream {
	if fa, ok := a.Fields[field]; ok {
		return fa.Analyze(field, text)
	}
	return a.Default.Analyze(field, text)
}

// ByName returns one of the built-in analyzers. Unknown names return nil.
func ByName(name string) Analyzer {
	switch name {
	case "", "simple":
		return NewSimpleAnalyzer()
	case "standard":
		return NewStandardAnalyzer(EnglishStopWords)
	case "english":
		return NewEnglishAnalyzer()
	case "keyword":
		return &Chain{Tokenizer: KeywordTokenizer{}}
	}
	return nil
}
