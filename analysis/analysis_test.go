package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func texts(tokens TokenStream) []string {
	var r []string
	for _, t := range tokens {
		r = append(r, t.Text)
	}
	return r
}

func TestLetterDigitTokenizer(t *testing.T) {
	tokens := LetterDigitTokenizer{}.Tokenize("Hello, wörld 42x!")
	assert.Equal(t, TokenStream{
		{Text: "Hello", Start: 0, End: 5, PosInc: 1},
		{Text: "wörld", Start: 7, End: 13, PosInc: 1},
		{Text: "42x", Start: 14, End: 17, PosInc: 1},
	}, tokens)
	assert.Empty(t, LetterDigitTokenizer{}.Tokenize(" ,. "))
}

func TestStopFilter_KeepsPositions(t *testing.T) {
	a := NewStandardAnalyzer([]string{"the", "a"})
	tokens := a.Analyze("body", "The cat and a dog")
	assert.Equal(t, []string{"cat", "and", "dog"}, texts(tokens))
	assert.Equal(t, 2, tokens[0].PosInc)
	assert.Equal(t, 1, tokens[1].PosInc)
	assert.Equal(t, 2, tokens[2].PosInc)
}

func TestEnglishAnalyzer(t *testing.T) {
	tokens := NewEnglishAnalyzer().Analyze("body", "The cats were running")
	assert.Equal(t, []string{"cat", "were", "run"}, texts(tokens))
}

func TestPerFieldAnalyzer(t *testing.T) {
	a := &PerFieldAnalyzer{
		Default: NewSimpleAnalyzer(),
		Fields:  map[string]Analyzer{"id": ByName("keyword")},
	}
	assert.Equal(t, []string{"Doc-1"}, texts(a.Analyze("id", "Doc-1")))
	assert.Equal(t, []string{"doc", "1"}, texts(a.Analyze("body", "Doc-1")))
	assert.Nil(t, ByName("unknown"))
}

func TestLengthFilter(t *testing.T) {
	a := &Chain{Tokenizer: LetterDigitTokenizer{}, Filters: []TokenFilter{LengthFilter{Min: 2, Max: 4}}}
	tokens := a.Analyze("body", "a bb ccccc dd")
	assert.Equal(t, []string{"bb", "dd"}, texts(tokens))
	assert.Equal(t, 2, tokens[0].PosInc)
	assert.Equal(t, 2, tokens[1].PosInc)
}
