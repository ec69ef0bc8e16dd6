package search

import (
	"testing"

	"github.com/acoustid/go-textindex/analysis"
	"github.com/acoustid/go-textindex/index"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeQuery(t *testing.T) {
	tests := []struct {
		name     string
		json     string
		expected Query
	}{
		{
			"Term",
			`{"type": "term", "field": "body", "text": "cat", "boost": 2}`,
			&TermQuery{Term: index.NewTerm("body", "cat"), Boost: 2},
		},
		{
			"Bool",
			`{"type": "bool", "must": [{"type": "term", "field": "body", "text": "cat"}],
			  "must_not": [{"type": "prefix", "field": "body", "text": "ra"}], "minimum_should_match": 1}`,
			&BooleanQuery{
				Clauses: []BooleanClause{
					{Query: NewTermQuery("body", "cat"), Occur: Must},
					{Query: NewPrefixQuery("body", "ra"), Occur: MustNot},
				},
				MinimumShouldMatch: 1,
			},
		},
		{
			"Phrase",
			`{"type": "phrase", "field": "body", "terms": ["cat", "sat"], "slop": 2}`,
			&PhraseQuery{Field: "body", Terms: [][]string{{"cat"}, {"sat"}}, Positions: []int{0, 1}, Slop: 2},
		},
		{
			"PhraseAlternatives",
			`{"type": "phrase", "field": "body", "alternatives": [["the", "a"], ["cat"]]}`,
			&PhraseQuery{Field: "body", Terms: [][]string{{"the", "a"}, {"cat"}}, Positions: []int{0, 1}},
		},
		{
			"Range",
			`{"type": "range", "field": "id", "lower": "1", "upper": "5", "exclude_upper": true}`,
			&RangeQuery{Field: "id", Lower: "1", Upper: "5", IncludeLower: true},
		},
		{
			"Fuzzy",
			`{"type": "fuzzy", "field": "body", "text": "cat", "min_similarity": 0.6, "prefix_length": 1}`,
			&FuzzyQuery{Field: "body", Text: "cat", MinSimilarity: 0.6, PrefixLength: 1},
		},
		{
			"MatchAll",
			`{"type": "match_all"}`,
			&MatchAllDocsQuery{},
		},
		{
			"SpanNear",
			`{"type": "span_near", "slop": 1, "in_order": true, "clauses": [
			  {"type": "span_term", "field": "body", "text": "cat"},
			  {"type": "span_first", "end": 3, "match": {"type": "span_term", "field": "body", "text": "sat"}}]}`,
			&SpanNearQuery{
				Clauses: []SpanQuery{
					NewSpanTermQuery("body", "cat"),
					NewSpanFirstQuery(NewSpanTermQuery("body", "sat"), 3),
				},
				Slop:    1,
				InOrder: true,
			},
		},
		{
			"SpanNot",
			`{"type": "span_not", "include": {"type": "span_or", "clauses": [{"type": "span_term", "field": "body", "text": "cat"}]},
			  "exclude": {"type": "span_term", "field": "body", "text": "sat"}}`,
			&SpanNotQuery{
				Include: NewSpanOrQuery(NewSpanTermQuery("body", "cat")),
				Exclude: NewSpanTermQuery("body", "sat"),
			},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			q, err := DecodeQuery([]byte(test.json))
			require.NoError(t, err)
			assert.Equal(t, test.expected, q)
		})
	}
}

func TestDecodeQuery_Invalid(t *testing.T) {
	tests := map[string]string{
		"Malformed":       `{"type": "term"`,
		"UnknownType":     `{"type": "regexp", "field": "body", "text": "c.t"}`,
		"NestedUnknown":   `{"type": "bool", "should": [{"type": "nope"}]}`,
		"SpanNotSpan":     `{"type": "span_near", "clauses": [{"type": "term", "field": "body", "text": "cat"}]}`,
		"MissingSpanPart": `{"type": "span_not", "include": {"type": "span_term", "field": "body", "text": "cat"}}`,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeQuery([]byte(data))
			assert.True(t, errors.Is(err, ErrInvalidArgument), "expected invalid argument, got %v", err)
		})
	}
}

func TestDecodeQuery_Search(t *testing.T) {
	s := catSatIndex(t)
	q, err := DecodeQuery([]byte(`{"type": "bool",
		"should": [{"type": "term", "field": "body", "text": "sat"}, {"type": "term", "field": "body", "text": "ran"}],
		"must_not": [{"type": "phrase", "field": "body", "terms": ["dog", "sat"]}]}`))
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{0, 1}, searchDocs(t, s, q))
}

func TestParseQuery(t *testing.T) {
	simple := analysis.ByName("simple")
	tests := []struct {
		text     string
		expected Query
	}{
		{
			"Cat",
			NewBooleanQuery().Add(NewTermQuery("body", "cat"), Should),
		},
		{
			"+cat -dog sat",
			NewBooleanQuery().
				Add(NewTermQuery("body", "cat"), Must).
				Add(NewTermQuery("body", "dog"), MustNot).
				Add(NewTermQuery("body", "sat"), Should),
		},
		{
			`"The Cat" id:7`,
			NewBooleanQuery().
				Add(NewPhraseQuery("body", "the", "cat"), Should).
				Add(NewTermQuery("id", "7"), Should),
		},
		{
			"+ca* -",
			NewBooleanQuery().Add(NewPrefixQuery("body", "ca"), Must),
		},
	}
	for _, test := range tests {
		t.Run(test.text, func(t *testing.T) {
			q, err := ParseQuery(test.text, "body", simple)
			require.NoError(t, err)
			assert.Equal(t, test.expected, q)
		})
	}
}

func TestParseQuery_StopWords(t *testing.T) {
	q, err := ParseQuery(`"quick the fox"`, "body", analysis.ByName("standard"))
	require.NoError(t, err)
	phrase := &PhraseQuery{Field: "body"}
	phrase.AddAt(0, "quick").AddAt(2, "fox")
	assert.Equal(t, NewBooleanQuery().Add(phrase, Should), q)

	_, err = ParseQuery("the a", "body", analysis.ByName("standard"))
	assert.True(t, errors.Is(err, ErrInvalidArgument), "only stop words, got %v", err)

	_, err = ParseQuery("  ", "body", analysis.ByName("simple"))
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestParseQuery_Search(t *testing.T) {
	s := catSatIndex(t)
	q, err := ParseQuery(`sat -"dog sat"`, "body", analysis.ByName("simple"))
	require.NoError(t, err)
	assert.Equal(t, []int{0}, searchDocs(t, s, q))
}

func TestSplitQuery(t *testing.T) {
	assert.Equal(t, []string{"a", `+"b c"`, "d"}, splitQuery(`  a +"b c"   d `))
	assert.Equal(t, []string{`"open phrase`}, splitQuery(`"open phrase`))
	assert.Empty(t, splitQuery(""))
}
