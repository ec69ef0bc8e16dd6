package search

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func animalsIndex(t *testing.T) *Searcher {
	return NewSearcher(createTestIndex(t,
		"cat", "car", "cart", "bat", "category", "dog", "cut", "coat",
	))
}

func TestPrefixQuery(t *testing.T) {
	s := animalsIndex(t)
	assert.ElementsMatch(t, []int{0, 1, 2, 4}, searchDocs(t, s, NewPrefixQuery("body", "ca")))
	assert.ElementsMatch(t, []int{0, 4}, searchDocs(t, s, NewPrefixQuery("body", "cat")))
	assert.Empty(t, searchDocs(t, s, NewPrefixQuery("body", "x")))
}

func TestPrefixQuery_TooManyClauses(t *testing.T) {
	s := animalsIndex(t)
	defer func(n int) { MaxClauseCount = n }(MaxClauseCount)
	MaxClauseCount = 2
	_, err := s.Search(NewPrefixQuery("body", "c"), SearchOptions{})
	assert.True(t, errors.Is(err, ErrTooManyClauses), "expected too many clauses, got %v", err)
}

func TestWildcardQuery(t *testing.T) {
	s := animalsIndex(t)
	tests := []struct {
		pattern  string
		expected []int
	}{
		{"c?t", []int{0, 6}},
		{"ca*", []int{0, 1, 2, 4}},
		{"*at", []int{0, 3, 7}},
		{"c*t", []int{0, 2, 6, 7}},
		{"*", []int{0, 1, 2, 3, 4, 5, 6, 7}},
		{"dog", []int{5}},
		{"c??t", []int{2, 7}},
		{"x*", nil},
	}
	for _, test := range tests {
		t.Run(test.pattern, func(t *testing.T) {
			assert.ElementsMatch(t, test.expected, searchDocs(t, s, NewWildcardQuery("body", test.pattern)))
		})
	}

	_, err := s.Search(NewWildcardQuery("body", ""), SearchOptions{})
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestWildcardMatch(t *testing.T) {
	assert.True(t, wildcardMatch("a*b*c", "aXXbYYc"))
	assert.True(t, wildcardMatch("a*", "a"))
	assert.True(t, wildcardMatch("?ü?", "aüb"))
	assert.False(t, wildcardMatch("a*b", "aXXbc"))
	assert.False(t, wildcardMatch("??", "a"))
	assert.True(t, wildcardMatch("**", ""))
}

func TestFuzzyQuery(t *testing.T) {
	s := animalsIndex(t)
	hits, err := s.Search(NewFuzzyQuery("body", "cat"), SearchOptions{})
	require.NoError(t, err)
	var docs []int
	for _, hit := range hits.ScoreDocs {
		docs = append(docs, hit.Doc)
	}
	// edit distance 1 from a 3 letter word has similarity 0.67, the exact match scores highest
	assert.ElementsMatch(t, []int{0, 1, 2, 3, 6, 7}, docs)
	assert.Equal(t, 0, docs[0])

	q := NewFuzzyQuery("body", "cat")
	q.PrefixLength = 2
	assert.ElementsMatch(t, []int{0, 1, 2}, searchDocs(t, s, q))

	q = NewFuzzyQuery("body", "cat")
	q.MinSimilarity = 0.9
	assert.Equal(t, []int{0}, searchDocs(t, s, q))

	q.MinSimilarity = 1
	_, err = s.Search(q, SearchOptions{})
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestFuzzySimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, fuzzySimilarity([]rune("cat"), []rune("cat"), 0, 0.5), 1e-9)
	assert.InDelta(t, 1-1.0/3, fuzzySimilarity([]rune("cat"), []rune("cut"), 0, 0.5), 1e-9)
	assert.InDelta(t, 1-1.0/3, fuzzySimilarity([]rune("cat"), []rune("cart"), 0, 0.5), 1e-9)
	assert.Equal(t, 0.0, fuzzySimilarity([]rune("cat"), []rune("category"), 0, 0.5))
	assert.InDelta(t, 0.5, fuzzySimilarity([]rune("t"), []rune(""), 2, 0.1), 1e-9)
}

func TestRangeQuery(t *testing.T) {
	s := animalsIndex(t)
	tests := []struct {
		name     string
		query    *RangeQuery
		expected []int
	}{
		{"Inclusive", NewRangeQuery("body", "car", "cat"), []int{0, 1, 2}},
		{"ExcludeLower", &RangeQuery{Field: "body", Lower: "car", Upper: "cat", IncludeUpper: true}, []int{0, 2}},
		{"ExcludeUpper", &RangeQuery{Field: "body", Lower: "car", Upper: "cat", IncludeLower: true}, []int{1, 2}},
		{"OpenLower", &RangeQuery{Field: "body", Upper: "bat", IncludeUpper: true}, []int{3}},
		{"OpenUpper", &RangeQuery{Field: "body", Lower: "cut", IncludeLower: true}, []int{5, 6}},
		{"Empty", NewRangeQuery("body", "x", "z"), nil},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.ElementsMatch(t, test.expected, searchDocs(t, s, test.query))
		})
	}

	for _, q := range []*RangeQuery{NewRangeQuery("body", "", ""), NewRangeQuery("body", "z", "a")} {
		_, err := s.Search(q, SearchOptions{})
		assert.True(t, errors.Is(err, ErrInvalidArgument), "range %v", q)
	}
}
