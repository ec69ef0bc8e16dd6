package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spanTerm(text string) SpanQuery {
	return NewSpanTermQuery("body", text)
}

// collectSpans returns all spans of q as (doc, start, end) triples.
func collectSpans(t *testing.T, s *Searcher, q SpanQuery) [][3]int {
	spans, err := q.Spans(s.Reader())
	require.NoError(t, err)
	var result [][3]int
	for spans.Next() {
		result = append(result, [3]int{spans.Doc(), spans.Start(), spans.End()})
	}
	require.NoError(t, spans.Err())
	return result
}

func TestSpanTermQuery(t *testing.T) {
	s := catSatIndex(t)
	assert.Equal(t, [][3]int{{0, 1, 2}, {1, 1, 2}}, collectSpans(t, s, spanTerm("cat")))
	assert.Equal(t, [][3]int{{0, 0, 1}, {1, 0, 1}}, collectSpans(t, s, spanTerm("the")))
	assert.Empty(t, collectSpans(t, s, spanTerm("missing")))
}

func TestSpanNearQuery(t *testing.T) {
	s := NewSearcher(createTestIndex(t, "the cat sat", "the cat ran", "a dog sat", "sat the cat"))

	ordered := NewSpanNearQuery([]SpanQuery{spanTerm("cat"), spanTerm("sat")}, 0, true)
	assert.Equal(t, [][3]int{{0, 1, 3}}, collectSpans(t, s, ordered))
	assert.Equal(t, []int{0}, searchDocs(t, s, ordered))

	reversed := NewSpanNearQuery([]SpanQuery{spanTerm("sat"), spanTerm("cat")}, 0, true)
	assert.Empty(t, collectSpans(t, s, reversed))

	unordered := NewSpanNearQuery([]SpanQuery{spanTerm("sat"), spanTerm("cat")}, 0, false)
	assert.Equal(t, [][3]int{{0, 1, 3}}, collectSpans(t, s, unordered))

	sloppy := NewSpanNearQuery([]SpanQuery{spanTerm("sat"), spanTerm("cat")}, 1, false)
	assert.Equal(t, [][3]int{{0, 1, 3}, {3, 0, 3}}, collectSpans(t, s, sloppy))

	sloppyOrdered := NewSpanNearQuery([]SpanQuery{spanTerm("sat"), spanTerm("cat")}, 1, true)
	assert.Equal(t, [][3]int{{3, 0, 3}}, collectSpans(t, s, sloppyOrdered))
}

func TestSpanNearQuery_Nested(t *testing.T) {
	s := NewSearcher(createTestIndex(t, "a b c d", "a b x c d", "c d a b"))
	ab := NewSpanNearQuery([]SpanQuery{spanTerm("a"), spanTerm("b")}, 0, true)
	cd := NewSpanNearQuery([]SpanQuery{spanTerm("c"), spanTerm("d")}, 0, true)
	q := NewSpanNearQuery([]SpanQuery{ab, cd}, 0, true)
	assert.Equal(t, [][3]int{{0, 0, 4}}, collectSpans(t, s, q))

	q.Slop = 1
	assert.Equal(t, [][3]int{{0, 0, 4}, {1, 0, 5}}, collectSpans(t, s, q))
}

func TestSpanFirstQuery(t *testing.T) {
	s := catSatIndex(t)
	assert.Equal(t, []int{0, 1}, searchDocs(t, s, NewSpanFirstQuery(spanTerm("cat"), 2)))
	assert.Empty(t, searchDocs(t, s, NewSpanFirstQuery(spanTerm("sat"), 2)))
	assert.ElementsMatch(t, []int{0, 2}, searchDocs(t, s, NewSpanFirstQuery(spanTerm("sat"), 3)))
}

func TestSpanOrQuery(t *testing.T) {
	s := catSatIndex(t)
	q := NewSpanOrQuery(spanTerm("cat"), spanTerm("dog"), spanTerm("sat"))
	assert.Equal(t, [][3]int{{0, 1, 2}, {0, 2, 3}, {1, 1, 2}, {2, 1, 2}, {2, 2, 3}}, collectSpans(t, s, q))
	assert.ElementsMatch(t, []int{0, 1, 2}, searchDocs(t, s, q))
}

func TestSpanNotQuery(t *testing.T) {
	s := catSatIndex(t)
	theCat := NewSpanNearQuery([]SpanQuery{spanTerm("the"), spanTerm("cat")}, 0, true)

	q := NewSpanNotQuery(theCat, spanTerm("sat"))
	assert.Equal(t, []int{0, 1}, searchDocs(t, s, q), "adjacent spans do not overlap")

	q = NewSpanNotQuery(theCat, spanTerm("cat"))
	assert.Empty(t, searchDocs(t, s, q))

	q = NewSpanNotQuery(spanTerm("sat"), NewSpanOrQuery(spanTerm("dog"), spanTerm("ran")))
	assert.Equal(t, []int{0, 2}, searchDocs(t, s, q))

	q = NewSpanNotQuery(spanTerm("sat"), spanTerm("dog"))
	assert.Equal(t, [][3]int{{0, 2, 3}, {2, 2, 3}}, collectSpans(t, s, q))
}

func TestSpanQuery_DifferentFields(t *testing.T) {
	s := catSatIndex(t)
	q := NewSpanNearQuery([]SpanQuery{spanTerm("cat"), NewSpanTermQuery("id", "0")}, 0, true)
	_, err := s.Search(q, SearchOptions{})
	assert.Error(t, err)
}

func TestSpanScorer_SkipTo(t *testing.T) {
	s := NewSearcher(createTestIndex(t, "a", "b", "a", "a a", "b", "a"))
	w, err := s.CreateWeight(spanTerm("a"))
	require.NoError(t, err)
	scorer, err := w.Scorer(s.Reader())
	require.NoError(t, err)
	require.True(t, scorer.SkipTo(1))
	assert.Equal(t, 2, scorer.Doc())
	require.True(t, scorer.SkipTo(2))
	assert.Equal(t, 3, scorer.Doc(), "skipping to the current document moves forward")
	require.True(t, scorer.Next())
	assert.Equal(t, 5, scorer.Doc())
	assert.False(t, scorer.Next())
	require.NoError(t, scorer.Err())
}
