package search

import (
	"math"
	"math/rand"
	"strconv"
	"strings"
	"testing"

	"github.com/acoustid/go-textindex/document"
	"github.com/acoustid/go-textindex/index"
	"github.com/acoustid/go-textindex/util/vfs"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestIndex indexes the texts into the body field, two documents per segment.
func createTestIndex(t *testing.T, texts ...string) index.Reader {
	docs := make([]*document.Document, len(texts))
	for i, text := range texts {
		docs[i] = document.New(
			document.Keyword("id", strconv.Itoa(i)),
			document.Int("n", int64(len(texts)-i)),
			document.Text("body", text),
		)
	}
	return createDocsIndex(t, docs...)
}

func createDocsIndex(t *testing.T, docs ...*document.Document) index.Reader {
	fs := vfs.CreateMemDir()
	opts := index.DefaultOptions()
	opts.MaxBufferedDocs = 2
	w, err := index.OpenWriter(fs, true, opts)
	require.NoError(t, err)
	for _, doc := range docs {
		require.NoError(t, w.AddDocument(doc))
	}
	require.NoError(t, w.Close())
	r, err := index.OpenReader(fs, opts)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func searchDocs(t *testing.T, s *Searcher, q Query) []int {
	hits, err := s.Search(q, SearchOptions{Limit: 1000})
	require.NoError(t, err)
	docs := make([]int, len(hits.ScoreDocs))
	for i, hit := range hits.ScoreDocs {
		docs[i] = hit.Doc
	}
	return docs
}

func catSatIndex(t *testing.T) *Searcher {
	return NewSearcher(createTestIndex(t, "the cat sat", "the cat ran", "a dog sat"))
}

func TestSearcher_Search_Phrase(t *testing.T) {
	s := catSatIndex(t)
	assert.Equal(t, []int{0}, searchDocs(t, s, NewPhraseQuery("body", "cat", "sat")))
	assert.Empty(t, searchDocs(t, s, NewPhraseQuery("body", "sat", "cat")))
	assert.Empty(t, searchDocs(t, s, NewPhraseQuery("body", "cat", "missing")))
}

func TestSearcher_Search_MustNot(t *testing.T) {
	s := catSatIndex(t)
	q := NewBooleanQuery().
		Add(NewTermQuery("body", "cat"), Must).
		Add(NewTermQuery("body", "ran"), MustNot)
	assert.Equal(t, []int{0}, searchDocs(t, s, q))
}

func TestSearcher_Search_OnlyMustNot(t *testing.T) {
	s := catSatIndex(t)
	q := NewBooleanQuery().Add(NewTermQuery("body", "ran"), MustNot)
	assert.ElementsMatch(t, []int{0, 2}, searchDocs(t, s, q))

	q = NewBooleanQuery().Add(NewTermQuery("body", "zebra"), MustNot)
	assert.ElementsMatch(t, []int{0, 1, 2}, searchDocs(t, s, q), "nothing is excluded by a missing term")
	e, err := s.Explain(q, 0)
	require.NoError(t, err)
	assert.True(t, e.IsMatch())

	q = NewBooleanQuery().
		Add(NewTermQuery("body", "zebra"), MustNot).
		Add(NewTermQuery("body", "dog"), MustNot)
	assert.ElementsMatch(t, []int{0, 1}, searchDocs(t, s, q))
}

func TestSearcher_Search_EmptyPhrase(t *testing.T) {
	s := catSatIndex(t)
	q, err := DecodeQuery([]byte(`{"type": "phrase", "field": "body", "terms": []}`))
	require.NoError(t, err)
	assert.Empty(t, searchDocs(t, s, q))
	assert.Empty(t, searchDocs(t, s, &PhraseQuery{Field: "body"}))

	e, err := s.Explain(&PhraseQuery{Field: "body"}, 0)
	require.NoError(t, err)
	assert.False(t, e.IsMatch())
}

func TestSearcher_Search_ShouldWithMust(t *testing.T) {
	s := catSatIndex(t)
	q := NewBooleanQuery().
		Add(NewTermQuery("body", "sat"), Must).
		Add(NewTermQuery("body", "cat"), Should)
	assert.Equal(t, []int{0, 2}, searchDocs(t, s, q), "should clauses are optional next to a must clause")
}

func TestSearcher_Search_MinimumShouldMatch(t *testing.T) {
	s := catSatIndex(t)
	q := NewBooleanQuery().
		Add(NewTermQuery("body", "cat"), Should).
		Add(NewTermQuery("body", "sat"), Should).
		Add(NewTermQuery("body", "dog"), Should)
	q.MinimumShouldMatch = 2
	assert.ElementsMatch(t, []int{0, 2}, searchDocs(t, s, q))

	q.MinimumShouldMatch = 4
	assert.Empty(t, searchDocs(t, s, q))
}

func TestSearcher_Search_MoreShouldMatchesRankHigher(t *testing.T) {
	s := NewSearcher(createTestIndex(t, "a y z", "a b x", "a b c"))
	q := NewBooleanQuery().
		Add(NewTermQuery("body", "a"), Should).
		Add(NewTermQuery("body", "b"), Should).
		Add(NewTermQuery("body", "c"), Should)
	assert.Equal(t, []int{2, 1, 0}, searchDocs(t, s, q))
}

func TestSearcher_Search_Pagination(t *testing.T) {
	var texts []string
	for i := 0; i < 25; i++ {
		texts = append(texts, strings.Repeat("x ", i+1)+"a")
	}
	s := NewSearcher(createTestIndex(t, texts...))
	q := NewTermQuery("body", "a")

	all, err := s.Search(q, SearchOptions{Limit: 100})
	require.NoError(t, err)
	require.Len(t, all.ScoreDocs, 25)
	assert.Equal(t, 25, all.TotalHits)
	assert.Equal(t, all.ScoreDocs[0].Score, all.MaxScore)
	for i := 1; i < len(all.ScoreDocs); i++ {
		assert.True(t, all.ScoreDocs[i-1].Score >= all.ScoreDocs[i].Score)
	}

	page, err := s.Search(q, SearchOptions{Offset: 10, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, 25, page.TotalHits)
	assert.Equal(t, all.ScoreDocs[10:15], page.ScoreDocs)

	defaults, err := s.Search(q, SearchOptions{})
	require.NoError(t, err)
	assert.Len(t, defaults.ScoreDocs, DefaultLimit)

	beyond, err := s.Search(q, SearchOptions{Offset: 30})
	require.NoError(t, err)
	assert.Equal(t, 25, beyond.TotalHits)
	assert.Empty(t, beyond.ScoreDocs)

	_, err = s.Search(q, SearchOptions{Offset: -1})
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestSearcher_Search_Deleted(t *testing.T) {
	r := createTestIndex(t, "the cat sat", "the cat ran", "a dog sat")
	require.NoError(t, r.DeleteDocument(0))
	s := NewSearcher(r)
	assert.Equal(t, []int{1}, searchDocs(t, s, NewTermQuery("body", "cat")))
	assert.Empty(t, searchDocs(t, s, NewPhraseQuery("body", "cat", "sat")))
	assert.ElementsMatch(t, []int{1, 2}, searchDocs(t, s, NewMatchAllDocsQuery()))
}

// phraseMatches checks by brute force if words contains a followed by b within slop.
func phraseMatches(words []string, a, b string, slop int) bool {
	for i, w := range words {
		if w != a {
			continue
		}
		for j, v := range words {
			if v == b && abs(j-1-i) <= slop {
				return true
			}
		}
	}
	return false
}

func TestPhraseQuery_Slop(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	words := []string{"a", "b", "c", "d", "e", "f"}
	var texts []string
	var docs [][]string
	for i := 0; i < 60; i++ {
		n := 3 + rnd.Intn(8)
		doc := make([]string, n)
		for j := range doc {
			doc[j] = words[rnd.Intn(len(words))]
		}
		docs = append(docs, doc)
		texts = append(texts, strings.Join(doc, " "))
	}
	s := NewSearcher(createTestIndex(t, texts...))

	for _, pair := range [][2]string{{"a", "b"}, {"c", "a"}, {"e", "f"}} {
		var previous map[int]bool
		for slop := 0; slop <= 4; slop++ {
			q := NewPhraseQuery("body", pair[0], pair[1])
			q.Slop = slop
			found := make(map[int]bool)
			for _, doc := range searchDocs(t, s, q) {
				found[doc] = true
			}
			for doc, words := range docs {
				assert.Equal(t, phraseMatches(words, pair[0], pair[1], slop), found[doc],
					"phrase %v with slop %d in doc %d %v", pair, slop, doc, words)
			}
			for doc := range previous {
				assert.True(t, found[doc], "increasing the slop to %d lost doc %d", slop, doc)
			}
			previous = found
		}
	}
}

func TestPhraseQuery_SloppyScoresCloserHigher(t *testing.T) {
	s := NewSearcher(createTestIndex(t, "a x x b", "a b x x", "a x b x"))
	q := NewPhraseQuery("body", "a", "b")
	q.Slop = 5
	assert.Equal(t, []int{1, 2, 0}, searchDocs(t, s, q))
}

func TestPhraseQuery_MultipleTermsPerPosition(t *testing.T) {
	s := NewSearcher(createTestIndex(t, "quick brown fox", "fast brown fox", "slow brown fox", "quick fox"))
	q := NewPhraseQuery("body").Add("quick", "fast").Add("brown")
	assert.ElementsMatch(t, []int{0, 1}, searchDocs(t, s, q))

	q = NewPhraseQuery("body").Add("quick").AddAt(2, "fox")
	assert.Equal(t, []int{0}, searchDocs(t, s, q), "positions can leave gaps")
}

func TestBooleanQuery_Properties(t *testing.T) {
	rnd := rand.New(rand.NewSource(2))
	words := []string{"a", "b", "c", "d", "e"}
	var texts []string
	var docs []map[string]bool
	for i := 0; i < 80; i++ {
		doc := make(map[string]bool)
		var text []string
		for j := 0; j < 1+rnd.Intn(5); j++ {
			w := words[rnd.Intn(len(words))]
			doc[w] = true
			text = append(text, w)
		}
		docs = append(docs, doc)
		texts = append(texts, strings.Join(text, " "))
	}
	s := NewSearcher(createTestIndex(t, texts...))

	for i := 0; i < 50; i++ {
		q := NewBooleanQuery()
		occurs := make(map[string]Occur)
		for _, w := range words {
			if rnd.Intn(2) == 0 {
				occur := Occur(rnd.Intn(3))
				occurs[w] = occur
				q.Add(NewTermQuery("body", w), occur)
			}
		}
		expected := make(map[int]bool)
		for doc, terms := range docs {
			hasMust, hasShould, matchedShould := false, false, false
			ok := true
			for w, occur := range occurs {
				switch occur {
				case Must:
					hasMust = true
					ok = ok && terms[w]
				case MustNot:
					ok = ok && !terms[w]
				case Should:
					hasShould = true
					matchedShould = matchedShould || terms[w]
				}
			}
			if !hasMust && hasShould && !matchedShould {
				ok = false
			}
			if len(occurs) == 0 {
				ok = false
			}
			if ok {
				expected[doc] = true
			}
		}

		found := make(map[int]bool)
		for _, doc := range searchDocs(t, s, q) {
			found[doc] = true
			for w, occur := range occurs {
				if occur == MustNot {
					assert.False(t, docs[doc][w], "query %v returned doc %d with excluded term %v", q, doc, w)
				}
			}
		}
		assert.Equal(t, expected, found, "query %v", q)
	}
}

func TestBooleanQuery_TooManyClauses(t *testing.T) {
	s := catSatIndex(t)
	q := NewBooleanQuery()
	for i := 0; i <= MaxClauseCount; i++ {
		q.Add(NewTermQuery("body", strconv.Itoa(i)), Should)
	}
	_, err := s.Search(q, SearchOptions{})
	assert.True(t, errors.Is(err, ErrTooManyClauses), "expected too many clauses, got %v", err)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestSearcher_Explain(t *testing.T) {
	s := NewSearcher(createTestIndex(t, "the cat sat on the mat", "the cat ran", "a dog sat", "cat cat cat"))
	queries := []Query{
		NewTermQuery("body", "cat"),
		&TermQuery{Term: index.NewTerm("body", "sat"), Boost: 2},
		NewBooleanQuery().Add(NewTermQuery("body", "cat"), Should).Add(NewTermQuery("body", "sat"), Should),
		NewBooleanQuery().Add(NewTermQuery("body", "cat"), Must).Add(NewTermQuery("body", "ran"), MustNot),
		NewBooleanQuery().Add(NewTermQuery("body", "dog"), MustNot),
		NewBooleanQuery().Add(NewTermQuery("body", "zebra"), MustNot),
		NewPhraseQuery("body", "cat", "sat"),
		&PhraseQuery{Field: "body", Terms: [][]string{{"the"}, {"sat"}}, Positions: []int{0, 1}, Slop: 2},
		NewPrefixQuery("body", "ca"),
		NewMatchAllDocsQuery(),
		NewSpanNearQuery([]SpanQuery{NewSpanTermQuery("body", "the"), NewSpanTermQuery("body", "sat")}, 1, true),
	}
	for _, q := range queries {
		hits, err := s.Search(q, SearchOptions{Limit: 10})
		require.NoError(t, err)
		require.NotEmpty(t, hits.ScoreDocs, "query %v", q)
		scores := make(map[int]float64)
		for _, hit := range hits.ScoreDocs {
			scores[hit.Doc] = hit.Score
		}
		for doc := 0; doc < s.MaxDoc(); doc++ {
			e, err := s.Explain(q, doc)
			require.NoError(t, err)
			assert.InDelta(t, scores[doc], e.Value, 1e-6, "query %v, doc %d:\n%v", q, doc, e)
			assert.Equal(t, scores[doc] > 0, e.IsMatch(), "query %v, doc %d", q, doc)
		}
	}
}

func TestSearcher_Explain_MissingField(t *testing.T) {
	s := catSatIndex(t)
	e, err := s.Explain(NewTermQuery("missing", "cat"), 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, e.Value)
	assert.NotEmpty(t, e.String())

	_, err = s.Explain(NewTermQuery("body", "cat"), 3)
	assert.True(t, errors.Is(err, index.ErrInvalidDocID))
}

func TestTermQuery_Score(t *testing.T) {
	s := NewSearcher(createTestIndex(t, "cat", "cat dog", "dog"))
	hits, err := s.Search(NewTermQuery("body", "cat"), SearchOptions{})
	require.NoError(t, err)
	require.Len(t, hits.ScoreDocs, 2)
	assert.Equal(t, 0, hits.ScoreDocs[0].Doc, "shorter fields score higher")

	// a single term query is normalized to idf * fieldNorm
	idf := s.Similarity.Idf(2, 3)
	assert.InDelta(t, idf*1.0, hits.ScoreDocs[0].Score, 1e-6)
	assert.False(t, math.IsNaN(hits.ScoreDocs[1].Score))
}

func TestSearcher_Doc(t *testing.T) {
	s := catSatIndex(t)
	doc, err := s.Doc(2)
	require.NoError(t, err)
	body, ok := doc.Get("body")
	require.True(t, ok)
	assert.Equal(t, "a dog sat", body)
}
