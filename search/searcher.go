// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package search

import (
	"container/heap"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"github.com/acoustid/go-textindex/document"
	"github.com/acoustid/go-textindex/index"
	"github.com/acoustid/go-textindex/similarity"
	"github.com/pkg/errors"
)

// DefaultLimit is the number of hits returned when SearchOptions.Limit is zero.
const DefaultLimit = 10

// Searcher runs queries against an index reader. It is safe for concurrent use.
type Searcher struct {
	reader     index.Reader
	Similarity similarity.Similarity

	cacheMu sync.Mutex
	cache   map[fieldCacheKey]interface{}
}

// NewSearcher creates a searcher using the default similarity.
func NewSearcher(r index.Reader) *Searcher {
	return &Searcher{
		reader:     r,
		Similarity: similarity.Default,
		cache:      make(map[fieldCacheKey]interface{}),
	}
}

// Reader returns the underlying index reader.
func (s *Searcher) Reader() index.Reader {
	return s.reader
}

func (s *Searcher) MaxDoc() int {
	return s.reader.MaxDoc()
}

func (s *Searcher) DocFreq(t index.Term) (int, error) {
	return s.reader.DocFreq(t)
}

// Doc returns the stored fields of a document.
func (s *Searcher) Doc(doc int) (*document.Document, error) {
	return s.reader.Document(doc)
}

// Rewrite rewrites q until it consists only of primitive queries.
func (s *Searcher) Rewrite(q Query) (Query, error) {
	if q == nil {
		return nil, errors.WithMessage(ErrInvalidArgument, "nil query")
	}
	for {
		rewritten, err := q.Rewrite(s.reader)
		if err != nil {
			return nil, err
		}
		if rewritten == q {
			return q, nil
		}
		q = rewritten
	}
}

// CreateWeight rewrites q and builds its normalized weight.
func (s *Searcher) CreateWeight(q Query) (Weight, error) {
	q, err := s.Rewrite(q)
	if err != nil {
		return nil, err
	}
	w, err := q.Weight(s)
	if err != nil {
		return nil, err
	}
	norm := s.Similarity.QueryNorm(w.SumOfSquaredWeights())
	if !isFinite(norm) {
		norm = 1
	}
	w.Normalize(norm)
	return w, nil
}

// SearchOptions control which hits of a query are returned and in what order.
type SearchOptions struct {
	// Filter restricts the documents that can match.
	Filter Filter
	// Sort orders the hits, by default hits are sorted by decreasing score.
	Sort *Sort
	// Offset is the number of top hits to skip.
	Offset int
	// Limit is the maximum number of hits to return, DefaultLimit if zero.
	Limit int
}

// ScoreDoc is a single hit.
type ScoreDoc struct {
	Doc   int     `json:"doc"`
	Score float64 `json:"score"`
	// Fields are the values of the sort fields, if the search was sorted.
	Fields []interface{} `json:"fields,omitempty"`
}

// TopDocs is the result of a search.
type TopDocs struct {
	TotalHits int        `json:"total_hits"`
	MaxScore  float64    `json:"max_score"`
	ScoreDocs []ScoreDoc `json:"hits"`
}

// Search finds the top documents matching q.
func (s *Searcher) Search(q Query, opts SearchOptions) (*TopDocs, error) {
	if opts.Offset < 0 || opts.Limit < 0 {
		return nil, errors.WithMessage(ErrInvalidArgument, "negative offset or limit")
	}
	limit := opts.Limit
	if limit == 0 {
		limit = DefaultLimit
	}

	var cmp *hitComparator
	if opts.Sort != nil {
		var err error
		cmp, err = s.newHitComparator(opts.Sort)
		if err != nil {
			return nil, err
		}
	}

	var bits *roaring.Bitmap
	if opts.Filter != nil {
		var err error
		bits, err = opts.Filter.Bits(s.reader)
		if err != nil {
			return nil, errors.Wrap(err, "filter failed")
		}
	}

	w, err := s.CreateWeight(q)
	if err != nil {
		return nil, err
	}
	scorer, err := w.Scorer(s.reader)
	if err != nil {
		return nil, err
	}

	result := &TopDocs{ScoreDocs: []ScoreDoc{}}
	if scorer == nil {
		return result, nil
	}

	queue := &hitQueue{cmp: cmp, size: opts.Offset + limit}
	for scorer.Next() {
		doc := scorer.Doc()
		if bits != nil && !bits.Contains(uint32(doc)) {
			continue
		}
		score := scorer.Score()
		result.TotalHits++
		if result.TotalHits == 1 || score > result.MaxScore {
			result.MaxScore = score
		}
		queue.insert(ScoreDoc{Doc: doc, Score: score})
	}
	if err := scorer.Err(); err != nil {
		return nil, errors.Wrap(err, "search failed")
	}

	hits := queue.sorted()
	if opts.Offset < len(hits) {
		hits = hits[opts.Offset:]
	} else {
		hits = nil
	}
	for _, hit := range hits {
		if cmp != nil {
			hit.Fields = cmp.values(hit)
		}
		result.ScoreDocs = append(result.ScoreDocs, hit)
	}
	return result, nil
}

// Explain describes how the score of doc was computed for q.
func (s *Searcher) Explain(q Query, doc int) (*Explanation, error) {
	if doc < 0 || doc >= s.reader.MaxDoc() {
		return nil, errors.Wrapf(index.ErrInvalidDocID, "doc %d", doc)
	}
	w, err := s.CreateWeight(q)
	if err != nil {
		return nil, err
	}
	return w.Explain(s.reader, doc)
}

// hitQueue keeps the best size hits. The worst hit is at the top of the heap.
type hitQueue struct {
	cmp  *hitComparator
	size int
	hits []ScoreDoc
}

func (q *hitQueue) better(a, b ScoreDoc) bool {
	if q.cmp != nil {
		return q.cmp.less(a, b)
	}
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Doc < b.Doc
}

func (q *hitQueue) Len() int           { return len(q.hits) }
func (q *hitQueue) Less(i, j int) bool { return q.better(q.hits[j], q.hits[i]) }
func (q *hitQueue) Swap(i, j int)      { q.hits[i], q.hits[j] = q.hits[j], q.hits[i] }

func (q *hitQueue) Push(x interface{}) {
	q.hits = append(q.hits, x.(ScoreDoc))
}

func (q *hitQueue) Pop() interface{} {
	n := len(q.hits)
	hit := q.hits[n-1]
	q.hits = q.hits[:n-1]
	return hit
}

func (q *hitQueue) insert(hit ScoreDoc) {
	if len(q.hits) < q.size {
		heap.Push(q, hit)
		return
	}
	if q.size > 0 && q.better(hit, q.hits[0]) {
		q.hits[0] = hit
		heap.Fix(q, 0)
	}
}

// sorted empties the queue and returns the hits, best first.
func (q *hitQueue) sorted() []ScoreDoc {
	hits := make([]ScoreDoc, len(q.hits))
	for i := len(hits) - 1; i >= 0; i-- {
		hits[i] = heap.Pop(q).(ScoreDoc)
	}
	return hits
}
