// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package search

import (
	"fmt"

	"github.com/acoustid/go-textindex/index"
)

// MatchAllDocsQuery matches every live document with the same score.
type MatchAllDocsQuery struct {
	Boost float64
}

func NewMatchAllDocsQuery() *MatchAllDocsQuery {
	return &MatchAllDocsQuery{}
}

func (q *MatchAllDocsQuery) Rewrite(r index.Reader) (Query, error) {
	return q, nil
}

func (q *MatchAllDocsQuery) ExtractTerms(terms map[index.Term]struct{}) {}

func (q *MatchAllDocsQuery) String() string {
	return "*:*" + formatBoost(q.Boost)
}

func (q *MatchAllDocsQuery) Weight(s *Searcher) (Weight, error) {
	return &matchAllWeight{query: q}, nil
}

type matchAllWeight struct {
	query     *MatchAllDocsQuery
	queryNorm float64
	value     float64
}

func (w *matchAllWeight) Query() Query   { return w.query }
func (w *matchAllWeight) Value() float64 { return w.value }

func (w *matchAllWeight) SumOfSquaredWeights() float64 {
	boost := boostOf(w.query.Boost)
	return boost * boost
}

func (w *matchAllWeight) Normalize(norm float64) {
	w.queryNorm = norm
	w.value = boostOf(w.query.Boost) * norm
}

func (w *matchAllWeight) Scorer(r index.Reader) (Scorer, error) {
	return newAllDocsScorer(r, w.value), nil
}

func (w *matchAllWeight) Explain(r index.Reader, doc int) (*Explanation, error) {
	if r.IsDeleted(doc) {
		return newExplanation(0, fmt.Sprintf("doc %d is deleted", doc)), nil
	}
	e := newExplanation(w.value, "MatchAllDocsQuery, product of:")
	if boost := boostOf(w.query.Boost); boost != 1 {
		e.addDetail(newExplanation(boost, "boost"))
	}
	e.addDetail(newExplanation(w.queryNorm, "queryNorm"))
	return e, nil
}

// boostedQuery multiplies the scores of a query without its own boost.
type boostedQuery struct {
	Query
	boost float64
}

func (q *boostedQuery) Rewrite(r index.Reader) (Query, error) {
	rewritten, err := q.Query.Rewrite(r)
	if err != nil {
		return nil, err
	}
	if rewritten == q.Query {
		return q, nil
	}
	return withBoost(rewritten, q.boost), nil
}

func (q *boostedQuery) String() string {
	return "(" + q.Query.String() + ")" + formatBoost(q.boost)
}

func (q *boostedQuery) Weight(s *Searcher) (Weight, error) {
	w, err := q.Query.Weight(s)
	if err != nil {
		return nil, err
	}
	return &boostedWeight{Weight: w, query: q}, nil
}

type boostedWeight struct {
	Weight
	query *boostedQuery
}

func (w *boostedWeight) Query() Query { return w.query }

func (w *boostedWeight) SumOfSquaredWeights() float64 {
	return w.Weight.SumOfSquaredWeights() * w.query.boost * w.query.boost
}

func (w *boostedWeight) Normalize(norm float64) {
	w.Weight.Normalize(norm * w.query.boost)
}
