// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package search

import (
	"fmt"

	"github.com/acoustid/go-textindex/index"
	"github.com/acoustid/go-textindex/similarity"
)

// TermQuery matches documents containing a term.
type TermQuery struct {
	Term  index.Term
	Boost float64
}

// NewTermQuery creates a query for the term field:text.
func NewTermQuery(field, text string) *TermQuery {
	return &TermQuery{Term: index.NewTerm(field, text)}
}

func (q *TermQuery) Rewrite(r index.Reader) (Query, error) {
	return q, nil
}

func (q *TermQuery) ExtractTerms(terms map[index.Term]struct{}) {
	terms[q.Term] = struct{}{}
}

func (q *TermQuery) String() string {
	return q.Term.String() + formatBoost(q.Boost)
}

func (q *TermQuery) Weight(s *Searcher) (Weight, error) {
	docFreq, err := s.DocFreq(q.Term)
	if err != nil {
		return nil, err
	}
	w := &termWeight{
		query:   q,
		sim:     s.Similarity,
		docFreq: docFreq,
		numDocs: s.MaxDoc(),
	}
	w.idf = w.sim.Idf(docFreq, w.numDocs)
	return w, nil
}

// termWeight scores a document by tf * idf^2 * boost * queryNorm * fieldNorm.
type termWeight struct {
	query       *TermQuery
	sim         similarity.Similarity
	docFreq     int
	numDocs     int
	idf         float64
	queryNorm   float64
	queryWeight float64
	value       float64
}

func (w *termWeight) Query() Query   { return w.query }
func (w *termWeight) Value() float64 { return w.value }

func (w *termWeight) SumOfSquaredWeights() float64 {
	w.queryWeight = w.idf * boostOf(w.query.Boost)
	return w.queryWeight * w.queryWeight
}

func (w *termWeight) Normalize(norm float64) {
	w.queryNorm = norm
	w.queryWeight *= norm
	w.value = w.queryWeight * w.idf
}

func (w *termWeight) Scorer(r index.Reader) (Scorer, error) {
	if w.docFreq == 0 {
		return nil, nil
	}
	td, err := r.TermDocs(w.query.Term)
	if err != nil {
		return nil, err
	}
	return &termScorer{
		td:    td,
		sim:   w.sim,
		norms: r.Norms(w.query.Term.Field),
		value: w.value,
	}, nil
}

func (w *termWeight) Explain(r index.Reader, doc int) (*Explanation, error) {
	t := w.query.Term
	result := newExplanation(0, fmt.Sprintf("weight(%v in %d), product of:", w.query, doc))
	idfExpl := newExplanation(w.idf, fmt.Sprintf("idf(docFreq=%d, numDocs=%d)", w.docFreq, w.numDocs))

	queryExpl := newExplanation(0, fmt.Sprintf("queryWeight(%v), product of:", w.query))
	if boost := boostOf(w.query.Boost); boost != 1 {
		queryExpl.addDetail(newExplanation(boost, "boost"))
	}
	queryExpl.addDetail(idfExpl)
	queryExpl.addDetail(newExplanation(w.queryNorm, "queryNorm"))
	queryExpl.Value = boostOf(w.query.Boost) * w.idf * w.queryNorm
	result.addDetail(queryExpl)

	freq, err := termFreq(r, t, doc)
	if err != nil {
		return nil, err
	}
	fieldExpl := newExplanation(0, fmt.Sprintf("fieldWeight(%v in %d), product of:", t, doc))
	if freq == 0 {
		fieldExpl.addDetail(newExplanation(0, fmt.Sprintf("no occurrence of %v", t)))
	} else {
		fieldExpl.addDetail(newExplanation(w.sim.Tf(float64(freq)), fmt.Sprintf("tf(termFreq(%v)=%d)", t, freq)))
	}
	fieldExpl.addDetail(idfExpl)
	fieldNorm := normExplanation(r, t.Field, doc)
	fieldExpl.addDetail(fieldNorm)
	if freq > 0 {
		fieldExpl.Value = w.sim.Tf(float64(freq)) * w.idf * fieldNorm.Value
	}
	result.addDetail(fieldExpl)

	result.Value = queryExpl.Value * fieldExpl.Value
	if queryExpl.Value == 1 {
		return fieldExpl, nil
	}
	return result, nil
}

// termFreq returns the number of occurrences of t in doc.
func termFreq(r index.Reader, t index.Term, doc int) (int, error) {
	td, err := r.TermDocs(t)
	if err != nil {
		return 0, err
	}
	defer td.Close()
	if td.SkipTo(doc) && td.Doc() == doc {
		return td.Freq(), nil
	}
	return 0, td.Err()
}

func normExplanation(r index.Reader, field string, doc int) *Explanation {
	norms := r.Norms(field)
	if norms == nil {
		return newExplanation(1, fmt.Sprintf("fieldNorm(field=%v, doc=%d, omitted)", field, doc))
	}
	return newExplanation(similarity.DecodeNorm(norms[doc]), fmt.Sprintf("fieldNorm(field=%v, doc=%d)", field, doc))
}

func decodeNorm(norms []byte, doc int) float64 {
	if norms == nil {
		return 1
	}
	return similarity.DecodeNorm(norms[doc])
}

type termScorer struct {
	td    index.TermDocs
	sim   similarity.Similarity
	norms []byte
	value float64
}

func (s *termScorer) Next() bool {
	return s.td.Next()
}

func (s *termScorer) SkipTo(target int) bool {
	return s.td.SkipTo(target)
}

func (s *termScorer) Doc() int {
	return s.td.Doc()
}

func (s *termScorer) Score() float64 {
	return s.sim.Tf(float64(s.td.Freq())) * s.value * decodeNorm(s.norms, s.td.Doc())
}

func (s *termScorer) Err() error {
	return s.td.Err()
}
