// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package search

import (
	"fmt"
	"strings"

	"github.com/acoustid/go-textindex/index"
	"github.com/acoustid/go-textindex/similarity"
	"github.com/pkg/errors"
)

// Occur says how a clause of a boolean query affects matching.
type Occur int

const (
	// Should clauses are optional, each matching one raises the score.
	Should Occur = iota
	// Must clauses are required to match.
	Must
	// MustNot clauses exclude the documents they match.
	MustNot
)

func (o Occur) String() string {
	switch o {
	case Must:
		return "+"
	case MustNot:
		return "-"
	}
	return ""
}

// BooleanClause is a sub-query of a BooleanQuery.
type BooleanClause struct {
	Query Query
	Occur Occur
}

// BooleanQuery combines other queries.
//
// A document matches if it matches all Must clauses, none of the MustNot clauses and,
// if there are no Must clauses, at least one Should clause. When there are Must clauses,
// Should clauses only add to the score. A query with only MustNot clauses matches all
// documents not excluded by them.
type BooleanQuery struct {
	Clauses []BooleanClause
	Boost   float64
	// MinimumShouldMatch is the number of Should clauses that must match.
	MinimumShouldMatch int
	// DisableCoord turns off the reward for matching more clauses.
	DisableCoord bool
}

// NewBooleanQuery creates an empty boolean query.
func NewBooleanQuery() *BooleanQuery {
	return &BooleanQuery{}
}

// Add appends a clause to the query.
func (q *BooleanQuery) Add(query Query, occur Occur) *BooleanQuery {
	q.Clauses = append(q.Clauses, BooleanClause{Query: query, Occur: occur})
	return q
}

func (q *BooleanQuery) validate() error {
	if len(q.Clauses) > MaxClauseCount {
		return errors.WithMessagef(ErrTooManyClauses, "%d clauses", len(q.Clauses))
	}
	if q.MinimumShouldMatch < 0 {
		return errors.WithMessage(ErrInvalidArgument, "negative minimum should match")
	}
	for _, c := range q.Clauses {
		if c.Query == nil {
			return errors.WithMessage(ErrInvalidArgument, "nil clause")
		}
		if c.Occur < Should || c.Occur > MustNot {
			return errors.WithMessagef(ErrInvalidArgument, "unknown occur %d", c.Occur)
		}
	}
	return nil
}

func (q *BooleanQuery) Rewrite(r index.Reader) (Query, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}

	if len(q.Clauses) == 1 && q.MinimumShouldMatch == 0 {
		c := q.Clauses[0]
		if c.Occur != MustNot {
			rewritten, err := c.Query.Rewrite(r)
			if err != nil {
				return nil, err
			}
			if boost := boostOf(q.Boost); boost != 1 {
				rewritten = withBoost(rewritten, boost)
			}
			return rewritten, nil
		}
	}

	var clone *BooleanQuery
	for i, c := range q.Clauses {
		rewritten, err := c.Query.Rewrite(r)
		if err != nil {
			return nil, err
		}
		if rewritten != c.Query {
			if clone == nil {
				clone = q.clone()
			}
			clone.Clauses[i].Query = rewritten
		}
	}
	if clone != nil {
		return clone, nil
	}
	return q, nil
}

func (q *BooleanQuery) clone() *BooleanQuery {
	c := *q
	c.Clauses = append([]BooleanClause(nil), q.Clauses...)
	return &c
}

func (q *BooleanQuery) ExtractTerms(terms map[index.Term]struct{}) {
	for _, c := range q.Clauses {
		if c.Occur != MustNot {
			c.Query.ExtractTerms(terms)
		}
	}
}

func (q *BooleanQuery) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, c := range q.Clauses {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(c.Occur.String())
		sb.WriteString(c.Query.String())
	}
	sb.WriteByte(')')
	if q.MinimumShouldMatch > 0 {
		fmt.Fprintf(&sb, "~%d", q.MinimumShouldMatch)
	}
	sb.WriteString(formatBoost(q.Boost))
	return sb.String()
}

func (q *BooleanQuery) Weight(s *Searcher) (Weight, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	w := &booleanWeight{query: q, sim: s.Similarity}
	for _, c := range q.Clauses {
		cw, err := c.Query.Weight(s)
		if err != nil {
			return nil, err
		}
		w.weights = append(w.weights, cw)
	}
	return w, nil
}

type booleanWeight struct {
	query   *BooleanQuery
	sim     similarity.Similarity
	weights []Weight
}

func (w *booleanWeight) Query() Query   { return w.query }
func (w *booleanWeight) Value() float64 { return boostOf(w.query.Boost) }

func (w *booleanWeight) SumOfSquaredWeights() float64 {
	var sum float64
	for i, cw := range w.weights {
		s := cw.SumOfSquaredWeights()
		if w.query.Clauses[i].Occur != MustNot {
			sum += s
		}
	}
	boost := boostOf(w.query.Boost)
	return sum * boost * boost
}

func (w *booleanWeight) Normalize(norm float64) {
	norm *= boostOf(w.query.Boost)
	for _, cw := range w.weights {
		cw.Normalize(norm)
	}
}

func (w *booleanWeight) maxCoord() int {
	n := 0
	for _, c := range w.query.Clauses {
		if c.Occur != MustNot {
			n++
		}
	}
	return n
}

func (w *booleanWeight) coord(overlap, maxOverlap int) float64 {
	if w.query.DisableCoord {
		return 1
	}
	return w.sim.Coord(overlap, maxOverlap)
}

func (w *booleanWeight) Scorer(r index.Reader) (Scorer, error) {
	c := &coordinator{weight: w, maxCoord: w.maxCoord()}
	var required, optional, prohibited []Scorer
	negative := c.maxCoord == 0 && len(w.weights) > 0
	for i, cw := range w.weights {
		occur := w.query.Clauses[i].Occur
		sub, err := cw.Scorer(r)
		if err != nil {
			return nil, err
		}
		if sub == nil {
			if occur == Must {
				return nil, nil
			}
			continue
		}
		switch occur {
		case Must:
			required = append(required, c.wrap(sub))
		case Should:
			optional = append(optional, c.wrap(sub))
		case MustNot:
			prohibited = append(prohibited, sub)
		}
	}

	minShouldMatch := w.query.MinimumShouldMatch
	if minShouldMatch > len(optional) {
		return nil, nil
	}

	var main Scorer
	switch {
	case negative:
		// purely negative query, start from all documents
		main = newAllDocsScorer(r, 1)
	case len(required) == 0 && len(optional) == 0:
		return nil, nil
	case len(required) == 0:
		if minShouldMatch < 1 {
			minShouldMatch = 1
		}
		main = newDisjunctionScorer(optional, minShouldMatch)
	case len(optional) == 0:
		main = newConjunctionScorer(required)
	case minShouldMatch > 0:
		main = newConjunctionScorer(append(required, newDisjunctionScorer(optional, minShouldMatch)))
	default:
		main = newReqOptScorer(newConjunctionScorer(required), newDisjunctionScorer(optional, 1))
	}

	if len(prohibited) > 0 {
		var excl Scorer
		if len(prohibited) == 1 {
			excl = prohibited[0]
		} else {
			excl = newDisjunctionScorer(prohibited, 1)
		}
		main = newReqExclScorer(main, excl)
	}
	return &booleanScorer{scorer: main, coord: c}, nil
}

func (w *booleanWeight) Explain(r index.Reader, doc int) (*Explanation, error) {
	sumExpl := newExplanation(0, "sum of:")
	var sum float64
	coord := 0
	maxCoord := 0
	var shouldMatched int
	failed := false
	for i, cw := range w.weights {
		c := w.query.Clauses[i]
		e, err := cw.Explain(r, doc)
		if err != nil {
			return nil, err
		}
		if c.Occur != MustNot {
			maxCoord++
		}
		if e.IsMatch() {
			switch c.Occur {
			case MustNot:
				d := newExplanation(0, "match on prohibited clause ("+c.Query.String()+")", e)
				sumExpl.addDetail(d)
				failed = true
			default:
				sumExpl.addDetail(e)
				sum += e.Value
				coord++
				if c.Occur == Should {
					shouldMatched++
				}
			}
		} else if c.Occur == Must {
			sumExpl.addDetail(newExplanation(0, "no match on required clause ("+c.Query.String()+")", e))
			failed = true
		}
	}
	if failed {
		sumExpl.Description = "Failure to meet condition(s) of required/prohibited clause(s)"
		return sumExpl, nil
	}
	if shouldMatched < w.query.MinimumShouldMatch {
		sumExpl.Description = fmt.Sprintf("Failure to match minimum number of optional clauses: %d", w.query.MinimumShouldMatch)
		return sumExpl, nil
	}
	if len(w.weights) == 0 {
		return newExplanation(0, "no clauses"), nil
	}
	if maxCoord == 0 {
		// only prohibited clauses and none of them matched
		return newExplanation(1, "match on all documents without prohibited clauses", sumExpl.Details...), nil
	}
	if coord == 0 {
		sumExpl.Description = "no matching clauses"
		return sumExpl, nil
	}
	sumExpl.Value = sum
	coordFactor := w.coord(coord, maxCoord)
	if coordFactor == 1 {
		return sumExpl, nil
	}
	return newExplanation(sum*coordFactor, "product of:",
		sumExpl,
		newExplanation(coordFactor, fmt.Sprintf("coord(%d/%d)", coord, maxCoord)),
	), nil
}

// coordinator counts how many clauses contributed to the score of the current document.
type coordinator struct {
	weight    *booleanWeight
	maxCoord  int
	nrMatches int
}

func (c *coordinator) wrap(s Scorer) Scorer {
	return &coordScorer{Scorer: s, coord: c}
}

func (c *coordinator) factor() float64 {
	if c.maxCoord == 0 {
		return 1
	}
	return c.weight.coord(c.nrMatches, c.maxCoord)
}

type coordScorer struct {
	Scorer
	coord *coordinator
}

func (s *coordScorer) Score() float64 {
	s.coord.nrMatches++
	return s.Scorer.Score()
}

type booleanScorer struct {
	scorer Scorer
	coord  *coordinator
}

func (s *booleanScorer) Next() bool             { return s.scorer.Next() }
func (s *booleanScorer) SkipTo(target int) bool { return s.scorer.SkipTo(target) }
func (s *booleanScorer) Doc() int               { return s.scorer.Doc() }
func (s *booleanScorer) Err() error             { return s.scorer.Err() }

func (s *booleanScorer) Score() float64 {
	s.coord.nrMatches = 0
	sum := s.scorer.Score()
	return sum * s.coord.factor()
}

// withBoost returns q with its boost multiplied by boost.
func withBoost(q Query, boost float64) Query {
	switch q := q.(type) {
	case *TermQuery:
		c := *q
		c.Boost = boostOf(c.Boost) * boost
		return &c
	case *BooleanQuery:
		c := q.clone()
		c.Boost = boostOf(c.Boost) * boost
		return c
	case *PhraseQuery:
		c := q.clone()
		c.Boost = boostOf(c.Boost) * boost
		return c
	case *MatchAllDocsQuery:
		c := *q
		c.Boost = boostOf(c.Boost) * boost
		return &c
	}
	return &boostedQuery{Query: q, boost: boost}
}
