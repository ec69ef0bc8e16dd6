// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

// Package search implements ranked retrieval over an index.
//
// A Query is rewritten into primitive queries, turned into a Weight for a particular
// Searcher and finally into a Scorer, which iterates over the matching documents
// in increasing doc order together with their scores.
package search

import (
	"math"

	"github.com/acoustid/go-textindex/index"
	"github.com/pkg/errors"
)

// ErrInvalidArgument is returned for malformed queries and search options.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrTooManyClauses is returned when a boolean query, possibly produced by
// expanding a multi-term query, has more than MaxClauseCount clauses.
var ErrTooManyClauses = errors.WithMessage(ErrInvalidArgument, "too many clauses")

// MaxClauseCount is the maximum number of clauses of a boolean query.
var MaxClauseCount = 1024

// NoMoreDocs is the value of Scorer.Doc after the scorer is exhausted.
const NoMoreDocs = index.NoMoreDocs

// Query describes what documents to look for.
type Query interface {
	// Rewrite expands the query into primitive queries. It returns the query
	// itself when there is nothing to rewrite.
	Rewrite(r index.Reader) (Query, error)
	// Weight prepares the query for scoring by the given searcher.
	Weight(s *Searcher) (Weight, error)
	// ExtractTerms adds all terms used by the rewritten query to terms.
	ExtractTerms(terms map[index.Term]struct{})
	String() string
}

// Weight is the searcher-dependent state of a query.
type Weight interface {
	Query() Query
	Value() float64
	SumOfSquaredWeights() float64
	Normalize(norm float64)
	// Scorer returns nil if no document can match.
	Scorer(r index.Reader) (Scorer, error)
	Explain(r index.Reader, doc int) (*Explanation, error)
}

// Scorer iterates over matching documents in increasing doc order.
type Scorer interface {
	Next() bool
	// SkipTo moves to the first match >= target. It always moves forward at least once.
	SkipTo(target int) bool
	Doc() int
	Score() float64
	Err() error
}

func boostOf(boost float64) float64 {
	if boost == 0 {
		return 1
	}
	return boost
}

func formatBoost(boost float64) string {
	if boost == 0 || boost == 1 {
		return ""
	}
	return "^" + formatFloat(boost)
}

func isFinite(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}

// extractTerms returns the terms of q in index order.
func extractTerms(q Query) []index.Term {
	set := make(map[index.Term]struct{})
	q.ExtractTerms(set)
	terms := make([]index.Term, 0, len(set))
	for t := range set {
		terms = append(terms, t)
	}
	sortTerms(terms)
	return terms
}
