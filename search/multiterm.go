// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package search

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/acoustid/go-textindex/index"
	"github.com/pkg/errors"
	"go4.org/sort"
)

// MultiTermQuery matches documents containing any term of Field accepted by Accept.
// Terms are enumerated in order starting from Start, until Accept reports that no
// later term can match. The query is rewritten into a boolean query of term clauses
// without coordination, so a document's score does not depend on the number of terms.
type MultiTermQuery struct {
	Field string
	Start string
	// Accept returns whether text matches, with the term's relative boost.
	Accept func(text string) (ok bool, boost float64, more bool)
	// KeepBest keeps the MaxClauseCount terms with the highest boosts instead of
	// failing with ErrTooManyClauses.
	KeepBest    bool
	Boost       float64
	Description string
}

type termMatch struct {
	text  string
	boost float64
}

func (q *MultiTermQuery) Rewrite(r index.Reader) (Query, error) {
	if q.Accept == nil {
		return nil, errors.WithMessage(ErrInvalidArgument, "multi-term query without a term matcher")
	}
	var matches []termMatch
	err := forEachTerm(r, index.NewTerm(q.Field, q.Start), func(t index.Term, _ int) (bool, error) {
		ok, boost, more := q.Accept(t.Text)
		if ok {
			matches = append(matches, termMatch{text: t.Text, boost: boost})
		}
		return more && (q.KeepBest || len(matches) <= MaxClauseCount), nil
	})
	if err != nil {
		return nil, err
	}
	if len(matches) > MaxClauseCount {
		if !q.KeepBest {
			return nil, errors.WithMessagef(ErrTooManyClauses, "%v expands to too many terms", q)
		}
		sort.Stable(sort.SliceSorter(matches, func(i, j int) bool { return matches[i].boost > matches[j].boost }))
		matches = matches[:MaxClauseCount]
	}
	bq := &BooleanQuery{Boost: q.Boost, DisableCoord: true}
	for _, m := range matches {
		tq := NewTermQuery(q.Field, m.text)
		if m.boost != 1 {
			tq.Boost = m.boost
		}
		bq.Add(tq, Should)
	}
	return bq, nil
}

func (q *MultiTermQuery) Weight(s *Searcher) (Weight, error) {
	return nil, errors.Errorf("query %v must be rewritten first", q)
}

func (q *MultiTermQuery) ExtractTerms(terms map[index.Term]struct{}) {}

func (q *MultiTermQuery) String() string {
	if q.Description != "" {
		return q.Description
	}
	return q.Field + ":" + q.Start + "..." + formatBoost(q.Boost)
}

// PrefixQuery matches documents containing a term starting with Prefix.
type PrefixQuery struct {
	Field  string
	Prefix string
	Boost  float64
}

func NewPrefixQuery(field, prefix string) *PrefixQuery {
	return &PrefixQuery{Field: field, Prefix: prefix}
}

func (q *PrefixQuery) Rewrite(r index.Reader) (Query, error) {
	mq := &MultiTermQuery{
		Field: q.Field,
		Start: q.Prefix,
		Accept: func(text string) (bool, float64, bool) {
			ok := strings.HasPrefix(text, q.Prefix)
			return ok, 1, ok
		},
		Boost:       q.Boost,
		Description: q.String(),
	}
	return mq.Rewrite(r)
}

func (q *PrefixQuery) Weight(s *Searcher) (Weight, error) {
	return nil, errors.Errorf("query %v must be rewritten first", q)
}

func (q *PrefixQuery) ExtractTerms(terms map[index.Term]struct{}) {}

func (q *PrefixQuery) String() string {
	return q.Field + ":" + q.Prefix + "*" + formatBoost(q.Boost)
}

// WildcardQuery matches terms against a pattern, where '*' matches any sequence
// of characters and '?' matches a single character.
type WildcardQuery struct {
	Field   string
	Pattern string
	Boost   float64
}

func NewWildcardQuery(field, pattern string) *WildcardQuery {
	return &WildcardQuery{Field: field, Pattern: pattern}
}

func (q *WildcardQuery) Rewrite(r index.Reader) (Query, error) {
	if q.Pattern == "" {
		return nil, errors.WithMessage(ErrInvalidArgument, "empty wildcard pattern")
	}
	prefix := q.Pattern
	if i := strings.IndexAny(q.Pattern, "*?"); i >= 0 {
		prefix = q.Pattern[:i]
	}
	mq := &MultiTermQuery{
		Field: q.Field,
		Start: prefix,
		Accept: func(text string) (bool, float64, bool) {
			if !strings.HasPrefix(text, prefix) {
				return false, 0, false
			}
			return wildcardMatch(q.Pattern[len(prefix):], text[len(prefix):]), 1, true
		},
		Boost:       q.Boost,
		Description: q.String(),
	}
	return mq.Rewrite(r)
}

func (q *WildcardQuery) Weight(s *Searcher) (Weight, error) {
	return nil, errors.Errorf("query %v must be rewritten first", q)
}

func (q *WildcardQuery) ExtractTerms(terms map[index.Term]struct{}) {}

func (q *WildcardQuery) String() string {
	return q.Field + ":" + q.Pattern + formatBoost(q.Boost)
}

// wildcardMatch matches text against a pattern of '*' and '?' wildcards, rune by rune.
func wildcardMatch(pattern, text string) bool {
	// backtracking to the last star is enough, stars match greedily
	starPattern, starText := -1, 0
	p, t := 0, 0
	for t < len(text) {
		if p < len(pattern) {
			switch pattern[p] {
			case '*':
				starPattern, starText = p, t
				p++
				continue
			case '?':
				_, size := utf8.DecodeRuneInString(text[t:])
				p++
				t += size
				continue
			default:
				pr, psize := utf8.DecodeRuneInString(pattern[p:])
				tr, tsize := utf8.DecodeRuneInString(text[t:])
				if pr == tr {
					p += psize
					t += tsize
					continue
				}
			}
		}
		if starPattern < 0 {
			return false
		}
		_, size := utf8.DecodeRuneInString(text[starText:])
		starText += size
		p, t = starPattern+1, starText
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}

// DefaultMinSimilarity is the minimum similarity of FuzzyQuery terms when MinSimilarity is zero.
const DefaultMinSimilarity = 0.5

// FuzzyQuery matches terms similar to Text, based on the Levenshtein edit distance.
//
// The similarity of a term is 1 - distance / min(len(text), len(term)), with lengths
// in runes. Terms that differ in the first PrefixLength runes are never matched.
// Closer terms get a higher boost.
type FuzzyQuery struct {
	Field         string
	Text          string
	MinSimilarity float64
	PrefixLength  int
	Boost         float64
}

func NewFuzzyQuery(field, text string) *FuzzyQuery {
	return &FuzzyQuery{Field: field, Text: text}
}

func (q *FuzzyQuery) minSimilarity() float64 {
	if q.MinSimilarity == 0 {
		return DefaultMinSimilarity
	}
	return q.MinSimilarity
}

func (q *FuzzyQuery) Rewrite(r index.Reader) (Query, error) {
	minSim := q.minSimilarity()
	if minSim < 0 || minSim >= 1 {
		return nil, errors.WithMessagef(ErrInvalidArgument, "min similarity %v out of range [0, 1)", minSim)
	}
	if q.PrefixLength < 0 {
		return nil, errors.WithMessage(ErrInvalidArgument, "negative prefix length")
	}

	text := []rune(q.Text)
	prefixLen := q.PrefixLength
	if prefixLen > len(text) {
		prefixLen = len(text)
	}
	prefix := string(text[:prefixLen])
	suffix := text[prefixLen:]
	scale := 1 / (1 - minSim)

	mq := &MultiTermQuery{
		Field: q.Field,
		Start: prefix,
		Accept: func(text string) (bool, float64, bool) {
			if !strings.HasPrefix(text, prefix) {
				return false, 0, false
			}
			sim := fuzzySimilarity(suffix, []rune(text[len(prefix):]), prefixLen, minSim)
			return sim > minSim, (sim - minSim) * scale, true
		},
		KeepBest:    true,
		Boost:       q.Boost,
		Description: q.String(),
	}
	return mq.Rewrite(r)
}

func (q *FuzzyQuery) Weight(s *Searcher) (Weight, error) {
	return nil, errors.Errorf("query %v must be rewritten first", q)
}

func (q *FuzzyQuery) ExtractTerms(terms map[index.Term]struct{}) {}

func (q *FuzzyQuery) String() string {
	return fmt.Sprintf("%v:%v~%v%v", q.Field, q.Text, q.minSimilarity(), formatBoost(q.Boost))
}

// fuzzySimilarity returns the similarity of two terms sharing a prefix of prefixLen runes.
// It returns 0 early once the distance is too large to reach minSim.
func fuzzySimilarity(text, target []rune, prefixLen int, minSim float64) float64 {
	n, m := len(text), len(target)
	shorter := n
	if m < shorter {
		shorter = m
	}
	if n == 0 || m == 0 {
		if prefixLen == 0 {
			return 0
		}
		return 1 - float64(n+m)/float64(prefixLen)
	}
	maxDistance := int((1 - minSim) * float64(shorter+prefixLen))
	if abs(n-m) > maxDistance {
		return 0
	}

	prev := make([]int, m+1)
	curr := make([]int, m+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= n; i++ {
		curr[0] = i
		best := i
		for j := 1; j <= m; j++ {
			cost := 1
			if text[i-1] == target[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
			if curr[j] < best {
				best = curr[j]
			}
		}
		if best > maxDistance {
			return 0
		}
		prev, curr = curr, prev
	}
	return 1 - float64(prev[m])/float64(prefixLen+shorter)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// RangeQuery matches terms between Lower and Upper. An empty bound leaves that end open.
type RangeQuery struct {
	Field        string
	Lower        string
	Upper        string
	IncludeLower bool
	IncludeUpper bool
	Boost        float64
}

// NewRangeQuery creates a range query including both bounds.
func NewRangeQuery(field, lower, upper string) *RangeQuery {
	return &RangeQuery{Field: field, Lower: lower, Upper: upper, IncludeLower: true, IncludeUpper: true}
}

func (q *RangeQuery) validate() error {
	if q.Lower == "" && q.Upper == "" {
		return errors.WithMessage(ErrInvalidArgument, "range needs at least one bound")
	}
	if q.Lower != "" && q.Upper != "" && q.Lower > q.Upper {
		return errors.WithMessagef(ErrInvalidArgument, "range lower bound %q is above upper bound %q", q.Lower, q.Upper)
	}
	return nil
}

// contains returns true if text is in the range, and whether any larger term can be.
func (q *RangeQuery) contains(text string) (ok bool, more bool) {
	if q.Lower != "" {
		if text < q.Lower || (!q.IncludeLower && text == q.Lower) {
			return false, true
		}
	}
	if q.Upper != "" {
		if text > q.Upper || (!q.IncludeUpper && text == q.Upper) {
			return false, false
		}
	}
	return true, true
}

func (q *RangeQuery) Rewrite(r index.Reader) (Query, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	mq := &MultiTermQuery{
		Field: q.Field,
		Start: q.Lower,
		Accept: func(text string) (bool, float64, bool) {
			ok, more := q.contains(text)
			return ok, 1, more
		},
		Boost:       q.Boost,
		Description: q.String(),
	}
	return mq.Rewrite(r)
}

func (q *RangeQuery) Weight(s *Searcher) (Weight, error) {
	return nil, errors.Errorf("query %v must be rewritten first", q)
}

func (q *RangeQuery) ExtractTerms(terms map[index.Term]struct{}) {}

func (q *RangeQuery) String() string {
	open, close := "{", "}"
	if q.IncludeLower {
		open = "["
	}
	if q.IncludeUpper {
		close = "]"
	}
	lower, upper := q.Lower, q.Upper
	if lower == "" {
		lower = "*"
	}
	if upper == "" {
		upper = "*"
	}
	return fmt.Sprintf("%v:%v%v TO %v%v%v", q.Field, open, lower, upper, close, formatBoost(q.Boost))
}
