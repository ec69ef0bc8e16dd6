// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package search

import (
	"encoding/json"
	"strings"
	"unicode"

	"github.com/acoustid/go-textindex/analysis"
	"github.com/acoustid/go-textindex/index"
	"github.com/pkg/errors"
)

// QueryNode is the JSON form of a query tree.
//
//	{"type": "bool", "must": [{"type": "term", "field": "body", "text": "cat"}],
//	 "must_not": [{"type": "term", "field": "body", "text": "ran"}]}
type QueryNode struct {
	Type  string  `json:"type"`
	Field string  `json:"field,omitempty"`
	Text  string  `json:"text,omitempty"`
	Boost float64 `json:"boost,omitempty"`

	// bool
	Must               []*QueryNode `json:"must,omitempty"`
	Should             []*QueryNode `json:"should,omitempty"`
	MustNot            []*QueryNode `json:"must_not,omitempty"`
	MinimumShouldMatch int          `json:"minimum_should_match,omitempty"`

	// phrase, one term per position or alternatives per position
	Terms        []string   `json:"terms,omitempty"`
	Alternatives [][]string `json:"alternatives,omitempty"`
	Slop         int        `json:"slop,omitempty"`

	// fuzzy
	MinSimilarity float64 `json:"min_similarity,omitempty"`
	PrefixLength  int     `json:"prefix_length,omitempty"`

	// range
	Lower        string `json:"lower,omitempty"`
	Upper        string `json:"upper,omitempty"`
	ExcludeLower bool   `json:"exclude_lower,omitempty"`
	ExcludeUpper bool   `json:"exclude_upper,omitempty"`

	// spans
	Clauses []*QueryNode `json:"clauses,omitempty"`
	InOrder bool         `json:"in_order,omitempty"`
	End     int          `json:"end,omitempty"`
	Match   *QueryNode   `json:"match,omitempty"`
	Include *QueryNode   `json:"include,omitempty"`
	Exclude *QueryNode   `json:"exclude,omitempty"`
}

// DecodeQuery parses a JSON query tree.
func DecodeQuery(data []byte) (Query, error) {
	var node QueryNode
	if err := json.Unmarshal(data, &node); err != nil {
		return nil, errors.WithMessagef(ErrInvalidArgument, "malformed query: %v", err)
	}
	return node.Query()
}

// Query builds the query described by the node.
func (n *QueryNode) Query() (Query, error) {
	switch n.Type {
	case "term":
		return &TermQuery{Term: index.NewTerm(n.Field, n.Text), Boost: n.Boost}, nil
	case "match_all":
		return &MatchAllDocsQuery{Boost: n.Boost}, nil
	case "prefix":
		return &PrefixQuery{Field: n.Field, Prefix: n.Text, Boost: n.Boost}, nil
	case "wildcard":
		return &WildcardQuery{Field: n.Field, Pattern: n.Text, Boost: n.Boost}, nil
	case "fuzzy":
		return &FuzzyQuery{Field: n.Field, Text: n.Text, MinSimilarity: n.MinSimilarity, PrefixLength: n.PrefixLength, Boost: n.Boost}, nil
	case "range":
		return &RangeQuery{
			Field:        n.Field,
			Lower:        n.Lower,
			Upper:        n.Upper,
			IncludeLower: !n.ExcludeLower,
			IncludeUpper: !n.ExcludeUpper,
			Boost:        n.Boost,
		}, nil
	case "phrase":
		q := &PhraseQuery{Field: n.Field, Slop: n.Slop, Boost: n.Boost}
		for _, t := range n.Terms {
			q.Add(t)
		}
		for _, alternatives := range n.Alternatives {
			q.Add(alternatives...)
		}
		return q, nil
	case "bool":
		q := &BooleanQuery{MinimumShouldMatch: n.MinimumShouldMatch, Boost: n.Boost}
		for _, group := range []struct {
			nodes []*QueryNode
			occur Occur
		}{{n.Must, Must}, {n.Should, Should}, {n.MustNot, MustNot}} {
			for _, child := range group.nodes {
				sub, err := child.Query()
				if err != nil {
					return nil, err
				}
				q.Add(sub, group.occur)
			}
		}
		return q, nil
	case "span_term", "span_first", "span_or", "span_near", "span_not":
		return n.spanQuery()
	}
	return nil, errors.WithMessagef(ErrInvalidArgument, "unknown query type %q", n.Type)
}

func (n *QueryNode) spanQuery() (SpanQuery, error) {
	if n == nil {
		return nil, errors.WithMessage(ErrInvalidArgument, "missing span clause")
	}
	switch n.Type {
	case "span_term":
		return &SpanTermQuery{Term: index.NewTerm(n.Field, n.Text), Boost: n.Boost}, nil
	case "span_first":
		match, err := n.Match.spanQuery()
		if err != nil {
			return nil, err
		}
		return &SpanFirstQuery{Match: match, End: n.End, Boost: n.Boost}, nil
	case "span_or", "span_near":
		clauses := make([]SpanQuery, len(n.Clauses))
		for i, c := range n.Clauses {
			sq, err := c.spanQuery()
			if err != nil {
				return nil, err
			}
			clauses[i] = sq
		}
		if n.Type == "span_or" {
			return &SpanOrQuery{Clauses: clauses, Boost: n.Boost}, nil
		}
		return &SpanNearQuery{Clauses: clauses, Slop: n.Slop, InOrder: n.InOrder, Boost: n.Boost}, nil
	case "span_not":
		include, err := n.Include.spanQuery()
		if err != nil {
			return nil, err
		}
		exclude, err := n.Exclude.spanQuery()
		if err != nil {
			return nil, err
		}
		return &SpanNotQuery{Include: include, Exclude: exclude, Boost: n.Boost}, nil
	}
	return nil, errors.WithMessagef(ErrInvalidArgument, "%q is not a span query type", n.Type)
}

// ParseQuery parses a simple query string.
//
// Words are optional clauses, a '+' prefix makes a word required and a '-' prefix
// excludes it. Double quotes group words into a phrase, a trailing '*' makes a prefix
// query and "field:word" searches another field than defaultField. Words and phrases
// are analyzed with the given analyzer.
func ParseQuery(text string, defaultField string, analyzer analysis.Analyzer) (Query, error) {
	q := NewBooleanQuery()
	for _, part := range splitQuery(text) {
		occur := Should
		switch part[0] {
		case '+':
			occur = Must
			part = part[1:]
		case '-':
			occur = MustNot
			part = part[1:]
		}
		field := defaultField
		if i := strings.IndexByte(part, ':'); i > 0 && !strings.HasPrefix(part, "\"") {
			field, part = part[:i], part[i+1:]
		}
		if part == "" {
			continue
		}
		var sub Query
		if strings.HasSuffix(part, "*") && !strings.HasPrefix(part, "\"") {
			sub = NewPrefixQuery(field, strings.ToLower(strings.TrimSuffix(part, "*")))
		} else {
			tokens := analyzer.Analyze(field, strings.Trim(part, "\""))
			switch len(tokens) {
			case 0:
				continue
			case 1:
				sub = NewTermQuery(field, tokens[0].Text)
			default:
				pq := &PhraseQuery{Field: field}
				pos := -1
				for _, t := range tokens {
					pos += t.PosInc
					pq.AddAt(pos, t.Text)
				}
				sub = pq
			}
		}
		q.Add(sub, occur)
	}
	if len(q.Clauses) == 0 {
		return nil, errors.WithMessagef(ErrInvalidArgument, "query %q has no terms", text)
	}
	return q, nil
}

// splitQuery splits text on whitespace, keeping quoted phrases together.
func splitQuery(text string) []string {
	var parts []string
	var current strings.Builder
	quoted := false
	for _, r := range text {
		switch {
		case r == '"':
			quoted = !quoted
			current.WriteRune(r)
		case unicode.IsSpace(r) && !quoted:
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}
