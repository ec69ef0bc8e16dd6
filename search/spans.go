// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package search

import (
	"container/heap"
	"fmt"
	"strings"

	"github.com/acoustid/go-textindex/index"
	"github.com/acoustid/go-textindex/similarity"
	"github.com/pkg/errors"
	"go4.org/sort"
)

// Spans iterates over the matches of a span query, ordered by document, start and end.
type Spans interface {
	Next() bool
	// SkipTo moves to the first span in a document >= target. Unlike Scorer.SkipTo,
	// it does not move if the current span already qualifies.
	SkipTo(target int) bool
	Doc() int
	// Start is the position of the first term of the span.
	Start() int
	// End is one past the position of the last term of the span.
	End() int
	Err() error
}

// SpanQuery is a query matching position ranges within a single field.
type SpanQuery interface {
	Query
	Field() string
	Spans(r index.Reader) (Spans, error)
}

func checkSpanFields(field string, clauses []SpanQuery) error {
	if len(clauses) == 0 {
		return errors.WithMessage(ErrInvalidArgument, "span query without clauses")
	}
	for _, c := range clauses {
		if c == nil {
			return errors.WithMessage(ErrInvalidArgument, "nil span clause")
		}
		if c.Field() != field {
			return errors.WithMessagef(ErrInvalidArgument, "span clauses must have the same field, got %v and %v", field, c.Field())
		}
	}
	return nil
}

func spanClauseStrings(clauses []SpanQuery) string {
	parts := make([]string, len(clauses))
	for i, c := range clauses {
		parts[i] = c.String()
	}
	return strings.Join(parts, ", ")
}

// SpanTermQuery matches every occurrence of a term.
type SpanTermQuery struct {
	Term  index.Term
	Boost float64
}

func NewSpanTermQuery(field, text string) *SpanTermQuery {
	return &SpanTermQuery{Term: index.NewTerm(field, text)}
}

func (q *SpanTermQuery) Field() string { return q.Term.Field }

func (q *SpanTermQuery) Rewrite(r index.Reader) (Query, error) { return q, nil }

func (q *SpanTermQuery) ExtractTerms(terms map[index.Term]struct{}) {
	terms[q.Term] = struct{}{}
}

func (q *SpanTermQuery) String() string {
	return q.Term.String() + formatBoost(q.Boost)
}

func (q *SpanTermQuery) Weight(s *Searcher) (Weight, error) {
	return newSpanWeight(s, q, q.Boost)
}

func (q *SpanTermQuery) Spans(r index.Reader) (Spans, error) {
	tp, err := r.TermPositions(q.Term)
	if err != nil {
		return nil, err
	}
	return &termSpans{tp: tp, doc: -1}, nil
}

type termSpans struct {
	tp       index.TermPositions
	doc      int
	freq     int
	count    int
	position int
}

func (s *termSpans) Next() bool {
	if s.count == s.freq {
		if !s.tp.Next() {
			s.doc = NoMoreDocs
			return false
		}
		s.doc = s.tp.Doc()
		s.freq = s.tp.Freq()
		s.count = 0
	}
	s.position = s.tp.NextPosition()
	s.count++
	return true
}

func (s *termSpans) SkipTo(target int) bool {
	if s.doc >= target {
		return s.doc != NoMoreDocs
	}
	if !s.tp.SkipTo(target) {
		s.doc = NoMoreDocs
		return false
	}
	s.doc = s.tp.Doc()
	s.freq = s.tp.Freq()
	s.count = 1
	s.position = s.tp.NextPosition()
	return true
}

func (s *termSpans) Doc() int   { return s.doc }
func (s *termSpans) Start() int { return s.position }
func (s *termSpans) End() int   { return s.position + 1 }
func (s *termSpans) Err() error { return s.tp.Err() }

// SpanFirstQuery matches spans of Match that end at or before position End.
type SpanFirstQuery struct {
	Match SpanQuery
	End   int
	Boost float64
}

func NewSpanFirstQuery(match SpanQuery, end int) *SpanFirstQuery {
	return &SpanFirstQuery{Match: match, End: end}
}

func (q *SpanFirstQuery) Field() string { return q.Match.Field() }

func (q *SpanFirstQuery) Rewrite(r index.Reader) (Query, error) {
	if q.Match == nil {
		return nil, errors.WithMessage(ErrInvalidArgument, "span first without a match")
	}
	rewritten, err := q.Match.Rewrite(r)
	if err != nil {
		return nil, err
	}
	if rewritten == Query(q.Match) {
		return q, nil
	}
	c := *q
	c.Match = rewritten.(SpanQuery)
	return &c, nil
}

func (q *SpanFirstQuery) ExtractTerms(terms map[index.Term]struct{}) {
	q.Match.ExtractTerms(terms)
}

func (q *SpanFirstQuery) String() string {
	return fmt.Sprintf("spanFirst(%v, %d)%v", q.Match, q.End, formatBoost(q.Boost))
}

func (q *SpanFirstQuery) Weight(s *Searcher) (Weight, error) {
	return newSpanWeight(s, q, q.Boost)
}

func (q *SpanFirstQuery) Spans(r index.Reader) (Spans, error) {
	spans, err := q.Match.Spans(r)
	if err != nil {
		return nil, err
	}
	return &firstSpans{Spans: spans, end: q.End}, nil
}

type firstSpans struct {
	Spans
	end int
}

func (s *firstSpans) Next() bool {
	for s.Spans.Next() {
		if s.Spans.End() <= s.end {
			return true
		}
	}
	return false
}

func (s *firstSpans) SkipTo(target int) bool {
	if !s.Spans.SkipTo(target) {
		return false
	}
	if s.Spans.End() <= s.end {
		return true
	}
	return s.Next()
}

// SpanOrQuery matches the union of the spans of its clauses.
type SpanOrQuery struct {
	Clauses []SpanQuery
	Boost   float64
}

func NewSpanOrQuery(clauses ...SpanQuery) *SpanOrQuery {
	return &SpanOrQuery{Clauses: clauses}
}

func (q *SpanOrQuery) Field() string {
	if len(q.Clauses) == 0 {
		return ""
	}
	return q.Clauses[0].Field()
}

func (q *SpanOrQuery) Rewrite(r index.Reader) (Query, error) {
	if err := checkSpanFields(q.Field(), q.Clauses); err != nil {
		return nil, err
	}
	clauses, changed, err := rewriteSpanClauses(r, q.Clauses)
	if err != nil {
		return nil, err
	}
	if !changed {
		return q, nil
	}
	c := *q
	c.Clauses = clauses
	return &c, nil
}

func rewriteSpanClauses(r index.Reader, clauses []SpanQuery) ([]SpanQuery, bool, error) {
	result := make([]SpanQuery, len(clauses))
	changed := false
	for i, c := range clauses {
		rewritten, err := c.Rewrite(r)
		if err != nil {
			return nil, false, err
		}
		sq, ok := rewritten.(SpanQuery)
		if !ok {
			return nil, false, errors.WithMessagef(ErrInvalidArgument, "%v is not a span query", rewritten)
		}
		if rewritten != Query(c) {
			changed = true
		}
		result[i] = sq
	}
	return result, changed, nil
}

func (q *SpanOrQuery) ExtractTerms(terms map[index.Term]struct{}) {
	for _, c := range q.Clauses {
		c.ExtractTerms(terms)
	}
}

func (q *SpanOrQuery) String() string {
	return fmt.Sprintf("spanOr([%v])%v", spanClauseStrings(q.Clauses), formatBoost(q.Boost))
}

func (q *SpanOrQuery) Weight(s *Searcher) (Weight, error) {
	if err := checkSpanFields(q.Field(), q.Clauses); err != nil {
		return nil, err
	}
	return newSpanWeight(s, q, q.Boost)
}

func (q *SpanOrQuery) Spans(r index.Reader) (Spans, error) {
	s := &orSpans{}
	for _, c := range q.Clauses {
		spans, err := c.Spans(r)
		if err != nil {
			return nil, err
		}
		s.all = append(s.all, spans)
	}
	return s, nil
}

type orSpans struct {
	all     []Spans
	queue   spansQueue
	started bool
	err     error
}

func (s *orSpans) checkErr(sub Spans) {
	if s.err == nil {
		s.err = sub.Err()
	}
}

func (s *orSpans) start(advance func(Spans) bool) bool {
	s.started = true
	for _, sub := range s.all {
		if advance(sub) {
			s.queue = append(s.queue, sub)
		} else {
			s.checkErr(sub)
		}
	}
	heap.Init(&s.queue)
	return len(s.queue) > 0
}

func (s *orSpans) Next() bool {
	if !s.started {
		return s.start(func(sub Spans) bool { return sub.Next() })
	}
	if len(s.queue) == 0 {
		return false
	}
	top := s.queue[0]
	if top.Next() {
		heap.Fix(&s.queue, 0)
	} else {
		s.checkErr(top)
		heap.Pop(&s.queue)
	}
	return len(s.queue) > 0
}

func (s *orSpans) SkipTo(target int) bool {
	if !s.started {
		return s.start(func(sub Spans) bool { return sub.SkipTo(target) })
	}
	for len(s.queue) > 0 && s.queue[0].Doc() < target {
		top := s.queue[0]
		if top.SkipTo(target) {
			heap.Fix(&s.queue, 0)
		} else {
			s.checkErr(top)
			heap.Pop(&s.queue)
		}
	}
	return len(s.queue) > 0
}

func (s *orSpans) Doc() int {
	if len(s.queue) == 0 {
		return NoMoreDocs
	}
	return s.queue[0].Doc()
}

func (s *orSpans) Start() int { return s.queue[0].Start() }
func (s *orSpans) End() int   { return s.queue[0].End() }
func (s *orSpans) Err() error { return s.err }

type spansQueue []Spans

func (q spansQueue) Len() int { return len(q) }

func (q spansQueue) Less(i, j int) bool {
	a, b := q[i], q[j]
	if a.Doc() != b.Doc() {
		return a.Doc() < b.Doc()
	}
	if a.Start() != b.Start() {
		return a.Start() < b.Start()
	}
	return a.End() < b.End()
}

func (q spansQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *spansQueue) Push(x interface{}) { *q = append(*q, x.(Spans)) }

func (q *spansQueue) Pop() interface{} {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}

// SpanNearQuery matches windows containing a span of every clause, with at most Slop
// positions between them. If InOrder is set, the clause spans must follow each other
// in the order of the clauses without overlapping.
type SpanNearQuery struct {
	Clauses []SpanQuery
	Slop    int
	InOrder bool
	Boost   float64
}

func NewSpanNearQuery(clauses []SpanQuery, slop int, inOrder bool) *SpanNearQuery {
	return &SpanNearQuery{Clauses: clauses, Slop: slop, InOrder: inOrder}
}

func (q *SpanNearQuery) Field() string {
	if len(q.Clauses) == 0 {
		return ""
	}
	return q.Clauses[0].Field()
}

func (q *SpanNearQuery) validate() error {
	if q.Slop < 0 {
		return errors.WithMessage(ErrInvalidArgument, "negative slop")
	}
	return checkSpanFields(q.Field(), q.Clauses)
}

func (q *SpanNearQuery) Rewrite(r index.Reader) (Query, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	clauses, changed, err := rewriteSpanClauses(r, q.Clauses)
	if err != nil {
		return nil, err
	}
	if !changed {
		return q, nil
	}
	c := *q
	c.Clauses = clauses
	return &c, nil
}

func (q *SpanNearQuery) ExtractTerms(terms map[index.Term]struct{}) {
	for _, c := range q.Clauses {
		c.ExtractTerms(terms)
	}
}

func (q *SpanNearQuery) String() string {
	return fmt.Sprintf("spanNear([%v], %d, %v)%v", spanClauseStrings(q.Clauses), q.Slop, q.InOrder, formatBoost(q.Boost))
}

func (q *SpanNearQuery) Weight(s *Searcher) (Weight, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	return newSpanWeight(s, q, q.Boost)
}

func (q *SpanNearQuery) Spans(r index.Reader) (Spans, error) {
	s := &nearSpans{slop: q.Slop, inOrder: q.InOrder, doc: -1}
	for _, c := range q.Clauses {
		spans, err := c.Spans(r)
		if err != nil {
			return nil, err
		}
		s.subs = append(s.subs, spans)
	}
	return s, nil
}

type span struct {
	start, end int
}

// nearSpans collects all spans of the clauses in a candidate document and computes
// the matching windows from them.
type nearSpans struct {
	subs    []Spans
	slop    int
	inOrder bool
	started bool
	doc     int
	matches []span
	current int
	err     error
}

func (s *nearSpans) exhaust(sub Spans) bool {
	if s.err == nil && sub != nil {
		s.err = sub.Err()
	}
	s.doc = NoMoreDocs
	s.matches = nil
	return false
}

func (s *nearSpans) Next() bool {
	if s.doc == NoMoreDocs {
		return false
	}
	if s.current+1 < len(s.matches) {
		s.current++
		return true
	}
	if !s.started {
		s.started = true
		for _, sub := range s.subs {
			if !sub.Next() {
				return s.exhaust(sub)
			}
		}
	}
	return s.nextDoc()
}

func (s *nearSpans) SkipTo(target int) bool {
	if s.doc == NoMoreDocs {
		return false
	}
	if s.doc >= target && s.current < len(s.matches) {
		return true
	}
	if !s.started {
		s.started = true
		for _, sub := range s.subs {
			if !sub.SkipTo(target) {
				return s.exhaust(sub)
			}
		}
	} else {
		for _, sub := range s.subs {
			if sub.Doc() < target && !sub.SkipTo(target) {
				return s.exhaust(sub)
			}
		}
	}
	return s.nextDoc()
}

// nextDoc finds the next document, at or after the sub-spans, with a matching window.
func (s *nearSpans) nextDoc() bool {
	for {
		target := 0
		for _, sub := range s.subs {
			if sub.Doc() == NoMoreDocs {
				return s.exhaust(sub)
			}
			if sub.Doc() > target {
				target = sub.Doc()
			}
		}
		aligned := true
		for _, sub := range s.subs {
			if sub.Doc() < target && !sub.SkipTo(target) {
				return s.exhaust(sub)
			}
			if sub.Doc() != target {
				aligned = false
			}
		}
		if !aligned {
			continue
		}

		lists := make([][]span, len(s.subs))
		for i, sub := range s.subs {
			for sub.Doc() == target {
				lists[i] = append(lists[i], span{sub.Start(), sub.End()})
				if !sub.Next() {
					if err := sub.Err(); err != nil {
						return s.exhaust(sub)
					}
					break
				}
			}
		}
		if s.inOrder {
			s.matches = orderedMatches(lists, s.slop)
		} else {
			s.matches = unorderedMatches(lists, s.slop)
		}
		if len(s.matches) > 0 {
			s.doc = target
			s.current = 0
			return true
		}
	}
}

func (s *nearSpans) Doc() int   { return s.doc }
func (s *nearSpans) Start() int { return s.matches[s.current].start }
func (s *nearSpans) End() int   { return s.matches[s.current].end }
func (s *nearSpans) Err() error { return s.err }

// orderedMatches finds, for each span of the first clause, the earliest ending chain
// of non-overlapping spans of the following clauses.
func orderedMatches(lists [][]span, slop int) []span {
	var matches []span
	for _, first := range lists[0] {
		end := first.end
		length := first.end - first.start
		ok := true
		for _, list := range lists[1:] {
			best := -1
			for j, sp := range list {
				if sp.start >= end && (best < 0 || sp.end < list[best].end) {
					best = j
				}
			}
			if best < 0 {
				ok = false
				break
			}
			end = list[best].end
			length += list[best].end - list[best].start
		}
		if ok && end-first.start-length <= slop {
			matches = appendSpan(matches, span{first.start, end})
		}
	}
	return sortSpans(matches)
}

// unorderedMatches finds, for each span, the smallest window starting with it that
// contains a span of every clause.
func unorderedMatches(lists [][]span, slop int) []span {
	var matches []span
	for i, list := range lists {
		for _, first := range list {
			end := first.end
			length := first.end - first.start
			ok := true
			for j, other := range lists {
				if j == i {
					continue
				}
				best := -1
				for k, sp := range other {
					if sp.start >= first.start && (best < 0 || sp.end < other[best].end) {
						best = k
					}
				}
				if best < 0 {
					ok = false
					break
				}
				if other[best].end > end {
					end = other[best].end
				}
				length += other[best].end - other[best].start
			}
			if ok && end-first.start-length <= slop {
				matches = appendSpan(matches, span{first.start, end})
			}
		}
	}
	return sortSpans(matches)
}

func appendSpan(spans []span, sp span) []span {
	for _, s := range spans {
		if s == sp {
			return spans
		}
	}
	return append(spans, sp)
}

func sortSpans(spans []span) []span {
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end < spans[j].end
	})
	return spans
}

// SpanNotQuery matches spans of Include that do not overlap any span of Exclude.
type SpanNotQuery struct {
	Include SpanQuery
	Exclude SpanQuery
	Boost   float64
}

func NewSpanNotQuery(include, exclude SpanQuery) *SpanNotQuery {
	return &SpanNotQuery{Include: include, Exclude: exclude}
}

func (q *SpanNotQuery) Field() string { return q.Include.Field() }

func (q *SpanNotQuery) validate() error {
	if q.Include == nil || q.Exclude == nil {
		return errors.WithMessage(ErrInvalidArgument, "span not needs include and exclude clauses")
	}
	return checkSpanFields(q.Include.Field(), []SpanQuery{q.Exclude})
}

func (q *SpanNotQuery) Rewrite(r index.Reader) (Query, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	clauses, changed, err := rewriteSpanClauses(r, []SpanQuery{q.Include, q.Exclude})
	if err != nil {
		return nil, err
	}
	if !changed {
		return q, nil
	}
	c := *q
	c.Include, c.Exclude = clauses[0], clauses[1]
	return &c, nil
}

func (q *SpanNotQuery) ExtractTerms(terms map[index.Term]struct{}) {
	q.Include.ExtractTerms(terms)
}

func (q *SpanNotQuery) String() string {
	return fmt.Sprintf("spanNot(%v, %v)%v", q.Include, q.Exclude, formatBoost(q.Boost))
}

func (q *SpanNotQuery) Weight(s *Searcher) (Weight, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	return newSpanWeight(s, q, q.Boost)
}

func (q *SpanNotQuery) Spans(r index.Reader) (Spans, error) {
	include, err := q.Include.Spans(r)
	if err != nil {
		return nil, err
	}
	exclude, err := q.Exclude.Spans(r)
	if err != nil {
		return nil, err
	}
	return &notSpans{include: include, exclude: exclude}, nil
}

type notSpans struct {
	include, exclude Spans
	exclStarted      bool
	exclExhausted    bool
}

func (s *notSpans) Next() bool {
	if !s.include.Next() {
		return false
	}
	return s.skipExcluded()
}

func (s *notSpans) SkipTo(target int) bool {
	if !s.include.SkipTo(target) {
		return false
	}
	return s.skipExcluded()
}

// skipExcluded moves include forward until its span is not overlapped by an excluded span.
func (s *notSpans) skipExcluded() bool {
	for {
		doc := s.include.Doc()
		if !s.exclExhausted && (!s.exclStarted || s.exclude.Doc() < doc) {
			s.exclStarted = true
			if !s.exclude.SkipTo(doc) {
				s.exclExhausted = true
			}
		}
		for !s.exclExhausted && s.exclude.Doc() == doc && s.exclude.End() <= s.include.Start() {
			if !s.exclude.Next() {
				s.exclExhausted = true
			}
		}
		if s.exclExhausted || s.exclude.Doc() != doc || s.include.End() <= s.exclude.Start() {
			return true
		}
		if !s.include.Next() {
			return false
		}
	}
}

func (s *notSpans) Doc() int   { return s.include.Doc() }
func (s *notSpans) Start() int { return s.include.Start() }
func (s *notSpans) End() int   { return s.include.End() }

func (s *notSpans) Err() error {
	if err := s.include.Err(); err != nil {
		return err
	}
	return s.exclude.Err()
}

// spanWeight scores documents by the sloppy frequencies of their spans, with the
// summed idf of all the query's terms.
type spanWeight struct {
	query       SpanQuery
	sim         similarity.Similarity
	boost       float64
	numDocs     int
	idf         float64
	queryNorm   float64
	queryWeight float64
	value       float64
}

func newSpanWeight(s *Searcher, q SpanQuery, boost float64) (*spanWeight, error) {
	w := &spanWeight{query: q, sim: s.Similarity, boost: boostOf(boost), numDocs: s.MaxDoc()}
	var docFreqs []int
	for _, t := range extractTerms(q) {
		df, err := s.DocFreq(t)
		if err != nil {
			return nil, err
		}
		docFreqs = append(docFreqs, df)
	}
	w.idf = similarity.IdfSum(w.sim, docFreqs, w.numDocs)
	return w, nil
}

func (w *spanWeight) Query() Query   { return w.query }
func (w *spanWeight) Value() float64 { return w.value }

func (w *spanWeight) SumOfSquaredWeights() float64 {
	w.queryWeight = w.idf * w.boost
	return w.queryWeight * w.queryWeight
}

func (w *spanWeight) Normalize(norm float64) {
	w.queryNorm = norm
	w.queryWeight *= norm
	w.value = w.queryWeight * w.idf
}

func (w *spanWeight) Scorer(r index.Reader) (Scorer, error) {
	spans, err := w.query.Spans(r)
	if err != nil {
		return nil, err
	}
	return &spanScorer{
		spans: spans,
		sim:   w.sim,
		norms: r.Norms(w.query.Field()),
		value: w.value,
		doc:   -1,
	}, nil
}

func (w *spanWeight) Explain(r index.Reader, doc int) (*Explanation, error) {
	q := w.query
	result := newExplanation(0, fmt.Sprintf("weight(%v in %d), product of:", q, doc))
	idfExpl := newExplanation(w.idf, fmt.Sprintf("idf(%v)", q.Field()))

	queryExpl := newExplanation(w.boost*w.idf*w.queryNorm, fmt.Sprintf("queryWeight(%v), product of:", q))
	if w.boost != 1 {
		queryExpl.addDetail(newExplanation(w.boost, "boost"))
	}
	queryExpl.addDetail(idfExpl)
	queryExpl.addDetail(newExplanation(w.queryNorm, "queryNorm"))
	result.addDetail(queryExpl)

	scorer, err := w.Scorer(r)
	if err != nil {
		return nil, err
	}
	ss := scorer.(*spanScorer)
	var freq float64
	if ss.SkipTo(doc) && ss.Doc() == doc {
		freq = ss.freq
	}
	if err := ss.Err(); err != nil {
		return nil, err
	}

	fieldExpl := newExplanation(0, fmt.Sprintf("fieldWeight(%v in %d), product of:", q.Field(), doc))
	tfExpl := newExplanation(w.sim.Tf(freq), fmt.Sprintf("tf(phraseFreq=%v)", formatFloat(freq)))
	if freq == 0 {
		tfExpl = newExplanation(0, "no matching spans")
	}
	fieldExpl.addDetail(tfExpl)
	fieldExpl.addDetail(idfExpl)
	fieldNorm := normExplanation(r, q.Field(), doc)
	fieldExpl.addDetail(fieldNorm)
	fieldExpl.Value = tfExpl.Value * w.idf * fieldNorm.Value
	result.addDetail(fieldExpl)

	result.Value = queryExpl.Value * fieldExpl.Value
	if queryExpl.Value == 1 {
		return fieldExpl, nil
	}
	return result, nil
}

// spanScorer consumes all spans of a document to compute its frequency, so the spans
// are always one document ahead of the scorer.
type spanScorer struct {
	spans   Spans
	sim     similarity.Similarity
	norms   []byte
	value   float64
	doc     int
	freq    float64
	started bool
	more    bool
}

func (s *spanScorer) Next() bool {
	if !s.started {
		s.started = true
		s.more = s.spans.Next()
	}
	return s.collect()
}

func (s *spanScorer) SkipTo(target int) bool {
	if target <= s.doc {
		target = s.doc + 1
	}
	if !s.started {
		s.started = true
		s.more = s.spans.SkipTo(target)
	} else if s.more && s.spans.Doc() < target {
		s.more = s.spans.SkipTo(target)
	}
	return s.collect()
}

func (s *spanScorer) collect() bool {
	if !s.more {
		s.doc = NoMoreDocs
		return false
	}
	s.doc = s.spans.Doc()
	s.freq = 0
	for s.more && s.spans.Doc() == s.doc {
		s.freq += s.sim.SloppyFreq(s.spans.End() - s.spans.Start())
		s.more = s.spans.Next()
	}
	return true
}

func (s *spanScorer) Doc() int {
	return s.doc
}

func (s *spanScorer) Score() float64 {
	return s.sim.Tf(s.freq) * s.value * decodeNorm(s.norms, s.doc)
}

func (s *spanScorer) Err() error {
	return s.spans.Err()
}
