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
)

// PhraseQuery matches documents containing a sequence of terms.
//
// Each position of the phrase can hold several alternative terms. With a non-zero Slop,
// the terms may be up to Slop moves away from their exact positions, closer matches
// score higher.
type PhraseQuery struct {
	Field     string
	Terms     [][]string
	Positions []int
	Slop      int
	Boost     float64
}

// NewPhraseQuery creates a phrase of consecutive terms.
func NewPhraseQuery(field string, terms ...string) *PhraseQuery {
	q := &PhraseQuery{Field: field}
	for _, t := range terms {
		q.Add(t)
	}
	return q
}

// Add appends a position with one or more alternative terms to the phrase.
func (q *PhraseQuery) Add(terms ...string) *PhraseQuery {
	pos := 0
	if n := len(q.Positions); n > 0 {
		pos = q.Positions[n-1] + 1
	}
	return q.AddAt(pos, terms...)
}

// AddAt adds terms at an explicit position, which allows gaps in the phrase.
func (q *PhraseQuery) AddAt(pos int, terms ...string) *PhraseQuery {
	q.Terms = append(q.Terms, terms)
	q.Positions = append(q.Positions, pos)
	return q
}

func (q *PhraseQuery) clone() *PhraseQuery {
	c := *q
	c.Terms = append([][]string(nil), q.Terms...)
	c.Positions = append([]int(nil), q.Positions...)
	return &c
}

func (q *PhraseQuery) validate() error {
	if len(q.Terms) != len(q.Positions) {
		return errors.WithMessage(ErrInvalidArgument, "phrase terms and positions differ in length")
	}
	if q.Slop < 0 {
		return errors.WithMessage(ErrInvalidArgument, "negative slop")
	}
	for i, terms := range q.Terms {
		if len(terms) == 0 {
			return errors.WithMessagef(ErrInvalidArgument, "no terms at phrase position %d", q.Positions[i])
		}
		if q.Positions[i] < 0 {
			return errors.WithMessage(ErrInvalidArgument, "negative phrase position")
		}
	}
	return nil
}

func (q *PhraseQuery) Rewrite(r index.Reader) (Query, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	if len(q.Terms) == 0 {
		// an empty phrase matches nothing
		return NewBooleanQuery(), nil
	}
	if len(q.Terms) == 1 && len(q.Terms[0]) == 1 {
		return &TermQuery{Term: index.NewTerm(q.Field, q.Terms[0][0]), Boost: q.Boost}, nil
	}
	return q, nil
}

func (q *PhraseQuery) ExtractTerms(terms map[index.Term]struct{}) {
	for _, alternatives := range q.Terms {
		for _, text := range alternatives {
			terms[index.NewTerm(q.Field, text)] = struct{}{}
		}
	}
}

func (q *PhraseQuery) String() string {
	var sb strings.Builder
	sb.WriteString(q.Field)
	sb.WriteString(":\"")
	last := -1
	for i, terms := range q.Terms {
		if i > 0 {
			sb.WriteByte(' ')
			for gap := q.Positions[i] - last; gap > 1; gap-- {
				sb.WriteString("? ")
			}
		}
		last = q.Positions[i]
		if len(terms) > 1 {
			sb.WriteByte('(')
			sb.WriteString(strings.Join(terms, " "))
			sb.WriteByte(')')
		} else {
			sb.WriteString(terms[0])
		}
	}
	sb.WriteByte('"')
	if q.Slop != 0 {
		fmt.Fprintf(&sb, "~%d", q.Slop)
	}
	sb.WriteString(formatBoost(q.Boost))
	return sb.String()
}

func (q *PhraseQuery) Weight(s *Searcher) (Weight, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	w := &phraseWeight{query: q, sim: s.Similarity, numDocs: s.MaxDoc()}
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

type phraseWeight struct {
	query       *PhraseQuery
	sim         similarity.Similarity
	numDocs     int
	idf         float64
	queryNorm   float64
	queryWeight float64
	value       float64
}

func (w *phraseWeight) Query() Query   { return w.query }
func (w *phraseWeight) Value() float64 { return w.value }

func (w *phraseWeight) SumOfSquaredWeights() float64 {
	w.queryWeight = w.idf * boostOf(w.query.Boost)
	return w.queryWeight * w.queryWeight
}

func (w *phraseWeight) Normalize(norm float64) {
	w.queryNorm = norm
	w.queryWeight *= norm
	w.value = w.queryWeight * w.idf
}

func (w *phraseWeight) Scorer(r index.Reader) (Scorer, error) {
	q := w.query
	if len(q.Terms) == 0 {
		return nil, nil
	}
	pps := make([]*phrasePositions, len(q.Terms))
	for i, texts := range q.Terms {
		terms := make([]index.Term, len(texts))
		for j, text := range texts {
			terms[j] = index.NewTerm(q.Field, text)
		}
		var tp index.TermPositions
		var err error
		if len(terms) == 1 {
			var df int
			df, err = r.DocFreq(terms[0])
			if err != nil {
				return nil, err
			}
			if df == 0 {
				return nil, nil
			}
			tp, err = r.TermPositions(terms[0])
		} else {
			tp, err = index.NewMultiTermPositions(r, terms)
		}
		if err != nil {
			return nil, err
		}
		pps[i] = &phrasePositions{tp: tp, offset: q.Positions[i]}
	}
	s := &phraseScorer{
		pps:   pps,
		sim:   w.sim,
		norms: r.Norms(q.Field),
		value: w.value,
		slop:  q.Slop,
		doc:   -1,
	}
	return s, nil
}

func (w *phraseWeight) Explain(r index.Reader, doc int) (*Explanation, error) {
	q := w.query
	result := newExplanation(0, fmt.Sprintf("weight(%v in %d), product of:", q, doc))

	var dfs []string
	for _, t := range extractTerms(q) {
		df, err := r.DocFreq(t)
		if err != nil {
			return nil, err
		}
		dfs = append(dfs, fmt.Sprintf("%v=%d", t.Text, df))
	}
	idfExpl := newExplanation(w.idf, fmt.Sprintf("idf(%v: %v)", q.Field, strings.Join(dfs, " ")))

	queryExpl := newExplanation(boostOf(q.Boost)*w.idf*w.queryNorm, fmt.Sprintf("queryWeight(%v), product of:", q))
	if boost := boostOf(q.Boost); boost != 1 {
		queryExpl.addDetail(newExplanation(boost, "boost"))
	}
	queryExpl.addDetail(idfExpl)
	queryExpl.addDetail(newExplanation(w.queryNorm, "queryNorm"))
	result.addDetail(queryExpl)

	var freq float64
	scorer, err := w.Scorer(r)
	if err != nil {
		return nil, err
	}
	if scorer != nil {
		ps := scorer.(*phraseScorer)
		if ps.SkipTo(doc) && ps.Doc() == doc {
			freq = ps.freq
		}
		if err := ps.Err(); err != nil {
			return nil, err
		}
	}

	fieldExpl := newExplanation(0, fmt.Sprintf("fieldWeight(%v in %d), product of:", q, doc))
	tfExpl := newExplanation(w.sim.Tf(freq), fmt.Sprintf("tf(phraseFreq=%v)", formatFloat(freq)))
	if freq == 0 {
		tfExpl = newExplanation(0, "no phrase match")
	}
	fieldExpl.addDetail(tfExpl)
	fieldExpl.addDetail(idfExpl)
	fieldNorm := normExplanation(r, q.Field, doc)
	fieldExpl.addDetail(fieldNorm)
	fieldExpl.Value = tfExpl.Value * w.idf * fieldNorm.Value
	result.addDetail(fieldExpl)

	result.Value = queryExpl.Value * fieldExpl.Value
	if queryExpl.Value == 1 {
		return fieldExpl, nil
	}
	return result, nil
}

// phrasePositions walks the positions of one phrase term, shifted by the term's
// offset within the phrase so that an exact match has equal positions.
type phrasePositions struct {
	tp       index.TermPositions
	offset   int
	position int
	count    int
}

func (pp *phrasePositions) firstPosition() {
	pp.count = pp.tp.Freq()
	pp.nextPosition()
}

func (pp *phrasePositions) nextPosition() bool {
	if pp.count <= 0 {
		return false
	}
	pp.count--
	pp.position = pp.tp.NextPosition() - pp.offset
	return true
}

type phraseScorer struct {
	pps     []*phrasePositions
	sim     similarity.Similarity
	norms   []byte
	value   float64
	slop    int
	doc     int
	freq    float64
	started bool
	err     error
}

func (s *phraseScorer) exhaust(pp *phrasePositions) bool {
	if s.err == nil {
		s.err = pp.tp.Err()
	}
	s.doc = NoMoreDocs
	return false
}

func (s *phraseScorer) Next() bool {
	if s.doc == NoMoreDocs {
		return false
	}
	if !s.started {
		s.started = true
		for _, pp := range s.pps {
			if !pp.tp.Next() {
				return s.exhaust(pp)
			}
		}
	} else if !s.pps[0].tp.Next() {
		return s.exhaust(s.pps[0])
	}
	return s.findMatch()
}

func (s *phraseScorer) SkipTo(target int) bool {
	if s.doc == NoMoreDocs {
		return false
	}
	if target <= s.doc {
		target = s.doc + 1
	}
	for _, pp := range s.pps {
		if (!s.started || pp.tp.Doc() < target) && !pp.tp.SkipTo(target) {
			return s.exhaust(pp)
		}
	}
	s.started = true
	return s.findMatch()
}

// findMatch aligns the term cursors on a document containing the phrase.
func (s *phraseScorer) findMatch() bool {
	for {
		target := 0
		for _, pp := range s.pps {
			if pp.tp.Doc() > target {
				target = pp.tp.Doc()
			}
		}
		aligned := true
		for _, pp := range s.pps {
			if pp.tp.Doc() < target && !pp.tp.SkipTo(target) {
				return s.exhaust(pp)
			}
			if pp.tp.Doc() != target {
				aligned = false
			}
		}
		if !aligned {
			continue
		}
		if s.slop == 0 {
			s.freq = s.exactPhraseFreq()
		} else {
			s.freq = s.sloppyPhraseFreq()
		}
		if s.freq > 0 {
			s.doc = target
			return true
		}
		if !s.pps[0].tp.Next() {
			return s.exhaust(s.pps[0])
		}
	}
}

// exactPhraseFreq counts the positions where all terms line up.
func (s *phraseScorer) exactPhraseFreq() float64 {
	positions := make([][]int, len(s.pps))
	for i, pp := range s.pps {
		pp.firstPosition()
		for {
			positions[i] = append(positions[i], pp.position)
			if !pp.nextPosition() {
				break
			}
		}
		sortInts(positions[i])
	}
	freq := 0
	idx := make([]int, len(positions))
	for _, p := range positions[0] {
		found := true
		for i := 1; i < len(positions); i++ {
			list := positions[i]
			for idx[i] < len(list) && list[idx[i]] < p {
				idx[i]++
			}
			if idx[i] == len(list) {
				return float64(freq)
			}
			if list[idx[i]] != p {
				found = false
			}
		}
		if found {
			freq++
		}
	}
	return float64(freq)
}

// sloppyPhraseFreq sums the sloppy frequencies of the minimal windows containing
// all terms, whose length exceeds the phrase length by at most slop.
func (s *phraseScorer) sloppyPhraseFreq() float64 {
	queue := make(positionQueue, 0, len(s.pps))
	end := 0
	for i, pp := range s.pps {
		pp.firstPosition()
		if i == 0 || pp.position > end {
			end = pp.position
		}
		queue = append(queue, pp)
	}
	heap.Init(&queue)

	var freq float64
	for {
		pp := heap.Pop(&queue).(*phrasePositions)
		start := pp.position
		next := start
		if len(queue) > 0 {
			next = queue[0].position
		}
		done := false
		for pos := start; pos <= next; pos = pp.position {
			start = pos
			if !pp.nextPosition() {
				done = true
				break
			}
		}
		if matchLength := end - start; matchLength <= s.slop {
			freq += s.sim.SloppyFreq(matchLength)
		}
		if done {
			return freq
		}
		if pp.position > end {
			end = pp.position
		}
		heap.Push(&queue, pp)
	}
}

func (s *phraseScorer) Doc() int {
	return s.doc
}

func (s *phraseScorer) Score() float64 {
	return s.sim.Tf(s.freq) * s.value * decodeNorm(s.norms, s.doc)
}

func (s *phraseScorer) Err() error {
	return s.err
}

type positionQueue []*phrasePositions

func (q positionQueue) Len() int { return len(q) }

func (q positionQueue) Less(i, j int) bool {
	if q[i].position != q[j].position {
		return q[i].position < q[j].position
	}
	return q[i].offset < q[j].offset
}

func (q positionQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *positionQueue) Push(x interface{}) { *q = append(*q, x.(*phrasePositions)) }

func (q *positionQueue) Pop() interface{} {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}
