// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package search

import (
	"container/heap"

	"github.com/acoustid/go-textindex/index"
)

// conjunctionScorer matches documents matched by all of its sub-scorers.
type conjunctionScorer struct {
	scorers []Scorer
	doc     int
	started bool
	err     error
}

func newConjunctionScorer(scorers []Scorer) *conjunctionScorer {
	return &conjunctionScorer{scorers: scorers, doc: -1}
}

func (s *conjunctionScorer) exhaust(sub Scorer) bool {
	if s.err == nil {
		s.err = sub.Err()
	}
	s.doc = NoMoreDocs
	return false
}

func (s *conjunctionScorer) Next() bool {
	if s.doc == NoMoreDocs {
		return false
	}
	if !s.started {
		s.started = true
		for _, sub := range s.scorers {
			if !sub.Next() {
				return s.exhaust(sub)
			}
		}
	} else if !s.scorers[0].Next() {
		return s.exhaust(s.scorers[0])
	}
	return s.align()
}

func (s *conjunctionScorer) SkipTo(target int) bool {
	if s.doc == NoMoreDocs {
		return false
	}
	if target <= s.doc {
		target = s.doc + 1
	}
	if !s.started {
		s.started = true
		for _, sub := range s.scorers {
			if !sub.SkipTo(target) {
				return s.exhaust(sub)
			}
		}
	} else {
		for _, sub := range s.scorers {
			if sub.Doc() < target && !sub.SkipTo(target) {
				return s.exhaust(sub)
			}
		}
	}
	return s.align()
}

// align advances the sub-scorers until they are all on the same document.
func (s *conjunctionScorer) align() bool {
	target := 0
	for _, sub := range s.scorers {
		if sub.Doc() > target {
			target = sub.Doc()
		}
	}
	for {
		aligned := true
		for _, sub := range s.scorers {
			if sub.Doc() < target && !sub.SkipTo(target) {
				return s.exhaust(sub)
			}
			if sub.Doc() > target {
				target = sub.Doc()
				aligned = false
			}
		}
		if aligned {
			s.doc = target
			return true
		}
	}
}

func (s *conjunctionScorer) Doc() int {
	return s.doc
}

func (s *conjunctionScorer) Score() float64 {
	var sum float64
	for _, sub := range s.scorers {
		sum += sub.Score()
	}
	return sum
}

func (s *conjunctionScorer) Err() error {
	return s.err
}

// disjunctionScorer matches documents matched by at least minMatch of its sub-scorers.
// The sub-scorers are kept in a heap ordered by their current document, the ones
// positioned on the current match are only advanced by the following Next or SkipTo.
type disjunctionScorer struct {
	queue    scorerQueue
	all      []Scorer
	minMatch int
	doc      int
	started  bool
	err      error
}

func newDisjunctionScorer(scorers []Scorer, minMatch int) *disjunctionScorer {
	return &disjunctionScorer{all: scorers, minMatch: minMatch, doc: -1}
}

func (s *disjunctionScorer) checkErr(sub Scorer) {
	if s.err == nil {
		s.err = sub.Err()
	}
}

func (s *disjunctionScorer) start(advance func(Scorer) bool) {
	s.started = true
	for _, sub := range s.all {
		if advance(sub) {
			s.queue = append(s.queue, sub)
		} else {
			s.checkErr(sub)
		}
	}
	heap.Init(&s.queue)
}

// advanceTop moves the scorer at the top of the heap forward.
func (s *disjunctionScorer) advanceTop(advance func(Scorer) bool) {
	top := s.queue[0]
	if advance(top) {
		heap.Fix(&s.queue, 0)
	} else {
		s.checkErr(top)
		heap.Pop(&s.queue)
	}
}

func (s *disjunctionScorer) Next() bool {
	if s.doc == NoMoreDocs {
		return false
	}
	next := func(sub Scorer) bool { return sub.Next() }
	if !s.started {
		s.start(next)
	} else {
		for len(s.queue) > 0 && s.queue[0].Doc() == s.doc {
			s.advanceTop(next)
		}
	}
	return s.findMatch()
}

func (s *disjunctionScorer) SkipTo(target int) bool {
	if s.doc == NoMoreDocs {
		return false
	}
	if target <= s.doc {
		target = s.doc + 1
	}
	skip := func(sub Scorer) bool { return sub.SkipTo(target) }
	if !s.started {
		s.start(skip)
	} else {
		for len(s.queue) > 0 && s.queue[0].Doc() < target {
			s.advanceTop(skip)
		}
	}
	return s.findMatch()
}

func (s *disjunctionScorer) findMatch() bool {
	next := func(sub Scorer) bool { return sub.Next() }
	for len(s.queue) >= s.minMatch && s.err == nil {
		doc := s.queue[0].Doc()
		if s.countMatches(0, doc) >= s.minMatch {
			s.doc = doc
			return true
		}
		for len(s.queue) > 0 && s.queue[0].Doc() == doc {
			s.advanceTop(next)
		}
	}
	s.doc = NoMoreDocs
	return false
}

// countMatches counts the scorers on doc in the subtree of the heap rooted at i.
func (s *disjunctionScorer) countMatches(i, doc int) int {
	if i >= len(s.queue) || s.queue[i].Doc() != doc {
		return 0
	}
	return 1 + s.countMatches(2*i+1, doc) + s.countMatches(2*i+2, doc)
}

func (s *disjunctionScorer) sumScores(i, doc int) float64 {
	if i >= len(s.queue) || s.queue[i].Doc() != doc {
		return 0
	}
	return s.queue[i].Score() + s.sumScores(2*i+1, doc) + s.sumScores(2*i+2, doc)
}

func (s *disjunctionScorer) Doc() int {
	return s.doc
}

func (s *disjunctionScorer) Score() float64 {
	return s.sumScores(0, s.doc)
}

func (s *disjunctionScorer) Err() error {
	return s.err
}

type scorerQueue []Scorer

func (q scorerQueue) Len() int            { return len(q) }
func (q scorerQueue) Less(i, j int) bool  { return q[i].Doc() < q[j].Doc() }
func (q scorerQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *scorerQueue) Push(x interface{}) { *q = append(*q, x.(Scorer)) }

func (q *scorerQueue) Pop() interface{} {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}

// reqExclScorer matches documents of req that are not matched by excl.
type reqExclScorer struct {
	req, excl     Scorer
	exclStarted   bool
	exclExhausted bool
	err           error
}

func newReqExclScorer(req, excl Scorer) *reqExclScorer {
	return &reqExclScorer{req: req, excl: excl}
}

func (s *reqExclScorer) Next() bool {
	if !s.req.Next() {
		return false
	}
	return s.skipExcluded()
}

func (s *reqExclScorer) SkipTo(target int) bool {
	if !s.req.SkipTo(target) {
		return false
	}
	return s.skipExcluded()
}

func (s *reqExclScorer) skipExcluded() bool {
	for {
		doc := s.req.Doc()
		if !s.exclExhausted && (!s.exclStarted || s.excl.Doc() < doc) {
			s.exclStarted = true
			if !s.excl.SkipTo(doc) {
				s.exclExhausted = true
				s.err = s.excl.Err()
			}
		}
		if s.exclExhausted || s.excl.Doc() != doc {
			return true
		}
		if !s.req.Next() {
			return false
		}
	}
}

func (s *reqExclScorer) Doc() int {
	return s.req.Doc()
}

func (s *reqExclScorer) Score() float64 {
	return s.req.Score()
}

func (s *reqExclScorer) Err() error {
	if err := s.req.Err(); err != nil {
		return err
	}
	return s.err
}

// reqOptScorer matches the documents of req, adding the score of opt where it matches too.
type reqOptScorer struct {
	req, opt     Scorer
	optStarted   bool
	optExhausted bool
}

func newReqOptScorer(req, opt Scorer) *reqOptScorer {
	return &reqOptScorer{req: req, opt: opt}
}

func (s *reqOptScorer) Next() bool             { return s.req.Next() }
func (s *reqOptScorer) SkipTo(target int) bool { return s.req.SkipTo(target) }
func (s *reqOptScorer) Doc() int               { return s.req.Doc() }

func (s *reqOptScorer) Score() float64 {
	doc := s.req.Doc()
	score := s.req.Score()
	if !s.optExhausted && (!s.optStarted || s.opt.Doc() < doc) {
		s.optStarted = true
		if !s.opt.SkipTo(doc) {
			s.optExhausted = true
		}
	}
	if !s.optExhausted && s.opt.Doc() == doc {
		score += s.opt.Score()
	}
	return score
}

func (s *reqOptScorer) Err() error {
	if err := s.req.Err(); err != nil {
		return err
	}
	return s.opt.Err()
}

// allDocsScorer matches every live document with a constant score.
type allDocsScorer struct {
	reader index.Reader
	maxDoc int
	doc    int
	score  float64
}

func newAllDocsScorer(r index.Reader, score float64) *allDocsScorer {
	return &allDocsScorer{reader: r, maxDoc: r.MaxDoc(), doc: -1, score: score}
}

func (s *allDocsScorer) Next() bool {
	return s.SkipTo(s.doc + 1)
}

func (s *allDocsScorer) SkipTo(target int) bool {
	if s.doc == NoMoreDocs {
		return false
	}
	if target <= s.doc {
		target = s.doc + 1
	}
	for doc := target; doc < s.maxDoc; doc++ {
		if !s.reader.IsDeleted(doc) {
			s.doc = doc
			return true
		}
	}
	s.doc = NoMoreDocs
	return false
}

func (s *allDocsScorer) Doc() int       { return s.doc }
func (s *allDocsScorer) Score() float64 { return s.score }
func (s *allDocsScorer) Err() error     { return nil }
