// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package index

import (
	"container/heap"
	"sort"
)

// segmentTermCursor is the term enumerator of one segment inside a multi-segment merge.
type segmentTermCursor struct {
	index  int
	base   int
	reader *SegmentReader
	enum   *segmentTermEnum
}

// termCursorQueue orders segment cursors by their current term, ties are broken by segment order.
type termCursorQueue []*segmentTermCursor

func (q termCursorQueue) Len() int { return len(q) }

func (q termCursorQueue) Less(i, j int) bool {
	if c := q[i].enum.Term().Compare(q[j].enum.Term()); c != 0 {
		return c < 0
	}
	return q[i].index < q[j].index
}

func (q termCursorQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *termCursorQueue) Push(x interface{}) {
	*q = append(*q, x.(*segmentTermCursor))
}

func (q *termCursorQueue) Pop() interface{} {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}

// multiTermEnum merges the term dictionaries of several segments.
type multiTermEnum struct {
	queue   termCursorQueue
	matches []*segmentTermCursor
	term    Term
	docFreq int
	err     error
}

func newMultiTermEnum(readers []*SegmentReader, starts []int, from *Term) (*multiTermEnum, error) {
	e := &multiTermEnum{}
	for i, r := range readers {
		var enum *segmentTermEnum
		if from != nil {
			var err error
			enum, err = r.terms.seek(*from)
			if err != nil {
				return nil, err
			}
		} else {
			enum = r.terms.enum()
		}
		c := &segmentTermCursor{index: i, base: starts[i], reader: r, enum: enum}
		if enum.Next() {
			e.queue = append(e.queue, c)
		} else if err := enum.Err(); err != nil {
			return nil, err
		}
	}
	heap.Init(&e.queue)
	return e, nil
}

func (e *multiTermEnum) Next() bool {
	if e.err != nil {
		return false
	}
	for _, c := range e.matches {
		if c.enum.Next() {
			heap.Push(&e.queue, c)
		} else if err := c.enum.Err(); err != nil {
			e.err = err
			return false
		}
	}
	e.matches = e.matches[:0]
	if len(e.queue) == 0 {
		e.term = Term{}
		e.docFreq = 0
		return false
	}
	e.term = e.queue[0].enum.Term()
	e.docFreq = 0
	for len(e.queue) > 0 && e.queue[0].enum.Term() == e.term {
		c := heap.Pop(&e.queue).(*segmentTermCursor)
		e.docFreq += c.enum.DocFreq()
		e.matches = append(e.matches, c)
	}
	return true
}

func (e *multiTermEnum) Term() Term {
	return e.term
}

func (e *multiTermEnum) DocFreq() int {
	return e.docFreq
}

func (e *multiTermEnum) Err() error {
	return e.err
}

func (e *multiTermEnum) Close() error {
	return nil
}

// multiTermDocs walks the postings of a term segment by segment.
type multiTermDocs struct {
	readers       []*SegmentReader
	starts        []int
	term          Term
	withPositions bool

	cursors []*segmentPostings
	pointer int
	base    int
	current *segmentPostings
	done    bool
	err     error
}

func newMultiTermDocs(readers []*SegmentReader, starts []int, t Term, withPositions bool) *multiTermDocs {
	return &multiTermDocs{
		readers:       readers,
		starts:        starts,
		term:          t,
		withPositions: withPositions,
		cursors:       make([]*segmentPostings, len(readers)),
	}
}

// nextSegment moves to the postings of the next segment.
func (d *multiTermDocs) nextSegment() bool {
	if d.current != nil {
		if err := d.current.Err(); err != nil {
			d.err = err
			return false
		}
	}
	if d.pointer >= len(d.readers) {
		d.done = true
		return false
	}
	p, err := d.readers[d.pointer].postings(d.term, d.withPositions)
	if err != nil {
		d.err = err
		return false
	}
	d.cursors[d.pointer] = p
	d.base = d.starts[d.pointer]
	d.current = p
	d.pointer++
	return true
}

func (d *multiTermDocs) Next() bool {
	for d.err == nil && !d.done {
		if d.current != nil && d.current.Next() {
			return true
		}
		if !d.nextSegment() {
			break
		}
	}
	return false
}

func (d *multiTermDocs) SkipTo(target int) bool {
	for d.err == nil && !d.done {
		if d.current != nil && d.current.SkipTo(target-d.base) {
			return true
		}
		if !d.nextSegment() {
			break
		}
	}
	return false
}

func (d *multiTermDocs) Doc() int {
	if d.done || d.current == nil {
		return NoMoreDocs
	}
	return d.base + d.current.Doc()
}

func (d *multiTermDocs) Freq() int {
	if d.current == nil {
		return 0
	}
	return d.current.Freq()
}

func (d *multiTermDocs) NextPosition() int {
	if d.current == nil {
		return -1
	}
	return d.current.NextPosition()
}

func (d *multiTermDocs) Err() error {
	if d.err == nil && d.current != nil {
		return d.current.Err()
	}
	return d.err
}

func (d *multiTermDocs) Close() error {
	return nil
}

// unionPositions merges the positions of several terms as if they were one term.
type unionPositions struct {
	cursors   []TermPositions
	queue     positionsQueue
	doc       int
	positions []int
	next      int
	err       error
}

type positionsQueue []TermPositions

func (q positionsQueue) Len() int           { return len(q) }
func (q positionsQueue) Less(i, j int) bool { return q[i].Doc() < q[j].Doc() }
func (q positionsQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *positionsQueue) Push(x interface{}) {
	*q = append(*q, x.(TermPositions))
}

func (q *positionsQueue) Pop() interface{} {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}

// NewMultiTermPositions returns a cursor over the documents containing any of the terms.
// The positions of all terms in a document are reported in increasing order.
func NewMultiTermPositions(r Reader, terms []Term) (TermPositions, error) {
	u := &unionPositions{doc: -1}
	for _, t := range terms {
		tp, err := r.TermPositions(t)
		if err != nil {
			return nil, err
		}
		u.cursors = append(u.cursors, tp)
		if tp.Next() {
			u.queue = append(u.queue, tp)
		} else if err := tp.Err(); err != nil {
			return nil, err
		}
	}
	heap.Init(&u.queue)
	return u, nil
}

func (u *unionPositions) Next() bool {
	if u.err != nil {
		return false
	}
	if len(u.queue) == 0 {
		u.doc = NoMoreDocs
		u.positions = u.positions[:0]
		return false
	}
	u.doc = u.queue[0].Doc()
	u.positions = u.positions[:0]
	u.next = 0
	for len(u.queue) > 0 && u.queue[0].Doc() == u.doc {
		tp := u.queue[0]
		for i := tp.Freq(); i > 0; i-- {
			u.positions = append(u.positions, tp.NextPosition())
		}
		if tp.Next() {
			heap.Fix(&u.queue, 0)
		} else {
			if err := tp.Err(); err != nil {
				u.err = err
				return false
			}
			heap.Pop(&u.queue)
		}
	}
	sort.Ints(u.positions)
	return true
}

func (u *unionPositions) SkipTo(target int) bool {
	for len(u.queue) > 0 && u.queue[0].Doc() < target {
		tp := u.queue[0]
		if tp.SkipTo(target) {
			heap.Fix(&u.queue, 0)
		} else {
			if err := tp.Err(); err != nil {
				u.err = err
				return false
			}
			heap.Pop(&u.queue)
		}
	}
	return u.Next()
}

func (u *unionPositions) Doc() int {
	return u.doc
}

func (u *unionPositions) Freq() int {
	return len(u.positions)
}

func (u *unionPositions) NextPosition() int {
	if u.next >= len(u.positions) {
		return -1
	}
	pos := u.positions[u.next]
	u.next++
	return pos
}

func (u *unionPositions) Err() error {
	return u.err
}

func (u *unionPositions) Close() error {
	for _, tp := range u.cursors {
		tp.Close()
	}
	return nil
}
