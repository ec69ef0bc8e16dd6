// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package index

import (
	"math"

	"github.com/acoustid/go-textindex/util/bitset"
	"github.com/acoustid/go-textindex/util/vfs"
	"github.com/pkg/errors"
)

// NoMoreDocs is the value of Doc after a cursor is exhausted.
const NoMoreDocs = math.MaxInt32

// TermDocs iterates over the live documents containing a term, in increasing doc order.
type TermDocs interface {
	// Next moves to the next document.
	Next() bool
	// SkipTo moves to the first document >= target. It always moves forward at least once.
	SkipTo(target int) bool
	Doc() int
	// Freq returns the number of occurrences of the term in the current document.
	Freq() int
	Err() error
	Close() error
}

// TermPositions is a TermDocs that also reports where the term occurs in each document.
type TermPositions interface {
	TermDocs
	// NextPosition returns the next position of the term in the current document,
	// or -1 after Freq positions have been read.
	NextPosition() int
}

// TermEnum iterates over terms in order.
type TermEnum interface {
	Next() bool
	Term() Term
	// DocFreq returns the number of documents containing the current term, including deleted ones.
	DocFreq() int
	Err() error
	Close() error
}

// segmentPostings reads the posting list of one term in one segment.
type segmentPostings struct {
	file          string
	freqIn        *vfs.Input
	proxIn        *vfs.Input
	deleted       *bitset.BitVector
	maxDoc        int
	skipInterval  int
	maxSkipLevels int

	df    int
	count int
	doc   int
	freq  int
	err   error

	freqBase    int64
	proxBase    int64
	skipPointer int64
	skipped     bool
	skipper     *skipListReader

	withPositions bool
	// positions of the current document that were not read yet
	proxCount int
	position  int
	// the prox stream is only positioned when positions are actually requested
	lazyProxPointer int64
	lazyProxCount   int
}

func newSegmentPostings(r *SegmentReader, withPositions bool) *segmentPostings {
	p := &segmentPostings{
		file:            segmentFileName(r.name, "frq"),
		freqIn:          r.freqIn.Clone(),
		deleted:         r.deletedDocs(),
		maxDoc:          r.MaxDoc(),
		skipInterval:    r.terms.skipInterval,
		maxSkipLevels:   r.terms.maxSkipLevels,
		withPositions:   withPositions,
		lazyProxPointer: -1,
	}
	if withPositions {
		p.proxIn = r.proxIn.Clone()
	}
	return p
}

// seek resets the cursor to the posting list described by ti.
func (p *segmentPostings) seek(ti TermInfo) {
	p.df = ti.DocFreq
	p.count = 0
	p.doc = 0
	p.freq = 0
	p.err = nil
	p.skipped = false
	p.freqBase = ti.FreqPointer
	p.proxBase = ti.ProxPointer
	p.skipPointer = ti.FreqPointer + ti.SkipOffset
	p.proxCount = 0
	p.position = 0
	p.lazyProxPointer = ti.ProxPointer
	p.lazyProxCount = 0
	if p.df > 0 {
		p.err = p.freqIn.Seek(ti.FreqPointer)
	}
}

func (p *segmentPostings) readDoc() bool {
	code, err := p.freqIn.ReadVIntAsInt()
	if err != nil {
		p.err = errors.Wrapf(err, "failed to read postings from %v", p.file)
		return false
	}
	delta := code >> 1
	if delta == 0 && p.count > 0 {
		p.err = corruptf(p.file, "doc %d repeated in posting list", p.doc)
		return false
	}
	p.doc += delta
	if code&1 != 0 {
		p.freq = 1
	} else {
		p.freq, err = p.freqIn.ReadVIntAsInt()
		if err != nil {
			p.err = errors.Wrapf(err, "failed to read postings from %v", p.file)
			return false
		}
		if p.freq == 0 {
			p.err = corruptf(p.file, "zero frequency of doc %d", p.doc)
			return false
		}
	}
	if p.doc >= p.maxDoc {
		p.err = corruptf(p.file, "doc %d is out of range", p.doc)
		return false
	}
	p.count++
	return true
}

func (p *segmentPostings) Next() bool {
	if p.err != nil {
		return false
	}
	p.lazyProxCount += p.proxCount
	p.proxCount = 0
	for {
		if p.count >= p.df {
			p.doc = NoMoreDocs
			p.freq = 0
			return false
		}
		if !p.readDoc() {
			return false
		}
		if p.deleted == nil || !p.deleted.Get(p.doc) {
			break
		}
		p.lazyProxCount += p.freq
	}
	p.proxCount = p.freq
	p.position = 0
	return true
}

func (p *segmentPostings) SkipTo(target int) bool {
	if p.err != nil || p.doc == NoMoreDocs {
		return false
	}
	if p.df >= p.skipInterval {
		if p.skipper == nil {
			p.skipper = newSkipListReader(p.file, p.freqIn, p.skipInterval, p.maxSkipLevels)
		}
		if !p.skipped {
			p.skipper.init(p.skipPointer, p.freqBase, p.proxBase, p.df)
			p.skipped = true
		}
		newCount, err := p.skipper.skipTo(target)
		if err != nil {
			p.err = errors.Wrapf(err, "failed to read skip list from %v", p.file)
			return false
		}
		if newCount > p.count {
			p.err = p.freqIn.Seek(p.skipper.lastFreqPointer)
			if p.err != nil {
				return false
			}
			p.lazyProxPointer = p.skipper.lastProxPointer
			p.lazyProxCount = 0
			p.proxCount = 0
			p.doc = p.skipper.lastDoc
			p.count = newCount
		}
	}
	for {
		if !p.Next() {
			return false
		}
		if p.doc >= target {
			return true
		}
	}
}

func (p *segmentPostings) Doc() int {
	return p.doc
}

func (p *segmentPostings) Freq() int {
	return p.freq
}

func (p *segmentPostings) lazySkip() error {
	if p.lazyProxPointer >= 0 {
		err := p.proxIn.Seek(p.lazyProxPointer)
		if err != nil {
			return err
		}
		p.lazyProxPointer = -1
	}
	for ; p.lazyProxCount > 0; p.lazyProxCount-- {
		_, err := p.proxIn.ReadVInt()
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *segmentPostings) NextPosition() int {
	if !p.withPositions || p.proxCount <= 0 || p.err != nil {
		return -1
	}
	err := p.lazySkip()
	if err == nil {
		var delta int
		delta, err = p.proxIn.ReadVIntAsInt()
		if err == nil {
			p.proxCount--
			p.position += delta
			return p.position
		}
	}
	p.err = errors.Wrapf(err, "failed to read positions of doc %d from %v", p.doc, segmentFileName(fileSegment(p.file), "prx"))
	p.proxCount = 0
	return -1
}

func (p *segmentPostings) Err() error {
	return p.err
}

func (p *segmentPostings) Close() error {
	return nil
}
