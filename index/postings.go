// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package index

import (
	"github.com/acoustid/go-textindex/util/vfs"
	"github.com/pkg/errors"
)

// postingsWriter writes the postings of a new segment: doc ids and frequencies to .frq,
// positions to .prx and the terms to the dictionary. It is used both for flushing
// buffered documents and for merging segments.
type postingsWriter struct {
	freqOut      *vfs.Output
	proxOut      *vfs.Output
	terms        *termInfosWriter
	skip         *skipListWriter
	skipInterval int

	df        int
	lastDoc   int
	freqStart int64
	proxStart int64

	numTerms int
}

func newPostingsWriter(fs vfs.FileSystem, segment string, fis *FieldInfos, opts *Options) (*postingsWriter, error) {
	terms, err := newTermInfosWriter(fs, segment, fis, opts.TermIndexInterval, opts.SkipInterval, opts.MaxSkipLevels)
	if err != nil {
		return nil, err
	}
	freqOut, err := vfs.CreateOutput(fs, segmentFileName(segment, "frq"))
	if err != nil {
		terms.Close()
		return nil, errors.Wrap(err, "failed to create frequency file")
	}
	proxOut, err := vfs.CreateOutput(fs, segmentFileName(segment, "prx"))
	if err != nil {
		terms.Close()
		freqOut.Close()
		return nil, errors.Wrap(err, "failed to create position file")
	}
	return &postingsWriter{
		freqOut:      freqOut,
		proxOut:      proxOut,
		terms:        terms,
		skip:         newSkipListWriter(opts.SkipInterval, opts.MaxSkipLevels),
		skipInterval: opts.SkipInterval,
	}, nil
}

// startTerm begins the posting list of a new term.
func (w *postingsWriter) startTerm() {
	w.df = 0
	w.lastDoc = 0
	w.freqStart = w.freqOut.Position()
	w.proxStart = w.proxOut.Position()
	w.skip.reset(w.freqStart, w.proxStart)
}

// addDoc appends one document with the positions of the term in it.
// Documents must be added in increasing order and positions must not decrease.
func (w *postingsWriter) addDoc(doc int, positions []int) error {
	if doc < 0 || (w.df > 0 && doc <= w.lastDoc) {
		return errors.Wrapf(ErrDocsOutOfOrder, "doc %d after %d", doc, w.lastDoc)
	}
	if len(positions) == 0 {
		return errors.Errorf("doc %d has no positions", doc)
	}

	w.df++
	if w.df%w.skipInterval == 0 {
		w.skip.setSkipData(w.lastDoc, w.freqOut.Position(), w.proxOut.Position())
		w.skip.bufferSkip(w.df)
	}

	docCode := uint32(doc-w.lastDoc) << 1
	if len(positions) == 1 {
		w.freqOut.WriteVInt(docCode | 1)
	} else {
		w.freqOut.WriteVInt(docCode)
		w.freqOut.WriteVInt(uint32(len(positions)))
	}
	w.lastDoc = doc

	last := 0
	for _, pos := range positions {
		if pos < last {
			return errors.Errorf("positions out of order in doc %d", doc)
		}
		w.proxOut.WriteVInt(uint32(pos - last))
		last = pos
	}
	return nil
}

// finishTerm writes the skip data and the dictionary entry. Terms without documents are not written.
func (w *postingsWriter) finishTerm(term Term) error {
	if w.df == 0 {
		return nil
	}
	ti := TermInfo{DocFreq: w.df, FreqPointer: w.freqStart, ProxPointer: w.proxStart}
	if w.df >= w.skipInterval {
		skipPointer, err := w.skip.writeTo(w.freqOut)
		if err != nil {
			return err
		}
		ti.SkipOffset = skipPointer - w.freqStart
	}
	err := w.terms.Add(term, ti)
	if err != nil {
		return err
	}
	w.numTerms++
	return nil
}

func (w *postingsWriter) Commit() error {
	err := w.freqOut.Commit()
	if err != nil {
		return errors.Wrap(err, "failed to write frequency file")
	}
	err = w.proxOut.Commit()
	if err != nil {
		return errors.Wrap(err, "failed to write position file")
	}
	return w.terms.Commit()
}

func (w *postingsWriter) Close() error {
	w.freqOut.Close()
	w.proxOut.Close()
	return w.terms.Close()
}
