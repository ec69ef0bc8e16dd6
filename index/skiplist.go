// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package index

import (
	"math"

	"github.com/acoustid/go-textindex/util/intcompress"
	"github.com/acoustid/go-textindex/util/vfs"
)

// numSkipLevels returns the number of skip levels stored for a posting list of df documents.
// Level i has entries only if df >= interval^(i+1).
func numSkipLevels(df, interval, maxLevels int) int {
	n := 0
	for x := df; x >= interval && n < maxLevels; x /= interval {
		n++
	}
	return n
}

// skipListWriter buffers multi-level skip data for one posting list.
//
// An entry on level 0 is recorded every interval documents, an entry on level i every
// interval^(i+1) documents. Each entry holds the doc id and the file pointers at that
// point, entries above level 0 also point to the following entry of the level below.
type skipListWriter struct {
	interval  int
	maxLevels int
	levels    [][]byte

	lastDoc         []int
	lastFreqPointer []int64
	lastProxPointer []int64

	curDoc         int
	curFreqPointer int64
	curProxPointer int64
}

func newSkipListWriter(interval, maxLevels int) *skipListWriter {
	return &skipListWriter{
		interval:        interval,
		maxLevels:       maxLevels,
		levels:          make([][]byte, maxLevels),
		lastDoc:         make([]int, maxLevels),
		lastFreqPointer: make([]int64, maxLevels),
		lastProxPointer: make([]int64, maxLevels),
	}
}

// reset prepares the writer for a new posting list starting at the given file pointers.
func (w *skipListWriter) reset(freqPointer, proxPointer int64) {
	for i := range w.levels {
		w.levels[i] = w.levels[i][:0]
		w.lastDoc[i] = 0
		w.lastFreqPointer[i] = freqPointer
		w.lastProxPointer[i] = proxPointer
	}
}

// setSkipData sets the state of the posting list before the current document.
func (w *skipListWriter) setSkipData(doc int, freqPointer, proxPointer int64) {
	w.curDoc = doc
	w.curFreqPointer = freqPointer
	w.curProxPointer = proxPointer
}

// bufferSkip records an entry. df is the number of documents including the current one.
func (w *skipListWriter) bufferSkip(df int) {
	numLevels := 0
	for ; df%w.interval == 0 && numLevels < w.maxLevels; df /= w.interval {
		numLevels++
	}

	var childPointer int
	for level := 0; level < numLevels; level++ {
		buf := w.levels[level]
		buf = intcompress.AppendUvarint32(buf, uint32(w.curDoc-w.lastDoc[level]))
		buf = intcompress.AppendUvarint64(buf, uint64(w.curFreqPointer-w.lastFreqPointer[level]))
		buf = intcompress.AppendUvarint64(buf, uint64(w.curProxPointer-w.lastProxPointer[level]))
		w.lastDoc[level] = w.curDoc
		w.lastFreqPointer[level] = w.curFreqPointer
		w.lastProxPointer[level] = w.curProxPointer

		newChildPointer := len(buf)
		if level != 0 {
			buf = intcompress.AppendUvarint64(buf, uint64(childPointer))
		}
		childPointer = newChildPointer
		w.levels[level] = buf
	}
}

// writeTo appends the skip data to out and returns the pointer to its start.
// The levels are written from the highest down, each prefixed with its length except level 0.
func (w *skipListWriter) writeTo(out *vfs.Output) (int64, error) {
	start := out.Position()
	for level := w.maxLevels - 1; level > 0; level-- {
		if len(w.levels[level]) > 0 {
			out.WriteVLong(uint64(len(w.levels[level])))
			out.WriteBytes(w.levels[level])
		}
	}
	out.WriteBytes(w.levels[0])
	return start, out.Err()
}

// skipListReader walks the skip data of one posting list.
type skipListReader struct {
	file      string
	interval  int
	maxLevels int
	numLevels int
	docCount  int
	loaded    bool

	base        *vfs.Input
	streams     []*vfs.Input
	skipPointer []int64
	skipDoc     []int
	numSkipped  []int
	childPtr    []int64
	freqPointer []int64
	proxPointer []int64

	lastDoc         int
	lastChildPtr    int64
	lastFreqPointer int64
	lastProxPointer int64
}

func newSkipListReader(file string, in *vfs.Input, interval, maxLevels int) *skipListReader {
	return &skipListReader{
		file:        file,
		interval:    interval,
		maxLevels:   maxLevels,
		base:        in,
		streams:     make([]*vfs.Input, maxLevels),
		skipPointer: make([]int64, maxLevels),
		skipDoc:     make([]int, maxLevels),
		numSkipped:  make([]int, maxLevels),
		childPtr:    make([]int64, maxLevels),
		freqPointer: make([]int64, maxLevels),
		proxPointer: make([]int64, maxLevels),
	}
}

func (r *skipListReader) init(skipPointer, freqBase, proxBase int64, df int) {
	r.skipPointer[0] = skipPointer
	r.docCount = df
	r.loaded = false
	for i := 0; i < r.maxLevels; i++ {
		r.skipDoc[i] = 0
		r.numSkipped[i] = 0
		r.childPtr[i] = 0
		r.freqPointer[i] = freqBase
		r.proxPointer[i] = proxBase
	}
	r.lastDoc = 0
	r.lastChildPtr = 0
	r.lastFreqPointer = freqBase
	r.lastProxPointer = proxBase
}

func (r *skipListReader) load() error {
	r.numLevels = numSkipLevels(r.docCount, r.interval, r.maxLevels)
	if r.streams[0] == nil {
		r.streams[0] = r.base.Clone()
	}
	in := r.streams[0]
	err := in.Seek(r.skipPointer[0])
	if err != nil {
		return err
	}
	for i := r.numLevels - 1; i > 0; i-- {
		length, err := in.ReadVLong()
		if err != nil {
			return err
		}
		r.skipPointer[i] = in.Position()
		if r.streams[i] == nil {
			r.streams[i] = in.Clone()
		} else {
			err = r.streams[i].Seek(r.skipPointer[i])
			if err != nil {
				return err
			}
		}
		if length > uint64(in.Length()-in.Position()) {
			return corruptf(r.file, "skip level %d is past the end of file", i)
		}
		err = in.Seek(in.Position() + int64(length))
		if err != nil {
			return err
		}
	}
	r.skipPointer[0] = in.Position()
	return nil
}

// skipTo moves to the last skip entry with a doc id below target.
// It returns the number of documents preceding that point in the posting list.
func (r *skipListReader) skipTo(target int) (int, error) {
	if !r.loaded {
		err := r.load()
		if err != nil {
			return 0, err
		}
		r.loaded = true
	}

	level := 0
	for level < r.numLevels-1 && target > r.skipDoc[level+1] {
		level++
	}

	for level >= 0 {
		if target > r.skipDoc[level] {
			ok, err := r.loadNextSkip(level)
			if err != nil {
				return 0, err
			}
			if ok {
				continue
			}
		}
		if level > 0 && r.lastChildPtr > r.streams[level-1].Position() {
			err := r.seekChild(level - 1)
			if err != nil {
				return 0, err
			}
		}
		level--
	}
	return r.numSkipped[0] - r.interval - 1, nil
}

func (r *skipListReader) loadNextSkip(level int) (bool, error) {
	r.lastDoc = r.skipDoc[level]
	r.lastChildPtr = r.childPtr[level]
	r.lastFreqPointer = r.freqPointer[level]
	r.lastProxPointer = r.proxPointer[level]

	r.numSkipped[level] += pow(r.interval, level+1)
	if r.numSkipped[level] > r.docCount {
		// this level is exhausted
		r.skipDoc[level] = math.MaxInt32
		if r.numLevels > level {
			r.numLevels = level
		}
		return false, nil
	}

	in := r.streams[level]
	docDelta, err := in.ReadVIntAsInt()
	if err != nil {
		return false, err
	}
	freqDelta, err := in.ReadVLong()
	if err != nil {
		return false, err
	}
	proxDelta, err := in.ReadVLong()
	if err != nil {
		return false, err
	}
	r.skipDoc[level] += docDelta
	r.freqPointer[level] += int64(freqDelta)
	r.proxPointer[level] += int64(proxDelta)
	if level != 0 {
		child, err := in.ReadVLong()
		if err != nil {
			return false, err
		}
		r.childPtr[level] = int64(child) + r.skipPointer[level-1]
	}
	return true, nil
}

func (r *skipListReader) seekChild(level int) error {
	in := r.streams[level]
	err := in.Seek(r.lastChildPtr)
	if err != nil {
		return err
	}
	r.numSkipped[level] = r.numSkipped[level+1] - pow(r.interval, level+2)
	r.skipDoc[level] = r.lastDoc
	r.freqPointer[level] = r.lastFreqPointer
	r.proxPointer[level] = r.lastProxPointer
	if level > 0 {
		child, err := in.ReadVLong()
		if err != nil {
			return err
		}
		r.childPtr[level] = int64(child) + r.skipPointer[level-1]
	}
	return nil
}

func pow(x, n int) int {
	r := 1
	for i := 0; i < n; i++ {
		r *= x
	}
	return r
}
