// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package index

import (
	"sort"

	"github.com/acoustid/go-textindex/util/vfs"
	"github.com/pkg/errors"
)

const (
	tisMagic        = 0x54495331
	tiiMagic        = 0x54494931
	termDictVersion = 1
	termDictTrailer = 12
)

// termInfosWriter writes the term dictionary (.tis) and its sampled index (.tii).
// Entries are delta-coded against the previous entry of the same file.
type termInfosWriter struct {
	fileName      string
	fieldInfos    *FieldInfos
	out           *vfs.Output
	indexOut      *vfs.Output
	indexInterval int
	skipInterval  int

	size     int64
	lastTerm Term
	lastText []byte
	lastInfo TermInfo

	indexSize        int64
	lastIndexText    []byte
	lastIndexInfo    TermInfo
	lastIndexPointer int64
}

func newTermInfosWriter(fs vfs.FileSystem, segment string, fis *FieldInfos, indexInterval, skipInterval, maxSkipLevels int) (*termInfosWriter, error) {
	w := &termInfosWriter{
		fileName:      segmentFileName(segment, "tis"),
		fieldInfos:    fis,
		indexInterval: indexInterval,
		skipInterval:  skipInterval,
	}
	var err error
	w.out, err = vfs.CreateOutput(fs, w.fileName)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create term dictionary")
	}
	w.indexOut, err = vfs.CreateOutput(fs, segmentFileName(segment, "tii"))
	if err != nil {
		w.out.Close()
		return nil, errors.Wrap(err, "failed to create term index")
	}

	w.out.WriteUint32(tisMagic)
	w.out.WriteUint32(termDictVersion)
	w.out.WriteVInt(uint32(indexInterval))
	w.out.WriteVInt(uint32(skipInterval))
	w.out.WriteVInt(uint32(maxSkipLevels))
	w.lastIndexPointer = w.out.Position()

	w.indexOut.WriteUint32(tiiMagic)
	w.indexOut.WriteUint32(termDictVersion)
	w.indexOut.WriteVInt(uint32(indexInterval))
	return w, nil
}

func (w *termInfosWriter) writeEntry(out *vfs.Output, lastText, text []byte, fieldNum int, ti, last TermInfo) {
	prefix := commonPrefix(lastText, text)
	out.WriteVInt(uint32(prefix))
	out.WriteVInt(uint32(len(text) - prefix))
	out.WriteBytes(text[prefix:])
	out.WriteVInt(uint32(fieldNum))
	out.WriteVInt(uint32(ti.DocFreq))
	out.WriteVLong(uint64(ti.FreqPointer - last.FreqPointer))
	out.WriteVLong(uint64(ti.ProxPointer - last.ProxPointer))
	if ti.DocFreq >= w.skipInterval {
		out.WriteVLong(uint64(ti.SkipOffset))
	}
}

// Add appends a term. Terms must be added in increasing order and the pointers must not decrease.
func (w *termInfosWriter) Add(term Term, ti TermInfo) error {
	if w.size > 0 && term.Compare(w.lastTerm) <= 0 {
		return errors.Wrapf(ErrTermsOutOfOrder, "%v after %v", term, w.lastTerm)
	}
	if ti.FreqPointer < w.lastInfo.FreqPointer || ti.ProxPointer < w.lastInfo.ProxPointer {
		return errors.Errorf("term %v has decreasing file pointers", term)
	}
	fieldNum := w.fieldInfos.Number(term.Field)
	if fieldNum < 0 {
		return errors.Errorf("term %v has an unknown field", term)
	}

	text := []byte(term.Text)
	w.writeEntry(w.out, w.lastText, text, fieldNum, ti, w.lastInfo)
	w.size++
	w.lastTerm = term
	w.lastText = text
	w.lastInfo = ti

	if w.size%int64(w.indexInterval) == 0 {
		w.writeEntry(w.indexOut, w.lastIndexText, text, fieldNum, ti, w.lastIndexInfo)
		pointer := w.out.Position()
		w.indexOut.WriteVLong(uint64(pointer - w.lastIndexPointer))
		w.indexSize++
		w.lastIndexText = text
		w.lastIndexInfo = ti
		w.lastIndexPointer = pointer
	}
	return w.out.Err()
}

// Commit writes the trailers and makes both files visible.
func (w *termInfosWriter) Commit() error {
	w.out.WriteUint64(uint64(w.size))
	w.out.WriteUint32(tisMagic)
	w.indexOut.WriteUint64(uint64(w.indexSize))
	w.indexOut.WriteUint32(tiiMagic)
	err := w.out.Commit()
	if err != nil {
		return errors.Wrapf(err, "failed to write %v", w.fileName)
	}
	err = w.indexOut.Commit()
	if err != nil {
		return errors.Wrapf(err, "failed to write term index of %v", w.fileName)
	}
	return nil
}

func (w *termInfosWriter) Close() error {
	w.indexOut.Close()
	return w.out.Close()
}

// termEntryDecoder holds the state needed to decode delta-coded dictionary entries.
type termEntryDecoder struct {
	file         string
	fieldInfos   *FieldInfos
	skipInterval int
	text         []byte
	term         Term
	info         TermInfo
}

func (d *termEntryDecoder) decode(in *vfs.Input) error {
	prefix, err := in.ReadVIntAsInt()
	if err != nil {
		return err
	}
	suffix, err := in.ReadVIntAsInt()
	if err != nil {
		return err
	}
	if prefix > len(d.text) {
		return corruptf(d.file, "term prefix %d is longer than the previous term", prefix)
	}
	if int64(suffix) > in.Length()-in.Position() {
		return corruptf(d.file, "term suffix of %d bytes is past the end of file", suffix)
	}
	text := make([]byte, prefix+suffix)
	copy(text, d.text[:prefix])
	err = in.ReadFull(text[prefix:])
	if err != nil {
		return err
	}
	fieldNum, err := in.ReadVIntAsInt()
	if err != nil {
		return err
	}
	fi := d.fieldInfos.ByNumber(fieldNum)
	if fi == nil {
		return corruptf(d.file, "invalid field number %d", fieldNum)
	}
	docFreq, err := in.ReadVIntAsInt()
	if err != nil {
		return err
	}
	freqDelta, err := in.ReadVLong()
	if err != nil {
		return err
	}
	proxDelta, err := in.ReadVLong()
	if err != nil {
		return err
	}
	var skipOffset uint64
	if docFreq >= d.skipInterval {
		skipOffset, err = in.ReadVLong()
		if err != nil {
			return err
		}
	}
	d.text = text
	d.term = Term{Field: fi.Name, Text: string(text)}
	d.info = TermInfo{
		DocFreq:     docFreq,
		FreqPointer: d.info.FreqPointer + int64(freqDelta),
		ProxPointer: d.info.ProxPointer + int64(proxDelta),
		SkipOffset:  int64(skipOffset),
	}
	return nil
}

// termInfosReader looks up terms in a segment's dictionary.
// It is safe for concurrent use, every lookup works on its own cursor.
type termInfosReader struct {
	file          string
	fieldInfos    *FieldInfos
	in            *vfs.Input
	size          int64
	dataStart     int64
	dataEnd       int64
	indexInterval int
	skipInterval  int
	maxSkipLevels int

	indexTerms    []Term
	indexInfos    []TermInfo
	indexTexts    [][]byte
	indexPointers []int64
}

func readTermDictHeader(in *vfs.Input, file string, magic uint32) error {
	m, err := in.ReadUint32()
	if err != nil {
		return err
	}
	if m != magic {
		return corruptf(file, "invalid magic 0x%08x", m)
	}
	version, err := in.ReadUint32()
	if err != nil {
		return err
	}
	if version != termDictVersion {
		return corruptf(file, "unsupported version %d", version)
	}
	return nil
}

func readTermDictTrailer(in *vfs.Input, file string, magic uint32) (int64, error) {
	if in.Length() < termDictTrailer {
		return 0, corruptf(file, "file is too short")
	}
	pos := in.Position()
	err := in.Seek(in.Length() - termDictTrailer)
	if err != nil {
		return 0, err
	}
	size, err := in.ReadUint64()
	if err != nil {
		return 0, err
	}
	m, err := in.ReadUint32()
	if err != nil {
		return 0, err
	}
	if m != magic {
		return 0, corruptf(file, "invalid trailer")
	}
	return int64(size), in.Seek(pos)
}

func openTermInfosReader(fs vfs.FileSystem, segment string, fis *FieldInfos) (*termInfosReader, error) {
	r := &termInfosReader{file: segmentFileName(segment, "tis"), fieldInfos: fis}
	in, err := vfs.OpenInput(fs, r.file)
	if err != nil {
		return nil, err
	}
	r.in = in
	err = r.readHeader()
	if err != nil {
		in.Close()
		return nil, errors.Wrapf(err, "failed to read %v", r.file)
	}
	err = r.loadIndex(fs, segmentFileName(segment, "tii"))
	if err != nil {
		in.Close()
		return nil, errors.Wrapf(err, "failed to read term index of %v", r.file)
	}
	return r, nil
}

func (r *termInfosReader) readHeader() error {
	err := readTermDictHeader(r.in, r.file, tisMagic)
	if err != nil {
		return err
	}
	indexInterval, err := r.in.ReadVIntAsInt()
	if err != nil {
		return err
	}
	skipInterval, err := r.in.ReadVIntAsInt()
	if err != nil {
		return err
	}
	maxSkipLevels, err := r.in.ReadVIntAsInt()
	if err != nil {
		return err
	}
	if indexInterval < 1 || skipInterval < 2 || maxSkipLevels < 1 {
		return corruptf(r.file, "invalid header")
	}
	r.indexInterval, r.skipInterval, r.maxSkipLevels = indexInterval, skipInterval, maxSkipLevels
	r.dataStart = r.in.Position()
	r.size, err = readTermDictTrailer(r.in, r.file, tisMagic)
	if err != nil {
		return err
	}
	r.dataEnd = r.in.Length() - termDictTrailer
	if r.dataEnd < r.dataStart {
		return corruptf(r.file, "file is too short")
	}
	return nil
}

func (r *termInfosReader) loadIndex(fs vfs.FileSystem, name string) error {
	in, err := vfs.OpenInput(fs, name)
	if err != nil {
		return err
	}
	defer in.Close()
	err = readTermDictHeader(in, name, tiiMagic)
	if err != nil {
		return err
	}
	indexInterval, err := in.ReadVIntAsInt()
	if err != nil {
		return err
	}
	if indexInterval != r.indexInterval {
		return corruptf(name, "index interval %d does not match the dictionary", indexInterval)
	}
	size, err := readTermDictTrailer(in, name, tiiMagic)
	if err != nil {
		return err
	}
	if size > r.size/int64(r.indexInterval) {
		return corruptf(name, "too many index entries")
	}

	// entry 0 points to the start of the dictionary
	r.indexTerms = make([]Term, 1, size+1)
	r.indexInfos = make([]TermInfo, 1, size+1)
	r.indexTexts = make([][]byte, 1, size+1)
	r.indexPointers = make([]int64, 1, size+1)
	r.indexPointers[0] = r.dataStart

	d := &termEntryDecoder{file: name, fieldInfos: r.fieldInfos, skipInterval: r.skipInterval}
	pointer := r.dataStart
	for i := int64(0); i < size; i++ {
		err = d.decode(in)
		if err != nil {
			return err
		}
		delta, err := in.ReadVLong()
		if err != nil {
			return err
		}
		pointer += int64(delta)
		if pointer > r.dataEnd {
			return corruptf(name, "pointer past the end of the dictionary")
		}
		r.indexTerms = append(r.indexTerms, d.term)
		r.indexInfos = append(r.indexInfos, d.info)
		r.indexTexts = append(r.indexTexts, d.text)
		r.indexPointers = append(r.indexPointers, pointer)
	}
	return nil
}

func (r *termInfosReader) Close() error {
	return r.in.Close()
}

// Size returns the number of terms in the dictionary.
func (r *termInfosReader) Size() int64 {
	return r.size
}

// enum returns a cursor positioned before the first term.
func (r *termInfosReader) enum() *segmentTermEnum {
	e := &segmentTermEnum{
		reader:   r,
		in:       r.in.Clone(),
		position: -1,
		decoder:  termEntryDecoder{file: r.file, fieldInfos: r.fieldInfos, skipInterval: r.skipInterval},
	}
	e.seekIndex(0)
	return e
}

// indexOffset returns the last index entry with a term <= t.
func (r *termInfosReader) indexOffset(t Term) int {
	// entry 0 is the empty start, it sorts before all terms
	i := sort.Search(len(r.indexTerms)-1, func(i int) bool { return r.indexTerms[i+1].Compare(t) > 0 })
	return i
}

// seek returns a cursor at the first term >= t. The cursor's Next returns that term first.
func (r *termInfosReader) seek(t Term) (*segmentTermEnum, error) {
	e := r.enum()
	e.seekIndex(r.indexOffset(t))
	for e.Next() {
		if e.term.Compare(t) >= 0 {
			e.pending = true
			return e, nil
		}
	}
	return e, e.Err()
}

// Get returns the TermInfo of t.
func (r *termInfosReader) Get(t Term) (TermInfo, bool, error) {
	if r.size == 0 {
		return TermInfo{}, false, nil
	}
	e, err := r.seek(t)
	if err != nil {
		return TermInfo{}, false, err
	}
	if !e.pending || e.term != t {
		return TermInfo{}, false, nil
	}
	return e.info, true, nil
}

// segmentTermEnum iterates over the terms of one segment in order.
type segmentTermEnum struct {
	reader   *termInfosReader
	in       *vfs.Input
	position int64
	decoder  termEntryDecoder
	term     Term
	info     TermInfo
	pending  bool
	done     bool
	err      error
}

func (e *segmentTermEnum) seekIndex(i int) {
	r := e.reader
	e.err = e.in.Seek(r.indexPointers[i])
	e.position = int64(i)*int64(r.indexInterval) - 1
	e.decoder.text = r.indexTexts[i]
	e.decoder.term = r.indexTerms[i]
	e.decoder.info = r.indexInfos[i]
	e.term = Term{}
	e.info = TermInfo{}
	e.pending = false
	e.done = false
}

func (e *segmentTermEnum) Next() bool {
	if e.pending {
		e.pending = false
		return true
	}
	if e.err != nil || e.done {
		return false
	}
	if e.position+1 >= e.reader.size {
		e.done = true
		e.term = Term{}
		return false
	}
	err := e.decoder.decode(e.in)
	if err != nil {
		e.err = errors.Wrapf(err, "failed to read term %d from %v", e.position+1, e.reader.file)
		return false
	}
	if e.in.Position() > e.reader.dataEnd {
		e.err = corruptf(e.reader.file, "term %d is past the end of the dictionary", e.position+1)
		return false
	}
	e.position++
	e.term = e.decoder.term
	e.info = e.decoder.info
	return true
}

func (e *segmentTermEnum) Term() Term {
	return e.term
}

func (e *segmentTermEnum) DocFreq() int {
	return e.info.DocFreq
}

func (e *segmentTermEnum) TermInfo() TermInfo {
	return e.info
}

func (e *segmentTermEnum) Err() error {
	return e.err
}

func (e *segmentTermEnum) Close() error {
	return nil
}
