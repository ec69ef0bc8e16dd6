// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package index

import (
	"github.com/acoustid/go-textindex/util/vfs"
	"github.com/pkg/errors"
)

const termVectorWithPositions = 0x1

// TermVector lists the terms of one field of one document in term order.
type TermVector struct {
	Field string
	Terms []string
	Freqs []int
	// Positions is nil unless the field stores positions.
	Positions [][]int
}

// IndexOf returns the index of a term in the vector, or -1.
func (tv *TermVector) IndexOf(text string) int {
	lo, hi := 0, len(tv.Terms)
	for lo < hi {
		mid := (lo + hi) / 2
		if tv.Terms[mid] < text {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(tv.Terms) && tv.Terms[lo] == text {
		return lo
	}
	return -1
}

type termVectorsWriter struct {
	fieldInfos *FieldInfos
	indexOut   *vfs.Output
	dataOut    *vfs.Output
}

func newTermVectorsWriter(fs vfs.FileSystem, segment string, fis *FieldInfos) (*termVectorsWriter, error) {
	indexOut, err := vfs.CreateOutput(fs, segmentFileName(segment, "tvx"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create term vector index")
	}
	dataOut, err := vfs.CreateOutput(fs, segmentFileName(segment, "tvf"))
	if err != nil {
		indexOut.Close()
		return nil, errors.Wrap(err, "failed to create term vector data")
	}
	return &termVectorsWriter{fieldInfos: fis, indexOut: indexOut, dataOut: dataOut}, nil
}

func (w *termVectorsWriter) addDocument(vectors []*TermVector) error {
	w.indexOut.WriteUint64(uint64(w.dataOut.Position()))
	w.dataOut.WriteVInt(uint32(len(vectors)))
	for _, tv := range vectors {
		num := w.fieldInfos.Number(tv.Field)
		if num < 0 {
			return errors.Errorf("unknown term vector field %q", tv.Field)
		}
		var flags byte
		if tv.Positions != nil {
			flags |= termVectorWithPositions
		}
		w.dataOut.WriteVInt(uint32(num))
		w.dataOut.WriteByte(flags)
		w.dataOut.WriteVInt(uint32(len(tv.Terms)))
		var last []byte
		for i, term := range tv.Terms {
			text := []byte(term)
			prefix := commonPrefix(last, text)
			w.dataOut.WriteVInt(uint32(prefix))
			w.dataOut.WriteVInt(uint32(len(text) - prefix))
			w.dataOut.WriteBytes(text[prefix:])
			w.dataOut.WriteVInt(uint32(tv.Freqs[i]))
			if tv.Positions != nil {
				lastPos := 0
				for _, pos := range tv.Positions[i] {
					w.dataOut.WriteVInt(uint32(pos - lastPos))
					lastPos = pos
				}
			}
			last = text
		}
	}
	return w.dataOut.Err()
}

func (w *termVectorsWriter) Commit() error {
	err := w.indexOut.Commit()
	if err != nil {
		return errors.Wrap(err, "failed to write term vector index")
	}
	err = w.dataOut.Commit()
	if err != nil {
		return errors.Wrap(err, "failed to write term vector data")
	}
	return nil
}

func (w *termVectorsWriter) Close() error {
	w.indexOut.Close()
	return w.dataOut.Close()
}

type termVectorsReader struct {
	file       string
	fieldInfos *FieldInfos
	indexIn    *vfs.Input
	dataIn     *vfs.Input
	size       int
}

func openTermVectorsReader(fs vfs.FileSystem, segment string, fis *FieldInfos, docCount int) (*termVectorsReader, error) {
	r := &termVectorsReader{file: segmentFileName(segment, "tvf"), fieldInfos: fis}
	var err error
	r.indexIn, err = vfs.OpenInput(fs, segmentFileName(segment, "tvx"))
	if err != nil {
		return nil, err
	}
	r.dataIn, err = vfs.OpenInput(fs, r.file)
	if err != nil {
		r.indexIn.Close()
		return nil, err
	}
	r.size = int(r.indexIn.Length() / 8)
	if r.indexIn.Length()%8 != 0 || r.size != docCount {
		r.Close()
		return nil, corruptf(segmentFileName(segment, "tvx"), "expected %d documents, found %d", docCount, r.size)
	}
	return r, nil
}

// vectors returns all term vectors of a document.
func (r *termVectorsReader) vectors(n int) ([]*TermVector, error) {
	if n < 0 || n >= r.size {
		return nil, errors.Wrapf(ErrInvalidDocID, "doc %d", n)
	}
	indexIn := r.indexIn.Clone()
	err := indexIn.Seek(int64(n) * 8)
	if err != nil {
		return nil, err
	}
	pointer, err := indexIn.ReadUint64()
	if err != nil {
		return nil, err
	}
	in := r.dataIn.Clone()
	err = in.Seek(int64(pointer))
	if err != nil {
		return nil, corruptf(r.file, "invalid pointer of doc %d", n)
	}
	numFields, err := in.ReadVIntAsInt()
	if err != nil {
		return nil, err
	}
	vectors := make([]*TermVector, 0, numFields)
	for i := 0; i < numFields; i++ {
		tv, err := r.readVector(in)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read term vectors of doc %d", n)
		}
		vectors = append(vectors, tv)
	}
	return vectors, nil
}

func (r *termVectorsReader) readVector(in *vfs.Input) (*TermVector, error) {
	num, err := in.ReadVIntAsInt()
	if err != nil {
		return nil, err
	}
	fi := r.fieldInfos.ByNumber(num)
	if fi == nil {
		return nil, corruptf(r.file, "invalid field number %d", num)
	}
	flags, err := in.ReadByte()
	if err != nil {
		return nil, err
	}
	numTerms, err := in.ReadVIntAsInt()
	if err != nil {
		return nil, err
	}
	if int64(numTerms) > in.Length() {
		return nil, corruptf(r.file, "too many terms")
	}
	tv := &TermVector{Field: fi.Name, Terms: make([]string, numTerms), Freqs: make([]int, numTerms)}
	if flags&termVectorWithPositions != 0 {
		tv.Positions = make([][]int, numTerms)
	}
	var last []byte
	for i := 0; i < numTerms; i++ {
		prefix, err := in.ReadVIntAsInt()
		if err != nil {
			return nil, err
		}
		suffix, err := in.ReadVIntAsInt()
		if err != nil {
			return nil, err
		}
		if prefix > len(last) || int64(suffix) > in.Length()-in.Position() {
			return nil, corruptf(r.file, "invalid term")
		}
		text := make([]byte, prefix+suffix)
		copy(text, last[:prefix])
		err = in.ReadFull(text[prefix:])
		if err != nil {
			return nil, err
		}
		freq, err := in.ReadVIntAsInt()
		if err != nil {
			return nil, err
		}
		tv.Terms[i] = string(text)
		tv.Freqs[i] = freq
		if tv.Positions != nil {
			if int64(freq) > in.Length()-in.Position() {
				return nil, corruptf(r.file, "invalid term frequency")
			}
			positions := make([]int, freq)
			pos := 0
			for j := range positions {
				delta, err := in.ReadVIntAsInt()
				if err != nil {
					return nil, err
				}
				pos += delta
				positions[j] = pos
			}
			tv.Positions[i] = positions
		}
		last = text
	}
	return tv, nil
}

func (r *termVectorsReader) Close() error {
	r.indexIn.Close()
	return r.dataIn.Close()
}
