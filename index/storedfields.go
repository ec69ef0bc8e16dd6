// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package index

import (
	"github.com/acoustid/go-textindex/document"
	"github.com/acoustid/go-textindex/util/vfs"
	"github.com/pkg/errors"
)

const storedFieldTokenized = 0x1

// storedField is a stored value as it is kept in the .fdt file.
type storedField struct {
	Name      string
	Value     string
	Tokenized bool
}

// storedFieldsWriter writes the .fdx index of per-document pointers and the .fdt data.
type storedFieldsWriter struct {
	fieldInfos *FieldInfos
	indexOut   *vfs.Output
	dataOut    *vfs.Output
}

func newStoredFieldsWriter(fs vfs.FileSystem, segment string, fis *FieldInfos) (*storedFieldsWriter, error) {
	indexOut, err := vfs.CreateOutput(fs, segmentFileName(segment, "fdx"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create stored fields index")
	}
	dataOut, err := vfs.CreateOutput(fs, segmentFileName(segment, "fdt"))
	if err != nil {
		indexOut.Close()
		return nil, errors.Wrap(err, "failed to create stored fields data")
	}
	return &storedFieldsWriter{fieldInfos: fis, indexOut: indexOut, dataOut: dataOut}, nil
}

func storedFieldsOf(doc *document.Document) []storedField {
	var fields []storedField
	for _, f := range doc.Fields {
		if f.Stored {
			fields = append(fields, storedField{Name: f.Name, Value: f.Value, Tokenized: f.Tokenized})
		}
	}
	return fields
}

func (w *storedFieldsWriter) addDocument(fields []storedField) error {
	w.indexOut.WriteUint64(uint64(w.dataOut.Position()))
	w.dataOut.WriteVInt(uint32(len(fields)))
	for _, f := range fields {
		num := w.fieldInfos.Number(f.Name)
		if num < 0 {
			return errors.Errorf("unknown stored field %q", f.Name)
		}
		var flags byte
		if f.Tokenized {
			flags |= storedFieldTokenized
		}
		w.dataOut.WriteVInt(uint32(num))
		w.dataOut.WriteByte(flags)
		w.dataOut.WriteString(f.Value)
	}
	return w.dataOut.Err()
}

func (w *storedFieldsWriter) Commit() error {
	err := w.indexOut.Commit()
	if err != nil {
		return errors.Wrap(err, "failed to write stored fields index")
	}
	err = w.dataOut.Commit()
	if err != nil {
		return errors.Wrap(err, "failed to write stored fields data")
	}
	return nil
}

func (w *storedFieldsWriter) Close() error {
	w.indexOut.Close()
	return w.dataOut.Close()
}

type storedFieldsReader struct {
	file       string
	fieldInfos *FieldInfos
	indexIn    *vfs.Input
	dataIn     *vfs.Input
	size       int
}

func openStoredFieldsReader(fs vfs.FileSystem, segment string, fis *FieldInfos, docCount int) (*storedFieldsReader, error) {
	r := &storedFieldsReader{file: segmentFileName(segment, "fdt"), fieldInfos: fis}
	var err error
	r.indexIn, err = vfs.OpenInput(fs, segmentFileName(segment, "fdx"))
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
		return nil, corruptf(segmentFileName(segment, "fdx"), "expected %d documents, found %d", docCount, r.size)
	}
	return r, nil
}

func (r *storedFieldsReader) rawDoc(n int) ([]storedField, error) {
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
	count, err := in.ReadVIntAsInt()
	if err != nil {
		return nil, err
	}
	fields := make([]storedField, 0, count)
	for i := 0; i < count; i++ {
		num, err := in.ReadVIntAsInt()
		if err != nil {
			return nil, err
		}
		fi := r.fieldInfos.ByNumber(num)
		if fi == nil {
			return nil, corruptf(r.file, "invalid field number %d in doc %d", num, n)
		}
		flags, err := in.ReadByte()
		if err != nil {
			return nil, err
		}
		value, err := in.ReadString()
		if err != nil {
			return nil, err
		}
		fields = append(fields, storedField{Name: fi.Name, Value: value, Tokenized: flags&storedFieldTokenized != 0})
	}
	return fields, nil
}

// doc reconstructs the stored fields of a document.
func (r *storedFieldsReader) doc(n int) (*document.Document, error) {
	fields, err := r.rawDoc(n)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read stored fields of doc %d", n)
	}
	doc := document.New()
	for _, sf := range fields {
		fi := r.fieldInfos.ByName(sf.Name)
		f := &document.Field{
			Name:      sf.Name,
			Value:     sf.Value,
			Stored:    true,
			Indexed:   fi.Indexed,
			Tokenized: sf.Tokenized,
			OmitNorms: fi.OmitNorms,
			Boost:     1,
		}
		if fi.StoreTermVector {
			f.TermVector = document.TermVectorYes
			if fi.StorePositions {
				f.TermVector = document.TermVectorWithPositions
			}
		}
		doc.Add(f)
	}
	return doc, nil
}

func (r *storedFieldsReader) Close() error {
	r.indexIn.Close()
	return r.dataIn.Close()
}
