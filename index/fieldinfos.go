// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package index

import (
	"github.com/acoustid/go-textindex/document"
	"github.com/acoustid/go-textindex/util/vfs"
	"github.com/pkg/errors"
)

const (
	fieldIsIndexed           = 0x1
	fieldStoreTermVector     = 0x2
	fieldStorePositionVector = 0x4
	fieldOmitNorms           = 0x10
)

// FieldInfo describes how a field is indexed within one segment.
type FieldInfo struct {
	Name            string
	Number          int
	Indexed         bool
	StoreTermVector bool
	StorePositions  bool
	OmitNorms       bool
}

// HasNorms returns true if a norms file is written for the field.
func (fi *FieldInfo) HasNorms() bool {
	return fi.Indexed && !fi.OmitNorms
}

func (fi *FieldInfo) flags() byte {
	var b byte
	if fi.Indexed {
		b |= fieldIsIndexed
	}
	if fi.StoreTermVector {
		b |= fieldStoreTermVector
	}
	if fi.StorePositions {
		b |= fieldStorePositionVector
	}
	if fi.OmitNorms {
		b |= fieldOmitNorms
	}
	return b
}

// FieldInfos is the numbered list of fields of a segment.
type FieldInfos struct {
	byNumber []*FieldInfo
	byName   map[string]*FieldInfo
}

func NewFieldInfos() *FieldInfos {
	return &FieldInfos{byName: make(map[string]*FieldInfo)}
}

// Add registers a field or merges the flags into an existing one.
func (fis *FieldInfos) Add(name string, indexed, termVector, positions, omitNorms bool) *FieldInfo {
	fi, ok := fis.byName[name]
	if !ok {
		fi = &FieldInfo{
			Name:            name,
			Number:          len(fis.byNumber),
			Indexed:         indexed,
			StoreTermVector: termVector,
			StorePositions:  positions,
			OmitNorms:       omitNorms,
		}
		fis.byNumber = append(fis.byNumber, fi)
		fis.byName[name] = fi
		return fi
	}
	fi.Indexed = fi.Indexed || indexed
	fi.StoreTermVector = fi.StoreTermVector || termVector
	fi.StorePositions = fi.StorePositions || positions
	// once a field has norms in any document, all documents get them
	if fi.OmitNorms != omitNorms {
		fi.OmitNorms = false
	}
	return fi
}

// AddField registers a document field.
func (fis *FieldInfos) AddField(f *document.Field) *FieldInfo {
	return fis.Add(f.Name, f.Indexed, f.TermVector != document.TermVectorNo,
		f.TermVector == document.TermVectorWithPositions, f.OmitNorms)
}

// AddInfos registers all fields of another segment.
func (fis *FieldInfos) AddInfos(other *FieldInfos) {
	for _, fi := range other.byNumber {
		fis.Add(fi.Name, fi.Indexed, fi.StoreTermVector, fi.StorePositions, fi.OmitNorms)
	}
}

func (fis *FieldInfos) Len() int {
	return len(fis.byNumber)
}

// ByNumber returns the field with the given number, or nil.
func (fis *FieldInfos) ByNumber(n int) *FieldInfo {
	if n < 0 || n >= len(fis.byNumber) {
		return nil
	}
	return fis.byNumber[n]
}

// ByName returns the field with the given name, or nil.
func (fis *FieldInfos) ByName(name string) *FieldInfo {
	return fis.byName[name]
}

// Number returns the number of the named field, or -1.
func (fis *FieldInfos) Number(name string) int {
	if fi, ok := fis.byName[name]; ok {
		return fi.Number
	}
	return -1
}

func (fis *FieldInfos) Fields() []*FieldInfo {
	return fis.byNumber
}

func (fis *FieldInfos) HasVectors() bool {
	for _, fi := range fis.byNumber {
		if fi.StoreTermVector {
			return true
		}
	}
	return false
}

func (fis *FieldInfos) write(fs vfs.FileSystem, name string) error {
	out, err := vfs.CreateOutput(fs, name)
	if err != nil {
		return errors.Wrap(err, "create failed")
	}
	defer out.Close()
	out.WriteVInt(uint32(len(fis.byNumber)))
	for _, fi := range fis.byNumber {
		out.WriteString(fi.Name)
		out.WriteByte(fi.flags())
	}
	return out.Commit()
}

func readFieldInfos(fs vfs.FileSystem, name string) (*FieldInfos, error) {
	in, err := vfs.OpenInput(fs, name)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	n, err := in.ReadVIntAsInt()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %v", name)
	}
	fis := NewFieldInfos()
	for i := 0; i < n; i++ {
		fieldName, err := in.ReadString()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %v", name)
		}
		flags, err := in.ReadByte()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %v", name)
		}
		if fis.ByName(fieldName) != nil {
			return nil, corruptf(name, "duplicate field %q", fieldName)
		}
		fis.Add(fieldName, flags&fieldIsIndexed != 0, flags&fieldStoreTermVector != 0,
			flags&fieldStorePositionVector != 0, flags&fieldOmitNorms != 0)
	}
	if in.Position() != in.Length() {
		return nil, corruptf(name, "%d trailing bytes", in.Length()-in.Position())
	}
	return fis, nil
}
