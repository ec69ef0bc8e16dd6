// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

// Package document defines the documents and fields that are added to an index.
package document

import (
	"strconv"
	"strings"
)

// TermVectorMode says what is stored in a field's term vector.
type TermVectorMode uint8

const (
	TermVectorNo TermVectorMode = iota
	TermVectorYes
	TermVectorWithPositions
)

// Field is a named value of a document.
type Field struct {
	Name  string
	Value string

	// Stored fields are returned with search results.
	Stored bool
	// Indexed fields are searchable.
	Indexed bool
	// Tokenized fields are passed through the analyzer, otherwise the value is indexed as a single term.
	Tokenized bool

	TermVector TermVectorMode

	// OmitNorms disables length normalization and boosts for the field.
	OmitNorms bool

	Boost float64
}

// Text creates a stored, indexed and tokenized field.
func Text(name, value string) *Field {
	return &Field{Name: name, Value: value, Stored: true, Indexed: true, Tokenized: true, Boost: 1}
}

// UnstoredText creates an indexed and tokenized field that is not stored.
func UnstoredText(name, value string) *Field {
	return &Field{Name: name, Value: value, Indexed: true, Tokenized: true, Boost: 1}
}

// Keyword creates a stored field indexed as a single term without norms.
func Keyword(name, value string) *Field {
	return &Field{Name: name, Value: value, Stored: true, Indexed: true, OmitNorms: true, Boost: 1}
}

// Stored creates a field that is only stored, not searchable.
func Stored(name, value string) *Field {
	return &Field{Name: name, Value: value, Stored: true, Boost: 1}
}

// Int creates a keyword field holding a zero padded integer, so that the term order matches the numeric order.
func Int(name string, value int64) *Field {
	return Keyword(name, PadInt(value))
}

const intWidth = 20

// PadInt encodes an integer into a string that sorts in numeric order.
func PadInt(value int64) string {
	if value < 0 {
		// shift negative numbers into a range that sorts before all non-negative ones
		u := uint64(value) ^ (1 << 63)
		s := strconv.FormatUint(u, 10)
		return "-" + strings.Repeat("0", intWidth-len(s)) + s
	}
	s := strconv.FormatInt(value, 10)
	return strings.Repeat("0", intWidth-len(s)) + s
}

// ParsePaddedInt decodes an integer encoded by PadInt. Plain integers are accepted too.
func ParsePaddedInt(s string) (int64, error) {
	if strings.HasPrefix(s, "-") && len(s) == intWidth+1 {
		u, err := strconv.ParseUint(s[1:], 10, 64)
		if err != nil {
			return 0, err
		}
		return int64(u ^ (1 << 63)), nil
	}
	return strconv.ParseInt(s, 10, 64)
}

// Document is an ordered list of fields.
type Document struct {
	Fields []*Field
	Boost  float64
}

func New(fields ...*Field) *Document {
	return &Document{Fields: fields, Boost: 1}
}

func (d *Document) Add(f *Field) {
	d.Fields = append(d.Fields, f)
}

// Get returns the value of the first field with the given name.
func (d *Document) Get(name string) (string, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// GetAll returns the values of all fields with the given name.
func (d *Document) GetAll(name string) []string {
	var values []string
	for _, f := range d.Fields {
		if f.Name == name {
			values = append(values, f.Value)
		}
	}
	return values
}

// RemoveAll removes all fields with the given name.
func (d *Document) RemoveAll(name string) {
	fields := d.Fields[:0]
	for _, f := range d.Fields {
		if f.Name != name {
			fields = append(fields, f)
		}
	}
	d.Fields = fields
}
