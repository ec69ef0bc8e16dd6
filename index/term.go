// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package index

import (
	"fmt"
	"strings"
)

// Term is a word from a field. Terms are ordered by field name and then by the bytes of their text.
type Term struct {
	Field string
	Text  string
}

func NewTerm(field, text string) Term {
	return Term{Field: field, Text: text}
}

// Compare returns -1, 0 or 1 depending on whether t sorts before, equal to or after o.
func (t Term) Compare(o Term) int {
	if c := strings.Compare(t.Field, o.Field); c != 0 {
		return c
	}
	return strings.Compare(t.Text, o.Text)
}

func (t Term) Less(o Term) bool {
	return t.Compare(o) < 0
}

func (t Term) String() string {
	return fmt.Sprintf("%s:%s", t.Field, t.Text)
}

// TermInfo describes where the postings of a term are stored in a segment.
type TermInfo struct {
	DocFreq     int
	FreqPointer int64
	ProxPointer int64
	// SkipOffset is the offset of the skip data from FreqPointer, it is only set if DocFreq >= skip interval.
	SkipOffset int64
}
