// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package search

import (
	"fmt"

	"github.com/RoaringBitmap/roaring"
	"github.com/acoustid/go-textindex/index"
	"github.com/pkg/errors"
)

// Filter restricts a search to a set of documents.
type Filter interface {
	// Bits returns the documents allowed by the filter.
	Bits(r index.Reader) (*roaring.Bitmap, error)
	String() string
}

// QueryFilter allows the documents matching a query, regardless of their score.
type QueryFilter struct {
	Query Query
}

func NewQueryFilter(q Query) *QueryFilter {
	return &QueryFilter{Query: q}
}

func (f *QueryFilter) Bits(r index.Reader) (*roaring.Bitmap, error) {
	w, err := NewSearcher(r).CreateWeight(f.Query)
	if err != nil {
		return nil, err
	}
	scorer, err := w.Scorer(r)
	if err != nil {
		return nil, err
	}
	bits := roaring.New()
	if scorer == nil {
		return bits, nil
	}
	for scorer.Next() {
		bits.Add(uint32(scorer.Doc()))
	}
	if err := scorer.Err(); err != nil {
		return nil, err
	}
	return bits, nil
}

func (f *QueryFilter) String() string {
	return fmt.Sprintf("QueryFilter(%v)", f.Query)
}

// RangeFilter allows documents with a term in a range. Unlike RangeQuery, it is not
// limited by the number of terms in the range.
type RangeFilter struct {
	Field        string
	Lower        string
	Upper        string
	IncludeLower bool
	IncludeUpper bool
}

// NewRangeFilter creates a range filter including both bounds. An empty bound leaves that end open.
func NewRangeFilter(field, lower, upper string) *RangeFilter {
	return &RangeFilter{Field: field, Lower: lower, Upper: upper, IncludeLower: true, IncludeUpper: true}
}

func (f *RangeFilter) rangeQuery() *RangeQuery {
	return &RangeQuery{
		Field:        f.Field,
		Lower:        f.Lower,
		Upper:        f.Upper,
		IncludeLower: f.IncludeLower,
		IncludeUpper: f.IncludeUpper,
	}
}

func (f *RangeFilter) Bits(r index.Reader) (*roaring.Bitmap, error) {
	q := f.rangeQuery()
	if err := q.validate(); err != nil {
		return nil, err
	}
	bits := roaring.New()
	err := forEachTerm(r, index.NewTerm(f.Field, f.Lower), func(t index.Term, _ int) (bool, error) {
		ok, more := q.contains(t.Text)
		if !ok {
			return more, nil
		}
		td, err := r.TermDocs(t)
		if err != nil {
			return false, err
		}
		defer td.Close()
		for td.Next() {
			bits.Add(uint32(td.Doc()))
		}
		return true, td.Err()
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build filter %v", f)
	}
	return bits, nil
}

func (f *RangeFilter) String() string {
	return "RangeFilter(" + f.rangeQuery().String() + ")"
}

// TermsFilter allows documents containing any of the given terms.
type TermsFilter struct {
	Terms []index.Term
}

func NewTermsFilter(terms ...index.Term) *TermsFilter {
	return &TermsFilter{Terms: terms}
}

func (f *TermsFilter) Bits(r index.Reader) (*roaring.Bitmap, error) {
	bits := roaring.New()
	for _, t := range f.Terms {
		td, err := r.TermDocs(t)
		if err != nil {
			return nil, err
		}
		for td.Next() {
			bits.Add(uint32(td.Doc()))
		}
		err = td.Err()
		td.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read postings of %v", t)
		}
	}
	return bits, nil
}

func (f *TermsFilter) String() string {
	return fmt.Sprintf("TermsFilter(%v)", f.Terms)
}

// AndFilter allows documents allowed by all of its filters.
type AndFilter []Filter

func (f AndFilter) Bits(r index.Reader) (*roaring.Bitmap, error) {
	var result *roaring.Bitmap
	for _, sub := range f {
		bits, err := sub.Bits(r)
		if err != nil {
			return nil, err
		}
		if result == nil {
			result = bits
		} else {
			result.And(bits)
		}
	}
	if result == nil {
		result = roaring.New()
		result.AddRange(0, uint64(r.MaxDoc()))
	}
	return result, nil
}

func (f AndFilter) String() string {
	return fmt.Sprintf("AndFilter(%v)", []Filter(f))
}
