// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package search

import (
	"strconv"

	"github.com/acoustid/go-textindex/document"
	"github.com/acoustid/go-textindex/index"
	"github.com/pkg/errors"
)

// SortType says how the values of a sort field are compared.
type SortType int

const (
	// SortByScore orders hits by decreasing score.
	SortByScore SortType = iota
	// SortByDoc orders hits by increasing doc number.
	SortByDoc
	// SortByString orders hits by the indexed term of a field.
	SortByString
	// SortByInt orders hits by a field indexed with document.Int.
	SortByInt
	// SortByFloat orders hits by a field holding decimal numbers.
	SortByFloat
)

var sortTypeNames = map[SortType]string{
	SortByScore:  "score",
	SortByDoc:    "doc",
	SortByString: "string",
	SortByInt:    "int",
	SortByFloat:  "float",
}

func (t SortType) String() string {
	if name, ok := sortTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseSortType returns the sort type with the given name.
func ParseSortType(name string) (SortType, error) {
	for t, n := range sortTypeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, errors.WithMessagef(ErrInvalidArgument, "unknown sort type %q", name)
}

// SortField is one criterion of a Sort.
//
// String, int and float fields must be indexed untokenized with a single term per document.
// Documents without a value sort as if they had the zero value.
type SortField struct {
	Field   string
	Type    SortType
	Reverse bool
}

// Sort orders hits by a list of fields. Ties are broken by doc number.
type Sort struct {
	Fields []SortField
}

// NewSort creates a sort with the given criteria.
func NewSort(fields ...SortField) *Sort {
	return &Sort{Fields: fields}
}

// SortByRelevance is the default ordering.
var SortByRelevance = NewSort(SortField{Type: SortByScore})

type fieldComparator interface {
	compare(a, b ScoreDoc) int
	value(hit ScoreDoc) interface{}
}

type hitComparator struct {
	fields  []fieldComparator
	reverse []bool
}

func (s *Searcher) newHitComparator(sort *Sort) (*hitComparator, error) {
	c := &hitComparator{}
	for _, f := range sort.Fields {
		var fc fieldComparator
		switch f.Type {
		case SortByScore:
			fc = scoreComparator{}
		case SortByDoc:
			fc = docComparator{}
		case SortByString, SortByInt, SortByFloat:
			if f.Field == "" {
				return nil, errors.WithMessagef(ErrInvalidArgument, "%v sort needs a field", f.Type)
			}
			values, err := s.fieldValues(f.Field, f.Type)
			if err != nil {
				return nil, err
			}
			switch v := values.(type) {
			case []string:
				fc = stringComparator(v)
			case []int64:
				fc = intComparator(v)
			case []float64:
				fc = floatComparator(v)
			}
		default:
			return nil, errors.WithMessagef(ErrInvalidArgument, "unknown sort type %d", f.Type)
		}
		c.fields = append(c.fields, fc)
		c.reverse = append(c.reverse, f.Reverse)
	}
	return c, nil
}

// less returns true if a sorts before b.
func (c *hitComparator) less(a, b ScoreDoc) bool {
	for i, f := range c.fields {
		r := f.compare(a, b)
		if c.reverse[i] {
			r = -r
		}
		if r != 0 {
			return r < 0
		}
	}
	return a.Doc < b.Doc
}

func (c *hitComparator) values(hit ScoreDoc) []interface{} {
	values := make([]interface{}, len(c.fields))
	for i, f := range c.fields {
		values[i] = f.value(hit)
	}
	return values
}

type scoreComparator struct{}

func (scoreComparator) compare(a, b ScoreDoc) int {
	switch {
	case a.Score > b.Score:
		return -1
	case a.Score < b.Score:
		return 1
	}
	return 0
}

func (scoreComparator) value(hit ScoreDoc) interface{} { return hit.Score }

type docComparator struct{}

func (docComparator) compare(a, b ScoreDoc) int { return a.Doc - b.Doc }

func (docComparator) value(hit ScoreDoc) interface{} { return hit.Doc }

type stringComparator []string

func (c stringComparator) compare(a, b ScoreDoc) int {
	switch x, y := c[a.Doc], c[b.Doc]; {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func (c stringComparator) value(hit ScoreDoc) interface{} { return c[hit.Doc] }

type intComparator []int64

func (c intComparator) compare(a, b ScoreDoc) int {
	switch x, y := c[a.Doc], c[b.Doc]; {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func (c intComparator) value(hit ScoreDoc) interface{} { return c[hit.Doc] }

type floatComparator []float64

func (c floatComparator) compare(a, b ScoreDoc) int {
	switch x, y := c[a.Doc], c[b.Doc]; {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func (c floatComparator) value(hit ScoreDoc) interface{} { return c[hit.Doc] }

type fieldCacheKey struct {
	field string
	typ   SortType
}

// fieldValues returns the value of field for every document, loading it from the
// term dictionary on first use.
func (s *Searcher) fieldValues(field string, typ SortType) (interface{}, error) {
	key := fieldCacheKey{field: field, typ: typ}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if values, ok := s.cache[key]; ok {
		return values, nil
	}

	maxDoc := s.reader.MaxDoc()
	var values interface{}
	var set func(doc int, text string) error
	switch typ {
	case SortByString:
		v := make([]string, maxDoc)
		set = func(doc int, text string) error {
			v[doc] = text
			return nil
		}
		values = v
	case SortByInt:
		v := make([]int64, maxDoc)
		set = func(doc int, text string) error {
			n, err := document.ParsePaddedInt(text)
			if err != nil {
				return errors.WithMessagef(ErrInvalidArgument, "field %v has non-integer term %q", field, text)
			}
			v[doc] = n
			return nil
		}
		values = v
	case SortByFloat:
		v := make([]float64, maxDoc)
		set = func(doc int, text string) error {
			f, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return errors.WithMessagef(ErrInvalidArgument, "field %v has non-numeric term %q", field, text)
			}
			v[doc] = f
			return nil
		}
		values = v
	}

	err := forEachTerm(s.reader, index.NewTerm(field, ""), func(t index.Term, _ int) (bool, error) {
		td, err := s.reader.TermDocs(t)
		if err != nil {
			return false, err
		}
		defer td.Close()
		for td.Next() {
			if err := set(td.Doc(), t.Text); err != nil {
				return false, err
			}
		}
		return true, td.Err()
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load values of field %v", field)
	}
	s.cache[key] = values
	return values, nil
}

// forEachTerm calls fn for each term of start's field, beginning at start,
// until fn returns false.
func forEachTerm(r index.Reader, start index.Term, fn func(t index.Term, docFreq int) (bool, error)) error {
	terms, err := r.TermsFrom(start)
	if err != nil {
		return err
	}
	defer terms.Close()
	for terms.Next() {
		t := terms.Term()
		if t.Field != start.Field {
			break
		}
		more, err := fn(t, terms.DocFreq())
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return terms.Err()
}
