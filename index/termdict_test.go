package index

import (
	"fmt"
	"io"
	"testing"

	"github.com/acoustid/go-textindex/util/vfs"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestTermDict(t *testing.T, fs vfs.FileSystem, terms []Term) *FieldInfos {
	fis := NewFieldInfos()
	fis.Add("body", true, false, false, false)
	fis.Add("title", true, false, false, false)
	w, err := newTermInfosWriter(fs, "_0", fis, 4, 2, 3)
	require.NoError(t, err)
	defer w.Close()
	for i, term := range terms {
		ti := TermInfo{DocFreq: i%5 + 1, FreqPointer: int64(i * 10), ProxPointer: int64(i * 20)}
		if ti.DocFreq >= 2 {
			ti.SkipOffset = int64(i)
		}
		require.NoError(t, w.Add(term, ti))
	}
	require.NoError(t, w.Commit())
	return fis
}

func testTerms() []Term {
	var terms []Term
	for i := 0; i < 50; i++ {
		terms = append(terms, NewTerm("body", fmt.Sprintf("t%03d", i*2)))
	}
	terms = append(terms, NewTerm("title", "aaa"), NewTerm("title", "aab"), NewTerm("title", "b"))
	return terms
}

func TestTermInfosReader_Get(t *testing.T) {
	fs := vfs.CreateMemDir()
	terms := testTerms()
	fis := writeTestTermDict(t, fs, terms)

	r, err := openTermInfosReader(fs, "_0", fis)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, int64(len(terms)), r.Size())

	for i, term := range terms {
		ti, ok, err := r.Get(term)
		require.NoError(t, err)
		require.True(t, ok, "term %v not found", term)
		assert.Equal(t, i%5+1, ti.DocFreq)
		assert.Equal(t, int64(i*10), ti.FreqPointer)
		assert.Equal(t, int64(i*20), ti.ProxPointer)
		if ti.DocFreq >= 2 {
			assert.Equal(t, int64(i), ti.SkipOffset)
		}
	}

	for _, term := range []Term{NewTerm("body", "t001"), NewTerm("body", "a"), NewTerm("body", "z"), NewTerm("other", "t000"), NewTerm("title", "c")} {
		_, ok, err := r.Get(term)
		require.NoError(t, err)
		assert.False(t, ok, "term %v should not be found", term)
	}
}

func TestTermInfosReader_Seek(t *testing.T) {
	fs := vfs.CreateMemDir()
	terms := testTerms()
	fis := writeTestTermDict(t, fs, terms)

	r, err := openTermInfosReader(fs, "_0", fis)
	require.NoError(t, err)
	defer r.Close()

	tests := []struct {
		target   Term
		expected Term
	}{
		{NewTerm("body", ""), NewTerm("body", "t000")},
		{NewTerm("body", "t000"), NewTerm("body", "t000")},
		{NewTerm("body", "t051"), NewTerm("body", "t052")},
		{NewTerm("body", "t098"), NewTerm("body", "t098")},
		{NewTerm("body", "t099"), NewTerm("title", "aaa")},
		{NewTerm("title", "aaaa"), NewTerm("title", "aab")},
	}
	for _, test := range tests {
		e, err := r.seek(test.target)
		require.NoError(t, err)
		require.True(t, e.Next(), "no term after %v", test.target)
		assert.Equal(t, test.expected, e.Term(), "seek to %v", test.target)
	}

	e, err := r.seek(NewTerm("zzz", ""))
	require.NoError(t, err)
	assert.False(t, e.Next())
}

func TestTermInfosReader_Enum(t *testing.T) {
	fs := vfs.CreateMemDir()
	terms := testTerms()
	fis := writeTestTermDict(t, fs, terms)

	r, err := openTermInfosReader(fs, "_0", fis)
	require.NoError(t, err)
	defer r.Close()

	e := r.enum()
	var actual []Term
	for e.Next() {
		actual = append(actual, e.Term())
	}
	require.NoError(t, e.Err())
	assert.Equal(t, terms, actual)
	assert.False(t, e.Next())
}

func TestTermInfosReader_Empty(t *testing.T) {
	fs := vfs.CreateMemDir()
	fis := writeTestTermDict(t, fs, nil)

	r, err := openTermInfosReader(fs, "_0", fis)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, int64(0), r.Size())
	_, ok, err := r.Get(NewTerm("body", "a"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, r.enum().Next())
}

func TestTermInfosWriter_OutOfOrder(t *testing.T) {
	fs := vfs.CreateMemDir()
	fis := NewFieldInfos()
	fis.Add("body", true, false, false, false)
	w, err := newTermInfosWriter(fs, "_0", fis, 4, 2, 3)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Add(NewTerm("body", "b"), TermInfo{DocFreq: 1}))
	err = w.Add(NewTerm("body", "a"), TermInfo{DocFreq: 1})
	assert.True(t, errors.Is(err, ErrTermsOutOfOrder), "expected terms out of order, got %v", err)
	err = w.Add(NewTerm("body", "b"), TermInfo{DocFreq: 1})
	assert.True(t, errors.Is(err, ErrTermsOutOfOrder), "duplicate terms are out of order, got %v", err)
	assert.Error(t, w.Add(NewTerm("unknown", "c"), TermInfo{DocFreq: 1}))
}

func TestOpenTermInfosReader_Corrupt(t *testing.T) {
	t.Run("TruncatedIndex", func(t *testing.T) {
		fs := vfs.CreateMemDir()
		fis := writeTestTermDict(t, fs, testTerms())
		truncateFile(t, fs, "_0.tii", 3)
		_, err := openTermInfosReader(fs, "_0", fis)
		assert.True(t, IsCorrupt(err), "expected corrupt index, got %v", err)
	})

	t.Run("BadMagic", func(t *testing.T) {
		fs := vfs.CreateMemDir()
		fis := writeTestTermDict(t, fs, testTerms())
		data, err := vfs.ReadFile(fs, "_0.tis")
		require.NoError(t, err)
		data[0] ^= 0xff
		require.NoError(t, vfs.WriteFile(fs, "_0.tis", func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		}))
		_, err = openTermInfosReader(fs, "_0", fis)
		assert.True(t, IsCorrupt(err), "expected corrupt index, got %v", err)
	})

	t.Run("UnknownField", func(t *testing.T) {
		fs := vfs.CreateMemDir()
		writeTestTermDict(t, fs, testTerms())
		fis := NewFieldInfos()
		fis.Add("body", true, false, false, false)
		r, err := openTermInfosReader(fs, "_0", fis)
		if err == nil {
			// the sampled index may not reach the unknown field, the full scan does
			e := r.enum()
			for e.Next() {
			}
			err = e.Err()
			r.Close()
		}
		assert.True(t, IsCorrupt(err), "expected corrupt index, got %v", err)
	})
}
