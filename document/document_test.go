package document

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocument(t *testing.T) {
	doc := New(Text("title", "hello"), Keyword("id", "1"))
	doc.Add(Text("tag", "a"))
	doc.Add(Text("tag", "b"))

	v, ok := doc.Get("title")
	assert.True(t, ok)
	assert.Equal(t, "hello", v)
	_, ok = doc.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, []string{"a", "b"}, doc.GetAll("tag"))

	doc.RemoveAll("tag")
	assert.Len(t, doc.Fields, 2)
	assert.Equal(t, 1.0, doc.Boost)
}

func TestPadInt(t *testing.T) {
	values := []int64{-1 << 63, -1000, -1, 0, 1, 9, 10, 1 << 40, 1<<63 - 1}
	var encoded []string
	for _, v := range values {
		s := PadInt(v)
		encoded = append(encoded, s)
		decoded, err := ParsePaddedInt(s)
		require.NoError(t, err)
		assert.Equal(t, v, decoded)
	}
	assert.True(t, sort.StringsAreSorted(encoded), "%v", encoded)
}
