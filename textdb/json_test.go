package textdb

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadJSONDocuments(t *testing.T) {
	input := `{"id": "1", "text": {"title": "Hello", "body": "World"}, "keywords": {"lang": "en"}}
{"id": "2", "stored": {"url": "http://example.com/"}}`
	var ids []string
	var names [][]string
	n, err := ReadJSONDocuments(strings.NewReader(input), func(d *JSONDocument) error {
		ids = append(ids, d.ID)
		var fieldNames []string
		for _, f := range d.Document().Fields {
			fieldNames = append(fieldNames, f.Name)
		}
		names = append(names, fieldNames)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"1", "2"}, ids)
	assert.Equal(t, [][]string{{"body", "title", "lang"}, {"url"}}, names)
}

func TestReadJSONDocuments_Invalid(t *testing.T) {
	for _, input := range []string{`{"id": "1"} {"text": {}}`, `{"id": "1"} {"id"`} {
		n, err := ReadJSONDocuments(strings.NewReader(input), func(d *JSONDocument) error { return nil })
		assert.Equal(t, 1, n)
		assert.True(t, errors.Is(err, ErrInvalidDocument), "expected invalid document, got %v", err)
	}

	stop := errors.New("stop")
	_, err := ReadJSONDocuments(strings.NewReader(`{"id": "1"}`), func(d *JSONDocument) error { return stop })
	assert.Equal(t, stop, err)
}

func TestDecodeJSONDocuments(t *testing.T) {
	docs, err := DecodeJSONDocuments(strings.NewReader(`{"id": "1"} {"id": "2"}`))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "2", docs[1].ID)

	docs, err = DecodeJSONDocuments(strings.NewReader(`{"id": "1"} {"id": ""}`))
	assert.True(t, errors.Is(err, ErrInvalidDocument), "expected invalid document, got %v", err)
	assert.Nil(t, docs)
}
