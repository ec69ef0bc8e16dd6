// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package textdb

import (
	"encoding/json"
	"io"

	"github.com/acoustid/go-textindex/document"
	"github.com/pkg/errors"
	"go4.org/sort"
)

// JSONDocument is the JSON form of a document, as accepted by the server and the
// command line tool:
//
//	{"id": "1", "text": {"title": "..."}, "keywords": {"lang": "en"}, "stored": {"url": "..."}}
type JSONDocument struct {
	ID       string            `json:"id"`
	Text     map[string]string `json:"text"`
	Keywords map[string]string `json:"keywords"`
	Stored   map[string]string `json:"stored"`
}

func addFields(doc *document.Document, values map[string]string, newField func(name, value string) *document.Field) {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	for _, name := range names {
		doc.Add(newField(name, values[name]))
	}
}

// Document converts d to a document, fields of each kind ordered by name.
func (d *JSONDocument) Document() *document.Document {
	doc := document.New()
	addFields(doc, d.Text, document.Text)
	addFields(doc, d.Keywords, document.Keyword)
	addFields(doc, d.Stored, document.Stored)
	return doc
}

// ReadJSONDocuments decodes a stream of JSON documents and calls fn for each of
// them. It returns the number of documents passed to fn.
func ReadJSONDocuments(r io.Reader, fn func(d *JSONDocument) error) (int, error) {
	decoder := json.NewDecoder(r)
	n := 0
	for {
		var d JSONDocument
		err := decoder.Decode(&d)
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, errors.Wrapf(ErrInvalidDocument, "document %d: %v", n+1, err)
		}
		if d.ID == "" {
			return n, errors.Wrapf(ErrInvalidDocument, "document %d has no id", n+1)
		}
		err = fn(&d)
		if err != nil {
			return n, err
		}
		n++
	}
}

// DecodeJSONDocuments decodes and validates a whole stream of JSON documents.
// Nothing is returned unless every document in the stream is valid.
func DecodeJSONDocuments(r io.Reader) ([]*JSONDocument, error) {
	var docs []*JSONDocument
	_, err := ReadJSONDocuments(r, func(d *JSONDocument) error {
		docs = append(docs, d)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}
