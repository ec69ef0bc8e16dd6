// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

// Package textdb shares one index between writers and concurrent searches.
package textdb

import (
	"log"
	"sync"
	"time"

	"github.com/acoustid/go-textindex/analysis"
	"github.com/acoustid/go-textindex/document"
	"github.com/acoustid/go-textindex/index"
	"github.com/acoustid/go-textindex/search"
	"github.com/acoustid/go-textindex/util/vfs"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// IDField is the field that identifies documents for DeleteDocument and UpdateDocument.
const IDField = "id"

var ErrInvalidDocument = errors.New("invalid document")

// DB owns the index writer and a reader snapshot of the last commit. All changes
// go through the writer, searches run on snapshots which are reopened after each commit.
type DB struct {
	fs   vfs.FileSystem
	opts index.Options

	mu     sync.Mutex
	writer *index.Writer
	closed bool

	refMu   sync.Mutex
	current *readerRef

	refresh singleflight.Group
}

// Open opens the index in fs for writing. If create is true, any existing content is
// replaced by an empty index.
func Open(fs vfs.FileSystem, create bool, opts index.Options) (*DB, error) {
	writer, err := index.OpenWriter(fs, create, opts)
	if err != nil {
		return nil, err
	}
	reader, err := index.OpenReader(fs, opts)
	if err != nil {
		writer.Close()
		return nil, err
	}
	db := &DB{fs: fs, opts: opts, writer: writer, current: newReaderRef(reader)}
	log.Printf("opened database in %v (generation=%d, docs=%d)", fs, reader.Generation(), reader.NumDocs())
	return db, nil
}

func (db *DB) withWriter(fn func(w *index.Writer) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return index.ErrAlreadyClosed
	}
	return fn(db.writer)
}

// AddDocument adds a document. It becomes visible to searches after the next Commit.
func (db *DB) AddDocument(doc *document.Document) error {
	return db.withWriter(func(w *index.Writer) error { return w.AddDocument(doc) })
}

// UpdateDocument replaces the documents with the given id by doc. The id is stored in doc.
func (db *DB) UpdateDocument(id string, doc *document.Document) error {
	doc.RemoveAll(IDField)
	doc.Add(document.Keyword(IDField, id))
	return db.withWriter(func(w *index.Writer) error { return w.UpdateDocument(index.NewTerm(IDField, id), doc) })
}

// DeleteTerm deletes all documents containing the term.
func (db *DB) DeleteTerm(t index.Term) error {
	return db.withWriter(func(w *index.Writer) error { return w.DeleteDocuments(t) })
}

// DeleteDocument deletes the documents with the given id.
func (db *DB) DeleteDocument(id string) error {
	return db.DeleteTerm(index.NewTerm(IDField, id))
}

// Commit makes all changes durable and visible to new snapshots.
func (db *DB) Commit() error {
	err := db.withWriter(func(w *index.Writer) error { return w.Commit() })
	if err != nil {
		return errors.Wrap(err, "commit failed")
	}
	return db.Refresh()
}

// Optimize merges the index into a single segment.
func (db *DB) Optimize() error {
	started := time.Now()
	err := db.withWriter(func(w *index.Writer) error { return w.Optimize() })
	if err != nil {
		return errors.Wrap(err, "optimize failed")
	}
	log.Printf("optimized index (duration=%s)", time.Since(started))
	return db.Refresh()
}

// Refresh reopens the reader snapshot if a newer generation was committed.
// Concurrent calls share one reopen.
func (db *DB) Refresh() error {
	_, err, _ := db.refresh.Do("refresh", func() (interface{}, error) {
		return nil, db.reopen()
	})
	return err
}

func (db *DB) reopen() error {
	db.refMu.Lock()
	if db.current == nil {
		db.refMu.Unlock()
		return index.ErrAlreadyClosed
	}
	gen := db.current.reader.Generation()
	db.refMu.Unlock()

	latest, err := index.LatestGeneration(db.fs)
	if err != nil {
		return errors.Wrap(err, "failed to read the latest generation")
	}
	if latest == gen {
		return nil
	}
	reader, err := index.OpenReader(db.fs, db.opts)
	if err != nil {
		return errors.Wrap(err, "failed to reopen the index")
	}

	db.refMu.Lock()
	old := db.current
	if old == nil {
		db.refMu.Unlock()
		reader.Close()
		return index.ErrAlreadyClosed
	}
	db.current = newReaderRef(reader)
	db.refMu.Unlock()

	log.Printf("reopened index at generation %d (docs=%d)", reader.Generation(), reader.NumDocs())
	return old.decRef()
}

// Snapshot returns a view of the last commit. The caller must close it.
func (db *DB) Snapshot() (*Snapshot, error) {
	db.refMu.Lock()
	defer db.refMu.Unlock()
	if db.current == nil {
		return nil, index.ErrAlreadyClosed
	}
	db.current.incRef()
	return &Snapshot{ref: db.current}, nil
}

func (db *DB) Search(q search.Query, opts search.SearchOptions) (*search.TopDocs, error) {
	s, err := db.Snapshot()
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.Search(q, opts)
}

func (db *DB) Explain(q search.Query, doc int) (*search.Explanation, error) {
	s, err := db.Snapshot()
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.Searcher().Explain(q, doc)
}

func (db *DB) Doc(doc int) (*document.Document, error) {
	s, err := db.Snapshot()
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.Searcher().Doc(doc)
}

// NumDocs returns the number of live documents, including uncommitted ones.
func (db *DB) NumDocs() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return 0
	}
	return db.writer.NumDocs()
}

// Stats describes the committed state of the index.
type Stats struct {
	NumDocs     int   `json:"num_docs"`
	MaxDoc      int   `json:"max_doc"`
	NumSegments int   `json:"num_segments"`
	Generation  int64 `json:"generation"`
	// Pending counts documents added since the snapshot was opened.
	Pending int `json:"pending_docs"`
}

func (db *DB) Stats() (Stats, error) {
	s, err := db.Snapshot()
	if err != nil {
		return Stats{}, err
	}
	defer s.Close()
	r := s.Reader()
	stats := Stats{
		NumDocs:     r.NumDocs(),
		MaxDoc:      r.MaxDoc(),
		NumSegments: len(r.Leaves()),
		Generation:  r.Generation(),
	}
	err = db.withWriter(func(w *index.Writer) error {
		stats.Pending = w.MaxDoc() - stats.MaxDoc
		if stats.Pending < 0 {
			stats.Pending = 0
		}
		return nil
	})
	return stats, err
}

// Close commits pending changes, releases the write lock and closes the reader
// snapshot once no search uses it.
func (db *DB) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil
	}
	db.closed = true
	err := db.writer.Close()
	db.mu.Unlock()

	db.refMu.Lock()
	ref := db.current
	db.current = nil
	db.refMu.Unlock()
	if ref != nil {
		if err2 := ref.decRef(); err == nil {
			err = err2
		}
	}
	log.Printf("closed database in %v", db.fs)
	return err
}

// Analyzer returns the analyzer documents are indexed with, for parsing query strings.
func (db *DB) Analyzer() analysis.Analyzer {
	return Analyzer(db.opts)
}

// Analyzer returns the analyzer selected by opts.
func Analyzer(opts index.Options) analysis.Analyzer {
	if opts.Analyzer != nil {
		return opts.Analyzer
	}
	return analysis.ByName(opts.AnalyzerName)
}
