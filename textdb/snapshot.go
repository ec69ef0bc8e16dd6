// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package textdb

import (
	"sync/atomic"

	"github.com/acoustid/go-textindex/index"
	"github.com/acoustid/go-textindex/search"
	"go4.org/syncutil"
)

// readerRef is a reader shared by all snapshots of one generation. The reader is
// closed when the last reference is released.
type readerRef struct {
	reader   index.Reader
	searcher *search.Searcher
	refs     int32
}

func newReaderRef(r index.Reader) *readerRef {
	return &readerRef{reader: r, searcher: search.NewSearcher(r), refs: 1}
}

func (r *readerRef) incRef() {
	atomic.AddInt32(&r.refs, 1)
}

func (r *readerRef) decRef() error {
	if atomic.AddInt32(&r.refs, -1) == 0 {
		return r.reader.Close()
	}
	return nil
}

// Snapshot is a consistent read-only view of the DB. It must be closed after use.
type Snapshot struct {
	ref   *readerRef
	close syncutil.Once
}

func (s *Snapshot) Reader() index.Reader {
	return s.ref.reader
}

func (s *Snapshot) Searcher() *search.Searcher {
	return s.ref.searcher
}

// Generation returns the index generation the snapshot was opened at.
func (s *Snapshot) Generation() int64 {
	return s.ref.reader.Generation()
}

func (s *Snapshot) NumDocs() int {
	return s.ref.reader.NumDocs()
}

func (s *Snapshot) Search(q search.Query, opts search.SearchOptions) (*search.TopDocs, error) {
	return s.ref.searcher.Search(q, opts)
}

func (s *Snapshot) Close() error {
	return s.close.Do(s.ref.decRef)
}
