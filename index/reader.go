// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package index

import (
	"log"
	"sort"
	"sync"

	"github.com/acoustid/go-textindex/document"
	"github.com/acoustid/go-textindex/util/vfs"
	"github.com/pkg/errors"
	"go4.org/syncutil"
)

// Reader gives access to one generation of an index.
//
// Reads are safe for concurrent use. Deletions and norm changes take the index's write
// lock on first use and become visible to other readers after Commit or Close.
type Reader interface {
	MaxDoc() int
	NumDocs() int
	HasDeletions() bool
	IsDeleted(n int) bool
	Document(n int) (*document.Document, error)
	FieldNames() []string

	Terms() (TermEnum, error)
	TermsFrom(t Term) (TermEnum, error)
	DocFreq(t Term) (int, error)
	TermDocs(t Term) (TermDocs, error)
	TermPositions(t Term) (TermPositions, error)
	TermVector(n int, field string) (*TermVector, error)
	Norms(field string) []byte

	SetNorm(n int, field string, value float64) error
	DeleteDocument(n int) error
	DeleteDocuments(t Term) (int, error)
	UndeleteAll() error

	// Leaves returns the segment readers with the doc id offsets of their documents.
	Leaves() []Leaf

	Commit() error
	IsCurrent() (bool, error)
	Generation() int64
	Close() error
}

// Leaf is a segment of a Reader, its documents are numbered from Base.
type Leaf struct {
	Reader *SegmentReader
	Base   int
}

const maxOpenRetries = 3

// OpenReader opens the latest readable generation of the index.
func OpenReader(fs vfs.FileSystem, opts Options) (Reader, error) {
	var lastErr error
	for attempt := 0; attempt < maxOpenRetries; attempt++ {
		infos, err := readLatestSegmentInfos(fs)
		if err != nil {
			return nil, err
		}
		r, err := openReader(fs, infos, opts)
		if err == nil {
			return r, nil
		}
		lastErr = err
		if !vfs.IsNotExist(errors.Cause(err)) {
			break
		}
		// a writer may have removed the files of this generation after committing a newer one
		latest, err := LatestGeneration(fs)
		if err != nil || latest == infos.Generation {
			break
		}
		log.Printf("retrying to open the index, generation %d was replaced by %d", infos.Generation, latest)
	}
	return nil, errors.Wrap(lastErr, "failed to open the index")
}

func openReader(fs vfs.FileSystem, infos *SegmentInfos, opts Options) (Reader, error) {
	dir := &directoryState{fs: fs, opts: opts, infos: infos}
	for _, si := range infos.Segments {
		r, err := openSegmentReader(fs, si)
		if err != nil {
			for _, r := range dir.readers {
				r.closeFiles()
			}
			return nil, errors.Wrapf(err, "failed to open segment %v", si.Name)
		}
		r.dir = dir
		dir.readers = append(dir.readers, r)
	}
	if len(dir.readers) == 1 {
		dir.readers[0].top = true
		return dir.readers[0], nil
	}
	return newMultiReader(dir), nil
}

// directoryState is the generation shared by a reader and its segment readers.
type directoryState struct {
	fs      vfs.FileSystem
	opts    Options
	readers []*SegmentReader

	mu         sync.Mutex
	infos      *SegmentInfos
	writeLock  vfs.Lock
	hasChanges bool
	closed     bool
	closeOnce  syncutil.Once
}

// acquireWriteLock takes the index write lock before the first change. It fails if
// another generation was committed since the reader was opened.
func (d *directoryState) acquireWriteLock() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrAlreadyClosed
	}
	if d.writeLock != nil {
		return nil
	}
	lock := d.fs.Lock(WriteLockName)
	err := vfs.Obtain(lock, d.opts.WriteLockTimeout)
	if err != nil {
		return errors.Wrap(err, "failed to lock the index")
	}
	latest, err := readLatestSegmentInfos(d.fs)
	if err != nil {
		lock.Unlock()
		return err
	}
	if latest.Generation != d.infos.Generation {
		lock.Unlock()
		return errors.Wrapf(ErrStaleReader, "reader is at generation %d, the index at %d", d.infos.Generation, latest.Generation)
	}
	d.writeLock = lock
	return nil
}

func (d *directoryState) markChanged() {
	d.mu.Lock()
	d.hasChanges = true
	d.mu.Unlock()
}

// commit publishes the deletions and norms changed through the readers as a new generation.
func (d *directoryState) commit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrAlreadyClosed
	}
	if !d.hasChanges {
		return nil
	}

	var infos *SegmentInfos
	updated := make([]*SegmentInfo, len(d.readers))
	err := vfs.With(d.fs.Lock(CommitLockName), d.opts.CommitLockTimeout, func() error {
		infos = d.infos.Clone()
		for i, r := range d.readers {
			si, err := r.writeChanges()
			if err != nil {
				return errors.Wrapf(err, "failed to save changes of segment %v", r.Name())
			}
			infos.Segments[i] = si
			updated[i] = si
		}
		err := infos.commit(d.fs)
		if err != nil {
			return err
		}
		newFileDeleter(d.fs, d.opts.KeepCommits).deleteUnused()
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "commit failed")
	}

	for i, r := range d.readers {
		r.commitChanges(updated[i])
	}
	d.infos = infos
	d.hasChanges = false
	d.releaseWriteLock()

	log.Printf("committed generation %d (segments=%d, docs=%d)", infos.Generation, len(infos.Segments), infos.NumDocs())
	return nil
}

func (d *directoryState) releaseWriteLock() {
	if d.writeLock != nil {
		d.writeLock.Unlock()
		d.writeLock = nil
	}
}

func (d *directoryState) isCurrent() (bool, error) {
	d.mu.Lock()
	gen := d.infos.Generation
	d.mu.Unlock()
	latest, err := readLatestSegmentInfos(d.fs)
	if err != nil {
		return false, err
	}
	return latest.Generation == gen, nil
}

func (d *directoryState) generation() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.infos.Generation
}

// close commits pending changes and closes all segment readers.
func (d *directoryState) close() error {
	return d.closeOnce.Do(func() error {
		err := d.commit()
		d.mu.Lock()
		defer d.mu.Unlock()
		d.closed = true
		d.releaseWriteLock()
		for _, r := range d.readers {
			r.closed.Do(r.closeFiles)
		}
		return err
	})
}

// MultiReader combines the segments of a generation, numbering their documents consecutively.
type MultiReader struct {
	dir     *directoryState
	readers []*SegmentReader
	starts  []int

	normsMu    sync.Mutex
	normsCache map[string][]byte
}

func newMultiReader(dir *directoryState) *MultiReader {
	r := &MultiReader{dir: dir, readers: dir.readers, normsCache: make(map[string][]byte)}
	r.starts = make([]int, len(r.readers)+1)
	for i, sr := range r.readers {
		r.starts[i+1] = r.starts[i] + sr.MaxDoc()
	}
	return r
}

// readerIndex returns the segment containing doc n.
func (r *MultiReader) readerIndex(n int) int {
	return sort.Search(len(r.readers), func(i int) bool { return r.starts[i+1] > n })
}

func (r *MultiReader) segment(n int) (*SegmentReader, int, error) {
	if n < 0 || n >= r.MaxDoc() {
		return nil, 0, errors.Wrapf(ErrInvalidDocID, "doc %d", n)
	}
	i := r.readerIndex(n)
	return r.readers[i], n - r.starts[i], nil
}

func (r *MultiReader) MaxDoc() int {
	return r.starts[len(r.readers)]
}

func (r *MultiReader) NumDocs() int {
	n := 0
	for _, sr := range r.readers {
		n += sr.NumDocs()
	}
	return n
}

func (r *MultiReader) HasDeletions() bool {
	for _, sr := range r.readers {
		if sr.HasDeletions() {
			return true
		}
	}
	return false
}

func (r *MultiReader) IsDeleted(n int) bool {
	sr, doc, err := r.segment(n)
	return err == nil && sr.IsDeleted(doc)
}

func (r *MultiReader) Document(n int) (*document.Document, error) {
	sr, doc, err := r.segment(n)
	if err != nil {
		return nil, err
	}
	return sr.Document(doc)
}

func (r *MultiReader) FieldNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, sr := range r.readers {
		for _, fi := range sr.fieldInfos.Fields() {
			if !seen[fi.Name] {
				seen[fi.Name] = true
				names = append(names, fi.Name)
			}
		}
	}
	sort.Strings(names)
	return names
}

func (r *MultiReader) Terms() (TermEnum, error) {
	return newMultiTermEnum(r.readers, r.starts, nil)
}

func (r *MultiReader) TermsFrom(t Term) (TermEnum, error) {
	return newMultiTermEnum(r.readers, r.starts, &t)
}

func (r *MultiReader) DocFreq(t Term) (int, error) {
	total := 0
	for _, sr := range r.readers {
		df, err := sr.DocFreq(t)
		if err != nil {
			return 0, err
		}
		total += df
	}
	return total, nil
}

func (r *MultiReader) TermDocs(t Term) (TermDocs, error) {
	return newMultiTermDocs(r.readers, r.starts, t, false), nil
}

func (r *MultiReader) TermPositions(t Term) (TermPositions, error) {
	return newMultiTermDocs(r.readers, r.starts, t, true), nil
}

func (r *MultiReader) TermVector(n int, field string) (*TermVector, error) {
	sr, doc, err := r.segment(n)
	if err != nil {
		return nil, err
	}
	return sr.TermVector(doc, field)
}

// Norms returns the norms of all segments concatenated. Segments without norms
// for the field contribute the default norm. It returns nil if no segment has norms.
func (r *MultiReader) Norms(field string) []byte {
	r.normsMu.Lock()
	defer r.normsMu.Unlock()
	if norms, ok := r.normsCache[field]; ok {
		return norms
	}
	var norms []byte
	for i, sr := range r.readers {
		segNorms := sr.Norms(field)
		if segNorms == nil {
			continue
		}
		if norms == nil {
			norms = fillNorms(make([]byte, r.MaxDoc()))
		}
		copy(norms[r.starts[i]:], segNorms)
	}
	r.normsCache[field] = norms
	return norms
}

func (r *MultiReader) SetNorm(n int, field string, value float64) error {
	sr, doc, err := r.segment(n)
	if err != nil {
		return err
	}
	err = sr.SetNorm(doc, field, value)
	if err != nil {
		return err
	}
	r.normsMu.Lock()
	delete(r.normsCache, field)
	r.normsMu.Unlock()
	return nil
}

func (r *MultiReader) DeleteDocument(n int) error {
	sr, doc, err := r.segment(n)
	if err != nil {
		return err
	}
	return sr.DeleteDocument(doc)
}

func (r *MultiReader) DeleteDocuments(t Term) (int, error) {
	total := 0
	for _, sr := range r.readers {
		n, err := sr.DeleteDocuments(t)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (r *MultiReader) UndeleteAll() error {
	for _, sr := range r.readers {
		err := sr.UndeleteAll()
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *MultiReader) Leaves() []Leaf {
	leaves := make([]Leaf, len(r.readers))
	for i, sr := range r.readers {
		leaves[i] = Leaf{Reader: sr, Base: r.starts[i]}
	}
	return leaves
}

func (r *MultiReader) Commit() error {
	return r.dir.commit()
}

func (r *MultiReader) IsCurrent() (bool, error) {
	return r.dir.isCurrent()
}

func (r *MultiReader) Generation() int64 {
	return r.dir.generation()
}

func (r *MultiReader) Close() error {
	return r.dir.close()
}
