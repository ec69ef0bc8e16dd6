// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package index

import (
	"bytes"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/acoustid/go-textindex/document"
	"github.com/acoustid/go-textindex/similarity"
	"github.com/acoustid/go-textindex/util/bitset"
	"github.com/acoustid/go-textindex/util/vfs"
	"github.com/pkg/errors"
	"go4.org/syncutil"
)

// SegmentReader reads one segment. Posting data is immutable, deletions and norms
// are replaced copy-on-write, so cursors keep the view they were created with.
type SegmentReader struct {
	fs  vfs.FileSystem
	dir *directoryState
	// top is set if the reader is the one returned by OpenReader
	top bool

	name       string
	maxDoc     int
	fieldInfos *FieldInfos
	terms      *termInfosReader
	freqIn     *vfs.Input
	proxIn     *vfs.Input
	stored     *storedFieldsReader
	vectors    *termVectorsReader

	mu           sync.RWMutex
	info         *SegmentInfo
	deleted      atomic.Pointer[bitset.BitVector]
	norms        map[int][]byte
	deletesDirty bool
	dirtyNorms   map[int]bool

	closed syncutil.Once
}

func openSegmentReader(fs vfs.FileSystem, si *SegmentInfo) (sr *SegmentReader, err error) {
	r := &SegmentReader{
		fs:         fs,
		name:       si.Name,
		maxDoc:     si.DocCount,
		info:       si.Clone(),
		norms:      make(map[int][]byte),
		dirtyNorms: make(map[int]bool),
	}
	defer func() {
		if err != nil {
			r.closeFiles()
		}
	}()

	r.fieldInfos, err = readFieldInfos(fs, segmentFileName(si.Name, "fnm"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read field infos")
	}
	r.terms, err = openTermInfosReader(fs, si.Name, r.fieldInfos)
	if err != nil {
		return nil, err
	}
	r.freqIn, err = vfs.OpenInput(fs, segmentFileName(si.Name, "frq"))
	if err != nil {
		return nil, err
	}
	r.proxIn, err = vfs.OpenInput(fs, segmentFileName(si.Name, "prx"))
	if err != nil {
		return nil, err
	}
	r.stored, err = openStoredFieldsReader(fs, si.Name, r.fieldInfos, si.DocCount)
	if err != nil {
		return nil, err
	}
	if si.HasVectors {
		r.vectors, err = openTermVectorsReader(fs, si.Name, r.fieldInfos, si.DocCount)
		if err != nil {
			return nil, err
		}
	}

	if si.DelGen > 0 {
		name := delFileName(si.Name, si.DelGen)
		data, err := vfs.ReadFile(fs, name)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read deletions from %v", name)
		}
		deleted := &bitset.BitVector{}
		err = deleted.Read(bytes.NewReader(data))
		if err != nil {
			return nil, corruptf(name, "%v", err)
		}
		if deleted.Size() != si.DocCount || deleted.Count() != si.DelCount {
			return nil, corruptf(name, "expected %d of %d documents deleted, found %d of %d",
				si.DelCount, si.DocCount, deleted.Count(), deleted.Size())
		}
		r.deleted.Store(deleted)
	}

	for _, field := range si.NormFields {
		if r.fieldInfos.ByNumber(field) == nil {
			return nil, corruptf(segmentFileName(si.Name, "fnm"), "norms of unknown field %d", field)
		}
		r.norms[field], err = readNorms(fs, si.normsFile(field), si.DocCount)
		if err != nil {
			return nil, err
		}
	}

	return r, nil
}

func (r *SegmentReader) closeFiles() error {
	if r.freqIn != nil {
		r.freqIn.Close()
	}
	if r.proxIn != nil {
		r.proxIn.Close()
	}
	if r.terms != nil {
		r.terms.Close()
	}
	if r.stored != nil {
		r.stored.Close()
	}
	if r.vectors != nil {
		r.vectors.Close()
	}
	return nil
}

// Name returns the name of the segment.
func (r *SegmentReader) Name() string {
	return r.name
}

// Info returns a copy of the segment's metadata as of the last commit.
func (r *SegmentReader) Info() *SegmentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.info.Clone()
}

func (r *SegmentReader) FieldInfos() *FieldInfos {
	return r.fieldInfos
}

func (r *SegmentReader) MaxDoc() int {
	return r.maxDoc
}

func (r *SegmentReader) NumDocs() int {
	n := r.MaxDoc()
	if deleted := r.deleted.Load(); deleted != nil {
		n -= deleted.Count()
	}
	return n
}

func (r *SegmentReader) HasDeletions() bool {
	deleted := r.deleted.Load()
	return deleted != nil && deleted.Count() > 0
}

func (r *SegmentReader) IsDeleted(n int) bool {
	deleted := r.deleted.Load()
	return deleted != nil && deleted.Get(n)
}

func (r *SegmentReader) deletedDocs() *bitset.BitVector {
	return r.deleted.Load()
}

// Document returns the stored fields of a live document.
func (r *SegmentReader) Document(n int) (*document.Document, error) {
	if r.IsDeleted(n) {
		return nil, errors.Wrapf(ErrInvalidDocID, "doc %d is deleted", n)
	}
	return r.stored.doc(n)
}

// FieldNames returns the names of all fields in the segment, sorted.
func (r *SegmentReader) FieldNames() []string {
	names := make([]string, 0, r.fieldInfos.Len())
	for _, fi := range r.fieldInfos.Fields() {
		names = append(names, fi.Name)
	}
	sort.Strings(names)
	return names
}

func (r *SegmentReader) Terms() (TermEnum, error) {
	return r.terms.enum(), nil
}

// TermsFrom returns an enumerator whose first term is the first one >= t.
func (r *SegmentReader) TermsFrom(t Term) (TermEnum, error) {
	return r.terms.seek(t)
}

func (r *SegmentReader) DocFreq(t Term) (int, error) {
	ti, _, err := r.terms.Get(t)
	return ti.DocFreq, err
}

func (r *SegmentReader) postings(t Term, withPositions bool) (*segmentPostings, error) {
	ti, _, err := r.terms.Get(t)
	if err != nil {
		return nil, err
	}
	p := newSegmentPostings(r, withPositions)
	p.seek(ti)
	return p, nil
}

func (r *SegmentReader) TermDocs(t Term) (TermDocs, error) {
	return r.postings(t, false)
}

func (r *SegmentReader) TermPositions(t Term) (TermPositions, error) {
	return r.postings(t, true)
}

// TermVectors returns the term vectors of all fields of a document that store them.
func (r *SegmentReader) TermVectors(n int) ([]*TermVector, error) {
	if n < 0 || n >= r.MaxDoc() {
		return nil, errors.Wrapf(ErrInvalidDocID, "doc %d", n)
	}
	if r.vectors == nil {
		return nil, nil
	}
	return r.vectors.vectors(n)
}

// TermVector returns the term vector of one field, or nil if the field has none.
func (r *SegmentReader) TermVector(n int, field string) (*TermVector, error) {
	vectors, err := r.TermVectors(n)
	if err != nil {
		return nil, err
	}
	for _, tv := range vectors {
		if tv.Field == field {
			return tv, nil
		}
	}
	return nil, nil
}

// Norms returns the norm bytes of a field, or nil if the field has no norms.
// The returned slice must not be modified.
func (r *SegmentReader) Norms(field string) []byte {
	fi := r.fieldInfos.ByName(field)
	if fi == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.norms[fi.Number]
}

// startChange makes sure the reader may modify the index.
func (r *SegmentReader) startChange() error {
	if r.dir == nil {
		return nil
	}
	err := r.dir.acquireWriteLock()
	if err != nil {
		return err
	}
	r.dir.markChanged()
	return nil
}

// SetNorm changes the norm of a field in one document.
func (r *SegmentReader) SetNorm(n int, field string, value float64) error {
	err := r.startChange()
	if err != nil {
		return err
	}
	return r.setNorm(n, field, similarity.EncodeNorm(value))
}

func (r *SegmentReader) setNorm(n int, field string, norm byte) error {
	if n < 0 || n >= r.MaxDoc() {
		return errors.Wrapf(ErrInvalidDocID, "doc %d", n)
	}
	fi := r.fieldInfos.ByName(field)
	if fi == nil || !fi.HasNorms() {
		return errors.Errorf("field %q has no norms", field)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.norms[fi.Number]
	if !ok {
		old = fillNorms(make([]byte, r.MaxDoc()))
	}
	norms := make([]byte, len(old))
	copy(norms, old)
	norms[n] = norm
	r.norms[fi.Number] = norms
	r.dirtyNorms[fi.Number] = true
	return nil
}

// DeleteDocument marks a document as deleted.
func (r *SegmentReader) DeleteDocument(n int) error {
	if n < 0 || n >= r.MaxDoc() {
		return errors.Wrapf(ErrInvalidDocID, "doc %d", n)
	}
	err := r.startChange()
	if err != nil {
		return err
	}
	r.deleteDocs([]int{n})
	return nil
}

// DeleteDocuments deletes all documents containing the term and returns their number.
func (r *SegmentReader) DeleteDocuments(t Term) (int, error) {
	err := r.startChange()
	if err != nil {
		return 0, err
	}
	docs, err := r.collectDocs(t, NoMoreDocs)
	if err != nil {
		return 0, err
	}
	return r.deleteDocs(docs), nil
}

// collectDocs returns the live documents below limit that contain the term.
func (r *SegmentReader) collectDocs(t Term, limit int) ([]int, error) {
	p, err := r.postings(t, false)
	if err != nil {
		return nil, err
	}
	var docs []int
	for p.Next() && p.Doc() < limit {
		docs = append(docs, p.Doc())
	}
	return docs, p.Err()
}

// deleteDocs marks documents as deleted and returns how many were live.
func (r *SegmentReader) deleteDocs(docs []int) int {
	if len(docs) == 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted *bitset.BitVector
	if old := r.deleted.Load(); old != nil {
		deleted = old.Clone()
	} else {
		deleted = bitset.New(r.maxDoc)
	}
	n := deleted.Count()
	for _, doc := range docs {
		deleted.Set(doc)
	}
	n = deleted.Count() - n
	if n > 0 {
		r.deleted.Store(deleted)
		r.deletesDirty = true
	}
	return n
}

// UndeleteAll restores all deleted documents.
func (r *SegmentReader) UndeleteAll() error {
	err := r.startChange()
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.HasDeletions() {
		r.deleted.Store(bitset.New(r.maxDoc))
		r.deletesDirty = true
	}
	return nil
}

func (r *SegmentReader) hasChanges() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.deletesDirty || len(r.dirtyNorms) > 0
}

// writeChanges writes pending deletions and norms under new generations and returns
// the segment info that references them. The reader is not updated until commitChanges.
func (r *SegmentReader) writeChanges() (*SegmentInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	si := r.info.Clone()
	if r.deletesDirty {
		deleted := r.deleted.Load()
		si.DelGen++
		si.DelCount = deleted.Count()
		name := delFileName(si.Name, si.DelGen)
		err := vfs.WriteFile(r.fs, name, deleted.Write)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to write deletions to %v", name)
		}
	}
	for field := range r.dirtyNorms {
		if si.NormGens == nil {
			si.NormGens = make(map[int]int64)
		}
		si.NormGens[field]++
		name := separateNormsFileName(si.Name, si.NormGens[field], field)
		err := writeNorms(r.fs, name, r.norms[field])
		if err != nil {
			return nil, errors.Wrapf(err, "failed to write norms to %v", name)
		}
	}
	return si, nil
}

func (r *SegmentReader) commitChanges(si *SegmentInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.info = si
	r.deletesDirty = false
	r.dirtyNorms = make(map[int]bool)
}

func (r *SegmentReader) Leaves() []Leaf {
	return []Leaf{{Reader: r, Base: 0}}
}

// Commit writes the changes made through this reader as a new generation.
func (r *SegmentReader) Commit() error {
	if r.dir == nil {
		return nil
	}
	return r.dir.commit()
}

// IsCurrent returns true if no newer generation was committed since the reader was opened.
func (r *SegmentReader) IsCurrent() (bool, error) {
	if r.dir == nil {
		return true, nil
	}
	return r.dir.isCurrent()
}

func (r *SegmentReader) Generation() int64 {
	if r.dir == nil {
		return 0
	}
	return r.dir.generation()
}

// Close commits pending changes and releases the files. Sub-readers of a MultiReader
// are closed together with it.
func (r *SegmentReader) Close() error {
	if r.dir != nil {
		if !r.top {
			return nil
		}
		return r.dir.close()
	}
	return r.closed.Do(r.closeFiles)
}
