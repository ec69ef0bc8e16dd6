// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package index

import (
	"log"
	"sync"
	"time"

	"github.com/acoustid/go-textindex/document"
	"github.com/acoustid/go-textindex/util/vfs"
	"github.com/pkg/errors"
)

// Writer adds and deletes documents. Only one writer can be open for an index at a time,
// it holds the write lock until it is closed.
//
// Added documents are buffered in memory and written as a new segment every
// MaxBufferedDocs documents. Each flush and each merge is committed as a new generation.
type Writer struct {
	fs        vfs.FileSystem
	opts      Options
	writeLock vfs.Lock
	policy    MergePolicy
	deleter   *fileDeleter

	mu     sync.Mutex
	infos  *SegmentInfos
	docs   *documentsWriter
	closed bool
	// pending deletes, each applies to buffered documents added before it was issued
	deletes map[Term]int
}

// OpenWriter opens the index for writing. If create is true, a new empty index is
// created, replacing any existing content.
func OpenWriter(fs vfs.FileSystem, create bool, opts Options) (*Writer, error) {
	err := opts.Validate()
	if err != nil {
		return nil, errors.Wrap(err, "invalid options")
	}

	lock := fs.Lock(WriteLockName)
	err = vfs.Obtain(lock, opts.WriteLockTimeout)
	if err != nil {
		return nil, errors.Wrap(err, "failed to lock the index")
	}

	w := &Writer{
		fs:        fs,
		opts:      opts,
		writeLock: lock,
		policy:    NewLogMergePolicy(&opts),
		deleter:   newFileDeleter(fs, opts.KeepCommits),
		docs:      newDocumentsWriter(&opts),
		deletes:   make(map[Term]int),
	}

	infos, err := readLatestSegmentInfos(fs)
	if err != nil {
		if !create || !errors.Is(err, ErrIndexNotFound) {
			lock.Unlock()
			return nil, errors.Wrap(err, "failed to open the index")
		}
		infos = &SegmentInfos{}
	}
	if create {
		infos.Segments = nil
		err = w.commit(infos)
		if err != nil {
			lock.Unlock()
			return nil, errors.Wrap(err, "failed to create the index")
		}
		log.Printf("created index in %v (generation=%d)", fs, infos.Generation)
	} else {
		w.infos = infos
		// clean up after a writer that did not finish
		w.deleter.deleteUnused()
	}
	return w, nil
}

// commit publishes infos as the next generation.
func (w *Writer) commit(infos *SegmentInfos) error {
	err := vfs.With(w.fs.Lock(CommitLockName), w.opts.CommitLockTimeout, func() error {
		return infos.commit(w.fs)
	})
	if err != nil {
		return err
	}
	w.infos = infos
	log.Printf("committed generation %d (segments=%d, docs=%d)", infos.Generation, len(infos.Segments), infos.NumDocs())
	w.deleter.deleteUnused()
	return nil
}

// AddDocument buffers a document. It is searchable after the next flush.
func (w *Writer) AddDocument(doc *document.Document) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrAlreadyClosed
	}
	err := w.docs.addDocument(doc)
	if err != nil {
		return errors.Wrap(err, "failed to add document")
	}
	if w.docs.numDocs >= w.opts.MaxBufferedDocs {
		return w.flush(true)
	}
	return nil
}

// DeleteDocuments deletes all documents containing any of the terms, including
// buffered documents added before this call.
func (w *Writer) DeleteDocuments(terms ...Term) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrAlreadyClosed
	}
	for _, t := range terms {
		w.deletes[t] = w.docs.numDocs
	}
	return nil
}

// UpdateDocument replaces the documents containing the term with doc.
func (w *Writer) UpdateDocument(t Term, doc *document.Document) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrAlreadyClosed
	}
	w.deletes[t] = w.docs.numDocs
	err := w.docs.addDocument(doc)
	if err != nil {
		return errors.Wrap(err, "failed to add document")
	}
	if w.docs.numDocs >= w.opts.MaxBufferedDocs {
		return w.flush(true)
	}
	return nil
}

// Commit flushes buffered documents and deletes and runs the merges they trigger.
func (w *Writer) Commit() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrAlreadyClosed
	}
	return w.flush(true)
}

// Flush is an alias of Commit.
func (w *Writer) Flush() error {
	return w.Commit()
}

func (w *Writer) flush(triggerMerge bool) error {
	if w.docs.numDocs == 0 && len(w.deletes) == 0 {
		return nil
	}
	started := time.Now()
	infos := w.infos.Clone()

	var flushed *SegmentInfo
	if w.docs.numDocs > 0 {
		name := infos.newSegmentName()
		si, stats, err := w.docs.flush(w.fs, name, &w.opts)
		if err != nil {
			return errors.Wrapf(err, "failed to flush segment %v", name)
		}
		log.Printf("flushed segment %v (docs=%d, terms=%d, duration=%s)", name, si.DocCount, stats.numTerms, time.Since(started))
		infos.Segments = append(infos.Segments, si)
		flushed = si
	}

	if len(w.deletes) > 0 {
		deleted, err := w.applyDeletes(infos, flushed)
		if err != nil {
			return err
		}
		log.Printf("applied %d buffered deletes (docs=%d)", len(w.deletes), deleted)
	}

	err := w.commit(infos)
	if err != nil {
		return errors.Wrap(err, "commit failed")
	}
	w.docs.reset()
	w.deletes = make(map[Term]int)

	if triggerMerge {
		return w.maybeMerge()
	}
	return nil
}

// applyDeletes deletes documents matching the buffered delete terms. In the just flushed
// segment only documents added before the delete are affected.
func (w *Writer) applyDeletes(infos *SegmentInfos, flushed *SegmentInfo) (int, error) {
	total := 0
	for i, si := range infos.Segments {
		r, err := openSegmentReader(w.fs, si)
		if err != nil {
			return total, errors.Wrapf(err, "failed to open segment %v", si.Name)
		}
		for t, limit := range w.deletes {
			if si != flushed {
				limit = NoMoreDocs
			}
			if limit == 0 {
				continue
			}
			docs, err := r.collectDocs(t, limit)
			if err != nil {
				r.closeFiles()
				return total, errors.Wrapf(err, "failed to delete %v from segment %v", t, si.Name)
			}
			total += r.deleteDocs(docs)
		}
		if r.hasChanges() {
			infos.Segments[i], err = r.writeChanges()
			if err != nil {
				r.closeFiles()
				return total, err
			}
		}
		r.closeFiles()
	}
	return total, nil
}

func (w *Writer) maybeMerge() error {
	for {
		merge := w.policy.FindMerges(w.infos.Segments)
		if merge == nil {
			return nil
		}
		err := w.runMerge(merge)
		if err != nil {
			return err
		}
	}
}

// runMerge merges the segments and commits the result.
func (w *Writer) runMerge(merge *Merge) error {
	started := time.Now()
	infos := w.infos.Clone()
	name := infos.newSegmentName()

	readers := make([]*SegmentReader, 0, len(merge.Segments))
	defer func() {
		for _, r := range readers {
			r.closeFiles()
		}
	}()
	for _, si := range merge.Segments {
		r, err := openSegmentReader(w.fs, si)
		if err != nil {
			return errors.Wrapf(err, "failed to open segment %v for merging", si.Name)
		}
		readers = append(readers, r)
	}

	merger := newSegmentMerger(w.fs, name, readers, &w.opts)
	merged, err := merger.merge()
	if err != nil {
		return errors.Wrapf(err, "failed to merge segments %v", merge)
	}

	start := -1
	for i, si := range infos.Segments {
		if si.Name == merge.Segments[0].Name {
			start = i
			break
		}
	}
	if start < 0 || start+len(merge.Segments) > len(infos.Segments) {
		return errors.Errorf("merged segments %v are not in the index", merge)
	}
	segments := append([]*SegmentInfo(nil), infos.Segments[:start]...)
	if merged.DocCount > 0 {
		segments = append(segments, merged)
	}
	infos.Segments = append(segments, infos.Segments[start+len(merge.Segments):]...)

	err = w.commit(infos)
	if err != nil {
		return errors.Wrap(err, "commit failed")
	}
	log.Printf("merged segments %v into %v (docs=%d, terms=%d, duration=%s)", merge, name, merged.DocCount, merger.numTerms, time.Since(started))
	return nil
}

// Optimize merges all segments into one, removing deleted documents.
func (w *Writer) Optimize() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrAlreadyClosed
	}
	err := w.flush(false)
	if err != nil {
		return err
	}
	for {
		merge := w.policy.FindForcedMerge(w.infos.Segments)
		if merge == nil {
			return nil
		}
		err = w.runMerge(merge)
		if err != nil {
			return err
		}
	}
}

// NumDocs returns the number of live documents, including buffered ones.
func (w *Writer) NumDocs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.infos.NumDocs() + w.docs.numDocs
}

// MaxDoc returns the number of documents, including deleted and buffered ones.
func (w *Writer) MaxDoc() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.infos.MaxDoc() + w.docs.numDocs
}

func (w *Writer) SegmentCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.infos.Segments)
}

// Segments returns a copy of the committed segment list.
func (w *Writer) Segments() []*SegmentInfo {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.infos.Clone().Segments
}

func (w *Writer) Generation() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.infos.Generation
}

// Close commits buffered changes and releases the write lock.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	err := w.flush(true)
	w.closed = true
	w.writeLock.Unlock()
	return err
}
