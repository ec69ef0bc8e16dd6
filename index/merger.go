// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package index

import (
	"github.com/acoustid/go-textindex/util/bitset"
	"github.com/acoustid/go-textindex/util/vfs"
	"github.com/pkg/errors"
)

// segmentMerger combines several segments into a new one, dropping deleted documents.
// Documents keep their relative order, doc ids of later segments shift down.
type segmentMerger struct {
	fs      vfs.FileSystem
	name    string
	opts    *Options
	readers []*SegmentReader

	fieldInfos *FieldInfos
	deleted    []*bitset.BitVector
	docMaps    [][]int
	starts     []int
	numDocs    int
	numTerms   int
}

func newSegmentMerger(fs vfs.FileSystem, name string, readers []*SegmentReader, opts *Options) *segmentMerger {
	return &segmentMerger{fs: fs, name: name, readers: readers, opts: opts}
}

// merge writes the new segment and returns its info.
func (m *segmentMerger) merge() (*SegmentInfo, error) {
	m.fieldInfos = NewFieldInfos()
	for _, r := range m.readers {
		m.fieldInfos.AddInfos(r.fieldInfos)
	}
	err := m.fieldInfos.write(m.fs, segmentFileName(m.name, "fnm"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to write field infos")
	}

	m.buildDocMaps()

	err = m.mergeStoredFields()
	if err != nil {
		return nil, errors.Wrap(err, "failed to merge stored fields")
	}

	si := &SegmentInfo{Name: m.name, DocCount: m.numDocs, HasVectors: m.fieldInfos.HasVectors()}
	if si.HasVectors {
		err = m.mergeVectors()
		if err != nil {
			return nil, errors.Wrap(err, "failed to merge term vectors")
		}
	}

	err = m.mergeTerms()
	if err != nil {
		return nil, errors.Wrap(err, "failed to merge postings")
	}

	si.NormFields, err = m.mergeNorms()
	if err != nil {
		return nil, errors.Wrap(err, "failed to merge norms")
	}
	return si, nil
}

// buildDocMaps snapshots the deletions and maps old doc ids of each segment to new ones.
func (m *segmentMerger) buildDocMaps() {
	m.deleted = make([]*bitset.BitVector, len(m.readers))
	m.docMaps = make([][]int, len(m.readers))
	m.starts = make([]int, len(m.readers))
	m.numDocs = 0
	for i, r := range m.readers {
		m.starts[i] = m.numDocs
		deleted := r.deletedDocs()
		if deleted == nil || deleted.Count() == 0 {
			m.numDocs += r.MaxDoc()
			continue
		}
		m.deleted[i] = deleted
		docMap := make([]int, r.MaxDoc())
		doc := 0
		for j := range docMap {
			if deleted.Get(j) {
				docMap[j] = -1
				continue
			}
			docMap[j] = doc
			doc++
		}
		m.docMaps[i] = docMap
		m.numDocs += doc
	}
}

func (m *segmentMerger) isDeleted(i, doc int) bool {
	return m.deleted[i] != nil && m.deleted[i].Get(doc)
}

func (m *segmentMerger) mergeStoredFields() error {
	w, err := newStoredFieldsWriter(m.fs, m.name, m.fieldInfos)
	if err != nil {
		return err
	}
	defer w.Close()
	for i, r := range m.readers {
		for doc := 0; doc < r.MaxDoc(); doc++ {
			if m.isDeleted(i, doc) {
				continue
			}
			fields, err := r.stored.rawDoc(doc)
			if err != nil {
				return errors.Wrapf(err, "failed to read doc %d of segment %v", doc, r.Name())
			}
			err = w.addDocument(fields)
			if err != nil {
				return err
			}
		}
	}
	return w.Commit()
}

func (m *segmentMerger) mergeVectors() error {
	w, err := newTermVectorsWriter(m.fs, m.name, m.fieldInfos)
	if err != nil {
		return err
	}
	defer w.Close()
	for i, r := range m.readers {
		for doc := 0; doc < r.MaxDoc(); doc++ {
			if m.isDeleted(i, doc) {
				continue
			}
			vectors, err := r.TermVectors(doc)
			if err != nil {
				return errors.Wrapf(err, "failed to read doc %d of segment %v", doc, r.Name())
			}
			err = w.addDocument(vectors)
			if err != nil {
				return err
			}
		}
	}
	return w.Commit()
}

// mergeTerms appends the postings of each term from all segments in segment order.
// Terms that only occur in deleted documents are left out.
func (m *segmentMerger) mergeTerms() error {
	w, err := newPostingsWriter(m.fs, m.name, m.fieldInfos, m.opts)
	if err != nil {
		return err
	}
	defer w.Close()

	enum, err := newMultiTermEnum(m.readers, m.starts, nil)
	if err != nil {
		return err
	}
	postings := make([]*segmentPostings, len(m.readers))
	var positions []int
	for enum.Next() {
		w.startTerm()
		for _, c := range enum.matches {
			p := postings[c.index]
			if p == nil {
				p = newSegmentPostings(c.reader, true)
				postings[c.index] = p
			}
			p.seek(c.enum.TermInfo())
			p.deleted = m.deleted[c.index]
			docMap := m.docMaps[c.index]
			for p.Next() {
				doc := p.Doc()
				if docMap != nil {
					doc = docMap[doc]
				}
				positions = positions[:0]
				for pos := p.NextPosition(); pos >= 0; pos = p.NextPosition() {
					positions = append(positions, pos)
				}
				if err := p.Err(); err != nil {
					return err
				}
				err = w.addDoc(m.starts[c.index]+doc, positions)
				if err != nil {
					return errors.Wrapf(err, "failed to merge postings of %v", enum.Term())
				}
			}
			if err := p.Err(); err != nil {
				return errors.Wrapf(err, "failed to read postings of %v from segment %v", enum.Term(), c.reader.Name())
			}
		}
		err = w.finishTerm(enum.Term())
		if err != nil {
			return err
		}
	}
	if err := enum.Err(); err != nil {
		return err
	}
	err = w.Commit()
	if err != nil {
		return err
	}
	m.numTerms = w.numTerms
	return nil
}

func (m *segmentMerger) mergeNorms() ([]int, error) {
	var normFields []int
	for _, fi := range m.fieldInfos.Fields() {
		if !fi.HasNorms() {
			continue
		}
		norms := make([]byte, 0, m.numDocs)
		for i, r := range m.readers {
			segNorms := r.Norms(fi.Name)
			for doc := 0; doc < r.MaxDoc(); doc++ {
				if m.isDeleted(i, doc) {
					continue
				}
				if segNorms == nil {
					norms = append(norms, defaultNorm)
				} else {
					norms = append(norms, segNorms[doc])
				}
			}
		}
		err := writeNorms(m.fs, normsFileName(m.name, fi.Number), norms)
		if err != nil {
			return nil, err
		}
		normFields = append(normFields, fi.Number)
	}
	return normFields, nil
}
