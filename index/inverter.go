// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package index

import (
	"github.com/acoustid/go-textindex/analysis"
	"github.com/acoustid/go-textindex/document"
	"github.com/acoustid/go-textindex/similarity"
	"github.com/acoustid/go-textindex/util/vfs"
	"github.com/pkg/errors"
	"go4.org/sort"
)

type postingList struct {
	docs      []int
	positions [][]int
}

// documentsWriter inverts added documents in memory until they are flushed as a segment.
type documentsWriter struct {
	analyzer       analysis.Analyzer
	similarity     similarity.Similarity
	maxFieldLength int

	fieldInfos *FieldInfos
	postings   map[Term]*postingList
	stored     [][]storedField
	vectors    [][]*TermVector
	norms      map[string][]byte
	numDocs    int
}

func newDocumentsWriter(opts *Options) *documentsWriter {
	w := &documentsWriter{
		analyzer:       opts.analyzer(),
		similarity:     opts.similarity(),
		maxFieldLength: opts.MaxFieldLength,
	}
	w.reset()
	return w
}

func (w *documentsWriter) reset() {
	w.fieldInfos = NewFieldInfos()
	w.postings = make(map[Term]*postingList)
	w.stored = nil
	w.vectors = nil
	w.norms = make(map[string][]byte)
	w.numDocs = 0
}

func boostOf(boost float64) float64 {
	if boost == 0 {
		return 1
	}
	return boost
}

func (w *documentsWriter) addPosition(t Term, doc, pos int) {
	pl, ok := w.postings[t]
	if !ok {
		pl = &postingList{}
		w.postings[t] = pl
	}
	n := len(pl.docs)
	if n == 0 || pl.docs[n-1] != doc {
		pl.docs = append(pl.docs, doc)
		pl.positions = append(pl.positions, []int{pos})
		return
	}
	pl.positions[n-1] = append(pl.positions[n-1], pos)
}

// addDocument inverts a document. Terms of a field beyond MaxFieldLength are dropped.
func (w *documentsWriter) addDocument(doc *document.Document) error {
	docID := w.numDocs
	positions := make(map[string]int)
	lengths := make(map[string]int)
	boosts := make(map[string]float64)
	vectorTerms := make(map[string]map[string][]int)
	vectorPositions := make(map[string]bool)
	var fieldOrder []string

	for _, f := range doc.Fields {
		if f.Name == "" {
			return errors.New("field without a name")
		}
		w.fieldInfos.AddField(f)
		if _, seen := boosts[f.Name]; !seen {
			boosts[f.Name] = boostOf(doc.Boost)
			fieldOrder = append(fieldOrder, f.Name)
		}
		boosts[f.Name] *= boostOf(f.Boost)
		if !f.Indexed {
			continue
		}

		var terms map[string][]int
		if f.TermVector != document.TermVectorNo {
			terms = vectorTerms[f.Name]
			if terms == nil {
				terms = make(map[string][]int)
				vectorTerms[f.Name] = terms
			}
			if f.TermVector == document.TermVectorWithPositions {
				vectorPositions[f.Name] = true
			}
		}

		pos := positions[f.Name]
		length := lengths[f.Name]
		add := func(text string) {
			w.addPosition(Term{Field: f.Name, Text: text}, docID, pos)
			if terms != nil {
				terms[text] = append(terms[text], pos)
			}
			pos++
			length++
		}
		if !f.Tokenized {
			add(f.Value)
		} else {
			for _, token := range w.analyzer.Analyze(f.Name, f.Value) {
				if length >= w.maxFieldLength {
					break
				}
				pos += token.PosInc - 1
				if pos < 0 {
					pos = 0
				}
				add(token.Text)
			}
		}
		positions[f.Name] = pos
		lengths[f.Name] = length
	}

	for _, name := range fieldOrder {
		fi := w.fieldInfos.ByName(name)
		if !fi.HasNorms() {
			continue
		}
		norm := boosts[name] * w.similarity.LengthNorm(name, lengths[name])
		norms := w.norms[name]
		for len(norms) < docID {
			norms = append(norms, defaultNorm)
		}
		w.norms[name] = append(norms, similarity.EncodeNorm(norm))
	}

	var vectors []*TermVector
	for _, name := range fieldOrder {
		terms, ok := vectorTerms[name]
		if !ok {
			continue
		}
		tv := &TermVector{Field: name}
		for text := range terms {
			tv.Terms = append(tv.Terms, text)
		}
		sort.Strings(tv.Terms)
		if vectorPositions[name] {
			tv.Positions = make([][]int, len(tv.Terms))
		}
		for i, text := range tv.Terms {
			tv.Freqs = append(tv.Freqs, len(terms[text]))
			if tv.Positions != nil {
				tv.Positions[i] = terms[text]
			}
		}
		vectors = append(vectors, tv)
	}

	w.stored = append(w.stored, storedFieldsOf(doc))
	w.vectors = append(w.vectors, vectors)
	w.numDocs++
	return nil
}

type flushStats struct {
	numTerms int
}

// flush writes the buffered documents as a new segment.
func (w *documentsWriter) flush(fs vfs.FileSystem, name string, opts *Options) (*SegmentInfo, flushStats, error) {
	var stats flushStats
	si := &SegmentInfo{Name: name, DocCount: w.numDocs, HasVectors: w.fieldInfos.HasVectors()}

	err := w.fieldInfos.write(fs, segmentFileName(name, "fnm"))
	if err != nil {
		return nil, stats, errors.Wrap(err, "failed to write field infos")
	}

	err = w.writeStoredFields(fs, name)
	if err != nil {
		return nil, stats, err
	}

	if si.HasVectors {
		err = w.writeVectors(fs, name)
		if err != nil {
			return nil, stats, err
		}
	}

	stats.numTerms, err = w.writePostings(fs, name, opts)
	if err != nil {
		return nil, stats, err
	}

	for _, fi := range w.fieldInfos.Fields() {
		if !fi.HasNorms() {
			continue
		}
		norms := w.norms[fi.Name]
		for len(norms) < w.numDocs {
			norms = append(norms, defaultNorm)
		}
		err = writeNorms(fs, normsFileName(name, fi.Number), norms)
		if err != nil {
			return nil, stats, errors.Wrapf(err, "failed to write norms of field %v", fi.Name)
		}
		si.NormFields = append(si.NormFields, fi.Number)
	}

	return si, stats, nil
}

func (w *documentsWriter) writeStoredFields(fs vfs.FileSystem, name string) error {
	sw, err := newStoredFieldsWriter(fs, name, w.fieldInfos)
	if err != nil {
		return err
	}
	defer sw.Close()
	for _, fields := range w.stored {
		err = sw.addDocument(fields)
		if err != nil {
			return err
		}
	}
	return sw.Commit()
}

func (w *documentsWriter) writeVectors(fs vfs.FileSystem, name string) error {
	tw, err := newTermVectorsWriter(fs, name, w.fieldInfos)
	if err != nil {
		return err
	}
	defer tw.Close()
	for _, vectors := range w.vectors {
		err = tw.addDocument(vectors)
		if err != nil {
			return err
		}
	}
	return tw.Commit()
}

func (w *documentsWriter) writePostings(fs vfs.FileSystem, name string, opts *Options) (int, error) {
	terms := make([]Term, 0, len(w.postings))
	for t := range w.postings {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool { return terms[i].Less(terms[j]) })

	pw, err := newPostingsWriter(fs, name, w.fieldInfos, opts)
	if err != nil {
		return 0, err
	}
	defer pw.Close()
	for _, t := range terms {
		pl := w.postings[t]
		pw.startTerm()
		for i, doc := range pl.docs {
			err = pw.addDoc(doc, pl.positions[i])
			if err != nil {
				return 0, errors.Wrapf(err, "failed to write postings of %v", t)
			}
		}
		err = pw.finishTerm(t)
		if err != nil {
			return 0, errors.Wrapf(err, "failed to write postings of %v", t)
		}
	}
	err = pw.Commit()
	if err != nil {
		return 0, err
	}
	return pw.numTerms, nil
}
