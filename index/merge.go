// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package index

import (
	"log"
	"strings"
)

// Merge is a run of consecutive segments that are merged into one new segment.
type Merge struct {
	Segments []*SegmentInfo
	Size     int
}

func newMerge(segments []*SegmentInfo) *Merge {
	m := &Merge{Segments: segments}
	for _, si := range segments {
		m.Size += si.DocCount
	}
	return m
}

func (m *Merge) String() string {
	names := make([]string, len(m.Segments))
	for i, si := range m.Segments {
		names[i] = si.Name
	}
	return strings.Join(names, ",")
}

// MergePolicy determines which segments get merged.
type MergePolicy interface {
	// FindMerges returns the next merge needed to keep the number of segments bounded, or nil.
	FindMerges(segments []*SegmentInfo) *Merge

	// FindForcedMerge returns the next merge needed to reduce the index to a single clean segment, or nil.
	FindForcedMerge(segments []*SegmentInfo) *Merge
}

// LogMergePolicy groups segments into levels by document count. The first level holds
// segments of up to MinMergeDocs documents, each following level is MergeFactor times larger.
// When a level collects MergeFactor adjacent segments, they are merged into one segment
// that usually belongs to the next level.
type LogMergePolicy struct {
	// MergeFactor is the number of segments merged at once.
	MergeFactor int

	// MinMergeDocs is the upper bound of the first level, normally the flush size.
	MinMergeDocs int

	// MaxMergeDocs limits the levels considered for merging.
	MaxMergeDocs int

	Verbose bool
}

func NewLogMergePolicy(opts *Options) *LogMergePolicy {
	return &LogMergePolicy{
		MergeFactor:  opts.MergeFactor,
		MinMergeDocs: opts.MaxBufferedDocs,
		MaxMergeDocs: opts.MaxMergeDocs,
		Verbose:      opts.Verbose,
	}
}

// findLevel returns the segments at the end of the list whose doc counts fall into
// (lower, upper], stopping at the first segment that is larger than upper.
func (mp *LogMergePolicy) findLevel(segments []*SegmentInfo, lower, upper int) (int, int) {
	first, last := len(segments), -1
	for first--; first >= 0; first-- {
		docCount := segments[first].DocCount
		if last == -1 && docCount > lower && docCount <= upper {
			last = first
		} else if docCount > upper {
			break
		}
	}
	return first + 1, last + 1
}

func (mp *LogMergePolicy) FindMerges(segments []*SegmentInfo) *Merge {
	lower, upper := -1, mp.MinMergeDocs
	if upper < 1 {
		upper = 1
	}
	for level := 0; upper < mp.MaxMergeDocs; level++ {
		first, end := mp.findLevel(segments, lower, upper)
		count := end - first
		if mp.Verbose {
			log.Printf("FindMerges: level=%d lower=%d upper=%d segments=%d", level, lower, upper, count)
		}
		if count >= mp.MergeFactor {
			merge := newMerge(segments[first : first+mp.MergeFactor])
			if mp.Verbose {
				log.Printf("FindMerges: merge segments=%v size=%v", merge, merge.Size)
			}
			return merge
		}
		lower = upper
		upper *= mp.MergeFactor
	}
	return nil
}

func (mp *LogMergePolicy) FindForcedMerge(segments []*SegmentInfo) *Merge {
	n := len(segments)
	if n == 0 {
		return nil
	}
	if n == 1 {
		si := segments[0]
		if !si.HasDeletions() && !si.HasSeparateNorms() {
			return nil
		}
		return newMerge(segments)
	}
	start := n - mp.MergeFactor
	if start < 0 {
		start = 0
	}
	merge := newMerge(segments[start:])
	if mp.Verbose {
		log.Printf("FindForcedMerge: merge segments=%v size=%v", merge, merge.Size)
	}
	return merge
}
