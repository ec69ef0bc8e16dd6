// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

// Package index implements a segmented inverted index of text documents.
//
// Documents added to a Writer are inverted into postings, buffered in memory and
// periodically flushed to new immutable segments. Segments of similar size are merged
// together in the background of a flush. The list of live segments is stored in
// versioned segments_N files, a reader opened on the index sees the generation that
// was the latest when it was opened.
//
// Files of a segment:
//
//	.fnm        field names and flags
//	.tis, .tii  term dictionary and its sampled in-memory index
//	.frq        doc ids and term frequencies, with skip lists
//	.prx        term positions
//	.fdx, .fdt  stored fields
//	.tvx, .tvf  term vectors
//	.fN         norms of field N
//	_G.sN       norms of field N changed in generation G
//	_G.del      deleted documents as of generation G
package index
