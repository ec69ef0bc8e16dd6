// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package index

import (
	"strconv"
	"strings"
)

const (
	segmentsPrefix  = "segments"
	segmentsGenFile = "segments.gen"
)

func formatGen(gen int64) string {
	return strconv.FormatInt(gen, 36)
}

func parseGen(s string) (int64, bool) {
	gen, err := strconv.ParseInt(s, 36, 64)
	if err != nil || gen < 0 {
		return 0, false
	}
	return gen, true
}

func segmentsFileName(gen int64) string {
	return segmentsPrefix + "_" + formatGen(gen)
}

// parseSegmentsFileName returns the generation of a segments_N file.
func parseSegmentsFileName(name string) (int64, bool) {
	if !strings.HasPrefix(name, segmentsPrefix+"_") {
		return 0, false
	}
	return parseGen(name[len(segmentsPrefix)+1:])
}

func segmentName(counter int) string {
	return "_" + strconv.FormatInt(int64(counter), 36)
}

func segmentFileName(segment, ext string) string {
	return segment + "." + ext
}

func delFileName(segment string, gen int64) string {
	return segment + "_" + formatGen(gen) + ".del"
}

func normsFileName(segment string, field int) string {
	return segment + ".f" + strconv.Itoa(field)
}

func separateNormsFileName(segment string, gen int64, field int) string {
	return segment + "_" + formatGen(gen) + ".s" + strconv.Itoa(field)
}

// fileSegment returns the segment name a file belongs to, or an empty string.
func fileSegment(name string) string {
	if !strings.HasPrefix(name, "_") {
		return ""
	}
	end := strings.IndexAny(name[1:], "_.")
	if end < 0 {
		return ""
	}
	return name[:end+1]
}

func commonPrefix(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
