// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package search

import (
	"github.com/acoustid/go-textindex/index"
	"go4.org/sort"
)

func sortTerms(terms []index.Term) {
	sort.Slice(terms, func(i, j int) bool { return terms[i].Less(terms[j]) })
}

func sortInts(a []int) {
	sort.Slice(a, func(i, j int) bool { return a[i] < a[j] })
}
