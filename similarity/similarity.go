// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

// Package similarity contains the scoring formula used for ranking documents.
package similarity

import (
	"math"
)

// Similarity computes the factors of a document's score.
type Similarity interface {
	// LengthNorm computes the normalization factor of a field with numTerms terms.
	// It is multiplied by the boosts and stored as a single byte norm.
	LengthNorm(field string, numTerms int) float64

	// QueryNorm makes scores of different queries comparable.
	QueryNorm(sumOfSquaredWeights float64) float64

	// Tf scores a term or phrase frequency within a document.
	Tf(freq float64) float64

	// SloppyFreq is the frequency contribution of a sloppy phrase match with the given edit distance.
	SloppyFreq(distance int) float64

	// Idf scores a term by the number of documents that contain it.
	Idf(docFreq, numDocs int) float64

	// Coord rewards documents matching more of the query's optional clauses.
	Coord(overlap, maxOverlap int) float64
}

// DefaultSimilarity is the classic tf-idf vector space model.
type DefaultSimilarity struct{}

// Default is the similarity used when none is configured.
var Default Similarity = DefaultSimilarity{}

func (DefaultSimilarity) LengthNorm(field string, numTerms int) float64 {
	if numTerms <= 0 {
		return 1
	}
	return 1 / math.Sqrt(float64(numTerms))
}

func (DefaultSimilarity) QueryNorm(sumOfSquaredWeights float64) float64 {
	if sumOfSquaredWeights <= 0 {
		return 1
	}
	return 1 / math.Sqrt(sumOfSquaredWeights)
}

func (DefaultSimilarity) Tf(freq float64) float64 {
	return math.Sqrt(freq)
}

func (DefaultSimilarity) SloppyFreq(distance int) float64 {
	return 1 / float64(distance+1)
}

func (DefaultSimilarity) Idf(docFreq, numDocs int) float64 {
	return math.Log(float64(numDocs)/float64(docFreq+1)) + 1
}

func (DefaultSimilarity) Coord(overlap, maxOverlap int) float64 {
	if maxOverlap == 0 {
		return 1
	}
	return float64(overlap) / float64(maxOverlap)
}

// IdfSum returns the summed idf of a set of document frequencies, used for phrases.
func IdfSum(sim Similarity, docFreqs []int, numDocs int) float64 {
	var idf float64
	for _, df := range docFreqs {
		idf += sim.Idf(df, numDocs)
	}
	return idf
}
