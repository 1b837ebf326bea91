//-------------------------------------------------------------------------
//
// pgEdge Librarian Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package bm25 provides an immutable in-memory BM25 keyword index used to
// re-rank vector search candidates.
package bm25

import (
	"math"
)

// DefaultK1 is the default term frequency saturation parameter.
// Higher values mean term frequency has more impact.
const DefaultK1 = 1.2

// DefaultB is the default document length normalization parameter.
// B=0 means no normalization, B=1 means full normalization.
const DefaultB = 0.75

// Params holds the BM25 tuning constants.
type Params struct {
	K1 float64 // Term frequency saturation
	B  float64 // Document length normalization
}

// DefaultParams returns the commonly used K1=1.2, B=0.75.
func DefaultParams() Params {
	return Params{K1: DefaultK1, B: DefaultB}
}

// idf returns the Lucene/Elasticsearch variant of the BM25 IDF:
//
//	IDF(t) = log(1 + (N - df(t) + 0.5) / (df(t) + 0.5))
//
// which is never negative, even for terms present in every document.
func idf(docCount, docFreq int) float64 {
	if docCount == 0 || docFreq == 0 {
		return 0
	}
	n := float64(docCount)
	df := float64(docFreq)
	return math.Log(1 + (n-df+0.5)/(df+0.5))
}

// termScore returns the contribution of one query term to a document score.
func (p Params) termScore(tf, docLen int, avgDL, termIDF float64) float64 {
	if tf == 0 || termIDF == 0 {
		return 0
	}

	lengthNorm := 1 - p.B
	if avgDL > 0 {
		lengthNorm += p.B * float64(docLen) / avgDL
	}

	f := float64(tf)
	return termIDF * (f * (p.K1 + 1)) / (f + p.K1*lengthNorm)
}
