//-------------------------------------------------------------------------
//
// pgEdge Librarian Server
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package database

import (
	"sort"
)

// DefaultRRFConstant is the default k constant for RRF ranking.
// A value of 60 is commonly used in practice.
const DefaultRRFConstant = 60

// RRFResult represents a result after RRF fusion.
type RRFResult struct {
	ID       string
	Score    float64
	VecRank  int // Rank in vector search results (0 if not present)
	BM25Rank int // Rank in BM25 results (0 if not present)
}

// ReciprocalRankFusion combines two rankings of ids using Reciprocal Rank
// Fusion (RRF).
//
// RRF formula: score = sum(1 / (k + rank)) for each ranking
// where k is a constant (default 60) and rank is 1-indexed.
//
// Results are sorted by combined score (highest first). Equal scores are
// ordered by vector rank, ids absent from the vector ranking last, and then
// by id.
func ReciprocalRankFusion(vectorIDs, bm25IDs []string, k float64) []RRFResult {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	resultMap := make(map[string]*RRFResult, len(vectorIDs)+len(bm25IDs))
	entry := func(id string) *RRFResult {
		r, ok := resultMap[id]
		if !ok {
			r = &RRFResult{ID: id}
			resultMap[id] = r
		}
		return r
	}

	for i, id := range vectorIDs {
		r := entry(id)
		if r.VecRank != 0 {
			continue
		}
		r.VecRank = i + 1
		r.Score += 1.0 / (k + float64(r.VecRank))
	}

	for i, id := range bm25IDs {
		r := entry(id)
		if r.BM25Rank != 0 {
			continue
		}
		r.BM25Rank = i + 1
		r.Score += 1.0 / (k + float64(r.BM25Rank))
	}

	results := make([]RRFResult, 0, len(resultMap))
	for _, r := range resultMap {
		results = append(results, *r)
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.VecRank != b.VecRank {
			if a.VecRank == 0 {
				return false
			}
			if b.VecRank == 0 {
				return true
			}
			return a.VecRank < b.VecRank
		}
		return a.ID < b.ID
	})

	return results
}
