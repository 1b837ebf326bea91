//-------------------------------------------------------------------------
//
// pgEdge Librarian Server
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package bm25

import (
	"sort"
	"strings"
)

// Document is a unit of text to index. Fields are concatenated with spaces.
type Document struct {
	ID     string
	Fields []string
}

// Result is a scored document.
type Result struct {
	ID    string
	Score float64
}

type indexedDoc struct {
	id     string
	length int
	terms  map[string]int
}

// Index is a BM25 index over a fixed document set. It is never modified
// after Build and is safe for concurrent searches.
type Index struct {
	params   Params
	docs     []indexedDoc
	docFreqs map[string]int
	avgDL    float64
}

// Option configures Build.
type Option func(*Index)

// WithParams overrides the default K1 and B.
func WithParams(p Params) Option {
	return func(idx *Index) {
		idx.params = p
	}
}

// Build indexes docs. Later documents with a duplicate id are ignored.
func Build(docs []Document, opts ...Option) *Index {
	idx := &Index{
		params:   DefaultParams(),
		docs:     make([]indexedDoc, 0, len(docs)),
		docFreqs: make(map[string]int),
	}
	for _, opt := range opts {
		opt(idx)
	}

	seen := make(map[string]bool, len(docs))
	totalLen := 0
	for _, d := range docs {
		if seen[d.ID] {
			continue
		}
		seen[d.ID] = true

		terms, length := frequencies(strings.Join(d.Fields, " "))
		for term := range terms {
			idx.docFreqs[term]++
		}
		idx.docs = append(idx.docs, indexedDoc{id: d.ID, length: length, terms: terms})
		totalLen += length
	}

	if len(idx.docs) > 0 {
		idx.avgDL = float64(totalLen) / float64(len(idx.docs))
	}
	return idx
}

// Len returns the number of indexed documents.
func (idx *Index) Len() int {
	return len(idx.docs)
}

// Search returns up to limit documents with a positive score, best first.
// Equal scores keep the order in which documents were given to Build.
func (idx *Index) Search(query string, limit int) []Result {
	if len(idx.docs) == 0 || limit <= 0 {
		return nil
	}

	queryTerms, _ := frequencies(query)
	if len(queryTerms) == 0 {
		return nil
	}

	termIDF := make(map[string]float64, len(queryTerms))
	for term := range queryTerms {
		termIDF[term] = idf(len(idx.docs), idx.docFreqs[term])
	}

	var results []Result
	for _, d := range idx.docs {
		var score float64
		for term, w := range termIDF {
			score += idx.params.termScore(d.terms[term], d.length, idx.avgDL, w)
		}
		if score > 0 {
			results = append(results, Result{ID: d.id, Score: score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results
}
