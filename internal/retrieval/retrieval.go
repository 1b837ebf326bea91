//-------------------------------------------------------------------------
//
// pgEdge Librarian Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package retrieval finds the books that ground a recommendation. It embeds
// queries, runs the vector search, fuses it with BM25 keyword ranking over
// the shelf and resolves exact-title detail lookups for the tool executor.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/pgEdge/pgedge-librarian-server/internal/bm25"
	"github.com/pgEdge/pgedge-librarian-server/internal/database"
	"github.com/pgEdge/pgedge-librarian-server/internal/failure"
	"github.com/pgEdge/pgedge-librarian-server/internal/llm"
	"github.com/pgEdge/pgedge-librarian-server/internal/observe"
)

// NoDetailSentinel is returned when no book has the requested title.
const NoDetailSentinel = "No detailed summary found for this title."

// Candidate is a ranked search hit. The long summary is never part of it.
type Candidate struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	ShortSummary string   `json:"summary_short"`
	Themes       []string `json:"themes"`
}

// Store is the read side of the book table.
type Store interface {
	VectorSearch(ctx context.Context, embedding []float32, limit int, themes []string) ([]database.Book, error)
	FetchCandidates(ctx context.Context, themes []string) ([]database.Book, error)
	LookupSummaryByTitle(ctx context.Context, title string) (string, bool, error)
}

// Config contains the dependencies of an Engine.
type Config struct {
	Embedder    llm.EmbeddingProvider
	Store       Store
	Dimensions  int     // Expected embedding length; 0 disables the check
	Hybrid      bool    // Fuse BM25 keyword ranking with vector ranking
	RRFConstant float64 // k in 1/(k+rank); 0 means database.DefaultRRFConstant
	Reporter    observe.Reporter
}

// Engine runs embedding, search and detail lookups.
type Engine struct {
	embedder llm.EmbeddingProvider
	store    Store
	dims     int
	hybrid   bool
	rrfK     float64
	reporter observe.Reporter
}

// NewEngine creates a retrieval engine.
func NewEngine(cfg Config) *Engine {
	reporter := cfg.Reporter
	if reporter == nil {
		reporter = observe.Nop()
	}
	rrfK := cfg.RRFConstant
	if rrfK <= 0 {
		rrfK = database.DefaultRRFConstant
	}

	return &Engine{
		embedder: cfg.Embedder,
		store:    cfg.Store,
		dims:     cfg.Dimensions,
		hybrid:   cfg.Hybrid,
		rrfK:     rrfK,
		reporter: reporter,
	}
}

// Embed returns the query embedding. A provider error, an empty vector or a
// vector of the wrong length is EmbeddingUnavailable.
func (e *Engine) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, e.fail(ctx, observe.StageEmbedding, failure.New(failure.EmbeddingUnavailable, "embed", err))
	}
	if len(vec) == 0 {
		return nil, e.fail(ctx, observe.StageEmbedding,
			failure.Newf(failure.EmbeddingUnavailable, "embed", "provider returned an empty embedding"))
	}
	if e.dims > 0 && len(vec) != e.dims {
		return nil, e.fail(ctx, observe.StageEmbedding,
			failure.Newf(failure.EmbeddingUnavailable, "embed",
				"embedding has %d dimensions, expected %d", len(vec), e.dims))
	}

	e.reporter.Report(ctx, observe.Event{
		Stage: observe.StageEmbedding,
		Attrs: map[string]any{"model": e.embedder.ModelName(), "dimensions": len(vec)},
	})
	return vec, nil
}

// SearchOption adjusts a single search.
type SearchOption func(*searchOptions)

type searchOptions struct {
	themes []string
}

// WithThemes restricts the search to books sharing at least one theme.
func WithThemes(themes ...string) SearchOption {
	return func(o *searchOptions) {
		o.themes = append(o.themes, themes...)
	}
}

// Search returns up to k candidates for the query. The vector search
// supplies the 2k nearest books. With hybrid ranking enabled the 2k best BM25
// matches over title, short summary and themes of every book passing the
// theme filter are fused with them, so keyword-only matches can surface.
func (e *Engine) Search(
	ctx context.Context,
	vector []float32,
	text string,
	k int,
	opts ...SearchOption,
) ([]Candidate, error) {
	if k <= 0 {
		return nil, nil
	}

	var so searchOptions
	for _, opt := range opts {
		opt(&so)
	}

	books, err := e.store.VectorSearch(ctx, vector, 2*k, so.themes)
	if err != nil {
		return nil, e.fail(ctx, observe.StageRetrieval, failure.New(failure.RetrievalFailed, "vector_search", err))
	}

	ranked := books
	keyword := 0
	if e.hybrid {
		pool, err := e.store.FetchCandidates(ctx, so.themes)
		if err != nil {
			return nil, e.fail(ctx, observe.StageRetrieval, failure.New(failure.RetrievalFailed, "keyword_search", err))
		}
		kw := keywordRank(pool, text, 2*k)
		keyword = len(kw)
		ranked = e.fuse(books, kw)
	}
	if len(ranked) > k {
		ranked = ranked[:k]
	}

	candidates := make([]Candidate, len(ranked))
	for i, b := range ranked {
		candidates[i] = Candidate{
			ID:           b.ID,
			Title:        b.Title,
			ShortSummary: b.SummaryShort,
			Themes:       b.Themes,
		}
	}

	e.reporter.Report(ctx, observe.Event{
		Stage: observe.StageRetrieval,
		Attrs: map[string]any{
			"requested":  k,
			"vector":     len(books),
			"keyword":    keyword,
			"returned":   len(candidates),
			"hybrid":     e.hybrid,
			"themes":     so.themes,
			"candidates": candidateIDs(candidates),
		},
	})
	return candidates, nil
}

// keywordRank returns up to limit books of pool ordered by BM25 relevance to
// text. Books without a matching term are left out.
func keywordRank(pool []database.Book, text string, limit int) []database.Book {
	if len(pool) == 0 {
		return nil
	}

	docs := make([]bm25.Document, len(pool))
	byID := make(map[string]database.Book, len(pool))
	for i, b := range pool {
		docs[i] = bm25.Document{
			ID:     b.ID,
			Fields: []string{b.Title, b.SummaryShort, strings.Join(b.Themes, " ")},
		}
		byID[b.ID] = b
	}

	hits := bm25.Build(docs).Search(text, limit)
	out := make([]database.Book, len(hits))
	for i, h := range hits {
		out[i] = byID[h.ID]
	}
	return out
}

// fuse merges the vector and keyword rankings by reciprocal rank fusion. The
// result holds every book of either list.
func (e *Engine) fuse(vector, keyword []database.Book) []database.Book {
	if len(keyword) == 0 {
		return vector
	}

	byID := make(map[string]database.Book, len(vector)+len(keyword))
	vecIDs := make([]string, len(vector))
	for i, b := range vector {
		byID[b.ID] = b
		vecIDs[i] = b.ID
	}
	kwIDs := make([]string, len(keyword))
	for i, b := range keyword {
		if _, ok := byID[b.ID]; !ok {
			byID[b.ID] = b
		}
		kwIDs[i] = b.ID
	}

	fused := database.ReciprocalRankFusion(vecIDs, kwIDs, e.rrfK)
	out := make([]database.Book, 0, len(fused))
	for _, r := range fused {
		out = append(out, byID[r.ID])
	}
	return out
}

// LookupDetailByExactTitle returns the long summary of the book with exactly
// this title, or NoDetailSentinel. It never fails: store errors are reported
// and produce the sentinel.
func (e *Engine) LookupDetailByExactTitle(ctx context.Context, title string) string {
	if title == "" {
		return NoDetailSentinel
	}

	summary, found, err := e.store.LookupSummaryByTitle(ctx, title)
	if err != nil {
		e.reporter.Report(ctx, observe.Event{
			Stage: observe.StageToolCall,
			Attrs: map[string]any{"title": title},
			Err:   fmt.Errorf("detail lookup: %w", err),
		})
		return NoDetailSentinel
	}
	if !found {
		return NoDetailSentinel
	}
	return summary
}

func (e *Engine) fail(ctx context.Context, stage observe.Stage, err error) error {
	e.reporter.Report(ctx, observe.Event{Stage: stage, Err: err})
	return err
}

func candidateIDs(cs []Candidate) []string {
	ids := make([]string, len(cs))
	for i, c := range cs {
		ids[i] = c.ID
	}
	return ids
}
