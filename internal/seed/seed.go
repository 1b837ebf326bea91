//-------------------------------------------------------------------------
//
// pgEdge Librarian Server
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package seed loads the book corpus into the database.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/pgEdge/pgedge-librarian-server/internal/database"
	"github.com/pgEdge/pgedge-librarian-server/internal/llm"
)

// DefaultBatchSize is the number of books embedded per request.
const DefaultBatchSize = 64

// Store is the write side of the book table.
type Store interface {
	EnsureSchema(ctx context.Context, dims int, reset bool) error
	ExistingIDs(ctx context.Context) (map[string]bool, error)
	UpsertBooks(ctx context.Context, records []database.BookRecord) error
}

// Options controls a seeding run.
type Options struct {
	Dimensions int  // Embedding dimension of the table
	Reset      bool // Drop and recreate the table first
	Force      bool // Re-embed books that are already stored
	BatchSize  int
	Logger     *zap.Logger
}

// Report summarizes a seeding run.
type Report struct {
	Loaded   int
	Skipped  int
	Upserted int
}

// LoadBooks reads a JSON array of books. Every book needs an id and a title
// and ids must be unique. Themes are lower-cased and trimmed.
func LoadBooks(path string) ([]database.Book, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var books []database.Book
	if err := json.Unmarshal(data, &books); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	seen := make(map[string]bool, len(books))
	for i := range books {
		b := &books[i]
		b.ID = strings.TrimSpace(b.ID)
		if b.ID == "" || strings.TrimSpace(b.Title) == "" {
			return nil, fmt.Errorf("%s: book %d needs an id and a title", path, i+1)
		}
		if seen[b.ID] {
			return nil, fmt.Errorf("%s: duplicate book id %q", path, b.ID)
		}
		seen[b.ID] = true

		themes := b.Themes[:0]
		for _, t := range b.Themes {
			if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
				themes = append(themes, t)
			}
		}
		b.Themes = themes
	}
	return books, nil
}

// EmbedContent is the text embedded for a book.
func EmbedContent(b database.Book) string {
	return "Title: " + b.Title + "\nSummary: " + b.SummaryShort + "\nThemes: " + strings.Join(b.Themes, ", ")
}

// Run prepares the schema, embeds books in batches and upserts them.
func Run(
	ctx context.Context,
	store Store,
	embedder llm.EmbeddingProvider,
	books []database.Book,
	opts Options,
) (*Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	if err := store.EnsureSchema(ctx, opts.Dimensions, opts.Reset); err != nil {
		return nil, err
	}

	report := &Report{Loaded: len(books)}

	pending := books
	if !opts.Reset && !opts.Force {
		existing, err := store.ExistingIDs(ctx)
		if err != nil {
			return nil, err
		}
		pending = make([]database.Book, 0, len(books))
		for _, b := range books {
			if existing[b.ID] {
				report.Skipped++
				continue
			}
			pending = append(pending, b)
		}
	}

	for start := 0; start < len(pending); start += batchSize {
		end := min(start+batchSize, len(pending))
		batch := pending[start:end]

		texts := make([]string, len(batch))
		for i, b := range batch {
			texts[i] = EmbedContent(b)
		}

		vectors, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return report, fmt.Errorf("failed to embed books %d-%d: %w", start+1, end, err)
		}
		if len(vectors) != len(batch) {
			return report, fmt.Errorf("embedding returned %d vectors for %d books", len(vectors), len(batch))
		}

		records := make([]database.BookRecord, len(batch))
		for i, b := range batch {
			if len(vectors[i]) != opts.Dimensions {
				return report, fmt.Errorf("book %s: embedding has %d dimensions, expected %d",
					b.ID, len(vectors[i]), opts.Dimensions)
			}
			records[i] = database.BookRecord{Book: b, Embedding: vectors[i]}
		}

		if err := store.UpsertBooks(ctx, records); err != nil {
			return report, err
		}
		report.Upserted += len(records)

		logger.Info("seeded batch",
			zap.Int("from", start+1),
			zap.Int("to", end),
			zap.Int("total", len(pending)))
	}

	return report, nil
}
