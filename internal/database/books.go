//-------------------------------------------------------------------------
//
// pgEdge Librarian Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/pgEdge/pgedge-librarian-server/internal/config"
)

// maxIndexedDimensions is the largest vector the hnsw index supports.
const maxIndexedDimensions = 2000

// Book is a stored book summary.
type Book struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	SummaryShort string   `json:"summary_short"`
	SummaryLong  string   `json:"summary_long"`
	Themes       []string `json:"themes"`
}

// BookRecord is a book together with its embedding, as written by seeding.
type BookRecord struct {
	Book
	Embedding []float32
}

// querier is the subset of pgxpool.Pool used by the store.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Books is the book table described by the library configuration.
type Books struct {
	db  querier
	lib config.LibraryConfig
}

// NewBooks creates a store over the pool.
func NewBooks(pool *Pool, lib config.LibraryConfig) *Books {
	return &Books{db: pool.Pool(), lib: lib}
}

// parseTableIdentifier splits a table name into schema and table parts.
// Supports formats: "table", "schema.table"
func parseTableIdentifier(table string) pgx.Identifier {
	parts := strings.Split(table, ".")
	return pgx.Identifier(parts)
}

// ident sanitizes a column name.
func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func (b *Books) table() string {
	return parseTableIdentifier(b.lib.Table).Sanitize()
}

// vectorSearchSQL builds the nearest-neighbour query. $1 is the query vector,
// $2 the limit and $3, when themes are given, the theme list.
func vectorSearchSQL(lib config.LibraryConfig, withThemes bool) string {
	c := lib.Columns
	where := ""
	if withThemes {
		where = "\n\t\tWHERE " + themesClause(c.Themes, 3)
	}
	return fmt.Sprintf(`
		SELECT %s, %s, %s, %s
		FROM %s%s
		ORDER BY %s <=> $1::vector, %s
		LIMIT $2`,
		ident(c.ID), ident(c.Title), ident(c.SummaryShort), ident(c.Themes),
		parseTableIdentifier(lib.Table).Sanitize(), where,
		ident(c.Embedding), ident(c.ID),
	)
}

// VectorSearch returns up to limit books ordered by cosine distance to the
// embedding (nearest first, ties by id). SummaryLong is not loaded. When
// themes is non-empty only books sharing at least one theme are considered.
func (b *Books) VectorSearch(
	ctx context.Context,
	embedding []float32,
	limit int,
	themes []string,
) ([]Book, error) {
	themes = normalizeThemes(themes)

	args := []any{pgvector.NewVector(embedding), limit}
	if len(themes) > 0 {
		args = append(args, themes)
	}

	rows, err := b.db.Query(ctx, vectorSearchSQL(b.lib, len(themes) > 0), args...)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	var results []Book
	for rows.Next() {
		var bk Book
		if err := rows.Scan(&bk.ID, &bk.Title, &bk.SummaryShort, &bk.Themes); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, bk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return results, nil
}

// candidatesSQL builds the keyword-side read: every book's searchable text,
// ordered by id. $1, when themes are given, is the theme list.
func candidatesSQL(lib config.LibraryConfig, withThemes bool) string {
	c := lib.Columns
	where := ""
	if withThemes {
		where = "\n\t\tWHERE " + themesClause(c.Themes, 1)
	}
	return fmt.Sprintf(`
		SELECT %s, %s, %s, %s
		FROM %s%s
		ORDER BY %s`,
		ident(c.ID), ident(c.Title), ident(c.SummaryShort), ident(c.Themes),
		parseTableIdentifier(lib.Table).Sanitize(), where,
		ident(c.ID),
	)
}

// FetchCandidates returns the books keyword ranking is built over, with the
// same theme filter as VectorSearch. SummaryLong is not loaded.
func (b *Books) FetchCandidates(ctx context.Context, themes []string) ([]Book, error) {
	themes = normalizeThemes(themes)

	var args []any
	if len(themes) > 0 {
		args = append(args, themes)
	}

	rows, err := b.db.Query(ctx, candidatesSQL(b.lib, len(themes) > 0), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candidates: %w", err)
	}

	books, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Book, error) {
		var bk Book
		err := row.Scan(&bk.ID, &bk.Title, &bk.SummaryShort, &bk.Themes)
		return bk, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan candidates: %w", err)
	}
	return books, nil
}

// LookupSummaryByTitle returns the long summary of the first book (by id)
// whose title matches exactly. found is false when no book matches.
func (b *Books) LookupSummaryByTitle(ctx context.Context, title string) (summary string, found bool, err error) {
	c := b.lib.Columns
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 ORDER BY %s LIMIT 1`,
		ident(c.SummaryLong), b.table(), ident(c.Title), ident(c.ID))

	err = b.db.QueryRow(ctx, query, title).Scan(&summary)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("summary lookup failed: %w", err)
	}
	return summary, true, nil
}

// ExistingIDs returns the ids of all stored books.
func (b *Books) ExistingIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := b.db.Query(ctx, fmt.Sprintf(`SELECT %s FROM %s`, ident(b.lib.Columns.ID), b.table()))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ids: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan ids: %w", err)
	}

	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

// schemaSQL returns the statements that create the book table for dims.
func schemaSQL(lib config.LibraryConfig, dims int, reset bool) []string {
	c := lib.Columns
	table := parseTableIdentifier(lib.Table)
	name := table[len(table)-1]

	stmts := []string{`CREATE EXTENSION IF NOT EXISTS vector`}
	if reset {
		stmts = append(stmts, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, table.Sanitize()))
	}
	stmts = append(stmts,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			%s text PRIMARY KEY,
			%s text NOT NULL,
			%s text NOT NULL,
			%s text NOT NULL,
			%s text[] NOT NULL DEFAULT '{}',
			%s vector(%d) NOT NULL
		)`,
			table.Sanitize(),
			ident(c.ID), ident(c.Title), ident(c.SummaryShort), ident(c.SummaryLong),
			ident(c.Themes), ident(c.Embedding), dims),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (%s)`,
			ident(name+"_title_idx"), table.Sanitize(), ident(c.Title)),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING gin (%s)`,
			ident(name+"_themes_idx"), table.Sanitize(), ident(c.Themes)),
	)
	if dims <= maxIndexedDimensions {
		stmts = append(stmts, fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (%s vector_cosine_ops)`,
			ident(name+"_embedding_idx"), table.Sanitize(), ident(c.Embedding)))
	}
	return stmts
}

// EnsureSchema creates the vector extension, the book table and its indexes.
// With reset the table is dropped first. An existing table whose embedding
// column has a different dimension is an error.
func (b *Books) EnsureSchema(ctx context.Context, dims int, reset bool) error {
	for _, stmt := range schemaSQL(b.lib, dims, reset) {
		if _, err := b.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema setup failed: %w", err)
		}
	}

	got, err := b.EmbeddingDimensions(ctx)
	if err != nil {
		return err
	}
	if got != dims {
		return fmt.Errorf("table %s stores %d-dimensional embeddings, configuration expects %d",
			b.lib.Table, got, dims)
	}
	return nil
}

// EmbeddingDimensions reads the declared dimension of the embedding column.
func (b *Books) EmbeddingDimensions(ctx context.Context) (int, error) {
	var dims int
	err := b.db.QueryRow(ctx, `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = $1::regclass AND attname = $2 AND NOT attisdropped`,
		b.lib.Table, b.lib.Columns.Embedding,
	).Scan(&dims)
	if err != nil {
		return 0, fmt.Errorf("failed to read embedding dimensions: %w", err)
	}
	return dims, nil
}

func upsertSQL(lib config.LibraryConfig) string {
	c := lib.Columns
	return fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (%s) DO UPDATE SET
			%s = EXCLUDED.%s,
			%s = EXCLUDED.%s,
			%s = EXCLUDED.%s,
			%s = EXCLUDED.%s,
			%s = EXCLUDED.%s`,
		parseTableIdentifier(lib.Table).Sanitize(),
		ident(c.ID), ident(c.Title), ident(c.SummaryShort), ident(c.SummaryLong), ident(c.Themes), ident(c.Embedding),
		ident(c.ID),
		ident(c.Title), ident(c.Title),
		ident(c.SummaryShort), ident(c.SummaryShort),
		ident(c.SummaryLong), ident(c.SummaryLong),
		ident(c.Themes), ident(c.Themes),
		ident(c.Embedding), ident(c.Embedding),
	)
}

// UpsertBooks inserts or replaces books in a single batch.
func (b *Books) UpsertBooks(ctx context.Context, records []BookRecord) error {
	if len(records) == 0 {
		return nil
	}

	query := upsertSQL(b.lib)
	batch := &pgx.Batch{}
	for _, r := range records {
		themes := r.Themes
		if themes == nil {
			themes = []string{}
		}
		batch.Queue(query, r.ID, r.Title, r.SummaryShort, r.SummaryLong, themes,
			pgvector.NewVector(r.Embedding))
	}

	results := b.db.SendBatch(ctx, batch)
	for _, r := range records {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("failed to upsert book %s: %w", r.ID, err)
		}
	}
	return results.Close()
}
